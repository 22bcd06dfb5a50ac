// Package merge implements the Merger: it accumulates the partial JSON
// output of each sub-request into the canonical artifact shape,
// deduplicating and renumbering where the spec defines it, and annotating
// every produced element with the source attribution derived from its
// originating piece.
package merge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wbaines/manualrag/partition"
	"github.com/wbaines/manualrag/planner"
)

// Config bounds how many elements a single piece may contribute, mirroring
// the caps the Sub-Request Planner already asked for — the Merger enforces
// them independently since nothing guarantees the LLM honored the prompt.
type Config struct {
	MaxItemsPerPiece int
	MaxStepsPerPiece int
}

// Merger holds the running artifact for one generation. It is not safe for
// concurrent use — a single generation processes its pieces sequentially
// (SPEC_FULL.md §5), so nothing here needs its own lock.
type Merger struct {
	useCase UseCase
	cfg     Config

	checksheet *Checksheet
	work       *WorkInstructions

	seenTools     map[string]bool
	seenMaterials map[string]bool
	seenSafetyReq map[string]bool
	seenWarnings  map[string]bool
	seenChecklist map[string]bool
}

// New returns an empty Merger for the given use case.
func New(useCase UseCase, cfg Config) *Merger {
	m := &Merger{
		useCase:       useCase,
		cfg:           cfg,
		seenTools:     make(map[string]bool),
		seenMaterials: make(map[string]bool),
		seenSafetyReq: make(map[string]bool),
		seenWarnings:  make(map[string]bool),
		seenChecklist: make(map[string]bool),
	}
	if useCase == UseCaseChecksheet {
		m.checksheet = &Checksheet{}
	} else {
		m.work = &WorkInstructions{}
	}
	return m
}

// HasTitle reports whether a title has already been merged. The Planner
// consults this to decide whether a piece still needs the title+overview
// role.
func (m *Merger) HasTitle() bool {
	return m.work != nil && m.work.Title != ""
}

// HasPrerequisites reports whether any prerequisite has already been
// merged.
func (m *Merger) HasPrerequisites() bool {
	return m.work != nil && !m.work.Prerequisites.empty()
}

// StepCount returns the number of steps merged so far.
func (m *Merger) StepCount() int {
	if m.work == nil {
		return 0
	}
	return len(m.work.Steps)
}

// Merge folds one sub-request's raw JSON output into the running artifact,
// attributing every element it produces to src. role tells the Merger how
// to interpret an ambiguous shape (e.g. a bare array of steps vs. a bare
// array of checksheet items).
func (m *Merger) Merge(raw []byte, role planner.Role, src partition.Source) error {
	attr := attributionFrom(src)

	if m.useCase == UseCaseChecksheet {
		return m.mergeChecksheetItems(raw, attr)
	}

	switch role {
	case planner.RoleTitleOverview:
		return m.mergeTitleOverview(raw)
	case planner.RolePrerequisites:
		return m.mergePrerequisites(raw)
	case planner.RoleSteps:
		return m.mergeSteps(raw, attr)
	case planner.RoleSafetyChecklist:
		return m.mergeSafetyChecklist(raw, attr)
	default:
		return fmt.Errorf("merge: unhandled role %s for work instructions", role)
	}
}

// Artifact returns the artifact accumulated so far.
func (m *Merger) Artifact() Artifact {
	if m.checksheet != nil {
		return m.checksheet
	}
	return m.work
}

// IsEmpty implements the emptiness rule of SPEC_FULL.md §4.5.
func (m *Merger) IsEmpty() bool {
	if m.checksheet != nil {
		return len(m.checksheet.Items) == 0
	}
	w := m.work
	return w.Title == "" && w.Overview == "" && w.Prerequisites.empty() &&
		len(w.Steps) == 0 && len(w.SafetyWarnings) == 0 && len(w.CompletionChecklist) == 0
}

// Repair applies the missing-field repair pass: if the title is still
// empty but some other field has content, default it to "Work
// Instructions" rather than ship a title-less artifact.
func (m *Merger) Repair() {
	if m.work == nil || m.work.Title != "" {
		return
	}
	if m.IsEmpty() {
		return
	}
	m.work.Title = "Work Instructions"
}

// --- checksheet ---

func (m *Merger) mergeChecksheetItems(raw []byte, attr Attribution) error {
	arr := arrayOrField(raw, "items")
	if !arr.Exists() {
		return nil
	}

	n := 0
	var mergeErr error
	arr.ForEach(func(_, v gjson.Result) bool {
		if n >= m.cfg.MaxItemsPerPiece {
			return false
		}
		item, err := decodeWithAttribution[Item](v.Raw, attr)
		if err != nil {
			mergeErr = fmt.Errorf("merge: decoding checksheet item: %w", err)
			return false
		}
		m.checksheet.Items = append(m.checksheet.Items, item)
		n++
		return true
	})
	return mergeErr
}

// --- work instructions: title + overview ---

func (m *Merger) mergeTitleOverview(raw []byte) error {
	parsed := gjson.ParseBytes(raw)
	if title := parsed.Get("title"); title.Exists() && m.work.Title == "" {
		m.work.Title = strings.TrimSpace(cast.ToString(title.Value()))
	}
	if overview := parsed.Get("overview"); overview.Exists() && m.work.Overview == "" {
		m.work.Overview = strings.TrimSpace(cast.ToString(overview.Value()))
	}
	if freq := parsed.Get("frequency"); freq.Exists() && m.work.Frequency == "" {
		m.work.Frequency = strings.TrimSpace(cast.ToString(freq.Value()))
	}
	if dur := parsed.Get("estimatedDuration"); dur.Exists() && m.work.EstimatedDuration == "" {
		m.work.EstimatedDuration = strings.TrimSpace(cast.ToString(dur.Value()))
	}
	return nil
}

// --- work instructions: prerequisites ---

func (m *Merger) mergePrerequisites(raw []byte) error {
	parsed := gjson.ParseBytes(raw)
	root := parsed
	if p := parsed.Get("prerequisites"); p.Exists() {
		root = p
	}

	m.unionStrings(root.Get("tools"), &m.work.Prerequisites.Tools, m.seenTools)
	m.unionStrings(root.Get("materials"), &m.work.Prerequisites.Materials, m.seenMaterials)
	m.unionStrings(root.Get("safety"), &m.work.Prerequisites.Safety, m.seenSafetyReq)
	return nil
}

// unionStrings appends every not-yet-seen entry of arr to *dst, preserving
// first-seen order.
func (m *Merger) unionStrings(arr gjson.Result, dst *[]string, seen map[string]bool) {
	if !arr.IsArray() {
		return
	}
	arr.ForEach(func(_, v gjson.Result) bool {
		s := strings.TrimSpace(cast.ToString(v.Value()))
		if s == "" || seen[s] {
			return true
		}
		seen[s] = true
		*dst = append(*dst, s)
		return true
	})
}

// --- work instructions: steps ---

func (m *Merger) mergeSteps(raw []byte, attr Attribution) error {
	arr := arrayOrField(raw, "steps")
	if !arr.Exists() {
		return nil
	}

	n := 0
	var mergeErr error
	arr.ForEach(func(_, v gjson.Result) bool {
		if n >= m.cfg.MaxStepsPerPiece {
			return false
		}
		stepRaw := normalizeStepNumber([]byte(v.Raw))
		step, err := decodeWithAttribution[Step](string(stepRaw), attr)
		if err != nil {
			mergeErr = fmt.Errorf("merge: decoding step: %w", err)
			return false
		}
		m.work.Steps = append(m.work.Steps, step)
		n++
		return true
	})
	if mergeErr != nil {
		return mergeErr
	}

	// Steps are renumbered to a contiguous 1..M sequence on every merge,
	// since the LLM's own stepNumber values are only ever used as hints to
	// the model about where to continue, never trusted as final (SPEC_FULL
	// §4.5).
	for i := range m.work.Steps {
		m.work.Steps[i].StepNumber = i + 1
	}
	return nil
}

// normalizeStepNumber coerces a string-typed "stepNumber" field (e.g.
// `"stepNumber": "3"`) to a JSON number so it unmarshals cleanly into an
// int field; LLM output is not guaranteed well-typed (SPEC_FULL §9's
// domain-stack note on spf13/cast).
func normalizeStepNumber(raw []byte) []byte {
	sn := gjson.GetBytes(raw, "stepNumber")
	if !sn.Exists() || sn.Type != gjson.String {
		return raw
	}
	out, err := sjson.SetBytes(raw, "stepNumber", cast.ToInt(sn.String()))
	if err != nil {
		return raw
	}
	return out
}

// --- work instructions: safety warnings + completion checklist ---

func (m *Merger) mergeSafetyChecklist(raw []byte, attr Attribution) error {
	parsed := gjson.ParseBytes(raw)

	if err := m.mergeNotes(parsed.Get("safetyWarnings"), &m.work.SafetyWarnings, m.seenWarnings, attr); err != nil {
		return err
	}
	return m.mergeNotes(parsed.Get("completionChecklist"), &m.work.CompletionChecklist, m.seenChecklist, attr)
}

func (m *Merger) mergeNotes(arr gjson.Result, dst *[]Note, seen map[string]bool, attr Attribution) error {
	if !arr.IsArray() {
		return nil
	}
	var mergeErr error
	arr.ForEach(func(_, v gjson.Result) bool {
		note, err := decodeWithAttribution[Note](v.Raw, attr)
		if err != nil {
			mergeErr = fmt.Errorf("merge: decoding note: %w", err)
			return false
		}
		text := strings.TrimSpace(note.Text)
		if text == "" || seen[text] {
			return true
		}
		seen[text] = true
		note.Text = text
		*dst = append(*dst, note)
		return true
	})
	return mergeErr
}

// --- shared helpers ---

// arrayOrField tolerates both a bare JSON array and `{field: [...]}`,
// implementing SPEC_FULL.md §9's dynamic-typed JSON shape tolerance.
func arrayOrField(raw []byte, field string) gjson.Result {
	parsed := gjson.ParseBytes(raw)
	if parsed.IsArray() {
		return parsed
	}
	if v := parsed.Get(field); v.Exists() && v.IsArray() {
		return v
	}
	return gjson.Result{}
}

// decodeWithAttribution writes source/sourceFile (and sourcePage, when
// known) into raw via sjson, replacing any values the LLM supplied, before
// a single json.Unmarshal into T.
func decodeWithAttribution[T any](raw string, attr Attribution) (T, error) {
	var zero T
	data := []byte(raw)

	var err error
	data, err = sjson.SetBytes(data, "source", attr.Source)
	if err != nil {
		return zero, err
	}
	data, err = sjson.SetBytes(data, "sourceFile", attr.SourceFile)
	if err != nil {
		return zero, err
	}
	if attr.SourcePage != nil {
		data, err = sjson.SetBytes(data, "sourcePage", *attr.SourcePage)
		if err != nil {
			return zero, err
		}
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// attributionFrom derives the Attribution an element inherits from the
// piece's source, falling back to "Unknown" when the piece carries no
// resolvable source at all (SPEC_FULL §3's ContextPiece fallback).
func attributionFrom(src partition.Source) Attribution {
	fileName := src.FileName
	if fileName == "" {
		fileName = "Unknown"
	}

	attr := Attribution{SourceFile: fileName}
	if src.HasPage {
		page := src.PageNumber
		attr.SourcePage = &page
		attr.Source = fmt.Sprintf("%s, page %d", fileName, page)
	} else {
		attr.Source = fileName
	}
	return attr
}
