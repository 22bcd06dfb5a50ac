// Package planner implements the Sub-Request Planner: for each context
// piece it decides what portion of the final artifact to ask the LLM
// Adapter for, and assembles a piece-specific prompt carrying explicit
// brevity and item-count caps.
package planner

import (
	"fmt"

	"github.com/wbaines/manualrag/partition"
	"github.com/wbaines/manualrag/promptlib"
)

// Role is the portion of the artifact a single sub-request is asked to
// produce.
type Role int

const (
	// RoleChecksheetItems requests up to Config.MaxItemsPerPiece checklist
	// items. The only role used for the checksheet use case.
	RoleChecksheetItems Role = iota
	// RoleTitleOverview requests only the title and overview fields.
	RoleTitleOverview
	// RolePrerequisites requests only tools/materials/safety prerequisites.
	RolePrerequisites
	// RoleSteps requests up to Config.MaxStepsPerPiece numbered steps.
	RoleSteps
	// RoleSafetyChecklist requests safety warnings and the completion
	// checklist.
	RoleSafetyChecklist
)

// String names a Role for logging.
func (r Role) String() string {
	switch r {
	case RoleChecksheetItems:
		return "checksheet_items"
	case RoleTitleOverview:
		return "title_overview"
	case RolePrerequisites:
		return "prerequisites"
	case RoleSteps:
		return "steps"
	case RoleSafetyChecklist:
		return "safety_checklist"
	default:
		return "unknown"
	}
}

// PlannerState is the accumulated artifact state the Planner consults to
// decide a piece's role. The Orchestrator derives it from the running
// Merger before each sub-request.
type PlannerState struct {
	TitleSet         bool
	PrerequisitesSet bool
	StepCount        int
}

// Config bounds how much a single sub-request may ask for.
type Config struct {
	MaxItemsPerPiece int
	MaxStepsPerPiece int
}

// Plan decides the Role for piece index idx out of count total pieces,
// following the table in SPEC_FULL.md §4.4. The planner stays
// position-AND-state-driven exactly as specified (see SPEC_FULL.md §9's
// open-question decision): it is possible for the same role to be
// requested twice if an earlier piece's output ended up empty, and the
// Merger is written to tolerate that via its existing dedup/union rules.
func Plan(useCase string, idx, count int, state PlannerState) Role {
	if useCase != "work_instructions" {
		return RoleChecksheetItems
	}

	if idx == 0 && !state.TitleSet {
		return RoleTitleOverview
	}

	wantsPrereq := !state.PrerequisitesSet && (idx == 1 || (idx == 0 && state.TitleSet))
	if wantsPrereq {
		return RolePrerequisites
	}

	isLast := idx == count-1
	if isLast {
		if state.StepCount == 0 {
			return RoleSteps
		}
		return RoleSafetyChecklist
	}

	return RoleSteps
}

// BuildPrompt assembles the concrete (system, user) prompt pair for a
// single sub-request: piece.Text fills {context}, and role determines
// which Include/Constraints/Example sections promptlib.Builder appends.
func BuildPrompt(tmpl promptlib.Prompt, piece partition.Piece, role Role, cfg Config, state PlannerState) (system, user string) {
	b := promptlib.Builder{Context: piece.Text}

	switch role {
	case RoleChecksheetItems:
		b.Include = fmt.Sprintf("up to %d inspection checklist items grounded in this excerpt", cfg.MaxItemsPerPiece)
		b.Constraints = []string{
			"itemName: at most 3 words",
			"frequency: one of Daily, Weekly, Monthly, Quarterly, Annual",
			"notes: at most 5 words, omit if nothing to add",
			fmt.Sprintf("at most %d items total", cfg.MaxItemsPerPiece),
		}
		b.Example = `{"items":[{"itemName":"Oil level","inspectionPoint":"Sight glass","frequency":"Daily","expectedStatus":"Between MIN and MAX","notes":"top up if low"}]}`

	case RoleTitleOverview:
		b.Include = "the title and a one-paragraph overview only; no steps, no prerequisites"
		b.Constraints = []string{
			"title: at most 8 words",
			"overview: at most 2 sentences",
		}
		b.Example = `{"title":"Hydraulic Pump Inspection","overview":"Covers routine checks of the hydraulic pump assembly."}`

	case RolePrerequisites:
		b.Include = "prerequisites only: tools, materials, and safety equipment needed before starting"
		b.Constraints = []string{
			"each list entry: at most 4 words",
			"omit any of tools/materials/safety that are not mentioned in the excerpt",
		}
		b.Example = `{"prerequisites":{"tools":["10mm wrench"],"materials":["replacement gasket"],"safety":["safety glasses"]}}`

	case RoleSteps:
		b.Include = fmt.Sprintf("up to %d steps, numbered starting at %d", cfg.MaxStepsPerPiece, state.StepCount+1)
		b.Constraints = []string{
			"description: at most 2 sentences",
			"details: optional, at most 1 sentence",
			"warning: optional, only if the excerpt states a hazard",
			fmt.Sprintf("at most %d steps total", cfg.MaxStepsPerPiece),
		}
		b.Example = fmt.Sprintf(`{"steps":[{"stepNumber":%d,"title":"Relieve pressure","description":"Open the bleed valve until pressure gauge reads zero."}]}`, state.StepCount+1)

	case RoleSafetyChecklist:
		b.Include = "safety warnings and completion checklist items only; no steps, no prerequisites"
		b.Constraints = []string{
			"each entry: at most 1 sentence",
			"omit completionChecklist or safetyWarnings entirely if the excerpt has none",
		}
		b.Example = `{"safetyWarnings":[{"text":"Do not operate without guard installed."}],"completionChecklist":[{"text":"Verify no leaks at fittings."}]}`
	}

	return tmpl.System, b.Render(tmpl.UserTemplate)
}
