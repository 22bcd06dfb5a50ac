package manualrag

import (
	"fmt"
	"sort"
	"strings"
)

// sourceRef accumulates the distinct page numbers seen for one file across
// the chunks accepted into a context window.
type sourceRef struct {
	fileName string
	pages    map[int]bool
}

// sourceRefMap builds the `{fileName → set(pageNumber)}` map the
// Orchestrator collects while assembling the bounded context window.
type sourceRefMap struct {
	order []string
	refs  map[string]*sourceRef
}

func newSourceRefMap() *sourceRefMap {
	return &sourceRefMap{refs: make(map[string]*sourceRef)}
}

// add records one chunk's provenance. hasPage false means the chunk's page
// number is unknown and must not contribute a phantom page to the rendered
// citation (P7).
func (m *sourceRefMap) add(fileName string, pageNumber int, hasPage bool) {
	if fileName == "" {
		fileName = "Unknown"
	}
	ref, ok := m.refs[fileName]
	if !ok {
		ref = &sourceRef{fileName: fileName, pages: make(map[int]bool)}
		m.refs[fileName] = ref
		m.order = append(m.order, fileName)
	}
	if hasPage {
		ref.pages[pageNumber] = true
	}
}

// sources renders the distinct `"<fileName> (Pages p1, p2, p3…)"` strings in
// first-seen file order, sorting pages ascending and truncating to the first
// three with an ellipsis when there are more.
func (m *sourceRefMap) sources() []string {
	out := make([]string, 0, len(m.order))
	for _, fileName := range m.order {
		ref := m.refs[fileName]
		if len(ref.pages) == 0 {
			out = append(out, fileName)
			continue
		}
		pages := make([]int, 0, len(ref.pages))
		for p := range ref.pages {
			pages = append(pages, p)
		}
		sort.Ints(pages)

		var label string
		if len(pages) > 3 {
			label = fmt.Sprintf("Pages %d, %d, %d…", pages[0], pages[1], pages[2])
		} else if len(pages) == 1 {
			label = fmt.Sprintf("Page %d", pages[0])
		} else {
			strs := make([]string, len(pages))
			for i, p := range pages {
				strs[i] = fmt.Sprintf("%d", p)
			}
			label = "Pages " + strings.Join(strs, ", ")
		}
		out = append(out, fmt.Sprintf("%s (%s)", fileName, label))
	}
	return out
}

// citationText renders a numbered listing of sources, e.g.
// "1. manual.pdf (Pages 4, 5, 6…)\n2. appendix.pdf (Page 2)".
func citationText(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s)
	}
	return b.String()
}
