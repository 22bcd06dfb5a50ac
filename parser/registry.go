package parser

import "fmt"

// Registry maps a document format to the Parser that handles it. Ingestion
// supports PDF and XLSX natively; everything else is the object-storage and
// parsing pipeline's concern, not this module's (see SPEC_FULL.md §1).
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	pdf := &PDFParser{}
	xlsx := &XLSXParser{}

	for _, p := range []Parser{pdf, xlsx} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
