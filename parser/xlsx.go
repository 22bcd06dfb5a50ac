package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser extracts one section per sheet, rendering each row as a
// tab-separated line. Maintenance-manual spreadsheets (parts lists,
// lubrication schedules) are typically one table per sheet, so this is
// enough structure for the Context Partitioner to work with; cell styling
// and formulas are not reproduced.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx %s: %w", path, err)
	}
	defer f.Close()

	var sections []Section
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", name, err)
		}

		var b strings.Builder
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}

		sections = append(sections, Section{
			Heading:    name,
			Content:    strings.TrimSpace(b.String()),
			Level:      1,
			PageNumber: i + 1,
			Type:       "table",
		})
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"sheets": fmt.Sprintf("%d", len(sections))},
	}, nil
}
