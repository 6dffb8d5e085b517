package parser

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var tables []Table

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		ncols := 0
		for _, r := range rows {
			if len(r) > ncols {
				ncols = len(r)
			}
		}

		t := Table{
			Caption: sheet,
			Header:  rows[0],
			NRows:   len(rows) - 1,
			NCols:   ncols,
			Source:  "xlsx",
		}
		if len(rows) > 1 {
			t.Rows = rows[1:]
		}
		tables = append(tables, t)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}

	return &Result{
		Tables: tables,
		Engine: "native:xlsx",
	}, nil
}
