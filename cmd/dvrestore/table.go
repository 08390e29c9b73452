package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableSpec describes a rounded go-pretty table. Short rows are padded and
// a non-empty footer is rendered below a separator.
type tableSpec struct {
	headers []string
	rows    [][]string
	aligns  []columnAlignment
	footer  []string
}

func (s tableSpec) render() string {
	columns := len(s.headers)
	if columns == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(s.row(s.headers))
	for _, r := range s.rows {
		tw.AppendRow(s.row(r))
	}
	if len(s.footer) > 0 {
		tw.AppendFooter(s.row(s.footer))
	}

	configs := make([]table.ColumnConfig, columns)
	for i := range configs {
		align := text.AlignLeft
		if i < len(s.aligns) && s.aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignFooter: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func (s tableSpec) row(cells []string) table.Row {
	r := make(table.Row, len(s.headers))
	for i := range r {
		r[i] = ""
		if i < len(cells) {
			r[i] = cells[i]
		}
	}
	return r
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	return tableSpec{headers: headers, rows: rows, aligns: aligns}.render()
}

// renderKeyValues renders a two-column property table.
func renderKeyValues(rows [][]string) string {
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
