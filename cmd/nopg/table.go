package main

import (
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableStyleFor draws rounded borders on terminals and plain ASCII otherwise.
func tableStyleFor(w io.Writer) table.Style {
	file, ok := w.(*os.File)
	if !ok {
		return table.StyleDefault
	}
	fd := file.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return table.StyleRounded
	}
	return table.StyleDefault
}

// alignments right-aligns columns whose non-empty cells are all numbers.
func alignments(rows [][]string) []columnAlignment {
	columns := 0
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	aligns := make([]columnAlignment, columns)
	for col := range aligns {
		numeric, seen := true, false
		for _, row := range rows {
			if col >= len(row) || row[col] == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(row[col], 64); err != nil {
				numeric = false
				break
			}
		}
		if numeric && seen {
			aligns[col] = alignRight
		}
	}
	return aligns
}

// renderTable draws rows under headers. Nil headers render a headerless
// table.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment, style table.Style) string {
	columns := len(headers)
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(style)

	if len(headers) > 0 {
		header := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(headers) {
				header[i] = headers[i]
			}
		}
		tw.AppendHeader(header)
	}

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
