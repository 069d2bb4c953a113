/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one report column. A zero width leaves it unbounded.
type column struct {
	name     string
	numeric  bool
	maxWidth int
}

// report is a titled table printed by the CLI commands.
type report struct {
	title   string
	columns []column
	rows    []table.Row
	footer  string
}

func newReport(title string, columns ...column) *report {
	return &report{title: title, columns: columns}
}

// add appends a row. Missing cells are blank and extra cells are dropped.
func (r *report) add(cells ...string) {
	row := make(table.Row, len(r.columns))
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	r.rows = append(r.rows, row)
}

// countFooter sets a footer reading "<n> <noun>".
func (r *report) countFooter(noun string) {
	r.footer = fmt.Sprintf("%d %s", len(r.rows), noun)
}

func (r *report) String() string {
	if len(r.columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle(r.title)

	header := make(table.Row, len(r.columns))
	configs := make([]table.ColumnConfig, len(r.columns))
	for i, col := range r.columns {
		header[i] = col.name
		cfg := table.ColumnConfig{Number: i + 1, WidthMax: col.maxWidth}
		if col.numeric {
			cfg.Align = text.AlignRight
			cfg.AlignHeader = text.AlignRight
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.AppendRows(r.rows)
	tw.SetColumnConfigs(configs)

	if r.footer != "" {
		footer := make(table.Row, len(r.columns))
		footer[0] = r.footer
		tw.AppendFooter(footer)
	}
	return tw.Render()
}
