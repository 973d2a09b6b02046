// Copyright 2026 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const chartHeight = "600px"

// Report is the result of a top run.
type Report struct {
	Inputs     []string `json:"inputs"`
	Prefix     string   `json:"prefix,omitempty"`
	Total      uint64   `json:"total"`
	Unresolved uint64   `json:"unresolved"`
	Top        []Entry  `json:"top"`
}

// NewReport builds the report of the n most frequent events in c.
func NewReport(inputs []string, prefix string, c Counts, n int) Report {
	return Report{
		Inputs:     inputs,
		Prefix:     prefix,
		Total:      c.Total,
		Unresolved: c.Unresolved,
		Top:        c.Top(n),
	}
}

// WriteTable renders r as a text table.
func (r Report) WriteTable(w io.Writer) error {
	heading := color.New(color.Bold)
	if _, err := heading.Fprintf(w, "Top %d events:\n", len(r.Top)); err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"#", "Event", "Count"})
	for _, e := range r.Top {
		tbl.AppendRow(table.Row{e.Rank, e.Event, humanize.Comma(int64(e.Count))})
	}
	tbl.AppendFooter(table.Row{"", "Total", humanize.Comma(int64(r.Total))})

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return err
	}

	if r.Unresolved > 0 {
		_, err := color.New(color.FgYellow).Fprintf(w, "%s records had no known event\n", humanize.Comma(int64(r.Unresolved)))
		return err
	}
	return nil
}

// WriteJSON writes r as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteHTML writes r as a standalone page holding a horizontal bar chart,
// most frequent event on top.
func (r Report) WriteHTML(w io.Writer) error {
	labels := make([]string, len(r.Top))
	values := make([]opts.BarData, len(r.Top))
	for i, e := range r.Top {
		labels[len(r.Top)-1-i] = e.Event
		values[len(r.Top)-1-i] = opts.BarData{Value: e.Count}
	}

	subtitle := strings.Join(r.Inputs, ", ")
	if r.Prefix != "" {
		subtitle += " (prefix " + r.Prefix + ")"
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Top events",
			Width:     "100%",
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Top %d events", len(r.Top)),
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithGridOpts(opts.Grid{Left: "20%", Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels}),
	)
	bar.AddSeries("Records", values,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
	)

	return bar.Render(w)
}
