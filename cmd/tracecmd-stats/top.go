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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/google/libtracecmd-go/internal/config"
	"github.com/google/libtracecmd-go/internal/stats"
	"github.com/google/libtracecmd-go/tracecmd"
)

func newTopCommand(a *app) *cobra.Command {
	var (
		inputs   []string
		htmlPath string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the most frequent events",
		Long: `Count records per event and print the most frequent ones.

With several --input files the recordings are merged by timestamp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			sessions, closeAll, err := a.openAll(inputs)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeAll()) }()

			prefix := a.cfg.Top.Prefix
			it := tracecmd.NewIterator[stats.Counts](stats.TopHandler{Prefix: prefix}, a.options(cmd.Context())...)
			counts, err := process(it, sessions)
			if err != nil {
				return fmt.Errorf("count events: %w", err)
			}

			report := stats.NewReport(inputs, prefix, counts, a.cfg.Top.Limit)
			if htmlPath != "" {
				if err := writeHTML(htmlPath, report); err != nil {
					return err
				}
				a.logger.Info("wrote chart", "path", htmlPath)
			}

			if asJSON {
				return report.WriteJSON(a.stdout)
			}
			return report.WriteTable(a.stdout)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&inputs, "input", "i", nil, "trace file to read (repeatable)")
	f.IntP("count", "n", config.DefaultTopLimit, "number of events to print")
	f.String("prefix", "", "only count events starting with this prefix, and strip it")
	f.StringVar(&htmlPath, "html", "", "also write a bar chart to this HTML file")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func writeHTML(path string, report stats.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteHTML(f); err != nil {
		return errors.Join(fmt.Errorf("write chart: %w", err), f.Close())
	}
	return f.Close()
}
