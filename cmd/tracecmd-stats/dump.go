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
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/google/libtracecmd-go/internal/stats"
	"github.com/google/libtracecmd-go/tracecmd"
)

func newDumpCommand(a *app) *cobra.Command {
	var (
		inputs []string
		limit  int
		cpus   []int
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if len(cpus) > 0 && len(inputs) > 1 {
				return fmt.Errorf("--cpu: %w", tracecmd.ErrCPUFilterMulti)
			}

			sessions, closeAll, err := a.openAll(inputs)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeAll()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			w := bufio.NewWriter(a.stdout)
			opts := a.options(ctx)
			if len(cpus) > 0 {
				opts = append(opts, tracecmd.WithCPUs(cpus...))
			}
			var state stats.DumpState
			it := tracecmd.NewIterator[struct{}](stats.DumpHandler{W: w, Limit: limit, Ctx: ctx, State: &state}, opts...)

			_, err = process(it, sessions)
			if code, ok := tracecmd.Status(err); ok && code == tracecmd.Stop {
				err = nil
			}
			if err := errors.Join(err, state.Err); err != nil {
				return fmt.Errorf("dump: %w", err)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			a.logger.Info("dump finished", "records", humanize.Comma(int64(state.Lines)), "interrupted", ctx.Err() != nil)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&inputs, "input", "i", nil, "trace file to read (repeatable)")
	f.IntVar(&limit, "limit", 0, "stop after this many records (0 prints all)")
	f.IntSliceVar(&cpus, "cpu", nil, "only print records from these CPUs (not allowed with several inputs)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
