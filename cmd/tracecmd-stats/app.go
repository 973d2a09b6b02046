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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/google/libtracecmd-go/internal/config"
	"github.com/google/libtracecmd-go/internal/observability"
	"github.com/google/libtracecmd-go/tracecmd"
	"github.com/google/libtracecmd-go/tracecmd/libtracecmd"
	"github.com/google/libtracecmd-go/tracecmd/replay"
)

const serviceName = "tracecmd-stats"

// app is the state shared by the subcommands.  setup fills it in from the
// parsed flags; close undoes setup.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	cpuProfile string
	memProfile string

	cfg       *config.Config
	logger    *slog.Logger
	providers *observability.Providers
	engine    tracecmd.Engine

	closers []func() error
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Summarize trace-cmd recordings",
		Long: `tracecmd-stats reads trace.dat files recorded by trace-cmd.

Commands:
  top   most frequent events
  dump  one line per record`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default .tracecmd-stats.yaml in . or $HOME)")
	pf.String("engine", config.DefaultEngine, "trace engine: native or replay")
	pf.String("replay-root", "", "directory replay fixtures are read from")
	pf.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
	pf.Bool("log-json", false, "log as JSON")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&a.cpuProfile, "cpuprofile", "", "write cpu profile to file")
	pf.StringVar(&a.memProfile, "memprofile", "", "write memory profile to file")

	root.AddCommand(newTopCommand(a), newDumpCommand(a), newVersionCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = observability.NewLogger(cfg, a.stderr, serviceName)
	if err != nil {
		return err
	}

	if err := a.startProfiling(); err != nil {
		return err
	}

	a.providers, err = observability.Init(cfg.Metrics.Addr, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		return a.providers.Shutdown(context.Background())
	})

	a.engine, err = a.newEngine()
	return err
}

func (a *app) newEngine() (tracecmd.Engine, error) {
	switch a.cfg.Engine {
	case config.EngineReplay:
		return replay.New(replay.NewLocalFileProvider(a.cfg.Replay.Root), a.logger), nil
	default:
		eng, err := libtracecmd.New(a.logger)
		if err != nil {
			return nil, fmt.Errorf("%w (rebuild with -tags libtracecmd, or use --engine replay)", err)
		}
		return eng, nil
	}
}

func (a *app) startProfiling() error {
	if a.cpuProfile != "" {
		f, err := os.Create(a.cpuProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return errors.Join(err, f.Close())
		}
		a.closers = append(a.closers, func() error {
			pprof.StopCPUProfile()
			return f.Close()
		})
	}

	if a.memProfile != "" {
		f, err := os.Create(a.memProfile)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			return errors.Join(pprof.WriteHeapProfile(f), f.Close())
		})
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// options are the iteration options every command uses.
func (a *app) options(ctx context.Context) []tracecmd.Option {
	return []tracecmd.Option{
		tracecmd.WithContext(ctx),
		tracecmd.WithLogger(a.logger),
		tracecmd.WithMeter(a.providers.Meter),
		tracecmd.WithTracer(a.providers.Tracer),
		tracecmd.WithEngine(a.engine),
	}
}

// openAll opens every input.  The returned func closes them.
func (a *app) openAll(inputs []string) ([]*tracecmd.Session, func() error, error) {
	sessions := make([]*tracecmd.Session, 0, len(inputs))
	closeAll := func() error {
		var errs []error
		for _, s := range sessions {
			errs = append(errs, s.Close())
		}
		return errors.Join(errs...)
	}

	for _, in := range inputs {
		s, err := tracecmd.Open(a.engine, in, tracecmd.WithLogger(a.logger))
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		sessions = append(sessions, s)
	}
	return sessions, closeAll, nil
}

// process runs it over a single session, or merges several.
func process[A any](it *tracecmd.Iterator[A], sessions []*tracecmd.Session) (A, error) {
	if len(sessions) == 1 {
		return it.Process(sessions[0])
	}
	return it.ProcessMulti(sessions)
}
