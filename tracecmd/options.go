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

package tracecmd

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/google/libtracecmd-go/tracecmd"

// Option configures Open and NewIterator.  Options that do not apply to
// the call they are passed to are ignored.
type Option func(*options)

type options struct {
	ctx    context.Context
	logger *slog.Logger
	meter  metric.Meter
	tracer trace.Tracer
	cpus   []int
	engine Engine
}

func newOptions(opts []Option) options {
	o := options{
		ctx:    context.Background(),
		logger: slog.New(slog.DiscardHandler),
		meter:  noopmetric.NewMeterProvider().Meter(instrumentationName),
		tracer: nooptrace.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for lifecycle events.  Nothing is
// logged per record.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter records iteration metrics on m.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithTracer wraps each Process or ProcessMulti call in a span.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithContext sets the parent context for spans and metric recordings.
// It does not cancel iteration.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithCPUs restricts single-session iteration to the given CPUs.
// ProcessMulti fails with ErrCPUFilterMulti when it is set.
func WithCPUs(cpus ...int) Option {
	return func(o *options) {
		o.cpus = slices.Clone(cpus)
	}
}

// WithEngine sets the engine ProcessMulti hands an empty session slice
// to.  Sessions always use the engine they were opened with.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}
