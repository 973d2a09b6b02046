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

package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/trace"

	"github.com/google/libtracecmd-go/internal/config"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEngine  = "engine"
)

// TracingHandler is an [slog.Handler] that adds the trace and span id of
// the record's context, so lines logged inside an iteration can be joined
// with its span.  The ids always sit at the top level, outside any group
// opened with WithGroup.
type TracingHandler struct {
	// root carries only the service attrs; handler has ops applied too.
	root    slog.Handler
	handler slog.Handler
	ops     []handlerOp
}

// handlerOp is one WithGroup (group set) or WithAttrs call.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

// NewTracingHandler wraps inner.  service and engine are attached once, at
// the top level.
func NewTracingHandler(inner slog.Handler, service, engine string) *TracingHandler {
	attrs := []slog.Attr{slog.String(attrService, service)}
	if engine != "" {
		attrs = append(attrs, slog.String(attrEngine, engine))
	}
	root := inner.WithAttrs(attrs)
	return &TracingHandler{root: root, handler: root}
}

func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.handler.Enabled(ctx, level)
}

func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	h := th.handler
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		h = th.root.WithAttrs([]slog.Attr{
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		})
		for _, op := range th.ops {
			if op.group != "" {
				h = h.WithGroup(op.group)
			} else {
				h = h.WithAttrs(op.attrs)
			}
		}
	}

	if err := h.Handle(ctx, record); err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}
	return nil
}

func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return th
	}
	return th.with(handlerOp{attrs: attrs}, th.handler.WithAttrs(attrs))
}

func (th *TracingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return th
	}
	return th.with(handlerOp{group: name}, th.handler.WithGroup(name))
}

func (th *TracingHandler) with(op handlerOp, handler slog.Handler) *TracingHandler {
	return &TracingHandler{
		root:    th.root,
		handler: handler,
		ops:     append(slices.Clip(th.ops), op),
	}
}

// NewLogger builds the command's logger from cfg.  Logs go to w, as JSON
// when cfg.Log.JSON is set.
func NewLogger(cfg *config.Config, w io.Writer, service string) (*slog.Logger, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Log.JSON {
		inner = slog.NewJSONHandler(w, handlerOpts)
	} else {
		inner = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewTracingHandler(inner, service, cfg.Engine)), nil
}
