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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/google/libtracecmd-go/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineReplay,
		Top:    config.TopConfig{Limit: 10},
		Log:    config.LogConfig{Level: "debug", JSON: true},
	}
}

func TestNewLoggerJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(testConfig(), &buf, "tracecmd-stats")
	require.NoError(t, err)

	logger.Debug("opened", "path", "a.dat")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "opened", line["msg"])
	assert.Equal(t, "tracecmd-stats", line[attrService])
	assert.Equal(t, config.EngineReplay, line[attrEngine])
	assert.Equal(t, "a.dat", line["path"])
	assert.NotContains(t, line, attrTraceID)
}

func TestNewLoggerLevel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Log = config.LogConfig{Level: "warn"}

	var buf bytes.Buffer
	logger, err := NewLogger(cfg, &buf, "svc")
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "service=svc")

	cfg.Log.Level = "loud"
	_, err = NewLogger(cfg, io.Discard, "svc")
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}

func TestTracingHandlerAddsSpanIDs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(testConfig(), &buf, "svc")
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.With("k", "v").WithGroup("g").InfoContext(ctx, "inside", "n", 1)
	span.End()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, span.SpanContext().TraceID().String(), line[attrTraceID])
	assert.Equal(t, span.SpanContext().SpanID().String(), line[attrSpanID])
	assert.Equal(t, "v", line["k"])

	group, ok := line["g"].(map[string]any)
	require.True(t, ok, "group g missing from %s", buf.String())
	assert.InDelta(t, 1, group["n"], 0)
	assert.NotContains(t, group, attrTraceID)
	assert.NotContains(t, group, attrSpanID)
}

func TestTracingHandlerNestedGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(testConfig(), &buf, "svc")
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.WithGroup("a").With("x", 1).WithGroup("b").InfoContext(ctx, "deep", "y", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, span.SpanContext().TraceID().String(), line[attrTraceID])
	assert.Equal(t, "svc", line[attrService])

	a, ok := line["a"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1, a["x"], 0)
	b, ok := a["b"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2, b["y"], 0)
}

func TestInitWithoutMetrics(t *testing.T) {
	t.Parallel()

	p, err := Init("", slogDiscard())
	require.NoError(t, err)
	assert.Nil(t, p.Handler)
	assert.NotNil(t, p.Meter)

	_, span := p.Tracer.Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitServesMetrics(t *testing.T) {
	t.Parallel()

	p, err := Init("127.0.0.1:0", slogDiscard())
	require.NoError(t, err)
	defer func() { assert.NoError(t, p.Shutdown(context.Background())) }()
	require.NotNil(t, p.Handler)

	counter, err := p.Meter.Int64Counter("tracecmd.test.hits")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, metricsPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracecmd_test_hits")
}

func TestInitBadAddr(t *testing.T) {
	t.Parallel()

	_, err := Init("not-an-address", slogDiscard())
	assert.Error(t, err)
}

func slogDiscard() *slog.Logger { return slog.New(slog.DiscardHandler) }
