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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/google/libtracecmd-go"
	metricsPath         = "/metrics"
	shutdownTimeout     = 5 * time.Second
)

// Providers holds the telemetry handed to the tracecmd options.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Handler serves the Prometheus scrape endpoint.  It is nil when
	// metrics are disabled.
	Handler http.Handler

	shutdown []func(context.Context) error
}

// Init builds the providers.  Metrics are exported only when metricsAddr
// is set; spans are always recorded so log lines carry their ids, but
// they are not exported anywhere.
func Init(metricsAddr string, logger *slog.Logger) (*Providers, error) {
	tp := sdktrace.NewTracerProvider()
	p := &Providers{
		Tracer:   tp.Tracer(instrumentationName),
		Meter:    noopmetric.NewMeterProvider().Meter(instrumentationName),
		shutdown: []func(context.Context) error{tp.Shutdown},
	}
	if metricsAddr == "" {
		return p, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create prometheus exporter: %w", err), p.Shutdown(context.Background()))
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	p.Meter = mp.Meter(instrumentationName)
	p.Handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	p.shutdown = append(p.shutdown, mp.Shutdown)

	if err := p.serve(metricsAddr, logger); err != nil {
		return nil, errors.Join(err, p.Shutdown(context.Background()))
	}
	return p, nil
}

func (p *Providers) serve(addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, p.Handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String(), "path", metricsPath)

	p.shutdown = append(p.shutdown, srv.Shutdown)
	return nil
}

// Shutdown flushes and stops everything Init started.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, p.shutdown[i](ctx))
	}
	return errors.Join(errs...)
}
