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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRecords    = "tracecmd.records.total"
	metricIterations = "tracecmd.iterations.total"
	metricDuration   = "tracecmd.iteration.duration.seconds"

	attrOp     = "op"
	attrStatus = "status"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300}

// iterMetrics holds the instruments updated once per iteration.  A nil
// instrument is skipped.
type iterMetrics struct {
	records    metric.Int64Counter
	iterations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newIterMetrics(m metric.Meter, logger *slog.Logger) *iterMetrics {
	im := &iterMetrics{}
	var err error

	im.records, err = m.Int64Counter(metricRecords,
		metric.WithDescription("Trace records delivered to handlers"),
		metric.WithUnit("{record}"))
	if err != nil {
		logger.Warn("creating metric", "name", metricRecords, "error", err)
	}

	im.iterations, err = m.Int64Counter(metricIterations,
		metric.WithDescription("Completed iterate calls by outcome"),
		metric.WithUnit("{iteration}"))
	if err != nil {
		logger.Warn("creating metric", "name", metricIterations, "error", err)
	}

	im.duration, err = m.Float64Histogram(metricDuration,
		metric.WithDescription("Duration of iterate calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	if err != nil {
		logger.Warn("creating metric", "name", metricDuration, "error", err)
	}

	return im
}

func (im *iterMetrics) record(ctx context.Context, op string, code int, records int64, elapsed time.Duration) {
	status := "ok"
	if code != 0 {
		status = "failed"
	}
	opAttr := metric.WithAttributes(attribute.String(attrOp, op))

	if im.records != nil {
		im.records.Add(ctx, records, opAttr)
	}
	if im.iterations != nil {
		im.iterations.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
			attribute.String(attrStatus, status)))
	}
	if im.duration != nil {
		im.duration.Record(ctx, elapsed.Seconds(), opAttr)
	}
}
