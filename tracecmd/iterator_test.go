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

package tracecmd_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/google/libtracecmd-go/tracecmd"
	"github.com/google/libtracecmd-go/tracecmd/replay"
)

func countRecords(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
	*acc++
	return tracecmd.Continue
}

// eventCounts keeps its map non-nil through Reset.
type eventCounts struct {
	byName map[string]int
}

func (c *eventCounts) Reset() {
	c.byName = make(map[string]int)
}

type prefixCounter struct {
	prefix string
}

func (p prefixCounter) Callback(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *eventCounts) int {
	ev, err := in.FindEvent(rec)
	if err != nil {
		return tracecmd.Continue
	}
	if name, ok := strings.CutPrefix(ev.Name(), p.prefix); ok {
		acc.byName[name]++
	}
	return tracecmd.Continue
}

func TestProcessCountsEveryRecord(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "counts.yaml")
	n, err := tracecmd.Process(s, countRecords)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestProcessPrefixFilter(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "counts.yaml")
	it := tracecmd.NewIterator[eventCounts](prefixCounter{prefix: "foo_"})
	assert.Equal(t, tracecmd.StateIdle, it.State())

	counts, err := it.Process(s)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"x": 3, "y": 2}, counts.byName)
	assert.Equal(t, tracecmd.StateCompleted, it.State())
	assert.Equal(t, 0, it.LastStatus())
}

func TestProcessIsReusable(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "counts.yaml")
	it := tracecmd.NewIterator[eventCounts](prefixCounter{prefix: "bar_"})

	for range 2 {
		counts, err := it.Process(s)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"z": 5}, counts.byName)
	}
}

func TestProcessDeliversInTimestampOrder(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "sched.yaml")
	type seen struct {
		ts   [8]uint64
		cpus [8]int
		n    int
	}
	got, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *seen) int {
		acc.ts[acc.n] = rec.Timestamp()
		acc.cpus[acc.n] = cpu
		acc.n++
		return tracecmd.Continue
	})
	require.NoError(t, err)
	require.Equal(t, 5, got.n)
	assert.Equal(t, []uint64{1000, 1500, 2000, 2000, 3000}, got.ts[:got.n])
	assert.Equal(t, []int{0, 0, 1, 1, 0}, got.cpus[:got.n])
}

func TestProcessCPUFilter(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "sched.yaml")
	n, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		assert.Equal(t, 1, cpu)
		assert.Equal(t, 1, rec.CPU())
		*acc++
		return tracecmd.Continue
	}, tracecmd.WithCPUs(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestProcessMultiRejectsCPUFilter(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	a := openTestdata(t, eng, "sched.yaml")
	b := openTestdata(t, eng, "late.yaml")

	it := tracecmd.NewIterator[int](tracecmd.HandlerFunc[int](func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		*acc++
		return tracecmd.Continue
	}), tracecmd.WithCPUs(0))

	_, err := it.ProcessMulti([]*tracecmd.Session{a, b})
	require.ErrorIs(t, err, tracecmd.ErrCPUFilterMulti)
	assert.Equal(t, tracecmd.StateFailed, it.State())
	assert.Empty(t, eng.LastIterated())

	// The same iterator still filters a single session.
	n, err := it.Process(a)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProcessStop(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "counts.yaml")
	calls := 0
	it := tracecmd.NewIterator[int](tracecmd.HandlerFunc[int](func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		calls++
		*acc++
		if *acc == 2 {
			return tracecmd.Stop
		}
		return tracecmd.Continue
	}))

	n, err := it.Process(s)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, calls)

	code, ok := tracecmd.Status(err)
	require.True(t, ok)
	assert.Equal(t, tracecmd.Stop, code)
	assert.Equal(t, tracecmd.StateFailed, it.State())
	assert.Equal(t, tracecmd.Stop, it.LastStatus())
}

func TestProcessNativeFailureDiscardsAccumulator(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "failing.yaml")
	calls := 0
	n, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		calls++
		*acc++
		return tracecmd.Continue
	})

	var se *tracecmd.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, -5, se.Code)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, calls)
}

func TestProcessHandlerPanic(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "counts.yaml")
	calls := 0
	it := tracecmd.NewIterator[int](tracecmd.HandlerFunc[int](func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		calls++
		if calls == 3 {
			panic("boom")
		}
		return tracecmd.Continue
	}))

	assert.PanicsWithValue(t, "boom", func() { it.Process(s) })
	assert.Equal(t, 3, calls)
	assert.Equal(t, tracecmd.StateFailed, it.State())

	// The session is released and the iterator can run again.
	calls = 10
	n, err := it.Process(s)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 20, calls)
}

func TestProcessReentrant(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	s := openTestdata(t, eng, "counts.yaml")
	other := openTestdata(t, eng, "sched.yaml")

	var (
		it      *tracecmd.Iterator[int]
		nested  error
		viewErr error
	)
	it = tracecmd.NewIterator[int](tracecmd.HandlerFunc[int](func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		_, nested = it.Process(other)
		_, viewErr = tracecmd.Process(in, countRecords)
		return tracecmd.Stop
	}))

	_, err := it.Process(s)
	require.Error(t, err)
	assert.ErrorIs(t, nested, tracecmd.ErrIteratorBusy)
	assert.ErrorIs(t, viewErr, tracecmd.ErrSessionBusy)
}

func TestCloseDuringIteration(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	s := openTestdata(t, eng, "counts.yaml")

	var ownerErr, viewErr error
	_, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		assert.True(t, in.Borrowed())
		assert.Equal(t, s.Path(), in.Path())
		ownerErr = s.Close()
		viewErr = in.Close()
		return tracecmd.Stop
	})
	require.Error(t, err)
	require.ErrorIs(t, ownerErr, tracecmd.ErrSessionBusy)
	require.ErrorIs(t, viewErr, tracecmd.ErrBorrowedSession)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, eng.Closes())
}

func TestConcurrentIterationIsRefused(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "counts.yaml")
	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first := true
		_, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
			if first {
				first = false
				close(entered)
				<-release
			}
			return tracecmd.Continue
		})
		assert.NoError(t, err)
	}()

	<-entered
	_, err := tracecmd.Process(s, countRecords)
	assert.ErrorIs(t, err, tracecmd.ErrSessionBusy)
	close(release)
	wg.Wait()
}

func TestViewsExpireAfterCallback(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "sched.yaml")
	var (
		keptSession *tracecmd.Session
		keptRecord  *tracecmd.Record
		keptEvent   *tracecmd.Event
		keptField   *tracecmd.Field
	)
	_, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		ev, err := in.FindEvent(rec)
		require.NoError(t, err)
		f, err := ev.CommonField("common_pid")
		require.NoError(t, err)
		keptSession, keptRecord, keptEvent, keptField = in, rec, ev, f
		return tracecmd.Continue
	})
	require.NoError(t, err)

	_, err = keptSession.Format()
	assert.ErrorIs(t, err, tracecmd.ErrExpired)
	_, err = keptRecord.ReadField(keptField)
	assert.ErrorIs(t, err, tracecmd.ErrExpired)
	_, err = keptEvent.Field("prev_pid")
	assert.ErrorIs(t, err, tracecmd.ErrExpired)
	_, err = keptEvent.PrintFields(keptRecord)
	assert.ErrorIs(t, err, tracecmd.ErrExpired)
	assert.Panics(t, func() { keptRecord.Timestamp() })

	// The owner is unaffected.
	_, err = s.Format()
	assert.NoError(t, err)
}

func TestAccumulatorWithLockIsRejected(t *testing.T) {
	t.Parallel()

	type locked struct {
		mu sync.Mutex
		n  int
	}
	s := openTestdata(t, newEngine(), "counts.yaml")
	calls := 0
	_, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *locked) int {
		calls++
		return tracecmd.Continue
	})
	require.ErrorIs(t, err, tracecmd.ErrAccumulatorLayout)
	assert.Contains(t, err.Error(), ".mu")
	assert.Equal(t, 0, calls)

	// The session was never marked busy.
	n, err := tracecmd.Process(s, countRecords)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestProcessMultiMergesSessions(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	a := openTestdata(t, eng, "sched.yaml")
	b := openTestdata(t, eng, "late.yaml")

	type merged struct {
		ts    [16]uint64
		paths [16]string
		n     int
	}
	got, err := tracecmd.ProcessMulti([]*tracecmd.Session{a, b}, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *merged) int {
		acc.ts[acc.n] = rec.Timestamp()
		acc.paths[acc.n] = in.Path()
		acc.n++
		return tracecmd.Continue
	})
	require.NoError(t, err)
	require.Equal(t, 8, got.n)
	assert.Equal(t, []uint64{1000, 1200, 1500, 2000, 2000, 2000, 2500, 3000}, got.ts[:got.n])
	assert.Equal(t, []string{
		"sched.yaml", "late.yaml", "sched.yaml", "sched.yaml",
		"sched.yaml", "late.yaml", "late.yaml", "sched.yaml",
	}, got.paths[:got.n])
	assert.Len(t, eng.LastIterated(), 2)
}

// orderingEngine records the timestamps it hands to the callback so a test
// can check that the bridge delivers them unchanged.
type orderingEngine struct {
	*replay.Engine
	mu        sync.Mutex
	delivered []uint64
}

func (e *orderingEngine) IterateMulti(hs []tracecmd.SessionHandle, cb tracecmd.NativeCallback, ctx unsafe.Pointer) int {
	return e.Engine.IterateMulti(hs, func(h tracecmd.SessionHandle, rec tracecmd.RecordHandle, cpu int, ctx unsafe.Pointer) int {
		e.mu.Lock()
		e.delivered = append(e.delivered, e.Timestamp(rec))
		e.mu.Unlock()
		return cb(h, rec, cpu, ctx)
	}, ctx)
}

func TestProcessMultiDoesNotReorder(t *testing.T) {
	t.Parallel()

	eng := &orderingEngine{Engine: newEngine()}
	a := openTestdata(t, eng, "sched.yaml")
	b := openTestdata(t, eng, "late.yaml")

	type tss struct {
		ts [16]uint64
		n  int
	}
	got, err := tracecmd.ProcessMulti([]*tracecmd.Session{a, b}, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *tss) int {
		acc.ts[acc.n] = rec.Timestamp()
		acc.n++
		return tracecmd.Continue
	})
	require.NoError(t, err)
	assert.Equal(t, eng.delivered, got.ts[:got.n])
	assert.IsNonDecreasing(t, got.ts[:got.n])
}

func TestProcessMultiRejectsBadInput(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	a := openTestdata(t, eng, "sched.yaml")
	b := openTestdata(t, eng, "late.yaml")
	foreign := openTestdata(t, newEngine(), "late.yaml")

	_, err := tracecmd.ProcessMulti([]*tracecmd.Session{a, nil}, countRecords)
	assert.ErrorIs(t, err, tracecmd.ErrNilSession)

	_, err = tracecmd.ProcessMulti([]*tracecmd.Session{a, foreign}, countRecords)
	assert.ErrorIs(t, err, tracecmd.ErrMixedEngines)

	_, err = tracecmd.ProcessMulti([]*tracecmd.Session{a, a}, countRecords)
	assert.ErrorIs(t, err, tracecmd.ErrSessionBusy)

	require.NoError(t, b.Close())
	_, err = tracecmd.ProcessMulti([]*tracecmd.Session{a, b}, countRecords)
	assert.ErrorIs(t, err, tracecmd.ErrSessionClosed)

	// Every failed attempt released what it had acquired.
	n, err := tracecmd.Process(a, countRecords)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, eng.LastIterated(), 1)
}

func TestProcessMultiEmpty(t *testing.T) {
	t.Parallel()

	_, err := tracecmd.ProcessMulti(nil, countRecords)
	require.ErrorIs(t, err, tracecmd.ErrNilEngine)

	eng := newEngine()
	n, err := tracecmd.ProcessMulti(nil, countRecords, tracecmd.WithEngine(eng))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, eng.LastIterated())
}

func TestProcessMetricsAndSpans(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	s := openTestdata(t, newEngine(), "counts.yaml")
	_, err := tracecmd.Process(s, countRecords,
		tracecmd.WithMeter(mp.Meter("test")),
		tracecmd.WithTracer(tp.Tracer("test")),
		tracecmd.WithContext(context.Background()))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(10), sums["tracecmd.records.total"])
	assert.Equal(t, int64(1), sums["tracecmd.iterations.total"])

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "tracecmd.process", ended[0].Name())
}
