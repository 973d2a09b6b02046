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
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Signals a handler can return.  Any other value is passed to the engine
// as is.
const (
	Continue = 0
	Stop     = 1
)

// Handler processes one record and folds it into acc.
type Handler[A any] interface {
	Callback(in *Session, rec *Record, cpu int, acc *A) int
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[A any] func(in *Session, rec *Record, cpu int, acc *A) int

func (f HandlerFunc[A]) Callback(in *Session, rec *Record, cpu int, acc *A) int {
	return f(in, rec, cpu, acc)
}

type State int

const (
	StateIdle State = iota
	StateIterating
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Iterator runs a Handler over one or more sessions.  An Iterator can be
// reused once a run has finished but never runs twice at the same time.
type Iterator[A any] struct {
	handler Handler[A]
	opts    options
	metrics *iterMetrics

	mu     sync.Mutex
	state  State
	status int
}

func NewIterator[A any](h Handler[A], opts ...Option) *Iterator[A] {
	o := newOptions(opts)
	return &Iterator[A]{
		handler: h,
		opts:    o,
		metrics: newIterMetrics(o.meter, o.logger),
	}
}

// State returns the state of the current or last run.
func (it *Iterator[A]) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// LastStatus returns the engine status of the last run, 0 unless it
// ended in StateFailed.
func (it *Iterator[A]) LastStatus() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.status
}

// Process iterates over every record of s.  On success it returns the
// final accumulator.  A nonzero engine status is returned as a
// *StatusError and no accumulator is produced.
func (it *Iterator[A]) Process(s *Session) (A, error) {
	return it.run([]*Session{s}, false)
}

// ProcessMulti iterates over the merged records of sessions in the order
// the engine delivers them.  All sessions must come from the same engine.
// An empty slice is handed as is to the engine set with WithEngine, which
// defines what iterating zero sessions means.
func (it *Iterator[A]) ProcessMulti(sessions []*Session) (A, error) {
	return it.run(sessions, true)
}

func (it *Iterator[A]) run(sessions []*Session, multi bool) (A, error) {
	var zero A

	if err := it.begin(); err != nil {
		return zero, err
	}

	code, acc, err := it.iterate(sessions, multi)
	if err != nil {
		it.finish(StateFailed, 0)
		return zero, err
	}
	if code != 0 {
		it.finish(StateFailed, code)
		return zero, &StatusError{Code: code}
	}
	it.finish(StateCompleted, 0)
	return acc, nil
}

func (it *Iterator[A]) begin() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == StateIterating {
		return ErrIteratorBusy
	}
	it.state = StateIterating
	it.status = 0
	return nil
}

func (it *Iterator[A]) finish(state State, status int) {
	it.mu.Lock()
	it.state = state
	it.status = status
	it.mu.Unlock()
}

func (it *Iterator[A]) iterate(sessions []*Session, multi bool) (int, A, error) {
	var zero A

	if err := checkLayout[A](); err != nil {
		return 0, zero, err
	}
	if multi && len(it.opts.cpus) > 0 {
		return 0, zero, ErrCPUFilterMulti
	}

	engine, err := acquireAll(sessions, it.opts.engine)
	if err != nil {
		return 0, zero, err
	}
	defer releaseAll(sessions)

	op := "process"
	if multi {
		op = "process_multi"
	}
	ctx, span := it.opts.tracer.Start(it.opts.ctx, "tracecmd."+op,
		trace.WithAttributes(attribute.Int("tracecmd.sessions", len(sessions))))
	defer span.End()

	b := newBridge(it.handler, sessions, it.opts.logger)
	reg := newRegion[A]()

	it.opts.logger.Debug("starting trace iteration", "op", op, "sessions", len(sessions))
	start := time.Now()

	var code int
	if !multi {
		code = engine.Iterate(sessions[0].h, it.opts.cpus, b.trampoline, unsafe.Pointer(reg))
	} else {
		handles := make([]SessionHandle, len(sessions))
		for i, s := range sessions {
			handles[i] = s.h
		}
		code = engine.IterateMulti(handles, b.trampoline, unsafe.Pointer(reg))
	}
	runtime.KeepAlive(reg)
	runtime.KeepAlive(sessions)

	elapsed := time.Since(start)
	it.metrics.record(ctx, op, code, b.records, elapsed)
	span.SetAttributes(
		attribute.Int64("tracecmd.records", b.records),
		attribute.Int("tracecmd.status", code),
	)
	it.opts.logger.Debug("finished trace iteration",
		"op", op, "records", b.records, "status", code, "elapsed", elapsed)

	if b.panicked {
		span.SetStatus(codes.Error, "handler panicked")
		it.finish(StateFailed, code)
		panic(b.panicVal)
	}
	if b.fault != nil {
		span.SetStatus(codes.Error, b.fault.Error())
		return 0, zero, b.fault
	}
	if code != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", code))
		return code, zero, nil
	}
	return 0, loadRegion[A](reg), nil
}

// acquireAll marks every session busy and returns their common engine.
// fallback is used when there are no sessions.
func acquireAll(sessions []*Session, fallback Engine) (Engine, error) {
	var engine Engine
	for i, s := range sessions {
		if s == nil {
			releaseAll(sessions[:i])
			return nil, ErrNilSession
		}
		if engine == nil {
			engine = s.engine
		} else if s.engine != engine {
			releaseAll(sessions[:i])
			return nil, ErrMixedEngines
		}
		if err := s.acquire(); err != nil {
			releaseAll(sessions[:i])
			return nil, fmt.Errorf("session %s: %w", s.path, err)
		}
	}
	if engine == nil {
		if fallback == nil {
			return nil, ErrNilEngine
		}
		return fallback, nil
	}
	return engine, nil
}

func releaseAll(sessions []*Session) {
	for _, s := range sessions {
		if s != nil && s.scope == nil {
			s.release()
		}
	}
}

// Process runs fn over every record of s.
func Process[A any](s *Session, fn HandlerFunc[A], opts ...Option) (A, error) {
	return NewIterator[A](fn, opts...).Process(s)
}

// ProcessMulti runs fn over the merged records of sessions.
func ProcessMulti[A any](sessions []*Session, fn HandlerFunc[A], opts ...Option) (A, error) {
	return NewIterator[A](fn, opts...).ProcessMulti(sessions)
}
