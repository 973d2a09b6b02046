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
	"log/slog"
	"reflect"
	"sync"
	"unsafe"
)

// signalAbort is returned to the engine when the bridge itself has to stop
// iteration.
const signalAbort = -1

// region is the untyped view of the accumulator that crosses the engine
// boundary.  data always points at a Go-allocated A, so the collector
// still sees any pointers inside it.
type region struct {
	size uintptr
	data unsafe.Pointer
}

// newRegion allocates the accumulator at its empty value.
func newRegion[A any]() *region {
	acc := new(A)
	if r, ok := any(acc).(interface{ Reset() }); ok {
		r.Reset()
	}
	return &region{size: unsafe.Sizeof(*acc), data: unsafe.Pointer(acc)}
}

func loadRegion[A any](r *region) A {
	return *(*A)(r.data)
}

// bridge turns native callbacks into Handler calls.
type bridge[A any] struct {
	handler  Handler[A]
	sessions map[SessionHandle]*Session
	logger   *slog.Logger
	size     uintptr

	records  int64
	fault    error
	panicked bool
	panicVal any
}

func newBridge[A any](h Handler[A], sessions []*Session, logger *slog.Logger) *bridge[A] {
	var zero A
	b := &bridge[A]{
		handler:  h,
		sessions: make(map[SessionHandle]*Session, len(sessions)),
		logger:   logger,
		size:     unsafe.Sizeof(zero),
	}
	for _, s := range sessions {
		b.sessions[s.h] = s
	}
	return b
}

// trampoline is the NativeCallback registered with the engine.  It copies
// the accumulator out of the region, runs the handler on the typed copy,
// copies it back and returns the handler's signal unchanged.
func (b *bridge[A]) trampoline(h SessionHandle, rh RecordHandle, cpu int, ctx unsafe.Pointer) int {
	if b.panicked || b.fault != nil {
		return signalAbort
	}

	reg := (*region)(ctx)
	if reg == nil || reg.data == nil || reg.size != b.size {
		b.fault = ErrRegionMismatch
		return signalAbort
	}
	owner, ok := b.sessions[h]
	if !ok {
		b.fault = fmt.Errorf("%w: handle %#x", ErrUnknownSession, uintptr(h))
		return signalAbort
	}

	sc := &scope{}
	defer sc.end()

	in := owner.borrow(sc)
	rec := &Record{session: in, h: rh, cpu: cpu, scope: sc}

	acc := *(*A)(reg.data)
	signal, ok := b.call(in, rec, cpu, &acc)
	if !ok {
		return signalAbort
	}
	*(*A)(reg.data) = acc

	b.records++
	return signal
}

// call runs the handler, keeping a panic from unwinding through the
// engine's frames.
func (b *bridge[A]) call(in *Session, rec *Record, cpu int, acc *A) (signal int, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			b.panicked = true
			b.panicVal = v
			b.logger.Warn("trace handler panicked; stopping iteration",
				"path", in.path, "cpu", cpu, "panic", v)
			signal, ok = signalAbort, false
		}
	}()
	return b.handler.Callback(in, rec, cpu, acc), true
}

var layoutCache sync.Map // reflect.Type -> error

// checkLayout reports whether values of A can be duplicated by plain
// assignment.  It rejects types that hold a lock by value, using the same
// rule as vet's copylocks check.
func checkLayout[A any]() error {
	t := reflect.TypeFor[A]()
	if err, ok := layoutCache.Load(t); ok {
		if err == nil {
			return nil
		}
		return err.(error)
	}

	var err error
	if path := lockPath(t, t.String(), map[reflect.Type]bool{}); path != "" {
		err = fmt.Errorf("%w: %s holds a lock at %s", ErrAccumulatorLayout, t, path)
	}
	if err == nil {
		layoutCache.Store(t, nil)
	} else {
		layoutCache.Store(t, err)
	}
	return err
}

func lockPath(t reflect.Type, path string, seen map[reflect.Type]bool) string {
	if seen[t] {
		return ""
	}
	seen[t] = true

	pt := reflect.PointerTo(t)
	if _, ok := pt.MethodByName("Lock"); ok {
		if _, ok := pt.MethodByName("Unlock"); ok && t.Kind() == reflect.Struct {
			return path
		}
	}

	switch t.Kind() {
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if p := lockPath(f.Type, path+"."+f.Name, seen); p != "" {
				return p
			}
		}
	case reflect.Array:
		if t.Len() > 0 {
			return lockPath(t.Elem(), path+"[0]", seen)
		}
	}
	return ""
}
