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

//go:build cgo && libtracecmd

package libtracecmd

/*
#cgo pkg-config: libtracecmd libtraceevent
#cgo CFLAGS: -D_GNU_SOURCE
#include <sched.h>
#include <stdint.h>
#include <stdlib.h>
#include <trace-cmd.h>
#include <event-parse.h>

extern int goTracecmdRecord(struct tracecmd_input *, struct tep_record *, int, uintptr_t);

static int record_callback(struct tracecmd_input *h, struct tep_record *r, int cpu, void *data)
{
	return goTracecmdRecord(h, r, cpu, (uintptr_t)data);
}

// Handles cross into Go as uintptr_t; everything that dereferences them
// lives on this side.

static void close_input(uintptr_t h)
{
	tracecmd_close((struct tracecmd_input *)h);
}

static uintptr_t input_tep(uintptr_t h)
{
	return (uintptr_t)tracecmd_get_tep((struct tracecmd_input *)h);
}

static unsigned long long record_ts(uintptr_t r)
{
	return ((struct tep_record *)r)->ts;
}

static uintptr_t event_by_record(uintptr_t tep, uintptr_t r)
{
	return (uintptr_t)tep_find_event_by_record((struct tep_handle *)tep, (struct tep_record *)r);
}

static int record_pid(uintptr_t tep, uintptr_t r)
{
	return tep_data_pid((struct tep_handle *)tep, (struct tep_record *)r);
}

static const char *event_name(uintptr_t e) { return ((struct tep_event *)e)->name; }
static const char *event_system(uintptr_t e) { return ((struct tep_event *)e)->system; }
static int event_id(uintptr_t e) { return ((struct tep_event *)e)->id; }

static uintptr_t find_field(uintptr_t e, const char *name, int common)
{
	struct tep_event *ev = (struct tep_event *)e;
	if (common)
		return (uintptr_t)tep_find_common_field(ev, name);
	return (uintptr_t)tep_find_field(ev, name);
}

static const char *field_name(uintptr_t f) { return ((struct tep_format_field *)f)->name; }
static int field_offset(uintptr_t f) { return ((struct tep_format_field *)f)->offset; }
static int field_size(uintptr_t f) { return ((struct tep_format_field *)f)->size; }

static int field_signed(uintptr_t f)
{
	return (((struct tep_format_field *)f)->flags & TEP_FIELD_IS_SIGNED) != 0;
}

// read_number_field returns 0 on success, like tep_read_number_field.
static int read_number_field(uintptr_t f, uintptr_t r, unsigned long long *val)
{
	struct tep_record *rec = (struct tep_record *)r;
	return tep_read_number_field((struct tep_format_field *)f, rec->data, val);
}

static int field_val(struct trace_seq *s, uintptr_t e, const char *name, uintptr_t r,
		     unsigned long long *val, int common)
{
	struct tep_event *ev = (struct tep_event *)e;
	struct tep_record *rec = (struct tep_record *)r;
	if (common)
		return tep_get_common_field_val(s, ev, name, rec, val, 1);
	return tep_get_field_val(s, ev, name, rec, val, 1);
}

static void print_fields(struct trace_seq *s, uintptr_t e, uintptr_t r)
{
	tep_record_print_fields(s, (struct tep_record *)r, (struct tep_event *)e);
}

static int iterate(uintptr_t h, int *cpus, int ncpus, uintptr_t ctx)
{
	cpu_set_t *set = NULL;
	size_t size = 0;
	int max = -1;
	int i, ret;

	for (i = 0; i < ncpus; i++)
		if (cpus[i] > max)
			max = cpus[i];
	if (max >= 0) {
		set = CPU_ALLOC(max + 1);
		if (!set)
			return -1;
		size = CPU_ALLOC_SIZE(max + 1);
		CPU_ZERO_S(size, set);
		for (i = 0; i < ncpus; i++)
			if (cpus[i] >= 0)
				CPU_SET_S(cpus[i], size, set);
	}

	ret = tracecmd_iterate_events((struct tracecmd_input *)h, set, (int)size,
				      record_callback, (void *)ctx);
	if (set)
		CPU_FREE(set);
	return ret;
}

static int iterate_multi(uintptr_t *hs, int n, uintptr_t ctx)
{
	return tracecmd_iterate_events_multi((struct tracecmd_input **)hs, n,
					     record_callback, (void *)ctx);
}
*/
import "C"

import (
	"log/slog"
	"runtime/cgo"
	"unsafe"

	"github.com/google/libtracecmd-go/tracecmd"
)

// Engine calls into libtracecmd.  Handles are the library's own pointers.
type Engine struct {
	logger *slog.Logger
}

var _ tracecmd.Engine = (*Engine)(nil)

func New(logger *slog.Logger) (tracecmd.Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}, nil
}

func (e *Engine) Open(path string, flags int) tracecmd.SessionHandle {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	h := C.tracecmd_open(cpath, C.int(flags))
	if h == nil {
		e.logger.Debug("tracecmd_open failed", "path", path)
		return 0
	}
	return tracecmd.SessionHandle(uintptr(unsafe.Pointer(h)))
}

func (e *Engine) Close(h tracecmd.SessionHandle) {
	C.close_input(C.uintptr_t(h))
}

func (e *Engine) Format(h tracecmd.SessionHandle) tracecmd.FormatHandle {
	return tracecmd.FormatHandle(C.input_tep(C.uintptr_t(h)))
}

func (e *Engine) EventByRecord(f tracecmd.FormatHandle, rec tracecmd.RecordHandle) tracecmd.EventHandle {
	return tracecmd.EventHandle(C.event_by_record(C.uintptr_t(f), C.uintptr_t(rec)))
}

func (e *Engine) EventInfo(ev tracecmd.EventHandle) tracecmd.EventInfo {
	h := C.uintptr_t(ev)
	return tracecmd.EventInfo{
		ID:     int(C.event_id(h)),
		Name:   goString(C.event_name(h)),
		System: goString(C.event_system(h)),
	}
}

func (e *Engine) PID(f tracecmd.FormatHandle, rec tracecmd.RecordHandle) int32 {
	return int32(C.record_pid(C.uintptr_t(f), C.uintptr_t(rec)))
}

func (e *Engine) Timestamp(rec tracecmd.RecordHandle) uint64 {
	return uint64(C.record_ts(C.uintptr_t(rec)))
}

func (e *Engine) FindField(ev tracecmd.EventHandle, name string) tracecmd.FieldHandle {
	return findField(ev, name, false)
}

func (e *Engine) FindCommonField(ev tracecmd.EventHandle, name string) tracecmd.FieldHandle {
	return findField(ev, name, true)
}

func findField(ev tracecmd.EventHandle, name string, common bool) tracecmd.FieldHandle {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return tracecmd.FieldHandle(C.find_field(C.uintptr_t(ev), cname, cbool(common)))
}

func (e *Engine) FieldInfo(fd tracecmd.FieldHandle) tracecmd.FieldInfo {
	h := C.uintptr_t(fd)
	return tracecmd.FieldInfo{
		Name:   goString(C.field_name(h)),
		Offset: int(C.field_offset(h)),
		Size:   int(C.field_size(h)),
		Signed: C.field_signed(h) != 0,
	}
}

func (e *Engine) ReadNumberField(fd tracecmd.FieldHandle, rec tracecmd.RecordHandle) (uint64, bool) {
	var val C.ulonglong
	if C.read_number_field(C.uintptr_t(fd), C.uintptr_t(rec), &val) != 0 {
		return 0, false
	}
	return uint64(val), true
}

func (e *Engine) FieldValue(seq *tracecmd.Seq, ev tracecmd.EventHandle, name string, rec tracecmd.RecordHandle) (uint64, int) {
	return fieldValue(seq, ev, name, rec, false)
}

func (e *Engine) CommonFieldValue(seq *tracecmd.Seq, ev tracecmd.EventHandle, name string, rec tracecmd.RecordHandle) (uint64, int) {
	return fieldValue(seq, ev, name, rec, true)
}

func fieldValue(seq *tracecmd.Seq, ev tracecmd.EventHandle, name string, rec tracecmd.RecordHandle, common bool) (uint64, int) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var val C.ulonglong
	var status C.int
	e.withTraceSeq(seq, func(s *C.struct_trace_seq) {
		status = C.field_val(s, C.uintptr_t(ev), cname, C.uintptr_t(rec), &val, cbool(common))
	})
	return uint64(val), int(status)
}

func (e *Engine) PrintFields(seq *tracecmd.Seq, ev tracecmd.EventHandle, rec tracecmd.RecordHandle) {
	e.withTraceSeq(seq, func(s *C.struct_trace_seq) {
		C.print_fields(s, C.uintptr_t(ev), C.uintptr_t(rec))
	})
}

// withTraceSeq runs call against a fresh native trace_seq and copies what
// it wrote into seq.
func (e *Engine) withTraceSeq(seq *tracecmd.Seq, call func(*C.struct_trace_seq)) {
	var s C.struct_trace_seq
	C.trace_seq_init(&s)
	defer C.trace_seq_destroy(&s)

	C.trace_seq_reset(&s)
	call(&s)
	C.trace_seq_terminate(&s)

	if s.len > 0 {
		copyDiagnostic(e.logger, seq, C.GoBytes(unsafe.Pointer(s.buffer), C.int(s.len)))
	}
}

// iteration is what the native ctx pointer refers to, through a cgo.Handle.
type iteration struct {
	cb  tracecmd.NativeCallback
	ctx unsafe.Pointer
}

func (e *Engine) Iterate(h tracecmd.SessionHandle, cpus []int, cb tracecmd.NativeCallback, ctx unsafe.Pointer) int {
	ch := cgo.NewHandle(&iteration{cb: cb, ctx: ctx})
	defer ch.Delete()

	var ccpus []C.int
	for _, c := range cpus {
		ccpus = append(ccpus, C.int(c))
	}
	var p *C.int
	if len(ccpus) > 0 {
		p = &ccpus[0]
	}
	return int(C.iterate(C.uintptr_t(h), p, C.int(len(ccpus)), C.uintptr_t(ch)))
}

func (e *Engine) IterateMulti(hs []tracecmd.SessionHandle, cb tracecmd.NativeCallback, ctx unsafe.Pointer) int {
	ch := cgo.NewHandle(&iteration{cb: cb, ctx: ctx})
	defer ch.Delete()

	handles := make([]C.uintptr_t, len(hs))
	for i, h := range hs {
		handles[i] = C.uintptr_t(h)
	}
	var p *C.uintptr_t
	if len(handles) > 0 {
		p = &handles[0]
	}
	return int(C.iterate_multi(p, C.int(len(handles)), C.uintptr_t(ch)))
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
