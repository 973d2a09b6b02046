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

// Package replay is a tracecmd.Engine that serves records from YAML trace
// fixtures instead of trace.dat files.  It behaves like libtracecmd where
// the wrapper can observe it: records come out in timestamp order, a
// nonzero callback return stops iteration and becomes the result, and
// lookups fail the same way.
package replay

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"unsafe"

	"github.com/google/libtracecmd-go/tracecmd"
)

// Status returned by Iterate for a handle that is not open.
const StatusBadHandle = -1

// pidSentinel is what PID returns when a record has no common_pid.
const pidSentinel = -1

type Engine struct {
	fp     FileProvider
	logger *slog.Logger

	mu       sync.Mutex
	sessions []*session
	records  []*sessionRecord
	events   []*eventType
	eventIDs map[*eventType]tracecmd.EventHandle
	fields   []fieldRef
	fieldIDs map[fieldRef]tracecmd.FieldHandle

	opens        int
	closes       int
	badCloses    int
	lastOpenErr  error
	lastIterated []tracecmd.SessionHandle
}

type session struct {
	path   string
	trace  *trace
	open   bool
	recIDs []tracecmd.RecordHandle
}

type sessionRecord struct {
	session tracecmd.SessionHandle
	*record
}

type fieldRef struct {
	event *eventType
	index int
}

var _ tracecmd.Engine = (*Engine)(nil)

// New returns an engine that opens fixtures through fp.
func New(fp FileProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		fp:       fp,
		logger:   logger,
		eventIDs: make(map[*eventType]tracecmd.EventHandle),
		fieldIDs: make(map[fieldRef]tracecmd.FieldHandle),
	}
}

// NewFromFixtures returns an engine over in-memory fixtures keyed by path.
func NewFromFixtures(files map[string]string) *Engine {
	return New(NewMemFileProvider(files), nil)
}

func (e *Engine) Open(path string, flags int) tracecmd.SessionHandle {
	data, err := e.fp.ReadTraceFile(path)
	if err == nil {
		var t *trace
		t, err = parseFixture(data)
		if err == nil {
			return e.addSession(path, t)
		}
	}

	e.mu.Lock()
	e.lastOpenErr = err
	e.mu.Unlock()
	e.logger.Debug("replay open failed", "path", path, "error", err)
	return 0
}

func (e *Engine) addSession(path string, t *trace) tracecmd.SessionHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &session{path: path, trace: t, open: true}
	e.sessions = append(e.sessions, s)
	h := tracecmd.SessionHandle(len(e.sessions))

	for _, r := range t.records {
		e.records = append(e.records, &sessionRecord{session: h, record: r})
		s.recIDs = append(s.recIDs, tracecmd.RecordHandle(len(e.records)))
	}
	e.opens++
	return h
}

func (e *Engine) Close(h tracecmd.SessionHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(h)
	if s == nil || !s.open {
		e.badCloses++
		return
	}
	s.open = false
	e.closes++
}

func (e *Engine) Format(h tracecmd.SessionHandle) tracecmd.FormatHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(h)
	if s == nil || !s.open || s.trace.noFormat {
		return 0
	}
	// One format database per session.
	return tracecmd.FormatHandle(h)
}

func (e *Engine) EventByRecord(f tracecmd.FormatHandle, rh tracecmd.RecordHandle) tracecmd.EventHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(tracecmd.SessionHandle(f))
	r := e.record(rh)
	if s == nil || r == nil || len(r.data) < commonTypeSize {
		return 0
	}
	etype := s.trace.events[int(order.Uint16(r.data))]
	if etype == nil {
		return 0
	}
	return e.eventHandle(etype)
}

func (e *Engine) EventInfo(eh tracecmd.EventHandle) tracecmd.EventInfo {
	etype := e.event(eh)
	if etype == nil {
		return tracecmd.EventInfo{}
	}
	return tracecmd.EventInfo{ID: etype.id, Name: etype.name, System: etype.system}
}

func (e *Engine) PID(f tracecmd.FormatHandle, rh tracecmd.RecordHandle) int32 {
	eh := e.EventByRecord(f, rh)
	etype := e.event(eh)
	r := e.lockedRecord(rh)
	if etype == nil || r == nil {
		return pidSentinel
	}
	i := etype.findField("common_pid", true)
	if i == -1 {
		return pidSentinel
	}
	return int32(etype.fields[i].decodeInt(r.data))
}

func (e *Engine) Timestamp(rh tracecmd.RecordHandle) uint64 {
	r := e.lockedRecord(rh)
	if r == nil {
		return 0
	}
	return r.ts
}

func (e *Engine) FindField(eh tracecmd.EventHandle, name string) tracecmd.FieldHandle {
	return e.findField(eh, name, false)
}

func (e *Engine) FindCommonField(eh tracecmd.EventHandle, name string) tracecmd.FieldHandle {
	return e.findField(eh, name, true)
}

func (e *Engine) findField(eh tracecmd.EventHandle, name string, common bool) tracecmd.FieldHandle {
	etype := e.event(eh)
	if etype == nil {
		return 0
	}
	i := etype.findField(name, common)
	if i == -1 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ref := fieldRef{event: etype, index: i}
	if fh, ok := e.fieldIDs[ref]; ok {
		return fh
	}
	e.fields = append(e.fields, ref)
	fh := tracecmd.FieldHandle(len(e.fields))
	e.fieldIDs[ref] = fh
	return fh
}

func (e *Engine) FieldInfo(fh tracecmd.FieldHandle) tracecmd.FieldInfo {
	f := e.field(fh)
	if f == nil {
		return tracecmd.FieldInfo{}
	}
	return tracecmd.FieldInfo{Name: f.name, Offset: f.offset, Size: f.size, Signed: f.signed}
}

func (e *Engine) ReadNumberField(fh tracecmd.FieldHandle, rh tracecmd.RecordHandle) (uint64, bool) {
	f := e.field(fh)
	r := e.lockedRecord(rh)
	if f == nil || r == nil {
		return 0, false
	}
	return f.readNumber(r.data)
}

func (e *Engine) FieldValue(seq *tracecmd.Seq, eh tracecmd.EventHandle, name string, rh tracecmd.RecordHandle) (uint64, int) {
	return e.fieldValue(seq, eh, name, rh, false)
}

func (e *Engine) CommonFieldValue(seq *tracecmd.Seq, eh tracecmd.EventHandle, name string, rh tracecmd.RecordHandle) (uint64, int) {
	return e.fieldValue(seq, eh, name, rh, true)
}

func (e *Engine) fieldValue(seq *tracecmd.Seq, eh tracecmd.EventHandle, name string, rh tracecmd.RecordHandle, common bool) (uint64, int) {
	fh := e.findField(eh, name, common)
	if fh == 0 {
		seq.Printf("<CANT FIND FIELD %s>", name)
		return 0, -1
	}
	v, ok := e.ReadNumberField(fh, rh)
	if !ok {
		seq.Printf(" %s=INVALID", name)
		return 0, -1
	}
	return v, 0
}

func (e *Engine) PrintFields(seq *tracecmd.Seq, eh tracecmd.EventHandle, rh tracecmd.RecordHandle) {
	etype := e.event(eh)
	r := e.lockedRecord(rh)
	if etype == nil || r == nil {
		return
	}
	for i := range etype.fields {
		f := &etype.fields[i]
		if f.common() {
			continue
		}
		seq.Printf(" %s=%s", f.name, f.String(r.data))
	}
}

func (e *Engine) Iterate(h tracecmd.SessionHandle, cpus []int, cb tracecmd.NativeCallback, ctx unsafe.Pointer) int {
	e.mu.Lock()
	s := e.session(h)
	if s == nil || !s.open {
		e.mu.Unlock()
		return StatusBadHandle
	}
	ids := slices.Clone(s.recIDs)
	e.lastIterated = []tracecmd.SessionHandle{h}
	e.mu.Unlock()

	if len(cpus) > 0 {
		ids = slices.DeleteFunc(ids, func(id tracecmd.RecordHandle) bool {
			return !slices.Contains(cpus, e.lockedRecord(id).cpu)
		})
	}
	return e.deliver(ids, []tracecmd.SessionHandle{h}, []*session{s}, cb, ctx)
}

func (e *Engine) IterateMulti(hs []tracecmd.SessionHandle, cb tracecmd.NativeCallback, ctx unsafe.Pointer) int {
	e.mu.Lock()
	var (
		ids      []tracecmd.RecordHandle
		sessions []*session
	)
	for _, h := range hs {
		s := e.session(h)
		if s == nil || !s.open {
			e.mu.Unlock()
			return StatusBadHandle
		}
		ids = append(ids, s.recIDs...)
		sessions = append(sessions, s)
	}
	e.lastIterated = slices.Clone(hs)
	e.mu.Unlock()

	return e.deliver(ids, hs, sessions, cb, ctx)
}

// deliver sorts ids into timestamp order and feeds them to cb.  Ties are
// broken by the session's position in hs, then cpu, then position in the
// fixture.
func (e *Engine) deliver(ids []tracecmd.RecordHandle, hs []tracecmd.SessionHandle, sessions []*session, cb tracecmd.NativeCallback, ctx unsafe.Pointer) int {
	rank := make(map[tracecmd.SessionHandle]int, len(hs))
	for i, h := range hs {
		if _, ok := rank[h]; !ok {
			rank[h] = i
		}
	}

	recs := make([]*sessionRecord, len(ids))
	for i, id := range ids {
		recs[i] = e.lockedRecord(id)
	}
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		ra, rb := recs[a], recs[b]
		switch {
		case ra.ts != rb.ts:
			return cmp.Compare(ra.ts, rb.ts)
		case ra.session != rb.session:
			return cmp.Compare(rank[ra.session], rank[rb.session])
		default:
			return cmp.Compare(ra.cpu, rb.cpu)
		}
	})

	failStatus, failAfter := 0, 0
	for _, s := range sessions {
		if s.trace.failStatus != 0 {
			failStatus, failAfter = s.trace.failStatus, s.trace.failAfter
			break
		}
	}

	for n, i := range idx {
		if failStatus != 0 && n >= failAfter {
			return failStatus
		}
		r := recs[i]
		if ret := cb(r.session, ids[i], r.cpu, ctx); ret != 0 {
			return ret
		}
	}
	return failStatus
}

// Opens returns how many sessions were opened successfully.
func (e *Engine) Opens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

// Closes returns how many open sessions were closed.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// BadCloses counts Close calls on unknown or already closed handles.
func (e *Engine) BadCloses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.badCloses
}

func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens - e.closes
}

// LastOpenError explains the most recent failed Open.
func (e *Engine) LastOpenError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOpenErr
}

// LastIterated returns the handles passed to the last Iterate or
// IterateMulti call.
func (e *Engine) LastIterated() []tracecmd.SessionHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.lastIterated)
}

// The helpers below expect e.mu to be held unless their name says
// otherwise.

func (e *Engine) session(h tracecmd.SessionHandle) *session {
	if h == 0 || int(h) > len(e.sessions) {
		return nil
	}
	return e.sessions[h-1]
}

func (e *Engine) record(rh tracecmd.RecordHandle) *sessionRecord {
	if rh == 0 || int(rh) > len(e.records) {
		return nil
	}
	return e.records[rh-1]
}

func (e *Engine) lockedRecord(rh tracecmd.RecordHandle) *sessionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record(rh)
}

func (e *Engine) eventHandle(etype *eventType) tracecmd.EventHandle {
	if eh, ok := e.eventIDs[etype]; ok {
		return eh
	}
	e.events = append(e.events, etype)
	eh := tracecmd.EventHandle(len(e.events))
	e.eventIDs[etype] = eh
	return eh
}

func (e *Engine) event(eh tracecmd.EventHandle) *eventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	if eh == 0 || int(eh) > len(e.events) {
		return nil
	}
	return e.events[eh-1]
}

func (e *Engine) field(fh tracecmd.FieldHandle) *eventField {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fh == 0 || int(fh) > len(e.fields) {
		return nil
	}
	ref := e.fields[fh-1]
	return &ref.event.fields[ref.index]
}
