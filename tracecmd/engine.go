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
	"bytes"
	"errors"
	"fmt"
	"unsafe"
)

// Opaque handles into memory owned by an Engine.  The zero value is the
// null handle.
type (
	SessionHandle uintptr
	FormatHandle  uintptr
	RecordHandle  uintptr
	EventHandle   uintptr
	FieldHandle   uintptr
)

// NativeCallback is invoked by an Engine once per record while iterating.
// ctx is the pointer passed to Iterate or IterateMulti, unchanged.
type NativeCallback func(h SessionHandle, rec RecordHandle, cpu int, ctx unsafe.Pointer) int

// EventInfo is the static part of an event format.  Name and System are
// the engine's raw bytes and have not been checked for valid UTF-8.
type EventInfo struct {
	ID     int
	Name   string
	System string
}

// FieldInfo describes where a field lives inside a record's data.
type FieldInfo struct {
	Name   string
	Offset int
	Size   int
	Signed bool
}

// Engine is the contract with the capture engine.  Every method mirrors
// one native entry point; none of them retain Go memory past the call
// except that Iterate and IterateMulti pass ctx back to cb.
//
// Engines are not required to be safe for concurrent use on the same
// session handle.
type Engine interface {
	// Open returns 0 if the file cannot be opened or parsed.
	Open(path string, flags int) SessionHandle
	Close(h SessionHandle)

	// Format returns 0 if the session has no event format database.
	Format(h SessionHandle) FormatHandle
	EventByRecord(f FormatHandle, rec RecordHandle) EventHandle
	EventInfo(e EventHandle) EventInfo
	PID(f FormatHandle, rec RecordHandle) int32
	Timestamp(rec RecordHandle) uint64

	FindField(e EventHandle, name string) FieldHandle
	FindCommonField(e EventHandle, name string) FieldHandle
	FieldInfo(fd FieldHandle) FieldInfo
	ReadNumberField(fd FieldHandle, rec RecordHandle) (uint64, bool)

	// FieldValue and CommonFieldValue return a nonzero status on failure
	// and may describe the failure in seq.
	FieldValue(seq *Seq, e EventHandle, name string, rec RecordHandle) (uint64, int)
	CommonFieldValue(seq *Seq, e EventHandle, name string, rec RecordHandle) (uint64, int)
	PrintFields(seq *Seq, e EventHandle, rec RecordHandle)

	// Iterate walks all records of h, or only those of cpus when cpus is
	// non-empty, stopping early when cb returns nonzero.
	Iterate(h SessionHandle, cpus []int, cb NativeCallback, ctx unsafe.Pointer) int
	IterateMulti(hs []SessionHandle, cb NativeCallback, ctx unsafe.Pointer) int
}

type seqState int

const (
	seqUninitialized seqState = iota
	seqReady
	seqTerminated
)

var errSeqNotReady = errors.New("trace seq written outside init/terminate")

// Seq is the scratch buffer engines write diagnostic text into.  Callers
// Init and Reset it before each engine call and Terminate it afterwards;
// writes outside that window fail.
type Seq struct {
	buf   bytes.Buffer
	state seqState
}

func (s *Seq) Init() {
	s.buf = bytes.Buffer{}
	s.state = seqReady
}

func (s *Seq) Reset() {
	s.buf.Reset()
	if s.state == seqTerminated {
		s.state = seqReady
	}
}

func (s *Seq) Terminate() {
	s.state = seqTerminated
}

func (s *Seq) Write(p []byte) (int, error) {
	if s.state != seqReady {
		return 0, errSeqNotReady
	}
	return s.buf.Write(p)
}

func (s *Seq) Printf(format string, args ...any) {
	fmt.Fprintf(s, format, args...)
}

func (s *Seq) Len() int {
	return s.buf.Len()
}

func (s *Seq) String() string {
	return s.buf.String()
}

// run brackets one engine call with the init/reset/terminate sequence.
func (s *Seq) run(call func(*Seq)) string {
	if s.state == seqUninitialized {
		s.Init()
	}
	s.Reset()
	call(s)
	s.Terminate()
	return s.String()
}
