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
	"sync/atomic"
)

// scope is the lifetime of one handler invocation.  Every view created
// during the invocation points at it and is dead once it ends.
type scope struct {
	ended atomic.Bool
}

func (sc *scope) live() bool {
	return !sc.ended.Load()
}

func (sc *scope) end() {
	sc.ended.Store(true)
}

func (sc *scope) mustBeLive(what string) {
	if !sc.live() {
		panic(fmt.Sprintf("tracecmd: %s: %v", what, ErrExpired))
	}
}

// Record is one trace sample, borrowed for the duration of a handler call.
type Record struct {
	session *Session
	h       RecordHandle
	cpu     int
	scope   *scope
}

// Timestamp returns the record's timestamp.  It panics if the handler
// that received the record has returned.
func (r *Record) Timestamp() uint64 {
	r.scope.mustBeLive("Record.Timestamp")
	return r.session.engine.Timestamp(r.h)
}

func (r *Record) CPU() int {
	return r.cpu
}

// ReadField decodes f's numeric value from this record's data.
func (r *Record) ReadField(f *Field) (uint64, error) {
	if !r.scope.live() || !f.event.scope.live() {
		return 0, ErrExpired
	}
	v, ok := r.session.engine.ReadNumberField(f.h, r.h)
	if !ok {
		return 0, &FieldReadError{Field: f.name}
	}
	return v, nil
}
