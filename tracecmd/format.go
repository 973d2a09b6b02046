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
	"unicode/utf8"
)

// Format maps records to event descriptors.  It is a view of its Session
// and fails with ErrSessionClosed once the Session is closed.
type Format struct {
	session *Session
	h       FormatHandle
}

// ResolveEvent looks up the event format of rec.
func (f *Format) ResolveEvent(rec *Record) (*Event, error) {
	if err := f.session.check(); err != nil {
		return nil, err
	}
	if !rec.scope.live() {
		return nil, ErrExpired
	}

	e := f.session.engine.EventByRecord(f.h, rec.h)
	if e == 0 {
		return nil, &EventLookupError{CPU: rec.cpu, Timestamp: rec.Timestamp()}
	}

	info := f.session.engine.EventInfo(e)
	if !utf8.ValidString(info.Name) {
		return nil, &EncodingError{What: "event name", Raw: info.Name}
	}
	if !utf8.ValidString(info.System) {
		return nil, &EncodingError{What: "event system", Raw: info.System}
	}

	return &Event{
		format: f,
		h:      e,
		id:     info.ID,
		name:   info.Name,
		system: info.System,
		scope:  rec.scope,
	}, nil
}

// PID decodes the common pid of rec.  There is no failure signal; when the
// field is missing the engine's sentinel is returned as is.  PID panics if
// rec has expired or the session is closed.
func (f *Format) PID(rec *Record) int32 {
	rec.scope.mustBeLive("Format.PID")
	if err := f.session.check(); err != nil {
		panic("tracecmd: Format.PID: " + err.Error())
	}
	return f.session.engine.PID(f.h, rec.h)
}
