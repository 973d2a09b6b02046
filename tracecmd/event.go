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
	"strings"
)

// Event is the decoded format of a record's event type.  Name, System and
// ID are copied at resolution time and stay valid; everything else follows
// the lifetime of the record it was resolved from.
type Event struct {
	format *Format
	h      EventHandle
	id     int
	name   string
	system string
	scope  *scope

	seq Seq
}

func (e *Event) Name() string {
	return e.name
}

func (e *Event) System() string {
	return e.system
}

func (e *Event) ID() int {
	return e.id
}

// Field returns the accessor of the event-specific field name.
func (e *Event) Field(name string) (*Field, error) {
	return e.field(name, false)
}

// CommonField returns the accessor of a field shared by all events, such
// as common_pid.
func (e *Event) CommonField(name string) (*Field, error) {
	return e.field(name, true)
}

func (e *Event) field(name string, common bool) (*Field, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	engine := e.format.session.engine

	var fd FieldHandle
	if common {
		fd = engine.FindCommonField(e.h, name)
	} else {
		fd = engine.FindField(e.h, name)
	}
	if fd == 0 {
		return nil, &FieldLookupError{Event: e.name, Field: name, Common: common}
	}

	info := engine.FieldInfo(fd)
	return &Field{
		event:  e,
		h:      fd,
		name:   info.Name,
		offset: info.Offset,
		size:   info.Size,
		signed: info.Signed,
		common: common,
	}, nil
}

// FieldValue looks up the field name and decodes it from rec in one step.
// Any diagnostic the engine wrote is returned in the FieldLookupError.
func (e *Event) FieldValue(rec *Record, name string) (uint64, error) {
	return e.value(rec, name, false)
}

// CommonFieldValue is FieldValue for the fields common to all events.
func (e *Event) CommonFieldValue(rec *Record, name string) (uint64, error) {
	return e.value(rec, name, true)
}

func (e *Event) value(rec *Record, name string, common bool) (uint64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	if !rec.scope.live() {
		return 0, ErrExpired
	}
	engine := e.format.session.engine

	var (
		val    uint64
		status int
	)
	diag := e.seq.run(func(seq *Seq) {
		if common {
			val, status = engine.CommonFieldValue(seq, e.h, name, rec.h)
		} else {
			val, status = engine.FieldValue(seq, e.h, name, rec.h)
		}
	})
	if status != 0 {
		return 0, &FieldLookupError{
			Event:      e.name,
			Field:      name,
			Common:     common,
			Diagnostic: strings.TrimSpace(diag),
		}
	}
	return val, nil
}

// PrintFields renders every field of the event as decoded from rec.  It
// is a debugging aid.
func (e *Event) PrintFields(rec *Record) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	if !rec.scope.live() {
		return "", ErrExpired
	}
	engine := e.format.session.engine
	return e.seq.run(func(seq *Seq) {
		engine.PrintFields(seq, e.h, rec.h)
	}), nil
}

func (e *Event) check() error {
	if !e.scope.live() {
		return ErrExpired
	}
	return e.format.session.check()
}

// Field describes one field of an event.
type Field struct {
	event  *Event
	h      FieldHandle
	name   string
	offset int
	size   int
	signed bool
	common bool
}

func (f *Field) Name() string { return f.name }
func (f *Field) Offset() int  { return f.offset }
func (f *Field) Size() int    { return f.size }
func (f *Field) Signed() bool { return f.signed }
func (f *Field) Common() bool { return f.common }
