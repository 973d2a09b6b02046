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
	"errors"
	"fmt"
)

// Errors reported by the wrapper operations.  The typed errors below
// unwrap to one of these.
var (
	ErrOpen          = errors.New("failed to open trace file")
	ErrNoFormat      = errors.New("failed to get event format handle")
	ErrEventNotFound = errors.New("failed to find event")
	ErrFieldNotFound = errors.New("failed to find field")
	ErrFieldRead     = errors.New("failed to read field")
	ErrInvalidString = errors.New("invalid string")
)

// Lifecycle errors.
var (
	ErrNilEngine         = errors.New("nil engine")
	ErrNilSession        = errors.New("nil session")
	ErrMixedEngines      = errors.New("sessions belong to different engines")
	ErrSessionClosed     = errors.New("session closed")
	ErrSessionBusy       = errors.New("session is being iterated")
	ErrBorrowedSession   = errors.New("borrowed session cannot be closed")
	ErrExpired           = errors.New("view used after its callback returned")
	ErrIteratorBusy      = errors.New("iterator is already running")
	ErrAccumulatorLayout = errors.New("accumulator type cannot be copied by value")
	ErrUnknownSession    = errors.New("engine delivered a record for an unknown session")
	ErrRegionMismatch    = errors.New("accumulator region does not match accumulator type")
	ErrCPUFilterMulti    = errors.New("cpu filter is not supported when merging sessions")
)

type OpenError struct {
	Path   string
	Reason string
}

func (e *OpenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("open %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("open %q: %s", e.Path, ErrOpen)
}

func (e *OpenError) Unwrap() error { return ErrOpen }

type EventLookupError struct {
	CPU       int
	Timestamp uint64
}

func (e *EventLookupError) Error() string {
	return fmt.Sprintf("%s for record on cpu %d at %d", ErrEventNotFound, e.CPU, e.Timestamp)
}

func (e *EventLookupError) Unwrap() error { return ErrEventNotFound }

// FieldLookupError carries the diagnostic text the engine produced, if any.
type FieldLookupError struct {
	Event      string
	Field      string
	Common     bool
	Diagnostic string
}

func (e *FieldLookupError) Error() string {
	kind := "field"
	if e.Common {
		kind = "common field"
	}
	msg := fmt.Sprintf("event %s: failed to find %s %q", e.Event, kind, e.Field)
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *FieldLookupError) Unwrap() error { return ErrFieldNotFound }

type FieldReadError struct {
	Field string
}

func (e *FieldReadError) Error() string {
	return fmt.Sprintf("%s %q", ErrFieldRead, e.Field)
}

func (e *FieldReadError) Unwrap() error { return ErrFieldRead }

type EncodingError struct {
	What string
	Raw  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrInvalidString, e.What, e.Raw)
}

func (e *EncodingError) Unwrap() error { return ErrInvalidString }

// StatusError is a nonzero status returned by the engine's iterate call.
// The code is passed through verbatim; its meaning is engine defined.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trace iteration failed with status %d", e.Code)
}

// Status returns the native iteration status carried by err, if any.
func Status(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
