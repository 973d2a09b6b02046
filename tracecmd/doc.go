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

/*
Package tracecmd iterates over the records of trace-cmd capture files
(trace.dat) and folds them into a caller-defined accumulator.

The file format, the event format database and the record encoding all
belong to the capture engine.  This package only drives it through the
Engine interface, which is implemented by the libtracecmd package (cgo
bindings to libtracecmd and libtraceevent) and by the replay package
(YAML fixtures, for tests and machines without the native libraries).

Basics:
Open a Session with Open(engine, path) and Close it when done.  Write a
handler with the signature

	func(in *Session, rec *Record, cpu int, acc *A) int

and pass it to Process or ProcessMulti.  The handler is called once per
record in the order the engine delivers them; it updates acc in place and
returns Continue, or a nonzero signal the engine interprets (Stop).

The Session, Record, Event and Field values a handler receives are
borrowed from the engine and are only valid until the handler returns.
Fallible methods on an expired view return ErrExpired; infallible ones
panic.  Copy out whatever must outlive the call (event names are already
Go strings and stay valid).

The accumulator crosses the engine boundary as an untyped region and is
copied into a typed value around each handler call, so A must be safe to
copy by value.  Types that embed a sync.Mutex or another Locker are
rejected with ErrAccumulatorLayout.
*/
package tracecmd
