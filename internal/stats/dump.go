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

package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/google/libtracecmd-go/tracecmd"
)

// DumpState is the progress of a dump.  It lives outside the accumulator
// because a dump that stops early ends with a nonzero status, and the
// accumulator of such a run is discarded.
type DumpState struct {
	Lines int
	// Err is the first write error; dumping stops when it is set.
	Err error
}

// DumpHandler writes one line per record to W and counts them in State.
// It stops iteration after Limit lines when Limit is positive, and as soon
// as Ctx is done.
type DumpHandler struct {
	W     io.Writer
	Limit int
	Ctx   context.Context
	State *DumpState
}

func (h DumpHandler) Callback(in *tracecmd.Session, rec *tracecmd.Record, cpu int, _ *struct{}) int {
	if h.Ctx != nil && h.Ctx.Err() != nil {
		return tracecmd.Stop
	}

	line, err := formatRecord(in, rec, cpu)
	if err != nil {
		line = fmt.Sprintf("%s <%v>", formatPrefix(-1, cpu, rec.Timestamp(), "?"), err)
	}
	if _, err := fmt.Fprintln(h.W, line); err != nil {
		h.State.Err = err
		return tracecmd.Stop
	}

	h.State.Lines++
	if h.Limit > 0 && h.State.Lines >= h.Limit {
		return tracecmd.Stop
	}
	return tracecmd.Continue
}

func formatRecord(in *tracecmd.Session, rec *tracecmd.Record, cpu int) (string, error) {
	f, err := in.Format()
	if err != nil {
		return "", err
	}
	ev, err := f.ResolveEvent(rec)
	if err != nil {
		return "", err
	}
	fields, err := ev.PrintFields(rec)
	if err != nil {
		return "", err
	}
	return formatPrefix(f.PID(rec), cpu, rec.Timestamp(), ev.System()+":"+ev.Name()) + ":" + fields, nil
}

func formatPrefix(pid int32, cpu int, ts uint64, event string) string {
	usecs := ts / 1000
	if ts%1000 >= 500 {
		usecs++
	}
	return fmt.Sprintf("%8d [%03d] %6d.%06d: %s", pid, cpu, usecs/1e6, usecs%1e6, event)
}
