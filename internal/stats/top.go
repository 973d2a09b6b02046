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
	"cmp"
	"slices"
	"strings"

	"github.com/google/libtracecmd-go/tracecmd"
)

// Counts accumulates per-event record counts.
type Counts struct {
	// Events maps event name, with the prefix stripped, to its count.
	Events map[string]uint64
	// Total counts every record that passed the prefix filter.
	Total uint64
	// Unresolved counts records whose event could not be looked up.
	Unresolved uint64
}

func (c *Counts) Reset() {
	c.Events = map[string]uint64{}
}

// Entry is one line of a top-N listing.
type Entry struct {
	Rank  int    `json:"rank"`
	Event string `json:"event"`
	Count uint64 `json:"count"`
}

// Top returns the n most frequent events, most frequent first.  Equal
// counts are ordered by descending name.
func (c *Counts) Top(n int) []Entry {
	entries := make([]Entry, 0, len(c.Events))
	for name, count := range c.Events {
		entries = append(entries, Entry{Event: name, Count: count})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if r := cmp.Compare(b.Count, a.Count); r != 0 {
			return r
		}
		return strings.Compare(b.Event, a.Event)
	})

	entries = entries[:min(n, len(entries))]
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// TopHandler counts records by event name.  When Prefix is set, events
// whose name does not start with it are skipped and the prefix is removed
// from the counted name.
type TopHandler struct {
	Prefix string
}

func (h TopHandler) Callback(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *Counts) int {
	ev, err := in.FindEvent(rec)
	if err != nil {
		acc.Unresolved++
		return tracecmd.Continue
	}

	name, ok := strings.CutPrefix(ev.Name(), h.Prefix)
	if !ok {
		return tracecmd.Continue
	}
	acc.Events[name]++
	acc.Total++
	return tracecmd.Continue
}
