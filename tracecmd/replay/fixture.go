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

package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// A fixture is one replayable trace file:
//
//	events:
//	  - system: sched
//	    format: |
//	      name: sched_switch
//	      ID: 316
//	      format:
//	        field:unsigned short common_type; offset:0; size:2; signed:0;
//	        field:int common_pid; offset:4; size:4; signed:1;
//	        field:char prev_comm[16]; offset:8; size:16; signed:0;
//	records:
//	  - {cpu: 0, ts: 1000, event: sched_switch, fields: {common_pid: 7, prev_comm: bash}}
//	  - {cpu: 1, ts: 1010, id: 999}
//
// A record names its event or gives a raw id (which need not exist).
// fail_status makes iteration return that status after fail_after records;
// no_format makes the session report no format database.
type fixture struct {
	Events     []fixtureEvent  `yaml:"events"`
	Records    []fixtureRecord `yaml:"records"`
	FailStatus int             `yaml:"fail_status"`
	FailAfter  int             `yaml:"fail_after"`
	NoFormat   bool            `yaml:"no_format"`
}

type fixtureEvent struct {
	System string `yaml:"system"`
	Format string `yaml:"format"`
}

type fixtureRecord struct {
	CPU    int            `yaml:"cpu"`
	TS     uint64         `yaml:"ts"`
	Event  string         `yaml:"event"`
	ID     *int           `yaml:"id"`
	Fields map[string]any `yaml:"fields"`
}

const fixtureSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["format"],
        "properties": {
          "system": {"type": "string"},
          "format": {"type": "string", "minLength": 1}
        }
      }
    },
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["ts"],
        "properties": {
          "cpu": {"type": "integer", "minimum": 0},
          "ts": {"type": "integer", "minimum": 0},
          "event": {"type": "string"},
          "id": {"type": "integer", "minimum": 0, "maximum": 65535},
          "fields": {"type": "object"}
        },
        "oneOf": [
          {"required": ["event"]},
          {"required": ["id"]}
        ]
      }
    },
    "fail_status": {"type": "integer"},
    "fail_after": {"type": "integer", "minimum": 0},
    "no_format": {"type": "boolean"}
  }
}`

var fixtureSchemaLoader = gojsonschema.NewStringLoader(fixtureSchema)

var BadFixture = errors.New("bad trace fixture")

// trace is a loaded fixture: parsed formats and encoded records.
type trace struct {
	events     map[int]*eventType
	records    []*record
	failStatus int
	failAfter  int
	noFormat   bool
}

type record struct {
	cpu  int
	ts   uint64
	data []byte
}

func parseFixture(data []byte) (*trace, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", BadFixture, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	result, err := gojsonschema.Validate(fixtureSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", BadFixture, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", BadFixture, strings.Join(msgs, "; "))
	}

	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("%w: %v", BadFixture, err)
	}
	return fx.build()
}

func (fx *fixture) build() (*trace, error) {
	t := &trace{
		events:     make(map[int]*eventType, len(fx.Events)),
		failStatus: fx.FailStatus,
		failAfter:  fx.FailAfter,
		noFormat:   fx.NoFormat,
	}
	byName := make(map[string]*eventType, len(fx.Events))

	for _, e := range fx.Events {
		etype, err := parseEventType(e.System, e.Format)
		if err != nil {
			return nil, err
		}
		if t.events[etype.id] != nil {
			return nil, fmt.Errorf("%w: event id %d already exists", BadFixture, etype.id)
		}
		t.events[etype.id] = etype
		byName[etype.name] = etype
	}

	for i, r := range fx.Records {
		rec := &record{cpu: r.CPU, ts: r.TS}
		switch {
		case r.Event != "":
			etype := byName[r.Event]
			if etype == nil {
				return nil, fmt.Errorf("%w: record %d: unknown event %s", BadFixture, i, r.Event)
			}
			data, err := etype.encode(r.Fields)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %v", BadFixture, i, err)
			}
			rec.data = data
		default:
			rec.data = make([]byte, commonTypeSize)
			order.PutUint16(rec.data, uint16(*r.ID))
		}
		t.records = append(t.records, rec)
	}

	return t, nil
}
