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
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const commonPrefix = "common_"

var order = binary.LittleEndian

type eventType struct {
	name   string
	system string
	id     int
	fields []eventField
	size   int
}

type eventField struct {
	name   string
	size   int
	offset int
	signed bool
	array  bool
	ftype  string
}

func (f *eventField) common() bool {
	return strings.HasPrefix(f.name, commonPrefix)
}

var BadFormat = errors.New("bad event format")

// parseEventType reads an event description in the syntax of the tracefs
// events/<system>/<event>/format files.
func parseEventType(system, format string) (*eventType, error) {
	etype := &eventType{system: system, id: -1}
	if err := etype.parseFormatData(format); err != nil {
		return nil, err
	}
	if etype.name == "" {
		return nil, fmt.Errorf("%w: missing name", BadFormat)
	}
	if etype.id < 0 {
		return nil, fmt.Errorf("%w: event %s has no ID", BadFormat, etype.name)
	}
	for _, f := range etype.fields {
		if etype.size < f.offset+f.size {
			etype.size = f.offset + f.size
		}
	}
	return etype, nil
}

func (etype *eventType) parseFormatData(format string) (err error) {
	lineNum := 0

	for format != "" {
		lineNum++

		eol := strings.IndexRune(format, '\n')
		if eol == -1 {
			eol = len(format)
		}

		line := format[:eol]
		if eol < len(format) {
			format = format[eol+1:]
		} else {
			format = ""
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		colon := strings.IndexRune(line, ':')
		if colon == -1 {
			return fmt.Errorf("%w: missing ':' on line %d", BadFormat, lineNum)
		}

		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		switch key {
		case "name":
			etype.name = value
		case "format", "print fmt":
			// ignored
			continue
		case "ID":
			etype.id, err = strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: line %d: %v", BadFormat, lineNum, err)
			}
		case "field":
			err = etype.parseField(value)
			if err != nil {
				return fmt.Errorf("%w: line %d: %v", BadFormat, lineNum, err)
			}
		default:
			return fmt.Errorf("%w: unexpected key %s on line %d", BadFormat, key, lineNum)
		}
	}

	return nil
}

// Takes a line containing everything following "field:" and adds it to the field list of the event
func (etype *eventType) parseField(line string) (err error) {
	var field eventField

	s := strings.Split(line, ";")
	decl := strings.TrimSpace(s[0])

	lastSpace := strings.LastIndex(decl, " ")
	if lastSpace == -1 {
		return errors.New("missing field type and name")
	}
	field.ftype = decl[:lastSpace]
	field.name = decl[lastSpace+1:]

	bracket := strings.IndexRune(field.name, '[')
	if bracket != -1 {
		endBracket := strings.IndexRune(field.name, ']')
		if endBracket == -1 || endBracket < bracket {
			return errors.New("expected ']' after '['")
		}
		field.array = true
		field.name = field.name[:bracket]
	}

	for _, f := range s[1:] {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		colon := strings.IndexRune(f, ':')
		if colon == -1 {
			return fmt.Errorf("missing ':' in field entry %s", f)
		}

		key := strings.TrimSpace(f[0:colon])
		value := strings.TrimSpace(f[colon+1:])
		switch key {
		case "offset":
			field.offset, err = strconv.Atoi(value)
		case "size":
			field.size, err = strconv.Atoi(value)
		case "signed":
			field.signed, err = strconv.ParseBool(value)
		default:
			err = fmt.Errorf("unknown field entry %s", key)
		}
		if err != nil {
			return err
		}
	}

	if field.offset < 0 {
		return errors.New("a negative field offset is not valid")
	}
	if field.size <= 0 {
		return errors.New("field size must be positive")
	}
	if etype.getFieldNum(field.name) != -1 {
		return fmt.Errorf("duplicate field %s", field.name)
	}

	etype.fields = append(etype.fields, field)
	return nil
}

func (etype *eventType) getFieldNum(name string) int {
	for i, f := range etype.fields {
		if f.name == name {
			return i
		}
	}
	return -1
}

// findField returns the field name if its commonness matches common.
func (etype *eventType) findField(name string, common bool) int {
	i := etype.getFieldNum(name)
	if i == -1 || etype.fields[i].common() != common {
		return -1
	}
	return i
}

// encode lays values out as the kernel would: each numeric field in little
// endian at its offset, char arrays NUL padded.  common_type is always the
// event id.
func (etype *eventType) encode(values map[string]any) ([]byte, error) {
	data := make([]byte, max(etype.size, commonTypeSize))
	order.PutUint16(data, uint16(etype.id))

	for name, v := range values {
		i := etype.getFieldNum(name)
		if i == -1 {
			return nil, fmt.Errorf("event %s has no field %s", etype.name, name)
		}
		if err := etype.fields[i].put(data, v); err != nil {
			return nil, fmt.Errorf("event %s: %w", etype.name, err)
		}
	}
	return data, nil
}

const commonTypeSize = 2

func (f *eventField) put(data []byte, v any) error {
	dst := data[f.offset : f.offset+f.size]
	if s, ok := v.(string); ok {
		if !f.array {
			return fmt.Errorf("field %s is not a char array", f.name)
		}
		if len(s) >= f.size {
			return fmt.Errorf("string too long for field %s", f.name)
		}
		copy(dst, s)
		return nil
	}

	var u uint64
	switch n := v.(type) {
	case int:
		u = uint64(n)
	case int64:
		u = uint64(n)
	case uint64:
		u = n
	case float64:
		u = uint64(int64(n))
	default:
		return fmt.Errorf("field %s: unsupported value %v (%T)", f.name, v, v)
	}

	switch f.size {
	case 1:
		dst[0] = byte(u)
	case 2:
		order.PutUint16(dst, uint16(u))
	case 4:
		order.PutUint32(dst, uint32(u))
	case 8:
		order.PutUint64(dst, u)
	default:
		return fmt.Errorf("field %s: cannot store a number in %d bytes", f.name, f.size)
	}
	return nil
}

// readNumber mirrors the engine's numeric decode: only 1, 2, 4 and 8 byte
// fields that fit in data are numbers.
func (f *eventField) readNumber(data []byte) (uint64, bool) {
	if f.offset+f.size > len(data) {
		return 0, false
	}
	contents := data[f.offset : f.offset+f.size]
	switch f.size {
	case 1:
		return uint64(contents[0]), true
	case 2:
		return uint64(order.Uint16(contents)), true
	case 4:
		return uint64(order.Uint32(contents)), true
	case 8:
		return order.Uint64(contents), true
	default:
		return 0, false
	}
}

func (f *eventField) decodeInt(data []byte) int64 {
	u, _ := f.readNumber(data)
	switch f.size {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

func (f *eventField) String(data []byte) string {
	if f.array && f.ftype == "char" {
		if f.offset+f.size > len(data) {
			return ""
		}
		s := string(data[f.offset : f.offset+f.size])
		if zero := strings.IndexByte(s, 0); zero != -1 {
			s = s[:zero]
		}
		return s
	}
	if f.signed {
		return strconv.FormatInt(f.decodeInt(data), 10)
	}
	u, ok := f.readNumber(data)
	if !ok {
		return "ARRAY[]"
	}
	return strconv.FormatUint(u, 10)
}
