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

//go:build cgo && libtracecmd

package libtracecmd

/*
#include <stdint.h>
#include <trace-cmd.h>
#include <event-parse.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/google/libtracecmd-go/tracecmd"
)

// goTracecmdRecord is the callback libtracecmd runs for every record.  It
// is kept apart from the C helpers because a file with //export may only
// declare C functions.
//
//export goTracecmdRecord
func goTracecmdRecord(h *C.struct_tracecmd_input, rec *C.struct_tep_record, cpu C.int, ctx C.uintptr_t) C.int {
	it := cgo.Handle(ctx).Value().(*iteration)
	return C.int(it.cb(
		tracecmd.SessionHandle(uintptr(unsafe.Pointer(h))),
		tracecmd.RecordHandle(uintptr(unsafe.Pointer(rec))),
		int(cpu),
		it.ctx))
}
