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

package libtracecmd

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/google/libtracecmd-go/tracecmd"
)

func TestCopyDiagnostic(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	var seq tracecmd.Seq
	seq.Init()
	copyDiagnostic(logger, &seq, []byte("<CANT FIND FIELD x>"))
	assert.Equal(t, "<CANT FIND FIELD x>", seq.String())
	assert.Empty(t, logs.String())

	seq.Terminate()
	copyDiagnostic(logger, &seq, []byte(" y=INVALID"))
	assert.Equal(t, "<CANT FIND FIELD x>", seq.String())
	assert.Contains(t, logs.String(), "trace_seq diagnostic not delivered")
	assert.Contains(t, logs.String(), "y=INVALID")
}

func TestCopyDiagnosticUninitialised(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	var seq tracecmd.Seq
	copyDiagnostic(logger, &seq, []byte("lost"))
	assert.Contains(t, logs.String(), "text=lost")

	logs.Reset()
	copyDiagnostic(logger, &seq, nil)
	assert.Empty(t, logs.String())
}
