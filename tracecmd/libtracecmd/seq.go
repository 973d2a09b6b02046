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
	"log/slog"

	"github.com/google/libtracecmd-go/tracecmd"
)

// copyDiagnostic appends text the library wrote into a native trace_seq to
// seq.  If seq does not accept it, the text is logged instead of dropped.
func copyDiagnostic(logger *slog.Logger, seq *tracecmd.Seq, text []byte) {
	if len(text) == 0 {
		return
	}
	if _, err := seq.Write(text); err != nil {
		logger.Warn("trace_seq diagnostic not delivered", "text", string(text), "error", err)
	}
}
