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

//go:build !cgo || !libtracecmd

package libtracecmd

import (
	"log/slog"

	"github.com/google/libtracecmd-go/tracecmd"
)

// New always fails in builds without libtracecmd.
func New(logger *slog.Logger) (tracecmd.Engine, error) {
	return nil, ErrUnavailable
}
