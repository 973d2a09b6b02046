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

// Package libtracecmd is the tracecmd.Engine backed by the trace-cmd
// libraries.  It is built only with cgo and the libtracecmd build tag:
//
//	go build -tags libtracecmd ./...
//
// pkg-config must be able to find libtracecmd and libtraceevent.  Without
// the tag, New reports ErrUnavailable.
package libtracecmd

import "errors"

var ErrUnavailable = errors.New("built without libtracecmd support (use -tags libtracecmd)")
