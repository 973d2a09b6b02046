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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// FileProvider reads fixture files by name.
type FileProvider interface {
	ReadTraceFile(name string) ([]byte, error)
}

var BadTraceFileName = errors.New("bad trace file name")
var NoSuchTraceFile = errors.New("no such trace file")

var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

type localFileProvider struct {
	root string
}

// NewLocalFileProvider reads fixtures from disk.  Relative names are
// resolved against root; an empty root means the working directory.
func NewLocalFileProvider(root string) FileProvider {
	return &localFileProvider{root: root}
}

func (fp *localFileProvider) ReadTraceFile(name string) ([]byte, error) {
	if !SafeTracePath(name) {
		return nil, BadTraceFileName
	}
	if fp.root != "" && !filepath.IsAbs(name) {
		name = filepath.Join(fp.root, name)
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", NoSuchTraceFile, name)
	}
	if err != nil {
		return nil, err
	}
	return maybeDecompress(data)
}

type memFileProvider struct {
	files map[string]string
}

// NewMemFileProvider serves fixtures from memory, keyed by name.
func NewMemFileProvider(files map[string]string) FileProvider {
	return &memFileProvider{files: files}
}

func (fp *memFileProvider) ReadTraceFile(name string) ([]byte, error) {
	if !SafeTracePath(name) {
		return nil, BadTraceFileName
	}
	data, ok := fp.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", NoSuchTraceFile, name)
	}
	return maybeDecompress([]byte(data))
}

// maybeDecompress inflates lz4 frames and passes anything else through.
func maybeDecompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, lz4Magic) {
		return data, nil
	}
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 fixture: %w", err)
	}
	return out, nil
}

// SafeTracePath rejects names that climb out of the provider's root.
func SafeTracePath(path string) bool {
	if path == "" || strings.IndexByte(path, 0) != -1 {
		return false
	}
	for _, d := range strings.Split(filepath.ToSlash(path), "/") {
		if d == ".." {
			return false
		}
	}
	return true
}
