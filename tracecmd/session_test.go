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

package tracecmd_test

import (
	"bytes"
	"errors"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/libtracecmd-go/tracecmd"
	"github.com/google/libtracecmd-go/tracecmd/replay"
)

func newEngine() *replay.Engine {
	return replay.New(replay.NewLocalFileProvider("testdata"), nil)
}

func openTestdata(t *testing.T, eng tracecmd.Engine, name string, opts ...tracecmd.Option) *tracecmd.Session {
	t.Helper()

	s, err := tracecmd.Open(eng, name, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	s, err := tracecmd.Open(eng, "sched.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sched.yaml", s.Path())
	assert.False(t, s.Borrowed())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, eng.Opens())
	assert.Equal(t, 1, eng.Closes())
	assert.Equal(t, 0, eng.BadCloses())
	assert.Equal(t, 0, eng.Live())
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	s, err := tracecmd.Open(eng, "does-not-exist.yaml")
	assert.Nil(t, s)
	require.ErrorIs(t, err, tracecmd.ErrOpen)

	var oe *tracecmd.OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "does-not-exist.yaml", oe.Path)
	assert.ErrorIs(t, eng.LastOpenError(), replay.NoSuchTraceFile)
	assert.Equal(t, 0, eng.Opens())
}

func TestOpenRejectsBadPaths(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	for _, path := range []string{"", "sched\x00.yaml"} {
		s, err := tracecmd.Open(eng, path)
		assert.Nil(t, s)
		require.ErrorIs(t, err, tracecmd.ErrOpen, "path %q", path)

		var oe *tracecmd.OpenError
		require.ErrorAs(t, err, &oe)
		assert.NotEmpty(t, oe.Reason)
	}
	assert.Equal(t, 0, eng.Opens())
}

func TestOpenNilEngine(t *testing.T) {
	t.Parallel()

	_, err := tracecmd.Open(nil, "sched.yaml")
	assert.ErrorIs(t, err, tracecmd.ErrNilEngine)
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	eng := newEngine()
	s := openTestdata(t, eng, "sched.yaml")
	require.NoError(t, s.Close())

	_, err := s.Format()
	require.ErrorIs(t, err, tracecmd.ErrSessionClosed)

	_, err = tracecmd.Process(s, countRecords)
	require.ErrorIs(t, err, tracecmd.ErrSessionClosed)
	assert.Equal(t, 0, eng.BadCloses())
}

func TestNoFormat(t *testing.T) {
	t.Parallel()

	s := openTestdata(t, newEngine(), "noformat.yaml")
	_, err := s.Format()
	require.ErrorIs(t, err, tracecmd.ErrNoFormat)

	n, err := tracecmd.Process(s, func(in *tracecmd.Session, rec *tracecmd.Record, cpu int, acc *int) int {
		if _, err := in.FindEvent(rec); errors.Is(err, tracecmd.ErrNoFormat) {
			*acc++
		}
		return tracecmd.Continue
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnclosedSessionIsReclaimed(t *testing.T) {
	eng := newEngine()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	func() {
		_, err := tracecmd.Open(eng, "sched.yaml", tracecmd.WithLogger(logger))
		require.NoError(t, err)
	}()
	require.Equal(t, 1, eng.Live())

	assert.Eventually(t, func() bool {
		runtime.GC()
		return eng.Live() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, eng.Closes())
	assert.Equal(t, 0, eng.BadCloses())
	assert.Contains(t, logs.String(), "trace session was not closed")
}

func TestCloseBeforeCollectionSkipsCleanup(t *testing.T) {
	eng := newEngine()
	func() {
		s, err := tracecmd.Open(eng, "sched.yaml")
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}()

	for range 3 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, eng.Closes())
	assert.Equal(t, 0, eng.BadCloses())
}

func TestOpenLogs(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := openTestdata(t, newEngine(), "sched.yaml", tracecmd.WithLogger(logger))
	require.NoError(t, s.Close())

	assert.Contains(t, logs.String(), `"msg":"opened trace session"`)
	assert.Contains(t, logs.String(), `"msg":"closed trace session"`)
	assert.Contains(t, logs.String(), `"path":"sched.yaml"`)
}
