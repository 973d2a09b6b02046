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

package tracecmd

import (
	"log/slog"
	"runtime"
	"strings"
	"sync"
)

// openFlags is the only flag value passed to the engine's open call.
const openFlags = 0

// Session is an open trace file.  The Session returned by Open owns the
// engine's session handle and must be closed exactly once; the Session a
// handler receives is a borrowed view of it and cannot be closed.
type Session struct {
	engine Engine
	h      SessionHandle
	path   string
	logger *slog.Logger
	state  *sessionState

	// scope is nil for the owning Session.
	scope *scope

	cleanup runtime.Cleanup
}

// sessionState is shared by an owning Session and its borrowed views.  It
// must never point back at the owner, or the cleanup would never run.
type sessionState struct {
	mu     sync.Mutex
	closed bool
	busy   bool
}

type sessionCloser struct {
	engine Engine
	h      SessionHandle
	path   string
	logger *slog.Logger
	state  *sessionState
}

// Open opens the trace file at path through engine.
func Open(engine Engine, path string, opts ...Option) (*Session, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if path == "" {
		return nil, &OpenError{Path: path, Reason: "empty path"}
	}
	if strings.IndexByte(path, 0) != -1 {
		return nil, &OpenError{Path: path, Reason: "path contains a NUL byte"}
	}

	o := newOptions(opts)

	h := engine.Open(path, openFlags)
	if h == 0 {
		return nil, &OpenError{Path: path}
	}

	s := &Session{
		engine: engine,
		h:      h,
		path:   path,
		logger: o.logger,
		state:  &sessionState{},
	}
	s.cleanup = runtime.AddCleanup(s, reclaimSession, sessionCloser{
		engine: engine,
		h:      h,
		path:   path,
		logger: o.logger,
		state:  s.state,
	})

	o.logger.Debug("opened trace session", "path", path)
	return s, nil
}

// reclaimSession closes the handle of a Session that became unreachable
// without Close.
func reclaimSession(c sessionCloser) {
	c.state.mu.Lock()
	closed := c.state.closed
	c.state.closed = true
	c.state.mu.Unlock()
	if closed {
		return
	}
	c.logger.Warn("trace session was not closed; closing it", "path", c.path)
	c.engine.Close(c.h)
}

// Close releases the engine's session.  Only the first call reaches the
// engine; later calls return nil.  Closing a session that is being
// iterated fails with ErrSessionBusy.
func (s *Session) Close() error {
	if s == nil {
		return ErrNilSession
	}
	if s.scope != nil {
		return ErrBorrowedSession
	}

	s.state.mu.Lock()
	if s.state.busy {
		s.state.mu.Unlock()
		return ErrSessionBusy
	}
	if s.state.closed {
		s.state.mu.Unlock()
		return nil
	}
	s.state.closed = true
	s.state.mu.Unlock()

	s.cleanup.Stop()
	s.engine.Close(s.h)
	s.logger.Debug("closed trace session", "path", s.path)
	return nil
}

func (s *Session) Path() string {
	return s.path
}

// Borrowed reports whether s is a view handed to a handler.
func (s *Session) Borrowed() bool {
	return s.scope != nil
}

// Format returns the session's event format handle.
func (s *Session) Format() (*Format, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	f := s.engine.Format(s.h)
	if f == 0 {
		return nil, ErrNoFormat
	}
	return &Format{session: s, h: f}, nil
}

// FindEvent resolves the event of rec.  It is Format followed by
// ResolveEvent.
func (s *Session) FindEvent(rec *Record) (*Event, error) {
	f, err := s.Format()
	if err != nil {
		return nil, err
	}
	return f.ResolveEvent(rec)
}

func (s *Session) check() error {
	if s == nil {
		return ErrNilSession
	}
	if s.scope != nil && !s.scope.live() {
		return ErrExpired
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return ErrSessionClosed
	}
	return nil
}

// acquire marks s as being iterated.
func (s *Session) acquire() error {
	if s == nil {
		return ErrNilSession
	}
	if s.scope != nil {
		if !s.scope.live() {
			return ErrExpired
		}
		// A view's owner is already being iterated.
		return ErrSessionBusy
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return ErrSessionClosed
	}
	if s.state.busy {
		return ErrSessionBusy
	}
	s.state.busy = true
	return nil
}

func (s *Session) release() {
	s.state.mu.Lock()
	s.state.busy = false
	s.state.mu.Unlock()
}

// borrow returns a view of s that is valid while sc is live.
func (s *Session) borrow(sc *scope) *Session {
	return &Session{
		engine: s.engine,
		h:      s.h,
		path:   s.path,
		logger: s.logger,
		state:  s.state,
		scope:  sc,
	}
}
