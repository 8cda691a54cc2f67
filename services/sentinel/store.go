// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"log/slog"
	"sync"
	"time"
)

// ===== Session =====

// Session serializes access to one InvestigationState. Each tool call runs
// to completion under the session lock before the next begins, so two
// in-flight calls can never interleave on the same state, while separate
// sessions proceed independently.
type Session struct {
	mu    sync.Mutex
	state InvestigationState

	// persist, when set, snapshots the state after every successful
	// Update. Failures are logged and swallowed: losing a snapshot must
	// not fail the investigation.
	persist func(state *InvestigationState) error
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// Update runs fn with exclusive access to the state. When fn succeeds the
// state's UpdatedAt is bumped and the snapshot hook runs; when fn fails the
// mutation is still visible (fn owns its own atomicity) but no snapshot is
// taken and the error is returned unchanged.
func (s *Session) Update(fn func(state *InvestigationState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.state); err != nil {
		return err
	}
	s.state.UpdatedAt = time.Now().UTC()
	if s.persist != nil {
		if err := s.persist(&s.state); err != nil {
			slog.Warn("Session snapshot failed",
				"session_id", s.state.SessionID,
				"error", err)
		}
	}
	return nil
}

// View runs fn with shared read access to the state. fn must not retain or
// mutate the state.
func (s *Session) View(fn func(state *InvestigationState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// ===== Store =====

// Store hands out per-session state. Implementations create a session on
// first access so callers never need a separate "begin" step.
type Store interface {
	// Session returns the session with the given id, creating an empty
	// one if it does not exist yet.
	Session(id string) (*Session, error)

	// Close releases any persistence resources.
	Close() error
}

// MemoryStore keeps sessions in process memory only. It is the fallback
// when no snapshot directory is configured and the default for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Session returns the named session, creating it on first access.
func (m *MemoryStore) Session(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	sess = &Session{state: InvestigationState{SessionID: id}}
	m.sessions[id] = sess
	return sess, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
