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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// sessionKeyPrefix versions the snapshot layout. Bump it when the
// InvestigationState encoding changes incompatibly; old snapshots then read
// as absent instead of half-decoding.
const sessionKeyPrefix = "session/v1/"

// defaultSessionTTL bounds how long an idle investigation survives a
// restart. Every snapshot write refreshes the TTL.
const defaultSessionTTL = 7 * 24 * time.Hour

// errSnapshotMiss distinguishes "no snapshot stored" from storage failure.
var errSnapshotMiss = errors.New("snapshot miss")

// BadgerStoreConfig configures the on-disk session store.
type BadgerStoreConfig struct {
	// Dir is the BadgerDB directory. Ignored when InMemory is set.
	Dir string

	// TTL is the idle lifetime of a session snapshot. Zero means the
	// 7-day default.
	TTL time.Duration

	// InMemory runs BadgerDB without disk persistence. Used by tests.
	InMemory bool
}

// BadgerStore is a Store whose sessions survive process restarts. Live
// sessions are held in memory for lock identity; JSON snapshots are written
// to BadgerDB after every successful update and loaded on first access
// after a restart.
//
// Snapshots are JSON rather than a binary encoding: a session state is a
// few kilobytes at most and operators inspect snapshots when debugging an
// investigation, so readability wins over compactness here.
//
// Thread Safety: safe for concurrent use. BadgerDB transactions are
// per-goroutine and the live-session map has its own lock.
type BadgerStore struct {
	db  *dgbadger.DB
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// OpenBadgerStore opens (or creates) the session database.
//
// Inputs:
//   - cfg: directory, TTL, and in-memory toggle.
//
// Outputs:
//   - *BadgerStore: ready-to-use store. Callers own Close.
//   - error: non-nil when the database cannot be opened.
func OpenBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	opts := dgbadger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sentinel: opening session database: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &BadgerStore{
		db:       db,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}, nil
}

// Session returns the named session, creating it on first access. A
// snapshot left by a previous process is loaded transparently; a corrupt or
// unreadable snapshot fails the call rather than silently starting over.
func (b *BadgerStore) Session(id string) (*Session, error) {
	b.mu.RLock()
	sess, ok := b.sessions[id]
	b.mu.RUnlock()
	if ok {
		return sess, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sess, ok := b.sessions[id]; ok {
		return sess, nil
	}

	state := InvestigationState{SessionID: id}
	err := b.loadSnapshot(id, &state)
	switch {
	case errors.Is(err, errSnapshotMiss):
		// First access: start empty.
	case err != nil:
		return nil, err
	}
	// The key is authoritative for identity even if an old snapshot
	// predates the field.
	state.SessionID = id

	sess = &Session{
		state:   state,
		persist: func(st *InvestigationState) error { return b.saveSnapshot(st) },
	}
	b.sessions[id] = sess
	return sess, nil
}

// Close flushes BadgerDB and releases the live-session map.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	b.sessions = nil
	b.mu.Unlock()
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("sentinel: closing session database: %w", err)
	}
	return nil
}

func (b *BadgerStore) loadSnapshot(id string, state *InvestigationState) error {
	key := []byte(sessionKeyPrefix + id)
	var raw []byte
	err := b.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errSnapshotMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, errSnapshotMiss) {
			return errSnapshotMiss
		}
		return fmt.Errorf("sentinel: loading session %q: %w", id, err)
	}
	if err := json.Unmarshal(raw, state); err != nil {
		return fmt.Errorf("sentinel: decoding session %q snapshot: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) saveSnapshot(state *InvestigationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("sentinel: encoding session %q snapshot: %w", state.SessionID, err)
	}
	key := []byte(sessionKeyPrefix + state.SessionID)
	err = b.db.Update(func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, raw).WithTTL(b.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("sentinel: storing session %q snapshot: %w", state.SessionID, err)
	}
	return nil
}
