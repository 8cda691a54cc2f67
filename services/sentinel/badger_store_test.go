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
	"strings"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// openTestStore returns a BadgerStore backed by an in-memory database that
// is closed automatically when the test finishes.
func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore(BadgerStoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return store
}

func TestBadgerStoreFreshSessionIsEmpty(t *testing.T) {
	store := openTestStore(t)

	sess, err := store.Session("sess-a")
	if err != nil {
		t.Fatalf("Session error: %v", err)
	}
	sess.View(func(st *InvestigationState) error {
		if got := st.Stage(); got != StageEmpty {
			t.Errorf("fresh session stage = %q, want %q", got, StageEmpty)
		}
		if st.SessionID != "sess-a" {
			t.Errorf("session id = %q, want %q", st.SessionID, "sess-a")
		}
		return nil
	})
}

func TestBadgerStoreReturnsSameLiveSession(t *testing.T) {
	store := openTestStore(t)

	first, _ := store.Session("sess-a")
	second, _ := store.Session("sess-a")
	if first != second {
		t.Error("second access returned a different session object; lock identity broken")
	}
}

func TestBadgerStoreSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)

	sess, _ := store.Session("sess-a")
	err := sess.Update(func(st *InvestigationState) error {
		st.SetPlan([]string{"payments"}, []QuerySpec{
			{ID: "q1", Purpose: "Failed payments", SQLText: "SELECT 1", Priority: PriorityCritical},
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	// Drop the live session and force a reload from the snapshot.
	store.mu.Lock()
	delete(store.sessions, "sess-a")
	store.mu.Unlock()

	reloaded, err := store.Session("sess-a")
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	reloaded.View(func(st *InvestigationState) error {
		if len(st.Queries) != 1 || st.Queries[0].ID != "q1" {
			t.Errorf("reloaded queries = %+v, want the planned q1", st.Queries)
		}
		if got := st.Stage(); got != StagePlanned {
			t.Errorf("reloaded stage = %q, want %q", got, StagePlanned)
		}
		if got := st.FocusAreas; len(got) != 1 || got[0] != "payments" {
			t.Errorf("reloaded focus areas = %v, want [payments]", got)
		}
		return nil
	})
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenBadgerStore(BadgerStoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	sess, _ := store.Session("sess-a")
	err = sess.Update(func(st *InvestigationState) error {
		st.SetPlan(nil, []QuerySpec{{ID: "q1", SQLText: "SELECT 1"}})
		st.SetResults([]QueryResult{{QueryID: "q1", RowCount: 4}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	reopened, err := OpenBadgerStore(BadgerStoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	sess, err = reopened.Session("sess-a")
	if err != nil {
		t.Fatalf("Session after reopen error: %v", err)
	}
	sess.View(func(st *InvestigationState) error {
		if got := st.Stage(); got != StageExecuted {
			t.Errorf("stage after reopen = %q, want %q", got, StageExecuted)
		}
		if len(st.QueryResults) != 1 || st.QueryResults[0].RowCount != 4 {
			t.Errorf("results after reopen = %+v", st.QueryResults)
		}
		return nil
	})
}

func TestBadgerStoreCorruptSnapshotFails(t *testing.T) {
	store := openTestStore(t)

	err := store.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(sessionKeyPrefix+"sess-bad"), []byte("{not json"))
	})
	if err != nil {
		t.Fatalf("seeding corrupt snapshot: %v", err)
	}

	_, err = store.Session("sess-bad")
	if err == nil {
		t.Fatal("corrupt snapshot silently ignored")
	}
	if !strings.Contains(err.Error(), "decoding session") {
		t.Errorf("error = %v, want a decode failure", err)
	}
}

func TestBadgerStoreSessionIDFromKeyWins(t *testing.T) {
	store := openTestStore(t)

	err := store.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(sessionKeyPrefix+"sess-a"), []byte(`{"session_id":"stale-name"}`))
	})
	if err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}

	sess, err := store.Session("sess-a")
	if err != nil {
		t.Fatalf("Session error: %v", err)
	}
	if got := sess.ID(); got != "sess-a" {
		t.Errorf("session id = %q, want key identity %q", got, "sess-a")
	}
}
