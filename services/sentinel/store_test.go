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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreCreatesOnFirstAccess(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	sess, err := store.Session("sess-a")
	if err != nil {
		t.Fatalf("Session error: %v", err)
	}
	if got := sess.ID(); got != "sess-a" {
		t.Errorf("session id = %q, want %q", got, "sess-a")
	}

	again, err := store.Session("sess-a")
	if err != nil {
		t.Fatalf("second Session error: %v", err)
	}
	if again != sess {
		t.Error("second access returned a different session object")
	}
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	a, _ := store.Session("sess-a")
	b, _ := store.Session("sess-b")

	err := a.Update(func(st *InvestigationState) error {
		st.SetPlan([]string{"inventory"}, []QuerySpec{{ID: "q1", SQLText: "SELECT 1"}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	b.View(func(st *InvestigationState) error {
		if len(st.Queries) != 0 {
			t.Errorf("session b observed session a's queries: %v", st.Queries)
		}
		if got := st.Stage(); got != StageEmpty {
			t.Errorf("session b stage = %q, want %q", got, StageEmpty)
		}
		return nil
	})
}

func TestSessionUpdateBumpsTimestampAndPersists(t *testing.T) {
	var snapshots int
	sess := &Session{
		state: InvestigationState{SessionID: "sess-a"},
		persist: func(st *InvestigationState) error {
			snapshots++
			return nil
		},
	}

	before := time.Now().UTC()
	err := sess.Update(func(st *InvestigationState) error {
		st.SetPlan(nil, []QuerySpec{{ID: "q1", SQLText: "SELECT 1"}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if snapshots != 1 {
		t.Errorf("snapshots = %d, want 1", snapshots)
	}
	sess.View(func(st *InvestigationState) error {
		if st.UpdatedAt.Before(before) {
			t.Errorf("UpdatedAt = %v, want >= %v", st.UpdatedAt, before)
		}
		return nil
	})
}

func TestSessionUpdateErrorSkipsSnapshot(t *testing.T) {
	var snapshots int
	sess := &Session{
		state:   InvestigationState{SessionID: "sess-a"},
		persist: func(st *InvestigationState) error { snapshots++; return nil },
	}

	wantErr := errors.New("planner unavailable")
	err := sess.Update(func(st *InvestigationState) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update error = %v, want %v", err, wantErr)
	}
	if snapshots != 0 {
		t.Errorf("failed update took %d snapshots, want 0", snapshots)
	}
}

func TestSessionViewDoesNotPersist(t *testing.T) {
	var snapshots int
	sess := &Session{
		state:   InvestigationState{SessionID: "sess-a"},
		persist: func(st *InvestigationState) error { snapshots++; return nil },
	}

	sess.View(func(st *InvestigationState) error { return nil })
	if snapshots != 0 {
		t.Errorf("View took %d snapshots, want 0", snapshots)
	}
}

func TestSessionSnapshotFailureIsNonFatal(t *testing.T) {
	sess := &Session{
		state:   InvestigationState{SessionID: "sess-a"},
		persist: func(st *InvestigationState) error { return errors.New("disk full") },
	}

	err := sess.Update(func(st *InvestigationState) error {
		st.SetPlan(nil, []QuerySpec{{ID: "q1", SQLText: "SELECT 1"}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update surfaced snapshot failure: %v", err)
	}
	sess.View(func(st *InvestigationState) error {
		if len(st.Queries) != 1 {
			t.Errorf("mutation lost with snapshot failure: %v", st.Queries)
		}
		return nil
	})
}

func TestSessionSerializesConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	sess, _ := store.Session("sess-a")

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			sess.Update(func(st *InvestigationState) error {
				st.Queries = append(st.Queries, QuerySpec{ID: fmt.Sprintf("q%d", i)})
				return nil
			})
		}(i)
	}
	wg.Wait()

	sess.View(func(st *InvestigationState) error {
		if len(st.Queries) != workers {
			t.Errorf("queries = %d, want %d (lost appends under contention)", len(st.Queries), workers)
		}
		return nil
	})
}
