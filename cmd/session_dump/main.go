// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// session_dump inspects the Sentinel session snapshot database.
//
// The server persists one JSON snapshot per investigation session in
// BadgerDB so conversations survive restarts. This tool opens the database
// read-only and prints a human-readable summary: session IDs, TTL
// remaining, snapshot sizes, and where each investigation stands (queries
// planned, issues found, emails pending, dispatched).
//
// Usage:
//
//	session_dump [--path /path/to/sessions] [--full]
//
// If --path is not given, reads SENTINEL_SESSION_DIR from the environment.
// --full prints each snapshot's JSON instead of the summary line.
//
// Exit codes:
//
//	0 — success (including "no sessions" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// sessionKeyPrefix must match the server's badger store exactly.
const sessionKeyPrefix = "session/v1/"

// snapshot picks out the fields the summary needs; the rest of the state
// passes through untouched for --full.
type snapshot struct {
	SessionID       string            `json:"session_id"`
	FocusAreas      []string          `json:"focus_areas"`
	Queries         []json.RawMessage `json:"queries"`
	QueryResults    []json.RawMessage `json:"query_results"`
	Analyzed        bool              `json:"analyzed"`
	Issues          []json.RawMessage `json:"issues"`
	CurrentProposal json.RawMessage   `json:"current_proposal"`
	PendingEmails   []json.RawMessage `json:"pending_emails"`
	Dispatched      bool              `json:"dispatched"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func main() {
	pathFlag := flag.String("path", "", "Path to the session BadgerDB directory (overrides SENTINEL_SESSION_DIR)")
	fullFlag := flag.Bool("full", false, "Print full snapshot JSON instead of summaries")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("SENTINEL_SESSION_DIR")
	}
	if dbPath == "" {
		fatalf("no session directory: pass --path or set SENTINEL_SESSION_DIR")
	}

	fmt.Printf("Session database path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Session directory does not exist. The server has not persisted any sessions yet.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		sessionID string
		expiresAt time.Time
		hasExpiry bool
		rawSize   int
		raw       []byte
		snap      snapshot
		decodeErr error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var e entry
			e.sessionID = strings.TrimPrefix(string(item.Key()), sessionKeyPrefix)

			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.raw = raw
			e.rawSize = len(raw)
			if err := json.Unmarshal(raw, &e.snap); err != nil {
				e.decodeErr = fmt.Errorf("json decode: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo session snapshots found.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d session snapshot%s:\n", len(entries), plural(len(entries), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Session:   %s\n", i+1, e.sessionID)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:       EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:       %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:       no expiry set\n")
		}

		fmt.Printf("    Raw size:  %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		if *fullFlag {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, e.raw, "    ", "  "); err == nil {
				fmt.Printf("    Snapshot:  %s\n", pretty.String())
			}
			continue
		}

		fmt.Printf("    Stage:     %s\n", describeStage(e.snap))
		if !e.snap.UpdatedAt.IsZero() {
			fmt.Printf("    Updated:   %s (%s ago)\n",
				e.snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"),
				time.Since(e.snap.UpdatedAt).Round(time.Second))
		}
		if len(e.snap.FocusAreas) > 0 {
			fmt.Printf("    Focus:     %s\n", strings.Join(e.snap.FocusAreas, ", "))
		}
		fmt.Printf("    Progress:  %d queries, %d results, %d issues, %d pending emails\n",
			len(e.snap.Queries), len(e.snap.QueryResults), len(e.snap.Issues), len(e.snap.PendingEmails))
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d snapshot%s, database path: %s\n",
		len(entries), plural(len(entries), "", "s"), dbPath)
}

// describeStage mirrors the server's stage derivation from snapshot fields.
func describeStage(s snapshot) string {
	switch {
	case s.Dispatched:
		return "dispatched"
	case len(s.CurrentProposal) > 0 && string(s.CurrentProposal) != "null":
		return "proposed"
	case s.Analyzed:
		return fmt.Sprintf("analyzed (%d issues)", len(s.Issues))
	case len(s.QueryResults) > 0:
		return "executed"
	case len(s.Queries) > 0:
		return "planned"
	default:
		return "empty"
	}
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "session_dump: "+format+"\n", args...)
	os.Exit(1)
}
