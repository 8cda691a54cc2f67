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
)

// =============================================================================
// Sentinel Errors
// =============================================================================
//
// Precondition errors carry the name of the operation that unblocks them so
// that both humans and the tool-calling model can self-correct without a
// lookup table.

var (
	// ErrNoQueriesPlanned is returned when an operation needs a query plan
	// and the session has none.
	ErrNoQueriesPlanned = errors.New("sentinel: no queries planned yet; call plan_queries first")

	// ErrNoQueryResults is returned when an operation needs execution
	// results and the planned queries have not been run.
	ErrNoQueryResults = errors.New("sentinel: no query results yet; call execute_queries first")

	// ErrNoIssues is returned when an operation needs identified issues and
	// the session has none.
	ErrNoIssues = errors.New("sentinel: no issues identified yet; call analyze_results first")

	// ErrNoProposal is returned when an operation needs a current fix
	// proposal and none has been composed.
	ErrNoProposal = errors.New("sentinel: no fix proposal yet; call propose_fix first")

	// ErrNoPendingEmails is returned when dispatch or edit is requested and
	// no emails have been drafted.
	ErrNoPendingEmails = errors.New("sentinel: no emails drafted yet; call propose_fix or compose_email first")

	// ErrBadEmailField is returned when an email edit names a field other
	// than subject or body.
	ErrBadEmailField = errors.New("sentinel: unknown email field; use \"subject\" or \"body\"")

	// ErrSessionNotFound is returned by session stores that do not create
	// sessions on demand.
	ErrSessionNotFound = errors.New("sentinel: session not found")

	// ErrSessionChanged is returned when a stage finishes against state
	// that another caller replaced mid-flight. The stage's output is
	// discarded; rerunning it starts from the fresh state.
	ErrSessionChanged = errors.New("sentinel: session state changed mid-stage; rerun the stage")
)

// IssueRangeError reports an issue number outside the numbered list.
type IssueRangeError struct {
	Number int
	Count  int
}

func (e *IssueRangeError) Error() string {
	return fmt.Sprintf("sentinel: issue number %d out of range; choose between 1 and %d", e.Number, e.Count)
}

// EmailRangeError reports an email index outside the pending draft list.
type EmailRangeError struct {
	Index int
	Count int
}

func (e *EmailRangeError) Error() string {
	return fmt.Sprintf("sentinel: email number %d out of range; choose between 1 and %d", e.Index, e.Count)
}

// UnknownRoleError reports a recipient role with no registered template.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("sentinel: unknown recipient role %q; use management, supplier, customer, or team", e.Role)
}
