// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel implements the issue-investigation pipeline: an LLM plans
// read-only SQL against a business data store, the executor runs it with
// per-query failure isolation, the analyzer turns results into a numbered
// issue list, and the composer drafts fix proposals and role-templated
// emails that the dispatch router sends through a hard outbound boundary
// (no model-produced address is ever used as a transport address).
//
// All pipeline stages operate on a per-session InvestigationState guarded by
// a Session wrapper; two orchestrators drive them, a linear Pipeline and a
// tool-calling Agent.
package sentinel

import (
	"strings"
	"time"
)

// ===== Stage machine =====

// Stage is the derived position of a session in the investigation pipeline.
type Stage string

const (
	StageEmpty      Stage = "empty"
	StagePlanned    Stage = "planned"
	StageExecuted   Stage = "executed"
	StageAnalyzed   Stage = "analyzed"
	StageProposed   Stage = "proposed"
	StageDispatched Stage = "dispatched"
)

// ===== Shared vocabulary =====

// Query and issue severity levels, highest first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Proposal urgency assigned by the composer.
const (
	ProposalUrgent    = "urgent"
	ProposalScheduled = "scheduled"
)

// Issue categories recognized by digests and the recipient lookup.
const (
	CategoryInventory   = "inventory"
	CategoryPayments    = "payments"
	CategoryCustomers   = "customers"
	CategoryRevenue     = "revenue"
	CategoryOperations  = "operations"
	CategoryDataQuality = "data_quality"
)

// Coarse recipient roles with a registered email template.
const (
	RoleManagement = "management"
	RoleSupplier   = "supplier"
	RoleCustomer   = "customer"
	RoleTeam       = "team"
)

// ===== State records =====

// QuerySpec is one planned read-only query.
type QuerySpec struct {
	ID          string `json:"id"`
	Purpose     string `json:"purpose"`
	Explanation string `json:"explanation,omitempty"`
	SQLText     string `json:"sql_text"`
	Priority    string `json:"priority"`
}

// QueryResult is the outcome of executing one QuerySpec. Results pair with
// queries positionally: QueryResults[i].QueryID == Queries[i].ID always.
type QueryResult struct {
	QueryID  string           `json:"query_id"`
	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int              `json:"row_count"`
	Err      string           `json:"error,omitempty"`
}

// OK reports whether the query executed without error.
func (r QueryResult) OK() bool { return r.Err == "" }

// Issue is one finding from the analyzer. Number is 1-based and is the only
// identifier callers use for the rest of the session; re-analysis replaces
// the whole list and renumbers, it never patches in place.
type Issue struct {
	Number       int      `json:"number"`
	Title        string   `json:"title"`
	Severity     string   `json:"severity"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	AffectedRefs []string `json:"affected_refs,omitempty"`
	Impact       string   `json:"impact,omitempty"`
}

// Recipient is one notification target proposed by the composer. Email is a
// model-produced string and is never a transport address.
type Recipient struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// FixProposal is the composer's remediation plan for one issue.
type FixProposal struct {
	IssueNumber     int         `json:"issue_number"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Actions         []string    `json:"actions"`
	ExpectedOutcome string      `json:"expected_outcome"`
	Priority        string      `json:"priority"`
	Recipients      []Recipient `json:"recipients"`
}

// EmailDraft is one pending notification. DisplayRecipient is advisory: it
// is shown in previews and carried into the dispatch subject line, but the
// mailer chooses the transport address from its own configuration.
type EmailDraft struct {
	Index            int    `json:"index"`
	Role             string `json:"role"`
	RecipientName    string `json:"recipient_name"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	DisplayRecipient string `json:"display_recipient"`
}

// DispatchRecord is the outcome of sending one pending email.
type DispatchRecord struct {
	Index       int    `json:"index"`
	IntendedTo  string `json:"intended_to"`
	TransportTo string `json:"transport_to"`
	Subject     string `json:"subject"`
	Delivered   bool   `json:"delivered"`
	Err         string `json:"error,omitempty"`
}

// ===== Investigation state =====

// InvestigationState holds everything one session has produced. Fields are
// populated strictly by the stage setters below, which clear all downstream
// stages so a session can never hold, say, issues derived from a superseded
// query plan.
//
// Thread Safety: none. Access goes through Session, which serializes
// mutations per session.
type InvestigationState struct {
	SessionID    string       `json:"session_id"`
	FocusAreas   []string     `json:"focus_areas,omitempty"`
	Queries      []QuerySpec  `json:"queries,omitempty"`
	QueryResults []QueryResult `json:"query_results,omitempty"`

	// Analyzed distinguishes "not analyzed yet" from "analyzed, zero
	// issues found": both have an empty Issues slice.
	Analyzed bool    `json:"analyzed,omitempty"`
	Issues   []Issue `json:"issues,omitempty"`

	CurrentProposal *FixProposal `json:"current_proposal,omitempty"`
	PendingEmails   []EmailDraft `json:"pending_emails,omitempty"`

	Dispatched   bool             `json:"dispatched,omitempty"`
	LastDispatch []DispatchRecord `json:"last_dispatch,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Stage derives the pipeline position from what the state holds.
func (s *InvestigationState) Stage() Stage {
	switch {
	case s.Dispatched:
		return StageDispatched
	case s.CurrentProposal != nil:
		return StageProposed
	case s.Analyzed:
		return StageAnalyzed
	case len(s.QueryResults) > 0:
		return StageExecuted
	case len(s.Queries) > 0:
		return StagePlanned
	default:
		return StageEmpty
	}
}

// SetPlan installs a fresh query plan and invalidates every later stage.
// Results, issues, the proposal, and pending emails all describe the old
// plan and are dropped with it.
func (s *InvestigationState) SetPlan(focusAreas []string, queries []QuerySpec) {
	s.FocusAreas = focusAreas
	s.Queries = queries
	s.QueryResults = nil
	s.clearAnalysis()
}

// SetResults installs execution results and invalidates analysis onward.
func (s *InvestigationState) SetResults(results []QueryResult) {
	s.QueryResults = results
	s.clearAnalysis()
}

// SetIssues replaces the issue list wholesale, renumbering 1..N in the
// order given, and invalidates the proposal stage.
func (s *InvestigationState) SetIssues(issues []Issue) {
	for i := range issues {
		issues[i].Number = i + 1
	}
	s.Issues = issues
	s.Analyzed = true
	s.clearProposal()
}

// SetProposal installs a proposal with its rendered emails, discarding any
// prior pair. Draft indices are assigned 1..N here.
func (s *InvestigationState) SetProposal(p *FixProposal, emails []EmailDraft) {
	for i := range emails {
		emails[i].Index = i + 1
	}
	s.CurrentProposal = p
	s.PendingEmails = emails
	s.Dispatched = false
	s.LastDispatch = nil
}

// AppendEmail adds one on-demand draft without touching the proposal and
// returns its 1-based index.
func (s *InvestigationState) AppendEmail(draft EmailDraft) int {
	draft.Index = len(s.PendingEmails) + 1
	s.PendingEmails = append(s.PendingEmails, draft)
	s.Dispatched = false
	return draft.Index
}

// EditEmail rewrites a single field of one pending draft and returns the
// replaced value.
//
// Inputs:
//   - index: 1-based position in PendingEmails.
//   - field: "subject" or "body".
//   - value: replacement text.
//
// Outputs:
//   - old: the field's previous content.
//   - err: ErrNoPendingEmails, *EmailRangeError, or ErrBadEmailField.
func (s *InvestigationState) EditEmail(index int, field, value string) (old string, err error) {
	if len(s.PendingEmails) == 0 {
		return "", ErrNoPendingEmails
	}
	if index < 1 || index > len(s.PendingEmails) {
		return "", &EmailRangeError{Index: index, Count: len(s.PendingEmails)}
	}
	draft := &s.PendingEmails[index-1]
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "subject":
		old = draft.Subject
		draft.Subject = value
	case "body":
		old = draft.Body
		draft.Body = value
	default:
		return "", ErrBadEmailField
	}
	return old, nil
}

// RecordDispatch stores the outcome of a dispatch attempt. The session
// reaches the dispatched stage only when every email was delivered.
func (s *InvestigationState) RecordDispatch(records []DispatchRecord) {
	s.LastDispatch = records
	if len(records) == 0 {
		return
	}
	for _, rec := range records {
		if !rec.Delivered {
			return
		}
	}
	s.Dispatched = true
}

// Reset returns the session to the empty stage. Only the session identity
// survives.
func (s *InvestigationState) Reset() {
	s.FocusAreas = nil
	s.Queries = nil
	s.QueryResults = nil
	s.clearAnalysis()
}

// IssueByNumber returns a copy of the issue with the given 1-based number.
func (s *InvestigationState) IssueByNumber(n int) (Issue, error) {
	if len(s.Issues) == 0 {
		return Issue{}, ErrNoIssues
	}
	if n < 1 || n > len(s.Issues) {
		return Issue{}, &IssueRangeError{Number: n, Count: len(s.Issues)}
	}
	return s.Issues[n-1], nil
}

// FindIssuesByKeyword returns the issues whose title or description
// contains the keyword, case-insensitively, in list order.
func (s *InvestigationState) FindIssuesByKeyword(keyword string) []Issue {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return nil
	}
	var matches []Issue
	for _, issue := range s.Issues {
		if strings.Contains(strings.ToLower(issue.Title), kw) ||
			strings.Contains(strings.ToLower(issue.Description), kw) {
			matches = append(matches, issue)
		}
	}
	return matches
}

func (s *InvestigationState) clearAnalysis() {
	s.Analyzed = false
	s.Issues = nil
	s.clearProposal()
}

func (s *InvestigationState) clearProposal() {
	s.CurrentProposal = nil
	s.PendingEmails = nil
	s.Dispatched = false
	s.LastDispatch = nil
}
