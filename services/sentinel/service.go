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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/archive"
	"github.com/AleutianAI/AleutianSentinel/services/datastore"
	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/mailer"
)

// ServiceDeps carries everything a Service needs. LLM, Sessions, Data, and
// Sender are required; the rest default to no-ops or embedded assets.
type ServiceDeps struct {
	Config    Config
	LLM       llm.Client
	Sessions  Store
	Data      datastore.ReadOnlyStore
	Sender    mailer.Sender
	Archiver  archive.Archiver
	Events    EventSink
	Templates *TemplateSet
	Schema    *Schema
}

// Service coordinates the investigation stages over per-session state.
//
// Slow work (model calls, query batches, sends) runs outside the session
// lock; only the state transition itself happens inside Update. Each
// transition re-checks that the state the stage started from is still the
// state it is about to mutate, so two callers racing on one session cannot
// corrupt the positional pairing between plan, results, and issues.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	cfg        Config
	sessions   Store
	planner    *Planner
	executor   *Executor
	analyzer   *Analyzer
	composer   *Composer
	dispatcher *Dispatcher
	archiver   archive.Archiver
	events     EventSink
	sender     mailer.Sender
	schema     *Schema
	llm        llm.Client
}

// NewService wires the stage components from their dependencies.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("sentinel: service needs a completion client")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("sentinel: service needs a session store")
	}
	if deps.Data == nil {
		return nil, fmt.Errorf("sentinel: service needs a read-only data store")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("sentinel: service needs a mail sender")
	}
	if deps.Schema == nil {
		schema, err := DefaultSchema()
		if err != nil {
			return nil, err
		}
		deps.Schema = schema
	}
	if deps.Templates == nil {
		templates, err := LoadTemplates("")
		if err != nil {
			return nil, err
		}
		deps.Templates = templates
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.NoopArchiver{}
	}
	if deps.Events == nil {
		deps.Events = NoopEventSink{}
	}

	return &Service{
		cfg:        deps.Config,
		sessions:   deps.Sessions,
		planner:    NewPlanner(deps.LLM, deps.Schema),
		executor:   NewExecutor(deps.Data),
		analyzer:   NewAnalyzer(deps.LLM, deps.Config.AnalysisContextChars),
		composer:   NewComposer(deps.LLM, deps.Data, deps.Templates, deps.Schema),
		dispatcher: NewDispatcher(deps.Sender, deps.Config.DispatchRate, deps.Config.DispatchBurst),
		archiver:   deps.Archiver,
		events:     deps.Events,
		sender:     deps.Sender,
		schema:     deps.Schema,
		llm:        deps.LLM,
	}, nil
}

// StoreName reports which store's data the service investigates.
func (s *Service) StoreName() string { return s.schema.Store }

// MailerStatus reports the credential-masked relay configuration.
func (s *Service) MailerStatus() mailer.Status { return s.sender.Status() }

// AgentSystemPrompt returns the conversational controller's instruction
// set, bound to this service's store.
func (s *Service) AgentSystemPrompt() string { return agentSystemPrompt(s.schema.Store) }

// ===== Stage operations =====

// Plan generates a validated query plan for the session and stores it,
// clearing any downstream results, issues, and proposals.
func (s *Service) Plan(ctx context.Context, sessionID string, focusAreas []string) (*PlanOutcome, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}
	focus := normalizeFocusAreas(focusAreas)

	start := time.Now()
	outcome, err := s.planner.Plan(ctx, focus)
	if err != nil {
		s.recordEvent(ctx, sessionID, "plan", start, err, nil)
		return nil, err
	}

	if err := session.Update(func(st *InvestigationState) error {
		st.SetPlan(focus, outcome.Queries)
		return nil
	}); err != nil {
		return nil, err
	}

	s.archiveArtifact(ctx, sessionID, archive.KindPlan, outcome)
	s.recordEvent(ctx, sessionID, "plan", start, nil, map[string]int{
		"queries": len(outcome.Queries),
		"dropped": len(outcome.Dropped),
	})
	return outcome, nil
}

// Execute runs the session's planned queries and stores the results.
func (s *Service) Execute(ctx context.Context, sessionID string) ([]QueryResult, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var specs []QuerySpec
	session.View(func(st *InvestigationState) error {
		specs = append([]QuerySpec(nil), st.Queries...)
		return nil
	})
	if len(specs) == 0 {
		return nil, ErrNoQueriesPlanned
	}

	start := time.Now()
	results, err := s.executor.Execute(ctx, specs)
	if err != nil {
		s.recordEvent(ctx, sessionID, "execute", start, err, nil)
		return nil, err
	}

	if err := session.Update(func(st *InvestigationState) error {
		if !sameQueryIDs(st.Queries, specs) {
			return ErrSessionChanged
		}
		st.SetResults(results)
		return nil
	}); err != nil {
		s.recordEvent(ctx, sessionID, "execute", start, err, nil)
		return nil, err
	}

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	s.archiveArtifact(ctx, sessionID, archive.KindExecution, results)
	s.recordEvent(ctx, sessionID, "execute", start, nil, map[string]int{
		"queries": len(results),
		"failed":  failed,
	})
	return results, nil
}

// Analyze turns the session's results into a numbered issue list.
func (s *Service) Analyze(ctx context.Context, sessionID string) ([]Issue, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var specs []QuerySpec
	var results []QueryResult
	session.View(func(st *InvestigationState) error {
		specs = append([]QuerySpec(nil), st.Queries...)
		results = append([]QueryResult(nil), st.QueryResults...)
		return nil
	})
	if len(results) == 0 {
		return nil, ErrNoQueryResults
	}

	start := time.Now()
	issues, err := s.analyzer.Analyze(ctx, specs, results)
	if err != nil {
		s.recordEvent(ctx, sessionID, "analyze", start, err, nil)
		return nil, err
	}

	var numbered []Issue
	if err := session.Update(func(st *InvestigationState) error {
		if len(st.QueryResults) != len(results) || !sameQueryIDs(st.Queries, specs) {
			return ErrSessionChanged
		}
		st.SetIssues(issues)
		numbered = append([]Issue(nil), st.Issues...)
		return nil
	}); err != nil {
		s.recordEvent(ctx, sessionID, "analyze", start, err, nil)
		return nil, err
	}

	s.archiveArtifact(ctx, sessionID, archive.KindAnalysis, numbered)
	s.recordEvent(ctx, sessionID, "analyze", start, nil, map[string]int{
		"issues": len(numbered),
	})
	return numbered, nil
}

// ProposeFix composes a remediation plan plus notification drafts for one
// issue and stores them as the session's current proposal, replacing any
// prior proposal and its drafts.
func (s *Service) ProposeFix(ctx context.Context, sessionID string, issueNumber int) (*ProposalOutcome, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var issue Issue
	var results []QueryResult
	if err := session.View(func(st *InvestigationState) error {
		var lookupErr error
		issue, lookupErr = st.IssueByNumber(issueNumber)
		results = append([]QueryResult(nil), st.QueryResults...)
		return lookupErr
	}); err != nil {
		return nil, err
	}

	start := time.Now()
	outcome, err := s.composer.ProposeFix(ctx, issue, results)
	if err != nil {
		s.recordEvent(ctx, sessionID, "propose", start, err, nil)
		return nil, err
	}

	if err := session.Update(func(st *InvestigationState) error {
		current, err := st.IssueByNumber(issueNumber)
		if err != nil || current.Title != issue.Title {
			return ErrSessionChanged
		}
		proposal := outcome.Proposal
		st.SetProposal(&proposal, outcome.Emails)
		outcome.Emails = append([]EmailDraft(nil), st.PendingEmails...)
		return nil
	}); err != nil {
		s.recordEvent(ctx, sessionID, "propose", start, err, nil)
		return nil, err
	}

	s.archiveArtifact(ctx, sessionID, archive.KindProposal, outcome)
	s.recordEvent(ctx, sessionID, "propose", start, nil, map[string]int{
		"emails":  len(outcome.Emails),
		"skipped": len(outcome.Skipped),
	})
	return outcome, nil
}

// ComposeEmail renders one on-demand notification for an issue and a
// recipient role and appends it to the pending drafts. The current proposal
// is left untouched.
func (s *Service) ComposeEmail(ctx context.Context, sessionID string, issueNumber int, role string) (*EmailDraft, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var draft EmailDraft
	if err := session.Update(func(st *InvestigationState) error {
		issue, err := st.IssueByNumber(issueNumber)
		if err != nil {
			return err
		}
		d, err := s.composer.ComposeEmail(issue, role, st.CurrentProposal)
		if err != nil {
			return err
		}
		d.Index = st.AppendEmail(*d)
		draft = *d
		return nil
	}); err != nil {
		return nil, err
	}
	return &draft, nil
}

// EditEmail mutates one field of one pending draft and returns the updated
// draft plus the value it replaced.
func (s *Service) EditEmail(ctx context.Context, sessionID string, index int, field, value string) (EmailDraft, string, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return EmailDraft{}, "", err
	}

	var draft EmailDraft
	var old string
	if err := session.Update(func(st *InvestigationState) error {
		var err error
		old, err = st.EditEmail(index, field, value)
		if err != nil {
			return err
		}
		draft = st.PendingEmails[index-1]
		return nil
	}); err != nil {
		return EmailDraft{}, "", err
	}
	return draft, old, nil
}

// Dispatch sends the session's pending drafts through the mail boundary
// and records the outcome. Partial failure leaves the session undispatched
// so the failed drafts can be resent.
func (s *Service) Dispatch(ctx context.Context, sessionID string) ([]DispatchRecord, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var drafts []EmailDraft
	session.View(func(st *InvestigationState) error {
		drafts = append([]EmailDraft(nil), st.PendingEmails...)
		return nil
	})
	if len(drafts) == 0 {
		return nil, ErrNoPendingEmails
	}

	start := time.Now()
	records, err := s.dispatcher.Dispatch(ctx, drafts)
	if err != nil {
		s.recordEvent(ctx, sessionID, "dispatch", start, err, nil)
		return nil, err
	}

	// The sends happened; the record always lands, even if the drafts
	// were edited mid-flight.
	if err := session.Update(func(st *InvestigationState) error {
		st.RecordDispatch(records)
		return nil
	}); err != nil {
		return nil, err
	}

	delivered := 0
	for _, rec := range records {
		if rec.Delivered {
			delivered++
		}
	}
	s.archiveArtifact(ctx, sessionID, archive.KindDispatch, records)
	s.recordEvent(ctx, sessionID, "dispatch", start, nil, map[string]int{
		"emails":    len(records),
		"delivered": delivered,
	})
	return records, nil
}

// ===== Lookups =====

// IssueDetail returns one issue by its session-stable number.
func (s *Service) IssueDetail(sessionID string, number int) (Issue, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return Issue{}, err
	}
	var issue Issue
	viewErr := session.View(func(st *InvestigationState) error {
		var lookupErr error
		issue, lookupErr = st.IssueByNumber(number)
		return lookupErr
	})
	return issue, viewErr
}

// FindIssues returns the analyzed issues whose title or description
// contains the keyword, case-insensitively.
func (s *Service) FindIssues(sessionID, keyword string) ([]Issue, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}
	var matches []Issue
	viewErr := session.View(func(st *InvestigationState) error {
		if !st.Analyzed {
			return ErrNoIssues
		}
		matches = st.FindIssuesByKeyword(keyword)
		return nil
	})
	return matches, viewErr
}

// StateSnapshot is a read-only view of one session plus the mail relay
// status, enough for a UI or the agent to describe progress.
type StateSnapshot struct {
	Stage  Stage              `json:"stage"`
	State  InvestigationState `json:"state"`
	Mailer mailer.Status      `json:"mailer"`
}

// DescribeState returns a copy of the session's investigation state.
func (s *Service) DescribeState(sessionID string) (*StateSnapshot, error) {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return nil, err
	}
	snap := &StateSnapshot{Mailer: s.sender.Status()}
	session.View(func(st *InvestigationState) error {
		snap.Stage = st.Stage()
		snap.State = *st
		snap.State.Queries = append([]QuerySpec(nil), st.Queries...)
		snap.State.QueryResults = append([]QueryResult(nil), st.QueryResults...)
		snap.State.Issues = append([]Issue(nil), st.Issues...)
		snap.State.PendingEmails = append([]EmailDraft(nil), st.PendingEmails...)
		snap.State.LastDispatch = append([]DispatchRecord(nil), st.LastDispatch...)
		if st.CurrentProposal != nil {
			proposal := *st.CurrentProposal
			snap.State.CurrentProposal = &proposal
		}
		return nil
	})
	return snap, nil
}

// Reset clears every stage of the session and returns it to empty.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Session(sessionID)
	if err != nil {
		return err
	}
	if err := session.Update(func(st *InvestigationState) error {
		st.Reset()
		return nil
	}); err != nil {
		return err
	}
	slog.Info("Session reset", "session_id", sessionID)
	return nil
}

// ===== Conversation surface =====

// Suggestion is one starter query a UI can offer.
type Suggestion struct {
	Label       string `json:"label"`
	Query       string `json:"query"`
	Description string `json:"description"`
}

// Greeting is the first message of a new conversation.
type Greeting struct {
	Response    string       `json:"response"`
	Suggestions []Suggestion `json:"suggestions"`
}

// InitialSuggestions returns the starter queries for a fresh conversation.
func (s *Service) InitialSuggestions() []Suggestion {
	return []Suggestion{
		{
			Label:       "📦 Check Inventory",
			Query:       "Check for inventory issues only - focus on stock levels, out of stock, and slow-moving items",
			Description: "Focused analysis of inventory and stock issues only",
		},
		{
			Label:       "💳 Payment Issues",
			Query:       "Check for payment problems only - focus on failed transactions and refunds",
			Description: "Focused analysis of payment and transaction issues only",
		},
		{
			Label:       "👥 Customer Reviews",
			Query:       "Check for customer satisfaction issues only - focus on reviews and complaints",
			Description: "Focused analysis of customer feedback and satisfaction only",
		},
		{
			Label:       "💰 Revenue Analysis",
			Query:       "Analyze revenue and sales trends only - focus on underperforming products",
			Description: "Focused analysis of sales and revenue issues only",
		},
		{
			Label:       "🔍 Full Analysis",
			Query:       "Run a complete business analysis across all areas",
			Description: "Comprehensive analysis of inventory, payments, customers, and revenue",
		},
		{
			Label:       "📊 Current Status",
			Query:       "What's the current state of our analysis?",
			Description: "Check the status of the current analysis",
		},
	}
}

// Greeting returns the opening message for a new conversation.
func (s *Service) Greeting() Greeting {
	return Greeting{
		Response: fmt.Sprintf(`👋 **Hello! I'm your AI Business Intelligence Assistant.**

I can help you identify and resolve business issues for %s. I have access to your database and can:

- 🔍 **Investigate business areas** (inventory, payments, customers, revenue)
- 📊 **Analyze data** to find potential problems
- 🔧 **Propose fixes** with automated actions
- 📧 **Send notifications** to relevant stakeholders

**How can I help you today?** You can:
- Ask me to analyze a specific area (e.g., "Check our inventory")
- Express a concern (e.g., "I'm worried about payment issues")
- Request a full analysis (e.g., "Run a complete business health check")

Or try one of the suggested queries below! 👇`, s.schema.Store),
		Suggestions: s.InitialSuggestions(),
	}
}

// ===== Helpers =====

// normalizeFocusAreas lowercases, trims, and dedupes the requested areas.
// An empty request, or any mention of "all", collapses to the single tag
// "all".
func normalizeFocusAreas(raw []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, area := range raw {
		area = strings.ToLower(strings.TrimSpace(area))
		if area == "" || seen[area] {
			continue
		}
		if area == "all" {
			return []string{"all"}
		}
		seen[area] = true
		out = append(out, area)
	}
	if len(out) == 0 {
		return []string{"all"}
	}
	return out
}

// sameQueryIDs reports whether two plans are the same plan, by ID sequence.
func sameQueryIDs(a, b []QuerySpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// archiveArtifact stores one stage output, best effort.
func (s *Service) archiveArtifact(ctx context.Context, sessionID, kind string, payload any) {
	if !s.archiver.Enabled() {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Artifact encode failed", "session_id", sessionID, "kind", kind, "error", err)
		return
	}
	if err := s.archiver.Store(ctx, archive.Artifact{
		SessionID: sessionID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}); err != nil {
		slog.Warn("Artifact store failed", "session_id", sessionID, "kind", kind, "error", err)
	}
}

// recordEvent emits one stage event, best effort.
func (s *Service) recordEvent(ctx context.Context, sessionID, stage string, start time.Time, stageErr error, counts map[string]int) {
	status := "success"
	if stageErr != nil {
		status = "error"
	}
	ev := StageEvent{
		SessionID: sessionID,
		Stage:     stage,
		Status:    status,
		Duration:  time.Since(start),
		Counts:    counts,
	}
	if err := s.events.Record(ctx, ev); err != nil {
		slog.Warn("Stage event record failed", "session_id", sessionID, "stage", stage, "error", err)
	}
}
