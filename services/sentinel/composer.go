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
	"time"

	"github.com/go-openapi/strfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSentinel/services/datastore"
	"github.com/AleutianAI/AleutianSentinel/services/llm"
)

// recipientCandidateSQL maps issue categories to contact lookups run before
// composing, so the model extracts recipients from real rows instead of
// inventing them. Categories without a lookup get no extra block.
var recipientCandidateSQL = map[string]string{
	CategoryPayments: `SELECT DISTINCT
    c.first_name || ' ' || c.last_name AS name,
    c.email,
    p.status AS payment_status,
    o.order_number,
    p.amount
FROM payments p
JOIN orders o ON p.order_id = o.order_id
JOIN customers c ON o.customer_id = c.customer_id
WHERE p.status IN ('pending', 'failed')
ORDER BY p.payment_date DESC
LIMIT 20`,
	CategoryCustomers: `SELECT DISTINCT
    c.first_name || ' ' || c.last_name AS name,
    c.email,
    r.rating,
    r.review_text
FROM reviews r
JOIN customers c ON r.customer_id = c.customer_id
WHERE r.rating <= 2
ORDER BY r.created_at DESC
LIMIT 20`,
	CategoryRevenue: `SELECT DISTINCT
    c.first_name || ' ' || c.last_name AS name,
    c.email,
    COUNT(o.order_id) AS order_count,
    SUM(o.total) AS total_spent
FROM customers c
JOIN orders o ON c.customer_id = o.customer_id
GROUP BY c.customer_id, c.first_name, c.last_name, c.email
ORDER BY total_spent DESC
LIMIT 10`,
}

// Composer turns a diagnosed issue into a fix proposal with role-templated
// notification drafts.
//
// Thread Safety: safe for concurrent use.
type Composer struct {
	llm       llm.Client
	store     datastore.ReadOnlyStore
	templates *TemplateSet
	schema    *Schema
}

// NewComposer returns a composer over the given collaborators.
func NewComposer(client llm.Client, store datastore.ReadOnlyStore, templates *TemplateSet, schema *Schema) *Composer {
	return &Composer{llm: client, store: store, templates: templates, schema: schema}
}

// SkippedRecipient records one model-proposed recipient rejected before
// rendering, with the reason.
type SkippedRecipient struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ProposalOutcome is one composed fix: the proposal, its rendered drafts,
// and the recipients that were rejected.
type ProposalOutcome struct {
	Proposal FixProposal        `json:"proposal"`
	Emails   []EmailDraft       `json:"emails"`
	Skipped  []SkippedRecipient `json:"skipped,omitempty"`
}

// proposedRecipient is the model's wire shape for one recipient.
type proposedRecipient struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// proposedFix is the model's wire shape for one fix. IssueID arrives as a
// number or a title string depending on the model's mood; the issue under
// composition is already known, so it is ignored either way.
type proposedFix struct {
	IssueID          any                 `json:"issue_id"`
	FixTitle         string              `json:"fix_title" validate:"required"`
	FixDescription   string              `json:"fix_description"`
	AutomatedActions any                 `json:"automated_actions"`
	ExpectedOutcome  string              `json:"expected_outcome"`
	Priority         string              `json:"priority"`
	Recipients       []proposedRecipient `json:"recipients"`
}

// fixesOutput is the model's wire shape for a composition response.
type fixesOutput struct {
	Fixes []proposedFix `json:"fixes" validate:"required,min=1,dive"`
}

// ProposeFix asks the completion service for a remediation plan for one
// issue and renders one notification draft per accepted recipient.
//
// Recipient roles and addresses are model output: roles that do not
// normalize and addresses that do not parse are skipped with a recorded
// reason rather than failing the proposal. A proposal with zero surviving
// recipients is still a valid proposal; it simply has nothing to dispatch.
func (c *Composer) ProposeFix(ctx context.Context, issue Issue, results []QueryResult) (*ProposalOutcome, error) {
	tracer := otel.Tracer(sentinelTracerName)
	ctx, span := tracer.Start(ctx, "sentinel.propose")
	defer span.End()
	span.SetAttributes(attribute.Int("issue_number", issue.Number))

	start := time.Now()
	outcome, err := c.propose(ctx, issue, results)
	recordStage("propose", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "composition failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("recipients", len(outcome.Proposal.Recipients)),
		attribute.Int("emails", len(outcome.Emails)),
		attribute.Int("skipped", len(outcome.Skipped)),
	)
	slog.Info("Fix proposal composed",
		"issue_number", issue.Number,
		"priority", outcome.Proposal.Priority,
		"emails", len(outcome.Emails),
		"skipped", len(outcome.Skipped),
		"duration_ms", time.Since(start).Milliseconds())
	return outcome, nil
}

func (c *Composer) propose(ctx context.Context, issue Issue, results []QueryResult) (*ProposalOutcome, error) {
	recipientRows := c.fetchRecipientCandidates(ctx, issue.Category)

	messages := []llm.Message{
		{Role: "system", Content: composerSystemPrompt},
		{Role: "user", Content: composerUserPrompt(issue, results, recipientRows)},
	}
	response, err := c.llm.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("sentinel: composing fix proposal: %w", err)
	}

	candidate, err := extractJSONObject(response)
	if err != nil {
		return nil, fmt.Errorf("sentinel: composer response: %w", err)
	}
	var out fixesOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("sentinel: decoding composer response: %w (response: %s)", err, truncate(candidate, 100))
	}
	if err := modelValidate.Struct(&out); err != nil {
		return nil, fmt.Errorf("sentinel: composer response failed validation: %w", err)
	}

	// One issue per call; a model that returns several fixes anyway gets
	// its first one used.
	fix := out.Fixes[0]
	proposal := FixProposal{
		IssueNumber:     issue.Number,
		Title:           fix.FixTitle,
		Description:     fix.FixDescription,
		Actions:         stringList(fix.AutomatedActions),
		ExpectedOutcome: fix.ExpectedOutcome,
		Priority:        normalizeProposalPriority(fix.Priority, issue.Severity),
	}

	outcome := &ProposalOutcome{}
	for _, pr := range fix.Recipients {
		role, ok := NormalizeRole(pr.Role)
		if !ok {
			outcome.Skipped = append(outcome.Skipped, SkippedRecipient{
				Name:   pr.Name,
				Reason: fmt.Sprintf("unknown role %q", pr.Role),
			})
			continue
		}
		if !strfmt.IsEmail(pr.Email) {
			outcome.Skipped = append(outcome.Skipped, SkippedRecipient{
				Name:   pr.Name,
				Reason: fmt.Sprintf("unusable address %q", pr.Email),
			})
			continue
		}

		name := pr.Name
		if name == "" {
			name = defaultRecipientName(role)
		}
		subject, body, err := c.templates.Render(role, TemplateParams{
			RecipientName:   name,
			Store:           c.schema.Store,
			IssueTitle:      issue.Title,
			Severity:        issue.Severity,
			Category:        issue.Category,
			Description:     issue.Description,
			Impact:          issue.Impact,
			Actions:         proposal.Actions,
			ExpectedOutcome: proposal.ExpectedOutcome,
		})
		if err != nil {
			outcome.Skipped = append(outcome.Skipped, SkippedRecipient{Name: pr.Name, Reason: err.Error()})
			continue
		}

		proposal.Recipients = append(proposal.Recipients, Recipient{
			Name:   pr.Name,
			Role:   role,
			Email:  pr.Email,
			Reason: pr.Reason,
		})
		outcome.Emails = append(outcome.Emails, EmailDraft{
			Role:             role,
			RecipientName:    name,
			Subject:          subject,
			Body:             body,
			DisplayRecipient: pr.Email,
		})
	}

	for _, sk := range outcome.Skipped {
		slog.Warn("Proposed recipient skipped",
			"issue_number", issue.Number,
			"name", sk.Name,
			"reason", sk.Reason)
	}
	outcome.Proposal = proposal
	return outcome, nil
}

// ComposeEmail renders one notification for an issue and a recipient role
// without a full proposal. When the current proposal targets the same
// issue its actions and expected outcome are included; otherwise the draft
// carries only the issue itself. There is no model output involved, so the
// draft has no display recipient.
func (c *Composer) ComposeEmail(issue Issue, role string, proposal *FixProposal) (*EmailDraft, error) {
	normalized, ok := NormalizeRole(role)
	if !ok {
		return nil, &UnknownRoleError{Role: role}
	}

	params := TemplateParams{
		RecipientName: defaultRecipientName(normalized),
		Store:         c.schema.Store,
		IssueTitle:    issue.Title,
		Severity:      issue.Severity,
		Category:      issue.Category,
		Description:   issue.Description,
		Impact:        issue.Impact,
	}
	if proposal != nil && proposal.IssueNumber == issue.Number {
		params.Actions = proposal.Actions
		params.ExpectedOutcome = proposal.ExpectedOutcome
	}

	subject, body, err := c.templates.Render(normalized, params)
	if err != nil {
		return nil, err
	}
	slog.Debug("On-demand email composed", "issue_number", issue.Number, "role", normalized)
	return &EmailDraft{
		Role:          normalized,
		RecipientName: params.RecipientName,
		Subject:       subject,
		Body:          body,
	}, nil
}

// fetchRecipientCandidates looks up real contact rows for the issue's
// category. Lookups are best effort: a failure degrades the prompt, it
// never fails the proposal.
func (c *Composer) fetchRecipientCandidates(ctx context.Context, category string) []map[string]any {
	sqlText, ok := recipientCandidateSQL[category]
	if !ok {
		return nil
	}
	rows, err := c.store.Query(ctx, sqlText)
	if err != nil {
		slog.Warn("Recipient candidate lookup failed, composing without it",
			"category", category,
			"error", err.Error())
		return nil
	}
	return rows
}

// defaultRecipientName supplies a salutation when no recipient is named.
func defaultRecipientName(role string) string {
	switch role {
	case RoleManagement:
		return "Manager"
	case RoleSupplier:
		return "Supplier Partner"
	case RoleCustomer:
		return "Valued Customer"
	case RoleTeam:
		return "Team"
	default:
		return "Colleague"
	}
}
