// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the investigation service over HTTP: one route per
// pipeline stage, a chat endpoint for the conversational agent, and a
// websocket variant of the same.
package api

import (
	"github.com/AleutianAI/AleutianSentinel/services/mailer"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/agent"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/tools"
)

// ErrorResponse is the common error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// PlanRequest asks for a query plan over the given focus areas.
type PlanRequest struct {
	// FocusAreas limits the plan; empty means all areas.
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// PlanResponse carries the validated plan.
type PlanResponse struct {
	SessionID string                `json:"session_id"`
	Plan      *sentinel.PlanOutcome `json:"plan"`
}

// ExecuteResponse carries per-query execution results.
type ExecuteResponse struct {
	SessionID string                 `json:"session_id"`
	Results   []sentinel.QueryResult `json:"results"`
}

// AnalyzeResponse carries the numbered issue list. Issues is always
// present; an empty list is the healthy outcome, not an error.
type AnalyzeResponse struct {
	SessionID string           `json:"session_id"`
	Issues    []sentinel.Issue `json:"issues"`
}

// IssuesResponse carries an issue lookup result.
type IssuesResponse struct {
	SessionID string           `json:"session_id"`
	Issues    []sentinel.Issue `json:"issues"`
}

// ProposeRequest selects the issue to compose a fix for.
type ProposeRequest struct {
	IssueNumber int `json:"issue_number" binding:"required,min=1"`
}

// ProposeResponse carries the fix proposal and its drafted emails.
type ProposeResponse struct {
	SessionID string                    `json:"session_id"`
	Proposal  *sentinel.ProposalOutcome `json:"proposal"`
}

// ComposeEmailRequest drafts one on-demand email for an issue.
type ComposeEmailRequest struct {
	IssueNumber int    `json:"issue_number" binding:"required,min=1"`
	Role        string `json:"role" binding:"required"`
}

// ComposeEmailResponse carries the new draft.
type ComposeEmailResponse struct {
	SessionID string               `json:"session_id"`
	Email     *sentinel.EmailDraft `json:"email"`
}

// EditEmailRequest updates one field of a pending draft.
type EditEmailRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// EditEmailResponse carries the updated draft and the value it replaced.
type EditEmailResponse struct {
	SessionID string              `json:"session_id"`
	Email     sentinel.EmailDraft `json:"email"`
	OldValue  string              `json:"old_value"`
}

// DispatchResponse carries per-email dispatch outcomes.
type DispatchResponse struct {
	SessionID string                    `json:"session_id"`
	Sent      int                       `json:"sent"`
	Failed    int                       `json:"failed"`
	Records   []sentinel.DispatchRecord `json:"records"`
	Mailer    mailer.Status             `json:"mailer"`
}

// ResetResponse confirms a session reset.
type ResetResponse struct {
	SessionID string `json:"session_id"`
	Reset     bool   `json:"reset"`
}

// ChatRequest is one user message for the agent.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// ChatResponse is one agent turn.
type ChatResponse struct {
	SessionID string            `json:"session_id"`
	Turn      *agent.TurnResult `json:"turn"`
}

// ToolsResponse lists the agent's tool catalog, priority-ordered.
type ToolsResponse struct {
	Tools []tools.ToolDefinition `json:"tools"`
}
