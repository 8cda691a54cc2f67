// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
)

// ============================================================================
// propose_fix Tool
// ============================================================================

// proposeFixTool wraps Service.ProposeFix.
type proposeFixTool struct {
	svc *sentinel.Service
}

// NewProposeFixTool creates the propose_fix tool.
func NewProposeFixTool(svc *sentinel.Service) Tool {
	return &proposeFixTool{svc: svc}
}

func (t *proposeFixTool) Name() string {
	return "propose_fix"
}

func (t *proposeFixTool) Category() ToolCategory {
	return CategoryCommunication
}

func (t *proposeFixTool) Definition() ToolDefinition {
	one := float64(1)
	return ToolDefinition{
		Name:        "propose_fix",
		Description: "Generate a detailed fix proposal for a specific identified issue, including automated actions and drafted email notifications.",
		WhenToUse:   "When the user asks to fix or address one of the analyzed issues.",
		Parameters: map[string]ParamDef{
			"issue_number": {
				Type:        ParamTypeInt,
				Description: "The issue number (1-based) from the identified issues list. Use analyze_results first to see the list.",
				Required:    true,
				Minimum:     &one,
			},
		},
		Category:    CategoryCommunication,
		Priority:    80,
		SideEffects: true,
		Timeout:     3 * time.Minute,
	}
}

func (t *proposeFixTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	number, ok := intParam(params, "issue_number")
	if !ok {
		return failure(&ValidationError{Parameter: "issue_number", Message: "required parameter missing"}), nil
	}

	issue, err := t.svc.IssueDetail(sessionID, number)
	if err != nil {
		return failure(err), nil
	}

	outcome, err := t.svc.ProposeFix(ctx, sessionID, number)
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     outcome,
		OutputText: ProposalDigest(issue, outcome),
	}, nil
}

// ============================================================================
// compose_email Tool
// ============================================================================

// composeEmailTool wraps Service.ComposeEmail.
type composeEmailTool struct {
	svc *sentinel.Service
}

// NewComposeEmailTool creates the compose_email tool.
func NewComposeEmailTool(svc *sentinel.Service) Tool {
	return &composeEmailTool{svc: svc}
}

func (t *composeEmailTool) Name() string {
	return "compose_email"
}

func (t *composeEmailTool) Category() ToolCategory {
	return CategoryCommunication
}

func (t *composeEmailTool) Definition() ToolDefinition {
	one := float64(1)
	return ToolDefinition{
		Name:        "compose_email",
		Description: "Draft one extra notification email for an issue and a recipient role, appended to the pending drafts.",
		WhenToUse:   "When the user wants to notify an additional audience the fix proposal did not already cover.",
		Parameters: map[string]ParamDef{
			"issue_number": {
				Type:        ParamTypeInt,
				Description: "The issue number (1-based) the email is about.",
				Required:    true,
				Minimum:     &one,
			},
			"role": {
				Type:        ParamTypeString,
				Description: "The recipient role to draft for.",
				Required:    true,
				Enum:        []any{"management", "supplier", "customer", "team"},
			},
		},
		Category:    CategoryCommunication,
		Priority:    60,
		SideEffects: true,
		Timeout:     30 * time.Second,
	}
}

func (t *composeEmailTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	number, ok := intParam(params, "issue_number")
	if !ok {
		return failure(&ValidationError{Parameter: "issue_number", Message: "required parameter missing"}), nil
	}
	role, ok := stringParam(params, "role")
	if !ok {
		return failure(&ValidationError{Parameter: "role", Message: "required parameter missing"}), nil
	}

	draft, err := t.svc.ComposeEmail(ctx, sessionID, number, strings.ToLower(strings.TrimSpace(role)))
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     draft,
		OutputText: ComposeDigest(*draft),
	}, nil
}

// ============================================================================
// edit_email Tool
// ============================================================================

// editEmailTool wraps Service.EditEmail.
type editEmailTool struct {
	svc *sentinel.Service
}

// NewEditEmailTool creates the edit_email tool.
func NewEditEmailTool(svc *sentinel.Service) Tool {
	return &editEmailTool{svc: svc}
}

func (t *editEmailTool) Name() string {
	return "edit_email"
}

func (t *editEmailTool) Category() ToolCategory {
	return CategoryCommunication
}

func (t *editEmailTool) Definition() ToolDefinition {
	one := float64(1)
	return ToolDefinition{
		Name:        "edit_email",
		Description: "Edit a specific field of a drafted email before sending.",
		WhenToUse:   "When the user wants to change a pending email's subject or body before dispatch.",
		Parameters: map[string]ParamDef{
			"email_number": {
				Type:        ParamTypeInt,
				Description: "Which email to edit (1-based index from the drafted list).",
				Required:    true,
				Minimum:     &one,
			},
			"field": {
				Type:        ParamTypeString,
				Description: "Which field to edit.",
				Required:    true,
				Enum:        []any{"subject", "body"},
			},
			"new_value": {
				Type:        ParamTypeString,
				Description: "The new value for the field.",
				Required:    true,
			},
		},
		Category:    CategoryCommunication,
		Priority:    55,
		SideEffects: true,
		Timeout:     10 * time.Second,
	}
}

func (t *editEmailTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	number, ok := intParam(params, "email_number")
	if !ok {
		return failure(&ValidationError{Parameter: "email_number", Message: "required parameter missing"}), nil
	}
	field, ok := stringParam(params, "field")
	if !ok {
		return failure(&ValidationError{Parameter: "field", Message: "required parameter missing"}), nil
	}
	newValue, ok := params["new_value"].(string)
	if !ok {
		return failure(&ValidationError{Parameter: "new_value", Message: "required parameter missing"}), nil
	}

	field = strings.ToLower(strings.TrimSpace(field))
	draft, old, err := t.svc.EditEmail(ctx, sessionID, number, field, newValue)
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     draft,
		OutputText: EditDigest(draft, field, old, newValue),
	}, nil
}

// ============================================================================
// dispatch_emails Tool
// ============================================================================

// dispatchEmailsTool wraps Service.Dispatch.
type dispatchEmailsTool struct {
	svc *sentinel.Service
}

// NewDispatchEmailsTool creates the dispatch_emails tool.
func NewDispatchEmailsTool(svc *sentinel.Service) Tool {
	return &dispatchEmailsTool{svc: svc}
}

func (t *dispatchEmailsTool) Name() string {
	return "dispatch_emails"
}

func (t *dispatchEmailsTool) Category() ToolCategory {
	return CategoryCommunication
}

func (t *dispatchEmailsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "dispatch_emails",
		Description: "Send all drafted notification emails through the mail relay. MUST call propose_fix or compose_email first. " +
			"In placebo mode, all emails route to the configured test inbox.",
		WhenToUse: "ONLY after the user explicitly approves sending the drafted notifications.",
		Parameters: map[string]ParamDef{},
		Category:    CategoryCommunication,
		Priority:    50,
		SideEffects: true,
		Timeout:     2 * time.Minute,
	}
}

func (t *dispatchEmailsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	records, err := t.svc.Dispatch(ctx, sessionID)
	if err != nil {
		return failure(err), nil
	}

	var status = t.svc.MailerStatus()
	succeeded := true
	for _, rec := range records {
		if !rec.Delivered {
			succeeded = false
			break
		}
	}

	return &Result{
		Success:    succeeded,
		Output:     records,
		OutputText: DispatchDigest(records, status),
	}, nil
}
