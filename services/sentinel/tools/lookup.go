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
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
)

// ============================================================================
// get_issue_details Tool (and its alias)
// ============================================================================

// issueDetailsTool wraps Service.IssueDetail. The same implementation is
// registered twice: the driving models call both get_issue_details and
// get_issue_detail, so both names resolve here.
type issueDetailsTool struct {
	svc  *sentinel.Service
	name string
}

// NewIssueDetailsTool creates the get_issue_details tool.
func NewIssueDetailsTool(svc *sentinel.Service) Tool {
	return &issueDetailsTool{svc: svc, name: "get_issue_details"}
}

// NewIssueDetailAliasTool creates the get_issue_detail alias.
func NewIssueDetailAliasTool(svc *sentinel.Service) Tool {
	return &issueDetailsTool{svc: svc, name: "get_issue_detail"}
}

func (t *issueDetailsTool) Name() string {
	return t.name
}

func (t *issueDetailsTool) Category() ToolCategory {
	return CategoryLookup
}

func (t *issueDetailsTool) Definition() ToolDefinition {
	one := float64(1)
	return ToolDefinition{
		Name:        t.name,
		Description: "Get detailed information about a specific identified issue by its number.",
		WhenToUse:   "When the user asks about one issue from the analyzed list and you know its number.",
		Parameters: map[string]ParamDef{
			"issue_number": {
				Type:        ParamTypeInt,
				Description: "The issue number (1-based) to get details for.",
				Required:    true,
				Minimum:     &one,
			},
		},
		Category:    CategoryLookup,
		Priority:    70,
		SideEffects: false,
		Timeout:     10 * time.Second,
	}
}

func (t *issueDetailsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	number, ok := intParam(params, "issue_number")
	if !ok {
		return failure(&ValidationError{Parameter: "issue_number", Message: "required parameter missing"}), nil
	}

	issue, err := t.svc.IssueDetail(sessionID, number)
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     issue,
		OutputText: IssueDetailDigest(issue),
	}, nil
}

// ============================================================================
// find_issue_by_keyword Tool
// ============================================================================

// findIssueTool wraps Service.FindIssues.
type findIssueTool struct {
	svc *sentinel.Service
}

// NewFindIssueTool creates the find_issue_by_keyword tool.
func NewFindIssueTool(svc *sentinel.Service) Tool {
	return &findIssueTool{svc: svc}
}

func (t *findIssueTool) Name() string {
	return "find_issue_by_keyword"
}

func (t *findIssueTool) Category() ToolCategory {
	return CategoryLookup
}

func (t *findIssueTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_issue_by_keyword",
		Description: "Search for an issue by keyword in the title or description. Use this when you know part of the issue name but not the number.",
		WhenToUse:   "When the user references an issue by topic (\"the stock issue\") rather than number.",
		Parameters: map[string]ParamDef{
			"keyword": {
				Type:        ParamTypeString,
				Description: "A word or phrase to search for in issue titles and descriptions.",
				Required:    true,
			},
		},
		Category:    CategoryLookup,
		Priority:    65,
		SideEffects: false,
		Timeout:     10 * time.Second,
	}
}

func (t *findIssueTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	keyword, ok := stringParam(params, "keyword")
	if !ok {
		return failure(&ValidationError{Parameter: "keyword", Message: "required parameter missing"}), nil
	}

	matches, err := t.svc.FindIssues(sessionID, keyword)
	if err != nil {
		return failure(err), nil
	}

	// The no-match digest lists every issue so the model can recover.
	var all []sentinel.Issue
	if snap, err := t.svc.DescribeState(sessionID); err == nil {
		all = snap.State.Issues
	}

	return &Result{
		Success:    true,
		Output:     matches,
		OutputText: IssueMatchesDigest(keyword, matches, all),
	}, nil
}
