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
// plan_queries Tool
// ============================================================================

// planQueriesTool wraps Service.Plan.
type planQueriesTool struct {
	svc *sentinel.Service
}

// NewPlanQueriesTool creates the plan_queries tool.
func NewPlanQueriesTool(svc *sentinel.Service) Tool {
	return &planQueriesTool{svc: svc}
}

func (t *planQueriesTool) Name() string {
	return "plan_queries"
}

func (t *planQueriesTool) Category() ToolCategory {
	return CategoryInvestigation
}

func (t *planQueriesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "plan_queries",
		Description: "Generate SQL queries to investigate potential business issues. This is typically the FIRST step in analyzing business problems.",
		WhenToUse:   "When the user expresses a business concern and no query plan exists yet, or when they ask to investigate a different area.",
		Parameters: map[string]ParamDef{
			"focus_areas": {
				Type: ParamTypeString,
				Description: "Areas to focus on: \"inventory\" for stock issues, \"payments\" for payment/transaction issues, " +
					"\"customers\" for customer satisfaction issues, \"revenue\" for sales/revenue concerns, " +
					"\"operations\" for operational issues, or \"all\" for comprehensive analysis. " +
					"Can combine multiple: \"inventory, payments\"",
				Required: false,
				Default:  "all",
			},
		},
		Category:    CategoryInvestigation,
		Priority:    100,
		SideEffects: true,
		Timeout:     3 * time.Minute,
	}
}

func (t *planQueriesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	focus := parseFocusAreas(params["focus_areas"])
	outcome, err := t.svc.Plan(ctx, sessionID, focus)
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     outcome,
		OutputText: PlanDigest(focus, outcome),
	}, nil
}

// parseFocusAreas accepts both a comma-separated string and a string array;
// models produce either shape depending on the provider.
func parseFocusAreas(raw any) []string {
	switch v := raw.(type) {
	case string:
		return splitAreas(v)
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, splitAreas(s)...)
			}
		}
		return out
	default:
		return nil
	}
}

func splitAreas(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ============================================================================
// execute_queries Tool
// ============================================================================

// executeQueriesTool wraps Service.Execute.
type executeQueriesTool struct {
	svc *sentinel.Service
}

// NewExecuteQueriesTool creates the execute_queries tool.
func NewExecuteQueriesTool(svc *sentinel.Service) Tool {
	return &executeQueriesTool{svc: svc}
}

func (t *executeQueriesTool) Name() string {
	return "execute_queries"
}

func (t *executeQueriesTool) Category() ToolCategory {
	return CategoryInvestigation
}

func (t *executeQueriesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "execute_queries",
		Description: "Execute the previously planned SQL queries against the database. MUST call plan_queries first.",
		WhenToUse:   "Immediately after plan_queries, without waiting for the user.",
		Parameters:  map[string]ParamDef{},
		Category:    CategoryInvestigation,
		Priority:    95,
		SideEffects: true,
		Timeout:     2 * time.Minute,
	}
}

func (t *executeQueriesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	results, err := t.svc.Execute(ctx, sessionID)
	if err != nil {
		return failure(err), nil
	}

	// The digest pairs results with their planned purposes.
	var specs []sentinel.QuerySpec
	if snap, err := t.svc.DescribeState(sessionID); err == nil {
		specs = snap.State.Queries
	}

	return &Result{
		Success:    true,
		Output:     results,
		OutputText: ExecutionDigest(specs, results),
	}, nil
}

// ============================================================================
// analyze_results Tool
// ============================================================================

// analyzeResultsTool wraps Service.Analyze.
type analyzeResultsTool struct {
	svc *sentinel.Service
}

// NewAnalyzeResultsTool creates the analyze_results tool.
func NewAnalyzeResultsTool(svc *sentinel.Service) Tool {
	return &analyzeResultsTool{svc: svc}
}

func (t *analyzeResultsTool) Name() string {
	return "analyze_results"
}

func (t *analyzeResultsTool) Category() ToolCategory {
	return CategoryInvestigation
}

func (t *analyzeResultsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "analyze_results",
		Description: "Analyze the query results to identify business issues. MUST call execute_queries first.",
		WhenToUse:   "Immediately after execute_queries, without waiting for the user.",
		Parameters:  map[string]ParamDef{},
		Category:    CategoryInvestigation,
		Priority:    90,
		SideEffects: true,
		Timeout:     3 * time.Minute,
	}
}

func (t *analyzeResultsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	issues, err := t.svc.Analyze(ctx, sessionID)
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     issues,
		OutputText: IssuesDigest(issues),
	}, nil
}

// ============================================================================
// Shared helpers
// ============================================================================

// failure wraps a service error as a model-visible refusal. The error text
// carries its own next-step hint (the sentinel errors name the unblocking
// tool), so the digest is just the marked message.
func failure(err error) *Result {
	return &Result{
		Success:    false,
		Error:      err.Error(),
		OutputText: "❌ " + err.Error(),
	}
}

// intParam extracts an int parameter. Handles both int and float64 (JSON
// unmarshaling produces float64).
func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	default:
		return 0, false
	}
}

// stringParam extracts a non-empty string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok && s != ""
}
