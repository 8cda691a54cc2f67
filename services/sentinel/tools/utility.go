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
// describe_state Tool
// ============================================================================

// describeStateTool wraps Service.DescribeState.
type describeStateTool struct {
	svc *sentinel.Service
}

// NewDescribeStateTool creates the describe_state tool.
func NewDescribeStateTool(svc *sentinel.Service) Tool {
	return &describeStateTool{svc: svc}
}

func (t *describeStateTool) Name() string {
	return "describe_state"
}

func (t *describeStateTool) Category() ToolCategory {
	return CategoryUtility
}

func (t *describeStateTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "describe_state",
		Description: "Get a summary of the current analysis state. Use this to check what has been done so far.",
		WhenToUse:   "When the user asks about progress, or before deciding which stage to run next.",
		Parameters:  map[string]ParamDef{},
		Category:    CategoryUtility,
		Priority:    40,
		SideEffects: false,
		Timeout:     10 * time.Second,
	}
}

func (t *describeStateTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	snap, err := t.svc.DescribeState(sessionID)
	if err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		Output:     snap,
		OutputText: StateDigest(snap),
	}, nil
}

// ============================================================================
// reset_analysis Tool
// ============================================================================

// resetAnalysisTool wraps Service.Reset.
type resetAnalysisTool struct {
	svc *sentinel.Service
}

// NewResetAnalysisTool creates the reset_analysis tool.
func NewResetAnalysisTool(svc *sentinel.Service) Tool {
	return &resetAnalysisTool{svc: svc}
}

func (t *resetAnalysisTool) Name() string {
	return "reset_analysis"
}

func (t *resetAnalysisTool) Category() ToolCategory {
	return CategoryUtility
}

func (t *resetAnalysisTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "reset_analysis",
		Description: "Reset all analysis state to start fresh. Use when the user wants to begin a completely new analysis.",
		WhenToUse:   "When the user explicitly asks to start over or discard the current investigation.",
		Parameters:  map[string]ParamDef{},
		Category:    CategoryUtility,
		Priority:    30,
		SideEffects: true,
		Timeout:     10 * time.Second,
	}
}

func (t *resetAnalysisTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := SessionFromContext(ctx)

	if err := t.svc.Reset(ctx, sessionID); err != nil {
		return failure(err), nil
	}

	return &Result{
		Success:    true,
		OutputText: ResetDigest(),
	}, nil
}
