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
	"fmt"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
)

// RegisterInvestigationTools registers the full investigation toolset.
//
// Description:
//
//	Registers every tool the conversational agent drives: the pipeline
//	stages, the issue lookups, the notification tools, and the session
//	utilities. The get_issue_detail alias shares its implementation with
//	get_issue_details.
//
// Inputs:
//
//	registry - The tool registry
//	svc - The investigation service the tools operate on
func RegisterInvestigationTools(registry *Registry, svc *sentinel.Service) {
	registry.Register(NewPlanQueriesTool(svc))
	registry.Register(NewExecuteQueriesTool(svc))
	registry.Register(NewAnalyzeResultsTool(svc))
	registry.Register(NewIssueDetailsTool(svc))
	registry.Register(NewIssueDetailAliasTool(svc))
	registry.Register(NewFindIssueTool(svc))
	registry.Register(NewProposeFixTool(svc))
	registry.Register(NewComposeEmailTool(svc))
	registry.Register(NewEditEmailTool(svc))
	registry.Register(NewDispatchEmailsTool(svc))
	registry.Register(NewDescribeStateTool(svc))
	registry.Register(NewResetAnalysisTool(svc))
}

// NewInvestigationRegistry returns a registry pre-loaded with the full
// investigation toolset.
func NewInvestigationRegistry(svc *sentinel.Service) *Registry {
	registry := NewRegistry()
	RegisterInvestigationTools(registry, svc)
	return registry
}

// LLMToolDefs converts tool definitions to the completion service's
// function-calling schema.
//
// Description:
//
//	Maps each ToolDefinition onto an llm.ToolDef following the OpenAI
//	function shape all providers consume. WhenToUse guidance is folded
//	into the description so every provider sees it.
//
// Inputs:
//
//	definitions - Tool definitions, typically Registry.GetDefinitions()
//
// Outputs:
//
//	[]llm.ToolDef - Wire-ready tool definitions in the same order
func LLMToolDefs(definitions []ToolDefinition) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(definitions))
	for _, d := range definitions {
		description := d.Description
		if d.WhenToUse != "" {
			description += " When to use: " + d.WhenToUse
		}

		properties := make(map[string]llm.ToolParamDef, len(d.Parameters))
		var required []string
		for name, p := range d.Parameters {
			properties[name] = llm.ToolParamDef{
				Type:        string(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
				Default:     p.Default,
			}
			if p.Required {
				required = append(required, name)
			}
		}

		defs = append(defs, llm.ToolDef{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        d.Name,
				Description: description,
				Parameters: llm.ToolParameters{
					Type:       "object",
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return defs
}

// MockTool is a simple tool implementation for testing.
type MockTool struct {
	name        string
	category    ToolCategory
	definition  ToolDefinition
	ExecuteFunc func(ctx context.Context, params map[string]any) (*Result, error)
}

// NewMockTool creates a mock tool for testing.
func NewMockTool(name string, category ToolCategory) *MockTool {
	return &MockTool{
		name:     name,
		category: category,
		definition: ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Mock tool: %s", name),
			Category:    category,
			Parameters:  make(map[string]ParamDef),
		},
		ExecuteFunc: func(ctx context.Context, params map[string]any) (*Result, error) {
			return &Result{
				Success:    true,
				OutputText: fmt.Sprintf("Mock result from %s", name),
			}, nil
		},
	}
}

func (t *MockTool) Name() string               { return t.name }
func (t *MockTool) Category() ToolCategory     { return t.category }
func (t *MockTool) Definition() ToolDefinition { return t.definition }

// WithDefinition replaces the mock's definition and returns the mock.
func (t *MockTool) WithDefinition(d ToolDefinition) *MockTool {
	t.definition = d
	return t
}

func (t *MockTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return t.ExecuteFunc(ctx, params)
}
