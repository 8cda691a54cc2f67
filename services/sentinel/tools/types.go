// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and execution framework for the
// conversational agent, plus the investigation tools themselves.
//
// Each tool wraps one sentinel.Service operation behind a ToolDefinition the
// completion service can call, and renders its outcome as a human-readable
// digest so the model can relay it verbatim. The session a tool operates on
// travels in the context (WithSession), never as a model-visible parameter.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"time"
)

// ToolCategory represents the category a tool belongs to.
type ToolCategory string

const (
	// CategoryInvestigation includes the pipeline stage tools (plan,
	// execute, analyze).
	CategoryInvestigation ToolCategory = "investigation"

	// CategoryLookup includes read-only tools over identified issues.
	CategoryLookup ToolCategory = "lookup"

	// CategoryCommunication includes tools that compose or send
	// notifications.
	CategoryCommunication ToolCategory = "communication"

	// CategoryUtility includes session housekeeping tools.
	CategoryUtility ToolCategory = "utility"
)

// String returns the string representation of the category.
func (c ToolCategory) String() string {
	return string(c)
}

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeInt is an integer parameter.
	ParamTypeInt ParamType = "integer"

	// ParamTypeBool is a boolean parameter.
	ParamTypeBool ParamType = "boolean"

	// ParamTypeArray is an array parameter.
	ParamTypeArray ParamType = "array"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`

	// Minimum is the minimum value (for numeric types).
	Minimum *float64 `json:"minimum,omitempty"`

	// Items defines the array item type (for array type).
	Items *ParamDef `json:"items,omitempty"`
}

// ToolDefinition describes a tool's interface for the LLM.
//
// This structure is designed to be serializable to JSON Schema format
// for use with LLM tool calling APIs.
type ToolDefinition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// WhenToUse tells the model when to reach for this tool over others.
	WhenToUse string `json:"when_to_use,omitempty"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category is the tool category.
	Category ToolCategory `json:"category"`

	// Priority influences tool ordering (higher = listed first).
	Priority int `json:"priority"`

	// SideEffects indicates if the tool mutates session state or sends
	// anything outward.
	SideEffects bool `json:"side_effects"`

	// Timeout is the execution deadline; zero means the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequiredParams returns a list of required parameter names.
func (d *ToolDefinition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	return required
}

// Tool defines the interface for executable tools.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool category.
	Category() ToolCategory

	// Definition returns the tool's parameter schema.
	Definition() ToolDefinition

	// Execute runs the tool with the given parameters.
	//
	// Inputs:
	//   ctx - Context carrying cancellation, timeout, and the session ID
	//   params - Input parameters (validated before call)
	//
	// Outputs:
	//   *Result - Execution result
	//   error - Non-nil if execution failed
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
//
// Precondition failures (nothing planned yet, issue number out of range)
// come back as Success=false with the error message in Error, so the model
// can read the hint and self-correct instead of aborting the turn.
type Result struct {
	// Success indicates if the tool succeeded.
	Success bool `json:"success"`

	// Output is the tool's structured output data.
	Output any `json:"output,omitempty"`

	// OutputText is the digest shown to the model (and relayed to users).
	OutputText string `json:"output_text"`

	// Error contains any error message.
	Error string `json:"error,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`

	// Truncated indicates if OutputText was cut to fit the size limit.
	Truncated bool `json:"truncated"`
}

// Invocation represents a pending or completed tool call.
type Invocation struct {
	// ID is a unique identifier for this invocation.
	ID string `json:"id"`

	// ToolName is the tool to invoke.
	ToolName string `json:"tool_name"`

	// Parameters are the input parameters.
	Parameters map[string]any `json:"parameters"`

	// Round is the agent round when this was invoked.
	Round int `json:"round,omitempty"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when execution completed.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Result contains the execution result (after completion).
	Result *Result `json:"result,omitempty"`
}

// ExecutorOptions configures the tool executor.
type ExecutorOptions struct {
	// DefaultTimeout applies when a tool's definition carries none.
	DefaultTimeout time.Duration

	// MaxOutputChars limits OutputText size.
	MaxOutputChars int
}

// DefaultExecutorOptions returns sensible defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 2 * time.Minute,
		MaxOutputChars: 16000,
	}
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	// Parameter is the parameter name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`

	// Expected describes what was expected.
	Expected string `json:"expected,omitempty"`

	// Actual describes what was received.
	Actual string `json:"actual,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Expected != "" && e.Actual != "" {
		return e.Parameter + ": " + e.Message + " (expected " + e.Expected + ", got " + e.Actual + ")"
	}
	return e.Parameter + ": " + e.Message
}
