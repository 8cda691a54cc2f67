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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// toolsTracerName identifies tool execution spans.
const toolsTracerName = "sentinel.tools"

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")

	// ErrExecutionFailed indicates tool execution failed.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")

	// ErrNoSession indicates the invocation context carries no session.
	ErrNoSession = errors.New("no session bound to context")
)

// Executor handles tool invocations with validation and observability.
//
// Every tool here operates on per-session investigation state, so results
// are never cached: the same call can legitimately return something
// different one invocation later.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Multiple tool executions can
//	run simultaneously.
type Executor struct {
	registry *Registry
	options  ExecutorOptions
}

// NewExecutor creates a new tool executor.
//
// Inputs:
//
//	registry - The tool registry
//	opts - Executor options (uses defaults if nil)
//
// Outputs:
//
//	*Executor - The configured executor
func NewExecutor(registry *Registry, opts *ExecutorOptions) *Executor {
	options := DefaultExecutorOptions()
	if opts != nil {
		options = *opts
	}
	return &Executor{registry: registry, options: options}
}

// Registry returns the registry this executor runs tools from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs a tool with the given invocation.
//
// Description:
//
//	Validates the invocation against the tool's definition, checks that
//	the context carries a session, executes the tool under its timeout,
//	and truncates oversized output.
//
// Inputs:
//
//	ctx - Context carrying cancellation, timeout, and the session ID
//	invocation - The tool invocation to execute
//
// Outputs:
//
//	*Result - The execution result
//	error - Non-nil if execution failed
//
// Errors:
//
//	ErrToolNotFound - Tool does not exist
//	ErrValidationFailed - Parameter validation failed
//	ErrNoSession - Context carries no session ID
//	ErrTimeout - Execution timed out
//	ErrExecutionFailed - Tool returned an error
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, invocation *Invocation) (*Result, error) {
	if invocation == nil {
		return nil, fmt.Errorf("%w: nil invocation", ErrValidationFailed)
	}
	if invocation.ID == "" {
		invocation.ID = uuid.NewString()
	}

	logger := slog.With(
		"tool", invocation.ToolName,
		"invocation_id", invocation.ID,
	)

	tool, ok := e.registry.Get(invocation.ToolName)
	if !ok {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, invocation.ToolName)
	}

	if _, ok := SessionFromContext(ctx); !ok {
		return nil, ErrNoSession
	}

	if err := e.validateParams(tool, invocation.Parameters); err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	timeout := e.options.DefaultTimeout
	if tool.Definition().Timeout > 0 {
		timeout = tool.Definition().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := otel.Tracer(toolsTracerName).Start(ctx, "tools.Execute")
	span.SetAttributes(attribute.String("tool.name", invocation.ToolName))
	defer span.End()

	invocation.StartedAt = time.Now()
	logger.Debug("Executing tool")

	result, err := tool.Execute(ctx, invocation.Parameters)
	invocation.CompletedAt = time.Now()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("Tool execution timed out", "timeout", timeout)
			recordToolInvocation(invocation.ToolName, "timeout", invocation.CompletedAt.Sub(invocation.StartedAt))
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, invocation.ToolName, timeout)
		}
		logger.Error("Tool execution failed", "error", err)
		recordToolInvocation(invocation.ToolName, "error", invocation.CompletedAt.Sub(invocation.StartedAt))
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	result.Duration = invocation.CompletedAt.Sub(invocation.StartedAt)

	if e.options.MaxOutputChars > 0 && len(result.OutputText) > e.options.MaxOutputChars {
		result.OutputText = result.OutputText[:e.options.MaxOutputChars] + "\n... [truncated]"
		result.Truncated = true
	}

	invocation.Result = result

	status := "success"
	if !result.Success {
		status = "refused"
	}
	recordToolInvocation(invocation.ToolName, status, result.Duration)

	logger.Debug("Tool executed",
		"success", result.Success,
		"duration", result.Duration,
	)

	return result, nil
}

// validateParams validates tool parameters against the definition.
func (e *Executor) validateParams(tool Tool, params map[string]any) error {
	def := tool.Definition()

	for name, paramDef := range def.Parameters {
		if paramDef.Required {
			if _, ok := params[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			// Models invent parameters occasionally; tolerate them.
			continue
		}
		if err := validateParam(name, value, paramDef); err != nil {
			return err
		}
	}

	return nil
}

// validateParam validates a single parameter value.
func validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{
				Parameter: name,
				Message:   "required parameter is nil",
			}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeInt:
		// Accept both int and float64 (JSON unmarshals numbers as float64)
		var num float64
		switch v := value.(type) {
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		case float64:
			num = v
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected integer",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.Minimum != nil && num < *def.Minimum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at least %v", *def.Minimum),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeArray:
		switch value.(type) {
		case []any, []string:
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected array",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
	}

	if len(def.Enum) > 0 {
		found := false
		for _, allowed := range def.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{
				Parameter: name,
				Message:   "value not in allowed enum",
				Expected:  fmt.Sprintf("%v", def.Enum),
				Actual:    fmt.Sprintf("%v", value),
			}
		}
	}

	return nil
}
