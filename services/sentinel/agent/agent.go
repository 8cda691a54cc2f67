// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs the conversational investigation controller: a
// tool-calling LLM loop over the sentinel toolset. The model decides which
// tools to call; the only ordering guard is the service's preconditions,
// whose refusal texts name the unblocking tool so the model can
// self-correct within the same turn.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/tools"
)

// agentTracerName identifies agent turn spans.
const agentTracerName = "sentinel.agent"

const (
	defaultMaxToolRounds = 8
	defaultHistoryLimit  = 20

	// toolPreviewChars bounds the per-tool result preview in TurnResult.
	toolPreviewChars = 200
)

// ErrEmptyMessage indicates a turn was requested with no user text.
var ErrEmptyMessage = errors.New("empty message")

// roundLimitNotice is what the user sees when a turn burns through its
// tool-round budget without the model producing a final answer.
const roundLimitNotice = "I reached the tool-call limit for this turn before finishing. " +
	"The work done so far is saved in your session — ask me to continue."

// ToolUse records one tool invocation within a turn.
type ToolUse struct {
	// Name is the tool that was called.
	Name string `json:"name"`

	// Preview is the leading slice of the tool's result text.
	Preview string `json:"preview"`
}

// TurnResult is the outcome of one agent turn.
type TurnResult struct {
	// Response is the model's final text for the user.
	Response string `json:"response"`

	// ToolsUsed lists the tools invoked during the turn, in order.
	ToolsUsed []ToolUse `json:"tools_used,omitempty"`

	// Timestamp is when the turn completed.
	Timestamp time.Time `json:"timestamp"`
}

// Agent drives free-text investigation turns through the tool executor.
//
// Description:
//
//	Each turn replays a bounded per-session history, sends it to the
//	completion service with the full tool catalog, executes whatever
//	tools the model calls, feeds the results back, and repeats until
//	the model answers in plain text or the round budget runs out.
//
// Thread Safety:
//
//	Agent is safe for concurrent use. Histories are guarded by a mutex;
//	turns for different sessions proceed independently. Two concurrent
//	turns on the SAME session race on history order but not on
//	correctness — investigation state lives in the service, not here.
type Agent struct {
	svc      *sentinel.Service
	client   llm.Client
	executor *tools.Executor
	defs     []llm.ToolDef

	maxRounds    int
	historyLimit int

	mu        sync.Mutex
	histories map[string][]llm.ChatMessage
}

// New creates an agent over the given service, completion client, and
// tool executor. Zero MaxToolRounds/HistoryLimit in cfg fall back to the
// defaults.
func New(svc *sentinel.Service, client llm.Client, executor *tools.Executor, cfg sentinel.Config) *Agent {
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Agent{
		svc:          svc,
		client:       client,
		executor:     executor,
		defs:         tools.LLMToolDefs(executor.Registry().GetDefinitions()),
		maxRounds:    maxRounds,
		historyLimit: historyLimit,
		histories:    make(map[string][]llm.ChatMessage),
	}
}

// Turn runs one conversational turn for a session.
//
// Description:
//
//	Binds the session to the context (tools read it from there, never
//	from model-supplied parameters), runs the tool-calling loop, and
//	persists the bounded history for the next turn. Executor errors —
//	validation failures included — are returned to the model as tool
//	result text rather than aborting the turn; only completion-service
//	failures abort.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing
//	sessionID - The investigation session this turn operates on
//	message - The user's free-text message
//
// Outputs:
//
//	*TurnResult - Final response text plus the tools used
//	error - Non-nil if the completion service failed or message is empty
//
// Thread Safety: This method is safe for concurrent use.
func (a *Agent) Turn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	ctx = tools.WithSession(ctx, sessionID)
	ctx, span := otel.Tracer(agentTracerName).Start(ctx, "agent.Turn",
		oteltrace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	logger := slog.With("session_id", sessionID)
	start := time.Now()

	history := a.snapshotHistory(sessionID)
	history = append(history, llm.ChatMessage{Role: "user", Content: message})

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: a.svc.AgentSystemPrompt()})
	messages = append(messages, history...)

	var toolsUsed []ToolUse
	response := roundLimitNotice
	rounds := 0

	for round := 1; round <= a.maxRounds; round++ {
		result, err := a.client.ChatWithTools(ctx, messages, llm.GenerationParams{}, a.defs)
		if err != nil {
			span.RecordError(err)
			recordAgentTurn("error", rounds, time.Since(start))
			return nil, fmt.Errorf("completion service: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			response = result.Content
			break
		}
		rounds = round

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})

		for _, call := range result.ToolCalls {
			text := a.runTool(ctx, call, round)
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    text,
			})
			toolsUsed = append(toolsUsed, ToolUse{
				Name:    call.Name,
				Preview: preview(text, toolPreviewChars),
			})
		}
	}

	messages = append(messages, llm.ChatMessage{Role: "assistant", Content: response})
	a.storeHistory(sessionID, messages[1:]) // drop the system message

	recordAgentTurn("success", rounds, time.Since(start))
	logger.Debug("Agent turn completed",
		"tool_rounds", rounds,
		"tools_used", len(toolsUsed),
		"duration", time.Since(start))

	return &TurnResult{
		Response:  response,
		ToolsUsed: toolsUsed,
		Timestamp: time.Now(),
	}, nil
}

// Greeting returns the opening message and suggestion chips for a
// fresh chat session.
func (a *Agent) Greeting() sentinel.Greeting {
	return a.svc.Greeting()
}

// ForgetSession drops a session's conversation history. Investigation
// state is untouched; use the service's Reset for that.
func (a *Agent) ForgetSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.histories, sessionID)
}

// runTool executes one model-requested tool call and renders the text
// that goes back to the model.
func (a *Agent) runTool(ctx context.Context, call llm.ToolCallResponse, round int) string {
	params, err := parseArguments(call.Arguments)
	if err != nil {
		return fmt.Sprintf("❌ Could not parse tool arguments: %v", err)
	}

	invocation := &tools.Invocation{
		ToolName:   call.Name,
		Parameters: params,
		Round:      round,
	}
	result, err := a.executor.Execute(ctx, invocation)
	if err != nil {
		// Fed back as result text: the model can fix a bad parameter or
		// pick another tool on the next round.
		return fmt.Sprintf("❌ %v", err)
	}
	if result.OutputText != "" {
		return result.OutputText
	}
	if result.Error != "" {
		return "❌ " + result.Error
	}
	return "(no output)"
}

// snapshotHistory copies the stored history so the turn can extend it
// without holding the lock.
func (a *Agent) snapshotHistory(sessionID string) []llm.ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := a.histories[sessionID]
	history := make([]llm.ChatMessage, len(stored))
	copy(history, stored)
	return history
}

// storeHistory persists the trailing historyLimit messages for the session.
func (a *Agent) storeHistory(sessionID string, messages []llm.ChatMessage) {
	if len(messages) > a.historyLimit {
		messages = messages[len(messages)-a.historyLimit:]
	}
	stored := make([]llm.ChatMessage, len(messages))
	copy(stored, messages)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.histories[sessionID] = stored
}

// parseArguments decodes tool-call arguments into the executor's
// parameter map. Handles both raw objects and string-wrapped JSON.
func parseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var params map[string]any
	if err := json.Unmarshal(raw, &params); err == nil {
		return params, nil
	}

	// Some providers double-encode arguments as a JSON string.
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if err := json.Unmarshal([]byte(wrapped), &params); err == nil {
			return params, nil
		}
	}

	return nil, fmt.Errorf("arguments are not a JSON object: %s", preview(string(raw), 80))
}

// preview cuts s to max bytes with an ellipsis marker.
func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
