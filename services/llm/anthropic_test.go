// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestAnthropicClient(t *testing.T, baseURL string) *AnthropicClient {
	t.Helper()
	client, err := NewAnthropicClient(Config{
		APIKey:  "test-key",
		Model:   "claude-test",
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	return client
}

func TestAnthropicClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q, want %q", got, "test-key")
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q, want %q", got, anthropicAPIVersion)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "claude-test" {
			t.Errorf("model = %q, want %q", req.Model, "claude-test")
		}
		if len(req.System) != 1 || req.System[0].Text != "You are a test assistant." {
			t.Errorf("system blocks = %+v, want the system prompt hoisted", req.System)
		}
		for _, m := range req.Messages {
			if m.Role == "system" {
				t.Error("system message leaked into the messages array")
			}
		}

		resp := anthropicResponse{
			ID:   "msg-123",
			Type: "message",
			Role: "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "Inventory levels look healthy."},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	messages := []Message{
		{Role: "system", Content: "You are a test assistant."},
		{Role: "user", Content: "Check inventory"},
	}

	got, err := client.Chat(context.Background(), messages, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if got != "Inventory levels look healthy." {
		t.Errorf("Chat = %q, want the text block content", got)
	}
}

func TestAnthropicClient_Chat_APIErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "anthropic: API returned status 429") {
		t.Errorf("error should carry the status, got: %s", err)
	}
}

func TestAnthropicClient_Chat_EmptyContentIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := anthropicResponse{ID: "msg-1", Type: "message", Role: "assistant"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if _, ok := err.(*EmptyResponseError); !ok {
		t.Errorf("error type = %T, want *EmptyResponseError", err)
	}
}

func TestAnthropicClient_ChatWithTools_ParsesToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicToolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Tools) != 1 {
			t.Errorf("tools count = %d, want 1", len(req.Tools))
		}

		body := `{
			"id": "msg-tool",
			"type": "message",
			"role": "assistant",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Let me plan some queries."},
				{"type": "tool_use", "id": "toolu_01", "name": "plan_queries",
				 "input": {"focus_areas": "inventory"}}
			]
		}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	tools := []ToolDef{{
		Type: "function",
		Function: ToolFunction{
			Name:        "plan_queries",
			Description: "Generate investigation queries",
			Parameters: ToolParameters{
				Type: "object",
				Properties: map[string]ToolParamDef{
					"focus_areas": {Type: "string"},
				},
			},
		},
	}}

	result, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "check inventory"}},
		GenerationParams{}, tools)
	if err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}

	if result.StopReason != "tool_use" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "tool_use")
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("ToolCalls count = %d, want 1", len(result.ToolCalls))
	}
	tc := result.ToolCalls[0]
	if tc.ID != "toolu_01" || tc.Name != "plan_queries" {
		t.Errorf("tool call = %+v, want toolu_01/plan_queries", tc)
	}
	if !strings.Contains(tc.ArgumentsString(), "inventory") {
		t.Errorf("arguments = %s, want focus_areas inventory", tc.ArgumentsString())
	}
	if result.Content != "Let me plan some queries." {
		t.Errorf("Content = %q, want the text block", result.Content)
	}
}

func TestAnthropicClient_ChatWithTools_ToolResultBecomesUserBlock(t *testing.T) {
	var captured struct {
		Messages []json.RawMessage `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m","type":"message","role":"assistant","content":[{"type":"text","text":"done"}]}`))
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	messages := []ChatMessage{
		{Role: "user", Content: "analyze"},
		{Role: "assistant", ToolCalls: []ToolCallResponse{
			{ID: "toolu_02", Name: "execute_queries", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: "tool", ToolCallID: "toolu_02", Content: "4/4 queries succeeded"},
	}

	if _, err := client.ChatWithTools(context.Background(), messages, GenerationParams{}, nil); err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("wire messages = %d, want 3", len(captured.Messages))
	}

	var last struct {
		Role    string `json:"role"`
		Content []struct {
			Type      string `json:"type"`
			ToolUseID string `json:"tool_use_id"`
			Content   string `json:"content"`
		} `json:"content"`
	}
	if err := json.Unmarshal(captured.Messages[2], &last); err != nil {
		t.Fatalf("failed to parse last wire message: %v", err)
	}
	if last.Role != "user" {
		t.Errorf("tool result role = %q, want user (Anthropic has no tool role)", last.Role)
	}
	if len(last.Content) != 1 || last.Content[0].Type != "tool_result" {
		t.Fatalf("tool result content = %+v, want one tool_result block", last.Content)
	}
	if last.Content[0].ToolUseID != "toolu_02" {
		t.Errorf("tool_use_id = %q, want toolu_02", last.Content[0].ToolUseID)
	}
}

func TestNewAnthropicClient_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAnthropicClient(Config{})
	if err == nil {
		t.Fatal("expected error when no API key is available")
	}
	if !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("error should name the env var, got: %s", err)
	}
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	client, err := NewAnthropicClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	if client.model != defaultAnthropicModel {
		t.Errorf("model = %q, want default %q", client.model, defaultAnthropicModel)
	}
	if client.baseURL != defaultAnthropicBaseURL {
		t.Errorf("baseURL = %q, want default", client.baseURL)
	}
	if client.Name() != ProviderAnthropic {
		t.Errorf("Name() = %q, want %q", client.Name(), ProviderAnthropic)
	}
}
