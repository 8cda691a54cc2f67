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

func newTestOllamaClient(t *testing.T, baseURL string) *OllamaClient {
	t.Helper()
	client, err := NewOllamaClient(Config{
		Model:   "qwen-test",
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}
	return client
}

func TestOllamaClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}

		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Stream {
			t.Error("stream = true, want false")
		}
		if req.Model != "qwen-test" {
			t.Errorf("model = %q, want %q", req.Model, "qwen-test")
		}
		if _, ok := req.Options["temperature"]; !ok {
			t.Error("options missing default temperature")
		}
		if _, ok := req.Options["num_predict"]; !ok {
			t.Error("options missing default num_predict")
		}

		resp := ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "Checked the ledger."},
			Done:    true,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)

	got, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "check ledger"}}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if got != "Checked the ledger." {
		t.Errorf("Chat = %q, want the message content", got)
	}
}

func TestOllamaClient_Chat_ModelNotFoundHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'qwen-test' not found, try pulling it first"}`))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull qwen-test") {
		t.Errorf("error should include the pull hint, got: %s", err)
	}
}

func TestOllamaClient_ChatWithTools_SyntheticIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "get_analysis_state" {
			t.Errorf("tools = %+v, want get_analysis_state passed through", req.Tools)
		}

		body := `{
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"function": {"name": "get_analysis_state", "arguments": {}}},
					{"function": {"name": "plan_queries", "arguments": {"focus_areas": "refunds"}}}
				]
			},
			"done": true
		}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)

	tools := []ToolDef{{
		Type: "function",
		Function: ToolFunction{
			Name:        "get_analysis_state",
			Description: "Show pipeline progress",
			Parameters:  ToolParameters{Type: "object"},
		},
	}}

	result, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "where are we?"}}, GenerationParams{}, tools)
	if err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}

	if len(result.ToolCalls) != 2 {
		t.Fatalf("ToolCalls count = %d, want 2", len(result.ToolCalls))
	}
	if result.ToolCalls[0].ID != "call_0" || result.ToolCalls[1].ID != "call_1" {
		t.Errorf("synthetic IDs = %q, %q, want call_0, call_1",
			result.ToolCalls[0].ID, result.ToolCalls[1].ID)
	}
	if result.ToolCalls[1].Name != "plan_queries" {
		t.Errorf("second call name = %q, want plan_queries", result.ToolCalls[1].Name)
	}
	if !strings.Contains(result.ToolCalls[1].ArgumentsString(), "refunds") {
		t.Errorf("arguments = %s, want refunds", result.ToolCalls[1].ArgumentsString())
	}
	if result.StopReason != "tool_use" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "tool_use")
	}
}

func TestOllamaClient_ChatWithTools_ToolResultCarriesName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		var sawNamedResult bool
		for _, m := range req.Messages {
			if m.Role == "tool" && m.ToolName == "execute_queries" {
				sawNamedResult = true
			}
		}
		if !sawNamedResult {
			t.Error("tool result message did not carry tool_name")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"done"},"done":true}`))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)

	messages := []ChatMessage{
		{Role: "user", Content: "run queries"},
		{Role: "assistant", ToolCalls: []ToolCallResponse{
			{ID: "call_0", Name: "execute_queries", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: "tool", ToolCallID: "call_0", ToolName: "execute_queries", Content: "3/3 succeeded"},
	}

	result, err := client.ChatWithTools(context.Background(), messages, GenerationParams{}, nil)
	if err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}
	if result.StopReason != "end" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "end")
	}
	if result.Content != "done" {
		t.Errorf("Content = %q, want %q", result.Content, "done")
	}
}

func TestNewOllamaClient_BaseURLTrimsSlash(t *testing.T) {
	client, err := NewOllamaClient(Config{BaseURL: "http://ollama.local:11434/"})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}
	if client.baseURL != "http://ollama.local:11434" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
}

func TestNewOllamaClient_Defaults(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("OLLAMA_MODEL", "")

	client, err := NewOllamaClient(Config{})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}
	if client.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want the local default", client.baseURL)
	}
	if client.model != defaultOllamaModel {
		t.Errorf("model = %q, want default %q", client.model, defaultOllamaModel)
	}
	if client.Name() != ProviderOllama {
		t.Errorf("Name() = %q, want %q", client.Name(), ProviderOllama)
	}
}
