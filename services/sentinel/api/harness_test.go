// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/mailer"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/agent"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/tools"
)

// testSession is a fixed UUID-shaped session ID used across the handler
// tests.
const testSession = "7b7f3a5e-1111-4222-8333-444455556666"

// scriptedLLM serves both surfaces: plain completions from a queue for
// the pipeline stages, and scripted ChatWithTools results for the agent.
type scriptedLLM struct {
	responses   []string
	i           int
	toolResults []*llm.ChatWithToolsResult
	n           int
}

func (f *scriptedLLM) Name() string  { return "fake" }
func (f *scriptedLLM) Model() string { return "fake-model" }

func (f *scriptedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, params)
}

func (f *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	if len(f.responses) == 0 {
		return "", nil
	}
	if f.i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	resp := f.responses[f.i]
	f.i++
	return resp, nil
}

func (f *scriptedLLM) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, params llm.GenerationParams, defs []llm.ToolDef) (*llm.ChatWithToolsResult, error) {
	if len(f.toolResults) == 0 {
		return &llm.ChatWithToolsResult{Content: "done", StopReason: "end"}, nil
	}
	result := f.toolResults[f.n]
	if f.n < len(f.toolResults)-1 {
		f.n++
	}
	return result, nil
}

type fakeReadOnlyStore struct{}

func (f *fakeReadOnlyStore) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	return []map[string]any{{"album_id": int64(3)}}, nil
}
func (f *fakeReadOnlyStore) Ping(ctx context.Context) error { return nil }
func (f *fakeReadOnlyStore) Close() error                   { return nil }

type fakeSender struct {
	failWith string
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) (*mailer.Receipt, error) {
	if f.failWith != "" {
		return nil, fmt.Errorf("%s", f.failWith)
	}
	return &mailer.Receipt{
		TransportTo: "ops@sentinel.example",
		Subject:     fmt.Sprintf("[To: %s] %s", msg.IntendedTo, msg.Subject),
	}, nil
}

func (f *fakeSender) Status() mailer.Status {
	return mailer.Status{Configured: true, TransportInbox: "ops@sentinel.example"}
}

const apiPlanJSON = `{
  "queries": [
    {"purpose": "Albums out of stock", "sql_query": "SELECT album_id FROM inventory WHERE quantity = 0", "priority": "critical"},
    {"purpose": "Failed payments", "sql_query": "SELECT * FROM payments WHERE status = 'failed'", "priority": "high"}
  ]
}`

const apiAnalysisJSON = `{
  "issues": [
    {"title": "Albums out of stock", "description": "Two zero-quantity albums.", "severity": "critical", "category": "inventory"},
    {"title": "Failed payment cluster", "description": "Several card declines.", "severity": "high", "category": "payments"}
  ]
}`

const apiFixJSON = `{
  "fixes": [
    {
      "fix_title": "Restock the out-of-stock albums",
      "fix_description": "Create purchase orders for the affected albums.",
      "automated_actions": ["Create purchase orders"],
      "expected_outcome": "Stock restored within lead time.",
      "priority": "urgent",
      "recipients": [
        {"name": "Rhea Patel", "role": "manager", "email": "rhea@store.example", "reason": "Approves purchase orders"}
      ]
    }
  ]
}`

// apiHarness is a wired router over fakes.
type apiHarness struct {
	router *gin.Engine
	llm    *scriptedLLM
	sender *fakeSender
}

func newAPIHarness(t *testing.T, client *scriptedLLM) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &apiHarness{llm: client, sender: &fakeSender{}}
	svc, err := sentinel.NewService(sentinel.ServiceDeps{
		Config:   sentinel.Config{DispatchRate: 1000, DispatchBurst: 10},
		LLM:      client,
		Sessions: sentinel.NewMemoryStore(),
		Data:     &fakeReadOnlyStore{},
		Sender:   h.sender,
	})
	require.NoError(t, err)

	registry := tools.NewInvestigationRegistry(svc)
	ag := agent.New(svc, client, tools.NewExecutor(registry, nil), sentinel.Config{})
	handlers := NewHandlers(svc, sentinel.NewPipeline(svc), ag, registry)

	h.router = gin.New()
	RegisterRoutes(h.router.Group("/v1"), handlers)
	return h
}

// do runs one request and returns the recorder.
func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals the recorder body into out.
func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

// sessionPath builds a session-scoped path.
func sessionPath(suffix string) string {
	return "/v1/sentinel/sessions/" + testSession + suffix
}

// errorCode extracts the error code from an error response body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, rec, &resp)
	return resp.Code
}
