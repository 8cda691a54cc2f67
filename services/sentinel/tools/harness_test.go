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
	"testing"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/mailer"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
)

// fakeLLM implements llm.Client with scripted responses.
type fakeLLM struct {
	responses []string
	i         int
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-model" }

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, params)
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
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

func (f *fakeLLM) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, params llm.GenerationParams, tools []llm.ToolDef) (*llm.ChatWithToolsResult, error) {
	return &llm.ChatWithToolsResult{StopReason: "end"}, nil
}

// fakeReadOnlyStore returns one fixed row for every query.
type fakeReadOnlyStore struct {
	QueryFunc func(ctx context.Context, sqlText string) ([]map[string]any, error)
}

func (f *fakeReadOnlyStore) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, sqlText)
	}
	return []map[string]any{{"album_id": int64(3)}}, nil
}

func (f *fakeReadOnlyStore) Ping(ctx context.Context) error { return nil }
func (f *fakeReadOnlyStore) Close() error                   { return nil }

const testTransportInbox = "ops@sentinel.example"

// fakeSender mimics the relay's routing: every message goes to the
// configured transport inbox.
type fakeSender struct {
	SendFunc func(ctx context.Context, msg mailer.Message) (*mailer.Receipt, error)
	Sent     []mailer.Message
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) (*mailer.Receipt, error) {
	f.Sent = append(f.Sent, msg)
	if f.SendFunc != nil {
		return f.SendFunc(ctx, msg)
	}
	return &mailer.Receipt{
		TransportTo: testTransportInbox,
		Subject:     fmt.Sprintf("[To: %s] %s", msg.IntendedTo, msg.Subject),
	}, nil
}

func (f *fakeSender) Status() mailer.Status {
	return mailer.Status{Configured: true, TransportInbox: testTransportInbox}
}

const toolPlanJSON = `{
  "queries": [
    {"purpose": "Albums out of stock", "explanation": "Zero quantity on live listings.", "sql_query": "SELECT album_id FROM inventory WHERE quantity = 0", "priority": "critical"},
    {"purpose": "Failed payments", "sql_query": "SELECT * FROM payments WHERE status = 'failed'", "priority": "high"}
  ]
}`

const toolAnalysisJSON = `{
  "issues": [
    {"title": "Albums out of stock", "description": "Two zero-quantity albums.", "severity": "critical", "category": "inventory", "potential_impact": "Lost sales."},
    {"title": "Failed payment cluster", "description": "Several card declines in one hour.", "severity": "high", "category": "payments"}
  ]
}`

const toolFixJSON = `{
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

// toolHarness bundles a real service over fakes, its registry, and an
// executor ready to run invocations.
type toolHarness struct {
	svc      *sentinel.Service
	sender   *fakeSender
	registry *Registry
	executor *Executor
}

func newToolHarness(t *testing.T, responses ...string) *toolHarness {
	t.Helper()
	h := &toolHarness{sender: &fakeSender{}}
	svc, err := sentinel.NewService(sentinel.ServiceDeps{
		Config:   sentinel.Config{DispatchRate: 1000, DispatchBurst: 10},
		LLM:      &fakeLLM{responses: responses},
		Sessions: sentinel.NewMemoryStore(),
		Data:     &fakeReadOnlyStore{},
		Sender:   h.sender,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	h.svc = svc
	h.registry = NewInvestigationRegistry(svc)
	h.executor = NewExecutor(h.registry, nil)
	return h
}

// run executes one named tool through the executor and fails the test on
// executor-level errors.
func (h *toolHarness) run(t *testing.T, ctx context.Context, name string, params map[string]any) *Result {
	t.Helper()
	result, err := h.executor.Execute(ctx, &Invocation{ToolName: name, Parameters: params})
	if err != nil {
		t.Fatalf("Execute(%s) error = %v", name, err)
	}
	return result
}
