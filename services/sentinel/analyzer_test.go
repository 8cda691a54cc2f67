// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func analyzerFixture() ([]QuerySpec, []QueryResult) {
	queries := []QuerySpec{
		{ID: "q1", Purpose: "Low stock", Explanation: "Zero quantity means lost sales.", SQLText: "SELECT album_id FROM inventory WHERE quantity = 0"},
		{ID: "q2", Purpose: "Failed payments", SQLText: "SELECT * FROM payments WHERE status = 'failed'"},
	}
	results := []QueryResult{
		{QueryID: "q1", Rows: []map[string]any{{"album_id": int64(3)}, {"album_id": int64(7)}}, RowCount: 2},
		{QueryID: "q2", Err: "timeout"},
	}
	return queries, results
}

func TestAnalyzeMapsAndNormalizesIssues(t *testing.T) {
	response := "```json\n" + `{
  "issues": [
    {"title": "Albums out of stock", "description": "Two albums have zero quantity.", "severity": "CRITICAL", "category": "Inventory", "affected_records": ["album 3", "album 7"], "potential_impact": "Lost sales."},
    {"title": "Odd margins", "severity": "what", "category": "financial", "affected_records": 42}
  ]
}` + "\n```"
	client := &fakeLLM{ChatFunc: chatScript(response)}
	analyzer := NewAnalyzer(client, 0)
	queries, results := analyzerFixture()

	issues, err := analyzer.Analyze(context.Background(), queries, results)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	first := issues[0]
	if first.Severity != PriorityCritical || first.Category != CategoryInventory {
		t.Errorf("issues[0] severity/category = %q/%q, want critical/inventory", first.Severity, first.Category)
	}
	if !reflect.DeepEqual(first.AffectedRefs, []string{"album 3", "album 7"}) {
		t.Errorf("issues[0].AffectedRefs = %v", first.AffectedRefs)
	}
	if first.Impact != "Lost sales." {
		t.Errorf("issues[0].Impact = %q", first.Impact)
	}
	second := issues[1]
	if second.Severity != PriorityMedium || second.Category != CategoryRevenue {
		t.Errorf("issues[1] severity/category = %q/%q, want medium/revenue", second.Severity, second.Category)
	}
	if !reflect.DeepEqual(second.AffectedRefs, []string{"42"}) {
		t.Errorf("issues[1].AffectedRefs = %v", second.AffectedRefs)
	}
	if issues[0].Number != 0 || issues[1].Number != 0 {
		t.Errorf("analyzer must not number issues, got %d/%d", issues[0].Number, issues[1].Number)
	}
}

func TestAnalyzeSendsEvidenceWithFailures(t *testing.T) {
	client := &fakeLLM{ChatFunc: chatScript(`{"issues": []}`)}
	analyzer := NewAnalyzer(client, 0)
	queries, results := analyzerFixture()

	if _, err := analyzer.Analyze(context.Background(), queries, results); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(client.ChatCalls) != 1 {
		t.Fatalf("Chat called %d times, want 1", len(client.ChatCalls))
	}
	user := client.ChatCalls[0][1].Content
	for _, want := range []string{
		"Query q1: Low stock",
		"Explanation: Zero quantity means lost sales.",
		"Results (2 rows):",
		"Query q2: Failed payments",
		"Query failed: timeout",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("analyzer prompt missing %q", want)
		}
	}
}

func TestAnalyzeZeroIssuesIsSuccess(t *testing.T) {
	client := &fakeLLM{ChatFunc: chatScript(`{"issues": []}`)}
	analyzer := NewAnalyzer(client, 0)
	queries, results := analyzerFixture()

	issues, err := analyzer.Analyze(context.Background(), queries, results)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("len(issues) = %d, want 0", len(issues))
	}
}

func TestAnalyzeCapsIssueCount(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"issues": [`)
	for i := 0; i < 9; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"title": "issue %d"}`, i+1)
	}
	sb.WriteString(`]}`)
	client := &fakeLLM{ChatFunc: chatScript(sb.String())}
	analyzer := NewAnalyzer(client, 0)
	queries, results := analyzerFixture()

	issues, err := analyzer.Analyze(context.Background(), queries, results)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(issues) != maxReportedIssues {
		t.Fatalf("len(issues) = %d, want %d", len(issues), maxReportedIssues)
	}
	if issues[0].Title != "issue 1" || issues[6].Title != "issue 7" {
		t.Errorf("cap must keep model order, got first %q last %q", issues[0].Title, issues[6].Title)
	}
}

func TestAnalyzeWithoutResultsFails(t *testing.T) {
	analyzer := NewAnalyzer(&fakeLLM{}, 0)
	if _, err := analyzer.Analyze(context.Background(), nil, nil); !errors.Is(err, ErrNoQueryResults) {
		t.Errorf("Analyze() error = %v, want ErrNoQueryResults", err)
	}
}

func TestAnalyzeRejectsMalformedResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  string
	}{
		{"prose only", "Everything looks fine to me!", "no JSON object found"},
		{"wrong shape", `{"issues": [{"title": 1}]}`, "decoding analyzer response"},
		{"missing title", `{"issues": [{"description": "no title"}]}`, "failed validation"},
	}
	queries, results := analyzerFixture()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeLLM{ChatFunc: chatScript(tc.response)}
			analyzer := NewAnalyzer(client, 0)
			_, err := analyzer.Analyze(context.Background(), queries, results)
			if err == nil {
				t.Fatal("Analyze() should fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestBoundEvidenceSplitsOnQueryBoundaries(t *testing.T) {
	analyzer := NewAnalyzer(&fakeLLM{}, 600)

	var queries []QuerySpec
	var results []QueryResult
	for i := 1; i <= 6; i++ {
		queries = append(queries, QuerySpec{
			ID:      fmt.Sprintf("q%d", i),
			Purpose: fmt.Sprintf("purpose %d", i),
			SQLText: "SELECT " + strings.Repeat("x", 120),
		})
		results = append(results, QueryResult{QueryID: fmt.Sprintf("q%d", i), Rows: []map[string]any{{"n": i}}, RowCount: 1})
	}
	evidence := buildResultsContext(queries, results)
	if len(evidence) <= 600 {
		t.Fatalf("fixture too small: %d chars", len(evidence))
	}

	bounded := analyzer.boundEvidence(evidence)
	if len(bounded) > 600 {
		t.Errorf("bounded evidence = %d chars, want <= 600", len(bounded))
	}
	if !strings.Contains(bounded, "Query q1: purpose 1") {
		t.Errorf("bounded evidence must keep the first query block")
	}
}

func TestBoundEvidencePassesSmallBlocksThrough(t *testing.T) {
	analyzer := NewAnalyzer(&fakeLLM{}, 600)
	if got := analyzer.boundEvidence("small"); got != "small" {
		t.Errorf("boundEvidence(small) = %q", got)
	}
}
