// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID = "7b7f3a5e-1111-4222-8333-444455556666"

func TestClientInvestigateSuccess(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sentinel/sessions/"+testSessionID+"/investigate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": testSessionID,
			"stage":      "analyzed",
			"plan": map[string]any{
				"queries": []map[string]any{
					{"id": "q1", "purpose": "Check stock", "sql_text": "SELECT 1", "priority": "high"},
				},
			},
			"results": []map[string]any{{"query_id": "q1", "row_count": 3}},
			"issues": []map[string]any{
				{"number": 1, "title": "Out of stock", "severity": "critical", "category": "inventory", "description": "Tracks empty"},
			},
		})
	}))
	defer server.Close()

	client := newAPIClient(server.URL)
	report, err := client.Investigate(context.Background(), testSessionID, []string{"inventory"}, 0)
	require.NoError(t, err)

	assert.Equal(t, []any{"inventory"}, gotBody["focus_areas"])
	assert.NotContains(t, gotBody, "propose_issue")
	assert.Equal(t, "analyzed", report.Stage)
	require.NotNil(t, report.Plan)
	assert.Equal(t, "q1", report.Plan.Queries[0].ID)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "critical", report.Issues[0].Severity)
}

func TestClientInvestigateStageFailureKeepsPartialReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "sentinel: the model returned no valid analysis",
			"code":  "STAGE_FAILED",
			"report": map[string]any{
				"session_id": testSessionID,
				"stage":      "executed",
				"results":    []map[string]any{{"query_id": "q1", "row_count": 3}},
			},
		})
	}))
	defer server.Close()

	client := newAPIClient(server.URL)
	report, err := client.Investigate(context.Background(), testSessionID, nil, 0)
	require.Error(t, err)

	var apiErr *apiError
	require.True(t, asAPIError(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "STAGE_FAILED", apiErr.Code)
	assert.Contains(t, err.Error(), "no valid analysis")
	assert.Contains(t, err.Error(), "STAGE_FAILED")

	require.NotNil(t, report, "partial report should survive a stage failure")
	assert.Equal(t, "executed", report.Stage)
	require.Len(t, report.Results, 1)
}

func TestClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sentinel/sessions/"+testSessionID+"/chat", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "check the store", req["message"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": testSessionID,
			"turn": map[string]any{
				"response": "Planned two queries.",
				"tools_used": []map[string]any{
					{"name": "plan_queries", "preview": "Generated 2 SQL Queries"},
				},
			},
		})
	}))
	defer server.Close()

	client := newAPIClient(server.URL)
	turn, err := client.Chat(context.Background(), testSessionID, "check the store")
	require.NoError(t, err)
	assert.Equal(t, "Planned two queries.", turn.Response)
	require.Len(t, turn.ToolsUsed, 1)
	assert.Equal(t, "plan_queries", turn.ToolsUsed[0].Name)
}

func TestClientErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "sentinel: no queries planned yet; call plan_queries first",
			"code":  "PRECONDITION_NOT_MET",
		})
	}))
	defer server.Close()

	client := newAPIClient(server.URL)
	_, err := client.Dispatch(context.Background(), testSessionID)
	require.Error(t, err)

	var apiErr *apiError
	require.True(t, asAPIError(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "PRECONDITION_NOT_MET", apiErr.Code)
	assert.Contains(t, apiErr.Message, "plan_queries")
}

func TestClientUnparsableErrorBodyFallsBackToRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream blew up"))
	}))
	defer server.Close()

	client := newAPIClient(server.URL)
	_, err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream blew up")
}

func TestServerBaseURLResolution(t *testing.T) {
	serverFlag = ""
	t.Setenv("SENTINEL_SERVER_URL", "")
	assert.Equal(t, "http://localhost:8080", serverBaseURL())

	t.Setenv("SENTINEL_SERVER_URL", "http://sentinel.internal:9090/")
	assert.Equal(t, "http://sentinel.internal:9090", serverBaseURL())

	serverFlag = "http://flagged:7070/"
	defer func() { serverFlag = "" }()
	assert.Equal(t, "http://flagged:7070", serverBaseURL())
}

func TestDispatchModeRendering(t *testing.T) {
	assert.Contains(t, dispatchMode(mailerStatus{Configured: false}), "disabled")
	assert.Contains(t, dispatchMode(mailerStatus{Configured: true, Placebo: true}), "placebo")
	assert.Contains(t, dispatchMode(mailerStatus{Configured: true, Placebo: false}), "live")
}
