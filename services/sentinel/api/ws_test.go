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
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
)

func dialWS(t *testing.T, h *apiHarness) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(h.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + sessionPath("/ws")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocketChatTurn(t *testing.T) {
	client := &scriptedLLM{
		responses: []string{apiPlanJSON},
		toolResults: []*llm.ChatWithToolsResult{
			{
				ToolCalls: []llm.ToolCallResponse{
					{ID: "call_1", Name: "plan_queries", Arguments: json.RawMessage(`{"focus_areas": "inventory"}`)},
				},
				StopReason: "tool_use",
			},
			{Content: "Planned.", StopReason: "end"},
		},
	}
	h := newAPIHarness(t, client)
	ws := dialWS(t, h)

	var connected WSResponse
	require.NoError(t, ws.ReadJSON(&connected))
	assert.Equal(t, "connected", connected.Action)
	assert.Equal(t, testSession, connected.SessionID)

	require.NoError(t, ws.WriteJSON(WSRequest{Message: "Check inventory"}))

	var turn WSResponse
	require.NoError(t, ws.ReadJSON(&turn))
	require.Equal(t, "turn", turn.Action)
	require.NotNil(t, turn.Turn)
	assert.Equal(t, "Planned.", turn.Turn.Response)
	require.Len(t, turn.Turn.ToolsUsed, 1)
	assert.Equal(t, "plan_queries", turn.Turn.ToolsUsed[0].Name)
}

func TestWebSocketGreetingAndReset(t *testing.T) {
	h := newAPIHarness(t, &scriptedLLM{})
	ws := dialWS(t, h)

	var connected WSResponse
	require.NoError(t, ws.ReadJSON(&connected))
	require.Equal(t, "connected", connected.Action)

	require.NoError(t, ws.WriteJSON(WSRequest{Action: "greeting"}))
	var greeting WSResponse
	require.NoError(t, ws.ReadJSON(&greeting))
	assert.Equal(t, "greeting", greeting.Action)
	require.NotNil(t, greeting.Greeting)

	require.NoError(t, ws.WriteJSON(WSRequest{Action: "reset"}))
	var reset WSResponse
	require.NoError(t, ws.ReadJSON(&reset))
	assert.Equal(t, "reset", reset.Action)
}

func TestWebSocketEmptyMessageIsError(t *testing.T) {
	h := newAPIHarness(t, &scriptedLLM{})
	ws := dialWS(t, h)

	var connected WSResponse
	require.NoError(t, ws.ReadJSON(&connected))

	require.NoError(t, ws.WriteJSON(WSRequest{Message: "   "}))
	var resp WSResponse
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, "error", resp.Action)
	assert.Contains(t, resp.Error, "empty message")
}
