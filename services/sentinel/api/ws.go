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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/agent"
)

// WSRequest is one inbound websocket message.
type WSRequest struct {
	// Message is the user's free-text turn.
	Message string `json:"message"`

	// Action selects a non-chat operation: "greeting" or "reset".
	Action string `json:"action,omitempty"`
}

// WSResponse is one outbound websocket message.
type WSResponse struct {
	// Action labels the message: "connected", "greeting", "turn",
	// "reset", or "error".
	Action string `json:"action"`

	// SessionID is the session this connection is bound to.
	SessionID string `json:"session_id,omitempty"`

	// Turn carries an agent turn for action "turn".
	Turn *agent.TurnResult `json:"turn,omitempty"`

	// Greeting carries the opening message for action "greeting".
	Greeting any `json:"greeting,omitempty"`

	// Error carries the failure text for action "error".
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v any) error {
	if err := ws.WriteJSON(v); err != nil {
		slog.Warn("Failed to write websocket JSON", "error", err)
		return err
	}
	return nil
}

// HandleChatWebSocket handles GET /v1/sentinel/sessions/:id/ws.
//
// Description:
//
//	Upgrades the connection and runs a chat loop: each inbound message
//	is one agent turn, each outbound message one turn result. The
//	session comes from the URL, so reconnecting to the same ID resumes
//	the same investigation state.
//
// Thread Safety: Each connection is served by its own goroutine; turns on
// one connection run sequentially.
func (h *Handlers) HandleChatWebSocket(c *gin.Context) {
	id := sessionID(c)
	logger := slog.With("session_id", id, "handler", "HandleChatWebSocket")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	logger.Info("websocket client connected")

	if err := sendJSON(ws, WSResponse{Action: "connected", SessionID: id}); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		var req WSRequest
		if err := ws.ReadJSON(&req); err != nil {
			logger.Info("websocket client disconnected", "error", err.Error())
			return
		}

		switch req.Action {
		case "greeting":
			if sendJSON(ws, WSResponse{Action: "greeting", SessionID: id, Greeting: h.agent.Greeting()}) != nil {
				return
			}
			continue
		case "reset":
			if err := h.svc.Reset(ctx, id); err != nil {
				if sendJSON(ws, WSResponse{Action: "error", SessionID: id, Error: err.Error()}) != nil {
					return
				}
				continue
			}
			h.agent.ForgetSession(id)
			if sendJSON(ws, WSResponse{Action: "reset", SessionID: id}) != nil {
				return
			}
			continue
		}

		start := time.Now()
		turn, err := h.agent.Turn(ctx, id, req.Message)
		if err != nil {
			logger.Error("agent turn failed", "error", err)
			if sendJSON(ws, WSResponse{Action: "error", SessionID: id, Error: err.Error()}) != nil {
				return
			}
			continue
		}

		logger.Debug("websocket turn served",
			"tools_used", len(turn.ToolsUsed),
			"duration", time.Since(start))
		if sendJSON(ws, WSResponse{Action: "turn", SessionID: id, Turn: turn}) != nil {
			return
		}
	}
}
