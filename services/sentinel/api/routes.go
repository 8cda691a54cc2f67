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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all sentinel routes with the router.
//
// Description:
//
//	Registers the /v1/sentinel/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Service Endpoints:
//
//	GET  /v1/sentinel/health - Health check
//	GET  /v1/sentinel/greeting - Opening message + suggestion chips
//	GET  /v1/sentinel/tools - Agent tool catalog
//	GET  /v1/sentinel/mailer/status - Masked relay configuration
//
// Session Endpoints (the :id must be a UUID; sessions are created lazily):
//
//	POST /v1/sentinel/sessions/:id/plan - Generate the query plan
//	POST /v1/sentinel/sessions/:id/execute - Run the planned queries
//	POST /v1/sentinel/sessions/:id/analyze - Identify issues
//	GET  /v1/sentinel/sessions/:id/issues - List issues (?q= keyword filter)
//	GET  /v1/sentinel/sessions/:id/issues/:num - One issue in full
//	POST /v1/sentinel/sessions/:id/propose - Compose a fix proposal
//	POST /v1/sentinel/sessions/:id/emails - Draft one on-demand email
//	PATCH /v1/sentinel/sessions/:id/emails/:index - Edit a pending draft
//	POST /v1/sentinel/sessions/:id/dispatch - Send the pending drafts
//	GET  /v1/sentinel/sessions/:id/state - Investigation state snapshot
//	POST /v1/sentinel/sessions/:id/reset - Clear state + chat history
//	POST /v1/sentinel/sessions/:id/investigate - Linear pipeline in one call
//	POST /v1/sentinel/sessions/:id/chat - One agent turn
//	GET  /v1/sentinel/sessions/:id/ws - Websocket chat
//
// Example:
//
//	svc, _ := sentinel.NewService(deps)
//	registry := tools.NewInvestigationRegistry(svc)
//	ag := agent.New(svc, llmClient, tools.NewExecutor(registry, nil), cfg)
//	handlers := api.NewHandlers(svc, sentinel.NewPipeline(svc), ag, registry)
//
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	sentinel := rg.Group("/sentinel")
	{
		sentinel.GET("/health", handlers.HandleHealth)
		sentinel.GET("/greeting", handlers.HandleGreeting)
		sentinel.GET("/tools", handlers.HandleTools)
		sentinel.GET("/mailer/status", handlers.HandleMailerStatus)

		sessions := sentinel.Group("/sessions/:id", RequireSessionID())
		{
			// Pipeline stages
			sessions.POST("/plan", handlers.HandlePlan)
			sessions.POST("/execute", handlers.HandleExecute)
			sessions.POST("/analyze", handlers.HandleAnalyze)
			sessions.POST("/propose", handlers.HandlePropose)
			sessions.POST("/dispatch", handlers.HandleDispatch)

			// Issue lookups
			sessions.GET("/issues", handlers.HandleIssues)
			sessions.GET("/issues/:num", handlers.HandleIssueDetail)

			// Email drafts
			sessions.POST("/emails", handlers.HandleComposeEmail)
			sessions.PATCH("/emails/:index", handlers.HandleEditEmail)

			// Session housekeeping
			sessions.GET("/state", handlers.HandleState)
			sessions.POST("/reset", handlers.HandleReset)

			// Orchestrators
			sessions.POST("/investigate", handlers.HandleInvestigate)
			sessions.POST("/chat", handlers.HandleChat)
			sessions.GET("/ws", handlers.HandleChatWebSocket)
		}
	}
}
