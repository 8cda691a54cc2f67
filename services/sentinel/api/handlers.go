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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/agent"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/tools"
)

// Handlers bundles the HTTP handlers over one service instance.
//
// Thread Safety: Handlers is safe for concurrent use; all state lives in
// the service, pipeline, and agent it wraps.
type Handlers struct {
	svc      *sentinel.Service
	pipeline *sentinel.Pipeline
	agent    *agent.Agent
	registry *tools.Registry
}

// NewHandlers creates the handler set.
func NewHandlers(svc *sentinel.Service, pipeline *sentinel.Pipeline, ag *agent.Agent, registry *tools.Registry) *Handlers {
	return &Handlers{svc: svc, pipeline: pipeline, agent: ag, registry: registry}
}

// getOrCreateRequestID returns the X-Request-ID header or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// sessionID returns the session bound by RequireSessionID.
func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

// writeServiceError maps service errors onto HTTP codes.
//
// Precondition errors are 409: the session exists but is not in the right
// stage, and the error text names the call that unblocks it. Argument
// errors are 400. Everything else is a 500.
func writeServiceError(c *gin.Context, logger *slog.Logger, err error) {
	var issueRange *sentinel.IssueRangeError
	var emailRange *sentinel.EmailRangeError
	var unknownRole *sentinel.UnknownRoleError

	switch {
	case errors.Is(err, sentinel.ErrNoQueriesPlanned),
		errors.Is(err, sentinel.ErrNoQueryResults),
		errors.Is(err, sentinel.ErrNoIssues),
		errors.Is(err, sentinel.ErrNoProposal),
		errors.Is(err, sentinel.ErrNoPendingEmails):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "PRECONDITION_NOT_MET"})

	case errors.Is(err, sentinel.ErrSessionChanged):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "SESSION_CHANGED"})

	case errors.As(err, &issueRange), errors.As(err, &emailRange),
		errors.As(err, &unknownRole), errors.Is(err, sentinel.ErrBadEmailField):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_ARGUMENT"})

	case errors.Is(err, sentinel.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "SESSION_NOT_FOUND"})

	default:
		logger.Error("Stage failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STAGE_FAILED"})
	}
}

// HandleHealth handles GET /v1/sentinel/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": h.svc.StoreName()})
}

// HandleGreeting handles GET /v1/sentinel/greeting.
//
// Response:
//
//	200 OK: the opening markdown message plus suggestion chips
func (h *Handlers) HandleGreeting(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Greeting())
}

// HandleTools handles GET /v1/sentinel/tools.
//
// Response:
//
//	200 OK: ToolsResponse, priority-ordered
func (h *Handlers) HandleTools(c *gin.Context) {
	c.JSON(http.StatusOK, ToolsResponse{Tools: h.registry.GetDefinitions()})
}

// HandleMailerStatus handles GET /v1/sentinel/mailer/status.
//
// Response:
//
//	200 OK: mailer.Status with masked identifiers
func (h *Handlers) HandleMailerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.MailerStatus())
}

// HandlePlan handles POST /v1/sentinel/sessions/:id/plan.
//
// Request Body:
//
//	PlanRequest (focus_areas optional; empty means all areas)
//
// Response:
//
//	200 OK: PlanResponse
//	500 Internal Server Error: completion service or store failure
func (h *Handlers) HandlePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePlan")
	id := sessionID(c)

	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Empty body is a full-scope plan.
		req = PlanRequest{}
	}

	plan, err := h.svc.Plan(c.Request.Context(), id, req.FocusAreas)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	logger.Info("plan created",
		slog.String("session_id", id),
		slog.Int("queries", len(plan.Queries)),
		slog.Int("dropped", len(plan.Dropped)),
	)
	c.JSON(http.StatusOK, PlanResponse{SessionID: id, Plan: plan})
}

// HandleExecute handles POST /v1/sentinel/sessions/:id/execute.
//
// Response:
//
//	200 OK: ExecuteResponse (per-query failures are rows, not errors)
//	409 Conflict: no queries planned
func (h *Handlers) HandleExecute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExecute")
	id := sessionID(c)

	results, err := h.svc.Execute(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, ExecuteResponse{SessionID: id, Results: results})
}

// HandleAnalyze handles POST /v1/sentinel/sessions/:id/analyze.
//
// Response:
//
//	200 OK: AnalyzeResponse (empty issue list means healthy)
//	409 Conflict: no query results yet
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")
	id := sessionID(c)

	issues, err := h.svc.Analyze(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	if issues == nil {
		issues = []sentinel.Issue{}
	}

	c.JSON(http.StatusOK, AnalyzeResponse{SessionID: id, Issues: issues})
}

// HandleIssueDetail handles GET /v1/sentinel/sessions/:id/issues/:num.
//
// Response:
//
//	200 OK: the issue
//	400 Bad Request: non-numeric or out-of-range number
//	409 Conflict: no issues identified yet
func (h *Handlers) HandleIssueDetail(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIssueDetail")
	id := sessionID(c)

	number, err := strconv.Atoi(c.Param("num"))
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "issue number must be a positive integer",
			Code:  "INVALID_ARGUMENT",
		})
		return
	}

	issue, err := h.svc.IssueDetail(id, number)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// HandleIssues handles GET /v1/sentinel/sessions/:id/issues.
//
// Query Parameters:
//
//	q: optional keyword; empty returns the full list
//
// Response:
//
//	200 OK: IssuesResponse
//	409 Conflict: no issues identified yet
func (h *Handlers) HandleIssues(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIssues")
	id := sessionID(c)

	var issues []sentinel.Issue
	var err error
	if q := c.Query("q"); q != "" {
		issues, err = h.svc.FindIssues(id, q)
	} else {
		var snap *sentinel.StateSnapshot
		snap, err = h.svc.DescribeState(id)
		if err == nil && !snap.State.Analyzed {
			err = sentinel.ErrNoIssues
		}
		if err == nil {
			issues = snap.State.Issues
		}
	}
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	if issues == nil {
		issues = []sentinel.Issue{}
	}

	c.JSON(http.StatusOK, IssuesResponse{SessionID: id, Issues: issues})
}

// HandlePropose handles POST /v1/sentinel/sessions/:id/propose.
//
// Request Body:
//
//	ProposeRequest
//
// Response:
//
//	200 OK: ProposeResponse
//	400 Bad Request: issue number out of range
//	409 Conflict: no issues identified yet
func (h *Handlers) HandlePropose(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePropose")
	id := sessionID(c)

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "issue_number is required and must be >= 1",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	outcome, err := h.svc.ProposeFix(c.Request.Context(), id, req.IssueNumber)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	logger.Info("fix proposed",
		slog.String("session_id", id),
		slog.Int("issue", req.IssueNumber),
		slog.Int("emails", len(outcome.Emails)),
	)
	c.JSON(http.StatusOK, ProposeResponse{SessionID: id, Proposal: outcome})
}

// HandleComposeEmail handles POST /v1/sentinel/sessions/:id/emails.
//
// Request Body:
//
//	ComposeEmailRequest
//
// Response:
//
//	200 OK: ComposeEmailResponse
//	400 Bad Request: unknown role or issue number out of range
func (h *Handlers) HandleComposeEmail(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleComposeEmail")
	id := sessionID(c)

	var req ComposeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "issue_number and role are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	draft, err := h.svc.ComposeEmail(c.Request.Context(), id, req.IssueNumber, req.Role)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, ComposeEmailResponse{SessionID: id, Email: draft})
}

// HandleEditEmail handles PATCH /v1/sentinel/sessions/:id/emails/:index.
//
// Request Body:
//
//	EditEmailRequest (field is "subject" or "body")
//
// Response:
//
//	200 OK: EditEmailResponse
//	400 Bad Request: bad index, field, or empty value
//	409 Conflict: no pending drafts
func (h *Handlers) HandleEditEmail(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEditEmail")
	id := sessionID(c)

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "email index must be a positive integer",
			Code:  "INVALID_ARGUMENT",
		})
		return
	}

	var req EditEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "field and value are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	draft, oldValue, err := h.svc.EditEmail(c.Request.Context(), id, index, req.Field, req.Value)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, EditEmailResponse{SessionID: id, Email: draft, OldValue: oldValue})
}

// HandleDispatch handles POST /v1/sentinel/sessions/:id/dispatch.
//
// Description:
//
//	Sends the pending drafts. Calling this endpoint IS the approval;
//	there is no extra confirmation layer here. Per-email failures are
//	recorded in the response, not surfaced as an HTTP error.
//
// Response:
//
//	200 OK: DispatchResponse
//	409 Conflict: no pending drafts
func (h *Handlers) HandleDispatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDispatch")
	id := sessionID(c)

	records, err := h.svc.Dispatch(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	sent, failed := 0, 0
	for _, rec := range records {
		if rec.Delivered {
			sent++
		} else {
			failed++
		}
	}
	logger.Info("dispatch finished",
		slog.String("session_id", id),
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)

	c.JSON(http.StatusOK, DispatchResponse{
		SessionID: id,
		Sent:      sent,
		Failed:    failed,
		Records:   records,
		Mailer:    h.svc.MailerStatus(),
	})
}

// HandleState handles GET /v1/sentinel/sessions/:id/state.
//
// Response:
//
//	200 OK: sentinel.StateSnapshot
func (h *Handlers) HandleState(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleState")
	id := sessionID(c)

	snap, err := h.svc.DescribeState(id)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// HandleReset handles POST /v1/sentinel/sessions/:id/reset.
//
// Description:
//
//	Clears both the investigation state and the agent's conversation
//	history for the session.
//
// Response:
//
//	200 OK: ResetResponse
func (h *Handlers) HandleReset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReset")
	id := sessionID(c)

	if err := h.svc.Reset(c.Request.Context(), id); err != nil {
		writeServiceError(c, logger, err)
		return
	}
	h.agent.ForgetSession(id)

	c.JSON(http.StatusOK, ResetResponse{SessionID: id, Reset: true})
}

// HandleInvestigate handles POST /v1/sentinel/sessions/:id/investigate.
//
// Description:
//
//	Runs the linear pipeline in one call. On a stage error the partial
//	report is returned alongside the error payload so callers can show
//	how far the run got.
//
// Request Body:
//
//	sentinel.InvestigateOptions (all fields optional)
//
// Response:
//
//	200 OK: sentinel.InvestigationReport
//	502 Bad Gateway: a stage failed; body carries error + partial report
func (h *Handlers) HandleInvestigate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleInvestigate")
	id := sessionID(c)

	var opts sentinel.InvestigateOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		opts = sentinel.InvestigateOptions{}
	}

	report, err := h.pipeline.Investigate(c.Request.Context(), id, opts)
	if err != nil {
		logger.Error("investigation stopped",
			slog.String("session_id", id),
			slog.String("stage", string(report.Stage)),
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  err.Error(),
			"code":   "STAGE_FAILED",
			"report": report,
		})
		return
	}

	logger.Info("investigation finished",
		slog.String("session_id", id),
		slog.String("stage", string(report.Stage)),
		slog.Int("issues", len(report.Issues)),
	)
	c.JSON(http.StatusOK, report)
}

// HandleChat handles POST /v1/sentinel/sessions/:id/chat.
//
// Request Body:
//
//	ChatRequest
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: empty message
//	502 Bad Gateway: completion service failure
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")
	id := sessionID(c)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "message is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	turn, err := h.agent.Turn(c.Request.Context(), id, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "message is required",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		logger.Error("agent turn failed", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: err.Error(),
			Code:  "COMPLETION_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{SessionID: id, Turn: turn})
}
