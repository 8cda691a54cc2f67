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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Wire mirrors of the server's response shapes. The CLI never imports the
// server packages; it speaks the JSON contract only.

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

type mailerStatus struct {
	Configured     bool   `json:"configured"`
	Placebo        bool   `json:"placebo"`
	ServiceID      string `json:"service_id"`
	TemplateID     string `json:"template_id"`
	TransportInbox string `json:"transport_inbox"`
	HasAccessToken bool   `json:"has_access_token"`
}

type greeting struct {
	Response    string `json:"response"`
	Suggestions []struct {
		Label string `json:"label"`
		Query string `json:"query"`
	} `json:"suggestions"`
}

type querySpec struct {
	ID       string `json:"id"`
	Purpose  string `json:"purpose"`
	SQLText  string `json:"sql_text"`
	Priority string `json:"priority"`
}

type droppedQuery struct {
	Purpose string `json:"purpose"`
	Reason  string `json:"reason"`
}

type planOutcome struct {
	Queries []querySpec    `json:"queries"`
	Dropped []droppedQuery `json:"dropped,omitempty"`
}

type queryResult struct {
	QueryID  string `json:"query_id"`
	RowCount int    `json:"row_count"`
	Err      string `json:"error,omitempty"`
}

type issue struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
}

type recipient struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

type fixProposal struct {
	IssueNumber     int         `json:"issue_number"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Actions         []string    `json:"actions"`
	ExpectedOutcome string      `json:"expected_outcome"`
	Priority        string      `json:"priority"`
	Recipients      []recipient `json:"recipients"`
}

type emailDraft struct {
	Index            int    `json:"index"`
	Role             string `json:"role"`
	RecipientName    string `json:"recipient_name"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	DisplayRecipient string `json:"display_recipient"`
}

type proposalOutcome struct {
	Proposal fixProposal  `json:"proposal"`
	Emails   []emailDraft `json:"emails"`
}

type dispatchRecord struct {
	Index       int    `json:"index"`
	IntendedTo  string `json:"intended_to"`
	TransportTo string `json:"transport_to"`
	Subject     string `json:"subject"`
	Delivered   bool   `json:"delivered"`
	Err         string `json:"error,omitempty"`
}

type investigationReport struct {
	SessionID string           `json:"session_id"`
	Stage     string           `json:"stage"`
	Plan      *planOutcome     `json:"plan,omitempty"`
	Results   []queryResult    `json:"results,omitempty"`
	Issues    []issue          `json:"issues"`
	Proposal  *proposalOutcome `json:"proposal,omitempty"`
	Dispatch  []dispatchRecord `json:"dispatch,omitempty"`
}

type dispatchResponse struct {
	SessionID string           `json:"session_id"`
	Sent      int              `json:"sent"`
	Failed    int              `json:"failed"`
	Records   []dispatchRecord `json:"records"`
	Mailer    mailerStatus     `json:"mailer"`
}

type toolUse struct {
	Name    string `json:"name"`
	Preview string `json:"preview"`
}

type chatTurn struct {
	Response  string    `json:"response"`
	ToolsUsed []toolUse `json:"tools_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type chatResponse struct {
	SessionID string    `json:"session_id"`
	Turn      *chatTurn `json:"turn"`
}

// apiClient talks to one Sentinel server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient builds a client for the given base URL. The long timeout
// covers model-bound stages, which routinely take minutes on local
// hardware.
func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *apiClient) Health(ctx context.Context) (*healthResponse, error) {
	var out healthResponse
	if err := c.call(ctx, http.MethodGet, "/v1/sentinel/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) MailerStatus(ctx context.Context) (*mailerStatus, error) {
	var out mailerStatus
	if err := c.call(ctx, http.MethodGet, "/v1/sentinel/mailer/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Greeting(ctx context.Context) (*greeting, error) {
	var out greeting
	if err := c.call(ctx, http.MethodGet, "/v1/sentinel/greeting", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Investigate runs the linear pipeline server-side. A stage failure still
// returns the partial report alongside the error so progress can be shown.
func (c *apiClient) Investigate(ctx context.Context, sessionID string, focusAreas []string, proposeIssue int) (*investigationReport, error) {
	body := map[string]any{"focus_areas": focusAreas}
	if proposeIssue > 0 {
		body["propose_issue"] = proposeIssue
	}

	var out investigationReport
	err := c.call(ctx, http.MethodPost, "/v1/sentinel/sessions/"+sessionID+"/investigate", body, &out)
	if err != nil {
		var stageErr *apiError
		if asAPIError(err, &stageErr) && stageErr.Report != nil {
			return stageErr.Report, err
		}
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Dispatch(ctx context.Context, sessionID string) (*dispatchResponse, error) {
	var out dispatchResponse
	if err := c.call(ctx, http.MethodPost, "/v1/sentinel/sessions/"+sessionID+"/dispatch", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Chat(ctx context.Context, sessionID, message string) (*chatTurn, error) {
	var out chatResponse
	err := c.call(ctx, http.MethodPost, "/v1/sentinel/sessions/"+sessionID+"/chat",
		map[string]string{"message": message}, &out)
	if err != nil {
		return nil, err
	}
	return out.Turn, nil
}

func (c *apiClient) Reset(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodPost, "/v1/sentinel/sessions/"+sessionID+"/reset", nil, nil)
}

// apiError is a non-2xx response decoded into the server's error envelope.
type apiError struct {
	StatusCode int
	Message    string
	Code       string
	// Report carries the partial investigation report on stage failures.
	Report *investigationReport
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func asAPIError(err error, target **apiError) bool {
	ae, ok := err.(*apiError)
	if ok {
		*target = ae
	}
	return ok
}

// call performs one JSON round trip. A nil out discards the response body.
func (c *apiClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sentinel server unavailable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{StatusCode: resp.StatusCode, Message: string(raw)}
		var envelope struct {
			Error  string               `json:"error"`
			Code   string               `json:"code"`
			Report *investigationReport `json:"report"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
			apiErr.Code = envelope.Code
			apiErr.Report = envelope.Report
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
