// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mailer is the outbound boundary for every email the agent
// produces. It relays messages through the EmailJS REST API and enforces
// one invariant: the transport address on the wire is always one of the
// two operator-configured inboxes (placebo or operations). The intended
// recipient, which originates from model output, is carried only inside
// the subject-line annotation and is never used to address anything.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const mailerTracerName = "sentinel.mailer"

// relayTimeLayout matches the timestamp format the email template renders.
const relayTimeLayout = "2006-01-02 15:04:05"

const (
	// relayMaxRetries bounds transport retries; 2 retries means at most
	// 3 attempts per message.
	relayMaxRetries           = 2
	relayRetryInitialInterval = 500 * time.Millisecond
	relayErrorBodyLimit       = 512
)

// ErrNotConfigured is returned by Send when the relay credentials or the
// active transport inbox are missing.
var ErrNotConfigured = errors.New("mailer: relay is not configured (set the EmailJS credentials and a transport inbox)")

// ===== Public API =====

// Message is one email as the agent composed it. IntendedTo is the
// model-produced recipient address; it is annotation material only.
type Message struct {
	IntendedTo string
	Name       string
	Subject    string
	Body       string
}

// Receipt describes where a message actually went.
type Receipt struct {
	TransportTo string
	Subject     string
	Placebo     bool
}

// Status is a credential-masked snapshot of the relay configuration.
type Status struct {
	Configured     bool   `json:"configured"`
	Placebo        bool   `json:"placebo"`
	ServiceID      string `json:"service_id"`
	TemplateID     string `json:"template_id"`
	TransportInbox string `json:"transport_inbox"`
	HasAccessToken bool   `json:"has_access_token"`
}

// Sender relays one message at a time. Batch iteration, ordering, and
// per-message failure accounting belong to the caller.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
	Status() Status
}

// ===== EmailJS wire types =====

type relayPayload struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	TemplateParams templateParams `json:"template_params"`
	AccessToken    string         `json:"accessToken,omitempty"`
}

type templateParams struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

// ===== Relay implementation =====

// RelaySender implements Sender against the EmailJS send endpoint using
// raw net/http. The private access token stays sealed in a memguard
// enclave between sends.
//
// Thread Safety: RelaySender is safe for concurrent use.
type RelaySender struct {
	cfg        Config
	httpClient *http.Client

	// newBackOff returns a fresh retry policy per send. BackOff
	// implementations are stateful and must not be shared.
	newBackOff func() backoff.BackOff
}

// NewRelaySender creates a RelaySender from configuration.
//
// Description:
//
//	Missing credentials do not fail construction; they surface as
//	ErrNotConfigured on the first Send so the agent can report an
//	actionable precondition instead of crashing at startup.
//
// Inputs:
//   - cfg: Relay configuration, usually from LoadConfig.
//
// Outputs:
//   - *RelaySender: The configured sender.
func NewRelaySender(cfg Config) *RelaySender {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultRelayURL
	}
	if cfg.Origin == "" {
		cfg.Origin = defaultRelayOrigin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRelayTimeout
	}

	if !cfg.configured() {
		slog.Warn("Email relay is not fully configured; sends will be refused",
			slog.Bool("placebo", cfg.PlaceboMode))
	}

	return &RelaySender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		newBackOff: newRelayBackoff,
	}
}

func newRelayBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = relayRetryInitialInterval
	return backoff.WithMaxRetries(bo, relayMaxRetries)
}

// Status implements Sender.Status with masked credential identifiers.
func (s *RelaySender) Status() Status {
	inbox := s.cfg.OperationsInbox
	if s.cfg.PlaceboMode {
		inbox = s.cfg.PlaceboInbox
	}
	return Status{
		Configured:     s.cfg.configured(),
		Placebo:        s.cfg.PlaceboMode,
		ServiceID:      maskID(s.cfg.ServiceID),
		TemplateID:     maskID(s.cfg.TemplateID),
		TransportInbox: inbox,
		HasAccessToken: s.cfg.PrivateKey != nil,
	}
}

// Send implements Sender.Send.
//
// Description:
//
//	Routes the message to the active transport inbox, annotates the
//	subject with the intended recipient, and posts the EmailJS payload
//	with bounded retries. In placebo mode the subject gains a
//	"[PLACEBO: <intended>]" prefix and the recipient name a "[Test]"
//	prefix; in production mode the subject gains "[To: <intended>]"
//	and everything goes to the operations inbox. The template's email
//	field always carries the transport inbox, never msg.IntendedTo.
//
// Inputs:
//   - ctx: Governs the whole retry sequence.
//   - msg: The composed email.
//
// Outputs:
//   - *Receipt: The transport address and final subject on success.
//   - error: ErrNotConfigured, or the last transport error.
//
// Thread Safety: This method is safe for concurrent use.
func (s *RelaySender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	ctx, span := otel.Tracer(mailerTracerName).Start(ctx, "RelaySender.Send")
	defer span.End()
	span.SetAttributes(attribute.Bool("mailer.placebo", s.cfg.PlaceboMode))

	if !s.cfg.configured() {
		span.RecordError(ErrNotConfigured)
		span.SetStatus(codes.Error, ErrNotConfigured.Error())
		recordRefused(s.mode())
		return nil, ErrNotConfigured
	}

	to, subject, name := s.route(msg)

	reqBody, err := s.marshalPayload(to, subject, name, msg.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	relayStatus, err := s.post(ctx, reqBody)
	duration := time.Since(start)
	span.SetAttributes(attribute.Int("mailer.relay_status", relayStatus))
	recordSend(s.mode(), duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slog.Info("Email relayed",
		slog.String("transport_to", to),
		slog.Bool("placebo", s.cfg.PlaceboMode),
	)
	return &Receipt{TransportTo: to, Subject: subject, Placebo: s.cfg.PlaceboMode}, nil
}

// route picks the transport inbox and rewrites the subject and display
// name. The returned address comes from configuration only.
func (s *RelaySender) route(msg Message) (to, subject, name string) {
	if s.cfg.PlaceboMode {
		return s.cfg.PlaceboInbox,
			fmt.Sprintf("[PLACEBO: %s] %s", msg.IntendedTo, msg.Subject),
			"[Test] " + msg.Name
	}
	return s.cfg.OperationsInbox,
		fmt.Sprintf("[To: %s] %s", msg.IntendedTo, msg.Subject),
		msg.Name
}

// marshalPayload builds the relay request body. The private access token
// is unsealed only for the duration of the marshal.
func (s *RelaySender) marshalPayload(to, subject, name, body string) ([]byte, error) {
	payload := relayPayload{
		ServiceID:  s.cfg.ServiceID,
		TemplateID: s.cfg.TemplateID,
		UserID:     s.cfg.PublicKey,
		TemplateParams: templateParams{
			Subject: subject,
			Name:    name,
			Time:    time.Now().Format(relayTimeLayout),
			Message: body,
			Email:   to,
		},
	}

	if s.cfg.PrivateKey == nil {
		return json.Marshal(payload)
	}

	keyBuf, err := s.cfg.PrivateKey.Open()
	if err != nil {
		return nil, fmt.Errorf("mailer: unsealing access token: %w", err)
	}
	defer keyBuf.Destroy()

	payload.AccessToken = keyBuf.String()
	return json.Marshal(payload)
}

// post sends the payload with bounded exponential backoff. 4xx responses
// other than 429 are permanent; 429, 5xx, and transport errors retry.
func (s *RelaySender) post(ctx context.Context, reqBody []byte) (int, error) {
	var lastStatus int

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.APIURL, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("mailer: creating HTTP request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("origin", s.cfg.Origin)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			slog.Warn("Email relay request failed", slog.String("error", err.Error()))
			return fmt.Errorf("mailer: HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, relayErrorBodyLimit))
		lastStatus = resp.StatusCode

		if resp.StatusCode == http.StatusOK {
			return nil
		}

		err = fmt.Errorf("mailer: relay returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}

		slog.Warn("Email relay attempt failed, retrying", slog.Int("status", resp.StatusCode))
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return lastStatus, err
	}
	return lastStatus, nil
}

func (s *RelaySender) mode() string {
	if s.cfg.PlaceboMode {
		return "placebo"
	}
	return "production"
}

// maskID shortens a credential identifier for status output.
func maskID(id string) string {
	if id == "" {
		return ""
	}
	if len(id) > 4 {
		id = id[:4]
	}
	return id + "..."
}
