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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSentinel/services/mailer"
)

// Dispatcher sends pending drafts through the mail boundary.
//
// The drafts' display recipients travel only as annotation material: the
// sender picks the transport address from its own configuration and the
// receipt reports where each message actually went.
//
// Thread Safety: safe for concurrent use.
type Dispatcher struct {
	sender  mailer.Sender
	limiter *rate.Limiter
}

// NewDispatcher returns a dispatcher over the given sender, throttled to
// perSecond sends with the given burst. Non-positive values select the
// defaults.
func NewDispatcher(sender mailer.Sender, perSecond float64, burst int) *Dispatcher {
	if perSecond <= 0 {
		perSecond = defaultDispatchRate
	}
	if burst <= 0 {
		burst = defaultDispatchBurst
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Dispatch sends every pending draft in order and returns one record per
// draft, in the same order.
//
// Sends are irreversible, so once the batch starts nothing aborts it with
// a bare error: every draft gets a record stating whether it was delivered
// and where it actually went. Cancellation mid-batch marks the remaining
// drafts as failed rather than discarding the outcomes of the sends that
// already happened.
func (d *Dispatcher) Dispatch(ctx context.Context, emails []EmailDraft) ([]DispatchRecord, error) {
	tracer := otel.Tracer(sentinelTracerName)
	ctx, span := tracer.Start(ctx, "sentinel.dispatch")
	defer span.End()

	start := time.Now()
	if len(emails) == 0 {
		recordStage("dispatch", time.Since(start), ErrNoPendingEmails)
		span.RecordError(ErrNoPendingEmails)
		span.SetStatus(codes.Error, "nothing to dispatch")
		return nil, ErrNoPendingEmails
	}

	batchID := uuid.New().String()
	records := make([]DispatchRecord, 0, len(emails))
	delivered := 0
	for _, draft := range emails {
		rec := d.send(ctx, batchID, draft)
		recordEmailDispatch(rec.Delivered)
		if rec.Delivered {
			delivered++
		}
		records = append(records, rec)
	}

	recordStage("dispatch", time.Since(start), nil)
	span.SetAttributes(
		attribute.String("batch_id", batchID),
		attribute.Int("emails", len(records)),
		attribute.Int("delivered", delivered),
	)
	slog.Info("Dispatch batch finished",
		"batch_id", batchID,
		"emails", len(records),
		"delivered", delivered,
		"failed", len(records)-delivered,
		"duration_ms", time.Since(start).Milliseconds())
	return records, nil
}

func (d *Dispatcher) send(ctx context.Context, batchID string, draft EmailDraft) DispatchRecord {
	rec := DispatchRecord{
		Index:      draft.Index,
		IntendedTo: draft.DisplayRecipient,
		Subject:    draft.Subject,
	}

	if err := d.limiter.Wait(ctx); err != nil {
		rec.Err = fmt.Sprintf("canceled before send: %v", err)
		slog.Warn("Email dispatch failed",
			"event", "email_dispatch",
			"batch_id", batchID,
			"email_index", draft.Index,
			"role", draft.Role,
			"error", rec.Err)
		return rec
	}

	receipt, err := d.sender.Send(ctx, mailer.Message{
		IntendedTo: draft.DisplayRecipient,
		Name:       draft.RecipientName,
		Subject:    draft.Subject,
		Body:       draft.Body,
	})
	if err != nil {
		rec.Err = err.Error()
		slog.Warn("Email dispatch failed",
			"event", "email_dispatch",
			"batch_id", batchID,
			"email_index", draft.Index,
			"role", draft.Role,
			"intended_to", draft.DisplayRecipient,
			"error", rec.Err)
		return rec
	}

	rec.Delivered = true
	rec.TransportTo = receipt.TransportTo
	rec.Subject = receipt.Subject
	slog.Info("Email dispatched",
		"event", "email_dispatch",
		"batch_id", batchID,
		"email_index", draft.Index,
		"role", draft.Role,
		"intended_to", draft.DisplayRecipient,
		"transport_to", receipt.TransportTo,
		"placebo", receipt.Placebo,
		"body_sha256", hashContent([]byte(draft.Body)))
	return rec
}

// hashContent computes the SHA256 hex digest of content for audit logs,
// so the trail proves what was sent without storing the body.
func hashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}
