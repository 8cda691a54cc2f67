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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSentinel/services/datastore"
)

// Executor runs validated query plans against the read-only store.
//
// Thread Safety: safe for concurrent use.
type Executor struct {
	store datastore.ReadOnlyStore
}

// NewExecutor returns an executor over the given store.
func NewExecutor(store datastore.ReadOnlyStore) *Executor {
	return &Executor{store: store}
}

// Execute runs every spec in order and returns one result per spec, in the
// same order. A query that fails is recorded with its error and the batch
// moves on; only context cancellation aborts the whole run.
func (e *Executor) Execute(ctx context.Context, specs []QuerySpec) ([]QueryResult, error) {
	tracer := otel.Tracer(sentinelTracerName)
	ctx, span := tracer.Start(ctx, "sentinel.execute")
	defer span.End()

	start := time.Now()
	results, err := e.execute(ctx, specs)
	recordStage("execute", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		return nil, err
	}

	failed := 0
	totalRows := 0
	for _, res := range results {
		if !res.OK() {
			failed++
			continue
		}
		totalRows += res.RowCount
	}
	span.SetAttributes(
		attribute.Int("queries", len(results)),
		attribute.Int("failed", failed),
		attribute.Int("rows", totalRows),
	)
	slog.Info("Query batch executed",
		"queries", len(results),
		"failed", failed,
		"rows", totalRows,
		"duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

func (e *Executor) execute(ctx context.Context, specs []QuerySpec) ([]QueryResult, error) {
	if len(specs) == 0 {
		return nil, ErrNoQueriesPlanned
	}

	results := make([]QueryResult, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sentinel: executing queries: %w", err)
		}
		rows, err := e.store.Query(ctx, spec.SQLText)
		if err != nil {
			slog.Warn("Query failed, continuing batch",
				"query_id", spec.ID,
				"purpose", spec.Purpose,
				"error", err.Error())
			results = append(results, QueryResult{QueryID: spec.ID, Err: err.Error()})
			continue
		}
		results = append(results, QueryResult{QueryID: spec.ID, Rows: rows, RowCount: len(rows)})
	}
	return results, nil
}
