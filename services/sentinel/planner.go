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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSentinel/services/datastore"
	"github.com/AleutianAI/AleutianSentinel/services/llm"
)

// sentinelTracerName identifies pipeline spans.
const sentinelTracerName = "sentinel.pipeline"

// maxPlannedQueries caps how many specs one plan may carry; the prompt
// asks for 5-10 and anything past 10 is cut.
const maxPlannedQueries = 10

// Planner turns a focus request into validated read-only query specs.
//
// Thread Safety: safe for concurrent use.
type Planner struct {
	llm    llm.Client
	schema *Schema
}

// NewPlanner returns a planner over the given completion client and schema.
func NewPlanner(client llm.Client, schema *Schema) *Planner {
	return &Planner{llm: client, schema: schema}
}

// DroppedQuery records one planned query rejected by validation.
type DroppedQuery struct {
	Purpose string `json:"purpose"`
	Reason  string `json:"reason"`
}

// PlanOutcome is a validated query plan plus what validation dropped.
type PlanOutcome struct {
	Queries []QuerySpec    `json:"queries"`
	Dropped []DroppedQuery `json:"dropped,omitempty"`
}

// plannedQuery is the model's wire shape for one query.
type plannedQuery struct {
	QueryID     string `json:"query_id"`
	Purpose     string `json:"purpose" validate:"required"`
	Explanation string `json:"explanation"`
	SQLQuery    string `json:"sql_query" validate:"required"`
	Priority    string `json:"priority"`
}

// planOutput is the model's wire shape for a whole plan.
type planOutput struct {
	Queries []plannedQuery `json:"queries" validate:"required,min=1,dive"`
}

// Plan asks the completion service for an investigation query batch and
// validates every statement read-only, fail closed.
//
// Each query that fails validation is dropped with a recorded reason; the
// plan itself fails only when the response is unusable or nothing valid
// remains. Query IDs are assigned here, q1..qN over the surviving specs,
// regardless of what the model numbered them.
func (p *Planner) Plan(ctx context.Context, focusAreas []string) (*PlanOutcome, error) {
	tracer := otel.Tracer(sentinelTracerName)
	ctx, span := tracer.Start(ctx, "sentinel.plan")
	defer span.End()
	span.SetAttributes(attribute.String("focus_areas", strings.Join(focusAreas, ",")))

	start := time.Now()
	outcome, err := p.plan(ctx, focusAreas)
	recordStage("plan", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("queries", len(outcome.Queries)),
		attribute.Int("dropped", len(outcome.Dropped)),
	)
	slog.Info("Query plan generated",
		"focus_areas", strings.Join(focusAreas, ","),
		"queries", len(outcome.Queries),
		"dropped", len(outcome.Dropped),
		"duration_ms", time.Since(start).Milliseconds())
	return outcome, nil
}

func (p *Planner) plan(ctx context.Context, focusAreas []string) (*PlanOutcome, error) {
	messages := []llm.Message{
		{Role: "system", Content: plannerSystemPrompt(p.schema)},
		{Role: "user", Content: plannerUserPrompt(focusAreas)},
	}

	response, err := p.llm.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("sentinel: planning queries: %w", err)
	}

	candidate, err := extractJSONObject(response)
	if err != nil {
		return nil, fmt.Errorf("sentinel: planner response: %w", err)
	}
	var out planOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("sentinel: decoding planner response: %w (response: %s)", err, truncate(candidate, 100))
	}
	if err := modelValidate.Struct(&out); err != nil {
		return nil, fmt.Errorf("sentinel: planner response failed validation: %w", err)
	}

	outcome := &PlanOutcome{}
	for _, pq := range out.Queries {
		if len(outcome.Queries) >= maxPlannedQueries {
			break
		}
		validated, err := datastore.ValidateReadOnly(pq.SQLQuery)
		if err != nil {
			plannedQueriesDropped.Inc()
			outcome.Dropped = append(outcome.Dropped, DroppedQuery{
				Purpose: pq.Purpose,
				Reason:  err.Error(),
			})
			slog.Warn("Planned query dropped by read-only validation",
				"purpose", pq.Purpose,
				"reason", err.Error())
			continue
		}
		outcome.Queries = append(outcome.Queries, QuerySpec{
			ID:          fmt.Sprintf("q%d", len(outcome.Queries)+1),
			Purpose:     pq.Purpose,
			Explanation: pq.Explanation,
			SQLText:     validated,
			Priority:    normalizeQueryPriority(pq.Priority),
		})
	}

	if len(outcome.Queries) == 0 {
		return nil, fmt.Errorf("sentinel: planner produced no valid queries (%d dropped by validation)", len(outcome.Dropped))
	}
	return outcome, nil
}
