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
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
)

// maxReportedIssues caps one analysis. The prompt asks for at most 7 and
// anything past that is cut in model order.
const maxReportedIssues = 7

// Analyzer turns executed query results into ranked business issues.
//
// Thread Safety: safe for concurrent use.
type Analyzer struct {
	llm llm.Client

	// contextLimit bounds the rendered evidence block, in characters.
	// Oversized blocks are split on query boundaries and only the first
	// chunk is analyzed.
	contextLimit int
}

// NewAnalyzer returns an analyzer over the given completion client.
// contextLimit <= 0 selects the default.
func NewAnalyzer(client llm.Client, contextLimit int) *Analyzer {
	if contextLimit <= 0 {
		contextLimit = defaultAnalysisContextChars
	}
	return &Analyzer{llm: client, contextLimit: contextLimit}
}

// analyzedIssue is the model's wire shape for one issue.
type analyzedIssue struct {
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	Category        string `json:"category"`
	AffectedRecords any    `json:"affected_records"`
	PotentialImpact string `json:"potential_impact"`
}

// analysisOutput is the model's wire shape for a whole analysis. An empty
// issue list is a valid verdict of no findings.
type analysisOutput struct {
	Issues []analyzedIssue `json:"issues" validate:"dive"`
}

// Analyze reads the executed results and returns the issues they support,
// in model order, unnumbered. Numbering happens when the issues are stored.
//
// Zero issues is a success: healthy data is a finding, not a failure.
func (a *Analyzer) Analyze(ctx context.Context, queries []QuerySpec, results []QueryResult) ([]Issue, error) {
	tracer := otel.Tracer(sentinelTracerName)
	ctx, span := tracer.Start(ctx, "sentinel.analyze")
	defer span.End()

	start := time.Now()
	issues, err := a.analyze(ctx, queries, results)
	recordStage("analyze", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		return nil, err
	}

	recordIssues(issues)
	span.SetAttributes(attribute.Int("issues", len(issues)))
	slog.Info("Results analyzed",
		"queries", len(results),
		"issues", len(issues),
		"duration_ms", time.Since(start).Milliseconds())
	return issues, nil
}

func (a *Analyzer) analyze(ctx context.Context, queries []QuerySpec, results []QueryResult) ([]Issue, error) {
	if len(results) == 0 {
		return nil, ErrNoQueryResults
	}

	evidence := buildResultsContext(queries, results)
	evidence = a.boundEvidence(evidence)

	messages := []llm.Message{
		{Role: "system", Content: analyzerSystemPrompt},
		{Role: "user", Content: analyzerUserPrompt(evidence)},
	}
	response, err := a.llm.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("sentinel: analyzing results: %w", err)
	}

	candidate, err := extractJSONObject(response)
	if err != nil {
		return nil, fmt.Errorf("sentinel: analyzer response: %w", err)
	}
	var out analysisOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("sentinel: decoding analyzer response: %w (response: %s)", err, truncate(candidate, 100))
	}
	if err := modelValidate.Struct(&out); err != nil {
		return nil, fmt.Errorf("sentinel: analyzer response failed validation: %w", err)
	}

	if len(out.Issues) > maxReportedIssues {
		slog.Warn("Analyzer returned too many issues, keeping the most severe",
			"returned", len(out.Issues),
			"kept", maxReportedIssues)
		out.Issues = out.Issues[:maxReportedIssues]
	}

	issues := make([]Issue, 0, len(out.Issues))
	for _, ai := range out.Issues {
		issues = append(issues, Issue{
			Title:        ai.Title,
			Severity:     normalizeSeverity(ai.Severity),
			Category:     normalizeCategory(ai.Category),
			Description:  ai.Description,
			AffectedRefs: stringList(ai.AffectedRecords),
			Impact:       ai.PotentialImpact,
		})
	}
	return issues, nil
}

// boundEvidence keeps the evidence block inside the context limit, splitting
// on query boundaries so a partial result set still reads coherently.
func (a *Analyzer) boundEvidence(evidence string) string {
	if len(evidence) <= a.contextLimit {
		return evidence
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(a.contextLimit),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators([]string{"\n\nQuery ", "\n\n", "\n", " "}),
	)
	chunks, err := splitter.SplitText(evidence)
	if err != nil || len(chunks) == 0 {
		slog.Warn("Evidence split failed, truncating flat", "error", err)
		return truncate(evidence, a.contextLimit)
	}
	slog.Warn("Evidence exceeds context limit, analyzing the first chunk only",
		"chars", len(evidence),
		"limit", a.contextLimit,
		"chunks", len(chunks))
	return chunks[0]
}
