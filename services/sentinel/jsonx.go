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
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Model Output Decoding
// =============================================================================
//
// Models wrap JSON in markdown fences, preambles, and sign-offs. Extraction
// is tolerant (fenced block first, then outermost braces) but decoding is
// not: a response whose JSON cannot be parsed and validated fails the stage
// with session state unchanged. Nothing is ever fabricated to paper over a
// bad response.

// modelValidate validates decoded model output structs.
var modelValidate *validator.Validate

func init() {
	modelValidate = validator.New()
}

// jsonFenceRe matches a ```json fenced block (or a bare ``` fence) and
// captures its contents.
var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSONObject pulls the JSON object out of a model response.
//
// It prefers the first fenced code block; otherwise it takes the text
// between the first '{' and the last '}'. The returned string is not
// guaranteed to parse, only to be the best candidate.
func extractJSONObject(response string) (string, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("empty response from model")
	}

	if m := jsonFenceRe.FindStringSubmatch(response); m != nil {
		response = strings.TrimSpace(m[1])
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", truncate(response, 100))
	}
	return response[start : end+1], nil
}

// truncate shortens s to max runes for error messages and log previews.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// ===== Vocabulary normalization =====

// normalizeSeverity folds a model-produced severity onto the known levels.
// Unknown values become medium rather than failing the issue.
func normalizeSeverity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case PriorityCritical:
		return PriorityCritical
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// normalizeCategory folds a model-produced category onto the known set.
// Unknown values become operations.
func normalizeCategory(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case CategoryInventory:
		return CategoryInventory
	case CategoryPayments:
		return CategoryPayments
	case CategoryCustomers:
		return CategoryCustomers
	case CategoryRevenue, "financial":
		return CategoryRevenue
	case CategoryDataQuality, "data quality":
		return CategoryDataQuality
	default:
		return CategoryOperations
	}
}

// normalizeQueryPriority folds a model-produced query priority onto the
// known levels, defaulting to medium.
func normalizeQueryPriority(raw string) string {
	return normalizeSeverity(raw)
}

// normalizeProposalPriority folds a proposal priority onto urgent or
// scheduled. Unknown values derive from the issue severity: critical
// issues become urgent, everything else is scheduled.
func normalizeProposalPriority(raw, issueSeverity string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProposalUrgent:
		return ProposalUrgent
	case ProposalScheduled:
		return ProposalScheduled
	}
	if issueSeverity == PriorityCritical {
		return ProposalUrgent
	}
	return ProposalScheduled
}

// stringList coerces a model field that may arrive as a string, a number,
// or a heterogeneous array into a flat string slice.
func stringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}
