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
	"log/slog"
)

// Pipeline is the linear controller: it drives the stages in their fixed
// order for callers that want one investigation call instead of a
// conversation. Step gating comes from the stage preconditions themselves.
type Pipeline struct {
	svc *Service
}

// NewPipeline returns a linear controller over the service.
func NewPipeline(svc *Service) *Pipeline {
	return &Pipeline{svc: svc}
}

// InvestigateOptions selects how far one linear run goes. The zero value
// runs plan, execute, and analyze.
type InvestigateOptions struct {
	FocusAreas []string `json:"focus_areas"`

	// ProposeIssue composes a fix for this issue number after analysis.
	// Zero skips the proposal step. When analysis finds no issues the
	// step is skipped rather than failed: a healthy result is not an
	// error.
	ProposeIssue int `json:"propose_issue,omitempty"`

	// Dispatch sends the pending drafts after the proposal step. The
	// caller owns approval; this flag is that approval.
	Dispatch bool `json:"dispatch,omitempty"`
}

// InvestigationReport is everything one linear run produced, stage by
// stage.
type InvestigationReport struct {
	SessionID string           `json:"session_id"`
	Stage     Stage            `json:"stage"`
	Plan      *PlanOutcome     `json:"plan,omitempty"`
	Results   []QueryResult    `json:"results,omitempty"`
	Issues    []Issue          `json:"issues"`
	Proposal  *ProposalOutcome `json:"proposal,omitempty"`
	Dispatch  []DispatchRecord `json:"dispatch,omitempty"`
}

// Investigate runs the linear sequence and stops at the first stage error.
// The report always reflects the stages that completed, so a caller can
// render partial progress alongside the error.
func (p *Pipeline) Investigate(ctx context.Context, sessionID string, opts InvestigateOptions) (*InvestigationReport, error) {
	report := &InvestigationReport{SessionID: sessionID, Stage: StageEmpty}

	plan, err := p.svc.Plan(ctx, sessionID, opts.FocusAreas)
	if err != nil {
		return report, err
	}
	report.Plan = plan
	report.Stage = StagePlanned

	results, err := p.svc.Execute(ctx, sessionID)
	if err != nil {
		return report, err
	}
	report.Results = results
	report.Stage = StageExecuted

	issues, err := p.svc.Analyze(ctx, sessionID)
	if err != nil {
		return report, err
	}
	report.Issues = issues
	report.Stage = StageAnalyzed

	if opts.ProposeIssue > 0 {
		if len(issues) == 0 {
			slog.Info("Skipping proposal step, analysis found no issues",
				"session_id", sessionID,
				"requested_issue", opts.ProposeIssue)
		} else {
			outcome, err := p.svc.ProposeFix(ctx, sessionID, opts.ProposeIssue)
			if err != nil {
				return report, err
			}
			report.Proposal = outcome
			report.Stage = StageProposed
		}
	}

	if opts.Dispatch {
		records, err := p.svc.Dispatch(ctx, sessionID)
		if err != nil {
			return report, err
		}
		report.Dispatch = records
		delivered := 0
		for _, rec := range records {
			if rec.Delivered {
				delivered++
			}
		}
		if delivered == len(records) {
			report.Stage = StageDispatched
		}
	}
	return report, nil
}
