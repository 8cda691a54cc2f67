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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stageDuration measures investigation stage latency, dominated by
	// the completion-service round trip.
	// Labels: stage (plan, execute, analyze, propose, compose, dispatch)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Investigation stage latency by stage",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	// stagesTotal counts stage executions by outcome.
	// Labels: stage, status (success, error)
	stagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "pipeline",
		Name:      "stages_total",
		Help:      "Total investigation stage executions by stage and status",
	}, []string{"stage", "status"})

	// plannedQueriesDropped counts planner output rejected by read-only
	// validation.
	plannedQueriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "pipeline",
		Name:      "planned_queries_dropped_total",
		Help:      "Planned queries dropped by read-only validation",
	})

	// issuesIdentifiedTotal counts issues produced by analysis.
	// Labels: severity
	issuesIdentifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "pipeline",
		Name:      "issues_identified_total",
		Help:      "Issues identified by analysis, by severity",
	}, []string{"severity"})

	// emailsDispatchedTotal counts per-email dispatch outcomes.
	// Labels: status (delivered, failed)
	emailsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "dispatch",
		Name:      "emails_total",
		Help:      "Total email dispatch attempts by outcome",
	}, []string{"status"})
)

// recordStage records one stage execution outcome.
func recordStage(stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	stagesTotal.WithLabelValues(stage, status).Inc()
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// recordIssues records the severity spread of one analysis.
func recordIssues(issues []Issue) {
	for _, issue := range issues {
		issuesIdentifiedTotal.WithLabelValues(issue.Severity).Inc()
	}
}

// recordEmailDispatch records one per-email dispatch outcome.
func recordEmailDispatch(delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	emailsDispatchedTotal.WithLabelValues(status).Inc()
}
