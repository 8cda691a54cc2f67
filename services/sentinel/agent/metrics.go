// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// agentTurnsTotal counts agent turns by outcome.
	// Labels: status (success, error)
	agentTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "agent",
		Name:      "turns_total",
		Help:      "Total agent turns by outcome",
	}, []string{"status"})

	// agentToolRounds measures how many tool rounds a turn takes.
	agentToolRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "agent",
		Name:      "tool_rounds",
		Help:      "Tool-call rounds per agent turn",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})

	// agentTurnDuration measures wall-clock turn latency.
	agentTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "agent",
		Name:      "turn_duration_seconds",
		Help:      "Agent turn latency",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
)

// recordAgentTurn records one turn's outcome, round count, and latency.
func recordAgentTurn(status string, rounds int, duration time.Duration) {
	agentTurnsTotal.WithLabelValues(status).Inc()
	agentToolRounds.Observe(float64(rounds))
	agentTurnDuration.Observe(duration.Seconds())
}
