// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mailer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "mailer",
			Name:      "send_duration_seconds",
			Help:      "Relay round-trip duration including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "mailer",
			Name:      "sends_total",
			Help:      "Relay sends by mode and outcome.",
		},
		[]string{"mode", "status"},
	)

	refusedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "mailer",
			Name:      "refused_total",
			Help:      "Messages refused before transport because the relay is not configured.",
		},
		[]string{"mode"},
	)
)

func recordSend(mode string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	sendsTotal.WithLabelValues(mode, status).Inc()
	sendDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func recordRefused(mode string) {
	refusedTotal.WithLabelValues(mode).Inc()
}
