// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datastore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queryDuration measures read-only query execution time.
	// Labels: driver (sqlite, mysql)
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "datastore",
		Name:      "query_duration_seconds",
		Help:      "Read-only query execution time by driver",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"driver"})

	// queriesTotal counts query executions by driver and status.
	// Labels: driver, status (success, error)
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "datastore",
		Name:      "queries_total",
		Help:      "Total read-only query executions by driver and status",
	}, []string{"driver", "status"})

	// rowsReturnedTotal counts rows handed back to the executor.
	// Labels: driver
	rowsReturnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "datastore",
		Name:      "rows_returned_total",
		Help:      "Total rows returned by read-only queries",
	}, []string{"driver"})

	// queriesRejectedTotal counts statements the guard refused to run.
	// Labels: driver
	queriesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "datastore",
		Name:      "queries_rejected_total",
		Help:      "Total statements rejected by read-only validation at the store",
	}, []string{"driver"})
)

// recordQuery records one query execution outcome.
func recordQuery(driver string, duration time.Duration, rowCount int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	queriesTotal.WithLabelValues(driver, status).Inc()
	queryDuration.WithLabelValues(driver).Observe(duration.Seconds())
	if rowCount > 0 {
		rowsReturnedTotal.WithLabelValues(driver).Add(float64(rowCount))
	}
}

// recordQueryRejected records a guard rejection at the store boundary.
func recordQueryRejected(driver string) {
	queriesRejectedTotal.WithLabelValues(driver).Inc()
}
