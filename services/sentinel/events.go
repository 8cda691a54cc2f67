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
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// =============================================================================
// Stage Event Sink
// =============================================================================
//
// Stage events feed the operational dashboard: one time-series point per
// pipeline stage execution. Like archival, event recording is best-effort;
// callers log failures and keep going.

// StageEvent is one pipeline stage execution.
type StageEvent struct {
	SessionID string
	Stage     string
	Status    string
	Duration  time.Duration

	// Counts carries stage-specific volumes, e.g. queries planned,
	// issues found, emails delivered.
	Counts map[string]int
}

// EventSink records stage events.
type EventSink interface {
	Record(ctx context.Context, ev StageEvent) error
	Close()
}

// EventSinkConfig configures the InfluxDB sink.
type EventSinkConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// LoadEventSinkConfig reads the sink configuration from the environment.
// The token resolves from INFLUXDB_TOKEN or /run/secrets/influxdb_token.
func LoadEventSinkConfig() EventSinkConfig {
	return EventSinkConfig{
		URL:    envOr("SENTINEL_INFLUX_URL", ""),
		Token:  readSecret("INFLUXDB_TOKEN", "/run/secrets/influxdb_token"),
		Org:    envOr("SENTINEL_INFLUX_ORG", "sentinel"),
		Bucket: envOr("SENTINEL_INFLUX_BUCKET", "investigations"),
	}
}

// NewEventSink builds a sink from configuration; with no URL configured it
// returns a NoopEventSink.
func NewEventSink(cfg EventSinkConfig) EventSink {
	if cfg.URL == "" {
		return NoopEventSink{}
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxEventSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// InfluxEventSink writes stage events to InfluxDB.
type InfluxEventSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// Record writes one stage event point.
func (s *InfluxEventSink) Record(ctx context.Context, ev StageEvent) error {
	p := influxdb2.NewPointWithMeasurement("investigation_stages").
		AddTag("session_id", ev.SessionID).
		AddTag("stage", ev.Stage).
		AddTag("status", ev.Status).
		AddField("duration_seconds", ev.Duration.Seconds()).
		SetTime(time.Now())
	for name, count := range ev.Counts {
		p.AddField(name, count)
	}

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("sentinel: recording stage event: %w", err)
	}
	return nil
}

// Close shuts down the InfluxDB client.
func (s *InfluxEventSink) Close() {
	s.client.Close()
}

// NoopEventSink drops all events. Used when no InfluxDB URL is configured.
type NoopEventSink struct{}

func (NoopEventSink) Record(ctx context.Context, ev StageEvent) error { return nil }
func (NoopEventSink) Close()                                          {}
