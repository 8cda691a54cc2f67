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
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the investigation service.
const (
	defaultMaxToolRounds        = 8
	defaultHistoryLimit         = 20
	defaultDispatchRate         = 1.0
	defaultDispatchBurst        = 1
	defaultAnalysisContextChars = 28000
)

// Config holds the investigation service settings. LLM, datastore, mailer,
// and archive each load their own configuration; this covers the pipeline
// itself.
type Config struct {
	// SchemaFile points at a YAML schema description. Empty uses the
	// embedded record-store demo schema.
	SchemaFile string

	// TemplatesFile points at a YAML notification template set. Empty
	// uses the embedded defaults; a real file is hot-reloaded on edit.
	TemplatesFile string

	// SessionDir is the BadgerDB directory for session snapshots. Empty
	// keeps sessions in process memory only.
	SessionDir string

	// SessionTTL is the idle lifetime of a persisted session.
	SessionTTL time.Duration

	// MaxToolRounds bounds how many tool-call rounds one agent turn may
	// take before the loop is cut off.
	MaxToolRounds int

	// HistoryLimit bounds how many prior messages the agent replays.
	HistoryLimit int

	// DispatchRate and DispatchBurst shape the outbound email rate
	// limit, in emails per second.
	DispatchRate  float64
	DispatchBurst int

	// AnalysisContextChars bounds the results context sent to the
	// analyzer before chunking kicks in.
	AnalysisContextChars int
}

// LoadConfig reads the service configuration from the environment.
func LoadConfig() Config {
	return Config{
		SchemaFile:           envOr("SENTINEL_SCHEMA_FILE", ""),
		TemplatesFile:        envOr("SENTINEL_TEMPLATES_FILE", ""),
		SessionDir:           envOr("SENTINEL_SESSION_DIR", ""),
		SessionTTL:           envHours("SENTINEL_SESSION_TTL_HOURS", defaultSessionTTL),
		MaxToolRounds:        envInt("SENTINEL_MAX_TOOL_ROUNDS", defaultMaxToolRounds),
		HistoryLimit:         envInt("SENTINEL_HISTORY_LIMIT", defaultHistoryLimit),
		DispatchRate:         envFloat("SENTINEL_DISPATCH_RATE", defaultDispatchRate),
		DispatchBurst:        envInt("SENTINEL_DISPATCH_BURST", defaultDispatchBurst),
		AnalysisContextChars: envInt("SENTINEL_ANALYSIS_CONTEXT_CHARS", defaultAnalysisContextChars),
	}
}

// ===== Environment helpers =====

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("Invalid integer in environment, using default",
			"key", key,
			"value", raw,
			"default", fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		slog.Warn("Invalid number in environment, using default",
			"key", key,
			"value", raw,
			"default", fallback)
		return fallback
	}
	return f
}

func envHours(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		slog.Warn("Invalid hour count in environment, using default",
			"key", key,
			"value", raw,
			"default", fallback)
		return fallback
	}
	return time.Duration(hours) * time.Hour
}

// readSecret resolves a secret from the environment first, then from the
// conventional secrets file mount.
func readSecret(envVar, secretFile string) string {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v
	}
	raw, err := os.ReadFile(secretFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
