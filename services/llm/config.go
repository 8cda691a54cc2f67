// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"os"
	"strconv"
	"time"
)

// Config selects and configures a completion provider.
//
// Description:
//
//	Zero values fall back to per-provider defaults inside the
//	constructors, so a Config{Provider: "ollama"} is fully usable.
//	Credentials left empty are resolved from the environment and the
//	/run/secrets mount by the provider constructor.
type Config struct {
	// Provider is "anthropic", "openai", or "ollama". Empty means ollama.
	Provider string

	// Model is the model identifier. Empty means the provider default.
	Model string

	// BaseURL overrides the provider endpoint. Used for OpenAI-compatible
	// gateways and for tests against httptest servers.
	BaseURL string

	// APIKey overrides environment credential resolution.
	APIKey string

	// Timeout bounds a single completion HTTP request.
	Timeout time.Duration
}

// Default request timeouts per provider. Local models get longer because
// cold loads on consumer GPUs routinely take minutes.
const (
	defaultCloudTimeout = 120 * time.Second
	defaultLocalTimeout = 5 * time.Minute
)

// LoadConfig builds a Config from SENTINEL_LLM_* environment variables.
//
// Description:
//
//	Reads SENTINEL_LLM_PROVIDER, SENTINEL_LLM_MODEL, SENTINEL_LLM_BASE_URL,
//	and SENTINEL_LLM_TIMEOUT_SECONDS. Missing variables produce zero values
//	that the provider constructors later default. Never fails: credential
//	errors are reported by NewClient, where the provider is known.
//
// Outputs:
//   - Config: The environment-derived configuration.
func LoadConfig() Config {
	return Config{
		Provider: os.Getenv("SENTINEL_LLM_PROVIDER"),
		Model:    os.Getenv("SENTINEL_LLM_MODEL"),
		BaseURL:  os.Getenv("SENTINEL_LLM_BASE_URL"),
		Timeout:  envDurationSeconds("SENTINEL_LLM_TIMEOUT_SECONDS", 0),
	}
}

// envDurationSeconds reads an integer seconds value from the environment.
// Unset, empty, or unparsable values return the fallback.
func envDurationSeconds(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
