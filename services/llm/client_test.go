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
	"strings"
	"testing"
	"time"
)

func TestNewClient_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantName string
	}{
		{"explicit ollama", "ollama", ProviderOllama},
		{"empty defaults to ollama", "", ProviderOllama},
		{"case and whitespace normalized", "  Anthropic ", ProviderAnthropic},
		{"openai", "openai", ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(Config{Provider: tt.provider, APIKey: "test-key"})
			if err != nil {
				t.Fatalf("NewClient(%q): %v", tt.provider, err)
			}
			if client.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", client.Name(), tt.wantName)
			}
		})
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "bedrock"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("error = %s, want an unknown-provider error", err)
	}
	if !strings.Contains(err.Error(), "bedrock") {
		t.Errorf("error should echo the bad value, got: %s", err)
	}
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("SENTINEL_LLM_PROVIDER", "anthropic")
	t.Setenv("SENTINEL_LLM_MODEL", "claude-test")
	t.Setenv("SENTINEL_LLM_BASE_URL", "http://gateway.internal/v1")
	t.Setenv("SENTINEL_LLM_TIMEOUT_SECONDS", "45")

	cfg := LoadConfig()
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.Provider)
	}
	if cfg.Model != "claude-test" {
		t.Errorf("Model = %q, want claude-test", cfg.Model)
	}
	if cfg.BaseURL != "http://gateway.internal/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s, want 45s", cfg.Timeout)
	}
}

func TestEnvDurationSeconds(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset", "", 30 * time.Second},
		{"valid", "90", 90 * time.Second},
		{"garbage", "ninety", 30 * time.Second},
		{"negative", "-5", 30 * time.Second},
		{"zero", "0", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SENTINEL_TEST_TIMEOUT", tt.value)
			got := envDurationSeconds("SENTINEL_TEST_TIMEOUT", 30*time.Second)
			if got != tt.want {
				t.Errorf("envDurationSeconds(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestReadSecret_EnvWins(t *testing.T) {
	t.Setenv("SENTINEL_TEST_SECRET", "from-env")

	got := readSecret("SENTINEL_TEST_SECRET", "nonexistent_secret_file")
	if got != "from-env" {
		t.Errorf("readSecret = %q, want env value", got)
	}
}

func TestReadSecret_MissingEverywhere(t *testing.T) {
	t.Setenv("SENTINEL_TEST_SECRET", "")

	got := readSecret("SENTINEL_TEST_SECRET", "nonexistent_secret_file")
	if got != "" {
		t.Errorf("readSecret = %q, want empty", got)
	}
}

func TestEmptyResponseError_Message(t *testing.T) {
	err := &EmptyResponseError{
		Duration:     1500 * time.Millisecond,
		MessageCount: 3,
		Model:        "claude-test",
	}
	msg := err.Error()
	if !strings.Contains(msg, "claude-test") {
		t.Errorf("error should name the model, got: %s", msg)
	}
	if !strings.Contains(msg, "3 messages") {
		t.Errorf("error should carry the message count, got: %s", msg)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens("abcdefgh"); got != 2 {
		t.Errorf("estimateTokens = %d, want 2", got)
	}
	if got := estimateTokens(""); got != 0 {
		t.Errorf("estimateTokens empty = %d, want 0", got)
	}

	messages := []Message{
		{Role: "system", Content: strings.Repeat("a", 40)},
		{Role: "user", Content: strings.Repeat("b", 40)},
	}
	if got := estimateInputTokens(messages); got != 20 {
		t.Errorf("estimateInputTokens = %d, want 20", got)
	}
}
