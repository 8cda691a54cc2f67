// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides provider-agnostic clients for language model
// completion services. Three providers are supported: Anthropic, OpenAI
// (and OpenAI-compatible endpoints), and Ollama for local models. All
// clients speak raw HTTP; no vendor SDKs.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// llmTracerName is the shared OTel tracer name for all provider clients.
const llmTracerName = "sentinel.llm"

// Provider name constants used by the factory and metric labels.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Message is a single turn in a plain-text conversation.
//
// Thread Safety: Message is immutable and safe for concurrent read access.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// GenerationParams carries optional sampling parameters for a completion.
//
// Description:
//
//	Nil pointer fields mean "use the provider default". The zero value is
//	a valid set of parameters.
//
// Thread Safety: GenerationParams is safe for concurrent read access.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	TopK        *int
	MaxTokens   *int
	Stop        []string

	// ModelOverride selects a different model for this single call.
	// Empty means the client's configured model.
	ModelOverride string
}

// Client is the completion-service capability consumed by the
// investigation pipeline.
//
// Description:
//
//	Generate and Chat return plain text. ChatWithTools drives native
//	function calling for the agent loop. All methods block until the
//	provider responds or ctx is done.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Client interface {
	// Name returns the provider name ("anthropic", "openai", "ollama").
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Generate produces a completion for a single user prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat produces a completion for a multi-turn conversation.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// ChatWithTools produces a completion that may contain tool calls.
	ChatWithTools(ctx context.Context, messages []ChatMessage,
		params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error)
}

// EmptyResponseError indicates the provider returned 200 with no usable text.
//
// Description:
//
//	Distinguished from transport errors so callers and metrics can treat
//	"model said nothing" differently from "request failed".
type EmptyResponseError struct {
	Duration     time.Duration
	MessageCount int
	Model        string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("llm: empty response from %s after %s (%d messages)",
		e.Model, e.Duration.Round(time.Millisecond), e.MessageCount)
}

// NewClient constructs a provider client from configuration.
//
// Description:
//
//	Dispatches on cfg.Provider. Unknown providers are an error rather
//	than a silent default so a typo in SENTINEL_LLM_PROVIDER is caught
//	at startup, not at first request.
//
// Inputs:
//   - cfg: Provider configuration, normally from LoadConfig.
//
// Outputs:
//   - Client: The configured provider client.
//   - error: Non-nil when the provider is unknown or its credentials are missing.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderOllama, "":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want anthropic, openai, or ollama)", cfg.Provider)
	}
}

// readSecret resolves a credential from the environment with a container
// secrets file fallback.
//
// Description:
//
//	Checks the named environment variable first. When empty, reads
//	/run/secrets/<secretFile> and trims whitespace. Returns "" when
//	neither source is available.
func readSecret(envVar, secretFile string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	path := "/run/secrets/" + secretFile
	if content, err := os.ReadFile(path); err == nil {
		slog.Info("Read credential from secrets mount", slog.String("env", envVar))
		return strings.TrimSpace(string(content))
	}
	return ""
}

// estimateTokens gives a rough token count (~4 characters per token).
// Provider responses do not always include usage, so metrics use this
// uniform estimate for all providers.
func estimateTokens(s string) int {
	return len(s) / 4
}

// estimateInputTokens estimates input tokens across plain messages.
func estimateInputTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return total / 4
}

// estimateInputTokensChat estimates input tokens across tool-aware messages.
func estimateInputTokensChat(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return total / 4
}
