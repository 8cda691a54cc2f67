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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultOllamaModel = "qwen3:14b"

// ===== Ollama wire types =====

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []ToolDef              `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaChatResponse struct {
	Message   ollamaMessage `json:"message"`
	CreatedAt string        `json:"created_at"`
	Done      bool          `json:"done"`
}

// ===== Client implementation =====

// OllamaClient implements Client for local models served by Ollama.
//
// Description:
//
//	Talks to the /api/chat endpoint with streaming disabled. Tool calling
//	uses Ollama's native tools field, which shares the OpenAI function
//	schema, so ToolDef passes through unconverted. Ollama does not assign
//	tool call IDs; synthetic ones are generated per response.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient creates an OllamaClient from configuration.
//
// Description:
//
//	cfg.BaseURL falls back to OLLAMA_BASE_URL then to the local default.
//	No credentials are needed. The timeout defaults long because a cold
//	model load can dominate the first request.
//
// Outputs:
//   - *OllamaClient: The configured client.
//   - error: Currently always nil for valid configs; kept for interface parity.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		slog.Warn("Ollama model not set, defaulting", slog.String("model", defaultOllamaModel))
		model = defaultOllamaModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultLocalTimeout
	}

	slog.Info("Initializing Ollama client",
		slog.String("base_url", baseURL),
		slog.String("model", model),
	)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Name implements Client.Name.
func (o *OllamaClient) Name() string { return ProviderOllama }

// Model implements Client.Model.
func (o *OllamaClient) Model() string { return o.model }

// Generate implements Client.Generate.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// Chat implements Client.Chat against /api/chat.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := o.resolveModel(params)

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", ProviderOllama),
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	incActiveRequests(ProviderOllama)
	defer decActiveRequests(ProviderOllama)

	apiMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	payload := ollamaChatRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   false,
		Options:  buildOllamaOptions(params),
	}

	start := time.Now()
	apiResp, err := o.post(ctx, payload)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ProviderOllama, duration, 0, 0, err)
		return "", err
	}

	if apiResp.Message.Role != "assistant" {
		slog.Warn("Ollama chat response message role was not 'assistant'",
			slog.String("role", apiResp.Message.Role))
	}

	content := apiResp.Message.Content
	if strings.TrimSpace(content) == "" {
		emptyErr := &EmptyResponseError{Duration: duration, MessageCount: len(messages), Model: model}
		span.RecordError(emptyErr)
		span.SetStatus(codes.Error, emptyErr.Error())
		recordLLMMetrics(ProviderOllama, duration, 0, 0, emptyErr)
		return "", emptyErr
	}

	recordLLMMetrics(ProviderOllama, duration, estimateInputTokens(messages), estimateTokens(content), nil)
	return content, nil
}

// ChatWithTools implements Client.ChatWithTools via Ollama native tools.
//
// Description:
//
//	Sends ToolDef values straight through (Ollama accepts the OpenAI
//	function schema) and converts the response's tool_calls into
//	ToolCallResponse values with synthetic IDs (call_0, call_1, ...).
//	Tool result messages are forwarded with role "tool" and the tool
//	name so models that read tool_name can bind results.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OllamaClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error) {

	model := o.resolveModel(params)

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "OllamaClient.ChatWithTools")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", ProviderOllama),
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
		attribute.Int("llm.num_tools", len(tools)),
	)

	incActiveRequests(ProviderOllama)
	defer decActiveRequests(ProviderOllama)

	apiMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		apiMsg := ollamaMessage{Role: msg.Role, Content: msg.Content}

		if msg.Role == "tool" {
			apiMsg.ToolName = msg.ToolName
		}

		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				apiMsg.ToolCalls = append(apiMsg.ToolCalls, ollamaToolCall{
					Function: ollamaToolCallFunction{Name: tc.Name, Arguments: args},
				})
			}
		}

		apiMessages = append(apiMessages, apiMsg)
	}

	payload := ollamaChatRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   false,
		Tools:    tools,
		Options:  buildOllamaOptions(params),
	}

	start := time.Now()
	apiResp, err := o.post(ctx, payload)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ProviderOllama, duration, 0, 0, err)
		return nil, err
	}

	result := &ChatWithToolsResult{Content: apiResp.Message.Content}

	for i, tc := range apiResp.Message.ToolCalls {
		args := tc.Function.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	} else {
		result.StopReason = "end"
	}

	if result.Content == "" && len(result.ToolCalls) == 0 {
		emptyErr := &EmptyResponseError{Duration: duration, MessageCount: len(messages), Model: model}
		span.RecordError(emptyErr)
		span.SetStatus(codes.Error, emptyErr.Error())
		recordLLMMetrics(ProviderOllama, duration, 0, 0, emptyErr)
		return nil, emptyErr
	}

	recordLLMMetrics(ProviderOllama, duration,
		estimateInputTokensChat(messages), estimateTokens(result.Content), nil)
	return result, nil
}

// resolveModel applies a per-call model override.
func (o *OllamaClient) resolveModel(params GenerationParams) string {
	if params.ModelOverride != "" {
		return params.ModelOverride
	}
	return o.model
}

// post sends the chat payload and parses the response, mapping the
// model-not-found case to an actionable pull hint.
func (o *OllamaClient) post(ctx context.Context, payload ollamaChatRequest) (*ollamaChatResponse, error) {
	chatURL := o.baseURL + "/api/chat"

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request to %s failed: %w", chatURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(respBody, &errResp); err == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				slog.Warn("Ollama model not found", slog.String("model", payload.Model))
				return nil, fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'",
					payload.Model, payload.Model)
			}
		}
		slog.Error("Ollama returned an error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response", SafeLogString(string(respBody))),
		)
		return nil, fmt.Errorf("ollama: chat failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		slog.Error("Failed to parse JSON chat response from Ollama", "error", err)
		return nil, fmt.Errorf("ollama: parsing chat response: %w", err)
	}

	return &apiResp, nil
}

// buildOllamaOptions maps GenerationParams onto Ollama's options map,
// filling model-friendly defaults where the caller left them unset.
func buildOllamaOptions(params GenerationParams) map[string]interface{} {
	options := make(map[string]interface{})

	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	} else {
		options["top_k"] = 20
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	} else {
		options["top_p"] = float32(0.9)
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	} else {
		options["num_predict"] = 8192
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	return options
}
