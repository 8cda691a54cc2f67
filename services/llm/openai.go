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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// ===== OpenAI wire types =====

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float32        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	TopP                *float32        `json:"top_p,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
	Tools               []openaiTool    `json:"tools,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiCallFunction `json:"function"`
}

type openaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ===== Client implementation =====

// OpenAIClient implements Client for OpenAI and OpenAI-compatible
// endpoints using raw net/http against the Chat Completions API.
//
// Description:
//
//	A non-default BaseURL makes this client work against any service
//	speaking the Chat Completions wire format (vLLM, LiteLLM, gateways).
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIClient creates an OpenAIClient from configuration.
//
// Description:
//
//	Credentials left empty in cfg resolve from OPENAI_API_KEY with a
//	/run/secrets/openai_api_key fallback. Model and base URL default
//	when unset.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: Non-nil when no API key can be resolved.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = readSecret("OPENAI_API_KEY", "openai_api_key")
	}
	if apiKey == "" {
		slog.Warn("OpenAI API key is empty, client will not function")
		return nil, fmt.Errorf("openai: API key is missing (OPENAI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("Model not set, defaulting", slog.String("model", model))
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCloudTimeout
	}

	slog.Info("Initializing OpenAI client", slog.String("model", model))
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}, nil
}

// Name implements Client.Name.
func (o *OpenAIClient) Name() string { return ProviderOpenAI }

// Model implements Client.Model.
func (o *OpenAIClient) Model() string { return o.model }

// Generate implements Client.Generate.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// Chat implements Client.Chat using the chat completions API.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := o.resolveModel(params)

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "OpenAIClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", ProviderOpenAI),
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	incActiveRequests(ProviderOpenAI)
	defer decActiveRequests(ProviderOpenAI)

	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
			// valid roles, keep as-is
		default:
			slog.Warn("OpenAI: unknown message role, mapping to user",
				slog.String("unknown_role", role),
				slog.String("model", model),
			)
			role = "user"
		}
		oaiMessages = append(oaiMessages, openaiMessage{Role: role, Content: msg.Content})
	}

	reqPayload := openaiRequest{Model: model, Messages: oaiMessages}
	applyOpenAIParams(&reqPayload, params)

	start := time.Now()
	apiResp, err := o.post(ctx, reqPayload)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ProviderOpenAI, duration, 0, 0, err)
		return "", err
	}

	if len(apiResp.Choices) == 0 {
		err = fmt.Errorf("openai: returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ProviderOpenAI, duration, 0, 0, err)
		return "", err
	}

	content := apiResp.Choices[0].Message.Content
	if content == "" {
		emptyErr := &EmptyResponseError{Duration: duration, MessageCount: len(messages), Model: model}
		span.RecordError(emptyErr)
		span.SetStatus(codes.Error, emptyErr.Error())
		recordLLMMetrics(ProviderOpenAI, duration, 0, 0, emptyErr)
		return "", emptyErr
	}

	slog.Debug("Received OpenAI chat response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(content)),
	)

	recordLLMMetrics(ProviderOpenAI, duration, estimateInputTokens(messages), estimateTokens(content), nil)
	return content, nil
}

// ChatWithTools implements Client.ChatWithTools using OpenAI native
// function calling.
//
// Description:
//
//	Converts generic ToolDef and ChatMessage types to the tools /
//	tool_calls wire format and parses tool_calls from the response.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error) {

	model := o.resolveModel(params)

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "OpenAIClient.ChatWithTools")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", ProviderOpenAI),
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
		attribute.Int("llm.num_tools", len(tools)),
	)

	incActiveRequests(ProviderOpenAI)
	defer decActiveRequests(ProviderOpenAI)

	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openaiMessage{Role: msg.Role, Content: msg.Content}

		if msg.Role == "tool" && msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiCallFunction{
						Name:      tc.Name,
						Arguments: tc.ArgumentsString(),
					},
				})
			}
		}

		oaiMessages = append(oaiMessages, oaiMsg)
	}

	oaiTools := make([]openaiTool, 0, len(tools))
	for _, td := range tools {
		oaiTools = append(oaiTools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        td.Function.Name,
				Description: td.Function.Description,
				Parameters:  td.Function.Parameters,
			},
		})
	}

	reqPayload := openaiRequest{Model: model, Messages: oaiMessages, Tools: oaiTools}
	applyOpenAIParams(&reqPayload, params)

	start := time.Now()
	apiResp, err := o.post(ctx, reqPayload)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ProviderOpenAI, duration, 0, 0, err)
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		err = fmt.Errorf("openai: returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ProviderOpenAI, duration, 0, 0, err)
		return nil, err
	}

	choice := apiResp.Choices[0]
	result := &ChatWithToolsResult{Content: choice.Message.Content}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
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
		recordLLMMetrics(ProviderOpenAI, duration, 0, 0, emptyErr)
		return nil, emptyErr
	}

	recordLLMMetrics(ProviderOpenAI, duration,
		estimateInputTokensChat(messages), estimateTokens(result.Content), nil)
	return result, nil
}

// resolveModel applies a per-call model override.
func (o *OpenAIClient) resolveModel(params GenerationParams) string {
	if params.ModelOverride != "" {
		return params.ModelOverride
	}
	return o.model
}

// post sends the request with bearer auth and parses the envelope,
// surfacing API-level errors embedded in 200 responses.
func (o *OpenAIClient) post(ctx context.Context, payload openaiRequest) (*openaiResponse, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("openai: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	slog.Debug("Sending request to OpenAI", slog.String("model", payload.Model))

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("openai: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("openai: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	return &apiResp, nil
}

// applyOpenAIParams copies generation parameters onto the wire payload.
func applyOpenAIParams(req *openaiRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}
