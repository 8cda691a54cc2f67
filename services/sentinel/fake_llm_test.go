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

	"github.com/AleutianAI/AleutianSentinel/services/llm"
)

// fakeLLM implements llm.Client with pluggable behavior so stage tests can
// script model responses without a live backend.
type fakeLLM struct {
	ChatFunc          func(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error)
	ChatWithToolsFunc func(ctx context.Context, messages []llm.ChatMessage, params llm.GenerationParams, tools []llm.ToolDef) (*llm.ChatWithToolsResult, error)

	// ChatCalls records every Chat invocation's messages for assertions.
	ChatCalls [][]llm.Message
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-model" }

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, params)
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	f.ChatCalls = append(f.ChatCalls, messages)
	if f.ChatFunc == nil {
		return "", nil
	}
	return f.ChatFunc(ctx, messages, params)
}

func (f *fakeLLM) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, params llm.GenerationParams, tools []llm.ToolDef) (*llm.ChatWithToolsResult, error) {
	if f.ChatWithToolsFunc == nil {
		return &llm.ChatWithToolsResult{Content: "", StopReason: "end"}, nil
	}
	return f.ChatWithToolsFunc(ctx, messages, params, tools)
}

// chatScript returns a ChatFunc that replays canned responses in order and
// keeps returning the last one once the script runs out.
func chatScript(responses ...string) func(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	i := 0
	return func(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
		if i >= len(responses) {
			return responses[len(responses)-1], nil
		}
		resp := responses[i]
		i++
		return resp, nil
	}
}
