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
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
)

type fakeCompleter struct {
	calls      int
	failTimes  int
	failErr    error
	response   openai.ChatCompletionResponse
	lastReq    openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.calls <= f.failTimes {
		return openai.ChatCompletionResponse{}, f.failErr
	}
	return f.response, nil
}

func newTestClient(completer completer) *Client {
	return &Client{
		chat:        completer,
		chatModel:   "test-chat",
		parserModel: "test-parser",
		embedModel:  "test-embed",
		logger:      logging.Default(),
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxRetries:  3,
		baseBackoff: time.Millisecond,
		maxBackoff:  2 * time.Millisecond,
	}
}

func TestChatRetriesTransportErrors(t *testing.T) {
	fc := &fakeCompleter{
		failTimes: 2,
		failErr:   errors.New("connection reset"),
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "ANSWER: 42"}},
			},
		},
	}
	c := newTestClient(fc)

	result, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, ToolChoiceAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ANSWER: 42" {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if fc.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", fc.calls)
	}
}

func TestChatSurfacesModelErrorWithoutRetry(t *testing.T) {
	fc := &fakeCompleter{
		failTimes: 99,
		failErr:   &openai.APIError{HTTPStatusCode: 400, Message: "invalid request"},
	}
	c := newTestClient(fc)

	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, ToolChoiceAuto)
	if err == nil {
		t.Fatal("expected an error")
	}
	if fc.calls != 1 {
		t.Errorf("expected exactly 1 call for a model error, got %d", fc.calls)
	}
}

func TestChatPropagatesToolCalls(t *testing.T) {
	fc := &fakeCompleter{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ToolCall{
						{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "queryData", Arguments: `{"sql":"SELECT 1"}`}},
					},
				}},
			},
		},
	}
	c := newTestClient(fc)

	result, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, []ToolDefinition{{Name: "queryData"}}, ToolChoiceAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.HasToolCalls() {
		t.Fatal("expected tool calls in result")
	}
	if result.ToolCalls[0].Name != "queryData" {
		t.Errorf("unexpected tool call name: %q", result.ToolCalls[0].Name)
	}
}

func TestChatWithModelUsesParserModelForChatParser(t *testing.T) {
	fc := &fakeCompleter{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "safe"}}},
		},
	}
	c := newTestClient(fc)
	if _, err := c.ChatParser(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.lastReq.Model != "test-parser" {
		t.Errorf("expected parser model, got %q", fc.lastReq.Model)
	}
}
