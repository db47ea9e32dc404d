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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/apierr"
)

const (
	defaultChatModel   = "gpt-4o-mini"
	defaultParserModel = "gpt-4o-mini"
	defaultEmbedModel  = "text-embedding-3-small"

	// defaultRequestsPerSecond caps the steady-state rate of outbound calls
	// to the provider, independent of the error-triggered backoff below;
	// it exists to stay under the provider's own rate limit rather than
	// to recover from an error (§4.6 "capped exponential backoff" governs
	// retries, this governs pacing).
	defaultRequestsPerSecond = 5
	defaultBurst             = 5
)

// completer is the subset of *openai.Client's chat-completion surface the
// Gateway depends on, narrowed so tests can substitute a fake transport
// without making network calls.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// embedder is the subset of *openai.Client's embeddings surface the Gateway
// depends on.
type embedder interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Gateway is the capability the rest of the system depends on (§9 "Cyclic
// references / shared mutable state": components consume narrow injected
// capabilities, never each other directly).
type Gateway interface {
	// Chat is the Gateway's single typed operation (§4.6).
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, toolChoice ToolChoice) (*ChatResult, error)
	// ChatParser runs a chat completion against the (possibly cheaper)
	// parser/classifier model, used by the Safety Gate (C8).
	ChatParser(ctx context.Context, messages []Message) (*ChatResult, error)
	// Embed returns one embedding vector per input text, used by the Doc
	// Index (C3).
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is the Gateway's OpenAI-backed implementation. It is stateless
// with respect to conversation state: the Agent Controller owns the
// message sequence (§4.6).
type Client struct {
	chat   completer
	embed  embedder
	apiKey *memguard.LockedBuffer

	chatModel   string
	parserModel string
	embedModel  string

	logger  *logging.Logger
	limiter *rate.Limiter

	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

var _ Gateway = (*Client)(nil)

// NewFromEnv constructs a Client from LLM_API_KEY, LLM_CHAT_MODEL,
// LLM_PARSER_MODEL, and LLM_EMBED_MODEL (§6). The API key is held in a
// locked memory buffer for the lifetime of the Client and wiped by Close.
func NewFromEnv(logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	key := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	if key == "" {
		return nil, apierr.Input("LLM_API_KEY environment variable not set")
	}
	locked := memguard.NewBufferFromBytes([]byte(key))

	chatModel := envOrDefault("LLM_CHAT_MODEL", defaultChatModel)
	parserModel := envOrDefault("LLM_PARSER_MODEL", defaultParserModel)
	embedModel := envOrDefault("LLM_EMBED_MODEL", defaultEmbedModel)

	oc := openai.NewClient(string(locked.Bytes()))
	logger.Info("initialized LLM gateway", "chat_model", chatModel, "parser_model", parserModel, "embed_model", embedModel)

	return &Client{
		chat:        oc,
		embed:       oc,
		apiKey:      locked,
		chatModel:   chatModel,
		parserModel: parserModel,
		embedModel:  embedModel,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		maxRetries:  4,
		baseBackoff: 250 * time.Millisecond,
		maxBackoff:  4 * time.Second,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Close destroys the locked API key buffer. Call once during graceful
// shutdown (§9 "Global singletons").
func (c *Client) Close() error {
	if c.apiKey != nil {
		c.apiKey.Destroy()
	}
	return nil
}

// Chat runs the main chat model (§4.6).
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, toolChoice ToolChoice) (*ChatResult, error) {
	return c.chatWithModel(ctx, c.chatModel, messages, tools, toolChoice)
}

// ChatParser runs the parser/classifier model with no tools, used by the
// Safety Gate's pre- and post-call classifiers (§4.8). The parser model may
// be a weaker/cheaper model than the main chat model (§6).
func (c *Client) ChatParser(ctx context.Context, messages []Message) (*ChatResult, error) {
	return c.chatWithModel(ctx, c.parserModel, messages, nil, ToolChoiceNone)
}

func (c *Client) chatWithModel(ctx context.Context, model string, messages []Message, tools []ToolDefinition, toolChoice ToolChoice) (*ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = string(toolChoice)
	}

	resp, err := c.callWithBackoff(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		// §8 boundary behavior: zero text and zero tool calls is treated as
		// TransportError-like and retried once by the caller.
		return &ChatResult{}, nil
	}

	choice := resp.Choices[0]
	result := &ChatResult{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// callWithBackoff retries transport errors with a capped exponential
// backoff (§4.6). Model errors (the provider rejecting the request) are
// surfaced immediately without retry.
func (c *Client) callWithBackoff(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	backoff := c.baseBackoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return openai.ChatCompletionResponse{}, apierr.Transport("LLM call canceled while rate-limited", err)
		}
		resp, err := c.chat.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if apiErr, ok := err.(*openai.APIError); ok {
			c.logger.Error("LLM model error", "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
			return openai.ChatCompletionResponse{}, apierr.Wrap(apierr.KindInternal, "LLM model rejected the request", err)
		}

		c.logger.Warn("LLM transport error, retrying", "attempt", attempt+1, "max_retries", c.maxRetries, "error", err)
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, apierr.Transport("LLM call canceled while retrying", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return openai.ChatCompletionResponse{}, apierr.Transport(fmt.Sprintf("LLM call failed after %d attempts", c.maxRetries+1), lastErr)
}

// Embed returns one embedding vector per input text (§4.3).
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apierr.Transport("embedding request canceled while rate-limited", err)
	}
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embedModel),
	}
	resp, err := c.embed.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, apierr.Transport("embedding request failed", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
