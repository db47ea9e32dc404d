// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm implements the LLM Gateway (C6): a single typed chat
// operation over messages, tools, and tool results, generalized from the
// teacher's single-prompt OpenAIClient to full chat + tool-calling.
package llm

import "encoding/json"

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolChoice controls whether the model may call a tool.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone disables tool calling for this request (used by the
	// Safety Gate's auxiliary classifier calls).
	ToolChoiceNone ToolChoice = "none"
)

// ToolCall is a single model-initiated tool invocation: a name plus raw
// JSON arguments the Tool Runtime is responsible for parsing.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one chat message. ToolCalls is set on assistant messages that
// requested tool calls; ToolCallID is set on tool-role messages reporting a
// tool's result back to the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolDefinition describes one tool exposed to the model (§4.5's three
// named tools).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema object
}

// ChatResult is the Gateway's single typed return shape: either text, or
// one or more tool calls (never both is expected from a well-formed
// response, but both fields are populated verbatim from the provider).
type ChatResult struct {
	Text      string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model asked to invoke one or more tools.
func (r *ChatResult) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}
