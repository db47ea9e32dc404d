// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the request and response wire types for the
// orchestrator's `/chatbot/*` HTTP surface (§6). This file covers session
// init and the main chat turn.
package datatypes

import (
	"encoding/json"
	"time"

	playvalidator "github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/agent"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/ingest"
	queryvalidator "github.com/AleutianAI/AleutianFOSS/services/flightlog/validator"
)

// validate is the shared go-playground/validator instance for every
// datatype in this package.
var validate = playvalidator.New()

// InitRequest is the body of `POST /chatbot/init` (§6). LogData carries the
// raw Parsed Log payload, decoded downstream by logdata.ParsedLog.
type InitRequest struct {
	LogData json.RawMessage `json:"logData" binding:"required" validate:"required"`
}

// InitResponse is the body returned from a successful `/chatbot/init` call.
type InitResponse struct {
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Ingest    *ingest.Summary `json:"ingest"`
}

// ChatRequest is the body of `POST /chatbot/chat` (§6).
type ChatRequest struct {
	Message   string `json:"message" binding:"required" validate:"required"`
	SessionID string `json:"sessionId" binding:"required" validate:"required"`
}

// Validate re-checks ChatRequest after JSON binding, the way the teacher's
// datatypes validate requests before they reach a handler body.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}

// Validate re-checks InitRequest after JSON binding.
func (r *InitRequest) Validate() error {
	return validate.Struct(r)
}

// ChatResponse is the body returned from a successful `/chatbot/chat` call.
// Its shape is pinned by §6 ("wire format for the chat response is
// stable"): response, thinking, relevantDocs, dataSchema, availableTables,
// queryValidation, timestamp.
type ChatResponse struct {
	Response        string                      `json:"response"`
	Thinking        string                      `json:"thinking,omitempty"`
	RelevantDocs    []docs.SearchResult         `json:"relevantDocs,omitempty"`
	DataSchema      []TableSchema               `json:"dataSchema"`
	AvailableTables []string                    `json:"availableTables"`
	QueryValidation *queryvalidator.Report      `json:"queryValidation,omitempty"`
	BestEffort      bool                        `json:"bestEffort,omitempty"`
	Refused         bool                        `json:"refused,omitempty"`
	Timestamp       time.Time                   `json:"timestamp"`
}

// NewChatResponse builds a ChatResponse from an agent.Outcome and the
// session's full table schema (§6 "dataSchema").
func NewChatResponse(outcome *agent.Outcome, schema []TableSchema) ChatResponse {
	return ChatResponse{
		Response:        outcome.Text,
		Thinking:        outcome.Thinking,
		RelevantDocs:    outcome.RelevantDocs,
		DataSchema:      schema,
		AvailableTables: outcome.AvailableTables,
		QueryValidation: outcome.QueryValidation,
		BestEffort:      outcome.BestEffort,
		Refused:         outcome.Refused,
		Timestamp:       time.Now(),
	}
}
