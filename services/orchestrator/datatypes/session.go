// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes: session-scoped endpoints (validate, schema, query,
// validation-history) and the cross-session stats endpoint.
package datatypes

import (
	"time"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
)

// TableSchema describes one session table's columns for the `dataSchema`
// and `/chatbot/sessions/:id/schema` wire shapes.
type TableSchema struct {
	Table   string         `json:"table"`
	Columns []ColumnSchema `json:"columns"`
}

// ColumnSchema is one column of a TableSchema.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NewTableSchema builds the full schema for every table a session has
// ingested, in the stable order session.Session.TablesAvailable returns.
func NewTableSchema(sess *session.Session) []TableSchema {
	tables := sess.TablesAvailable()
	out := make([]TableSchema, 0, len(tables))
	for _, name := range tables {
		cols, ok := sess.Store().Describe(name)
		if !ok {
			continue
		}
		colSchemas := make([]ColumnSchema, len(cols))
		for i, c := range cols {
			colSchemas[i] = ColumnSchema{Name: c.Name, Type: c.TypeName()}
		}
		out = append(out, TableSchema{Table: name, Columns: colSchemas})
	}
	return out
}

// ValidateSessionResponse is the body of `GET /chatbot/sessions/:id/validate`.
type ValidateSessionResponse struct {
	SessionID  string    `json:"sessionId"`
	Valid      bool      `json:"valid"`
	LastAccess time.Time `json:"lastAccess"`
}

// QueryRequest is the body of `POST /chatbot/sessions/:id/query` (§6,
// "executes read-only query for debugging").
type QueryRequest struct {
	SQL string `json:"sql" binding:"required" validate:"required"`
}

// Validate re-checks QueryRequest after JSON binding.
func (r *QueryRequest) Validate() error {
	return validate.Struct(r)
}

// QueryResponse wraps a table.Result for the debugging query endpoint.
type QueryResponse struct {
	Columns []string    `json:"columns"`
	Rows    []table.Row `json:"rows"`
}

// NewQueryResponse converts a table.Result into its wire form.
func NewQueryResponse(r *table.Result) QueryResponse {
	return QueryResponse{Columns: r.Columns, Rows: r.Rows}
}

// ValidationRecordView is the wire form of one session.ValidationRecord.
type ValidationRecordView struct {
	Timestamp time.Time `json:"timestamp"`
	Report    any       `json:"report"`
}

// ValidationHistoryResponse is the body of
// `GET /chatbot/sessions/:id/validation-history`.
type ValidationHistoryResponse struct {
	SessionID string                 `json:"sessionId"`
	Records   []ValidationRecordView `json:"records"`
}

// NewValidationHistoryResponse converts a session's retained Validation
// Records into their wire form, most recent last (matching
// session.Session.ValidationHistory's ordering).
func NewValidationHistoryResponse(sessionID string, records []session.ValidationRecord) ValidationHistoryResponse {
	views := make([]ValidationRecordView, len(records))
	for i, r := range records {
		views[i] = ValidationRecordView{Timestamp: r.Timestamp, Report: r.Report}
	}
	return ValidationHistoryResponse{SessionID: sessionID, Records: views}
}

// SessionsStatsResponse is the body of `GET /chatbot/sessions/stats`.
type SessionsStatsResponse struct {
	ActiveSessions int `json:"activeSessions"`
	TotalTurns     int `json:"totalTurns"`
}

// NewSessionsStatsResponse converts session.Stats into its wire form.
func NewSessionsStatsResponse(s session.Stats) SessionsStatsResponse {
	return SessionsStatsResponse{ActiveSessions: s.ActiveSessions, TotalTurns: s.TotalTurns}
}
