// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools implements the Tool Runtime (C5): the exactly-three tools
// exposed to the model, dispatched against a session's Tabular Store.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
)

const (
	queryDataTool      = "queryData"
	getMessageTypes    = "getMessageTypes"
	getDataSchemaTool  = "getDataSchema"
)

// Definitions returns the JSON-schema tool definitions passed to the LLM
// Gateway (§4.5: exactly three tools).
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        queryDataTool,
			Description: "Execute a read-only SQL query against the ingested flight log tables and return the result rows.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {"type": "string", "description": "A read-only SELECT statement."}
				},
				"required": ["sql"]
			}`),
		},
		{
			Name:        getMessageTypes,
			Description: "List the message types that were successfully ingested for this session.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        getDataSchemaTool,
			Description: "Return the full schema for every ingested table: message type, table name, and columns.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}

// SchemaEntry describes one ingested message type's table (§4.5
// getDataSchema, §6 schema responses).
type SchemaEntry struct {
	Table   string         `json:"table"`
	Columns []ColumnSchema `json:"columns"`
}

// ColumnSchema is one column's name and type, rendered for the client/model.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Runtime dispatches tool calls against one session's Tabular Store.
type Runtime struct {
	sess *session.Session
}

// New constructs a Runtime bound to sess.
func New(sess *session.Session) *Runtime {
	return &Runtime{sess: sess}
}

// Dispatch executes one tool call and returns its JSON-serialized result.
// A failure is never returned as a Go error: it is rendered as a
// `{"error": "..."}` JSON body so the caller can feed it back to the model
// as a tool message, giving it a chance to recover (§4.6).
func (r *Runtime) Dispatch(ctx context.Context, call llm.ToolCall) string {
	switch call.Name {
	case queryDataTool:
		return r.queryData(ctx, call.Arguments)
	case getMessageTypes:
		return r.listMessageTypes()
	case getDataSchemaTool:
		return r.dataSchema()
	default:
		return errorJSON(fmt.Sprintf("unknown tool %q", call.Name))
	}
}

func (r *Runtime) queryData(ctx context.Context, rawArgs string) string {
	var args struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errorJSON(fmt.Sprintf("malformed tool arguments: %v", err))
	}
	if args.SQL == "" {
		return errorJSON("sql argument is required")
	}

	result, err := r.sess.Store().Query(ctx, args.SQL)
	if err != nil {
		return errorJSON(err.Error())
	}

	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		sanitized := make(map[string]any, len(row))
		for k, v := range row {
			sanitized[k] = sanitizeValue(v)
		}
		rows = append(rows, sanitized)
	}

	body, err := json.Marshal(map[string]any{"ok": true, "rows": rows})
	if err != nil {
		return errorJSON(fmt.Sprintf("failed to serialize query result: %v", err))
	}
	return string(body)
}

func (r *Runtime) listMessageTypes() string {
	types := r.sess.MessageTypes()
	sort.Strings(types)
	body, err := json.Marshal(types)
	if err != nil {
		return errorJSON(fmt.Sprintf("failed to serialize message types: %v", err))
	}
	return string(body)
}

func (r *Runtime) dataSchema() string {
	schema := make(map[string]SchemaEntry)
	for _, mt := range r.sess.MessageTypes() {
		tableName, ok := r.sess.TableForMessageType(mt)
		if !ok {
			continue
		}
		columns, ok := r.sess.Store().Describe(tableName)
		if !ok {
			continue
		}
		entry := SchemaEntry{Table: tableName}
		for _, c := range columns {
			entry.Columns = append(entry.Columns, ColumnSchema{Name: c.Name, Type: columnTypeName(c.Type)})
		}
		schema[mt] = entry
	}
	body, err := json.Marshal(schema)
	if err != nil {
		return errorJSON(fmt.Sprintf("failed to serialize schema: %v", err))
	}
	return string(body)
}

func columnTypeName(t table.ColumnType) string {
	if t == table.Text {
		return "text"
	}
	return "real"
}

// sanitizeValue replaces a non-JSON-serializable value (a non-finite float)
// with a typed error object instead of letting json.Marshal fail the whole
// tool result (§4.5).
func sanitizeValue(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return map[string]any{"error": "non-serializable numeric value", "kind": "float"}
	}
	return v
}

func errorJSON(message string) string {
	body, _ := json.Marshal(map[string]any{"error": message})
	return string(body)
}
