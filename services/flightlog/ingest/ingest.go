// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest implements the Log Ingester (C2): schema inference,
// normalization, and table load of a Parsed Log into the Tabular Store.
package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/pkg/validation"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/logdata"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
)

const timeBootMsField = "time_boot_ms"

// skipReasons names the message types the skip list excludes outright,
// because they are malformed or not useful for analytical querying (§4.2).
// This is a concrete reading of the skip list's four categories: raw file
// content, geofence definitions without typed fields, parameter key/value
// dumps, and positional messages (handled generically: ingestOne skips any
// message type for which no typed column materializes).
var skipReasons = map[string]string{
	"FILE": "raw file content is not ingested into queryable tables",
	"PARM": "parameter key/value dumps have inconsistent row shape",
	"PARAM": "parameter key/value dumps have inconsistent row shape",
}

// TableSummary reports the ingestion outcome for one message type.
type TableSummary struct {
	MessageType string `json:"messageType"`
	TableName   string `json:"tableName,omitempty"`
	Skipped     bool   `json:"skipped"`
	Reason      string `json:"reason,omitempty"`
	RowCount    int    `json:"rowCount,omitempty"`
	ColumnCount int    `json:"columnCount,omitempty"`
}

// Summary is the per-message-type report returned from Ingest; failures in
// one message type never fail the overall ingest (§4.2, §7 IngestError).
type Summary struct {
	Tables   []TableSummary `json:"tables"`
	Failures []TableSummary `json:"failures"`
}

// Ingester materializes a Parsed Log into a Tabular Store.
type Ingester struct {
	store *table.Store
	log   *logging.Logger
}

// New constructs an Ingester writing into store.
func New(store *table.Store, log *logging.Logger) *Ingester {
	if log == nil {
		log = logging.Default()
	}
	return &Ingester{store: store, log: log}
}

// Ingest materializes every message type in parsed into a table, skipping
// the types named by the skip list and recovering per-type failures into
// the returned Summary without failing the overall call.
func (in *Ingester) Ingest(parsed *logdata.ParsedLog) *Summary {
	summary := &Summary{}

	names := make([]string, 0, len(parsed.MessageTypes))
	for name := range parsed.MessageTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ts := in.ingestOne(name, parsed.MessageTypes[name])
		if ts.Skipped {
			summary.Failures = append(summary.Failures, ts)
			in.log.Warn("skipped message type during ingest", "message_type", name, "reason", ts.Reason)
			continue
		}
		summary.Tables = append(summary.Tables, ts)
	}
	return summary
}

func (in *Ingester) ingestOne(name string, mt logdata.MessageType) TableSummary {
	base := TableSummary{MessageType: name}

	if reason, skip := skipListReason(name, mt); skip {
		base.Skipped = true
		base.Reason = reason
		return base
	}

	tableName := TableName(name)
	base.TableName = tableName

	var columns []table.Column
	var rows [][]any
	var err error

	switch mt.Shape() {
	case logdata.ShapeTimeSeries:
		columns, rows, err = materializeTimeSeries(mt, in.log)
	default:
		columns, rows, err = materializeStatic(mt)
	}
	if err != nil {
		base.Skipped = true
		base.Reason = err.Error()
		return base
	}
	if len(columns) == 0 {
		base.Skipped = true
		base.Reason = "schema could not be reconciled: no typed fields materialized"
		return base
	}

	if err := in.store.CreateTable(tableName, columns, mt.Shape() == logdata.ShapeTimeSeries); err != nil {
		base.Skipped = true
		base.Reason = fmt.Sprintf("create table: %v", err)
		return base
	}
	if err := in.store.BulkInsert(tableName, rows); err != nil {
		base.Skipped = true
		base.Reason = fmt.Sprintf("bulk insert: %v", err)
		return base
	}

	base.RowCount = len(rows)
	base.ColumnCount = len(columns)
	return base
}

// TableName derives the table name for a message type per §3: lower-cased,
// non-alphanumeric characters folded to underscore, suffixed "_data"
// (`GPS[0]` -> `gps_0_data`). Trailing underscores left by a closing
// bracket are trimmed before the suffix is added.
func TableName(messageType string) string {
	return strings.TrimRight(validation.NormalizeIdentifier(messageType), "_") + "_data"
}

// skipListReason reports whether name/mt matches one of the skip list's
// categories.
func skipListReason(name string, mt logdata.MessageType) (string, bool) {
	upper := strings.ToUpper(name)
	if reason, ok := skipReasons[upper]; ok {
		return reason, true
	}
	if strings.Contains(upper, "FENCE") && !hasAnyTypedField(mt) {
		return "geofence definition has no typed fields to ingest", true
	}
	if _, raw := mt["_raw"]; raw && len(mt) == 1 {
		return "message type payload is not a JSON object", true
	}
	return "", false
}

// hasAnyTypedField reports whether mt has at least one field besides
// time_boot_ms whose raw value looks like scalar data rather than a
// malformed/empty payload.
func hasAnyTypedField(mt logdata.MessageType) bool {
	for field, raw := range mt {
		if field == timeBootMsField {
			continue
		}
		if len(raw) > 0 && string(raw) != "null" && string(raw) != "{}" {
			return true
		}
	}
	return false
}

// materializeTimeSeries builds the canonical row index from time_boot_ms's
// distinct keys and projects every other field onto it, inserting null
// where a field has no entry at a given key (§4.2 sparse support).
func materializeTimeSeries(mt logdata.MessageType, log *logging.Logger) ([]table.Column, [][]any, error) {
	timeRaw, ok := mt[timeBootMsField]
	if !ok {
		return nil, nil, fmt.Errorf("missing %s", timeBootMsField)
	}
	timeByKey, err := decodeFieldMap(timeRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", timeBootMsField, err)
	}
	canonicalKeys := sortedKeys(timeByKey)
	if len(canonicalKeys) == 0 {
		return nil, nil, fmt.Errorf("%s has no entries", timeBootMsField)
	}

	fieldNames := make([]string, 0, len(mt)-1)
	for field := range mt {
		if field != timeBootMsField {
			fieldNames = append(fieldNames, field)
		}
	}
	sort.Strings(fieldNames)

	columns := []table.Column{{Name: timeBootMsField, Type: table.Real}}
	fieldValues := make(map[string][]any, len(fieldNames))
	fieldValues[timeBootMsField] = projectOntoIndex(timeByKey, canonicalKeys)

	for _, field := range fieldNames {
		byKey, err := decodeFieldMap(mt[field])
		if err != nil {
			log.Warn("dropping field that failed to materialize", "field", field, "error", err)
			continue
		}
		values := projectOntoIndex(byKey, canonicalKeys)
		colType := inferColumnType(values)
		columns = append(columns, table.Column{Name: field, Type: colType})
		fieldValues[field] = values
	}

	canonicalLen, truncated := reconcileLengths(fieldValues, columnNames(columns))
	if len(truncated) > 0 {
		log.Warn("truncated misaligned columns to modal length", "columns", truncated, "modal_length", canonicalLen)
	}

	rows := make([][]any, canonicalLen)
	for i := range rows {
		row := make([]any, len(columns))
		for j, col := range columns {
			values := fieldValues[col.Name]
			if i < len(values) {
				row[j] = values[i]
			} else {
				row[j] = nil
			}
		}
		rows[i] = row
	}
	return columns, rows, nil
}

// materializeStatic builds exactly one row from a static message type's
// scalar fields (§3 invariant iv).
func materializeStatic(mt logdata.MessageType) ([]table.Column, [][]any, error) {
	fieldNames := make([]string, 0, len(mt))
	for field := range mt {
		fieldNames = append(fieldNames, field)
	}
	sort.Strings(fieldNames)

	var columns []table.Column
	var row []any
	for _, field := range fieldNames {
		value, isNull, err := decodeScalar(mt[field])
		if err != nil {
			continue // dropped: schema re-derived from materialized data
		}
		colType := table.Text
		if !isNull {
			if _, isNum := value.(float64); isNum {
				colType = table.Real
			}
		}
		columns = append(columns, table.Column{Name: field, Type: colType})
		row = append(row, value)
	}
	if len(columns) == 0 {
		return nil, nil, nil
	}
	return columns, [][]any{row}, nil
}

// decodeFieldMap decodes a field's raw time-indexed payload: a mapping from
// stringified ordinal key to scalar.
func decodeFieldMap(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeScalar decodes a single scalar value, reporting whether it is a
// JSON null and normalizing numbers to float64.
func decodeScalar(raw json.RawMessage) (any, bool, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, true, nil
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, false, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, false, nil
	}
	return nil, false, fmt.Errorf("unsupported scalar shape: %s", trimmed)
}

// sortedKeys returns the keys of byKey ordered by their numeric ordinal
// when possible, falling back to lexical order.
func sortedKeys(byKey map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, erri := strconv.Atoi(keys[i])
		nj, errj := strconv.Atoi(keys[j])
		if erri == nil && errj == nil {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// projectOntoIndex projects byKey onto the canonical key order, inserting
// nil where a key is absent (§4.2 sparse support).
func projectOntoIndex(byKey map[string]json.RawMessage, canonicalKeys []string) []any {
	values := make([]any, len(canonicalKeys))
	for i, key := range canonicalKeys {
		raw, ok := byKey[key]
		if !ok {
			values[i] = nil
			continue
		}
		v, isNull, err := decodeScalar(raw)
		if err != nil || isNull {
			values[i] = nil
			continue
		}
		values[i] = v
	}
	return values
}

// inferColumnType inspects values for the first non-null sample and
// classifies the column as real or textual (§3).
func inferColumnType(values []any) table.ColumnType {
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, ok := v.(float64); ok {
			return table.Real
		}
		return table.Text
	}
	return table.Real
}

func columnNames(columns []table.Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// reconcileLengths measures the length of every named column's materialized
// array; if they diverge, the modal length is taken as canonical and longer
// arrays are truncated to it (§4.2 schema reconciliation). It returns the
// canonical length and the names of any columns that were truncated.
func reconcileLengths(columns map[string][]any, order []string) (int, []string) {
	counts := make(map[int]int)
	for _, name := range order {
		counts[len(columns[name])]++
	}
	modalLen, modalCount := 0, -1
	for length, count := range counts {
		if count > modalCount || (count == modalCount && length > modalLen) {
			modalLen, modalCount = length, count
		}
	}

	var truncated []string
	for _, name := range order {
		if len(columns[name]) > modalLen {
			columns[name] = columns[name][:modalLen]
			truncated = append(truncated, name)
		}
	}
	return modalLen, truncated
}
