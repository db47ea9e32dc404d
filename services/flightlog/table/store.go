// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package table implements the Tabular Store (C1): a process-local,
// read-only-after-ingest analytical SQL engine built on tinySQL, with one
// database per session.
package table

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/SimonWaldherr/tinySQL"

	"github.com/AleutianAI/AleutianFOSS/pkg/validation"
)

// ColumnType is the narrow set of column types the data model supports:
// real-valued or textual (§3).
type ColumnType int

const (
	// Real is a real-valued (floating point) column.
	Real ColumnType = iota
	// Text is a textual column.
	Text
)

func (t ColumnType) sqlType() string {
	if t == Text {
		return "TEXT"
	}
	return "DOUBLE"
}

// Column describes one column of a table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// TypeName returns the column's type as the wire-facing string ("real" or
// "text") used by getDataSchema responses.
func (c Column) TypeName() string {
	if c.Type == Text {
		return "text"
	}
	return "real"
}

// Row is one row of query results, keyed by column name, narrowed to
// JSON-serializable scalars (§4.1 policy: integers of arbitrary width are
// narrowed to finite reals before exposure, never inside the engine).
type Row map[string]any

// Result is the output of Query: an ordered column list plus narrowed rows.
type Result struct {
	Columns []string
	Rows    []Row
}

// Store wraps one tinySQL database for a single session's table set. The
// session-scoped table set is read-only for the session's lifetime once
// ingest completes; Store itself does not enforce that externally, callers
// (C4 Session Registry via C2 Log Ingester) only ever call CreateTable and
// BulkInsert during ingest, never after.
type Store struct {
	mu      sync.RWMutex
	db      *tinysql.DB
	schemas map[string][]Column // table name -> columns, in insertion order
	tsIndex map[string]bool     // table name -> has a time_boot_ms index
}

// NewStore opens a fresh, empty, in-memory tinySQL database. Each session
// owns exactly one Store (§3 invariant: one table-set per session); no
// on-disk persistence is configured since durable session persistence
// across restarts is an explicit Non-goal (§1).
func NewStore() *Store {
	return &Store{
		db:      tinysql.NewDB(),
		schemas: make(map[string][]Column),
		tsIndex: make(map[string]bool),
	}
}

// CreateTable creates a new table with the given columns. It fails if the
// name already exists; the caller is responsible for dropping first
// (§4.1). Columns whose name collides with a SQL reserved keyword are
// emitted quoted (§3 invariant iii). timeSeries requests an additional
// index on time_boot_ms.
func (s *Store) CreateTable(name string, columns []Column, timeSeries bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schemas[name]; exists {
		return fmt.Errorf("table %q already exists", name)
	}
	if err := validation.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}

	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := validation.ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		defs = append(defs, fmt.Sprintf("%s %s", quotedColumn(c.Name), c.Type.sqlType()))
	}

	q := fmt.Sprintf("CREATE TABLE %s (%s)", validation.QuoteIdentifier(name), strings.Join(defs, ", "))
	stmt, err := tinysql.ParseSQL(q)
	if err != nil {
		return fmt.Errorf("parse create table: %w", err)
	}
	if _, err := tinysql.Execute(context.Background(), s.db, "default", stmt); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}

	if timeSeries {
		idxQ := fmt.Sprintf("CREATE INDEX ON %s (%s)", validation.QuoteIdentifier(name), quotedColumn("time_boot_ms"))
		if idxStmt, err := tinysql.ParseSQL(idxQ); err == nil {
			_, _ = tinysql.Execute(context.Background(), s.db, "default", idxStmt)
		}
		s.tsIndex[name] = true
	}

	cols := make([]Column, len(columns))
	copy(cols, columns)
	s.schemas[name] = cols
	return nil
}

// BulkInsert inserts rows into name in a single multi-row VALUES statement
// for throughput (§4.2). It fails on column/row width mismatch.
func (s *Store) BulkInsert(name string, rows [][]any) error {
	s.mu.RLock()
	columns, ok := s.schemas[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("table %q does not exist", name)
	}
	if len(rows) == 0 {
		return nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d cells, table %q has %d columns", i, len(row), name, len(columns))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s VALUES ", validation.QuoteIdentifier(name))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, cell := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(literal(cell))
		}
		sb.WriteByte(')')
	}

	stmt, err := tinysql.ParseSQL(sb.String())
	if err != nil {
		return fmt.Errorf("parse bulk insert into %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := tinysql.Execute(context.Background(), s.db, "default", stmt); err != nil {
		return fmt.Errorf("bulk insert into %q: %w", name, err)
	}
	return nil
}

// Query executes a read-only SQL statement and returns narrowed, typed
// rows. Numeric results are narrowed to finite reals at this boundary only
// (§9 "Numeric fidelity"); the engine itself is never asked to narrow.
func (s *Store) Query(ctx context.Context, sql string) (*Result, error) {
	stmt, err := tinysql.ParseSQL(sql)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, err := tinysql.Execute(ctx, s.db, "default", stmt)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	if rs == nil {
		return &Result{}, nil
	}

	columns := rs.Cols
	out := &Result{Columns: columns, Rows: make([]Row, 0, len(rs.Rows))}
	for _, r := range rs.Rows {
		row := make(Row, len(columns))
		for _, col := range columns {
			v, _ := tinysql.GetVal(r, col)
			row[col] = narrowCell(v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// ListTables returns every table name currently loaded into the store.
func (s *Store) ListTables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	return names
}

// Describe returns the column set for name, or false if the table does not
// exist.
func (s *Store) Describe(name string) ([]Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols, ok := s.schemas[name]
	if !ok {
		return nil, false
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return out, true
}

// quotedColumn returns name quoted if it collides with a SQL reserved
// keyword, otherwise bare (§3 invariant iii, §4.2 naming rule).
func quotedColumn(name string) string {
	if validation.IsReservedKeyword(name) {
		return validation.QuoteIdentifier(name)
	}
	return name
}

// literal renders a Go value as a SQL literal for inclusion in an INSERT
// statement. Strings are quote-escaped; nil becomes NULL.
func literal(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return "'" + validation.EscapeSQLString(t) + "'"
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 64)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(rv.Uint(), 10)
		default:
			return "'" + validation.EscapeSQLString(fmt.Sprintf("%v", v)) + "'"
		}
	}
}

// narrowCell narrows any wide or exotic numeric type returned by the engine
// to a float64, leaving strings, bools, and nil untouched. This is the only
// place numeric narrowing happens (§9).
func narrowCell(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case string, bool:
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	}

	// Wide-integer types the engine may surface (e.g. math/big.Int) commonly
	// implement fmt.Stringer with a decimal representation; parse that
	// rather than reject the value outright. Counts exceeding the
	// real-mantissa range are out of support (§9).
	if s, ok := v.(fmt.Stringer); ok {
		if f, err := strconv.ParseFloat(s.String(), 64); err == nil {
			return f
		}
	}
	return v
}
