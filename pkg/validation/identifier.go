// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical
// operations. This package contains validators for user- or log-derived
// identifiers that end up interpolated into SQL text, preventing injection
// attacks the same way the rest of this codebase validates external input
// before it reaches a query string or subprocess call.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches a safe SQL identifier: a letter or underscore
// followed by letters, digits, or underscores. Table and column names
// derived from flight-log message types are folded to this shape before
// being validated (see services/flightlog/ingest).
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,63}$`)

// reservedSQLKeywords are identifiers that must be quoted when used as a
// column or table name. Not exhaustive, but covers the keywords telemetry
// field names are observed to collide with (offset, order, key, ...).
var reservedSQLKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "order": true, "group": true,
	"by": true, "limit": true, "offset": true, "insert": true, "into": true,
	"values": true, "table": true, "create": true, "index": true, "key": true,
	"and": true, "or": true, "not": true, "null": true, "default": true,
	"primary": true, "as": true, "join": true, "on": true, "union": true,
	"desc": true, "asc": true, "count": true, "max": true, "min": true, "avg": true,
}

// ValidateIdentifier validates that name is safe to use as a bare SQL
// identifier (table or column name) after normalization. It does not check
// for reserved-keyword collisions; use IsReservedKeyword for that.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must start with a letter or underscore and contain only letters, digits, or underscores", name)
	}
	return nil
}

// IsReservedKeyword reports whether name (case-insensitive) collides with a
// SQL reserved keyword and therefore must be emitted as a quoted identifier.
func IsReservedKeyword(name string) bool {
	return reservedSQLKeywords[strings.ToLower(name)]
}

// QuoteIdentifier returns name wrapped in double quotes with any embedded
// quote doubled, suitable for use as a quoted SQL identifier.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// NormalizeIdentifier folds non-alphanumeric characters to underscores and
// lower-cases the result, matching the table-naming rule in the data model
// (`GPS[0]` -> `gps_0_`).
func NormalizeIdentifier(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// EscapeSQLString escapes single quotes for safe inclusion inside a SQL
// string literal, following the same doubling rule tinySQL's own callers use.
func EscapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
