// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validator implements the Query Validator (C7): it re-executes
// SQL the model cited in its answer and flags numeric claims that diverge
// from what the data actually contains.
package validator

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
)

// discrepancyAbsThreshold and discrepancyRelThreshold implement §4.7's
// joint condition: a discrepancy requires both an absolute gap over 10 and
// a relative error over 5%.
const (
	discrepancyAbsThreshold = 10.0
	discrepancyRelThreshold = 0.05
)

// claimWindow bounds how far past a cited query's text a claimed number may
// appear before it is considered unrelated to that query.
const claimWindow = 240

// sqlPattern matches a SQL-shaped substring: SELECT ... FROM <identifier>
// [WHERE ...] [ORDER BY ...] [LIMIT N] (§4.7). Clauses are bounded to a
// single line so prose following the statement is never swallowed.
var sqlPattern = regexp.MustCompile(
	`(?i)SELECT\s+[^\n;` + "`" + `]+?\s+FROM\s+[A-Za-z_][A-Za-z0-9_]*` +
		`(?:\s+WHERE\s+[^\n;` + "`" + `]+?)?` +
		`(?:\s+ORDER\s+BY\s+[^\n;` + "`" + `]+?)?` +
		`(?:\s+LIMIT\s+\d+)?`,
)

var numberPattern = `(-?\d+(?:\.\d+)?)`

// claimPatterns are the fixed set of phrasings a claimed numeric value is
// extracted from (§4.7).
var claimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\breturns?\s+` + numberPattern),
	regexp.MustCompile(`(?i)\bshows?\s+` + numberPattern),
	regexp.MustCompile(`(?i)\b(?:maximum|minimum|average)\s+(?:was|is)\s+` + numberPattern),
	regexp.MustCompile(`(?i)\bwas\s+` + numberPattern),
}

// trailingNumberPattern captures a number immediately following the SQL
// statement (§4.7 "any number immediately following the SQL").
var trailingNumberPattern = regexp.MustCompile(`^\D{0,20}?` + numberPattern)

// Discrepancy is one claimed-vs-actual mismatch (§4.7).
type Discrepancy struct {
	ClaimedValue float64 `json:"claimedValue"`
	ActualValue  float64 `json:"actualValue"`
	Column       string  `json:"column"`
}

// Validation is one re-executed query's verdict (§3 Validation Record).
type Validation struct {
	ExtractedSQL   string         `json:"extractedSql"`
	ClaimedNumbers []float64      `json:"claimedNumbers"`
	ExecutionError string         `json:"executionError,omitempty"`
	ActualFirstRow map[string]any `json:"actualFirstRow,omitempty"`
	Discrepancies  []Discrepancy  `json:"discrepancies"`
}

// Report is the output of Validate (§4.7).
type Report struct {
	TotalQueries             int          `json:"totalQueries"`
	ValidQueries             int          `json:"validQueries"`
	QueriesWithDiscrepancies int          `json:"queriesWithDiscrepancies"`
	Validations              []Validation `json:"validations"`
}

// Validate scans assistantText for SQL-shaped substrings, re-executes each
// against store, extracts claimed numeric values near each citation, and
// reports any discrepancies (§4.7).
func Validate(ctx context.Context, store *table.Store, assistantText string) *Report {
	matches := sqlPattern.FindAllStringIndex(assistantText, -1)
	report := &Report{}

	for _, loc := range matches {
		sql := strings.TrimSpace(assistantText[loc[0]:loc[1]])
		windowEnd := loc[1] + claimWindow
		if windowEnd > len(assistantText) {
			windowEnd = len(assistantText)
		}
		window := assistantText[loc[1]:windowEnd]

		v := Validation{ExtractedSQL: sql}
		v.ClaimedNumbers = extractClaimedNumbers(window)

		report.TotalQueries++

		result, err := store.Query(ctx, sql)
		if err != nil {
			v.ExecutionError = err.Error()
			report.Validations = append(report.Validations, v)
			continue
		}
		report.ValidQueries++

		if len(result.Rows) > 0 {
			v.ActualFirstRow = result.Rows[0]
			v.Discrepancies = findDiscrepancies(v.ClaimedNumbers, result.Rows[0])
		}
		if len(v.Discrepancies) > 0 {
			report.QueriesWithDiscrepancies++
		}
		report.Validations = append(report.Validations, v)
	}
	return report
}

// extractClaimedNumbers applies the fixed pattern set plus the
// trailing-number rule to window, deduplicating results.
func extractClaimedNumbers(window string) []float64 {
	seen := make(map[float64]bool)
	var out []float64

	add := func(raw string) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	for _, pat := range claimPatterns {
		for _, m := range pat.FindAllStringSubmatch(window, -1) {
			add(m[1])
		}
	}
	if m := trailingNumberPattern.FindStringSubmatch(window); m != nil {
		add(m[1])
	}
	return out
}

// findDiscrepancies compares every claimed number against every numeric
// cell of row, raising a discrepancy when both the absolute and relative
// thresholds are exceeded (§4.7).
func findDiscrepancies(claimed []float64, row map[string]any) []Discrepancy {
	var out []Discrepancy
	for _, c := range claimed {
		for col, v := range row {
			actual, ok := v.(float64)
			if !ok {
				continue
			}
			absDiff := math.Abs(c - actual)
			if absDiff <= discrepancyAbsThreshold {
				continue
			}
			denom := math.Abs(actual)
			if denom == 0 {
				denom = 1
			}
			relErr := absDiff / denom
			if relErr > discrepancyRelThreshold {
				out = append(out, Discrepancy{ClaimedValue: c, ActualValue: actual, Column: col})
			}
		}
	}
	return out
}
