// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validator

import (
	"context"
	"testing"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
)

func fixtureStore(t *testing.T) *table.Store {
	t.Helper()
	store := table.NewStore()
	if err := store.CreateTable("gps_0_data", []table.Column{
		{Name: "time_boot_ms", Type: table.Real},
		{Name: "Alt", Type: table.Real},
	}, true); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := store.BulkInsert("gps_0_data", [][]any{
		{1.0, 1448.0},
		{2.0, 1200.0},
	}); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	return store
}

func TestValidateFindsNoDiscrepancyWhenClaimMatches(t *testing.T) {
	store := fixtureStore(t)
	text := "SELECT MAX(Alt) AS alt FROM gps_0_data\nThe maximum was 1448.0."

	report := Validate(context.Background(), store, text)
	if report.TotalQueries != 1 {
		t.Fatalf("TotalQueries = %d, want 1", report.TotalQueries)
	}
	if report.ValidQueries != 1 {
		t.Fatalf("ValidQueries = %d, want 1", report.ValidQueries)
	}
	if report.QueriesWithDiscrepancies != 0 {
		t.Fatalf("expected no discrepancies, got %d", report.QueriesWithDiscrepancies)
	}
}

func TestValidateFlagsDiscrepancyWhenClaimDiverges(t *testing.T) {
	store := fixtureStore(t)
	text := "SELECT MAX(Alt) AS alt FROM gps_0_data\nThe query returns 3147."

	report := Validate(context.Background(), store, text)
	if report.QueriesWithDiscrepancies != 1 {
		t.Fatalf("expected 1 query with discrepancies, got %d", report.QueriesWithDiscrepancies)
	}
	v := report.Validations[0]
	if len(v.Discrepancies) == 0 {
		t.Fatalf("expected at least one discrepancy record")
	}
	if v.Discrepancies[0].ClaimedValue != 3147 {
		t.Fatalf("ClaimedValue = %v, want 3147", v.Discrepancies[0].ClaimedValue)
	}
}

func TestValidateIgnoresSmallRelativeError(t *testing.T) {
	store := fixtureStore(t)
	// Absolute diff (1448 - 1430 = 18) exceeds 10, but relative error
	// (18/1448 ≈ 1.2%) is under 5%: no discrepancy should be raised.
	text := "SELECT MAX(Alt) AS alt FROM gps_0_data\nThe maximum was 1430."

	report := Validate(context.Background(), store, text)
	if report.QueriesWithDiscrepancies != 0 {
		t.Fatalf("expected no discrepancy for a small relative error, got %d", report.QueriesWithDiscrepancies)
	}
}

func TestValidateReportsExecutionError(t *testing.T) {
	store := fixtureStore(t)
	text := "SELECT MAX(Alt) FROM does_not_exist"

	report := Validate(context.Background(), store, text)
	if report.TotalQueries != 1 {
		t.Fatalf("TotalQueries = %d, want 1", report.TotalQueries)
	}
	if report.ValidQueries != 0 {
		t.Fatalf("ValidQueries = %d, want 0 for a query against a missing table", report.ValidQueries)
	}
	if report.Validations[0].ExecutionError == "" {
		t.Fatalf("expected an execution error to be recorded")
	}
}

func TestValidateHandlesNoSQLCitations(t *testing.T) {
	store := fixtureStore(t)
	report := Validate(context.Background(), store, "The highest altitude recorded was about 1448 meters.")
	if report.TotalQueries != 0 {
		t.Fatalf("expected no queries when no SQL is cited, got %d", report.TotalQueries)
	}
}

func TestExtractClaimedNumbersDedupes(t *testing.T) {
	nums := extractClaimedNumbers(" the average was 42 and it also shows 42 with a trailing note.")
	if len(nums) != 1 || nums[0] != 42 {
		t.Fatalf("expected a single deduplicated claim of 42, got %v", nums)
	}
}
