// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import "testing"

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"gps_0_data", "Roll", "_private", "a"}
	for _, v := range valid {
		if err := ValidateIdentifier(v); err != nil {
			t.Errorf("expected %q to be valid, got %v", v, err)
		}
	}

	invalid := []string{"", "1abc", "gps-0", "gps 0", "drop table; --"}
	for _, v := range invalid {
		if err := ValidateIdentifier(v); err == nil {
			t.Errorf("expected %q to be invalid", v)
		}
	}
}

func TestIsReservedKeyword(t *testing.T) {
	if !IsReservedKeyword("order") || !IsReservedKeyword("OFFSET") {
		t.Error("expected order/OFFSET to be reserved")
	}
	if IsReservedKeyword("roll") {
		t.Error("roll should not be reserved")
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	cases := map[string]string{
		"GPS[0]":      "gps_0_",
		"ATT":         "att",
		"time_boot_ms": "time_boot_ms",
		"3rd_field":   "_3rd_field",
	}
	for in, want := range cases {
		if got := NormalizeIdentifier(in); got != want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier(`order`); got != `"order"` {
		t.Errorf("got %q", got)
	}
	if got := QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Errorf("got %q", got)
	}
}
