// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logdata

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalSplitsSiblingsFromMessageTypes(t *testing.T) {
	raw := `{
		"ATT": {"time_boot_ms": {"0": 100, "1": 200}, "Roll": {"0": 0.1, "1": 0.2}},
		"params": {"values": {"FOO": 1}},
		"logType": "dataflash"
	}`
	var log ParsedLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := log.MessageTypes["ATT"]; !ok {
		t.Fatal("expected ATT message type to be present")
	}
	if _, ok := log.MessageTypes["params"]; ok {
		t.Fatal("params must not be treated as a message type")
	}
	if len(log.Params) == 0 {
		t.Fatal("expected params sibling collection to be captured")
	}
	if len(log.LogType) == 0 {
		t.Fatal("expected logType sibling collection to be captured")
	}
}

func TestMessageTypeShape(t *testing.T) {
	ts := MessageType{"time_boot_ms": json.RawMessage(`{"0":1}`)}
	if ts.Shape() != ShapeTimeSeries {
		t.Error("expected time-series shape")
	}
	static := MessageType{"lat": json.RawMessage(`1.0`)}
	if static.Shape() != ShapeStatic {
		t.Error("expected static shape")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	raw := `{"GPS[0]":{"time_boot_ms":{"0":100},"Lat":{"0":1.5}},"mission":{"items":[]}}`
	var log ParsedLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTripped ParsedLog
	if err := json.Unmarshal(out, &roundTripped); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if _, ok := roundTripped.MessageTypes["GPS[0]"]; !ok {
		t.Fatal("expected GPS[0] to survive round-trip")
	}
	if len(roundTripped.Mission) == 0 {
		t.Fatal("expected mission to survive round-trip")
	}
}
