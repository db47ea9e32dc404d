// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/logdata"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/validator"
)

func parsedLogFixture(t *testing.T) *logdata.ParsedLog {
	t.Helper()
	raw := []byte(`{
		"ATT": {
			"time_boot_ms": {"0": 1000, "1": 2000},
			"Roll": {"0": 0.1, "1": 0.2},
			"Pitch": {"0": -0.1, "1": -0.2}
		}
	}`)
	var parsed logdata.ParsedLog
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	return &parsed
}

func TestCreateIngestsLogAndRegistersSession(t *testing.T) {
	reg := NewRegistry(time.Hour, nil)
	s, summary := reg.Create(parsedLogFixture(t))

	if s.ID == "" {
		t.Fatalf("expected a non-empty session id")
	}
	if len(summary.Tables) != 1 {
		t.Fatalf("expected 1 ingested table, got %d", len(summary.Tables))
	}
	if got, ok := reg.Get(s.ID); !ok || got.ID != s.ID {
		t.Fatalf("expected Get to find the created session")
	}
}

func TestGetUnknownSessionReturnsFalse(t *testing.T) {
	reg := NewRegistry(time.Hour, nil)
	if _, ok := reg.Get("does-not-exist"); ok {
		t.Fatalf("expected ok=false for an unknown session id")
	}
}

func TestGetEvictsExpiredSession(t *testing.T) {
	reg := NewRegistry(time.Millisecond, nil)
	s, _ := reg.Create(parsedLogFixture(t))
	time.Sleep(5 * time.Millisecond)

	if _, ok := reg.Get(s.ID); ok {
		t.Fatalf("expected the session to be evicted once its TTL has elapsed")
	}
	if reg.Count() != 0 {
		t.Fatalf("expected Count()=0 after eager eviction on Get, got %d", reg.Count())
	}
}

func TestSweepEvictsExpiredSessions(t *testing.T) {
	reg := NewRegistry(time.Millisecond, nil)
	reg.Create(parsedLogFixture(t))
	reg.Create(parsedLogFixture(t))
	time.Sleep(5 * time.Millisecond)

	reg.sweep()
	if reg.Count() != 0 {
		t.Fatalf("expected sweep to evict all expired sessions, got %d remaining", reg.Count())
	}
}

func TestAppendTurnTrimsToHistoryWindow(t *testing.T) {
	reg := NewRegistry(time.Hour, nil)
	s, _ := reg.Create(parsedLogFixture(t))

	for i := 0; i < HistoryWindow+5; i++ {
		s.AppendTurn("question", "answer", time.Now())
	}
	if len(s.History()) != HistoryWindow {
		t.Fatalf("History() length = %d, want %d", len(s.History()), HistoryWindow)
	}
	if s.MessageCount() != HistoryWindow+5 {
		t.Fatalf("MessageCount() = %d, want %d (unbounded)", s.MessageCount(), HistoryWindow+5)
	}
}

func TestStatsAggregatesAcrossSessions(t *testing.T) {
	reg := NewRegistry(time.Hour, nil)
	s1, _ := reg.Create(parsedLogFixture(t))
	s2, _ := reg.Create(parsedLogFixture(t))
	s1.AppendTurn("q1", "a1", time.Now())
	s2.AppendTurn("q1", "a1", time.Now())
	s2.AppendTurn("q2", "a2", time.Now())

	stats := reg.Stats()
	if stats.ActiveSessions != 2 {
		t.Fatalf("ActiveSessions = %d, want 2", stats.ActiveSessions)
	}
	if stats.TotalTurns != 3 {
		t.Fatalf("TotalTurns = %d, want 3", stats.TotalTurns)
	}
}

func TestRecordValidationIgnoresNilReport(t *testing.T) {
	reg := NewRegistry(time.Hour, nil)
	s, _ := reg.Create(parsedLogFixture(t))

	s.RecordValidation(nil, time.Now())
	if len(s.ValidationHistory()) != 0 {
		t.Fatalf("expected a nil report to be ignored, got %d records", len(s.ValidationHistory()))
	}
}

func TestRecordValidationTrimsToWindow(t *testing.T) {
	reg := NewRegistry(time.Hour, nil)
	s, _ := reg.Create(parsedLogFixture(t))

	for i := 0; i < ValidationHistoryWindow+3; i++ {
		s.RecordValidation(&validator.Report{TotalQueries: i}, time.Now())
	}
	history := s.ValidationHistory()
	if len(history) != ValidationHistoryWindow {
		t.Fatalf("ValidationHistory() length = %d, want %d", len(history), ValidationHistoryWindow)
	}
	if history[len(history)-1].Report.TotalQueries != ValidationHistoryWindow+2 {
		t.Fatalf("expected the most recent record to be retained, got %+v", history[len(history)-1])
	}
}

func TestStartSweeperAndStop(t *testing.T) {
	reg := NewRegistry(time.Millisecond, nil)
	reg.Create(parsedLogFixture(t))
	reg.StartSweeper(2 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	reg.Stop()

	if reg.Count() != 0 {
		t.Fatalf("expected the background sweeper to evict the expired session, got %d remaining", reg.Count())
	}
}
