// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds a ChatbotMetrics instance registered against an
// isolated registry, so tests never touch the process-wide default registry
// that InitMetrics uses.
func newTestMetrics(t *testing.T) *ChatbotMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	m := &ChatbotMetrics{
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "turns_total", Help: "test"},
			[]string{"outcome"},
		),
		TurnDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "turn_duration_seconds", Help: "test", Buckets: []float64{1, 5, 10}},
			[]string{"outcome"},
		),
		ToolHopsPerTurn: prometheus.NewHistogram(
			prometheus.HistogramOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "tool_hops_per_turn", Help: "test", Buckets: []float64{0, 1, 2, 3, 4}},
		),
		CorrectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "corrections_total", Help: "test"},
			[]string{"kind"},
		),
		DiscrepanciesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "discrepancies_total", Help: "test"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "sessions_created_total", Help: "test"},
		),
		SessionsEvictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "sessions_evicted_total", Help: "test"},
			[]string{"reason"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "active_sessions", Help: "test"},
		),
		DocRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "doc_refresh_total", Help: "test"},
			[]string{"result"},
		),
		DocIndexChunks: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: metricsNamespace, Subsystem: chatbotSubsystem, Name: "doc_index_chunks", Help: "test"},
		),
	}

	reg.MustRegister(
		m.TurnsTotal, m.TurnDurationSeconds, m.ToolHopsPerTurn, m.CorrectionsTotal,
		m.DiscrepanciesTotal, m.SessionsCreatedTotal, m.SessionsEvictedTotal,
		m.ActiveSessions, m.DocRefreshTotal, m.DocIndexChunks,
	)
	return m
}

// Note: InitMetrics registers with the default Prometheus registry via
// promauto, so it can only run once per test binary execution.
var initMetricsTestOnce bool

func TestInitMetrics(t *testing.T) {
	if initMetricsTestOnce {
		t.Skip("InitMetrics can only be called once per test run (promauto restriction)")
	}
	initMetricsTestOnce = true

	result := InitMetrics()
	if result == nil {
		t.Fatal("InitMetrics() returned nil")
	}
	if DefaultMetrics != result {
		t.Error("DefaultMetrics should equal the returned value")
	}

	result.RecordTurn(false, false, 1.5, 2, 1, 0, 1)
	result.RecordSessionCreated()
	result.RecordSessionEvicted("ttl_sweep")
	result.RecordDocRefresh("ok", 42)
}

func TestConstants(t *testing.T) {
	if metricsNamespace != "aleutian" {
		t.Errorf("metricsNamespace = %q, want %q", metricsNamespace, "aleutian")
	}
	if chatbotSubsystem != "chatbot" {
		t.Errorf("chatbotSubsystem = %q, want %q", chatbotSubsystem, "chatbot")
	}
}

func TestRecordTurnOutcomeLabels(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTurn(false, false, 2.0, 1, 0, 0, 0)
	m.RecordTurn(true, false, 0.1, 0, 0, 0, 0)
	m.RecordTurn(false, true, 5.0, 4, 0, 1, 0)

	if v := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("answer")); v != 1 {
		t.Errorf("TurnsTotal[answer] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("refused")); v != 1 {
		t.Errorf("TurnsTotal[refused] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("best_effort")); v != 1 {
		t.Errorf("TurnsTotal[best_effort] = %f, want 1", v)
	}
}

func TestRecordTurnTracksCorrectionsAndDiscrepancies(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTurn(false, false, 1.0, 2, 1, 2, 3)

	if v := testutil.ToFloat64(m.CorrectionsTotal.WithLabelValues("query")); v != 1 {
		t.Errorf("CorrectionsTotal[query] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(m.CorrectionsTotal.WithLabelValues("answer")); v != 2 {
		t.Errorf("CorrectionsTotal[answer] = %f, want 2", v)
	}
	if v := testutil.ToFloat64(m.DiscrepanciesTotal); v != 3 {
		t.Errorf("DiscrepanciesTotal = %f, want 3", v)
	}
}

func TestRecordTurnSkipsZeroCorrections(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTurn(false, false, 1.0, 0, 0, 0, 0)

	if v := testutil.ToFloat64(m.CorrectionsTotal.WithLabelValues("query")); v != 0 {
		t.Errorf("CorrectionsTotal[query] = %f, want 0", v)
	}
	if v := testutil.ToFloat64(m.DiscrepanciesTotal); v != 0 {
		t.Errorf("DiscrepanciesTotal = %f, want 0", v)
	}
}

func TestRecordSessionCreatedAndEvicted(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.RecordSessionEvicted("eager")

	if v := testutil.ToFloat64(m.SessionsCreatedTotal); v != 2 {
		t.Errorf("SessionsCreatedTotal = %f, want 2", v)
	}
	if v := testutil.ToFloat64(m.ActiveSessions); v != 1 {
		t.Errorf("ActiveSessions = %f, want 1", v)
	}
	if v := testutil.ToFloat64(m.SessionsEvictedTotal.WithLabelValues("eager")); v != 1 {
		t.Errorf("SessionsEvictedTotal[eager] = %f, want 1", v)
	}
}

func TestSetActiveSessionsOverridesDrift(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.SetActiveSessions(5)

	if v := testutil.ToFloat64(m.ActiveSessions); v != 5 {
		t.Errorf("ActiveSessions = %f, want 5", v)
	}
}

func TestRecordDocRefresh(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDocRefresh("fallback", 7)

	if v := testutil.ToFloat64(m.DocRefreshTotal.WithLabelValues("fallback")); v != 1 {
		t.Errorf("DocRefreshTotal[fallback] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(m.DocIndexChunks); v != 7 {
		t.Errorf("DocIndexChunks = %f, want 7", v)
	}
}

func TestToolHopsPerTurnRecordsObservations(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTurn(false, false, 1.0, 3, 0, 0, 0)

	if count := testutil.CollectAndCount(m.ToolHopsPerTurn); count == 0 {
		t.Error("expected at least one histogram metric to be collected")
	}
}
