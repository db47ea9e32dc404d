// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exposes the Prometheus metrics for the flightlog
// chatbot HTTP surface: turn outcomes, tool-hop and correction pressure on
// the Agent Controller, query-validator discrepancies, and session volume.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aleutian"
	chatbotSubsystem = "chatbot"
)

// ChatbotMetrics holds every metric exported by the flightlog orchestrator.
type ChatbotMetrics struct {
	TurnsTotal           *prometheus.CounterVec
	TurnDurationSeconds  *prometheus.HistogramVec
	ToolHopsPerTurn      prometheus.Histogram
	CorrectionsTotal     *prometheus.CounterVec
	DiscrepanciesTotal   prometheus.Counter
	SessionsCreatedTotal prometheus.Counter
	SessionsEvictedTotal *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	DocRefreshTotal      *prometheus.CounterVec
	DocIndexChunks       prometheus.Gauge
}

// DefaultMetrics is the process-wide metrics instance, populated by
// InitMetrics. It is nil until InitMetrics is called.
var DefaultMetrics *ChatbotMetrics

// InitMetrics registers every chatbot metric with the default Prometheus
// registry via promauto and sets DefaultMetrics. It panics if called more
// than once per process, since promauto registration is not idempotent.
func InitMetrics() *ChatbotMetrics {
	m := &ChatbotMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "turns_total",
				Help:      "Total number of agent turns by outcome",
			},
			[]string{"outcome"}, // answer, clarification, refused, best_effort
		),
		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Wall-clock duration of a full HandleTurn call",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 90},
			},
			[]string{"outcome"},
		),
		ToolHopsPerTurn: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "tool_hops_per_turn",
				Help:      "Number of tool-call rounds consumed per turn",
				Buckets:   []float64{0, 1, 2, 3, 4},
			},
		),
		CorrectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "corrections_total",
				Help:      "Total correction rounds issued by kind",
			},
			[]string{"kind"}, // query, answer
		),
		DiscrepanciesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "discrepancies_total",
				Help:      "Total numeric discrepancies flagged by the query validator",
			},
		),
		SessionsCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "sessions_created_total",
				Help:      "Total sessions created via /chatbot/init",
			},
		),
		SessionsEvictedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "sessions_evicted_total",
				Help:      "Total sessions evicted by reason",
			},
			[]string{"reason"}, // ttl_sweep, eager
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "active_sessions",
				Help:      "Current number of live sessions in the registry",
			},
		),
		DocRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "doc_refresh_total",
				Help:      "Total documentation index refreshes by result",
			},
			[]string{"result"}, // ok, fallback, error
		),
		DocIndexChunks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatbotSubsystem,
				Name:      "doc_index_chunks",
				Help:      "Current number of chunks held by the documentation index",
			},
		),
	}
	DefaultMetrics = m
	return m
}

// outcomeLabel maps an agent outcome onto the label set used by TurnsTotal
// and TurnDurationSeconds.
func outcomeLabel(refused, bestEffort bool) string {
	switch {
	case refused:
		return "refused"
	case bestEffort:
		return "best_effort"
	default:
		return "answer"
	}
}

// RecordTurn records one completed HandleTurn call: its outcome, duration,
// tool-hop count, correction counts, and any discrepancies the query
// validator flagged along the way.
func (m *ChatbotMetrics) RecordTurn(refused, bestEffort bool, seconds float64, toolHops int, queryCorrections, answerCorrections, discrepancies int) {
	outcome := outcomeLabel(refused, bestEffort)
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDurationSeconds.WithLabelValues(outcome).Observe(seconds)
	m.ToolHopsPerTurn.Observe(float64(toolHops))
	if queryCorrections > 0 {
		m.CorrectionsTotal.WithLabelValues("query").Add(float64(queryCorrections))
	}
	if answerCorrections > 0 {
		m.CorrectionsTotal.WithLabelValues("answer").Add(float64(answerCorrections))
	}
	if discrepancies > 0 {
		m.DiscrepanciesTotal.Add(float64(discrepancies))
	}
}

// RecordSessionCreated increments the session-creation counter and the
// active-sessions gauge.
func (m *ChatbotMetrics) RecordSessionCreated() {
	m.SessionsCreatedTotal.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEvicted decrements the active-sessions gauge and increments
// the eviction counter for reason ("ttl_sweep" or "eager").
func (m *ChatbotMetrics) RecordSessionEvicted(reason string) {
	m.SessionsEvictedTotal.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
}

// SetActiveSessions pins the active-sessions gauge to an authoritative count
// (e.g. taken from session.Registry.Stats), correcting for any drift from
// the incremental Record* calls above.
func (m *ChatbotMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// RecordDocRefresh records the result of a documentation index refresh:
// "ok" for a clean fetch, "fallback" when the built-in corpus was used, or
// "error" when the refresh failed outright.
func (m *ChatbotMetrics) RecordDocRefresh(result string, chunkCount int) {
	m.DocRefreshTotal.WithLabelValues(result).Inc()
	m.DocIndexChunks.Set(float64(chunkCount))
}
