// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the Session Registry (C4): a process-local
// mapping of opaque session id to parsed log, queryable table set, and
// bounded conversation history, with TTL eviction.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/validator"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
)

// HistoryWindow bounds the retained conversation turns per session (§3,
// default 20).
const HistoryWindow = 20

// ValidationHistoryWindow bounds the retained Validation Records per session
// (§3 "Validation Record", §6 validation-history endpoint).
const ValidationHistoryWindow = 20

// ValidationRecord pairs a Validation Record with the turn it was produced
// for.
type ValidationRecord struct {
	Report    *validator.Report
	Timestamp time.Time
}

// Turn is one retained conversation turn.
type Turn struct {
	Role      llm.Role
	Text      string
	Timestamp time.Time
}

// Session is a server-side binding between an opaque identifier, a parsed
// log's queryable tables, and a bounded chat history (§3, §GLOSSARY).
//
// A Session owns its own Tabular Store instance so that "one table-set per
// session" holds structurally: two sessions ingesting the same log produce
// independent, identically-shaped table sets (§8).
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	lastAccess   time.Time
	store        *table.Store
	msgTypes     map[string]string // message type -> table name, ingested types only
	history      []Turn
	messageCount int
	validations  []ValidationRecord
}

// Store returns the session's Tabular Store.
func (s *Session) Store() *table.Store { return s.store }

// MessageTypes lists the ingested message types, in table-name order
// (§4.5 getMessageTypes).
func (s *Session) MessageTypes() []string {
	out := make([]string, 0, len(s.msgTypes))
	for mt := range s.msgTypes {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return s.msgTypes[out[i]] < s.msgTypes[out[j]] })
	return out
}

// TableForMessageType returns the table name ingested for messageType, if any.
func (s *Session) TableForMessageType(messageType string) (string, bool) {
	name, ok := s.msgTypes[messageType]
	return name, ok
}

// LastAccess returns the last time this session was touched.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// MessageCount returns the number of conversation turns appended so far
// (not bounded by HistoryWindow, unlike History()).
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageCount
}

// TablesAvailable lists the tables ingested for this session, sorted by name.
func (s *Session) TablesAvailable() []string {
	tables := s.store.ListTables()
	sort.Strings(tables)
	return tables
}

// History returns a snapshot of the retained trailing window of turns
// (§3, at most HistoryWindow entries).
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// AppendTurn appends one (user, assistant) pair to history as a single
// atomic update, trimming to the trailing HistoryWindow turns. It is called
// exactly once per turn, after any correction retries have resolved to a
// final assistant text (§4.9 "appended to history only once").
func (s *Session) AppendTurn(userText, assistantText string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Turn{Role: llm.RoleUser, Text: userText, Timestamp: at},
		Turn{Role: llm.RoleAssistant, Text: assistantText, Timestamp: at},
	)
	if overflow := len(s.history) - HistoryWindow; overflow > 0 {
		s.history = s.history[overflow:]
	}
	s.messageCount++
}

// RecordValidation appends a Validation Record, trimming to the trailing
// ValidationHistoryWindow records. A nil report (no SQL cited in the turn)
// is not recorded.
func (s *Session) RecordValidation(report *validator.Report, at time.Time) {
	if report == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations = append(s.validations, ValidationRecord{Report: report, Timestamp: at})
	if overflow := len(s.validations) - ValidationHistoryWindow; overflow > 0 {
		s.validations = s.validations[overflow:]
	}
}

// ValidationHistory returns a snapshot of the retained trailing window of
// Validation Records, most recent last.
func (s *Session) ValidationHistory() []ValidationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ValidationRecord, len(s.validations))
	copy(out, s.validations)
	return out
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccess) > ttl
}
