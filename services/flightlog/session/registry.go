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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/ingest"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/logdata"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/table"
)

// DefaultTTL is the eviction window used when SESSION_TTL_SECONDS is unset
// (§6, default 86400s = 24h).
const DefaultTTL = 24 * time.Hour

// Stats is the aggregate snapshot returned by `/chatbot/sessions/stats` (§6).
type Stats struct {
	ActiveSessions int `json:"activeSessions"`
	TotalTurns     int `json:"totalTurns"`
}

// Registry is the process-local session map (C4). It is a process-wide
// singleton initialized before the HTTP server accepts traffic (§9).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry constructs an empty Registry with the given eviction TTL.
func NewRegistry(ttl time.Duration, logger *logging.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Create ingests a parsed log into a fresh, session-scoped Tabular Store and
// registers a new Session under an unguessable id (§4.4).
func (r *Registry) Create(parsed *logdata.ParsedLog) (*Session, *ingest.Summary) {
	store := table.NewStore()
	summary := ingest.New(store, r.logger).Ingest(parsed)

	msgTypes := make(map[string]string, len(summary.Tables))
	for _, ts := range summary.Tables {
		msgTypes[ts.MessageType] = ts.TableName
	}

	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		lastAccess: now,
		store:      store,
		msgTypes:   msgTypes,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", s.ID, "tables", len(summary.Tables), "skipped", len(summary.Failures))
	return s, summary
}

// Get returns the session for id, touching its last-access time, or false
// if the id is unknown or has expired (§4.4). An expired session is evicted
// eagerly on lookup, in addition to the periodic sweep.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := time.Now()
	if s.expired(now, r.ttl) {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		r.logger.Info("session evicted on lookup", "session_id", id)
		return nil, false
	}

	s.touch(now)
	return s, true
}

// Count returns the number of live (non-swept) sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats reports the aggregate counts exposed at `/chatbot/sessions/stats`.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, s := range r.sessions {
		total += s.MessageCount()
	}
	return Stats{ActiveSessions: len(r.sessions), TotalTurns: total}
}

// sweep evicts every session whose TTL has expired (§4.4).
func (r *Registry) sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.expired(now, r.ttl) {
			delete(r.sessions, id)
			r.logger.Info("session evicted by sweep", "session_id", id)
		}
	}
}

// StartSweeper runs a periodic background sweep until Stop is called.
func (r *Registry) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// Stop halts the background sweeper and waits for it to exit (§9 "Global
// singletons... torn down on shutdown").
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}
