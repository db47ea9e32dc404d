// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxCacheAge is the staleness window: a cached document whose content
// hash is unchanged and whose age is within this window is reused without
// re-embedding (§4.3).
const MaxCacheAge = 30 * 24 * time.Hour

// cachedDoc is one source document's persisted state, matching §4.3's
// cache record and §6's persisted-state layout.
type cachedDoc struct {
	URL         string      `json:"url"`
	Content     string      `json:"content"`
	ContentHash string      `json:"content_hash"`
	Chunks      []string    `json:"chunks"`
	Embeddings  [][]float32 `json:"embeddings"`
	Timestamp   time.Time   `json:"timestamp"`
}

// cacheFile is the on-disk layout at ${CACHE_DIR}/docs-cache.json (§6).
type cacheFile struct {
	Docs      map[string]cachedDoc `json:"docs"`
	LastCheck time.Time            `json:"lastCheck"`
}

// cacheStore guards concurrent access to the on-disk doc cache and mirrors
// the teacher's atomic write-then-rename persistence pattern.
type cacheStore struct {
	mu   sync.Mutex
	path string
	file cacheFile
}

// loadOrCreateCache loads the cache at path, or starts an empty one if the
// file does not yet exist.
func loadOrCreateCache(path string) (*cacheStore, error) {
	cs := &cacheStore{path: path, file: cacheFile{Docs: map[string]cachedDoc{}}}
	if path == "" {
		return cs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cs, nil
		}
		return nil, fmt.Errorf("read doc cache: %w", err)
	}
	if err := json.Unmarshal(data, &cs.file); err != nil {
		return nil, fmt.Errorf("parse doc cache: %w", err)
	}
	if cs.file.Docs == nil {
		cs.file.Docs = map[string]cachedDoc{}
	}
	return cs, nil
}

// get returns the cached entry for url, if any.
func (cs *cacheStore) get(url string) (cachedDoc, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	d, ok := cs.file.Docs[url]
	return d, ok
}

// put stores or replaces the cached entry for url and persists to disk.
func (cs *cacheStore) put(doc cachedDoc) error {
	cs.mu.Lock()
	cs.file.Docs[doc.URL] = doc
	cs.file.LastCheck = time.Now()
	cs.mu.Unlock()
	return cs.saveLocked()
}

// clear purges every cached entry (§6 `/chatbot/docs/clear-cache`).
func (cs *cacheStore) clear() error {
	cs.mu.Lock()
	cs.file.Docs = map[string]cachedDoc{}
	cs.mu.Unlock()
	return cs.saveLocked()
}

// snapshot returns a defensive copy of the current cache contents.
func (cs *cacheStore) snapshot() cacheFile {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	docs := make(map[string]cachedDoc, len(cs.file.Docs))
	for k, v := range cs.file.Docs {
		docs[k] = v
	}
	return cacheFile{Docs: docs, LastCheck: cs.file.LastCheck}
}

// saveLocked writes the cache to disk via a temp-file-then-rename, so a
// reader never observes a partially written file.
func (cs *cacheStore) saveLocked() error {
	if cs.path == "" {
		return nil
	}
	cs.mu.Lock()
	b, err := json.MarshalIndent(cs.file, "", "  ")
	cs.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal doc cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cs.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := cs.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o640); err != nil {
		return fmt.Errorf("write temp cache file: %w", err)
	}
	return os.Rename(tmp, cs.path)
}

// contentHash returns a stable hex-encoded hash of content, used to detect
// whether a re-fetched document has actually changed (§4.3).
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// isFresh reports whether a cached document is still usable without
// re-embedding: its hash matches the freshly fetched content and it is
// within the staleness window (§4.3).
func isFresh(cached cachedDoc, freshContent string, now time.Time) bool {
	return cached.ContentHash == contentHash(freshContent) && now.Sub(cached.Timestamp) < MaxCacheAge
}
