// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docs implements the Doc Index (C3): a chunked documentation
// corpus with a persistent embedding cache and cosine-similarity search,
// backed by tinySQL's VECTOR column type the way SimonWaldherr-tinyRAG
// uses it for its own chunk store.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/SimonWaldherr/tinySQL"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/pkg/validation"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/apierr"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
)

const chunkTable = "doc_chunks"

// embedBatchSize batches chunk embedding requests the same way
// SimonWaldherr-tinyRAG's addChunks does.
const embedBatchSize = 16

// Config configures the Doc Index.
type Config struct {
	// CacheDir is the directory holding docs-cache.json (§6 CACHE_DIR).
	CacheDir string
	// SourceURLs are the documentation sources fetched on Init/Refresh. If
	// empty, or if every fetch fails, the built-in fallback corpus seeds
	// the index (§4.3).
	SourceURLs []string
	// TopK is the default number of search results returned (§4.3 default 3).
	TopK int
	// ChunkBudget is the character budget per chunk (§4.3 default ~1000).
	ChunkBudget int
	// FetchTimeout bounds each outbound source fetch.
	FetchTimeout time.Duration
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		TopK:         3,
		ChunkBudget:  DefaultChunkBudget,
		FetchTimeout: 10 * time.Second,
	}
}

// SearchResult is one scored chunk returned from Search.
type SearchResult struct {
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
}

// Status reports the Doc Index's operational state (§6 `/chatbot/docs/status`).
type Status struct {
	SourceCount  int       `json:"sourceCount"`
	ChunkCount   int       `json:"chunkCount"`
	UsedFallback bool      `json:"usedFallback"`
	LastRefresh  time.Time `json:"lastRefresh"`
}

// Index is the process-wide Doc Index singleton (§9 "Global singletons").
type Index struct {
	cfg     Config
	gateway llm.Gateway
	logger  *logging.Logger
	http    *http.Client

	cache *cacheStore

	mu           sync.RWMutex
	db           *tinysql.DB
	nextID       int
	sourceCount  int
	chunkCount   int
	usedFallback bool
	lastRefresh  time.Time
}

// New constructs an Index; call Init before serving search requests.
func New(cfg Config, gateway llm.Gateway, logger *logging.Logger) (*Index, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.ChunkBudget <= 0 {
		cfg.ChunkBudget = DefaultChunkBudget
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}

	cachePath := ""
	if cfg.CacheDir != "" {
		cachePath = filepath.Join(cfg.CacheDir, "docs-cache.json")
	}
	cache, err := loadOrCreateCache(cachePath)
	if err != nil {
		return nil, apierr.Internal("load doc cache", err)
	}

	idx := &Index{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
		http:    &http.Client{Timeout: cfg.FetchTimeout},
		cache:   cache,
		db:      tinysql.NewDB(),
	}
	if err := idx.initSchema(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) initSchema() error {
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INT, url TEXT, chunk_idx INT, content TEXT, type TEXT, embedding VECTOR)", chunkTable)
	stmt, err := tinysql.ParseSQL(q)
	if err != nil {
		return apierr.Internal("parse doc chunk schema", err)
	}
	if _, err := tinysql.Execute(context.Background(), idx.db, "default", stmt); err != nil {
		return apierr.Internal("create doc chunk table", err)
	}
	return nil
}

// Init performs the first-time load: fetch, chunk, embed (or reuse cached
// embeddings), and populate the chunk table (§4.3).
func (idx *Index) Init(ctx context.Context) error {
	return idx.reload(ctx)
}

// Refresh re-fetches every source and re-embeds any whose content hash has
// changed (§6 `/chatbot/docs/refresh`).
func (idx *Index) Refresh(ctx context.Context) error {
	return idx.reload(ctx)
}

func (idx *Index) reload(ctx context.Context) error {
	sources, usedFallback := idx.fetchSources(ctx)
	now := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	results := make([]loadedSource, len(sources))

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			cached, ok := idx.cache.get(src.URL)
			if ok && isFresh(cached, src.Content, now) {
				results[i] = loadedSource{source: src, chunks: cached.Chunks, embeddings: cached.Embeddings}
				return nil
			}

			chunks := chunkDocument(src.Content, idx.cfg.ChunkBudget)
			embeddings, err := idx.embedChunks(gctx, chunks)
			if err != nil {
				return fmt.Errorf("embed source %q: %w", src.URL, err)
			}
			if err := idx.cache.put(cachedDoc{
				URL:         src.URL,
				Content:     src.Content,
				ContentHash: contentHash(src.Content),
				Chunks:      chunks,
				Embeddings:  embeddings,
				Timestamp:   now,
			}); err != nil {
				idx.logger.Warn("failed to persist doc cache entry", "url", src.URL, "error", err)
			}
			results[i] = loadedSource{source: src, chunks: chunks, embeddings: embeddings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apierr.Transport("doc index reload failed", err)
	}

	if err := idx.rebuildTable(results); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.sourceCount = len(sources)
	idx.usedFallback = usedFallback
	idx.lastRefresh = now
	chunkCount := 0
	for _, r := range results {
		chunkCount += len(r.chunks)
	}
	idx.chunkCount = chunkCount
	idx.mu.Unlock()

	idx.logger.Info("doc index reloaded", "sources", len(sources), "chunks", chunkCount, "used_fallback", usedFallback)
	return nil
}

// loadedSource is one source's chunks and embeddings, either freshly
// computed or reused from the persisted cache, pending insertion into the
// chunk table by rebuildTable.
type loadedSource struct {
	source     fallbackSource
	chunks     []string
	embeddings [][]float32
}

func (idx *Index) rebuildTable(results []loadedSource) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dropStmt, _ := tinysql.ParseSQL(fmt.Sprintf("DELETE FROM %s", chunkTable))
	if dropStmt != nil {
		_, _ = tinysql.Execute(context.Background(), idx.db, "default", dropStmt)
	}
	idx.nextID = 0

	for _, r := range results {
		for i, chunk := range r.chunks {
			if i >= len(r.embeddings) {
				continue
			}
			vecJSON, err := json.Marshal(r.embeddings[i])
			if err != nil {
				continue
			}
			q := fmt.Sprintf(
				"INSERT INTO %s VALUES (%d, '%s', %d, '%s', '%s', VEC_FROM_JSON('%s'))",
				chunkTable, idx.nextID, validation.EscapeSQLString(r.source.URL), i,
				validation.EscapeSQLString(chunk), validation.EscapeSQLString(r.source.Type), string(vecJSON),
			)
			idx.nextID++
			stmt, err := tinysql.ParseSQL(q)
			if err != nil {
				idx.logger.Warn("failed to parse doc chunk insert", "error", err)
				continue
			}
			if _, err := tinysql.Execute(context.Background(), idx.db, "default", stmt); err != nil {
				idx.logger.Warn("failed to insert doc chunk", "error", err)
			}
		}
	}
	return nil
}

// embedChunks embeds chunks in bounded batches concurrently.
func (idx *Index) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end
		g.Go(func() error {
			vecs, err := idx.gateway.Embed(gctx, chunks[start:end])
			if err != nil {
				return err
			}
			copy(embeddings[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// fetchSources fetches every configured source URL; on total failure (or
// an empty configuration) it falls back to the built-in corpus (§4.3).
func (idx *Index) fetchSources(ctx context.Context) ([]fallbackSource, bool) {
	var sources []fallbackSource
	for _, url := range idx.cfg.SourceURLs {
		content, err := idx.fetch(ctx, url)
		if err != nil {
			idx.logger.Warn("doc source fetch failed", "url", url, "error", err)
			continue
		}
		sources = append(sources, fallbackSource{URL: url, Type: "reference", Content: content})
	}
	if len(sources) > 0 {
		return sources, false
	}

	fallback, err := loadFallbackCorpus()
	if err != nil {
		idx.logger.Error("failed to load built-in fallback corpus", "error", err)
		return nil, true
	}
	return fallback, true
}

func (idx *Index) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := idx.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Search embeds query and returns the top-k chunks by cosine similarity
// (§4.3). k<=0 uses the configured default.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = idx.cfg.TopK
	}
	vecs, err := idx.gateway.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return nil, apierr.Transport("failed to embed search query", err)
	}
	queryJSON, err := json.Marshal(vecs[0])
	if err != nil {
		return nil, apierr.Internal("marshal query embedding", err)
	}

	q := fmt.Sprintf(
		"SELECT content, url, type, VEC_COSINE_SIMILARITY(embedding, VEC_FROM_JSON('%s')) AS score FROM %s ORDER BY score DESC LIMIT %d",
		string(queryJSON), chunkTable, k,
	)
	stmt, err := tinysql.ParseSQL(q)
	if err != nil {
		return nil, apierr.Internal("parse doc search query", err)
	}

	idx.mu.RLock()
	rs, err := tinysql.Execute(ctx, idx.db, "default", stmt)
	idx.mu.RUnlock()
	if err != nil {
		return nil, apierr.Internal("execute doc search query", err)
	}
	if rs == nil {
		return nil, nil
	}

	out := make([]SearchResult, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		content, _ := tinysql.GetVal(row, "content")
		url, _ := tinysql.GetVal(row, "url")
		typ, _ := tinysql.GetVal(row, "type")
		score, _ := tinysql.GetVal(row, "score")
		out = append(out, SearchResult{
			Content: asString(content),
			URL:     asString(url),
			Type:    asString(typ),
			Score:   asFloat(score),
		})
	}
	return out, nil
}

// Status reports the current operational snapshot (§6).
func (idx *Index) Status() Status {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Status{
		SourceCount:  idx.sourceCount,
		ChunkCount:   idx.chunkCount,
		UsedFallback: idx.usedFallback,
		LastRefresh:  idx.lastRefresh,
	}
}

// ClearCache purges the persisted embedding cache and empties the in-memory
// chunk table (§6 `/chatbot/docs/clear-cache`).
func (idx *Index) ClearCache() error {
	if err := idx.cache.clear(); err != nil {
		return apierr.Internal("clear doc cache", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	stmt, err := tinysql.ParseSQL(fmt.Sprintf("DELETE FROM %s", chunkTable))
	if err == nil {
		_, _ = tinysql.Execute(context.Background(), idx.db, "default", stmt)
	}
	idx.chunkCount = 0
	idx.sourceCount = 0
	return nil
}

// Close flushes the embedding cache to disk during graceful shutdown
// (§9 "Global singletons... torn down on shutdown").
func (idx *Index) Close() error {
	snapshot := idx.cache.snapshot()
	idx.cache.mu.Lock()
	idx.cache.file = snapshot
	idx.cache.mu.Unlock()
	return idx.cache.saveLocked()
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	default:
		return 0
	}
}
