// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes: the Doc Index admin endpoints (status, refresh,
// clear-cache).
package datatypes

import (
	"time"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
)

// DocsStatusResponse is the body of `GET /chatbot/docs/status`.
type DocsStatusResponse struct {
	SourceCount  int       `json:"sourceCount"`
	ChunkCount   int       `json:"chunkCount"`
	UsedFallback bool      `json:"usedFallback"`
	LastRefresh  time.Time `json:"lastRefresh"`
}

// NewDocsStatusResponse converts docs.Status into its wire form.
func NewDocsStatusResponse(s docs.Status) DocsStatusResponse {
	return DocsStatusResponse{
		SourceCount:  s.SourceCount,
		ChunkCount:   s.ChunkCount,
		UsedFallback: s.UsedFallback,
		LastRefresh:  s.LastRefresh,
	}
}

// DocsRefreshResponse is the body of `POST /chatbot/docs/refresh`.
type DocsRefreshResponse struct {
	Status DocsStatusResponse `json:"status"`
}

// DocsClearCacheResponse is the body of `POST /chatbot/docs/clear-cache`.
type DocsClearCacheResponse struct {
	Cleared bool `json:"cleared"`
}
