// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/apierr"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/observability"
)

// HandleDocsStatus handles `GET /chatbot/docs/status` (§6).
func HandleDocsStatus(docIndex *docs.Index, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.NewDocsStatusResponse(docIndex.Status()))
	}
}

// HandleDocsRefresh handles `POST /chatbot/docs/refresh` (§6): re-fetches
// doc sources and re-embeds any chunk whose content hash changed.
func HandleDocsRefresh(docIndex *docs.Index, logger *logging.Logger, metrics *observability.ChatbotMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleDocsRefresh")
		defer span.End()

		if err := docIndex.Refresh(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("doc refresh failed", "error", err)
			if metrics != nil {
				metrics.RecordDocRefresh("error", 0)
			}
			writeError(c, apierr.Transport("doc refresh failed", err))
			return
		}

		status := docIndex.Status()
		if metrics != nil {
			result := "ok"
			if status.UsedFallback {
				result = "fallback"
			}
			metrics.RecordDocRefresh(result, status.ChunkCount)
		}
		logger.Info("doc index refreshed", "chunk_count", status.ChunkCount, "used_fallback", status.UsedFallback)
		c.JSON(http.StatusOK, datatypes.DocsRefreshResponse{Status: datatypes.NewDocsStatusResponse(status)})
	}
}

// HandleDocsClearCache handles `POST /chatbot/docs/clear-cache` (§6): purges
// the persistent embedding cache file.
func HandleDocsClearCache(docIndex *docs.Index, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := docIndex.ClearCache(); err != nil {
			logger.Error("doc cache clear failed", "error", err)
			writeError(c, apierr.Internal("clear doc cache", err))
			return
		}
		c.JSON(http.StatusOK, datatypes.DocsClearCacheResponse{Cleared: true})
	}
}
