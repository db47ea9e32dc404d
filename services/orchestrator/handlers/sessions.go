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
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/datatypes"
)

// HandleValidateSession handles `GET /chatbot/sessions/:id/validate` (§6):
// 200 if the session exists and has not been TTL-evicted, else 404.
func HandleValidateSession(registry *session.Registry, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		sess, ok := registry.Get(id)
		if !ok {
			writeError(c, apierr.SessionExpired(id))
			return
		}
		c.JSON(http.StatusOK, datatypes.ValidateSessionResponse{
			SessionID:  sess.ID,
			Valid:      true,
			LastAccess: sess.LastAccess(),
		})
	}
}

// HandleSessionSchema handles `GET /chatbot/sessions/:id/schema` (§6).
func HandleSessionSchema(registry *session.Registry, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		sess, ok := registry.Get(id)
		if !ok {
			writeError(c, apierr.SessionExpired(id))
			return
		}
		c.JSON(http.StatusOK, datatypes.NewTableSchema(sess))
	}
}

// HandleSessionQuery handles `POST /chatbot/sessions/:id/query` (§6): a
// debugging entrypoint that executes read-only SQL directly against the
// session's Tabular Store.
func HandleSessionQuery(registry *session.Registry, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleSessionQuery")
		defer span.End()

		id := c.Param("id")
		sess, ok := registry.Get(id)
		if !ok {
			writeError(c, apierr.SessionExpired(id))
			return
		}

		var req datatypes.QueryRequest
		if err := c.BindJSON(&req); err != nil || req.Validate() != nil {
			writeError(c, apierr.Input("sql is required"))
			return
		}

		result, err := sess.Store().Query(ctx, req.SQL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("debug query failed", "session_id", id, "error", err)
			writeError(c, apierr.Tool("query failed: %v", err))
			return
		}
		c.JSON(http.StatusOK, datatypes.NewQueryResponse(result))
	}
}

// HandleValidationHistory handles
// `GET /chatbot/sessions/:id/validation-history` (§6).
func HandleValidationHistory(registry *session.Registry, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		sess, ok := registry.Get(id)
		if !ok {
			writeError(c, apierr.SessionExpired(id))
			return
		}
		c.JSON(http.StatusOK, datatypes.NewValidationHistoryResponse(id, sess.ValidationHistory()))
	}
}

// HandleSessionsStats handles `GET /chatbot/sessions/stats` (§6).
func HandleSessionsStats(registry *session.Registry, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.NewSessionsStatsResponse(registry.Stats()))
	}
}
