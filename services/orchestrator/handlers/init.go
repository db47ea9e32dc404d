// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the `/chatbot/*` and `/health` HTTP surface
// (§6), wiring the C1-C9 components behind gin.HandlerFunc closures.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/apierr"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/logdata"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/observability"
)

var tracer = otel.Tracer("aleutian.orchestrator.handlers")

// HandleInit handles `POST /chatbot/init` (§6): parses a Parsed Log payload,
// ingests it into a new session, and returns the session id.
func HandleInit(registry *session.Registry, logger *logging.Logger, metrics *observability.ChatbotMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracer.Start(c.Request.Context(), "HandleInit")
		defer span.End()

		var req datatypes.InitRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("failed to parse init request body", "error", err)
			writeError(c, apierr.Input("request body must be valid JSON with a logData field"))
			return
		}

		var parsed logdata.ParsedLog
		if err := parsed.UnmarshalJSON(req.LogData); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("failed to parse logData", "error", err)
			writeError(c, apierr.Input("logData is not a valid flight log payload"))
			return
		}

		sess, summary := registry.Create(&parsed)
		if metrics != nil {
			metrics.RecordSessionCreated()
			metrics.SetActiveSessions(registry.Count())
		}
		logger.Info("session created", "session_id", sess.ID, "tables", len(summary.Tables), "failures", len(summary.Failures))

		c.JSON(http.StatusOK, datatypes.InitResponse{
			SessionID: sess.ID,
			Timestamp: time.Now(),
			Ingest:    summary,
		})
	}
}

// writeError translates a typed error into its HTTP status and body.
func writeError(c *gin.Context, err error) {
	status, body := apierr.Translate(err)
	c.JSON(status, body)
}
