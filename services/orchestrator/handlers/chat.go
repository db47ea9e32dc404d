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
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/agent"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/apierr"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/observability"
)

// HandleChat handles `POST /chatbot/chat` (§6): runs one Agent Controller
// turn against the session named in the request body.
func HandleChat(controller *agent.Controller, registry *session.Registry, logger *logging.Logger, metrics *observability.ChatbotMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("failed to parse chat request", "error", err)
			writeError(c, apierr.Input("request body must include message and sessionId"))
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, apierr.Input("message and sessionId are required"))
			return
		}

		sess, ok := registry.Get(req.SessionID)
		if !ok {
			writeError(c, apierr.SessionExpired(req.SessionID))
			return
		}

		start := time.Now()
		outcome, err := controller.HandleTurn(ctx, sess, req.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("turn handling failed", "session_id", sess.ID, "error", err)
			writeError(c, err)
			return
		}

		if metrics != nil {
			queryCorrections, discrepancies := 0, 0
			if outcome.QueryValidation != nil {
				queryCorrections = outcome.QueryValidation.QueriesWithDiscrepancies
				for _, v := range outcome.QueryValidation.Validations {
					discrepancies += len(v.Discrepancies)
				}
			}
			metrics.RecordTurn(outcome.Refused, outcome.BestEffort, time.Since(start).Seconds(),
				outcome.ToolHops, queryCorrections, outcome.Corrections, discrepancies)
		}

		schema := datatypes.NewTableSchema(sess)
		c.JSON(http.StatusOK, datatypes.NewChatResponse(outcome, schema))
	}
}
