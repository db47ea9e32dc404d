// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the handlers onto a gin.Engine (§6).
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/agent"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator/observability"
)

// SetupRoutes registers every `/chatbot/*` route plus `/health` on router.
func SetupRoutes(router *gin.Engine, registry *session.Registry, controller *agent.Controller, docIndex *docs.Index, logger *logging.Logger, metrics *observability.ChatbotMetrics) {
	router.GET("/health", handlers.HandleHealth())

	chatbot := router.Group("/chatbot")
	{
		chatbot.POST("/init", handlers.HandleInit(registry, logger, metrics))
		chatbot.POST("/chat", handlers.HandleChat(controller, registry, logger, metrics))

		sessions := chatbot.Group("/sessions")
		{
			sessions.GET("/stats", handlers.HandleSessionsStats(registry, logger))
			sessions.GET("/:id/validate", handlers.HandleValidateSession(registry, logger))
			sessions.GET("/:id/schema", handlers.HandleSessionSchema(registry, logger))
			sessions.POST("/:id/query", handlers.HandleSessionQuery(registry, logger))
			sessions.GET("/:id/validation-history", handlers.HandleValidationHistory(registry, logger))
		}

		docsGroup := chatbot.Group("/docs")
		{
			docsGroup.GET("/status", handlers.HandleDocsStatus(docIndex, logger))
			docsGroup.POST("/refresh", handlers.HandleDocsRefresh(docIndex, logger, metrics))
			docsGroup.POST("/clear-cache", handlers.HandleDocsClearCache(docIndex, logger))
		}
	}
}
