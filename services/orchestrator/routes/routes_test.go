// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/agent"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/safety"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct{}

func (stubGateway) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, choice llm.ToolChoice) (*llm.ChatResult, error) {
	return &llm.ChatResult{Text: "ok"}, nil
}

func (stubGateway) ChatParser(ctx context.Context, messages []llm.Message) (*llm.ChatResult, error) {
	return &llm.ChatResult{Text: `{"suspicious":false,"risk":"LOW"}`}, nil
}

func (stubGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	return out, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	logger := logging.Default()
	reg := session.NewRegistry(time.Hour, logger)
	gw := stubGateway{}
	gate := safety.New(gw)
	idx, err := docs.New(docs.DefaultConfig(), gw, logger)
	require.NoError(t, err)
	controller := agent.New(gw, gate, idx, logger)

	router := gin.New()
	router.NoRoute(func(c *gin.Context) { c.Status(http.StatusTeapot) })
	SetupRoutes(router, reg, controller, idx, logger, nil)
	return router
}

func TestSetupRoutesRegistersHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutesRegistersChatbotSurface(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		method string
		path   string
	}{
		{"POST", "/chatbot/init"},
		{"POST", "/chatbot/chat"},
		{"GET", "/chatbot/sessions/stats"},
		{"GET", "/chatbot/sessions/abc/validate"},
		{"GET", "/chatbot/sessions/abc/schema"},
		{"POST", "/chatbot/sessions/abc/query"},
		{"GET", "/chatbot/sessions/abc/validation-history"},
		{"GET", "/chatbot/docs/status"},
		{"POST", "/chatbot/docs/clear-cache"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(tc.method, tc.path, nil)
		router.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusTeapot, w.Code, "%s %s should be routed", tc.method, tc.path)
	}
}
