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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
)

func seedSessionForTests(t *testing.T) (*session.Registry, string) {
	t.Helper()
	reg := newTestRegistry(t)
	logData := []byte(`{"ATT":{"time_boot_ms":{"0":1000},"Roll":{"0":0.1}}}`)
	sess, _ := reg.Create(parsedLogFixtureFor(t, logData))
	return reg, sess.ID
}

func TestHandleValidateSessionHappyPath(t *testing.T) {
	reg, id := seedSessionForTests(t)
	router := gin.New()
	router.GET("/chatbot/sessions/:id/validate", HandleValidateSession(reg, logging.Default()))

	w := performJSON(router, "GET", "/chatbot/sessions/"+id+"/validate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, id, resp["sessionId"])
}

func TestHandleValidateSessionUnknownID(t *testing.T) {
	reg := newTestRegistry(t)
	router := gin.New()
	router.GET("/chatbot/sessions/:id/validate", HandleValidateSession(reg, logging.Default()))

	w := performJSON(router, "GET", "/chatbot/sessions/does-not-exist/validate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSessionSchemaReturnsIngestedTables(t *testing.T) {
	reg, id := seedSessionForTests(t)
	router := gin.New()
	router.GET("/chatbot/sessions/:id/schema", HandleSessionSchema(reg, logging.Default()))

	w := performJSON(router, "GET", "/chatbot/sessions/"+id+"/schema", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp)
	assert.Equal(t, "att_data", resp[0]["table"])
}

func TestHandleSessionQueryExecutesSQL(t *testing.T) {
	reg, id := seedSessionForTests(t)
	router := gin.New()
	router.POST("/chatbot/sessions/:id/query", HandleSessionQuery(reg, logging.Default()))

	w := performJSON(router, "POST", "/chatbot/sessions/"+id+"/query", map[string]string{"sql": "SELECT * FROM att_data"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["columns"])
}

func TestHandleSessionQueryRejectsEmptySQL(t *testing.T) {
	reg, id := seedSessionForTests(t)
	router := gin.New()
	router.POST("/chatbot/sessions/:id/query", HandleSessionQuery(reg, logging.Default()))

	w := performJSON(router, "POST", "/chatbot/sessions/"+id+"/query", map[string]string{"sql": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSessionQueryUnknownSession(t *testing.T) {
	reg := newTestRegistry(t)
	router := gin.New()
	router.POST("/chatbot/sessions/:id/query", HandleSessionQuery(reg, logging.Default()))

	w := performJSON(router, "POST", "/chatbot/sessions/does-not-exist/query", map[string]string{"sql": "SELECT 1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleValidationHistoryEmptyForFreshSession(t *testing.T) {
	reg, id := seedSessionForTests(t)
	router := gin.New()
	router.GET("/chatbot/sessions/:id/validation-history", HandleValidationHistory(reg, logging.Default()))

	w := performJSON(router, "GET", "/chatbot/sessions/"+id+"/validation-history", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp["sessionId"])
}

func TestHandleSessionsStatsReportsActiveCount(t *testing.T) {
	reg, _ := seedSessionForTests(t)
	router := gin.New()
	router.GET("/chatbot/sessions/stats", HandleSessionsStats(reg, logging.Default()))

	w := performJSON(router, "GET", "/chatbot/sessions/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["activeSessions"])
}
