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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SessionHistory handles GET /sessions/:id/history.
//
// Returns the session's conversation entries in chronological order. An
// unknown session yields an empty list, not a 404; session IDs are
// client-generated and a fresh one legitimately has no history yet.
func (h *ChatHandlers) SessionHistory(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ChatHandlers.SessionHistory")
	defer span.End()

	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	entries, err := h.store.Recent(ctx, sessionID, limit)
	if err != nil {
		slog.Error("Failed to load session history", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history"})
		return
	}

	meeting, err := h.store.MeetingContext(ctx, sessionID)
	if err != nil {
		slog.Warn("Failed to load meeting context", "error", err, "session_id", sessionID)
	}

	resp := gin.H{
		"session_id": sessionID,
		"history":    entries,
		"count":      len(entries),
	}
	if meeting != nil {
		resp["meeting_context"] = meeting
	}
	c.JSON(http.StatusOK, resp)
}

// ClearSession handles DELETE /sessions/:id.
//
// Removes the session's history and meeting context. Idempotent: clearing
// an unknown session succeeds.
func (h *ChatHandlers) ClearSession(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ChatHandlers.ClearSession")
	defer span.End()

	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}

	if err := h.store.Clear(ctx, sessionID); err != nil {
		slog.Error("Failed to clear session", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}

	slog.Info("Session cleared", "session_id", sessionID)
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cleared": true})
}

// Health handles GET /health.
func (h *ChatHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "orchestrator"})
}
