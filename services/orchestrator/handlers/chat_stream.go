// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP handlers for the orchestrator service.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/meethub/services/orchestrator/conversation"
	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/observability"
	"github.com/AleutianAI/meethub/services/orchestrator/policy"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
	"github.com/AleutianAI/meethub/services/orchestrator/workflow"
)

var tracer = otel.Tracer("meethub.orchestrator.handlers")

// keepAliveInterval paces SSE ping comments. Shorter than the 60s idle
// timeout of common load balancers.
const keepAliveInterval = 15 * time.Second

// ChatHandlers serves the streaming chat endpoint and session management.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the injected collaborators.
type ChatHandlers struct {
	manager     *workflow.Manager
	store       conversation.Store
	policy      *policy.Engine
	suppression stream.SuppressionPolicy
	metrics     *observability.Metrics
}

// NewChatHandlers creates the handler set. Panics on nil manager or store;
// policy may be nil to disable query scanning.
func NewChatHandlers(manager *workflow.Manager, store conversation.Store, engine *policy.Engine, suppression stream.SuppressionPolicy) *ChatHandlers {
	if manager == nil {
		panic("handlers.NewChatHandlers: manager must not be nil")
	}
	if store == nil {
		panic("handlers.NewChatHandlers: store must not be nil")
	}
	return &ChatHandlers{
		manager:     manager,
		store:       store,
		policy:      engine,
		suppression: suppression,
		metrics:     observability.DefaultMetrics(),
	}
}

// StreamChat handles POST /chat/rag/stream.
//
// # Description
//
// Validates the request, opens the SSE stream, and hands the request to
// the workflow manager. The stream filter between the manager and the
// wire guarantees the envelope invariants regardless of what the
// workflows emit.
func (h *ChatHandlers) StreamChat(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ChatHandlers.StreamChat")
	defer span.End()
	start := time.Now()

	// 1. Parse and validate the request
	var req datatypes.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordError(observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RecordError(observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. Policy scan before anything is echoed back
	if h.policy != nil {
		if violation := h.policy.Scan(req.Query); violation != nil {
			slog.Warn("Query blocked by policy",
				"rule", violation.Rule, "session_id", req.SessionID)
			h.metrics.RecordError(observability.ErrorCodePolicy)
			c.JSON(http.StatusForbidden, gin.H{
				"error": "query blocked by content policy",
				"rule":  violation.Rule,
			})
			return
		}
	}

	// 3. Assign a session when the client didn't send one
	req.EnsureSessionID()
	h.metrics.RecordChatRequest()

	// 4. Open the SSE stream
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Status(http.StatusOK)

	// 5. Keepalive until the workflow finishes
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// 6. Run the request through the workflow manager
	sink := stream.SinkFunc(func(env datatypes.Envelope) error {
		h.metrics.RecordEnvelope(string(env.Type))
		return writer.Send(env)
	})
	filter := stream.NewFilter(sink, h.suppression, req.SessionID)
	h.manager.Run(ctx, &req, filter)
	close(done)

	h.metrics.RecordStreamDuration(time.Since(start))
}
