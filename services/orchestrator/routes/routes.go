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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/meethub/services/orchestrator/handlers"
	"github.com/AleutianAI/meethub/services/orchestrator/middleware"
)

// SetupRoutes wires the HTTP surface onto the router.
//
// Health and metrics stay unauthenticated for probes and scrapers. When
// apiToken is non-empty the v1 group requires a matching bearer token.
func SetupRoutes(router *gin.Engine, chat *handlers.ChatHandlers, apiToken string) {
	router.GET("/health", chat.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	if apiToken != "" {
		v1.Use(middleware.APITokenAuth(apiToken))
	}
	{
		v1.POST("/chat/rag/stream", chat.StreamChat)

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:id/history", chat.SessionHistory)
			sessions.DELETE("/:id", chat.ClearSession)
		}
	}
}
