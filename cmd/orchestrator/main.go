// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the MeetHub chat orchestrator HTTP server.
//
// This is the main entry point for the containerized orchestrator service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12210)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, openai (default: ollama)
//   - REDIS_ADDR: Redis address for the session store (optional)
//   - SEARCH_API_URL: Retrieval service base URL (optional)
//   - WEAVIATE_HOST: Weaviate host for direct retrieval (optional)
//   - MATTERMOST_URL: Mattermost base URL for minutes delivery (optional)
//   - ORCHESTRATOR_API_TOKEN: Bearer token required on /v1 routes (optional)
//   - POLICY_RULES_PATH: Override for the content policy rules file (optional)
//   - SESSION_TTL_HOURS: Idle session retention in hours (default: 24)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: meethub-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/meethub/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:            getEnvInt("ORCHESTRATOR_PORT", 12210),
		LLMBackend:      getEnvString("LLM_BACKEND_TYPE", "ollama"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		OTelEndpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "meethub-otel-collector:4317"),
		APIToken:        os.Getenv("ORCHESTRATOR_API_TOKEN"),
		PolicyRulesPath: os.Getenv("POLICY_RULES_PATH"),
		SessionTTL:      time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"redis_addr", cfg.RedisAddr,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
