// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Config Tests
// =============================================================================

// TestApplyConfigDefaults_AllDefaults verifies default values are applied
// when an empty Config is provided.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 12210, result.Port)
	assert.Equal(t, "ollama", result.LLMBackend)
	assert.Equal(t, "meethub-otel-collector:4317", result.OTelEndpoint)
	assert.Equal(t, 24*time.Hour, result.SessionTTL)
	assert.Equal(t, 15*time.Minute, result.SweepInterval)
	assert.True(t, result.TTLEnabled)
}

// TestApplyConfigDefaults_PreservesCustomValues verifies user-provided
// values are not overwritten.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:          8080,
		LLMBackend:    "openai",
		RedisAddr:     "localhost:6379",
		OTelEndpoint:  "localhost:4317",
		APIToken:      "tok",
		SessionTTL:    time.Hour,
		SweepInterval: time.Minute,
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, "openai", result.LLMBackend)
	assert.Equal(t, "localhost:6379", result.RedisAddr)
	assert.Equal(t, "localhost:4317", result.OTelEndpoint)
	assert.Equal(t, "tok", result.APIToken)
	assert.Equal(t, time.Hour, result.SessionTTL)
	assert.Equal(t, time.Minute, result.SweepInterval)
}
