// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvelope_WireShape verifies empty fields are omitted from the JSON
// representation so frames stay compact.
func TestEnvelope_WireShape(t *testing.T) {
	raw, err := json.Marshal(EndEnvelope("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"end","session_id":"s1"}`, string(raw))

	raw, err = json.Marshal(ContentEnvelope("s1", "hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"content","content":"hello","session_id":"s1"}`, string(raw))
}

// TestErrorEnvelope_Payload verifies the error payload keys and optional
// details.
func TestErrorEnvelope_Payload(t *testing.T) {
	env := ErrorEnvelope("s1", "something went wrong", "")
	assert.Equal(t, KindError, env.Type)
	assert.Equal(t, "something went wrong", env.Data["error_message"])
	_, ok := env.Data["details"]
	assert.False(t, ok)

	env = ErrorEnvelope("s1", "msg", "retry later")
	assert.Equal(t, "retry later", env.Data["details"])
}

// TestReasoningStepDescription verifies extraction and the non-step cases.
func TestReasoningStepDescription(t *testing.T) {
	env := ReasoningStepEnvelope("s1", ReasoningStep{StepDescription: "Analyzing query"})
	assert.Equal(t, "Analyzing query", env.ReasoningStepDescription())

	assert.Empty(t, ContentEnvelope("s1", "x").ReasoningStepDescription())
	assert.Empty(t, Envelope{Type: KindReasoningStep}.ReasoningStepDescription())
}

// TestIntentClassifiedEnvelope_OmitsEmptyEntities verifies the entities
// key only appears when populated.
func TestIntentClassifiedEnvelope_OmitsEmptyEntities(t *testing.T) {
	env := IntentClassifiedEnvelope("s1", "qna", nil)
	_, ok := env.Data["entities"]
	assert.False(t, ok)

	env = IntentClassifiedEnvelope("s1", "visualize", map[string]any{"document_name": "sync"})
	assert.Equal(t, map[string]any{"document_name": "sync"}, env.Data["entities"])
}
