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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// TestSSEWriter_FrameFormat verifies the data-only frame shape with a
// trailing blank line and compact JSON.
func TestSSEWriter_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(datatypes.ContentEnvelope("s1", "hello")))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: {"))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"content":"hello"`)
}

// TestSSEWriter_UTF8Passthrough verifies non-ASCII text is not escaped.
func TestSSEWriter_UTF8Passthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(datatypes.ContentEnvelope("s1", "회의록 <ready>")))

	body := rec.Body.String()
	assert.Contains(t, body, "회의록 <ready>")
	assert.NotContains(t, body, `\u`)
}

// TestSSEWriter_UnserializablePayloadStringified verifies a payload value
// JSON cannot encode is replaced by its string form instead of failing the
// frame.
func TestSSEWriter_UnserializablePayloadStringified(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	env := datatypes.ResultEnvelope("s1", map[string]any{
		"bad":  make(chan int),
		"task": "visualize",
	})
	require.NoError(t, w.Send(env))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: {"))
	assert.Contains(t, body, `"task":"visualize"`)
	assert.Contains(t, body, `"bad":`)
}

// TestSSEWriter_KeepAliveComment verifies the keepalive frame shape.
func TestSSEWriter_KeepAliveComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}
