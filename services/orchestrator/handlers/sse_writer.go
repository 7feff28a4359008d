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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes stream envelopes to an HTTP response as Server-Sent
// Events.
//
// # Description
//
// Each envelope becomes one data-only SSE frame:
//
//	data: {"type":"content","content":"...","session_id":"..."}
//
// followed by a blank line. No event: field is used; clients dispatch on
// the envelope's type field. JSON is compact with HTML escaping disabled,
// so multi-byte UTF-8 text passes through unmodified.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The keepalive ticker
// writes from a different goroutine than the workflow.
type SSEWriter interface {
	// Send writes one envelope frame and flushes it.
	Send(env datatypes.Envelope) error

	// WriteKeepAlive writes an SSE comment (": ping") to hold the
	// connection open through proxies. Ignored by clients.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// # Fields
//
//   - writer: Underlying response writer.
//   - flusher: Flush interface for immediate delivery.
//   - mu: Serializes frame writes; a frame is never interleaved with a
//     keepalive comment.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// Compile-time interface check.
var _ SSEWriter = (*sseWriter)(nil)

// NewSSEWriter creates a writer for the given ResponseWriter.
//
// Returns an error when the ResponseWriter cannot flush; SSE without
// flushing buffers the whole stream and defeats its purpose.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// Send implements SSEWriter.
//
// Encoding never fails the stream: an unserializable payload value is
// replaced by its string representation and logged, so one bad structured
// field cannot break the SSE framing.
func (w *sseWriter) Send(env datatypes.Envelope) error {
	frame, err := encodeFrame(env)
	if err != nil {
		slog.Warn("Envelope payload not serializable, stringifying",
			"error", err, "type", env.Type, "session_id", env.SessionID)
		env.Data = stringifyPayload(env.Data)
		if frame, err = encodeFrame(env); err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(frame); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// encodeFrame renders one envelope as a data-only SSE frame.
func encodeFrame(env datatypes.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("data: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	// Encode appends one newline; the frame needs a blank line after it.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// stringifyPayload replaces every payload value with its fmt representation.
// The result always marshals.
func stringifyPayload(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// WriteKeepAlive implements SSEWriter.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures response headers for SSE streaming.
//
// Must be called before the first write. Cache-Control is no-store:
// streamed chat responses must never land in shared caches.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
