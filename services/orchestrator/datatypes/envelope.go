// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the stream envelope type: the tagged union that every
// workflow emission is normalized into before it reaches the SSE encoder.
package datatypes

// =============================================================================
// Envelope Kinds
// =============================================================================

// EnvelopeKind identifies the type of a stream envelope.
//
// # Description
//
// Kinds mirror the message types understood by the meeting hub frontend.
// Textual kinds (Content, Thinking) carry their payload in Envelope.Content;
// structured kinds (Error, Result, ...) carry it in Envelope.Data.
type EnvelopeKind string

const (
	// KindStart opens a stream and echoes the session ID.
	KindStart EnvelopeKind = "start"

	// KindContent is a chunk of answer text for display.
	KindContent EnvelopeKind = "content"

	// KindEnd closes a stream. Exactly one per request.
	KindEnd EnvelopeKind = "end"

	// KindError reports a failure. Always followed by KindEnd.
	KindError EnvelopeKind = "error"

	// KindInfo is an informational notice.
	KindInfo EnvelopeKind = "info"

	// KindThinking is a progress note while a workflow works.
	KindThinking EnvelopeKind = "thinking"

	// KindRetrievedDocument carries a single retrieved document.
	KindRetrievedDocument EnvelopeKind = "retrieved_document"

	// KindRetrievedDocuments carries a batch of retrieved documents.
	// Kept for upstream compatibility; workflows emit per-document envelopes.
	KindRetrievedDocuments EnvelopeKind = "retrieved_documents"

	// KindReasoningStep surfaces a model or pipeline reasoning step.
	KindReasoningStep EnvelopeKind = "llm_reasoning_step"

	// KindIntentClassified reports the routing decision for the request.
	KindIntentClassified EnvelopeKind = "intent_classified"

	// KindTaskComplete reports completion of a side-effecting task.
	KindTaskComplete EnvelopeKind = "task_complete"

	// KindResult carries the final structured outcome of a task.
	KindResult EnvelopeKind = "result"

	// KindWarning reports a recoverable problem.
	KindWarning EnvelopeKind = "warning"
)

// =============================================================================
// Envelope
// =============================================================================

// Envelope is the unit of the streaming pipeline.
//
// # Description
//
// Every upstream event (LLM token, retrieval hit, workflow progress note)
// is normalized into an Envelope before filtering and SSE encoding. The
// wire representation is a single compact JSON object per SSE data line.
//
// # Fields
//
//   - Type: The envelope kind. Required.
//   - Content: Text payload for textual kinds. Omitted when empty.
//   - Data: Structured payload for structured kinds. Omitted when nil.
//   - SessionID: Session the envelope belongs to. Set by the router.
//
// # Invariants
//
//   - Exactly one KindEnd envelope is delivered per request stream.
//   - A KindError envelope is always followed by KindEnd.
//   - Envelopes are delivered in emission order.
//   - Content is never empty or whitespace-only on the wire.
type Envelope struct {
	Type      EnvelopeKind   `json:"type"`
	Content   string         `json:"content,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// ContentEnvelope builds a content envelope.
func ContentEnvelope(sessionID, text string) Envelope {
	return Envelope{Type: KindContent, Content: text, SessionID: sessionID}
}

// ThinkingEnvelope builds a thinking progress envelope.
func ThinkingEnvelope(sessionID, text string) Envelope {
	return Envelope{Type: KindThinking, Content: text, SessionID: sessionID}
}

// ErrorEnvelope builds an error envelope with a sanitized message.
//
// The message must already be safe for client display; internal error
// details belong in logs only.
func ErrorEnvelope(sessionID, message, details string) Envelope {
	data := map[string]any{"error_message": message}
	if details != "" {
		data["details"] = details
	}
	return Envelope{Type: KindError, Data: data, SessionID: sessionID}
}

// StartEnvelope builds the stream-opening envelope.
func StartEnvelope(sessionID string) Envelope {
	return Envelope{Type: KindStart, SessionID: sessionID}
}

// EndEnvelope builds the stream-closing envelope.
func EndEnvelope(sessionID string) Envelope {
	return Envelope{Type: KindEnd, SessionID: sessionID}
}

// ReasoningStepEnvelope builds a reasoning step envelope.
func ReasoningStepEnvelope(sessionID string, step ReasoningStep) Envelope {
	return Envelope{
		Type: KindReasoningStep,
		Data: map[string]any{
			"step_description": step.StepDescription,
			"details":          step.Details,
		},
		SessionID: sessionID,
	}
}

// InfoEnvelope builds an informational notice envelope.
func InfoEnvelope(sessionID, text string) Envelope {
	return Envelope{Type: KindInfo, Content: text, SessionID: sessionID}
}

// WarningEnvelope builds a recoverable problem envelope.
func WarningEnvelope(sessionID, message string) Envelope {
	return Envelope{
		Type:      KindWarning,
		Data:      map[string]any{"warning_message": message},
		SessionID: sessionID,
	}
}

// IntentClassifiedEnvelope reports the routing decision for a request.
func IntentClassifiedEnvelope(sessionID, intent string, entities map[string]any) Envelope {
	data := map[string]any{"intent": intent}
	if len(entities) > 0 {
		data["entities"] = entities
	}
	return Envelope{Type: KindIntentClassified, Data: data, SessionID: sessionID}
}

// TaskCompleteEnvelope reports completion of a side-effecting task.
func TaskCompleteEnvelope(sessionID, task string) Envelope {
	return Envelope{
		Type:      KindTaskComplete,
		Data:      map[string]any{"task": task},
		SessionID: sessionID,
	}
}

// ResultEnvelope carries the final structured outcome of a task.
func ResultEnvelope(sessionID string, data map[string]any) Envelope {
	return Envelope{Type: KindResult, Data: data, SessionID: sessionID}
}

// RetrievedDocumentEnvelope carries one retrieval hit.
func RetrievedDocumentEnvelope(sessionID string, doc RetrievedDocument) Envelope {
	return Envelope{
		Type:      KindRetrievedDocument,
		Data:      doc.AsEnvelopeData(),
		SessionID: sessionID,
	}
}

// ReasoningStepDescription extracts the step_description from a reasoning
// step envelope. Returns "" for other kinds or malformed payloads.
func (e Envelope) ReasoningStepDescription() string {
	if e.Type != KindReasoningStep || e.Data == nil {
		return ""
	}
	desc, _ := e.Data["step_description"].(string)
	return desc
}
