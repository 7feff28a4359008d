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
// This file contains request types for the streaming chat endpoint and the
// supporting meeting-hub types (meeting context, retrieved documents,
// reasoning steps). For the stream envelope union, see envelope.go.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a chat query.
	// Per SEC-003: Unbounded message input mitigation.
	MaxQueryBytes = 32 * 1024 // 32KB

	// MaxTargetDocuments is the maximum number of document ID filters
	// accepted on a single request.
	MaxTargetDocuments = 50
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for query size (SEC-003)
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)

	// Register custom validator for non-blank strings
	_ = chatValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateMaxBytes validates that a string field does not exceed MaxQueryBytes.
//
// Checks byte length (not rune count) to prevent memory exhaustion with
// large multi-byte payloads.
//
// # Security References
//
//   - SEC-003: Unbounded message input (security_architecture_review.md)
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxQueryBytes
}

// validateNotBlank rejects strings that are empty after trimming whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// =============================================================================
// Chat Stream Request Types
// =============================================================================

// MeetingContext carries meeting metadata attached to a chat session.
//
// # Description
//
// When the hub frontend opens a chat from a meeting page it attaches the
// meeting title, participant list, and the published minutes URL. The
// minutes distribution workflow requires all three.
//
// # Fields
//
//   - Title: Display title of the meeting.
//   - ParticipantNames: Participant display names. The hub sometimes sends
//     a single comma-joined string; SplitParticipants normalizes that.
//   - MinutesURL: Link to the published meeting minutes document.
type MeetingContext struct {
	Title            string   `json:"title"`
	ParticipantNames []string `json:"participant_names"`
	MinutesURL       string   `json:"minutes_url"`
}

// SplitParticipants returns the normalized participant list.
//
// A single-element list containing a comma-joined string is split on commas
// and trimmed, matching what the hub sends for older meetings. Blank names
// are dropped.
func (m *MeetingContext) SplitParticipants() []string {
	if m == nil || len(m.ParticipantNames) == 0 {
		return nil
	}
	raw := m.ParticipantNames
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		raw = strings.Split(raw[0], ",")
	}
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// ChatStreamRequest represents the body of POST {prefix}/chat/rag/stream.
//
// # Description
//
// ChatStreamRequest contains the user's natural-language query plus optional
// session and retrieval scoping. The handler validates the body before any
// SSE output; validation failures produce a plain 400 JSON response.
//
// # Fields
//
//   - Query: Required. The user's question or instruction. Must be non-blank
//     and at most 32KB (SEC-003).
//   - SessionID: Optional. Omit to start a new session; the router generates
//     a UUID and echoes it in every envelope.
//   - SearchInMeetingDocumentsOnly: Optional. Restrict retrieval to meeting
//     minutes documents.
//   - TargetDocumentIDs: Optional. Restrict retrieval to specific documents.
//   - MeetingContext: Optional. Meeting metadata stored against the session.
//
// # Validation
//
//   - Query: required, non-blank, max 32768 bytes
//   - TargetDocumentIDs: at most 50 entries
//
// # Examples
//
//	req := ChatStreamRequest{
//	    Query:     "Summarize yesterday's platform sync",
//	    SessionID: "550e8400-e29b-41d4-a716-446655440000",
//	}
type ChatStreamRequest struct {
	Query                        string          `json:"query" validate:"required,notblank,maxbytes"`
	SessionID                    string          `json:"session_id"`
	SearchInMeetingDocumentsOnly bool            `json:"search_in_meeting_documents_only"`
	TargetDocumentIDs            []string        `json:"target_document_ids" validate:"max=50"`
	MeetingContext               *MeetingContext `json:"meeting_context,omitempty"`
}

// Validate validates the ChatStreamRequest fields.
func (r *ChatStreamRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureSessionID returns the request's session ID, generating and storing
// a new UUID when the client did not supply one.
func (r *ChatStreamRequest) EnsureSessionID() string {
	if r.SessionID == "" {
		r.SessionID = uuid.New().String()
	}
	return r.SessionID
}

// =============================================================================
// Conversation Message Types
// =============================================================================

// Message is a single turn in a conversation, in LLM chat format.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Retrieval Types
// =============================================================================

// RetrievedDocument is one scored hit from the retrieval backend.
//
// # Fields
//
//   - SourceDocumentID: Stable identifier of the source document.
//   - ContentChunk: The matched passage text.
//   - Score: Relevance score in [0, 1]. The Q&A workflow keeps hits with
//     Score >= 0.7, at most five per request.
//   - Metadata: Backend-specific extras (title, source path).
type RetrievedDocument struct {
	SourceDocumentID string         `json:"source_document_id"`
	ContentChunk     string         `json:"content_chunk"`
	Score            float64        `json:"score"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// AsEnvelopeData converts the document to an envelope payload.
func (d RetrievedDocument) AsEnvelopeData() map[string]any {
	data := map[string]any{
		"source_document_id": d.SourceDocumentID,
		"content_chunk":      d.ContentChunk,
		"score":              d.Score,
	}
	if len(d.Metadata) > 0 {
		data["metadata"] = d.Metadata
	}
	return data
}

// =============================================================================
// Reasoning Types
// =============================================================================

// ReasoningStep is one step of model or pipeline reasoning surfaced to the
// client. Internal bookkeeping steps are suppressed by the stream filter.
type ReasoningStep struct {
	StepDescription string         `json:"step_description"`
	Details         map[string]any `json:"details,omitempty"`
}

// IntentResult is the outcome of intent classification for a query.
//
// # Fields
//
//   - Intent: One of "qna", "send_mattermost_minutes", "visualize",
//     "unsupported", or "unknown".
//   - Entities: Extracted entities (document_name, target_user_or_channel).
//   - ReasoningSteps: Steps taken to reach the decision, in order.
type IntentResult struct {
	Intent         string          `json:"intent"`
	Entities       map[string]any  `json:"entities"`
	ReasoningSteps []ReasoningStep `json:"reasoning_steps,omitempty"`
}
