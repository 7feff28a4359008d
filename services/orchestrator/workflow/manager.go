// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow routes classified chat requests to their handlers.
//
// The Manager owns one request's lifecycle: it opens the stream, classifies
// the query, dispatches to the matching workflow (Q&A, minutes distribution,
// visualization), and guarantees the stream is closed whatever happens,
// including a workflow panic.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/meethub/services/llm"
	"github.com/AleutianAI/meethub/services/orchestrator/conversation"
	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("meethub.orchestrator.workflow")

// unsupportedReply is shown for requests outside the system's scope.
const unsupportedReply = "I'm sorry, I can't help with that. I can answer questions about your meetings and documents, send meeting minutes via Mattermost, or visualize meeting data."

// Deps are the collaborators a Manager dispatches to.
//
// # Fields
//
//   - Store: Conversation history and meeting context. Required.
//   - Searcher: Document retrieval backend. Required for Q&A.
//   - Distributor: Minutes delivery backend. Nil disables the minutes
//     workflow with a clean error to the client.
//   - LLM: Chat model used for answers and visualization specs. Required.
//   - Classifier: Intent classifier. Required.
type Deps struct {
	Store       conversation.Store
	Searcher    services.DocumentSearcher
	Distributor services.MinutesDistributor
	LLM         llm.LLMClient
	Classifier  *llm.IntentClassifier
}

// Manager runs one chat request through classification and dispatch.
//
// # Thread Safety
//
// A Manager is stateless; one instance serves all requests concurrently.
type Manager struct {
	deps Deps
}

// NewManager creates a workflow manager. Panics when a required
// dependency is nil.
func NewManager(deps Deps) *Manager {
	if deps.Store == nil {
		panic("workflow.NewManager: Store must not be nil")
	}
	if deps.LLM == nil {
		panic("workflow.NewManager: LLM must not be nil")
	}
	if deps.Classifier == nil {
		panic("workflow.NewManager: Classifier must not be nil")
	}
	return &Manager{deps: deps}
}

// Run executes the full lifecycle for one request.
//
// The request must already be validated and carry a session ID. Envelopes
// go through out, which enforces the delivery invariants; Run always
// finalizes the stream, so callers never see a stream without an end.
func (m *Manager) Run(ctx context.Context, req *datatypes.ChatStreamRequest, out *stream.Filter) {
	ctx, span := tracer.Start(ctx, "Manager.Run")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Workflow panic recovered", "panic", r, "session_id", req.SessionID)
			_ = out.Send(datatypes.ErrorEnvelope(req.SessionID,
				"An internal error occurred while processing your request.", ""))
		}
		if err := out.Finalize(); err != nil {
			slog.Warn("Stream finalize failed", "error", err, "session_id", req.SessionID)
		}
	}()

	if err := out.Send(datatypes.StartEnvelope(req.SessionID)); err != nil {
		slog.Warn("Client gone before stream start", "error", err, "session_id", req.SessionID)
		return
	}

	if req.MeetingContext != nil {
		if err := m.deps.Store.SetMeetingContext(ctx, req.SessionID, req.MeetingContext); err != nil {
			slog.Warn("Failed to persist meeting context", "error", err, "session_id", req.SessionID)
		}
	}

	if err := m.deps.Store.Append(ctx, req.SessionID, conversation.Entry{
		Role:    "user",
		Content: req.Query,
	}); err != nil {
		// History is best effort; the request itself proceeds.
		slog.Warn("Failed to append user turn", "error", err, "session_id", req.SessionID)
	}

	intent := m.deps.Classifier.Classify(ctx, req.Query)
	span.SetAttributes(attribute.String("chat.intent", intent.Intent))
	slog.Info("Intent classified", "intent", intent.Intent, "session_id", req.SessionID)

	if err := out.Send(datatypes.IntentClassifiedEnvelope(req.SessionID, intent.Intent, intent.Entities)); err != nil {
		return
	}
	for _, step := range intent.ReasoningSteps {
		if err := out.Send(datatypes.ReasoningStepEnvelope(req.SessionID, step)); err != nil {
			return
		}
	}

	var err error
	switch intent.Intent {
	case llm.IntentSendMinutes:
		err = m.runMinutes(ctx, req, out)
	case llm.IntentVisualize:
		err = m.runVisualize(ctx, req, out)
	case llm.IntentUnsupported:
		err = out.Send(datatypes.ContentEnvelope(req.SessionID, unsupportedReply))
	default:
		// Unknown routes to Q&A; answering is the safest fallback.
		err = m.runQnA(ctx, req, out)
	}
	if err != nil && !out.Ended() {
		slog.Error("Workflow failed", "intent", intent.Intent, "error", err, "session_id", req.SessionID)
		_ = out.Send(datatypes.ErrorEnvelope(req.SessionID,
			"An error occurred while processing your request.", ""))
	}
}

// recordAssistantTurn appends the assistant's reply to history, skipping
// blanks so a failed generation never pollutes the window.
func (m *Manager) recordAssistantTurn(ctx context.Context, sessionID, reply string) {
	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := m.deps.Store.Append(ctx, sessionID, conversation.Entry{
		Role:    "assistant",
		Content: reply,
	}); err != nil {
		slog.Warn("Failed to append assistant turn", "error", err, "session_id", sessionID)
	}
}

// meetingContextFor resolves the request's meeting context, falling back
// to the one stored on the session.
func (m *Manager) meetingContextFor(ctx context.Context, req *datatypes.ChatStreamRequest) (*datatypes.MeetingContext, error) {
	if req.MeetingContext != nil {
		return req.MeetingContext, nil
	}
	mc, err := m.deps.Store.MeetingContext(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting context: %w", err)
	}
	return mc, nil
}
