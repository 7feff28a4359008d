// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation stores per-session chat history and meeting context.
//
// Two drivers implement the Store interface: an in-memory map for single
// node deployments and a Redis driver for deployments where the
// orchestrator is scaled out or restarted frequently.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// DefaultRecentTurns is the history window used when prompting workflows.
const DefaultRecentTurns = 10

var (
	// ErrBlankContent is returned when an entry with empty or
	// whitespace-only content is appended.
	ErrBlankContent = errors.New("conversation: entry content is blank")

	// ErrBlankSession is returned for operations with an empty session ID.
	ErrBlankSession = errors.New("conversation: session id is blank")
)

// Entry is one turn of a conversation.
//
// # Fields
//
//   - Role: "user", "assistant", or "system".
//   - Content: The turn text. Never blank for stored entries.
//   - Timestamp: When the entry was appended, set by the store.
//   - Metadata: Free-form extras (message id, source workflow).
type Entry struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AsMessage converts the entry to LLM chat format.
func (e Entry) AsMessage() datatypes.Message {
	return datatypes.Message{Role: e.Role, Content: e.Content}
}

// Store is the per-session conversation and meeting-context store.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the streaming handler
// appends from request goroutines while the TTL sweeper reads timestamps.
type Store interface {
	// Append adds an entry to a session's history. The store sets the
	// entry timestamp. Returns ErrBlankContent for blank content and
	// ErrBlankSession for an empty session ID.
	Append(ctx context.Context, sessionID string, entry Entry) error

	// Recent returns the last k entries for a session in chronological
	// order. A session with no history yields an empty slice, not an error.
	Recent(ctx context.Context, sessionID string, k int) ([]Entry, error)

	// Clear removes a session's history and meeting context.
	Clear(ctx context.Context, sessionID string) error

	// SetMeetingContext attaches meeting metadata to a session.
	// A nil context is a no-op.
	SetMeetingContext(ctx context.Context, sessionID string, mc *datatypes.MeetingContext) error

	// MeetingContext returns the meeting metadata for a session, or nil
	// when none is set.
	MeetingContext(ctx context.Context, sessionID string) (*datatypes.MeetingContext, error)

	// RemoveMeetingContext detaches meeting metadata from a session.
	// Reports whether anything was removed.
	RemoveMeetingContext(ctx context.Context, sessionID string) (bool, error)

	// Close releases driver resources.
	Close() error
}

// validateAppend applies the shared append preconditions.
func validateAppend(sessionID string, entry Entry) error {
	if sessionID == "" {
		return ErrBlankSession
	}
	if strings.TrimSpace(entry.Content) == "" {
		return ErrBlankContent
	}
	return nil
}
