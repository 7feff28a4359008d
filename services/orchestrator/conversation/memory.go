// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// MemoryStore implements Store with an RWMutex-guarded map.
//
// The default driver for single-node deployments. History grows unbounded
// per session; the TTL sweeper evicts idle sessions via SessionsIdleSince
// and Clear.
type MemoryStore struct {
	mu       sync.RWMutex
	history  map[string][]Entry
	meetings map[string]*datatypes.MeetingContext
	touched  map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history:  make(map[string][]Entry),
		meetings: make(map[string]*datatypes.MeetingContext),
		touched:  make(map[string]time.Time),
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	if err := validateAppend(sessionID, entry); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Timestamp = time.Now()
	s.history[sessionID] = append(s.history[sessionID], entry)
	s.touched[sessionID] = entry.Timestamp
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(ctx context.Context, sessionID string, k int) ([]Entry, error) {
	if sessionID == "" {
		return nil, ErrBlankSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.history[sessionID]
	if k <= 0 || k > len(history) {
		k = len(history)
	}
	out := make([]Entry, k)
	copy(out, history[len(history)-k:])
	return out, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrBlankSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.history, sessionID)
	delete(s.meetings, sessionID)
	delete(s.touched, sessionID)
	return nil
}

// SetMeetingContext implements Store.
func (s *MemoryStore) SetMeetingContext(ctx context.Context, sessionID string, mc *datatypes.MeetingContext) error {
	if sessionID == "" {
		return ErrBlankSession
	}
	if mc == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meetings[sessionID] = mc
	s.touched[sessionID] = time.Now()
	return nil
}

// MeetingContext implements Store.
func (s *MemoryStore) MeetingContext(ctx context.Context, sessionID string) (*datatypes.MeetingContext, error) {
	if sessionID == "" {
		return nil, ErrBlankSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.meetings[sessionID], nil
}

// RemoveMeetingContext implements Store.
func (s *MemoryStore) RemoveMeetingContext(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, ErrBlankSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.meetings[sessionID]
	delete(s.meetings, sessionID)
	return exists, nil
}

// SessionsIdleSince returns the IDs of sessions not touched since the
// cutoff. Used by the TTL sweeper.
func (s *MemoryStore) SessionsIdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for id, last := range s.touched {
		if last.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

// Close implements Store.
//
// Drops all sessions but keeps the maps allocated: a request still in
// flight during shutdown may append after Close, and that must not panic.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = make(map[string][]Entry)
	s.meetings = make(map[string]*datatypes.MeetingContext)
	s.touched = make(map[string]time.Time)
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
