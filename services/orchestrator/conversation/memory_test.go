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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// TestMemoryStore_AppendAndRecent verifies basic append/read round trips.
func TestMemoryStore_AppendAndRecent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Entry{Role: "user", Content: "hello"}))
	require.NoError(t, store.Append(ctx, "s1", Entry{Role: "assistant", Content: "hi there"}))

	entries, err := store.Recent(ctx, "s1", DefaultRecentTurns)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "hello", entries[0].Content)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, "hi there", entries[1].Content)
}

// TestMemoryStore_AppendRejectsBlank verifies blank content never enters
// the history.
func TestMemoryStore_AppendRejectsBlank(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Append(ctx, "s1", Entry{Role: "user", Content: ""}), ErrBlankContent)
	assert.ErrorIs(t, store.Append(ctx, "s1", Entry{Role: "user", Content: "   \n\t"}), ErrBlankContent)
	assert.ErrorIs(t, store.Append(ctx, "", Entry{Role: "user", Content: "x"}), ErrBlankSession)

	entries, err := store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestMemoryStore_RecentWindow verifies the window returns the last k
// entries in chronological order.
func TestMemoryStore_RecentWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, store.Append(ctx, "s1", Entry{Role: "user", Content: text}))
	}

	entries, err := store.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Content)
	assert.Equal(t, "four", entries[1].Content)
}

// TestMemoryStore_UnknownSession verifies reads of unknown sessions are
// empty, not errors.
func TestMemoryStore_UnknownSession(t *testing.T) {
	store := NewMemoryStore()

	entries, err := store.Recent(context.Background(), "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestMemoryStore_MeetingContext verifies context set/get/remove.
func TestMemoryStore_MeetingContext(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mc := &datatypes.MeetingContext{
		Title:            "Q3 Planning",
		ParticipantNames: []string{"Alice, Bob, Carol"},
		MinutesURL:       "https://hub.example.com/minutes/42",
	}
	require.NoError(t, store.SetMeetingContext(ctx, "s1", mc))

	got, err := store.MeetingContext(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Q3 Planning", got.Title)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, got.SplitParticipants())

	removed, err := store.RemoveMeetingContext(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	got, err = store.MeetingContext(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	removed, err = store.RemoveMeetingContext(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}

// TestMemoryStore_NilMeetingContextNoop verifies a nil context is ignored.
func TestMemoryStore_NilMeetingContextNoop(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetMeetingContext(ctx, "s1", nil))
	got, err := store.MeetingContext(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestMemoryStore_Clear verifies history and context go together.
func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Entry{Role: "user", Content: "hello"}))
	require.NoError(t, store.SetMeetingContext(ctx, "s1", &datatypes.MeetingContext{Title: "T"}))
	require.NoError(t, store.Clear(ctx, "s1"))

	entries, err := store.Recent(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
	mc, err := store.MeetingContext(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, mc)
}

// TestMemoryStore_AppendAfterClose verifies a late write during shutdown
// is accepted, not a panic.
func TestMemoryStore_AppendAfterClose(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Entry{Role: "user", Content: "hello"}))
	require.NoError(t, store.Close())

	entries, err := store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NotPanics(t, func() {
		assert.NoError(t, store.Append(ctx, "s1", Entry{Role: "user", Content: "late"}))
	})
}

// TestMemoryStore_SessionsIdleSince verifies idle detection for the sweeper.
func TestMemoryStore_SessionsIdleSince(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "old", Entry{Role: "user", Content: "x"}))
	cutoff := time.Now().Add(time.Second)

	idle := store.SessionsIdleSince(cutoff)
	assert.Contains(t, idle, "old")
	assert.Empty(t, store.SessionsIdleSince(time.Now().Add(-time.Hour)))
}
