// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMattermost simulates the subset of the v4 REST API the client uses.
type fakeMattermost struct {
	users map[string]string // username -> user id
	posts []string          // messages posted
}

func (f *fakeMattermost) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v4/users/username/"):
			username := strings.TrimPrefix(r.URL.Path, "/api/v4/users/username/")
			if id, ok := f.users[username]; ok {
				_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
			} else {
				http.Error(w, `{"message": "not found"}`, http.StatusNotFound)
			}
		case r.URL.Path == "/api/v4/users/search":
			_ = json.NewEncoder(w).Encode([]map[string]string{})
		case r.URL.Path == "/api/v4/channels/direct":
			var members []string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&members))
			require.Len(t, members, 2)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "dm-" + members[1]})
		case r.URL.Path == "/api/v4/posts":
			var post struct {
				ChannelID string `json:"channel_id"`
				Message   string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&post))
			f.posts = append(f.posts, post.Message)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "post-1"})
		default:
			http.NotFound(w, r)
		}
	}
}

// newTestMattermostClient wires a client to the fake server.
func newTestMattermostClient(t *testing.T, fake *fakeMattermost) *MattermostClient {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	t.Setenv("MATTERMOST_URL", server.URL)
	t.Setenv("MATTERMOST_TOKEN", "test-token")
	t.Setenv("MATTERMOST_BOT_USER_ID", "bot-1")
	client, err := NewMattermostClient()
	require.NoError(t, err)
	return client
}

// TestMattermostClient_DistributeMixedOutcomes verifies partial failure
// reporting: known users get the message, unknown ones are flagged.
func TestMattermostClient_DistributeMixedOutcomes(t *testing.T) {
	fake := &fakeMattermost{users: map[string]string{
		"alice.smith": "u-alice",
		"bob":         "u-bob",
	}}
	client := newTestMattermostClient(t, fake)

	deliveries, err := client.Distribute(context.Background(),
		[]string{"Alice Smith", "Bob", "Mallory"},
		"Q3 Planning", "https://hub.example.com/minutes/42")
	require.NoError(t, err)
	require.Len(t, deliveries, 3)

	assert.Equal(t, DeliverySent, deliveries[0].Status)
	assert.Equal(t, "Alice Smith", deliveries[0].Participant)
	assert.Equal(t, DeliverySent, deliveries[1].Status)
	assert.Equal(t, DeliveryUserNotFound, deliveries[2].Status)

	require.Len(t, fake.posts, 2)
	assert.Contains(t, fake.posts[0], "Q3 Planning")
	assert.Contains(t, fake.posts[0], "https://hub.example.com/minutes/42")

	sent, failed := CountDeliveries(deliveries)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
}

// TestMattermostClient_MissingConfig verifies fail-fast construction.
func TestMattermostClient_MissingConfig(t *testing.T) {
	t.Setenv("MATTERMOST_URL", "")
	t.Setenv("MATTERMOST_TOKEN", "x")
	t.Setenv("MATTERMOST_BOT_USER_ID", "bot-1")
	_, err := NewMattermostClient()
	require.Error(t, err)
}

// TestFormatMinutesMessage verifies the fallback title.
func TestFormatMinutesMessage(t *testing.T) {
	msg := formatMinutesMessage("", "https://x")
	assert.Contains(t, msg, "your recent meeting")
	assert.Contains(t, msg, "https://x")
}
