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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes for conversation data
	historyKeyPrefix = "chat:history:"
	meetingKeyPrefix = "chat:meeting:"

	// Default TTL for session keys (24 hours)
	defaultSessionTTL = 24 * time.Hour
)

// RedisStore implements Store on a Redis list per session.
//
// Entries are stored as JSON in an RPUSH list; meeting contexts as JSON
// strings. Every write refreshes the session TTL so active conversations
// survive and idle ones expire server-side, which makes the TTL sweeper
// unnecessary with this driver.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed conversation store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	if err := validateAppend(sessionID, entry); err != nil {
		return err
	}
	entry.Timestamp = time.Now()
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	key := historyKeyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, val)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent implements Store.
func (s *RedisStore) Recent(ctx context.Context, sessionID string, k int) ([]Entry, error) {
	if sessionID == "" {
		return nil, ErrBlankSession
	}
	key := historyKeyPrefix + sessionID

	start := int64(0)
	if k > 0 {
		start = int64(-k)
	}
	vals, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			// Skip a corrupt record rather than failing the whole read.
			continue
		}
		entries = append(entries, e)
	}

	// Refresh TTL on read
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return entries, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrBlankSession
	}
	return s.client.Del(ctx, historyKeyPrefix+sessionID, meetingKeyPrefix+sessionID).Err()
}

// SetMeetingContext implements Store.
func (s *RedisStore) SetMeetingContext(ctx context.Context, sessionID string, mc *datatypes.MeetingContext) error {
	if sessionID == "" {
		return ErrBlankSession
	}
	if mc == nil {
		return nil
	}
	val, err := json.Marshal(mc)
	if err != nil {
		return fmt.Errorf("marshal meeting context: %w", err)
	}
	return s.client.Set(ctx, meetingKeyPrefix+sessionID, val, s.ttl).Err()
}

// MeetingContext implements Store.
func (s *RedisStore) MeetingContext(ctx context.Context, sessionID string) (*datatypes.MeetingContext, error) {
	if sessionID == "" {
		return nil, ErrBlankSession
	}
	val, err := s.client.Get(ctx, meetingKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not set
	}
	if err != nil {
		return nil, err
	}
	var mc datatypes.MeetingContext
	if err := json.Unmarshal([]byte(val), &mc); err != nil {
		return nil, fmt.Errorf("unmarshal meeting context: %w", err)
	}
	return &mc, nil
}

// RemoveMeetingContext implements Store.
func (s *RedisStore) RemoveMeetingContext(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, ErrBlankSession
	}
	n, err := s.client.Del(ctx, meetingKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)
