// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Interfaces
// =============================================================================

// IdleSessionStore is the slice of the conversation store the sweeper needs.
//
// # Description
//
// Lists sessions whose last activity predates a cutoff and clears them.
// The in-memory conversation store satisfies this; Redis-backed stores
// expire keys natively and never go through the sweeper.
type IdleSessionStore interface {
	// SessionsIdleSince returns the IDs of sessions untouched since cutoff.
	SessionsIdleSince(cutoff time.Time) []string

	// Clear removes a session's history and meeting context.
	Clear(ctx context.Context, sessionID string) error
}

// SessionSweeper periodically expires idle in-memory sessions.
//
// # Thread Safety
//
// Safe for concurrent use. Start may be called once until Stop completes.
type SessionSweeper interface {
	// Start begins the background sweep loop.
	Start(ctx context.Context) error

	// Stop signals the loop to exit. Safe to call multiple times.
	Stop() error

	// RunNow performs one sweep immediately and returns its result.
	RunNow(ctx context.Context) (SweepResult, error)
}

// =============================================================================
// Configuration
// =============================================================================

// SweeperConfig controls sweep cadence and the idle threshold.
//
// # Fields
//
//   - Interval: How often the background loop sweeps.
//   - IdleTimeout: Sessions untouched for this long are cleared.
type SweeperConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
}

// DefaultSweeperConfig returns production defaults: sweep every 15 minutes,
// expire sessions idle for over 24 hours.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    15 * time.Minute,
		IdleTimeout: 24 * time.Hour,
	}
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	// SessionsCleared is how many idle sessions were removed.
	SessionsCleared int

	// Errors is how many Clear calls failed.
	Errors int

	// Duration is how long the sweep took.
	Duration time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// sessionSweeper implements SessionSweeper with a ticker and done channel.
type sessionSweeper struct {
	store  IdleSessionStore
	clock  Clock
	config SweeperConfig

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewSessionSweeper creates a sweeper over the given store.
//
// # Inputs
//
//   - store: Idle-session view of the conversation store. Must not be nil.
//   - clock: Time source. Nil uses the system clock.
//   - config: Sweep cadence. Zero fields take defaults.
func NewSessionSweeper(store IdleSessionStore, clock Clock, config SweeperConfig) SessionSweeper {
	if store == nil {
		panic("ttl: store is required")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	return &sessionSweeper{
		store:  store,
		clock:  clock,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *sessionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Session sweeper starting",
		"interval", s.config.Interval.String(),
		"idle_timeout", s.config.IdleTimeout.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit.
func (s *sessionSweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	slog.Info("Session sweeper stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow performs a single sweep cycle.
func (s *sessionSweeper) RunNow(ctx context.Context) (SweepResult, error) {
	start := s.clock.Now()
	cutoff := start.Add(-s.config.IdleTimeout)

	var result SweepResult
	for _, sessionID := range s.store.SessionsIdleSince(cutoff) {
		if err := s.store.Clear(ctx, sessionID); err != nil {
			slog.Warn("Failed to clear idle session",
				"session_id", sessionID,
				"error", err)
			result.Errors++
			continue
		}
		result.SessionsCleared++
	}
	result.Duration = s.clock.Now().Sub(start)

	if result.SessionsCleared > 0 || result.Errors > 0 {
		slog.Info("Session sweep complete",
			"cleared", result.SessionsCleared,
			"errors", result.Errors,
			"duration", result.Duration.String(),
		)
	}
	return result, nil
}

// runLoop ticks until Stop or context cancellation.
func (s *sessionSweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunNow(ctx); err != nil {
				slog.Warn("Session sweep failed", "error", err)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ SessionSweeper = (*sessionSweeper)(nil)
