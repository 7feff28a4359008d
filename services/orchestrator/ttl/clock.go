// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl expires idle conversation sessions held in process memory.
//
// Redis-backed session stores expire keys natively, so the sweeper here
// only runs against the in-memory store.
package ttl

import "time"

// Clock abstracts time.Now for deterministic sweeper tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// systemClock reads the real system time.
type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock {
	return systemClock{}
}

// Now implements Clock.
func (systemClock) Now() time.Time {
	return time.Now()
}

var _ Clock = systemClock{}
