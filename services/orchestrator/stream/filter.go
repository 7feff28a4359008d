// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"strings"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// DefaultApology is delivered when a stream finishes without any content.
const DefaultApology = "Sorry, I was unable to generate a response. Please try again."

// Sink receives filtered envelopes, typically an SSE writer.
type Sink interface {
	Send(env datatypes.Envelope) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(env datatypes.Envelope) error

// Send implements Sink.
func (f SinkFunc) Send(env datatypes.Envelope) error { return f(env) }

// =============================================================================
// Suppression Policy
// =============================================================================

// SuppressionPolicy decides which reasoning steps are internal bookkeeping
// that must never reach the client.
type SuppressionPolicy struct {
	suppressed map[string]struct{}
}

// DefaultSuppressedSteps lists the step descriptions produced by intent
// classification plumbing. They describe prompt preparation and response
// parsing, not anything the user asked about.
func DefaultSuppressedSteps() []string {
	return []string{
		"Intent classification and entity extraction prompt prepared",
		"LLM raw response for intent/entity",
		"LLM response parsed successfully",
		"LLM response JSON parsing error",
		"LLM call error",
		"Keyword-based intent classification",
	}
}

// NewSuppressionPolicy builds a policy from exact step descriptions.
func NewSuppressionPolicy(descriptions []string) SuppressionPolicy {
	set := make(map[string]struct{}, len(descriptions))
	for _, d := range descriptions {
		set[d] = struct{}{}
	}
	return SuppressionPolicy{suppressed: set}
}

// DefaultSuppressionPolicy returns the built-in policy.
func DefaultSuppressionPolicy() SuppressionPolicy {
	return NewSuppressionPolicy(DefaultSuppressedSteps())
}

// Suppressed reports whether a reasoning step description is filtered out.
func (p SuppressionPolicy) Suppressed(stepDescription string) bool {
	_, ok := p.suppressed[stepDescription]
	return ok
}

// =============================================================================
// Filter
// =============================================================================

// Filter enforces the delivery invariants between workflows and the wire.
//
// # Description
//
// Filter sits in front of a Sink and guarantees, whatever the upstream
// emits:
//
//   - exactly one end envelope per stream (duplicates dropped, missing one
//     synthesized by Finalize)
//   - an error envelope is followed by end, and nothing after
//   - content envelopes with empty or whitespace-only text are dropped
//   - oversized content carrying both sentinel markers is dropped as a
//     duplicate answer dump
//   - reasoning steps matching the suppression policy are dropped
//   - a stream that delivered no content gets DefaultApology before end
//   - relative order of everything delivered matches emission order
//
// Filtering is idempotent: running a filter's output through a fresh filter
// delivers it unchanged.
//
// Not safe for concurrent use; one filter serves one stream.
type Filter struct {
	sink             Sink
	policy           SuppressionPolicy
	sessionID        string
	contentDelivered bool
	errored          bool
	ended            bool
}

// NewFilter creates a filter for one request stream.
func NewFilter(sink Sink, policy SuppressionPolicy, sessionID string) *Filter {
	if sink == nil {
		panic("stream.NewFilter: sink must not be nil")
	}
	return &Filter{sink: sink, policy: policy, sessionID: sessionID}
}

// Send filters one envelope through to the sink.
//
// Returns the first sink error; after a sink error the filter keeps its
// state so Finalize stays cheap, but callers should stop sending.
func (f *Filter) Send(env datatypes.Envelope) error {
	if f.ended {
		return nil
	}
	if env.SessionID == "" {
		env.SessionID = f.sessionID
	}

	switch env.Type {
	case datatypes.KindEnd:
		return f.closeStream()

	case datatypes.KindError:
		if f.errored {
			// One error is enough; the stream is already doomed.
			return f.closeStream()
		}
		f.errored = true
		if err := f.sink.Send(env); err != nil {
			return err
		}
		return f.closeStream()

	case datatypes.KindContent:
		if strings.TrimSpace(env.Content) == "" {
			return nil
		}
		if isDuplicateAnswerDump(env.Content) {
			return nil
		}
		f.contentDelivered = true
		return f.sink.Send(env)

	case datatypes.KindReasoningStep:
		if f.policy.Suppressed(env.ReasoningStepDescription()) {
			return nil
		}
		return f.sink.Send(env)

	default:
		return f.sink.Send(env)
	}
}

// Finalize closes the stream if the upstream never sent end.
//
// Safe to call multiple times and safe to defer alongside an explicit end.
func (f *Filter) Finalize() error {
	if f.ended {
		return nil
	}
	return f.closeStream()
}

// Ended reports whether the end envelope has been delivered.
func (f *Filter) Ended() bool { return f.ended }

// duplicateDumpMinLength guards the dump heuristic: short content that
// merely quotes the markers is still delivered.
const duplicateDumpMinLength = 200

// isDuplicateAnswerDump reports whether content looks like the upstream
// echoing the whole reasoning-plus-answer pair again after streaming it.
// Streamed tokens have their markers consumed by the sentinel parser, so
// marker pairs only survive in full-response dumps.
func isDuplicateAnswerDump(text string) bool {
	if len(text) < duplicateDumpMinLength {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, thinkOpen) &&
		(strings.Contains(lower, thinkClose) || strings.Contains(lower, answerClose))
}

// closeStream emits the apology when owed, then the single end envelope.
func (f *Filter) closeStream() error {
	if f.ended {
		return nil
	}
	f.ended = true
	if !f.contentDelivered && !f.errored {
		apology := datatypes.ContentEnvelope(f.sessionID, DefaultApology)
		if err := f.sink.Send(apology); err != nil {
			return err
		}
		f.contentDelivered = true
	}
	return f.sink.Send(datatypes.EndEnvelope(f.sessionID))
}
