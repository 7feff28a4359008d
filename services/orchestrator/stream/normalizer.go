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
	"log/slog"

	"github.com/AleutianAI/meethub/services/llm"
	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// thinkingStepDescription labels reasoning blocks surfaced from a model's
// sentinel-delimited thinking.
const thinkingStepDescription = "Model's thinking process"

// Normalizer converts raw LLM stream events into envelopes.
//
// # Description
//
// Token events pass through the sentinel parser: answer text becomes content
// envelopes, completed thinking blocks become reasoning-step envelopes.
// Native thinking events (backends that separate reasoning server-side) are
// accumulated and surfaced the same way. Error events become error envelopes
// with the message as given; sanitization is the caller's responsibility.
//
// Not safe for concurrent use; one normalizer serves one stream.
type Normalizer struct {
	sessionID string
	parser    *SentinelParser
	native    []string
}

// NewNormalizer creates a normalizer for one request stream.
func NewNormalizer(sessionID string) *Normalizer {
	return &Normalizer{
		sessionID: sessionID,
		parser:    NewSentinelParser(),
	}
}

// HandleEvent normalizes one upstream event into zero or more envelopes.
func (n *Normalizer) HandleEvent(event llm.StreamEvent) []datatypes.Envelope {
	switch event.Type {
	case llm.StreamEventToken:
		return n.emissionsToEnvelopes(n.parser.Feed(event.Content))
	case llm.StreamEventThinking:
		if event.Content != "" {
			n.native = append(n.native, event.Content)
		}
		return nil
	case llm.StreamEventError:
		msg := event.Error
		if msg == "" {
			msg = "stream failed"
		}
		return []datatypes.Envelope{datatypes.ErrorEnvelope(n.sessionID, msg, "")}
	default:
		// A malformed upstream item must not abort the stream. An unknown
		// type with text falls back to plain content; one with nothing
		// usable becomes a warning.
		slog.Warn("Unrecognized stream event type",
			"event_type", event.Type, "session_id", n.sessionID)
		if event.Content != "" {
			return []datatypes.Envelope{datatypes.ContentEnvelope(n.sessionID, event.Content)}
		}
		return []datatypes.Envelope{datatypes.WarningEnvelope(n.sessionID,
			"unrecognized stream event dropped")}
	}
}

// Finish flushes buffered parser and native thinking state at end of stream.
func (n *Normalizer) Finish() []datatypes.Envelope {
	out := n.emissionsToEnvelopes(n.parser.Flush())
	if len(n.native) > 0 {
		joined := ""
		for _, part := range n.native {
			joined += part
		}
		out = append(out, datatypes.ReasoningStepEnvelope(n.sessionID, datatypes.ReasoningStep{
			StepDescription: thinkingStepDescription,
			Details:         map[string]any{"reasoning": joined},
		}))
		n.native = nil
	}
	return out
}

func (n *Normalizer) emissionsToEnvelopes(emissions []Emission) []datatypes.Envelope {
	if len(emissions) == 0 {
		return nil
	}
	out := make([]datatypes.Envelope, 0, len(emissions))
	for _, e := range emissions {
		switch e.Kind {
		case EmissionContent:
			out = append(out, datatypes.ContentEnvelope(n.sessionID, e.Text))
		case EmissionThinking:
			out = append(out, datatypes.ReasoningStepEnvelope(n.sessionID, datatypes.ReasoningStep{
				StepDescription: thinkingStepDescription,
				Details:         map[string]any{"reasoning": e.Text},
			}))
		}
	}
	return out
}
