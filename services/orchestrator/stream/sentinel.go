// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream implements the streaming aggregation pipeline: the event
// normalizer, the incremental sentinel parser, and the stream filter that
// enforces the delivery invariants (exactly one end, error-implies-end,
// no blank content, reasoning-step suppression).
package stream

import "strings"

// Sentinel markers used by local models to delimit reasoning text.
//
// Models emit reasoning wrapped in <think>...</think>; some templates close
// the block with an "answer:" marker instead. Matching is case-insensitive
// ("Answer:" and "<Think>" count). Markers may be split across arbitrary
// chunk boundaries, so the parser holds back any buffer suffix that could
// still become a marker.
const (
	thinkOpen   = "<think>"
	thinkClose  = "</think>"
	answerClose = "answer:"
)

// EmissionKind discriminates parser output.
type EmissionKind int

const (
	// EmissionContent is answer text for the client.
	EmissionContent EmissionKind = iota

	// EmissionThinking is a completed block of model reasoning.
	EmissionThinking
)

// Emission is one unit of parser output, in input order.
type Emission struct {
	Kind EmissionKind
	Text string
}

// sentinelState is the parser state.
type sentinelState int

const (
	stateIdle sentinelState = iota
	stateInThinking
)

// SentinelParser incrementally splits a token stream into answer text and
// reasoning blocks.
//
// # Description
//
// Feed accepts chunks of any size and returns completed emissions; Flush
// drains whatever remains at end of stream. The parser never loses text:
// everything fed in comes back out as either content or thinking, minus
// the sentinel markers themselves.
//
// Not safe for concurrent use; one parser serves one stream.
type SentinelParser struct {
	state    sentinelState
	buf      strings.Builder
	thinking strings.Builder
}

// NewSentinelParser returns a parser in the idle state.
func NewSentinelParser() *SentinelParser {
	return &SentinelParser{}
}

// Feed consumes the next chunk and returns any completed emissions.
func (p *SentinelParser) Feed(chunk string) []Emission {
	if chunk == "" {
		return nil
	}
	p.buf.WriteString(chunk)

	var out []Emission
	for p.step(&out) {
	}
	return out
}

// step makes one parsing transition over the buffer. Returns whether the
// caller should loop again (a marker was consumed and more input remains).
func (p *SentinelParser) step(out *[]Emission) bool {
	data := p.buf.String()
	if data == "" {
		return false
	}

	// Marker searches run over an ASCII-folded copy; the fold is
	// byte-length preserving, so indices apply to the original text.
	folded := foldASCII(data)

	switch p.state {
	case stateIdle:
		if idx := strings.Index(folded, thinkOpen); idx >= 0 {
			if idx > 0 {
				*out = append(*out, Emission{Kind: EmissionContent, Text: data[:idx]})
			}
			p.buf.Reset()
			p.buf.WriteString(data[idx+len(thinkOpen):])
			p.state = stateInThinking
			return true
		}
		// Emit everything except a suffix that could still open a block.
		hold := partialSuffix(folded, thinkOpen)
		if emit := data[:len(data)-hold]; emit != "" {
			*out = append(*out, Emission{Kind: EmissionContent, Text: emit})
			p.buf.Reset()
			p.buf.WriteString(data[len(data)-hold:])
		}
		return false

	case stateInThinking:
		closeIdx, closeLen := firstMarker(folded, thinkClose, answerClose)
		if closeIdx >= 0 {
			p.thinking.WriteString(data[:closeIdx])
			*out = append(*out, Emission{Kind: EmissionThinking, Text: p.thinking.String()})
			p.thinking.Reset()
			p.buf.Reset()
			p.buf.WriteString(data[closeIdx+closeLen:])
			p.state = stateIdle
			return true
		}
		hold := partialSuffix(folded, thinkClose)
		if h := partialSuffix(folded, answerClose); h > hold {
			hold = h
		}
		if absorbed := data[:len(data)-hold]; absorbed != "" {
			p.thinking.WriteString(absorbed)
			p.buf.Reset()
			p.buf.WriteString(data[len(data)-hold:])
		}
		return false
	}
	return false
}

// Flush drains the parser at end of stream.
//
// Buffered thinking becomes a thinking emission even without a close marker;
// buffered idle text becomes content.
func (p *SentinelParser) Flush() []Emission {
	var out []Emission
	rest := p.buf.String()
	p.buf.Reset()

	switch p.state {
	case stateInThinking:
		p.thinking.WriteString(rest)
		if text := p.thinking.String(); text != "" {
			out = append(out, Emission{Kind: EmissionThinking, Text: text})
		}
		p.thinking.Reset()
	default:
		if rest != "" {
			out = append(out, Emission{Kind: EmissionContent, Text: rest})
		}
	}
	p.state = stateIdle
	return out
}

// firstMarker returns the index and length of the earliest of the given
// markers in s, or (-1, 0) if none occur.
func firstMarker(s string, markers ...string) (int, int) {
	idx, length := -1, 0
	for _, m := range markers {
		if i := strings.Index(s, m); i >= 0 && (idx < 0 || i < idx) {
			idx, length = i, len(m)
		}
	}
	return idx, length
}

// foldASCII lowercases A-Z bytes only. Unlike strings.ToLower it never
// changes byte length, so marker indices found in the folded string are
// valid in the original.
func foldASCII(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			break
		}
	}
	if i == len(s) {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// partialSuffix returns the length of the longest proper suffix of s that is
// a prefix of marker. That suffix must be held back because the next chunk
// may complete the marker.
func partialSuffix(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}
