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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect feeds chunks through a fresh parser and returns all emissions
// including the flush.
func collect(t *testing.T, chunks ...string) []Emission {
	t.Helper()
	p := NewSentinelParser()
	var out []Emission
	for _, c := range chunks {
		out = append(out, p.Feed(c)...)
	}
	return append(out, p.Flush()...)
}

// joinKind concatenates the text of all emissions of one kind.
func joinKind(emissions []Emission, kind EmissionKind) string {
	var b strings.Builder
	for _, e := range emissions {
		if e.Kind == kind {
			b.WriteString(e.Text)
		}
	}
	return b.String()
}

// TestSentinelParser_PlainText verifies text without markers passes through.
func TestSentinelParser_PlainText(t *testing.T) {
	out := collect(t, "Hello, ", "world")

	assert.Equal(t, "Hello, world", joinKind(out, EmissionContent))
	assert.Empty(t, joinKind(out, EmissionThinking))
}

// TestSentinelParser_ThinkBlock verifies a complete think block is split out.
func TestSentinelParser_ThinkBlock(t *testing.T) {
	out := collect(t, "before <think>reasoning here</think> after")

	assert.Equal(t, "before  after", joinKind(out, EmissionContent))
	assert.Equal(t, "reasoning here", joinKind(out, EmissionThinking))
}

// TestSentinelParser_SplitMarkers verifies markers split across chunk
// boundaries are still recognized, at every possible split point.
func TestSentinelParser_SplitMarkers(t *testing.T) {
	full := "intro <think>deep thought</think>answer text"
	for cut := 1; cut < len(full); cut++ {
		out := collect(t, full[:cut], full[cut:])

		assert.Equal(t, "intro answer text", joinKind(out, EmissionContent), "split at %d", cut)
		assert.Equal(t, "deep thought", joinKind(out, EmissionThinking), "split at %d", cut)
	}
}

// TestSentinelParser_AnswerMarker verifies the answer: close marker ends a
// thinking block.
func TestSentinelParser_AnswerMarker(t *testing.T) {
	out := collect(t, "<think>let me see answer:42")

	assert.Equal(t, "42", joinKind(out, EmissionContent))
	assert.Equal(t, "let me see ", joinKind(out, EmissionThinking))
}

// TestSentinelParser_UnclosedThink verifies an unterminated think block is
// flushed as thinking, not lost.
func TestSentinelParser_UnclosedThink(t *testing.T) {
	out := collect(t, "<think>never closed")

	assert.Empty(t, joinKind(out, EmissionContent))
	assert.Equal(t, "never closed", joinKind(out, EmissionThinking))
}

// TestSentinelParser_MultipleBlocks verifies consecutive think blocks each
// produce their own emission.
func TestSentinelParser_MultipleBlocks(t *testing.T) {
	out := collect(t, "<think>one</think>a<think>two</think>b")

	var thinking []string
	for _, e := range out {
		if e.Kind == EmissionThinking {
			thinking = append(thinking, e.Text)
		}
	}
	require.Len(t, thinking, 2)
	assert.Equal(t, "one", thinking[0])
	assert.Equal(t, "two", thinking[1])
	assert.Equal(t, "ab", joinKind(out, EmissionContent))
}

// TestSentinelParser_FalseAlarmPrefix verifies text that looks like the
// start of a marker but is not gets delivered once disambiguated.
func TestSentinelParser_FalseAlarmPrefix(t *testing.T) {
	out := collect(t, "a < b and <thi", "ngs like that")

	assert.Equal(t, "a < b and <things like that", joinKind(out, EmissionContent))
	assert.Empty(t, joinKind(out, EmissionThinking))
}

// TestSentinelParser_MarkersCaseInsensitive verifies capitalized markers
// open and close blocks the same as lowercase ones.
func TestSentinelParser_MarkersCaseInsensitive(t *testing.T) {
	out := collect(t, "<Think>plan</Think>hello")

	assert.Equal(t, "hello", joinKind(out, EmissionContent))
	assert.Equal(t, "plan", joinKind(out, EmissionThinking))
}

// TestSentinelParser_CapitalizedAnswerMarker verifies "Answer:" ends a
// thinking block, so the answer text is not swallowed as reasoning.
func TestSentinelParser_CapitalizedAnswerMarker(t *testing.T) {
	out := collect(t, "<think>let me reason ", "Answer: 42")

	assert.Equal(t, " 42", joinKind(out, EmissionContent))
	assert.Equal(t, "let me reason ", joinKind(out, EmissionThinking))
}

// TestSentinelParser_EmptyChunks verifies empty chunks are a no-op.
func TestSentinelParser_EmptyChunks(t *testing.T) {
	p := NewSentinelParser()

	assert.Nil(t, p.Feed(""))
	assert.Empty(t, p.Flush())
}
