package llm

import (
	"context"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// GenerationParams holds optional sampling parameters for a generation call.
// Nil fields fall back to backend defaults.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	TopK        *int
	MaxTokens   *int
	Stop        []string
}

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken is a chunk of answer text.
	StreamEventToken StreamEventType = "token"

	// StreamEventThinking is a chunk of model reasoning text.
	StreamEventThinking StreamEventType = "thinking"

	// StreamEventError reports a mid-stream failure. The stream ends after it.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a single event from a streaming generation.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives stream events in order. Returning a non-nil error
// aborts the stream.
type StreamCallback func(event StreamEvent) error

// LLMClient is the interface all LLM backends implement.
//
// Implementations must be safe for concurrent use and must respect context
// cancellation on every call.
type LLMClient interface {
	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat produces a completion for a message history.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)

	// ChatStream streams a completion for a message history, invoking the
	// callback for each event. Returns after the stream is drained or the
	// callback aborts.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams,
		callback StreamCallback) error
}
