// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meethub/services/llm"
	"github.com/AleutianAI/meethub/services/orchestrator/conversation"
	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeLLM struct {
	generateResponse string
	generateErr      error
	streamEvents     []llm.StreamEvent
	streamErr        error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.generateResponse, f.generateErr
}

func (f *fakeLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	return f.generateResponse, f.generateErr
}

func (f *fakeLLM) ChatStream(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams, callback llm.StreamCallback) error {
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, event := range f.streamEvents {
		if err := callback(event); err != nil {
			return err
		}
	}
	return nil
}

type fakeSearcher struct {
	docs     []datatypes.RetrievedDocument
	err      error
	panicMsg string
	lastOpts services.SearchOptions
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts services.SearchOptions) ([]datatypes.RetrievedDocument, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.lastOpts = opts
	return f.docs, f.err
}

type fakeDistributor struct {
	deliveries []services.Delivery
	err        error
}

func (f *fakeDistributor) Distribute(ctx context.Context, participants []string, title, minutesURL string) ([]services.Delivery, error) {
	return f.deliveries, f.err
}

// capture collects filtered envelopes for assertions.
type capture struct {
	envelopes []datatypes.Envelope
}

func (c *capture) Send(env datatypes.Envelope) error {
	c.envelopes = append(c.envelopes, env)
	return nil
}

func (c *capture) kinds() []datatypes.EnvelopeKind {
	out := make([]datatypes.EnvelopeKind, 0, len(c.envelopes))
	for _, env := range c.envelopes {
		out = append(out, env.Type)
	}
	return out
}

func (c *capture) countKind(kind datatypes.EnvelopeKind) int {
	n := 0
	for _, env := range c.envelopes {
		if env.Type == kind {
			n++
		}
	}
	return n
}

func (c *capture) joinedContent() string {
	var sb strings.Builder
	for _, env := range c.envelopes {
		if env.Type == datatypes.KindContent {
			sb.WriteString(env.Content)
		}
	}
	return sb.String()
}

// runManager builds a manager around the fakes and runs one request.
func runManager(t *testing.T, deps Deps, req *datatypes.ChatStreamRequest) *capture {
	t.Helper()
	if deps.Store == nil {
		deps.Store = conversation.NewMemoryStore()
	}
	if deps.LLM == nil {
		deps.LLM = &fakeLLM{}
	}
	if deps.Classifier == nil {
		deps.Classifier = llm.NewIntentClassifier(nil)
	}

	sink := &capture{}
	filter := stream.NewFilter(sink, stream.DefaultSuppressionPolicy(), req.SessionID)
	NewManager(deps).Run(context.Background(), req, filter)
	return sink
}

// requireStreamShape asserts the universal stream invariants.
func requireStreamShape(t *testing.T, sink *capture) {
	t.Helper()
	require.NotEmpty(t, sink.envelopes)
	assert.Equal(t, datatypes.KindStart, sink.envelopes[0].Type)
	assert.Equal(t, datatypes.KindEnd, sink.envelopes[len(sink.envelopes)-1].Type)
	assert.Equal(t, 1, sink.countKind(datatypes.KindEnd))
}

// =============================================================================
// Q&A
// =============================================================================

// TestManager_QnAStreamsAnswer covers the full Q&A path: retrieval,
// per-document envelopes, streamed answer, history update.
func TestManager_QnAStreamsAnswer(t *testing.T) {
	store := conversation.NewMemoryStore()
	searcher := &fakeSearcher{docs: []datatypes.RetrievedDocument{
		{SourceDocumentID: "doc-1", ContentChunk: "The budget is 40k.", Score: 0.92},
		{SourceDocumentID: "doc-2", ContentChunk: "Lunch menu.", Score: 0.41},
	}}
	model := &fakeLLM{streamEvents: []llm.StreamEvent{
		{Type: llm.StreamEventToken, Content: "The budget "},
		{Type: llm.StreamEventToken, Content: "is 40k."},
	}}

	req := &datatypes.ChatStreamRequest{Query: "What is the budget?", SessionID: "s1"}
	sink := runManager(t, Deps{Store: store, Searcher: searcher, LLM: model}, req)

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindIntentClassified))
	assert.Equal(t, "The budget is 40k.", sink.joinedContent())

	// Only the hit above the relevance threshold is surfaced.
	require.Equal(t, 1, sink.countKind(datatypes.KindRetrievedDocument))
	for _, env := range sink.envelopes {
		if env.Type == datatypes.KindRetrievedDocument {
			assert.Equal(t, "doc-1", env.Data["source_document_id"])
		}
	}

	// Keyword classification bookkeeping is suppressed.
	assert.Equal(t, 0, sink.countKind(datatypes.KindReasoningStep))

	history, err := store.Recent(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "The budget is 40k.", history[1].Content)
}

// TestManager_QnAScopesSearch verifies request scoping reaches the searcher.
func TestManager_QnAScopesSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	req := &datatypes.ChatStreamRequest{
		Query:                        "Summarize the meeting",
		SessionID:                    "s1",
		SearchInMeetingDocumentsOnly: true,
		TargetDocumentIDs:            []string{"doc-9"},
	}
	sink := runManager(t, Deps{Searcher: searcher, LLM: &fakeLLM{streamEvents: []llm.StreamEvent{
		{Type: llm.StreamEventToken, Content: "Summary."},
	}}}, req)

	requireStreamShape(t, sink)
	assert.True(t, searcher.lastOpts.MeetingDocumentsOnly)
	assert.Equal(t, []string{"doc-9"}, searcher.lastOpts.DocumentIDs)
}

// TestManager_QnASearchFailureDegrades verifies retrieval failure still
// produces an answer.
func TestManager_QnASearchFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index down")}
	sink := runManager(t, Deps{Searcher: searcher, LLM: &fakeLLM{streamEvents: []llm.StreamEvent{
		{Type: llm.StreamEventToken, Content: "Answer without documents."},
	}}}, &datatypes.ChatStreamRequest{Query: "Anything new?", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Equal(t, 0, sink.countKind(datatypes.KindError))
	assert.Equal(t, "Answer without documents.", sink.joinedContent())
}

// TestManager_QnAModelFailure verifies a model failure errors the stream
// and still ends it exactly once.
func TestManager_QnAModelFailure(t *testing.T) {
	sink := runManager(t, Deps{LLM: &fakeLLM{streamErr: errors.New("model gone")}},
		&datatypes.ChatStreamRequest{Query: "Hello?", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindError))
}

// TestManager_EmptyStreamGetsApology verifies a model that produces no
// tokens still yields a content envelope.
func TestManager_EmptyStreamGetsApology(t *testing.T) {
	sink := runManager(t, Deps{LLM: &fakeLLM{}},
		&datatypes.ChatStreamRequest{Query: "Hello?", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Equal(t, stream.DefaultApology, sink.joinedContent())
}

// =============================================================================
// Minutes
// =============================================================================

func minutesRequest() *datatypes.ChatStreamRequest {
	return &datatypes.ChatStreamRequest{
		Query:     "Please send the minutes to everyone via mattermost",
		SessionID: "s1",
		MeetingContext: &datatypes.MeetingContext{
			Title:            "Q3 Planning",
			ParticipantNames: []string{"Alice, Bob"},
			MinutesURL:       "https://hub.example.com/minutes/42",
		},
	}
}

// TestManager_MinutesPartialDelivery verifies the partial result shape.
func TestManager_MinutesPartialDelivery(t *testing.T) {
	dist := &fakeDistributor{deliveries: []services.Delivery{
		{Participant: "Alice", Status: services.DeliverySent},
		{Participant: "Bob", Status: services.DeliveryUserNotFound, Detail: "no match"},
	}}
	sink := runManager(t, Deps{Distributor: dist}, minutesRequest())

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindTaskComplete))
	assert.Equal(t, 1, sink.countKind(datatypes.KindInfo))
	assert.Equal(t, 1, sink.countKind(datatypes.KindWarning))

	require.Equal(t, 1, sink.countKind(datatypes.KindResult))
	for _, env := range sink.envelopes {
		if env.Type == datatypes.KindResult {
			assert.Equal(t, "partial", env.Data["status"])
			assert.Equal(t, 1, env.Data["sent"])
			assert.Equal(t, 1, env.Data["failed"])
		}
	}
	assert.Contains(t, sink.joinedContent(), "1 delivery(ies) failed")
}

// TestManager_MinutesWithoutContext verifies the conversational error.
func TestManager_MinutesWithoutContext(t *testing.T) {
	req := minutesRequest()
	req.MeetingContext = nil
	sink := runManager(t, Deps{Distributor: &fakeDistributor{}}, req)

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindError))
	assert.Contains(t, sink.joinedContent(), "couldn't find an active meeting")
}

// TestManager_MinutesContextFromSession verifies the stored meeting
// context is used when the request carries none.
func TestManager_MinutesContextFromSession(t *testing.T) {
	store := conversation.NewMemoryStore()
	require.NoError(t, store.SetMeetingContext(context.Background(), "s1", &datatypes.MeetingContext{
		Title:            "Standup",
		ParticipantNames: []string{"Alice"},
		MinutesURL:       "https://hub.example.com/minutes/7",
	}))
	dist := &fakeDistributor{deliveries: []services.Delivery{
		{Participant: "Alice", Status: services.DeliverySent},
	}}

	req := minutesRequest()
	req.MeetingContext = nil
	sink := runManager(t, Deps{Store: store, Distributor: dist}, req)

	requireStreamShape(t, sink)
	assert.Equal(t, 0, sink.countKind(datatypes.KindError))
	assert.Contains(t, sink.joinedContent(), "all 1 participant(s)")
}

// TestManager_MinutesMissingURL verifies the not-ready message.
func TestManager_MinutesMissingURL(t *testing.T) {
	req := minutesRequest()
	req.MeetingContext.MinutesURL = "  "
	sink := runManager(t, Deps{Distributor: &fakeDistributor{}}, req)

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindError))
	assert.Contains(t, sink.joinedContent(), "aren't ready yet")
}

// TestManager_MinutesNoParticipants verifies the empty-list warning.
func TestManager_MinutesNoParticipants(t *testing.T) {
	req := minutesRequest()
	req.MeetingContext.ParticipantNames = nil
	sink := runManager(t, Deps{Distributor: &fakeDistributor{}}, req)

	requireStreamShape(t, sink)
	assert.Equal(t, 0, sink.countKind(datatypes.KindError))
	assert.Equal(t, 1, sink.countKind(datatypes.KindWarning))
	assert.Contains(t, sink.joinedContent(), "no listed participants")
}

// =============================================================================
// Visualization, unsupported, recovery
// =============================================================================

// TestManager_VisualizeRendersChart covers the spec-to-PNG path.
func TestManager_VisualizeRendersChart(t *testing.T) {
	model := &fakeLLM{generateResponse: "```json\n" +
		`{"chart_type": "pie", "title": "Budget split", "labels": ["Eng", "Ops"], "values": [60, 40]}` +
		"\n```"}
	sink := runManager(t, Deps{LLM: model},
		&datatypes.ChatStreamRequest{Query: "Draw a chart of the budget split", SessionID: "s1"})

	requireStreamShape(t, sink)
	require.Equal(t, 1, sink.countKind(datatypes.KindResult))
	for _, env := range sink.envelopes {
		if env.Type == datatypes.KindResult {
			assert.Equal(t, "pie", env.Data["chart_type"])
			assert.Equal(t, "png", env.Data["image_format"])
			image, _ := env.Data["image_base64"].(string)
			assert.NotEmpty(t, image)
		}
	}
	assert.Contains(t, sink.joinedContent(), "pie chart")
}

// TestManager_VisualizeFallsBack verifies garbage model output produces
// the placeholder chart with a warning, not an error.
func TestManager_VisualizeFallsBack(t *testing.T) {
	model := &fakeLLM{generateResponse: "I cannot answer in JSON, sorry."}
	sink := runManager(t, Deps{LLM: model},
		&datatypes.ChatStreamRequest{Query: "Plot the milestones", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Equal(t, 0, sink.countKind(datatypes.KindError))
	assert.Equal(t, 1, sink.countKind(datatypes.KindWarning))
	assert.Equal(t, 1, sink.countKind(datatypes.KindResult))
}

// TestManager_UnsupportedIntent verifies the scope reply.
func TestManager_UnsupportedIntent(t *testing.T) {
	sink := runManager(t, Deps{},
		&datatypes.ChatStreamRequest{Query: "What's the weather today?", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Contains(t, sink.joinedContent(), "can't help with that")
}

// TestManager_PanicRecovered verifies a workflow panic becomes a clean
// error-then-end sequence.
func TestManager_PanicRecovered(t *testing.T) {
	searcher := &fakeSearcher{panicMsg: "boom"}
	sink := runManager(t, Deps{Searcher: searcher, LLM: &fakeLLM{}},
		&datatypes.ChatStreamRequest{Query: "Hello?", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindError))
}

// panicStore panics on history reads.
type panicStore struct {
	*conversation.MemoryStore
}

func (p *panicStore) Recent(ctx context.Context, sessionID string, k int) ([]conversation.Entry, error) {
	panic("store gone")
}

// TestManager_HistoryPanicRecovered verifies a panicking store also yields
// error-then-end instead of crashing the process.
func TestManager_HistoryPanicRecovered(t *testing.T) {
	store := &panicStore{MemoryStore: conversation.NewMemoryStore()}
	sink := runManager(t, Deps{Store: store, LLM: &fakeLLM{}},
		&datatypes.ChatStreamRequest{Query: "Hello?", SessionID: "s1"})

	requireStreamShape(t, sink)
	assert.Equal(t, 1, sink.countKind(datatypes.KindError))
}

// TestManager_SessionIDStamped verifies every envelope carries the session.
func TestManager_SessionIDStamped(t *testing.T) {
	sink := runManager(t, Deps{LLM: &fakeLLM{streamEvents: []llm.StreamEvent{
		{Type: llm.StreamEventToken, Content: "hi"},
	}}}, &datatypes.ChatStreamRequest{Query: "Hi", SessionID: "s-stamp"})

	for _, env := range sink.envelopes {
		assert.Equal(t, "s-stamp", env.SessionID)
	}
}
