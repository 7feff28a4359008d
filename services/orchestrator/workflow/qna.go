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
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/meethub/services/llm"
	"github.com/AleutianAI/meethub/services/orchestrator/conversation"
	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
	"golang.org/x/sync/errgroup"
)

const (
	// relevanceThreshold drops low-scoring retrieval hits from the prompt.
	relevanceThreshold = 0.7

	// maxPromptDocuments caps the chunks stuffed into the prompt.
	maxPromptDocuments = 5

	// searchTopK is requested from the backend; the threshold prunes after.
	searchTopK = 10
)

// qnaSystemPrompt frames the answer model.
const qnaSystemPrompt = `You are a helpful assistant for a meeting hub. Answer the user's question using the conversation history and the provided document excerpts. If the excerpts do not contain the answer, say so honestly instead of guessing. Answer in the user's language.`

// runQnA answers a question with retrieval-augmented generation.
//
// Retrieval failure degrades to a history-only answer; only a model
// failure errors the stream.
func (m *Manager) runQnA(ctx context.Context, req *datatypes.ChatStreamRequest, out *stream.Filter) error {
	ctx, span := tracer.Start(ctx, "Manager.runQnA")
	defer span.End()

	if err := out.Send(datatypes.ThinkingEnvelope(req.SessionID, "Searching relevant documents...")); err != nil {
		return err
	}

	// Retrieval and history load are independent; overlap them.
	var (
		docs    []datatypes.RetrievedDocument
		history []conversation.Entry
	)
	// A panic inside an errgroup goroutine would escape Run's recover and
	// take the process down, so each body converts its own panics to errors.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("document search panicked: %v", r)
			}
		}()
		if m.deps.Searcher == nil {
			return nil
		}
		found, searchErr := m.deps.Searcher.Search(gctx, req.Query, services.SearchOptions{
			MeetingDocumentsOnly: req.SearchInMeetingDocumentsOnly,
			DocumentIDs:          req.TargetDocumentIDs,
			TopK:                 searchTopK,
		})
		if searchErr != nil {
			// Degrade to an unaugmented answer.
			slog.Warn("Document search failed, answering without retrieval",
				"error", searchErr, "session_id", req.SessionID)
			return nil
		}
		docs = found
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("history load panicked: %v", r)
			}
		}()
		recent, loadErr := m.deps.Store.Recent(gctx, req.SessionID, conversation.DefaultRecentTurns)
		if loadErr != nil {
			slog.Warn("Failed to load history, answering without it",
				"error", loadErr, "session_id", req.SessionID)
			return nil
		}
		history = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// The current query was already appended to history by Run.
	if n := len(history); n > 0 && history[n-1].Role == "user" && history[n-1].Content == req.Query {
		history = history[:n-1]
	}

	relevant := selectRelevant(docs)
	for _, doc := range relevant {
		if err := out.Send(datatypes.RetrievedDocumentEnvelope(req.SessionID, doc)); err != nil {
			return err
		}
	}

	messages := buildQnAMessages(req.Query, history, relevant)

	normalizer := stream.NewNormalizer(req.SessionID)
	var answer strings.Builder
	forward := func(envs []datatypes.Envelope) error {
		for _, env := range envs {
			if env.Type == datatypes.KindContent {
				answer.WriteString(env.Content)
			}
			if err := out.Send(env); err != nil {
				return err
			}
		}
		return nil
	}

	err := m.deps.LLM.ChatStream(ctx, messages, llm.GenerationParams{}, func(event llm.StreamEvent) error {
		return forward(normalizer.HandleEvent(event))
	})
	if err != nil {
		return fmt.Errorf("chat stream failed: %w", err)
	}
	if err := forward(normalizer.Finish()); err != nil {
		return err
	}

	m.recordAssistantTurn(ctx, req.SessionID, answer.String())
	return nil
}

// selectRelevant keeps hits above the relevance threshold, best first,
// capped at maxPromptDocuments.
func selectRelevant(docs []datatypes.RetrievedDocument) []datatypes.RetrievedDocument {
	relevant := make([]datatypes.RetrievedDocument, 0, maxPromptDocuments)
	for _, doc := range docs {
		if doc.Score < relevanceThreshold {
			continue
		}
		relevant = append(relevant, doc)
		if len(relevant) == maxPromptDocuments {
			break
		}
	}
	return relevant
}

// buildQnAMessages assembles the chat prompt: system framing, recent
// history, then the question with its document excerpts.
func buildQnAMessages(query string, history []conversation.Entry, docs []datatypes.RetrievedDocument) []datatypes.Message {
	messages := make([]datatypes.Message, 0, len(history)+2)
	messages = append(messages, datatypes.Message{Role: "system", Content: qnaSystemPrompt})
	for _, entry := range history {
		messages = append(messages, entry.AsMessage())
	}

	var sb strings.Builder
	if len(docs) > 0 {
		sb.WriteString("Document excerpts:\n")
		for i, doc := range docs {
			title := doc.SourceDocumentID
			if t, ok := doc.Metadata["title"].(string); ok && t != "" {
				title = t
			}
			fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, title, doc.ContentChunk)
		}
		sb.WriteString("Question: ")
	}
	sb.WriteString(query)

	messages = append(messages, datatypes.Message{Role: "user", Content: sb.String()})
	return messages
}
