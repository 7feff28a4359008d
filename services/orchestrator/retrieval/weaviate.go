// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval provides the Weaviate-backed document searcher.
//
// Local deployments without the hub's search API run retrieval directly
// against Weaviate. The searcher implements the same DocumentSearcher
// interface as the remote search client, so workflows are indifferent to
// which backend serves them.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("meethub.orchestrator.retrieval")

// Compile-time interface implementation check.
var _ services.DocumentSearcher = (*WeaviateSearcher)(nil)

// meetingDocumentClass is the Weaviate class holding document chunks.
const meetingDocumentClass = "MeetingDocument"

// WeaviateSearcher implements DocumentSearcher with nearText queries
// against the MeetingDocument class.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
type WeaviateSearcher struct {
	client *weaviate.Client
}

// NewWeaviateSearcher creates a searcher from WEAVIATE_HOST and
// WEAVIATE_SCHEME (default "http").
func NewWeaviateSearcher() (*WeaviateSearcher, error) {
	host := strings.TrimSpace(os.Getenv("WEAVIATE_HOST"))
	if host == "" {
		return nil, fmt.Errorf("WEAVIATE_HOST environment variable not set")
	}
	scheme := os.Getenv("WEAVIATE_SCHEME")
	if scheme == "" {
		scheme = "http"
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	slog.Info("Initializing Weaviate searcher", "host", host, "scheme", scheme)
	return &WeaviateSearcher{client: client}, nil
}

// NewWeaviateSearcherWithClient wraps an existing client. Used in tests.
func NewWeaviateSearcherWithClient(client *weaviate.Client) *WeaviateSearcher {
	if client == nil {
		panic("retrieval: nil weaviate client")
	}
	return &WeaviateSearcher{client: client}
}

// EnsureSchema creates the MeetingDocument class when it does not exist.
// Existing classes are left untouched.
func (s *WeaviateSearcher) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(meetingDocumentClass).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       meetingDocumentClass,
		Description: "Chunked meeting minutes and reference documents",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{Name: "doc_id", DataType: []string{"text"}},
			{Name: "doc_name", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "document_type", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create %s class: %w", meetingDocumentClass, err)
	}
	slog.Info("Created Weaviate class", "class", meetingDocumentClass)
	return nil
}

// Search implements DocumentSearcher.
//
// Certainty from nearText is reported as the hit score; it shares the
// [0, 1] range with the remote search API's reranker scores so the Q&A
// workflow's relevance threshold applies to both backends.
func (s *WeaviateSearcher) Search(ctx context.Context, query string, opts services.SearchOptions) ([]datatypes.RetrievedDocument, error) {
	ctx, span := tracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()

	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	span.SetAttributes(attribute.Int("search.top_k", topK))

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "doc_id"},
		{Name: "doc_name"},
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(meetingDocumentClass).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK)

	if where := buildWhere(opts); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		slog.Error("Weaviate search failed", "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.MeetingDocumentQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	docs := make([]datatypes.RetrievedDocument, 0, len(parsed.Get.MeetingDocument))
	for _, hit := range parsed.Get.MeetingDocument {
		doc := datatypes.RetrievedDocument{
			SourceDocumentID: hit.DocID,
			ContentChunk:     hit.Content,
		}
		if doc.SourceDocumentID == "" {
			doc.SourceDocumentID = "unknown_doc_id"
		}
		if hit.Additional.Certainty != nil {
			doc.Score = *hit.Additional.Certainty
		}
		meta := map[string]any{}
		if hit.DocName != "" {
			meta["title"] = hit.DocName
		}
		if hit.Source != "" {
			meta["source"] = hit.Source
		}
		if len(meta) > 0 {
			doc.Metadata = meta
		}
		docs = append(docs, doc)
	}

	span.SetAttributes(attribute.Int("search.hits", len(docs)))
	slog.Info("Weaviate search returned documents", "count", len(docs))
	return docs, nil
}

// buildWhere translates search options into a Weaviate filter, or nil
// when the search is unscoped.
func buildWhere(opts services.SearchOptions) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if opts.MeetingDocumentsOnly {
		operands = append(operands, filters.Where().
			WithPath([]string{"document_type"}).
			WithOperator(filters.Equal).
			WithValueString("meeting"))
	}

	if len(opts.DocumentIDs) > 0 {
		idFilters := make([]*filters.WhereBuilder, 0, len(opts.DocumentIDs))
		for _, id := range opts.DocumentIDs {
			idFilters = append(idFilters, filters.Where().
				WithPath([]string{"doc_id"}).
				WithOperator(filters.Equal).
				WithValueString(id))
		}
		idFilter := idFilters[0]
		if len(idFilters) > 1 {
			idFilter = filters.Where().
				WithOperator(filters.Or).
				WithOperands(idFilters)
		}
		operands = append(operands, idFilter)
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}
