// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate calls to external
// systems (the document search API, Mattermost), separating them from HTTP
// handlers. Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: Services can call other services
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// searchTracer is the OpenTelemetry tracer for document search operations.
var searchTracer = otel.Tracer("meethub.orchestrator.services.search")

// Compile-time interface implementation check.
var _ DocumentSearcher = (*SearchClient)(nil)

// =============================================================================
// Interfaces
// =============================================================================

// SearchOptions scope a document search.
type SearchOptions struct {
	// MeetingDocumentsOnly restricts hits to meeting minutes documents.
	MeetingDocumentsOnly bool

	// DocumentIDs restricts hits to the given source documents.
	DocumentIDs []string

	// TopK caps the number of hits. Zero means the backend default.
	TopK int
}

// DocumentSearcher retrieves scored document chunks for a query.
//
// # Description
//
// Abstracts the retrieval backend behind the Q&A workflow. The default
// implementation calls the hub's hybrid search API; a Weaviate-backed
// implementation exists for local deployments. Implementations must be
// safe for concurrent use.
type DocumentSearcher interface {
	// Search returns scored hits for the query, best first. A backend
	// failure is an error; callers decide whether to degrade or fail.
	Search(ctx context.Context, query string, opts SearchOptions) ([]datatypes.RetrievedDocument, error)
}

// =============================================================================
// SearchClient
// =============================================================================

// defaultSearchTopK is the hit cap used when the caller does not set one.
const defaultSearchTopK = 5

// SearchClient calls the hub's hybrid-reranked search API.
//
// The API applies cross-encoder reranking server-side; the client only
// shapes the request and normalizes the response into RetrievedDocuments.
type SearchClient struct {
	httpClient *http.Client
	baseURL    string
	indices    []string
}

// NewSearchClient creates a search client.
//
// The base URL is read from SEARCH_API_URL; the search index list from
// SEARCH_INDICES (comma separated, default "master_documents").
func NewSearchClient() (*SearchClient, error) {
	baseURL := strings.Trim(os.Getenv("SEARCH_API_URL"), "\"' ")
	if baseURL == "" {
		return nil, fmt.Errorf("SEARCH_API_URL environment variable not set")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	indices := []string{"master_documents"}
	if raw := os.Getenv("SEARCH_INDICES"); raw != "" {
		indices = nil
		for _, idx := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(idx); trimmed != "" {
				indices = append(indices, trimmed)
			}
		}
	}

	slog.Info("Initializing search client", "base_url", baseURL, "indices", indices)
	return &SearchClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		indices:    indices,
	}, nil
}

// searchRequest is the wire request for the hybrid search endpoint.
type searchRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k"`
	Indices []string      `json:"indices"`
	Filter  *searchFilter `json:"filter,omitempty"`
}

type searchFilter struct {
	DocumentIDs  []string `json:"document_ids,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
}

// searchResponse is the wire response. Fields the backend may omit are
// tolerated; a hit without metadata still produces a usable document.
type searchResponse struct {
	Results []struct {
		PageContent string         `json:"page_content"`
		Score       float64        `json:"score"`
		Metadata    map[string]any `json:"metadata"`
	} `json:"results"`
}

// Search implements DocumentSearcher.
func (c *SearchClient) Search(ctx context.Context, query string, opts SearchOptions) ([]datatypes.RetrievedDocument, error) {
	ctx, span := searchTracer.Start(ctx, "SearchClient.Search")
	defer span.End()

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	span.SetAttributes(
		attribute.Int("search.top_k", topK),
		attribute.Bool("search.meeting_only", opts.MeetingDocumentsOnly),
		attribute.Int("search.document_id_filters", len(opts.DocumentIDs)),
	)

	payload := searchRequest{
		Query:   query,
		TopK:    topK,
		Indices: c.indices,
	}
	if len(opts.DocumentIDs) > 0 || opts.MeetingDocumentsOnly {
		payload.Filter = &searchFilter{DocumentIDs: opts.DocumentIDs}
		if opts.MeetingDocumentsOnly {
			payload.Filter.DocumentType = "meeting"
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	searchURL := c.baseURL + "/search/hybrid-reranked"
	req, err := http.NewRequestWithContext(ctx, "POST", searchURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Search API call failed", "error", err)
		return nil, fmt.Errorf("search API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("search.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		slog.Error("Search API returned an error", "status_code", resp.StatusCode,
			"response", truncateForLog(string(respBody)))
		return nil, fmt.Errorf("search API failed with status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	docs := make([]datatypes.RetrievedDocument, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		doc := datatypes.RetrievedDocument{
			SourceDocumentID: "unknown_doc_id",
			ContentChunk:     item.PageContent,
			Score:            item.Score,
		}
		if id, ok := item.Metadata["doc_id"].(string); ok && id != "" {
			doc.SourceDocumentID = id
		}
		meta := map[string]any{}
		if name, ok := item.Metadata["doc_name"].(string); ok && name != "" {
			meta["title"] = name
		}
		if source, ok := item.Metadata["source"].(string); ok && source != "" {
			meta["source"] = source
		}
		if len(meta) > 0 {
			doc.Metadata = meta
		}
		docs = append(docs, doc)
	}

	span.SetAttributes(attribute.Int("search.hits", len(docs)))
	slog.Info("Search API returned documents", "count", len(docs))
	return docs, nil
}

// truncateForLog keeps error logs readable when a backend returns a page of
// HTML instead of JSON.
func truncateForLog(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
