// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSearchClient points a SearchClient at a test server.
func newTestSearchClient(t *testing.T, handler http.HandlerFunc) *SearchClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("SEARCH_API_URL", server.URL)
	client, err := NewSearchClient()
	require.NoError(t, err)
	return client
}

// TestSearchClient_ParsesResults verifies hit normalization from the
// hybrid search wire format.
func TestSearchClient_ParsesResults(t *testing.T) {
	var gotPayload searchRequest
	client := newTestSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/hybrid-reranked", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"page_content": "The roadmap targets Q3.",
			 "score": 0.91,
			 "metadata": {"doc_id": "doc-7", "doc_name": "Roadmap", "source": "wiki"}},
			{"page_content": "Orphan chunk.", "score": 0.42}
		]}`))
	})

	docs, err := client.Search(context.Background(), "roadmap timing", SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "roadmap timing", gotPayload.Query)
	assert.Equal(t, 3, gotPayload.TopK)
	assert.Equal(t, []string{"master_documents"}, gotPayload.Indices)
	assert.Nil(t, gotPayload.Filter)

	assert.Equal(t, "doc-7", docs[0].SourceDocumentID)
	assert.Equal(t, "The roadmap targets Q3.", docs[0].ContentChunk)
	assert.InDelta(t, 0.91, docs[0].Score, 1e-9)
	assert.Equal(t, "Roadmap", docs[0].Metadata["title"])
	assert.Equal(t, "wiki", docs[0].Metadata["source"])

	// Missing metadata degrades to the placeholder ID, not an error.
	assert.Equal(t, "unknown_doc_id", docs[1].SourceDocumentID)
	assert.Nil(t, docs[1].Metadata)
}

// TestSearchClient_FilterShaping verifies document scoping lands in the
// request filter.
func TestSearchClient_FilterShaping(t *testing.T) {
	var gotPayload searchRequest
	client := newTestSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	_, err := client.Search(context.Background(), "q", SearchOptions{
		MeetingDocumentsOnly: true,
		DocumentIDs:          []string{"a", "b"},
	})
	require.NoError(t, err)

	require.NotNil(t, gotPayload.Filter)
	assert.Equal(t, []string{"a", "b"}, gotPayload.Filter.DocumentIDs)
	assert.Equal(t, "meeting", gotPayload.Filter.DocumentType)
	assert.Equal(t, defaultSearchTopK, gotPayload.TopK)
}

// TestSearchClient_BackendError verifies non-200 responses surface as
// errors rather than empty hit lists.
func TestSearchClient_BackendError(t *testing.T) {
	client := newTestSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	})

	_, err := client.Search(context.Background(), "q", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// TestNewSearchClient_MissingURL verifies construction fails fast without
// a configured endpoint.
func TestNewSearchClient_MissingURL(t *testing.T) {
	t.Setenv("SEARCH_API_URL", "")
	_, err := NewSearchClient()
	require.Error(t, err)
}
