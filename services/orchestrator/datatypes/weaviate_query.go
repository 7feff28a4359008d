// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the expected
// response shape.
//
// # Limitations
//
//   - Type mismatches result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Meeting Document Query Types
// =============================================================================

// MeetingDocumentQueryResponse is the response shape for nearText queries
// against the MeetingDocument class.
type MeetingDocumentQueryResponse struct {
	Get struct {
		MeetingDocument []MeetingDocumentResult `json:"MeetingDocument"`
	} `json:"Get"`
}

// MeetingDocumentResult is a single retrieved chunk.
type MeetingDocumentResult struct {
	DocID        string `json:"doc_id"`
	DocName      string `json:"doc_name"`
	Content      string `json:"content"`
	Source       string `json:"source"`
	DocumentType string `json:"document_type"`
	Additional   struct {
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}
