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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/meethub/services/llm"
	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
)

// chartSpecPrompt asks the model for a renderable spec. The renderer only
// understands three chart types, so the prompt pins them.
const chartSpecPrompt = `You are a data visualization assistant for a meeting hub. Based on the user's request and the document excerpts below, produce a chart specification.

Answer with JSON only, in exactly this format:
{
  "chart_type": "bar" | "pie" | "timeline",
  "title": "<chart title>",
  "labels": ["<label 1>", "<label 2>", ...],
  "values": [<number 1>, <number 2>, ...]
}

Rules:
- "values" must contain one non-negative number per label.
- For "timeline", put the milestones in "labels" in chronological order and use 0 for every value.
- If the excerpts contain no usable data, invent nothing: use the single label "no data" with value 1 and a title explaining that no data was found.

%s
User request: %q

Chart specification (JSON only, no other text):`

// runVisualize renders a chart from meeting data.
//
// The model proposes a chart spec from retrieved documents; the spec is
// rendered locally and delivered as a base64 PNG in a result envelope.
func (m *Manager) runVisualize(ctx context.Context, req *datatypes.ChatStreamRequest, out *stream.Filter) error {
	ctx, span := tracer.Start(ctx, "Manager.runVisualize")
	defer span.End()

	sid := req.SessionID
	if err := out.Send(datatypes.ThinkingEnvelope(sid, "Analyzing data for visualization...")); err != nil {
		return err
	}

	excerpts := ""
	if m.deps.Searcher != nil {
		docs, err := m.deps.Searcher.Search(ctx, req.Query, services.SearchOptions{
			MeetingDocumentsOnly: req.SearchInMeetingDocumentsOnly,
			DocumentIDs:          req.TargetDocumentIDs,
			TopK:                 maxPromptDocuments,
		})
		if err != nil {
			slog.Warn("Document search failed for visualization", "error", err, "session_id", sid)
		} else if len(docs) > 0 {
			var sb strings.Builder
			sb.WriteString("Document excerpts:\n")
			for _, doc := range docs {
				sb.WriteString(doc.ContentChunk)
				sb.WriteString("\n\n")
			}
			excerpts = sb.String()
		}
	}

	prompt := fmt.Sprintf(chartSpecPrompt, excerpts, req.Query)
	raw, err := m.deps.LLM.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		return fmt.Errorf("chart spec generation failed: %w", err)
	}

	spec, specErr := parseChartSpec(raw)
	if specErr != nil {
		slog.Warn("Chart spec was not usable, rendering fallback",
			"error", specErr, "session_id", sid)
		if err := out.Send(datatypes.WarningEnvelope(sid,
			"I couldn't extract structured data for the chart, so I rendered a placeholder.")); err != nil {
			return err
		}
		spec = fallbackChartSpec()
	}

	if err := out.Send(datatypes.ThinkingEnvelope(sid, "Rendering chart...")); err != nil {
		return err
	}
	png, err := RenderChart(spec)
	if err != nil {
		return fmt.Errorf("chart rendering failed: %w", err)
	}

	if err := out.Send(datatypes.ResultEnvelope(sid, map[string]any{
		"task":         "visualize",
		"chart_type":   spec.ChartType,
		"title":        spec.Title,
		"image_format": "png",
		"image_base64": base64.StdEncoding.EncodeToString(png),
	})); err != nil {
		return err
	}

	reply := fmt.Sprintf("Here is the %s chart: %s", spec.ChartType, spec.Title)
	if err := out.Send(datatypes.ContentEnvelope(sid, reply)); err != nil {
		return err
	}
	m.recordAssistantTurn(ctx, sid, reply)
	return nil
}

// parseChartSpec extracts a chart spec from a model response, unwrapping
// markdown fences when present.
func parseChartSpec(raw string) (ChartSpec, error) {
	cleaned := strings.TrimSpace(raw)
	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
	} else if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[idx+len("```"):]
	}
	if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	// Tolerate prose around the object.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var spec ChartSpec
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &spec); err != nil {
		return ChartSpec{}, fmt.Errorf("chart spec is not valid JSON: %w", err)
	}
	if spec.ChartType == ChartTimeline && len(spec.Values) == 0 {
		spec.Values = make([]float64, len(spec.Labels))
	}
	if err := spec.normalize(); err != nil {
		return ChartSpec{}, err
	}
	return spec, nil
}

// fallbackChartSpec renders when the model produced nothing usable.
func fallbackChartSpec() ChartSpec {
	return ChartSpec{
		ChartType: ChartBar,
		Title:     "No chartable data found",
		Labels:    []string{"no data"},
		Values:    []float64{1},
	}
}
