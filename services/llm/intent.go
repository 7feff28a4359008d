package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
)

// Intent values produced by classification.
const (
	IntentQnA         = "qna"
	IntentSendMinutes = "send_mattermost_minutes"
	IntentVisualize   = "visualize"
	IntentUnsupported = "unsupported"
	IntentUnknown     = "unknown"
)

// intentPrompt instructs the model to answer with a strict JSON object.
const intentPrompt = `You are an AI that analyzes the intent of a user question and extracts the key entities.
Read the question and answer in the following JSON format only.

JSON format:
{
  "intent": "<classified intent>",
  "entities": {
    "<entity_name>": "<entity_value>"
  }
}

Possible intents:
- "qna": general questions, information requests, questions about meetings or documents.
  (e.g. "Summarize yesterday's meeting", "What is the status of project X?")
- "send_mattermost_minutes": a request to send meeting minutes or a document via Mattermost.
  (e.g. "Send the weekly minutes to the team channel", "Share yesterday's minutes with Alice")
  Entities to extract: "document_name" (document or minutes name/id), "target_user_or_channel" (when named)
- "visualize": a request to chart or graph data from the meeting.
  (e.g. "Draw a pie chart of the budget split", "Show the timeline of milestones")
- "unsupported": a request for functionality this system does not provide.
  (e.g. "What's the weather today?", "Play some music")

User question: %q

Analysis result (answer with JSON only, no other text):`

// minutesIDPattern pulls a rough document identifier out of a minutes-send
// request when the model is unavailable.
var minutesIDPattern = regexp.MustCompile(`minutes\s+(?:for\s+|of\s+)?"?([\w\- ]+?)"?(?:\s+to\b|$)`)

// IntentClassifier classifies a query and extracts entities for routing.
//
// A nil or failing LLM client degrades to keyword classification; the
// classifier never returns an error to the router.
type IntentClassifier struct {
	client LLMClient
}

// NewIntentClassifier creates a classifier. client may be nil, in which case
// only the keyword path is used.
func NewIntentClassifier(client LLMClient) *IntentClassifier {
	return &IntentClassifier{client: client}
}

// Classify determines the intent of a query.
//
// The result always includes the reasoning steps taken; internal bookkeeping
// steps are filtered out downstream before reaching the client.
func (c *IntentClassifier) Classify(ctx context.Context, query string) datatypes.IntentResult {
	if c.client == nil {
		slog.Warn("No LLM client configured, falling back to keyword intent classification")
		return c.classifyByKeywords(query)
	}

	prompt := fmt.Sprintf(intentPrompt, query)
	steps := []datatypes.ReasoningStep{{
		StepDescription: "Intent classification and entity extraction prompt prepared",
		Details:         map[string]any{"prompt_length": len(prompt)},
	}}

	raw, err := c.client.Generate(ctx, prompt, GenerationParams{})
	if err != nil {
		slog.Error("Intent classification LLM call failed", "error", err)
		steps = append(steps, datatypes.ReasoningStep{
			StepDescription: "LLM call error",
			Details:         map[string]any{"error": err.Error()},
		})
		result := c.classifyByKeywords(query)
		result.ReasoningSteps = append(steps, result.ReasoningSteps...)
		return result
	}

	raw = strings.TrimSpace(raw)
	steps = append(steps, datatypes.ReasoningStep{
		StepDescription: "LLM raw response for intent/entity",
		Details:         map[string]any{"raw_llm_response": raw},
	})

	cleaned := cleanJSONResponse(raw)
	var parsed struct {
		Intent   string         `json:"intent"`
		Entities map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		slog.Error("Intent classification response was not valid JSON", "error", err, "response", cleaned)
		steps = append(steps, datatypes.ReasoningStep{
			StepDescription: "LLM response JSON parsing error",
			Details:         map[string]any{"error": err.Error(), "raw_response": cleaned},
		})
		result := c.classifyByKeywords(query)
		result.ReasoningSteps = append(steps, result.ReasoningSteps...)
		return result
	}

	if parsed.Intent == "" {
		parsed.Intent = IntentUnknown
	}
	if parsed.Entities == nil {
		parsed.Entities = map[string]any{}
	}
	steps = append(steps, datatypes.ReasoningStep{
		StepDescription: "LLM response parsed successfully",
		Details: map[string]any{
			"parsed_intent":   parsed.Intent,
			"parsed_entities": parsed.Entities,
		},
	})
	return datatypes.IntentResult{
		Intent:         parsed.Intent,
		Entities:       parsed.Entities,
		ReasoningSteps: steps,
	}
}

// cleanJSONResponse strips markdown code fences from a model response.
func cleanJSONResponse(response string) string {
	if idx := strings.Index(response, "```json"); idx >= 0 {
		response = response[idx+len("```json"):]
	}
	if idx := strings.Index(response, "```"); idx >= 0 {
		response = response[:idx]
	}
	return strings.TrimSpace(response)
}

// classifyByKeywords is the keyword fallback used when no model is available
// or the model response could not be parsed.
func (c *IntentClassifier) classifyByKeywords(query string) datatypes.IntentResult {
	lower := strings.ToLower(query)
	entities := map[string]any{}

	switch {
	case strings.Contains(lower, "minutes") && containsAny(lower, "send", "share", "forward", "distribute", "mattermost"):
		if m := minutesIDPattern.FindStringSubmatch(lower); len(m) > 1 {
			entities["meeting_id"] = strings.TrimSpace(m[1])
		}
		return datatypes.IntentResult{
			Intent:   IntentSendMinutes,
			Entities: entities,
			ReasoningSteps: []datatypes.ReasoningStep{{
				StepDescription: "Keyword-based intent classification",
				Details:         map[string]any{"reason": "Meeting document sharing keywords detected"},
			}},
		}
	case containsAny(lower, "chart", "graph", "visualiz", "plot", "diagram", "timeline of"):
		return datatypes.IntentResult{
			Intent:   IntentVisualize,
			Entities: entities,
			ReasoningSteps: []datatypes.ReasoningStep{{
				StepDescription: "Keyword-based intent classification",
				Details:         map[string]any{"reason": "Visualization keywords detected"},
			}},
		}
	case containsAny(lower, "weather", "movie", "music", "stock price", "restaurant"):
		return datatypes.IntentResult{
			Intent:   IntentUnsupported,
			Entities: entities,
			ReasoningSteps: []datatypes.ReasoningStep{{
				StepDescription: "Keyword-based intent classification",
				Details:         map[string]any{"reason": "Unsupported feature keywords detected"},
			}},
		}
	default:
		return datatypes.IntentResult{
			Intent:   IntentQnA,
			Entities: entities,
			ReasoningSteps: []datatypes.ReasoningStep{{
				StepDescription: "Keyword-based intent classification",
				Details:         map[string]any{"reason": "Default classification for general queries"},
			}},
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
