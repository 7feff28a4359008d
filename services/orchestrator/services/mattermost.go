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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// mattermostTracer is the OpenTelemetry tracer for Mattermost operations.
var mattermostTracer = otel.Tracer("meethub.orchestrator.services.mattermost")

// Compile-time interface implementation check.
var _ MinutesDistributor = (*MattermostClient)(nil)

// =============================================================================
// Interfaces
// =============================================================================

// DeliveryStatus classifies the outcome of a single participant delivery.
type DeliveryStatus string

const (
	DeliverySent         DeliveryStatus = "sent"
	DeliveryUserNotFound DeliveryStatus = "user_not_found"
	DeliveryFailed       DeliveryStatus = "failed"
)

// Delivery is the per-participant result of a minutes distribution.
type Delivery struct {
	Participant string         `json:"participant"`
	Status      DeliveryStatus `json:"status"`
	Detail      string         `json:"detail,omitempty"`
}

// MinutesDistributor sends a meeting minutes link to named participants.
//
// # Description
//
// Abstracts the chat platform behind the minutes workflow. Implementations
// resolve human-readable participant names to platform users and deliver a
// direct message containing the minutes link. Partial failure is expected;
// the per-participant outcome is reported rather than collapsed into one
// error.
type MinutesDistributor interface {
	// Distribute sends the minutes link to each participant. The returned
	// slice has one Delivery per input participant, in input order. An
	// error is returned only when the platform is unreachable outright.
	Distribute(ctx context.Context, participants []string, title, minutesURL string) ([]Delivery, error)
}

// =============================================================================
// MattermostClient
// =============================================================================

// mattermostRequestsPerSecond bounds outbound API calls so a large
// participant list cannot trip the server's rate limiter.
const mattermostRequestsPerSecond = 5

// MattermostClient implements MinutesDistributor against the Mattermost
// REST API (v4).
//
// # Thread Safety
//
// Safe for concurrent use. The shared rate limiter serializes bursts
// across goroutines.
type MattermostClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	botUserID  string
	limiter    *rate.Limiter
}

// NewMattermostClient creates a Mattermost client.
//
// Reads MATTERMOST_URL, MATTERMOST_TOKEN, and MATTERMOST_BOT_USER_ID.
// The token may also be supplied via /run/secrets/mattermost_token.
func NewMattermostClient() (*MattermostClient, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(os.Getenv("MATTERMOST_URL")), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("MATTERMOST_URL environment variable not set")
	}

	token := strings.TrimSpace(os.Getenv("MATTERMOST_TOKEN"))
	if token == "" {
		if data, err := os.ReadFile("/run/secrets/mattermost_token"); err == nil {
			token = strings.TrimSpace(string(data))
		}
	}
	if token == "" {
		return nil, fmt.Errorf("mattermost token not found in MATTERMOST_TOKEN or /run/secrets/mattermost_token")
	}

	botUserID := strings.TrimSpace(os.Getenv("MATTERMOST_BOT_USER_ID"))
	if botUserID == "" {
		return nil, fmt.Errorf("MATTERMOST_BOT_USER_ID environment variable not set")
	}

	slog.Info("Initializing Mattermost client", "base_url", baseURL, "bot_user_id", botUserID)
	return &MattermostClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		botUserID:  botUserID,
		limiter:    rate.NewLimiter(rate.Limit(mattermostRequestsPerSecond), mattermostRequestsPerSecond),
	}, nil
}

// Distribute implements MinutesDistributor.
func (c *MattermostClient) Distribute(ctx context.Context, participants []string, title, minutesURL string) ([]Delivery, error) {
	ctx, span := mattermostTracer.Start(ctx, "MattermostClient.Distribute")
	defer span.End()
	span.SetAttributes(attribute.Int("mattermost.participants", len(participants)))

	message := formatMinutesMessage(title, minutesURL)
	deliveries := make([]Delivery, 0, len(participants))

	for _, name := range participants {
		delivery := Delivery{Participant: name}

		userID, err := c.resolveUser(ctx, name)
		switch {
		case err != nil:
			delivery.Status = DeliveryFailed
			delivery.Detail = err.Error()
		case userID == "":
			delivery.Status = DeliveryUserNotFound
			delivery.Detail = fmt.Sprintf("no Mattermost user matches %q", name)
		default:
			if err := c.sendDirectMessage(ctx, userID, message); err != nil {
				delivery.Status = DeliveryFailed
				delivery.Detail = err.Error()
			} else {
				delivery.Status = DeliverySent
			}
		}

		if delivery.Status != DeliverySent {
			slog.Warn("Minutes delivery failed for participant",
				"participant", name, "status", delivery.Status, "detail", delivery.Detail)
		}
		deliveries = append(deliveries, delivery)
	}

	sent := 0
	for _, d := range deliveries {
		if d.Status == DeliverySent {
			sent++
		}
	}
	span.SetAttributes(attribute.Int("mattermost.sent", sent))
	slog.Info("Minutes distribution complete", "sent", sent, "total", len(participants))
	return deliveries, nil
}

// resolveUser maps a participant name to a Mattermost user ID.
//
// Tries an exact username lookup first, then falls back to user search.
// Returns an empty ID (no error) when nobody matches.
func (c *MattermostClient) resolveUser(ctx context.Context, name string) (string, error) {
	// Usernames are lowercase in Mattermost; "Alice Smith" becomes
	// "alice.smith" under the hub's provisioning convention.
	username := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "."))

	var user struct {
		ID string `json:"id"`
	}
	status, err := c.doJSON(ctx, "GET", "/api/v4/users/username/"+url.PathEscape(username), nil, &user)
	if err != nil {
		return "", err
	}
	if status == http.StatusOK && user.ID != "" {
		return user.ID, nil
	}

	// Fall back to term search, which matches nickname and full name.
	var matches []struct {
		ID string `json:"id"`
	}
	status, err = c.doJSON(ctx, "POST", "/api/v4/users/search",
		map[string]any{"term": name, "limit": 1}, &matches)
	if err != nil {
		return "", err
	}
	if status == http.StatusOK && len(matches) > 0 {
		return matches[0].ID, nil
	}
	return "", nil
}

// sendDirectMessage opens (or reuses) a direct channel between the bot and
// the user, then posts the message into it.
func (c *MattermostClient) sendDirectMessage(ctx context.Context, userID, message string) error {
	var channel struct {
		ID string `json:"id"`
	}
	status, err := c.doJSON(ctx, "POST", "/api/v4/channels/direct",
		[]string{c.botUserID, userID}, &channel)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("direct channel creation failed with status %d", status)
	}

	status, err = c.doJSON(ctx, "POST", "/api/v4/posts",
		map[string]any{"channel_id": channel.ID, "message": message}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("post creation failed with status %d", status)
	}
	return nil
}

// doJSON performs one rate-limited authenticated API call, decoding the
// response into out when non-nil. Non-2xx statuses are returned to the
// caller, not treated as errors, so lookups can distinguish "not found".
func (c *MattermostClient) doJSON(ctx context.Context, method, path string, payload, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal mattermost payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mattermost API call failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode mattermost response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// formatMinutesMessage renders the direct message body.
func formatMinutesMessage(title, minutesURL string) string {
	if title == "" {
		title = "your recent meeting"
	}
	return fmt.Sprintf("Hello! The minutes for **%s** are ready: %s", title, minutesURL)
}

// CountDeliveries tallies sent and failed deliveries. Workflows use the
// split to decide between success, partial, and failure results.
func CountDeliveries(deliveries []Delivery) (sent, failed int) {
	for _, d := range deliveries {
		if d.Status == DeliverySent {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
