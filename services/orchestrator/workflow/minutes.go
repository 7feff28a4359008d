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

	"github.com/AleutianAI/meethub/services/orchestrator/datatypes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
)

// Distribution result statuses reported in the result envelope.
const (
	distributionSuccess = "success"
	distributionPartial = "partial"
	distributionFailure = "failure"
)

// runMinutes distributes meeting minutes to the meeting's participants.
//
// Validation failures are conversational: the client gets a content
// message explaining the problem plus a structured error or warning, and
// the stream ends normally. Partial delivery is reported per participant.
func (m *Manager) runMinutes(ctx context.Context, req *datatypes.ChatStreamRequest, out *stream.Filter) error {
	ctx, span := tracer.Start(ctx, "Manager.runMinutes")
	defer span.End()

	sid := req.SessionID

	if m.deps.Distributor == nil {
		if err := out.Send(datatypes.ContentEnvelope(sid,
			"Minutes distribution is not configured on this server.")); err != nil {
			return err
		}
		return out.Send(datatypes.ErrorEnvelope(sid, "Mattermost integration is not configured.", ""))
	}

	mc, err := m.meetingContextFor(ctx, req)
	if err != nil {
		return err
	}
	if mc == nil {
		if err := out.Send(datatypes.ContentEnvelope(sid,
			"I couldn't find an active meeting for this conversation. Please open a meeting before asking me to send its minutes.")); err != nil {
			return err
		}
		return out.Send(datatypes.ErrorEnvelope(sid, "No meeting context is attached to this session.", ""))
	}
	if strings.TrimSpace(mc.MinutesURL) == "" {
		if err := out.Send(datatypes.ContentEnvelope(sid,
			"The minutes for this meeting aren't ready yet, so there is nothing to send.")); err != nil {
			return err
		}
		return out.Send(datatypes.ErrorEnvelope(sid, "The meeting has no minutes URL.", ""))
	}

	participants := mc.SplitParticipants()
	if len(participants) == 0 {
		if err := out.Send(datatypes.ContentEnvelope(sid,
			"This meeting has no listed participants, so I have nobody to send the minutes to.")); err != nil {
			return err
		}
		return out.Send(datatypes.WarningEnvelope(sid, "The meeting participant list is empty."))
	}

	if err := out.Send(datatypes.ThinkingEnvelope(sid,
		fmt.Sprintf("Sending meeting minutes to %d participant(s)...", len(participants)))); err != nil {
		return err
	}

	deliveries, err := m.deps.Distributor.Distribute(ctx, participants, mc.Title, mc.MinutesURL)
	if err != nil {
		slog.Error("Minutes distribution failed outright", "error", err, "session_id", sid)
		if sendErr := out.Send(datatypes.ContentEnvelope(sid,
			"I couldn't reach Mattermost to send the minutes. Please try again later.")); sendErr != nil {
			return sendErr
		}
		return out.Send(datatypes.ErrorEnvelope(sid, "Mattermost is unreachable.", ""))
	}

	for _, d := range deliveries {
		var env datatypes.Envelope
		if d.Status == services.DeliverySent {
			env = datatypes.InfoEnvelope(sid, fmt.Sprintf("Minutes sent to %s.", d.Participant))
		} else {
			env = datatypes.WarningEnvelope(sid,
				fmt.Sprintf("Could not deliver minutes to %s: %s", d.Participant, d.Detail))
		}
		if err := out.Send(env); err != nil {
			return err
		}
	}

	sent, failed := services.CountDeliveries(deliveries)
	status := distributionSuccess
	switch {
	case sent == 0:
		status = distributionFailure
	case failed > 0:
		status = distributionPartial
	}

	if err := out.Send(datatypes.TaskCompleteEnvelope(sid, "send_mattermost_minutes")); err != nil {
		return err
	}
	if err := out.Send(datatypes.ResultEnvelope(sid, map[string]any{
		"task":       "send_mattermost_minutes",
		"status":     status,
		"sent":       sent,
		"failed":     failed,
		"deliveries": deliveriesData(deliveries),
	})); err != nil {
		return err
	}

	summary := distributionSummary(mc.Title, sent, failed)
	if err := out.Send(datatypes.ContentEnvelope(sid, summary)); err != nil {
		return err
	}
	m.recordAssistantTurn(ctx, sid, summary)
	return nil
}

// deliveriesData shapes deliveries for the result envelope payload.
func deliveriesData(deliveries []services.Delivery) []map[string]any {
	out := make([]map[string]any, 0, len(deliveries))
	for _, d := range deliveries {
		item := map[string]any{
			"participant": d.Participant,
			"status":      string(d.Status),
		}
		if d.Detail != "" {
			item["detail"] = d.Detail
		}
		out = append(out, item)
	}
	return out
}

// distributionSummary renders the conversational wrap-up message.
func distributionSummary(title string, sent, failed int) string {
	name := title
	if name == "" {
		name = "the meeting"
	}
	switch {
	case failed == 0:
		return fmt.Sprintf("Done! I sent the minutes for %s to all %d participant(s).", name, sent)
	case sent == 0:
		return fmt.Sprintf("I wasn't able to send the minutes for %s to any participant. Please check the participant list.", name)
	default:
		return fmt.Sprintf("I sent the minutes for %s to %d participant(s), but %d delivery(ies) failed. See the warnings above for details.", name, sent, failed)
	}
}
