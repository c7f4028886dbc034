// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Notifiers
// =============================================================================

// Notifier delivers one escalation to a human-facing channel. A non-nil
// error triggers a retry with backoff.
type Notifier interface {
	Notify(ctx context.Context, record datatypes.EscalationRecord) error
}

// LogNotifier writes escalations to the structured log. It is the
// default delivery channel and never fails.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, record datatypes.EscalationRecord) error {
	n.logger.Warn("escalation",
		"escalation_id", record.ID,
		"event_id", record.Decision.EventID,
		"outcome", record.Decision.Outcome,
		"rationale", record.Decision.Rationale,
		"context", record.Context,
	)
	return nil
}

// WebhookNotifier POSTs escalations as JSON to an operator endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier for url. client may be
// nil, in which case a client with a 10 second timeout is used.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, record datatypes.EscalationRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal escalation %s: %w", record.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver escalation %s: %w", record.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deliver escalation %s: endpoint returned %d", record.ID, resp.StatusCode)
	}
	return nil
}
