// Package slack pushes newly confirmed incidents to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/skywatch/internal/incident"
)

const (
	maxNarrativeLen = 2000
	httpTimeout     = 10 * time.Second
)

// Notifier sends incident notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Notify posts an incident to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, inc *incident.Consolidated) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(inc))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(inc *incident.Consolidated) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(inc),
			{"type": "divider"},
			fieldsBlock(inc),
			{"type": "divider"},
			narrativeBlock(inc),
			{"type": "divider"},
			contextBlock(inc),
		},
	}
}

func headerBlock(inc *incident.Consolidated) map[string]any {
	title := inc.Title
	if title == "" {
		title = "drone incident"
	}
	text := fmt.Sprintf("%s %s: %s", scoreEmoji(inc.EvidenceScore), scoreName(inc.EvidenceScore), title)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(inc *incident.Consolidated) map[string]any {
	location := inc.Country
	if inc.Lat != nil && inc.Lon != nil {
		location = fmt.Sprintf("%s (%.4f, %.4f)", inc.Country, *inc.Lat, *inc.Lon)
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Facility:* %s", inc.AssetType),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Location:* %s", location),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Occurred:* %s", inc.OccurredAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Evidence:* %d/4 (%s)", inc.EvidenceScore, strings.ToLower(scoreName(inc.EvidenceScore))),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Sources:* %d", len(inc.Sources)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Merged reports:* %d", inc.MergedFrom),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func narrativeBlock(inc *incident.Consolidated) map[string]any {
	text := truncate(inc.Narrative, maxNarrativeLen)
	if text == "" {
		text = "_No narrative available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Report*\n\n%s", text),
		},
	}
}

func contextBlock(inc *incident.Consolidated) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("skywatch • incident %s • first seen %s", inc.ID, inc.FirstSeenAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func scoreName(score int) string {
	switch score {
	case 4:
		return "OFFICIAL"
	case 3:
		return "VERIFIED"
	case 2:
		return "REPORTED"
	}
	return "UNCONFIRMED"
}

func scoreEmoji(score int) string {
	switch score {
	case 4:
		return "\U0001f534" // red circle
	case 3:
		return "\U0001f7e0" // orange circle
	case 2:
		return "\U0001f7e1" // yellow circle
	}
	return "⚪" // white circle
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
