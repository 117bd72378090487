// Package claude implements verify.Provider on top of the Anthropic API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/skywatch/internal/verify"
)

const responseTokens = 1024

const systemPrompt = `You classify short news reports about drones near sensitive facilities.

Decide whether the text describes an ACTUAL drone sighting or airspace incident
(something observed at a specific place and time), as opposed to news ABOUT
drones: policy or regulation announcements, defense or counter-drone
deployments, or general discussion and opinion pieces.

Respond with a single JSON object and nothing else:
{"is_incident": bool, "category": "incident"|"policy"|"defense"|"discussion", "confidence": 0.0-1.0, "reasoning": "one or two sentences"}`

// Client sends classification requests to the Anthropic API.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a Claude-backed classification provider.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Classify sends one candidate's text to the model and parses the JSON verdict.
func (c *Client) Classify(ctx context.Context, req *verify.Request) (*verify.Response, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: responseTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	return parseMessage(msg)
}

// buildPrompt renders the classification request as a user message.
func buildPrompt(req *verify.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.Narrative != "" {
		fmt.Fprintf(&b, "Text: %s\n", req.Narrative)
	}
	if req.LocationHint != "" {
		fmt.Fprintf(&b, "Location: %s\n", req.LocationHint)
	}
	b.WriteString("\nClassify this report.")
	return b.String()
}

// parseMessage extracts the first text block and decodes the JSON verdict.
func parseMessage(msg *anthropic.Message) (*verify.Response, error) {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	var out verify.Response
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}
	return &out, nil
}

// extractJSON strips markdown fences and surrounding prose the model
// occasionally wraps around the JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
