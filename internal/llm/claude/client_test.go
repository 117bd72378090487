package claude

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/linnemanlabs/skywatch/internal/verify"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	got := buildPrompt(&verify.Request{
		Title:        "Drone over Kastrup",
		Narrative:    "Airspace closed for 20 minutes.",
		LocationHint: "airport, DK (55.6181, 12.6561)",
	})

	for _, want := range []string{
		"Title: Drone over Kastrup",
		"Text: Airspace closed for 20 minutes.",
		"Location: airport, DK (55.6181, 12.6561)",
		"Classify this report.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuildPrompt_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	got := buildPrompt(&verify.Request{Title: "Drone over Kastrup"})

	if strings.Contains(got, "Text:") {
		t.Error("prompt should omit empty narrative")
	}
	if strings.Contains(got, "Location:") {
		t.Error("prompt should omit empty location hint")
	}
}

func TestParseMessage_Verdict(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"is_incident": true, "category": "incident", "confidence": 0.91, "reasoning": "specific place and time"}`},
		},
	}

	resp, err := parseMessage(msg)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if !resp.IsIncident {
		t.Error("expected is_incident true")
	}
	if resp.Category != "incident" {
		t.Errorf("category = %q, want incident", resp.Category)
	}
	if resp.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", resp.Confidence)
	}
	if resp.Reasoning != "specific place and time" {
		t.Errorf("reasoning = %q", resp.Reasoning)
	}
}

func TestParseMessage_WrappedInProse(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Here is my verdict:\n```json\n{\"is_incident\": false, \"category\": \"policy\", \"confidence\": 0.8, \"reasoning\": \"regulation story\"}\n```\nLet me know if you need more."},
		},
	}

	resp, err := parseMessage(msg)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if resp.IsIncident {
		t.Error("expected is_incident false")
	}
	if resp.Category != "policy" {
		t.Errorf("category = %q, want policy", resp.Category)
	}
}

func TestParseMessage_NoTextContent(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{Content: []anthropic.ContentBlockUnion{}}
	if _, err := parseMessage(msg); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestParseMessage_InvalidJSON(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "I cannot classify this report."},
		},
	}
	if _, err := parseMessage(msg); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `verdict: {"a":1} done`, `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("%s: extractJSON(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}
