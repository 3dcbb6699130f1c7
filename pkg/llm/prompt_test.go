package llm

import (
	"strings"
	"testing"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
)

func TestRenderPolarityPrompt(t *testing.T) {
	rendered, err := RenderPolarityPrompt(PolarityRequest{
		SystemPrompt: "You are a sentiment analyst.",
		SourceType:   "national_media",
		Text:         "The new policy was well received.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"You are a sentiment analyst.", "national_media", "The new policy was well received.", "LABEL:", "SCORE:"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered prompt missing %q:\n%s", want, rendered)
		}
	}
}

func TestParsePolarityResponse(t *testing.T) {
	raw := "LABEL: POSITIVE\nSCORE: 0.6\nJUSTIFICATION: Praise for the reform.\nTOPICS: healthcare, reform"

	resp, err := ParsePolarityResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Label != "POSITIVE" {
		t.Errorf("expected label POSITIVE, got %q", resp.Label)
	}
	if resp.Score != 0.6 {
		t.Errorf("expected score 0.6, got %v", resp.Score)
	}
	if resp.Justification != "Praise for the reform." {
		t.Errorf("unexpected justification: %q", resp.Justification)
	}
	if len(resp.TopicHints) != 2 || resp.TopicHints[0] != "healthcare" || resp.TopicHints[1] != "reform" {
		t.Errorf("unexpected topic hints: %v", resp.TopicHints)
	}
}

func TestParsePolarityResponse_MissingFields(t *testing.T) {
	_, err := ParsePolarityResponse("JUSTIFICATION: no label or score here")
	if err == nil {
		t.Fatal("expected error for response missing LABEL/SCORE")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("expected validation error type, got %v", err)
	}
}

func TestParsePolarityResponse_BandViolation(t *testing.T) {
	cases := []string{
		"LABEL: POSITIVE\nSCORE: 0.05",
		"LABEL: NEGATIVE\nSCORE: 0.1",
		"LABEL: NEUTRAL\nSCORE: 0.9",
	}
	for _, raw := range cases {
		if _, err := ParsePolarityResponse(raw); err == nil {
			t.Errorf("expected band-violation error for %q", raw)
		}
	}
}

func TestParsePolarityResponse_UnparsableScore(t *testing.T) {
	_, err := ParsePolarityResponse("LABEL: POSITIVE\nSCORE: not-a-number")
	if err == nil {
		t.Fatal("expected error for unparsable score")
	}
}
