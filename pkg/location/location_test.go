package location

import "testing"

func TestLabel_MatchesLongestAlias(t *testing.T) {
	l := New(DefaultGazetteer())
	region, confidence := l.Label(t.Context(), "Posted from New York City")
	if region != "US-Northeast" {
		t.Fatalf("expected US-Northeast, got %q", region)
	}
	if confidence <= 0 {
		t.Fatalf("expected positive confidence, got %f", confidence)
	}
}

func TestLabel_EmptyInputYieldsZeroValue(t *testing.T) {
	l := New(DefaultGazetteer())
	region, confidence := l.Label(t.Context(), "")
	if region != "" || confidence != 0 {
		t.Fatalf("expected zero value, got (%q, %f)", region, confidence)
	}
}

func TestLabel_NoMatchYieldsZeroValue(t *testing.T) {
	l := New(DefaultGazetteer())
	region, confidence := l.Label(t.Context(), "somewhere unmapped")
	if region != "" || confidence != 0 {
		t.Fatalf("expected zero value, got (%q, %f)", region, confidence)
	}
}
