package embedding

import "testing"

func TestTruncate_NoOp(t *testing.T) {
	text := "short text"
	if got := Truncate(text); got != text {
		t.Errorf("expected no truncation, got %q", got)
	}
}

func TestTruncate_LongText(t *testing.T) {
	runes := make([]rune, MaxInputLength+500)
	for i := range runes {
		runes[i] = 'a'
	}
	text := string(runes)

	got := Truncate(text)
	if len(got) != MaxInputLength {
		t.Errorf("expected truncated length %d, got %d", MaxInputLength, len(got))
	}
}
