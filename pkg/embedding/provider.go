// Package embedding wraps an external embedding API (spec component C4),
// used by the Topic Registry/Classifier and the Sentiment Analyzer for
// mention and topic vectors alike.
package embedding

import (
	"context"
)

// MaxInputLength is the truncation limit applied to every embedded text
// (spec 4.2/4.3: "truncated to 8000 characters").
const MaxInputLength = 8000

// Vector is a single embedding, one float32 per dimension.
type Vector []float32

// Provider is the narrow contract the Topic Classifier and Sentiment
// Analyzer depend on.
type Provider interface {
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dimension() int
}

// Truncate caps text at MaxInputLength runes, matching the spec's
// character-count truncation rule.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxInputLength {
		return text
	}
	return string(runes[:MaxInputLength])
}

// ToFloat64 widens a Vector for use with pkg/shared/math.CosineSimilarity.
func (v Vector) ToFloat64() []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
