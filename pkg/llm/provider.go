// Package llm wraps the chat/responses API used only by the Sentiment
// Analyzer (spec component C5) behind one narrow Provider interface, with
// anthropic and AWS Bedrock backends.
package llm

import (
	"context"
)

// PolarityRequest is the structured input the Sentiment Analyzer sends
// for the polarity+justification sub-task (spec 4.3).
type PolarityRequest struct {
	SystemPrompt string
	Text         string
	SourceType   string
	MaxTokens    int
}

// PolarityResponse is the parsed structured output.
type PolarityResponse struct {
	Label         string
	Score         float64
	Justification string
	TopicHints    []string
	InputTokens   int64
	OutputTokens  int64
}

// Provider is the narrow contract the Sentiment Analyzer depends on; both
// the Anthropic and Bedrock backends implement it identically so the
// analyzer never branches on provider.
type Provider interface {
	Complete(ctx context.Context, req PolarityRequest) (*PolarityResponse, error)
}
