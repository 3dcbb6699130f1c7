package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
)

const (
	initialBackoffInterval = 500 * time.Millisecond
	maxBackoffElapsed      = 15 * time.Second
)

// AnthropicProvider implements Provider against the Anthropic Messages
// API, used as the primary LLM backend.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
	logger *logrus.Logger
}

// NewAnthropicProvider builds a provider for the given model. apiKey is
// passed explicitly rather than read from the environment so callers can
// source it from the Config Store or a secret manager.
func NewAnthropicProvider(apiKey, model string, logger *logrus.Logger) *AnthropicProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logger,
	}
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoffInterval
	bo.MaxElapsedTime = maxBackoffElapsed
	return bo
}

// Complete sends req to the Anthropic API with exponential back-off and at
// most one retry. Non-retryable API errors (4xx) and responses without a
// text block return immediately; transient API errors and parse or
// band-violation failures are retried once.
func (p *AnthropicProvider) Complete(ctx context.Context, req PolarityRequest) (*PolarityResponse, error) {
	prompt, err := RenderPolarityPrompt(req)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	operation := func() (*PolarityResponse, error) {
		message, err := p.client.Messages.New(ctx, params)
		if err != nil {
			if !isRetryableAnthropicError(err) {
				return nil, backoff.Permanent(apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "anthropic messages.new failed"))
			}
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "anthropic messages.new failed (retryable)")
		}

		if len(message.Content) == 0 {
			return nil, backoff.Permanent(apperrors.NewValidationError("anthropic response had no content blocks"))
		}
		block := message.Content[0]
		if block.Type != "text" {
			return nil, backoff.Permanent(apperrors.NewValidationError(fmt.Sprintf("unexpected anthropic response block type %q", block.Type)))
		}

		parsed, err := ParsePolarityResponse(block.Text)
		if err != nil {
			// Parse/band-violation failures are semantic, not transient;
			// spec 4.3 allows exactly one retry for these.
			return nil, err
		}
		parsed.InputTokens = message.Usage.InputTokens
		parsed.OutputTokens = message.Usage.OutputTokens
		return parsed, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), 1), ctx)
	result, err := backoff.RetryWithData(operation, bo)
	if err != nil {
		p.logger.WithFields(logging.AIFields("sentiment_polarity", string(p.model)).ToLogrus()).
			WithError(err).Warn("anthropic polarity call failed after retries")
		return nil, err
	}
	return result, nil
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}
