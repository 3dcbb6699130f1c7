package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
)

// BedrockProvider implements Provider against an Anthropic Claude model
// served through AWS Bedrock Runtime, for deployments that route LLM
// traffic through an AWS account rather than calling Anthropic directly.
type BedrockProvider struct {
	client  *bedrockruntime.Client
	modelID string
	logger  *logrus.Logger
}

// NewBedrockProvider builds a provider bound to modelID (e.g.
// "anthropic.claude-3-haiku-20240307-v1:0"), using the ambient AWS
// credential chain (env vars, shared config, IMDS) resolved via region.
func NewBedrockProvider(ctx context.Context, region, modelID string, logger *logrus.Logger) (*BedrockProvider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to load AWS config for bedrock provider")
	}
	return &BedrockProvider{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		logger:  logger,
	}, nil
}

// bedrockMessage and bedrockRequestBody mirror the Anthropic Messages API
// request shape Bedrock expects for anthropic.* model IDs.
type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequestBody struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponseBody struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Complete mirrors AnthropicProvider.Complete but routes the call through
// Bedrock's InvokeModel API instead of the Anthropic Messages API.
func (p *BedrockProvider) Complete(ctx context.Context, req PolarityRequest) (*PolarityResponse, error) {
	prompt, err := RenderPolarityPrompt(req)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(bedrockRequestBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal bedrock request body")
	}

	operation := func() (*PolarityResponse, error) {
		out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(p.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			if !isRetryableBedrockError(err) {
				return nil, backoff.Permanent(apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "bedrock invoke-model failed"))
			}
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "bedrock invoke-model failed (retryable)")
		}

		var parsedBody bedrockResponseBody
		if err := json.Unmarshal(out.Body, &parsedBody); err != nil {
			return nil, backoff.Permanent(apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to unmarshal bedrock response body"))
		}
		if len(parsedBody.Content) == 0 {
			return nil, backoff.Permanent(apperrors.NewValidationError("bedrock response had no content blocks"))
		}

		parsed, err := ParsePolarityResponse(parsedBody.Content[0].Text)
		if err != nil {
			return nil, err
		}
		parsed.InputTokens = parsedBody.Usage.InputTokens
		parsed.OutputTokens = parsedBody.Usage.OutputTokens
		return parsed, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), 1), ctx)
	result, err := backoff.RetryWithData(operation, bo)
	if err != nil {
		p.logger.WithFields(logging.AIFields("sentiment_polarity", p.modelID).ToLogrus()).
			WithError(err).Warn("bedrock polarity call failed after retries")
		return nil, err
	}
	return result, nil
}

func isRetryableBedrockError(err error) bool {
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

	var throttling *types.ThrottlingException
	if errors.As(err, &throttling) {
		return true
	}
	var serviceUnavailable *types.ServiceUnavailableException
	if errors.As(err, &serviceUnavailable) {
		return true
	}
	var internalServer *types.InternalServerException
	if errors.As(err, &internalServer) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "InternalServerException":
			return true
		}
	}

	return false
}
