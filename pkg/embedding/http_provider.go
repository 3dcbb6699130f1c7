package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/ratelimit"
	sharedhttp "github.com/openpolicylabs/govintel/pkg/shared/http"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
)

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint. It backs
// both the "local" and hosted embedding deployments described in
// SPEC_FULL.md's domain stack, since every such backend speaks the same
// request/response shape.
type HTTPProvider struct {
	apiKey     string
	apiBase    string
	model      string
	dimension  int
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger
}

// NewHTTPProvider builds a provider bound to apiBase (e.g.
// "https://api.openai.com/v1" or a local embedding server's base URL).
// limiter may be nil, in which case calls are unthrottled.
func NewHTTPProvider(apiKey, apiBase, model string, dimension int, limiter *ratelimit.Limiter, logger *logrus.Logger) *HTTPProvider {
	if logger == nil {
		logger = logrus.New()
	}
	clientConfig := sharedhttp.DefaultClientConfig()
	clientConfig.Timeout = 60 * time.Second
	return &HTTPProvider{
		apiKey:     apiKey,
		apiBase:    apiBase,
		model:      model,
		dimension:  dimension,
		httpClient: sharedhttp.NewClient(clientConfig),
		limiter:    limiter,
		logger:     logger,
	}
}

// Dimension returns the configured embedding vector size.
func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

// Embed generates the embedding for a single text.
func (p *HTTPProvider) Embed(ctx context.Context, text string) (Vector, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperrors.New(apperrors.ErrorTypeInternal, "embedding provider returned unexpected vector count")
	}
	return vectors[0], nil
}

type embeddingRequestBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponseBody struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds many texts in one API call, retrying the whole batch
// on transient failure. Each input is truncated per Truncate before
// sending.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.model, estimateTokens(texts)); err != nil {
			return nil, err
		}
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = Truncate(t)
	}

	body, err := json.Marshal(embeddingRequestBody{Model: p.model, Input: truncated})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal embedding request")
	}

	operation := func() ([]Vector, error) {
		return p.doRequest(ctx, body, len(texts))
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	vectors, err := backoff.RetryWithData(operation, bo)
	if err != nil {
		p.logger.WithFields(logging.AIFields("embedding", p.model).ToLogrus()).
			WithError(err).Warn("embedding call failed after retries")
		return nil, err
	}
	return vectors, nil
}

func (p *HTTPProvider) doRequest(ctx context.Context, body []byte, wantCount int) ([]Vector, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to build embedding request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "embedding request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to read embedding response")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperrors.New(apperrors.ErrorTypeNetwork, fmt.Sprintf("embedding API returned status %d (retryable)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(apperrors.New(apperrors.ErrorTypeNetwork, fmt.Sprintf("embedding API returned status %d: %s", resp.StatusCode, string(respBody))))
	}

	var parsed embeddingResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, backoff.Permanent(apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to parse embedding response"))
	}
	if len(parsed.Data) != wantCount {
		return nil, backoff.Permanent(apperrors.New(apperrors.ErrorTypeValidation, fmt.Sprintf("embedding API returned %d vectors, expected %d", len(parsed.Data), wantCount)))
	}

	vectors := make([]Vector, wantCount)
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= wantCount {
			return nil, backoff.Permanent(apperrors.New(apperrors.ErrorTypeValidation, "embedding API returned an out-of-range index"))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// estimateTokens is a rough 4-chars-per-token heuristic, good enough for
// rate-limiter admission since the limiter only needs an order-of-
// magnitude estimate ahead of the real usage it would otherwise read from
// a response.
func estimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += len(t) / 4
	}
	if total == 0 {
		total = 1
	}
	return total
}
