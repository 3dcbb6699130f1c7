// Package orchestrator implements the Batch Orchestrator (spec component
// C12): claims pending mentions under FOR UPDATE SKIP LOCKED, runs Topic
// Classifier and Sentiment Analyzer for each claimed mention concurrently
// via errgroup, and commits derived fields one mention at a time so a
// single failure never blocks its batch siblings (spec §4.4).
package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/embedding"
	"github.com/openpolicylabs/govintel/pkg/ratelimit"
	"github.com/openpolicylabs/govintel/pkg/sentiment"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
	"github.com/openpolicylabs/govintel/pkg/topic"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// MentionStore is the persistence surface the orchestrator needs from
// pkg/storage/postgres.MentionRepository.
type MentionStore interface {
	ClaimBatch(ctx context.Context, n int) ([]types.Mention, error)
	CompleteWithResults(ctx context.Context, m types.Mention) error
	MarkFailed(ctx context.Context, mentionID string, cause error) error
	InsertEmbedding(ctx context.Context, mentionID string, vector []float64) error
}

// TopicStore is the persistence surface the orchestrator needs from
// pkg/storage/postgres.TopicRepository.
type TopicStore interface {
	LinkMention(ctx context.Context, mentionID string, score types.TopicScore) error
}

// Locator resolves a mention's declared location to a normalized region
// label and confidence (the pipeline's Location label phase).
type Locator interface {
	Label(ctx context.Context, declaredLocation string) (label string, confidence float64)
}

// Options configures batch size, worker concurrency, and retry policy
// (spec §4.4's processing.* config keys).
type Options struct {
	BatchSize           int
	MaxSentimentWorkers int
	MaxAttempts         int
	RetryBaseDelay      time.Duration
}

// DefaultOptions matches the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:           150,
		MaxSentimentWorkers: 20,
		MaxAttempts:         3,
		RetryBaseDelay:      500 * time.Millisecond,
	}
}

// Orchestrator drives one claim/process/commit cycle.
type Orchestrator struct {
	mentions   MentionStore
	topics     TopicStore
	classifier *topic.Classifier
	analyzer   *sentiment.Analyzer
	embedder   embedding.Provider
	limiter    *ratelimit.Limiter
	locator    Locator
	options    Options
	logger     *logrus.Logger
}

// New builds an Orchestrator. locator may be nil, in which case
// location_label/location_confidence are left unset.
func New(mentions MentionStore, topics TopicStore, classifier *topic.Classifier, analyzer *sentiment.Analyzer, embedder embedding.Provider, limiter *ratelimit.Limiter, locator Locator, options Options, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		mentions: mentions, topics: topics, classifier: classifier, analyzer: analyzer,
		embedder: embedder, limiter: limiter, locator: locator, options: options, logger: logger,
	}
}

// Summary tallies one RunBatch call's outcome.
type Summary struct {
	Claimed   int
	Completed int
	Failed    int
}

// RunBatch claims up to options.BatchSize pending mentions and processes
// them to completion or failure. It returns (Summary{}, nil) when no
// mentions are pending.
func (o *Orchestrator) RunBatch(ctx context.Context) (Summary, error) {
	claimed, err := o.mentions.ClaimBatch(ctx, o.options.BatchSize)
	if err != nil {
		return Summary{}, err
	}
	if len(claimed) == 0 {
		return Summary{}, nil
	}

	summary := Summary{Claimed: len(claimed)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.options.MaxSentimentWorkers)

	results := make([]error, len(claimed))
	for i, m := range claimed {
		i, m := i, m
		g.Go(func() error {
			results[i] = o.processWithRetry(gctx, m)
			return nil
		})
	}
	_ = g.Wait() // per-mention errors are captured in results, never aborts siblings

	for i, m := range claimed {
		if results[i] != nil {
			summary.Failed++
			if err := o.mentions.MarkFailed(ctx, m.ID, results[i]); err != nil {
				o.logger.WithFields(logging.PipelineFields("orchestrator", "mark_failed").Error(err).ToLogrus()).
					Error("failed to record mention failure")
			}
			continue
		}
		summary.Completed++
	}

	o.logger.WithFields(logging.PipelineFields("orchestrator", "run_batch").
		Custom("claimed", summary.Claimed).Custom("completed", summary.Completed).Custom("failed", summary.Failed).ToLogrus()).
		Info("batch processed")

	return summary, nil
}

// processWithRetry runs process, retrying transient failures (network,
// rate-limit, timeout) up to MaxAttempts with exponential back-off.
// Semantic failures (validation) are terminal on the first attempt.
func (o *Orchestrator) processWithRetry(ctx context.Context, m types.Mention) error {
	delay := o.options.RetryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= o.options.MaxAttempts; attempt++ {
		lastErr = o.process(ctx, m)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == o.options.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func isTransient(err error) bool {
	return apperrors.IsType(err, apperrors.ErrorTypeNetwork) ||
		apperrors.IsType(err, apperrors.ErrorTypeRateLimit) ||
		apperrors.IsType(err, apperrors.ErrorTypeTimeout)
}

// process runs topic classification and sentiment analysis for one
// mention and writes every derived field back in a single repository
// call (spec §4.4 step 2).
func (o *Orchestrator) process(ctx context.Context, m types.Mention) error {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, "sentiment_analysis", estimateTokens(m.Text)); err != nil {
			return err
		}
	}

	vec, err := o.embedder.Embed(ctx, m.Text)
	if err != nil {
		return err
	}

	var topicScores []types.TopicScore
	var result *sentiment.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		topicScores = o.classifier.Classify(gctx, m.Text, vec.ToFloat64())
		return nil
	})
	g.Go(func() error {
		var analyzeErr error
		result, analyzeErr = o.analyzer.Analyze(gctx, sentiment.Input{
			Text: m.Text, SourceType: m.SourceType, Engagement: m.Engagement,
		})
		return analyzeErr
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m.ProcessingStatus = types.ProcessingCompleted
	m.SentimentLabel = &result.SentimentLabel
	m.SentimentScore = &result.SentimentScore
	m.Justification = &result.Justification
	m.PrimaryEmotionLabel = &result.PrimaryEmotionLabel
	m.EmotionScore = &result.EmotionScore
	m.EmotionDistribution = result.EmotionDistribution
	m.InfluenceWeight = &result.InfluenceWeight
	m.ConfidenceWeight = &result.ConfidenceWeight

	if o.locator != nil && m.DeclaredLocation != nil {
		label, confidence := o.locator.Label(ctx, *m.DeclaredLocation)
		if label != "" {
			m.LocationLabel = &label
			m.LocationConfidence = &confidence
		}
	}

	if err := o.mentions.CompleteWithResults(ctx, m); err != nil {
		return err
	}
	if err := o.mentions.InsertEmbedding(ctx, m.ID, vec.ToFloat64()); err != nil {
		return err
	}
	for _, score := range topicScores {
		if err := o.topics.LinkMention(ctx, m.ID, score); err != nil {
			return err
		}
	}
	return nil
}

func estimateTokens(text string) int {
	return len(text)/4 + 1
}
