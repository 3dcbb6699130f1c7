// Package ratelimit implements the Rate Limiter (spec component C3):
// multi-model token-per-minute budgets for LLM/embedding calls, with
// admission control and back-off. Redis holds the shared per-minute
// counters so multiple orchestrator workers admit against one budget;
// a local token-bucket fallback takes over when Redis is unreachable,
// and a circuit breaker stops hammering a down Redis instance.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
)

// Budget describes one model's admission policy.
type Budget struct {
	Model         string
	TokensPerMin  int
	RequestsPerMin int
}

// bucketKey namespaces a model's per-minute Redis counters by the UTC
// minute boundary, so a budget resets naturally without a separate TTL
// sweep.
func bucketKey(model string, kind string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", kind, model, now.UTC().Unix()/60)
}

// Limiter admits or rejects a call against a model's token and request
// budgets.
type Limiter struct {
	redisClient *redis.Client
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger

	budgets map[string]Budget

	fallbackMu sync.Mutex
	fallback   map[string]*rate.Limiter
}

// NewLimiter builds a Limiter. redisClient may be nil to force local-only
// fallback mode (used in tests and when Redis is deliberately disabled).
func NewLimiter(redisClient *redis.Client, budgets []Budget, logger *logrus.Logger) *Limiter {
	if logger == nil {
		logger = logrus.New()
	}

	budgetByModel := make(map[string]Budget, len(budgets))
	for _, b := range budgets {
		budgetByModel[b.Model] = b
	}

	settings := gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &Limiter{
		redisClient: redisClient,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		logger:      logger,
		budgets:     budgetByModel,
		fallback:    make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) localLimiter(model string, budget Budget) *rate.Limiter {
	l.fallbackMu.Lock()
	defer l.fallbackMu.Unlock()

	if lim, ok := l.fallback[model]; ok {
		return lim
	}

	perSecond := rate.Limit(float64(budget.RequestsPerMin) / 60.0)
	lim := rate.NewLimiter(perSecond, budget.RequestsPerMin)
	l.fallback[model] = lim
	return lim
}

// Admit blocks the caller's admission decision against model's budget: it
// consumes estimatedTokens from the shared Redis counter when Redis is
// reachable, or consumes one local token otherwise. Returns a
// RateLimitError (retryable) when the budget is exhausted.
func (l *Limiter) Admit(ctx context.Context, model string, estimatedTokens int) error {
	budget, ok := l.budgets[model]
	if !ok {
		return apperrors.NewValidationError(fmt.Sprintf("no rate limit budget configured for model %q", model))
	}

	if l.redisClient == nil {
		return l.admitLocal(ctx, model, budget)
	}

	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.admitRedis(ctx, model, budget, estimatedTokens)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			l.logger.WithFields(logging.PipelineFields("ratelimit", "admit").Custom("model", model).ToLogrus()).
				Warn("redis circuit open, falling back to local rate limiter")
			return l.admitLocal(ctx, model, budget)
		}
		return err
	}
	return nil
}

func (l *Limiter) admitRedis(ctx context.Context, model string, budget Budget, estimatedTokens int) error {
	now := time.Now()
	tokenKey := bucketKey(model, "tokens", now)
	requestKey := bucketKey(model, "requests", now)

	pipe := l.redisClient.TxPipeline()
	tokenCmd := pipe.IncrBy(ctx, tokenKey, int64(estimatedTokens))
	pipe.Expire(ctx, tokenKey, 90*time.Second)
	requestCmd := pipe.Incr(ctx, requestKey)
	pipe.Expire(ctx, requestKey, 90*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "rate limiter redis pipeline failed")
	}

	if tokenCmd.Val() > int64(budget.TokensPerMin) {
		return apperrors.NewRateLimitError(model)
	}
	if requestCmd.Val() > int64(budget.RequestsPerMin) {
		return apperrors.NewRateLimitError(model)
	}
	return nil
}

func (l *Limiter) admitLocal(ctx context.Context, model string, budget Budget) error {
	lim := l.localLimiter(model, budget)
	if !lim.Allow() {
		return apperrors.NewRateLimitError(model)
	}
	return nil
}

// Wait blocks (respecting ctx) until model's budget admits the call, used
// by callers willing to back off rather than fail fast.
func (l *Limiter) Wait(ctx context.Context, model string, estimatedTokens int) error {
	budget, ok := l.budgets[model]
	if !ok {
		return apperrors.NewValidationError(fmt.Sprintf("no rate limit budget configured for model %q", model))
	}

	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		err := l.Admit(ctx, model, estimatedTokens)
		if err == nil {
			return nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
			return err
		}

		select {
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), apperrors.ErrorTypeTimeout, fmt.Sprintf("rate limit wait cancelled for model %q", model))
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		_ = budget
	}
}
