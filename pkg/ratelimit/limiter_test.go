package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
)

func newTestLimiter(t *testing.T, budgets []Budget) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	return NewLimiter(client, budgets, logger), mr
}

func TestLimiter_AdmitsWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, []Budget{{Model: "claude-3", TokensPerMin: 10000, RequestsPerMin: 100}})

	if err := limiter.Admit(context.Background(), "claude-3", 500); err != nil {
		t.Fatalf("expected admission within budget, got error: %v", err)
	}
}

func TestLimiter_RejectsOverTokenBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, []Budget{{Model: "claude-3", TokensPerMin: 1000, RequestsPerMin: 100}})
	ctx := context.Background()

	if err := limiter.Admit(ctx, "claude-3", 600); err != nil {
		t.Fatalf("first call should be admitted: %v", err)
	}

	err := limiter.Admit(ctx, "claude-3", 600)
	if err == nil {
		t.Fatal("expected rate limit error once token budget is exceeded")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
		t.Errorf("expected rate limit error type, got %v", err)
	}
}

func TestLimiter_RejectsOverRequestBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, []Budget{{Model: "claude-3", TokensPerMin: 1000000, RequestsPerMin: 2}})
	ctx := context.Background()

	if err := limiter.Admit(ctx, "claude-3", 1); err != nil {
		t.Fatalf("first call should be admitted: %v", err)
	}
	if err := limiter.Admit(ctx, "claude-3", 1); err != nil {
		t.Fatalf("second call should be admitted: %v", err)
	}
	if err := limiter.Admit(ctx, "claude-3", 1); err == nil {
		t.Fatal("expected rate limit error on third call")
	}
}

func TestLimiter_UnknownModel(t *testing.T) {
	limiter, _ := newTestLimiter(t, []Budget{{Model: "claude-3", TokensPerMin: 1000, RequestsPerMin: 10}})

	err := limiter.Admit(context.Background(), "unknown-model", 100)
	if err == nil {
		t.Fatal("expected validation error for unconfigured model")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("expected validation error type, got %v", err)
	}
}

func TestLimiter_FallsBackToLocalWhenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // make Redis unreachable

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	limiter := NewLimiter(client, []Budget{{Model: "claude-3", TokensPerMin: 1000, RequestsPerMin: 10}}, logger)

	// Trip the breaker with repeated failed Redis calls.
	for i := 0; i < 3; i++ {
		_ = limiter.Admit(context.Background(), "claude-3", 1)
	}

	// Once open, Admit should fall back to the local limiter and still
	// succeed for a request within the local budget.
	if err := limiter.Admit(context.Background(), "claude-3", 1); err != nil {
		t.Fatalf("expected local fallback to admit request, got: %v", err)
	}
}

func TestLimiter_NilRedisUsesLocalOnly(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	limiter := NewLimiter(nil, []Budget{{Model: "claude-3", TokensPerMin: 1000, RequestsPerMin: 1}}, logger)

	if err := limiter.Admit(context.Background(), "claude-3", 1); err != nil {
		t.Fatalf("expected first local admission to succeed: %v", err)
	}
	if err := limiter.Admit(context.Background(), "claude-3", 1); err == nil {
		t.Fatal("expected second call to exceed the 1-request-per-minute local budget")
	}
}

func TestLimiter_WaitRetriesUntilAdmitted(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	limiter := NewLimiter(nil, []Budget{{Model: "claude-3", TokensPerMin: 1000, RequestsPerMin: 1}}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "claude-3", 1); err != nil {
		t.Fatalf("first wait should admit immediately: %v", err)
	}

	err := limiter.Wait(ctx, "claude-3", 1)
	if err == nil {
		t.Fatal("expected wait to time out against an exhausted single-request local budget")
	}
}
