package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MentionsProcessedTotal counts mentions that completed the orchestrator's
// process/commit step successfully.
var MentionsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "govintel_mentions_processed_total",
	Help: "Total number of mentions successfully processed to completion.",
})

// MentionsFailedTotal counts mentions that exhausted retries or hit a
// terminal error, labeled by error category.
var MentionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "govintel_mentions_failed_total",
	Help: "Total number of mentions that failed processing, by error type.",
}, []string{"error_type"})

// SentimentAnalysisDuration times the Sentiment Analyzer's end-to-end
// Analyze call per mention.
var SentimentAnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "govintel_sentiment_analysis_duration_seconds",
	Help:    "Duration of a single mention's sentiment analysis.",
	Buckets: prometheus.DefBuckets,
})

// EmbeddingDuration times embedding provider calls.
var EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "govintel_embedding_duration_seconds",
	Help:    "Duration of a single embedding provider call.",
	Buckets: prometheus.DefBuckets,
})

// IssuesCreatedTotal counts new Issues seeded from mention clusters.
var IssuesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "govintel_issues_created_total",
	Help: "Total number of new issues created by the Issue Detection Engine.",
})

// IssuesAttachedTotal counts cluster-to-existing-issue attachments.
var IssuesAttachedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "govintel_issues_attached_total",
	Help: "Total number of clusters attached to an existing issue.",
})

// AggregationDuration times one (type, key, window) aggregation recompute.
var AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "govintel_aggregation_duration_seconds",
	Help:    "Duration of a single sentiment aggregation recompute.",
	Buckets: prometheus.DefBuckets,
})

// CyclePhaseDuration times each phase of a cycle driver run, labeled by
// phase name.
var CyclePhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "govintel_cycle_phase_duration_seconds",
	Help:    "Duration of each cycle phase.",
	Buckets: prometheus.DefBuckets,
}, []string{"phase"})

// RateLimiterRejectionsTotal counts Admit/Wait calls that were denied or
// timed out, labeled by model.
var RateLimiterRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "govintel_rate_limiter_rejections_total",
	Help: "Total number of rate limiter admission failures, by model.",
}, []string{"model"})

// RecordMentionProcessed increments the successful-mention counter.
func RecordMentionProcessed() {
	MentionsProcessedTotal.Inc()
}

// RecordMentionFailed increments the failed-mention counter for errorType.
func RecordMentionFailed(errorType string) {
	MentionsFailedTotal.WithLabelValues(errorType).Inc()
}

// RecordSentimentAnalysis observes a sentiment analysis call's duration.
func RecordSentimentAnalysis(d time.Duration) {
	SentimentAnalysisDuration.Observe(d.Seconds())
}

// RecordEmbedding observes an embedding call's duration.
func RecordEmbedding(d time.Duration) {
	EmbeddingDuration.Observe(d.Seconds())
}

// RecordIssueCreated increments the new-issue counter.
func RecordIssueCreated() {
	IssuesCreatedTotal.Inc()
}

// RecordIssueAttached increments the cluster-attached counter.
func RecordIssueAttached() {
	IssuesAttachedTotal.Inc()
}

// RecordAggregation observes an aggregation recompute's duration.
func RecordAggregation(d time.Duration) {
	AggregationDuration.Observe(d.Seconds())
}

// RecordCyclePhase observes a cycle phase's duration.
func RecordCyclePhase(phase string, d time.Duration) {
	CyclePhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordRateLimitRejection increments the rejection counter for model.
func RecordRateLimitRejection(model string) {
	RateLimiterRejectionsTotal.WithLabelValues(model).Inc()
}
