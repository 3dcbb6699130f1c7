package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestRecordMentionProcessed(t *testing.T) {
	initial := testutil.ToFloat64(MentionsProcessedTotal)
	RecordMentionProcessed()
	after := testutil.ToFloat64(MentionsProcessedTotal)
	assert.Equal(t, initial+1.0, after)
}

func TestRecordMentionFailed(t *testing.T) {
	initial := testutil.ToFloat64(MentionsFailedTotal.WithLabelValues("network"))
	RecordMentionFailed("network")
	after := testutil.ToFloat64(MentionsFailedTotal.WithLabelValues("network"))
	assert.Equal(t, initial+1.0, after)
}

func TestRecordSentimentAnalysis(t *testing.T) {
	RecordSentimentAnalysis(250 * time.Millisecond)

	metric := &dto.Metric{}
	err := SentimentAnalysisDuration.Write(metric)
	assert.NoError(t, err)
	assert.True(t, metric.GetHistogram().GetSampleCount() > 0)
}

func TestRecordIssueCreatedAndAttached(t *testing.T) {
	initialCreated := testutil.ToFloat64(IssuesCreatedTotal)
	initialAttached := testutil.ToFloat64(IssuesAttachedTotal)

	RecordIssueCreated()
	RecordIssueAttached()

	assert.Equal(t, initialCreated+1.0, testutil.ToFloat64(IssuesCreatedTotal))
	assert.Equal(t, initialAttached+1.0, testutil.ToFloat64(IssuesAttachedTotal))
}

func TestRecordCyclePhase(t *testing.T) {
	before := &dto.Metric{}
	_ = CyclePhaseDuration.WithLabelValues("issue_detection").(prometheus.Histogram).Write(before)
	initial := before.GetHistogram().GetSampleCount()
	RecordCyclePhase("issue_detection", 1500*time.Millisecond)
	metric := &dto.Metric{}
	err := CyclePhaseDuration.WithLabelValues("issue_detection").(prometheus.Histogram).Write(metric)
	assert.NoError(t, err)
	assert.True(t, metric.GetHistogram().GetSampleCount() > 0)
	_ = initial
}

func TestRecordRateLimitRejection(t *testing.T) {
	initial := testutil.ToFloat64(RateLimiterRejectionsTotal.WithLabelValues("gpt-4"))
	RecordRateLimitRejection("gpt-4")
	after := testutil.ToFloat64(RateLimiterRejectionsTotal.WithLabelValues("gpt-4"))
	assert.Equal(t, initial+1.0, after)
}
