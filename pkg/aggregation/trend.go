package aggregation

import (
	"math"
	"time"

	"github.com/openpolicylabs/govintel/pkg/types"
)

// Trend computes the period-over-period delta between two consecutive,
// equal-length windows (spec 4.6).
func Trend(aggType types.AggregationType, key string, current, previous types.SentimentAggregation, periodStart, periodEnd time.Time, trendEps float64) types.SentimentTrend {
	delta := current.SentimentIndex - previous.SentimentIndex
	return types.SentimentTrend{
		AggregationType: aggType,
		AggregationKey:  key,
		CurrentIndex:    current.SentimentIndex,
		PreviousIndex:   previous.SentimentIndex,
		Direction:       types.TrendDirectionForDelta(delta, trendEps),
		Magnitude:       math.Abs(delta),
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
	}
}

// DailyBucket is one day's mean sentiment_index, the unit Baseline
// averages over lookbackDays.
type DailyBucket struct {
	Day            time.Time
	MeanSentiment  float64
	SampleSize     int
}

// Baseline computes a topic's rolling baseline as the mean of daily
// sentiment_index buckets over lookbackDays (spec 4.6).
func Baseline(topicKey string, buckets []DailyBucket, lookbackDays int) types.TopicBaseline {
	if len(buckets) == 0 {
		return types.TopicBaseline{TopicKey: topicKey, LookbackDays: lookbackDays}
	}
	var sum float64
	var samples int
	for _, b := range buckets {
		sum += b.MeanSentiment
		samples += b.SampleSize
	}
	return types.TopicBaseline{
		TopicKey:      topicKey,
		BaselineIndex: sum / float64(len(buckets)),
		LookbackDays:  lookbackDays,
		SampleSize:    samples,
	}
}
