package types

import "time"

// AggregationType is what a SentimentAggregation is keyed against.
type AggregationType string

const (
	AggregationTopic  AggregationType = "topic"
	AggregationIssue  AggregationType = "issue"
	AggregationEntity AggregationType = "entity"
)

// TimeWindow is one of the fixed aggregation window sizes.
type TimeWindow string

const (
	Window15m TimeWindow = "15m"
	Window1h  TimeWindow = "1h"
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
	Window30d TimeWindow = "30d"
)

// Duration returns the wall-clock length of a TimeWindow.
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case Window15m:
		return 15 * time.Minute
	case Window1h:
		return time.Hour
	case Window24h:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// SentimentAggregation is a precomputed snapshot for one
// (type, key, window) tuple, rewritten in place on every recomputation.
type SentimentAggregation struct {
	AggregationType AggregationType `db:"aggregation_type" json:"aggregation_type" validate:"required"`
	AggregationKey  string          `db:"aggregation_key" json:"aggregation_key" validate:"required"`
	TimeWindow      TimeWindow      `db:"time_window" json:"time_window" validate:"required"`

	WeightedSentimentScore  float64               `db:"weighted_sentiment_score" json:"weighted_sentiment_score" validate:"gte=-1,lte=1"`
	SentimentIndex          float64               `db:"sentiment_index" json:"sentiment_index" validate:"gte=0,lte=100"`
	SentimentDistribution   SentimentDistribution `db:"-" json:"sentiment_distribution"`
	EmotionDistribution     EmotionDistribution   `db:"-" json:"emotion_distribution"`
	EmotionAdjustedSeverity float64               `db:"emotion_adjusted_severity" json:"emotion_adjusted_severity" validate:"gte=0,lte=100"`

	MentionCount         int     `db:"mention_count" json:"mention_count" validate:"gte=0"`
	TotalInfluenceWeight float64 `db:"total_influence_weight" json:"total_influence_weight" validate:"gte=0"`

	CalculatedAt time.Time `db:"calculated_at" json:"calculated_at"`
}

// TopicBaseline is a topic's rolling historical sentiment mean.
type TopicBaseline struct {
	TopicKey         string    `db:"topic_key" json:"topic_key" validate:"required"`
	BaselineIndex    float64   `db:"baseline_index" json:"baseline_index" validate:"gte=0,lte=100"`
	LookbackDays     int       `db:"lookback_days" json:"lookback_days" validate:"required,gt=0"`
	SampleSize       int       `db:"sample_size" json:"sample_size" validate:"gte=0"`
	CalculatedAt     time.Time `db:"calculated_at" json:"calculated_at"`
}

// NormalizedScore applies the baseline-relative normalization from spec
// 4.6: clamp(50 + (current - baseline), 0, 100).
func (b *TopicBaseline) NormalizedScore(currentIndex float64) float64 {
	n := 50 + (currentIndex - b.BaselineIndex)
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}

// TrendDirection classifies a period-over-period sentiment delta.
type TrendDirection string

const (
	TrendImproving    TrendDirection = "improving"
	TrendDeteriorating TrendDirection = "deteriorating"
	TrendStable       TrendDirection = "stable"
)

// SentimentTrend is the period-over-period delta for one aggregation key.
type SentimentTrend struct {
	AggregationType AggregationType `db:"aggregation_type" json:"aggregation_type" validate:"required"`
	AggregationKey  string          `db:"aggregation_key" json:"aggregation_key" validate:"required"`

	CurrentIndex  float64        `db:"current_index" json:"current_index" validate:"gte=0,lte=100"`
	PreviousIndex float64        `db:"previous_index" json:"previous_index" validate:"gte=0,lte=100"`
	Direction     TrendDirection `db:"direction" json:"direction"`
	Magnitude     float64        `db:"magnitude" json:"magnitude" validate:"gte=0"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`
}

// TrendDirectionForDelta classifies current-previous per spec 4.6's
// default trend_eps of 2.
func TrendDirectionForDelta(delta, trendEps float64) TrendDirection {
	switch {
	case delta > trendEps:
		return TrendImproving
	case delta < -trendEps:
		return TrendDeteriorating
	default:
		return TrendStable
	}
}
