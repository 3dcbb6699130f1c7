// Package aggregation implements the Sentiment Aggregator and the Trend
// & Baseline components (spec C16/C17): recomputing a weighted sentiment
// snapshot for a (type, key, window) tuple from its member mentions, and
// tracking how that snapshot moves period over period against a rolling
// historical baseline.
package aggregation

import (
	sharedmath "github.com/openpolicylabs/govintel/pkg/shared/math"
	"github.com/openpolicylabs/govintel/pkg/storage/postgres"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// DefaultTrendEpsilon is spec 4.6's trend_eps default.
const DefaultTrendEpsilon = 2.0

// DefaultLookbackDays is spec 4.6's baseline lookback_days default.
const DefaultLookbackDays = 30

// Snapshot computes a full SentimentAggregation over members, per spec
// 4.6's Aggregator formulas. It returns the zero-value scores (not an
// error) when members is empty, matching "if denominator is 0, return 0".
func Snapshot(members []postgres.MentionMember) types.SentimentAggregation {
	out := types.SentimentAggregation{MentionCount: len(members)}
	if len(members) == 0 {
		return out
	}

	var numerator, denominator, totalInfluence float64
	var positive, negative, neutral int
	emotionSum := types.EmotionDistribution{}

	for _, m := range members {
		w := m.InfluenceWeight * m.ConfidenceWeight
		numerator += m.SentimentScore * w
		denominator += w
		totalInfluence += m.InfluenceWeight

		switch m.SentimentLabel {
		case types.SentimentPositive:
			positive++
		case types.SentimentNegative:
			negative++
		default:
			neutral++
		}

		emotionSum.Anger += m.EmotionDistribution.Anger
		emotionSum.Fear += m.EmotionDistribution.Fear
		emotionSum.Trust += m.EmotionDistribution.Trust
		emotionSum.Sadness += m.EmotionDistribution.Sadness
		emotionSum.Joy += m.EmotionDistribution.Joy
		emotionSum.Disgust += m.EmotionDistribution.Disgust
		emotionSum.Surprise += m.EmotionDistribution.Surprise
		emotionSum.Neutral += m.EmotionDistribution.Neutral
	}

	if denominator > 0 {
		out.WeightedSentimentScore = numerator / denominator
	}
	out.SentimentIndex = sharedmath.Clamp((out.WeightedSentimentScore+1)*50, 0, 100)

	n := float64(len(members))
	out.SentimentDistribution = types.SentimentDistribution{
		Positive: float64(positive) / n,
		Negative: float64(negative) / n,
		Neutral:  float64(neutral) / n,
	}

	out.EmotionDistribution = normalizeEmotion(emotionSum)
	out.EmotionAdjustedSeverity = emotionAdjustedSeverity(out.SentimentIndex, out.EmotionDistribution)
	out.TotalInfluenceWeight = totalInfluence
	return out
}

// normalizeEmotion divides each emotion's running sum by the distribution
// total, so the mean re-normalizes to sum 1 (spec 4.6).
func normalizeEmotion(sum types.EmotionDistribution) types.EmotionDistribution {
	total := sum.Sum()
	if total == 0 {
		return types.EmotionDistribution{}
	}
	return types.EmotionDistribution{
		Anger: sum.Anger / total, Fear: sum.Fear / total, Trust: sum.Trust / total,
		Sadness: sum.Sadness / total, Joy: sum.Joy / total, Disgust: sum.Disgust / total,
		Surprise: sum.Surprise / total, Neutral: sum.Neutral / total,
	}
}

// emotionAdjustedSeverity implements spec 4.6's penalty/relief formula:
// base = 100 - sentiment_index; + (anger+fear+disgust+sadness)*20 penalty;
// - (joy+trust)*10 relief; clamped to [0, 100].
func emotionAdjustedSeverity(sentimentIndex float64, emotions types.EmotionDistribution) float64 {
	base := 100 - sentimentIndex
	penalty := (emotions.Anger + emotions.Fear + emotions.Disgust + emotions.Sadness) * 20
	relief := (emotions.Joy + emotions.Trust) * 10
	return sharedmath.Clamp(base+penalty-relief, 0, 100)
}
