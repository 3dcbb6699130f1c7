package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// AggregationRepository persists SentimentAggregations, TopicBaselines,
// and SentimentTrends, all of which are rewritten in place on every
// recomputation rather than appended to (spec 4.6's idempotent-replace
// semantics).
type AggregationRepository struct {
	db *sqlx.DB
}

// NewAggregationRepository builds an AggregationRepository.
func NewAggregationRepository(db *sqlx.DB) *AggregationRepository {
	return &AggregationRepository{db: db}
}

// Upsert replaces the snapshot for one (type, key, window) tuple.
func (r *AggregationRepository) Upsert(ctx context.Context, a types.SentimentAggregation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sentiment_aggregations (
			aggregation_type, aggregation_key, time_window,
			weighted_sentiment_score, sentiment_index,
			sentiment_positive, sentiment_negative, sentiment_neutral,
			emotion_anger, emotion_fear, emotion_trust, emotion_sadness, emotion_joy,
			emotion_disgust, emotion_surprise, emotion_neutral, emotion_adjusted_severity,
			mention_count, total_influence_weight, calculated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now())
		ON CONFLICT (aggregation_type, aggregation_key, time_window) DO UPDATE SET
			weighted_sentiment_score = EXCLUDED.weighted_sentiment_score,
			sentiment_index = EXCLUDED.sentiment_index,
			sentiment_positive = EXCLUDED.sentiment_positive,
			sentiment_negative = EXCLUDED.sentiment_negative,
			sentiment_neutral = EXCLUDED.sentiment_neutral,
			emotion_anger = EXCLUDED.emotion_anger, emotion_fear = EXCLUDED.emotion_fear,
			emotion_trust = EXCLUDED.emotion_trust, emotion_sadness = EXCLUDED.emotion_sadness,
			emotion_joy = EXCLUDED.emotion_joy, emotion_disgust = EXCLUDED.emotion_disgust,
			emotion_surprise = EXCLUDED.emotion_surprise, emotion_neutral = EXCLUDED.emotion_neutral,
			emotion_adjusted_severity = EXCLUDED.emotion_adjusted_severity,
			mention_count = EXCLUDED.mention_count,
			total_influence_weight = EXCLUDED.total_influence_weight,
			calculated_at = EXCLUDED.calculated_at
	`, string(a.AggregationType), a.AggregationKey, string(a.TimeWindow),
		a.WeightedSentimentScore, a.SentimentIndex,
		a.SentimentDistribution.Positive, a.SentimentDistribution.Negative, a.SentimentDistribution.Neutral,
		a.EmotionDistribution.Anger, a.EmotionDistribution.Fear, a.EmotionDistribution.Trust, a.EmotionDistribution.Sadness,
		a.EmotionDistribution.Joy, a.EmotionDistribution.Disgust, a.EmotionDistribution.Surprise, a.EmotionDistribution.Neutral,
		a.EmotionAdjustedSeverity, a.MentionCount, a.TotalInfluenceWeight,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert sentiment aggregation", err)
	}
	return nil
}

// Get reads back one aggregation snapshot.
func (r *AggregationRepository) Get(ctx context.Context, aggType types.AggregationType, key string, window types.TimeWindow) (types.SentimentAggregation, error) {
	var row struct {
		AggregationType string    `db:"aggregation_type"`
		AggregationKey  string    `db:"aggregation_key"`
		TimeWindow      string    `db:"time_window"`
		WeightedScore   float64   `db:"weighted_sentiment_score"`
		Index           float64   `db:"sentiment_index"`
		Positive        float64   `db:"sentiment_positive"`
		Negative        float64   `db:"sentiment_negative"`
		Neutral         float64   `db:"sentiment_neutral"`
		Anger           float64   `db:"emotion_anger"`
		Fear            float64   `db:"emotion_fear"`
		Trust           float64   `db:"emotion_trust"`
		Sadness         float64   `db:"emotion_sadness"`
		Joy             float64   `db:"emotion_joy"`
		Disgust         float64   `db:"emotion_disgust"`
		Surprise        float64   `db:"emotion_surprise"`
		EmotionNeutral  float64   `db:"emotion_neutral"`
		Severity        float64   `db:"emotion_adjusted_severity"`
		MentionCount    int       `db:"mention_count"`
		TotalInfluence  float64   `db:"total_influence_weight"`
		CalculatedAt    time.Time `db:"calculated_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT aggregation_type, aggregation_key, time_window,
			weighted_sentiment_score, sentiment_index, sentiment_positive, sentiment_negative, sentiment_neutral,
			emotion_anger, emotion_fear, emotion_trust, emotion_sadness, emotion_joy, emotion_disgust,
			emotion_surprise, emotion_neutral, emotion_adjusted_severity, mention_count, total_influence_weight, calculated_at
		FROM sentiment_aggregations
		WHERE aggregation_type = $1 AND aggregation_key = $2 AND time_window = $3
	`, string(aggType), key, string(window))
	if err != nil {
		return types.SentimentAggregation{}, apperrors.NewDatabaseError("get sentiment aggregation", err)
	}
	return types.SentimentAggregation{
		AggregationType: types.AggregationType(row.AggregationType),
		AggregationKey:  row.AggregationKey,
		TimeWindow:      types.TimeWindow(row.TimeWindow),
		WeightedSentimentScore: row.WeightedScore,
		SentimentIndex:         row.Index,
		SentimentDistribution:  types.SentimentDistribution{Positive: row.Positive, Negative: row.Negative, Neutral: row.Neutral},
		EmotionDistribution: types.EmotionDistribution{
			Anger: row.Anger, Fear: row.Fear, Trust: row.Trust, Sadness: row.Sadness,
			Joy: row.Joy, Disgust: row.Disgust, Surprise: row.Surprise, Neutral: row.EmotionNeutral,
		},
		EmotionAdjustedSeverity: row.Severity,
		MentionCount:            row.MentionCount,
		TotalInfluenceWeight:    row.TotalInfluence,
		CalculatedAt:            row.CalculatedAt,
	}, nil
}

// UpsertBaseline replaces a topic's rolling baseline.
func (r *AggregationRepository) UpsertBaseline(ctx context.Context, b types.TopicBaseline) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO topic_sentiment_baselines (topic_key, baseline_index, lookback_days, sample_size, calculated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (topic_key) DO UPDATE SET
			baseline_index = EXCLUDED.baseline_index, lookback_days = EXCLUDED.lookback_days,
			sample_size = EXCLUDED.sample_size, calculated_at = EXCLUDED.calculated_at
	`, b.TopicKey, b.BaselineIndex, b.LookbackDays, b.SampleSize)
	if err != nil {
		return apperrors.NewDatabaseError("upsert topic baseline", err)
	}
	return nil
}

// GetBaseline reads a topic's rolling baseline.
func (r *AggregationRepository) GetBaseline(ctx context.Context, topicKey string) (types.TopicBaseline, error) {
	var b types.TopicBaseline
	err := r.db.GetContext(ctx, &b, `
		SELECT topic_key, baseline_index, lookback_days, sample_size, calculated_at
		FROM topic_sentiment_baselines WHERE topic_key = $1
	`, topicKey)
	if err != nil {
		return types.TopicBaseline{}, apperrors.NewDatabaseError("get topic baseline", err)
	}
	return b, nil
}

// UpsertTrend replaces the period-over-period trend for an aggregation
// key.
func (r *AggregationRepository) UpsertTrend(ctx context.Context, t types.SentimentTrend) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sentiment_trends (
			aggregation_type, aggregation_key, current_index, previous_index,
			direction, magnitude, period_start, period_end
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (aggregation_type, aggregation_key) DO UPDATE SET
			current_index = EXCLUDED.current_index, previous_index = EXCLUDED.previous_index,
			direction = EXCLUDED.direction, magnitude = EXCLUDED.magnitude,
			period_start = EXCLUDED.period_start, period_end = EXCLUDED.period_end
	`, string(t.AggregationType), t.AggregationKey, t.CurrentIndex, t.PreviousIndex,
		string(t.Direction), t.Magnitude, t.PeriodStart, t.PeriodEnd)
	if err != nil {
		return apperrors.NewDatabaseError("upsert sentiment trend", err)
	}
	return nil
}

// MentionMember is one mention contributing to an aggregation, the
// projection the Sentiment Aggregator reads to recompute a window.
type MentionMember struct {
	SentimentScore      float64
	SentimentLabel      types.SentimentLabel
	InfluenceWeight     float64
	ConfidenceWeight    float64
	EmotionDistribution types.EmotionDistribution
}

// MembersForTopic returns every completed mention tagged with topicKey
// whose published_at falls within the window ending at now.
func (r *AggregationRepository) MembersForTopic(ctx context.Context, topicKey string, window time.Duration, now time.Time) ([]MentionMember, error) {
	type row = struct {
		SentimentScore   *float64 `db:"sentiment_score"`
		SentimentLabel   *string  `db:"sentiment_label"`
		InfluenceWeight  *float64 `db:"influence_weight"`
		ConfidenceWeight *float64 `db:"confidence_weight"`
		EmotionAnger     float64  `db:"emotion_anger"`
		EmotionFear      float64  `db:"emotion_fear"`
		EmotionTrust     float64  `db:"emotion_trust"`
		EmotionSadness   float64  `db:"emotion_sadness"`
		EmotionJoy       float64  `db:"emotion_joy"`
		EmotionDisgust   float64  `db:"emotion_disgust"`
		EmotionSurprise  float64  `db:"emotion_surprise"`
		EmotionNeutral   float64  `db:"emotion_neutral"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT m.sentiment_score, m.sentiment_label, m.influence_weight, m.confidence_weight,
			m.emotion_anger, m.emotion_fear, m.emotion_trust, m.emotion_sadness,
			m.emotion_joy, m.emotion_disgust, m.emotion_surprise, m.emotion_neutral
		FROM mentions m
		JOIN mention_topics mt ON mt.mention_id = m.id
		WHERE mt.topic_key = $1 AND m.processing_status = 'completed'
			AND m.published_at BETWEEN $2 AND $3
	`, topicKey, now.Add(-window), now)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select topic aggregation members", err)
	}

	return rowsToMembers(rows)
}

// MembersForIssue returns every completed mention linked to issueID via
// issue_mentions, for issue-type sentiment aggregation.
func (r *AggregationRepository) MembersForIssue(ctx context.Context, issueID string) ([]MentionMember, error) {
	type row = struct {
		SentimentScore   *float64 `db:"sentiment_score"`
		SentimentLabel   *string  `db:"sentiment_label"`
		InfluenceWeight  *float64 `db:"influence_weight"`
		ConfidenceWeight *float64 `db:"confidence_weight"`
		EmotionAnger     float64  `db:"emotion_anger"`
		EmotionFear      float64  `db:"emotion_fear"`
		EmotionTrust     float64  `db:"emotion_trust"`
		EmotionSadness   float64  `db:"emotion_sadness"`
		EmotionJoy       float64  `db:"emotion_joy"`
		EmotionDisgust   float64  `db:"emotion_disgust"`
		EmotionSurprise  float64  `db:"emotion_surprise"`
		EmotionNeutral   float64  `db:"emotion_neutral"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT m.sentiment_score, m.sentiment_label, m.influence_weight, m.confidence_weight,
			m.emotion_anger, m.emotion_fear, m.emotion_trust, m.emotion_sadness,
			m.emotion_joy, m.emotion_disgust, m.emotion_surprise, m.emotion_neutral
		FROM mentions m
		JOIN issue_mentions im ON im.mention_id = m.id
		WHERE im.issue_id = $1 AND m.processing_status = 'completed'
	`, issueID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select issue aggregation members", err)
	}
	return rowsToMembers(rows)
}

// DailyBucketRow is one day's mean sentiment index and sample size for a
// topic, the input aggregation.Baseline needs to compute a rolling
// baseline (spec 4.6's Baseline).
type DailyBucketRow struct {
	Day           time.Time
	MeanSentiment float64
	SampleSize    int
}

// DailyBucketsForTopic returns one row per calendar day over the trailing
// lookbackDays, averaging each completed mention's sentiment_score into
// spec 4.2's 0-100 sentiment_index scale.
func (r *AggregationRepository) DailyBucketsForTopic(ctx context.Context, topicKey string, lookbackDays int, now time.Time) ([]DailyBucketRow, error) {
	var rows []struct {
		Day           time.Time `db:"day"`
		MeanSentiment float64   `db:"mean_sentiment"`
		SampleSize    int       `db:"sample_size"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('day', m.published_at) AS day,
			avg((m.sentiment_score + 1) * 50) AS mean_sentiment,
			count(*) AS sample_size
		FROM mentions m
		JOIN mention_topics mt ON mt.mention_id = m.id
		WHERE mt.topic_key = $1 AND m.processing_status = 'completed'
			AND m.published_at >= $2
		GROUP BY day
		ORDER BY day
	`, topicKey, now.AddDate(0, 0, -lookbackDays))
	if err != nil {
		return nil, apperrors.NewDatabaseError("select topic daily sentiment buckets", err)
	}
	out := make([]DailyBucketRow, len(rows))
	for i, rr := range rows {
		out[i] = DailyBucketRow{Day: rr.Day, MeanSentiment: rr.MeanSentiment, SampleSize: rr.SampleSize}
	}
	return out, nil
}

func rowsToMembers(rows []struct {
	SentimentScore   *float64 `db:"sentiment_score"`
	SentimentLabel   *string  `db:"sentiment_label"`
	InfluenceWeight  *float64 `db:"influence_weight"`
	ConfidenceWeight *float64 `db:"confidence_weight"`
	EmotionAnger     float64  `db:"emotion_anger"`
	EmotionFear      float64  `db:"emotion_fear"`
	EmotionTrust     float64  `db:"emotion_trust"`
	EmotionSadness   float64  `db:"emotion_sadness"`
	EmotionJoy       float64  `db:"emotion_joy"`
	EmotionDisgust   float64  `db:"emotion_disgust"`
	EmotionSurprise  float64  `db:"emotion_surprise"`
	EmotionNeutral   float64  `db:"emotion_neutral"`
}) ([]MentionMember, error) {
	out := make([]MentionMember, 0, len(rows))
	for _, rr := range rows {
		if rr.SentimentScore == nil || rr.SentimentLabel == nil || rr.InfluenceWeight == nil || rr.ConfidenceWeight == nil {
			continue
		}
		out = append(out, MentionMember{
			SentimentScore:   *rr.SentimentScore,
			SentimentLabel:   types.SentimentLabel(*rr.SentimentLabel),
			InfluenceWeight:  *rr.InfluenceWeight,
			ConfidenceWeight: *rr.ConfidenceWeight,
			EmotionDistribution: types.EmotionDistribution{
				Anger: rr.EmotionAnger, Fear: rr.EmotionFear, Trust: rr.EmotionTrust, Sadness: rr.EmotionSadness,
				Joy: rr.EmotionJoy, Disgust: rr.EmotionDisgust, Surprise: rr.EmotionSurprise, Neutral: rr.EmotionNeutral,
			},
		})
	}
	return out, nil
}
