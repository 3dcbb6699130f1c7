// Package postgres implements the storage repositories (spec component
// C9's persistence layer) against a *sqlx.DB, in the idiom
// internal/config.Store already establishes: sqlx struct scanning,
// explicit SQL, apperrors wrapping on every database call.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/dedup"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// mentionRow mirrors the mentions table; types.Mention's Engagement and
// EmotionDistribution are flattened into scalar columns here and
// reassembled in toDomain.
type mentionRow struct {
	ID               string     `db:"id"`
	Text             string     `db:"text"`
	PublishedAt      time.Time  `db:"published_at"`
	Platform         string     `db:"platform"`
	SourceType       string     `db:"source_type"`
	URL              *string    `db:"url"`
	NormalizedURL    *string    `db:"normalized_url"`
	NormalizedText   *string    `db:"normalized_text"`
	Likes            *int64     `db:"likes"`
	Shares           *int64     `db:"shares"`
	Comments         *int64     `db:"comments"`
	Reach            *int64     `db:"reach"`
	UserHandle       *string    `db:"user_handle"`
	DeclaredLocation *string    `db:"declared_location"`
	OwningOperatorID string     `db:"owning_operator_id"`

	ProcessingStatus string     `db:"processing_status"`
	StartedAt        *time.Time `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	ErrorText        *string    `db:"error_text"`

	SentimentLabel      *string  `db:"sentiment_label"`
	SentimentScore      *float64 `db:"sentiment_score"`
	Justification       *string  `db:"justification"`
	PrimaryEmotionLabel *string  `db:"primary_emotion_label"`
	EmotionScore        *float64 `db:"emotion_score"`
	EmotionAnger        float64  `db:"emotion_anger"`
	EmotionFear         float64  `db:"emotion_fear"`
	EmotionTrust        float64  `db:"emotion_trust"`
	EmotionSadness      float64  `db:"emotion_sadness"`
	EmotionJoy          float64  `db:"emotion_joy"`
	EmotionDisgust      float64  `db:"emotion_disgust"`
	EmotionSurprise     float64  `db:"emotion_surprise"`
	EmotionNeutral      float64  `db:"emotion_neutral"`
	InfluenceWeight     *float64 `db:"influence_weight"`
	ConfidenceWeight    *float64 `db:"confidence_weight"`
	LocationLabel       *string  `db:"location_label"`
	LocationConfidence  *float64 `db:"location_confidence"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *mentionRow) toDomain() types.Mention {
	m := types.Mention{
		ID:               r.ID,
		Text:             r.Text,
		PublishedAt:      r.PublishedAt,
		Platform:         r.Platform,
		SourceType:       types.SourceType(r.SourceType),
		UserHandle:       r.UserHandle,
		DeclaredLocation: r.DeclaredLocation,
		OwningOperatorID: r.OwningOperatorID,
		ProcessingStatus: types.ProcessingStatus(r.ProcessingStatus),
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		ErrorText:        r.ErrorText,
		Justification:        r.Justification,
		PrimaryEmotionLabel:  r.PrimaryEmotionLabel,
		EmotionScore:         r.EmotionScore,
		InfluenceWeight:      r.InfluenceWeight,
		ConfidenceWeight:     r.ConfidenceWeight,
		LocationLabel:        r.LocationLabel,
		LocationConfidence:   r.LocationConfidence,
		Engagement: types.Engagement{
			Likes: r.Likes, Shares: r.Shares, Comments: r.Comments, Reach: r.Reach,
		},
		EmotionDistribution: types.EmotionDistribution{
			Anger: r.EmotionAnger, Fear: r.EmotionFear, Trust: r.EmotionTrust,
			Sadness: r.EmotionSadness, Joy: r.EmotionJoy, Disgust: r.EmotionDisgust,
			Surprise: r.EmotionSurprise, Neutral: r.EmotionNeutral,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.SentimentLabel != nil {
		label := types.SentimentLabel(*r.SentimentLabel)
		m.SentimentLabel = &label
	}
	m.SentimentScore = r.SentimentScore
	return m
}

// MentionRepository persists Mentions and backs the Deduplication
// Service's WindowSource.
type MentionRepository struct {
	db *sqlx.DB
}

// NewMentionRepository builds a MentionRepository.
func NewMentionRepository(db *sqlx.DB) *MentionRepository {
	return &MentionRepository{db: db}
}

var _ dedup.WindowSource = (*MentionRepository)(nil)

// Insert creates a pending Mention row plus its engagement/URL fields,
// returning the generated ID.
func (r *MentionRepository) Insert(ctx context.Context, m types.Mention, url string) (string, error) {
	normURL := dedup.NormalizeURL(url)
	normText := dedup.NormalizeText(m.Text)

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mentions (
			text, published_at, platform, source_type, url, normalized_url, normalized_text,
			likes, shares, comments, reach, user_handle, declared_location,
			owning_operator_id, processing_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`, m.Text, m.PublishedAt, m.Platform, string(m.SourceType), nullIfEmpty(url), normURL, normText,
		m.Engagement.Likes, m.Engagement.Shares, m.Engagement.Comments, m.Engagement.Reach,
		m.UserHandle, m.DeclaredLocation, m.OwningOperatorID, string(types.ProcessingPending),
	).Scan(&id)
	if err != nil {
		return "", apperrors.NewDatabaseError("insert mention", err)
	}
	return id, nil
}

// RecordsSince implements dedup.WindowSource against the mentions table.
func (r *MentionRepository) RecordsSince(ctx context.Context, since time.Time) ([]dedup.ExistingRecord, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT normalized_url, normalized_text, published_at
		FROM mentions
		WHERE published_at >= $1
	`, since)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select mentions window", err)
	}
	defer rows.Close()

	var out []dedup.ExistingRecord
	for rows.Next() {
		var normURL, normText *string
		var publishedAt time.Time
		if err := rows.Scan(&normURL, &normText, &publishedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan mention window row", err)
		}
		rec := dedup.ExistingRecord{PublishedAt: publishedAt}
		if normURL != nil {
			rec.NormalizedURL = *normURL
		}
		if normText != nil {
			rec.NormalizedText = *normText
		}
		out = append(out, rec)
	}
	return out, nil
}

// ClaimBatch atomically claims up to n pending mentions for processing,
// using FOR UPDATE SKIP LOCKED so concurrent Batch Orchestrator workers
// never contend on the same rows (spec §5).
func (r *MentionRepository) ClaimBatch(ctx context.Context, n int) ([]types.Mention, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin claim transaction", err)
	}
	defer tx.Rollback()

	var rows []mentionRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT id, text, published_at, platform, source_type, url, normalized_url, normalized_text,
			likes, shares, comments, reach, user_handle, declared_location, owning_operator_id,
			processing_status, started_at, completed_at, error_text,
			sentiment_label, sentiment_score, justification, primary_emotion_label, emotion_score,
			emotion_anger, emotion_fear, emotion_trust, emotion_sadness, emotion_joy, emotion_disgust,
			emotion_surprise, emotion_neutral, influence_weight, confidence_weight,
			location_label, location_confidence, created_at, updated_at
		FROM mentions
		WHERE processing_status = 'pending'
		ORDER BY published_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, n)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select claimable mentions", err)
	}
	if len(rows) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE mentions SET processing_status = 'processing', started_at = now(), updated_at = now()
		WHERE id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return nil, apperrors.NewDatabaseError("mark mentions processing", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError("commit claim transaction", err)
	}

	out := make([]types.Mention, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
		out[i].ProcessingStatus = types.ProcessingInProgress
	}
	return out, nil
}

// CompleteWithResults writes back the derived sentiment/emotion/location
// fields and marks a mention completed.
func (r *MentionRepository) CompleteWithResults(ctx context.Context, m types.Mention) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mentions SET
			processing_status = $2, completed_at = now(), updated_at = now(),
			sentiment_label = $3, sentiment_score = $4, justification = $5,
			primary_emotion_label = $6, emotion_score = $7,
			emotion_anger = $8, emotion_fear = $9, emotion_trust = $10, emotion_sadness = $11,
			emotion_joy = $12, emotion_disgust = $13, emotion_surprise = $14, emotion_neutral = $15,
			influence_weight = $16, confidence_weight = $17,
			location_label = $18, location_confidence = $19
		WHERE id = $1
	`, m.ID, string(types.ProcessingCompleted), m.SentimentLabel, m.SentimentScore, m.Justification,
		m.PrimaryEmotionLabel, m.EmotionScore,
		m.EmotionDistribution.Anger, m.EmotionDistribution.Fear, m.EmotionDistribution.Trust, m.EmotionDistribution.Sadness,
		m.EmotionDistribution.Joy, m.EmotionDistribution.Disgust, m.EmotionDistribution.Surprise, m.EmotionDistribution.Neutral,
		m.InfluenceWeight, m.ConfidenceWeight, m.LocationLabel, m.LocationConfidence,
	)
	if err != nil {
		return apperrors.NewDatabaseError("complete mention", err)
	}
	return nil
}

// MarkFailed records a processing failure without retrying automatically;
// dead-letter inspection (cmd/govintel's -list-failed) reads error_text
// back through ListFailed.
func (r *MentionRepository) MarkFailed(ctx context.Context, mentionID string, cause error) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mentions SET processing_status = 'failed', error_text = $2, updated_at = now()
		WHERE id = $1
	`, mentionID, apperrors.SafeErrorMessage(cause))
	if err != nil {
		return apperrors.NewDatabaseError("mark mention failed", err)
	}
	return nil
}

// ListFailed returns the most recent failed mentions, for dead-letter
// inspection and manual requeue.
func (r *MentionRepository) ListFailed(ctx context.Context, limit int) ([]types.Mention, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []mentionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, text, published_at, platform, source_type, url, normalized_url, normalized_text,
			likes, shares, comments, reach, user_handle, declared_location, owning_operator_id,
			processing_status, started_at, completed_at, error_text,
			sentiment_label, sentiment_score, justification, primary_emotion_label, emotion_score,
			emotion_anger, emotion_fear, emotion_trust, emotion_sadness, emotion_joy, emotion_disgust,
			emotion_surprise, emotion_neutral, influence_weight, confidence_weight,
			location_label, location_confidence, created_at, updated_at
		FROM mentions
		WHERE processing_status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list failed mentions", err)
	}
	out := make([]types.Mention, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Requeue resets a failed mention back to pending so the next cycle
// picks it up again.
func (r *MentionRepository) Requeue(ctx context.Context, mentionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mentions SET processing_status = 'pending', error_text = NULL, updated_at = now()
		WHERE id = $1
	`, mentionID)
	if err != nil {
		return apperrors.NewDatabaseError("requeue mention", err)
	}
	return nil
}

// InsertEmbedding persists a mention's dense vector representation.
func (r *MentionRepository) InsertEmbedding(ctx context.Context, mentionID string, vector []float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mention_embeddings (mention_id, vector, dimension)
		VALUES ($1, $2, $3)
		ON CONFLICT (mention_id) DO UPDATE SET vector = EXCLUDED.vector, dimension = EXCLUDED.dimension
	`, mentionID, pq.Array(vector), len(vector))
	if err != nil {
		return apperrors.NewDatabaseError("insert mention embedding", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
