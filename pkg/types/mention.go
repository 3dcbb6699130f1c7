// Package types holds the persistence-agnostic domain model shared by
// every component of the pipeline: mentions, topics, issues, and the
// aggregation snapshots derived from them.
package types

import "time"

// ProcessingStatus is a Mention's position in the Batch Orchestrator's
// claim/process/commit lifecycle.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// SourceType classifies who published a Mention.
type SourceType string

const (
	SourceNationalMedia       SourceType = "national_media"
	SourceVerified            SourceType = "verified"
	SourceCitizen             SourceType = "citizen"
	SourceBroadcast           SourceType = "broadcast"
	SourcePresidencyStatement SourceType = "presidency_statement"
)

// SentimentLabel is the banded sentiment classification derived from
// SentimentScore per the mapping in the Sentiment Analyzer.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// Engagement holds optional public engagement counters for a Mention.
type Engagement struct {
	Likes    *int64 `db:"likes" json:"likes,omitempty" validate:"omitempty,gte=0"`
	Shares   *int64 `db:"shares" json:"shares,omitempty" validate:"omitempty,gte=0"`
	Comments *int64 `db:"comments" json:"comments,omitempty" validate:"omitempty,gte=0"`
	Reach    *int64 `db:"reach" json:"reach,omitempty" validate:"omitempty,gte=0"`
}

// EmotionDistribution is a fixed-vocabulary probability distribution over
// Plutchik-style primary emotions; entries sum to at most 1.
type EmotionDistribution struct {
	Anger    float64 `json:"anger" validate:"gte=0,lte=1"`
	Fear     float64 `json:"fear" validate:"gte=0,lte=1"`
	Trust    float64 `json:"trust" validate:"gte=0,lte=1"`
	Sadness  float64 `json:"sadness" validate:"gte=0,lte=1"`
	Joy      float64 `json:"joy" validate:"gte=0,lte=1"`
	Disgust  float64 `json:"disgust" validate:"gte=0,lte=1"`
	Surprise float64 `json:"surprise" validate:"gte=0,lte=1"`
	Neutral  float64 `json:"neutral" validate:"gte=0,lte=1"`
}

// Sum returns the total probability mass across every emotion.
func (d EmotionDistribution) Sum() float64 {
	return d.Anger + d.Fear + d.Trust + d.Sadness + d.Joy + d.Disgust + d.Surprise + d.Neutral
}

// Mention is a single captured piece of content moving through the
// pipeline.
type Mention struct {
	ID          string     `db:"id" json:"id" validate:"required,uuid"`
	Text        string     `db:"text" json:"text" validate:"required"`
	PublishedAt time.Time  `db:"published_at" json:"published_at" validate:"required"`
	Platform    string     `db:"platform" json:"platform" validate:"required"`
	SourceType  SourceType `db:"source_type" json:"source_type" validate:"required,oneof=national_media verified citizen broadcast presidency_statement"`
	Engagement  Engagement `db:"-" json:"engagement"`

	UserHandle        *string `db:"user_handle" json:"user_handle,omitempty"`
	DeclaredLocation   *string `db:"declared_location" json:"declared_location,omitempty"`
	OwningOperatorID   string  `db:"owning_operator_id" json:"owning_operator_id" validate:"required"`

	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	StartedAt        *time.Time       `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	ErrorText        *string          `db:"error_text" json:"error_text,omitempty"`

	SentimentLabel      *SentimentLabel      `db:"sentiment_label" json:"sentiment_label,omitempty"`
	SentimentScore       *float64            `db:"sentiment_score" json:"sentiment_score,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Justification        *string             `db:"justification" json:"justification,omitempty"`
	PrimaryEmotionLabel   *string             `db:"primary_emotion_label" json:"primary_emotion_label,omitempty"`
	EmotionScore          *float64            `db:"emotion_score" json:"emotion_score,omitempty" validate:"omitempty,gte=0,lte=1"`
	EmotionDistribution   EmotionDistribution `db:"-" json:"emotion_distribution"`
	InfluenceWeight       *float64            `db:"influence_weight" json:"influence_weight,omitempty" validate:"omitempty,gte=1,lte=5"`
	ConfidenceWeight      *float64            `db:"confidence_weight" json:"confidence_weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	LocationLabel         *string             `db:"location_label" json:"location_label,omitempty"`
	LocationConfidence    *float64            `db:"location_confidence" json:"location_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsComplete reports whether the Mention has finished processing with all
// derived fields present, per the data model invariant "completed =>
// sentiment_label is non-null and embedding exists" (the embedding half
// of that invariant is enforced by the caller, which holds the Embedding
// separately).
func (m *Mention) IsComplete() bool {
	return m.ProcessingStatus == ProcessingCompleted && m.SentimentLabel != nil
}

// SentimentLabelForScore maps a sentiment score to its band, matching the
// Sentiment Analyzer's score->label mapping (spec 4.3).
func SentimentLabelForScore(score float64) SentimentLabel {
	switch {
	case score >= 0.15:
		return SentimentPositive
	case score <= -0.15:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Embedding is the dense vector representation of a Mention, computed
// once and never mutated afterward.
type Embedding struct {
	MentionID string    `db:"mention_id" json:"mention_id" validate:"required,uuid"`
	Vector    []float64 `db:"-" json:"vector" validate:"required"`
	Dimension int       `db:"dimension" json:"dimension" validate:"required,gt=0"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
