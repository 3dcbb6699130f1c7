package types

import "time"

// IssueState is an Issue's lifecycle stage (spec 4.5 state machine).
type IssueState string

const (
	IssueEmerging    IssueState = "emerging"
	IssueActive      IssueState = "active"
	IssueEscalated   IssueState = "escalated"
	IssueStabilizing IssueState = "stabilizing"
	IssueResolved    IssueState = "resolved"
	IssueArchived    IssueState = "archived"
)

// PriorityBand buckets an Issue's numeric PriorityScore.
type PriorityBand string

const (
	PriorityCritical PriorityBand = "critical"
	PriorityHigh     PriorityBand = "high"
	PriorityMedium   PriorityBand = "medium"
	PriorityLow      PriorityBand = "low"
)

// PriorityBandForScore buckets a 0-100 priority score per spec 4.5.
func PriorityBandForScore(score float64) PriorityBand {
	switch {
	case score >= 80:
		return PriorityCritical
	case score >= 60:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// SentimentDistribution holds label shares that sum to 1.
type SentimentDistribution struct {
	Positive float64 `json:"positive" validate:"gte=0,lte=1"`
	Negative float64 `json:"negative" validate:"gte=0,lte=1"`
	Neutral  float64 `json:"neutral" validate:"gte=0,lte=1"`
}

// Issue is a cluster of related mentions within a single primary topic.
type Issue struct {
	ID             string     `db:"id" json:"id" validate:"required,uuid"`
	Slug           string     `db:"slug" json:"slug" validate:"required"`
	Label          string     `db:"label" json:"label" validate:"required,max=500"`
	AutoTitle      string     `db:"auto_title" json:"auto_title" validate:"max=100"`
	PrimaryTopicKey string    `db:"primary_topic_key" json:"primary_topic_key" validate:"required"`
	State          IssueState `db:"state" json:"state" validate:"required"`

	StartTime    time.Time  `db:"start_time" json:"start_time"`
	LastActivity time.Time  `db:"last_activity" json:"last_activity"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`

	MentionCount         int     `db:"mention_count" json:"mention_count" validate:"gte=0"`
	VolumeCurrentWindow  int     `db:"volume_current_window" json:"volume_current_window" validate:"gte=0"`
	VolumePreviousWindow int     `db:"volume_previous_window" json:"volume_previous_window" validate:"gte=0"`
	VelocityPercent      float64 `db:"velocity_percent" json:"velocity_percent"`
	VelocityScore        float64 `db:"velocity_score" json:"velocity_score" validate:"gte=0,lte=100"`

	WeightedSentimentScore float64               `db:"weighted_sentiment_score" json:"weighted_sentiment_score" validate:"gte=-1,lte=1"`
	SentimentIndex         float64               `db:"sentiment_index" json:"sentiment_index" validate:"gte=0,lte=100"`
	SentimentDistribution  SentimentDistribution `db:"-" json:"sentiment_distribution"`
	EmotionDistribution    EmotionDistribution   `db:"-" json:"emotion_distribution"`
	EmotionAdjustedSeverity float64              `db:"emotion_adjusted_severity" json:"emotion_adjusted_severity" validate:"gte=0,lte=100"`

	PriorityScore float64      `db:"priority_score" json:"priority_score" validate:"gte=0,lte=100"`
	PriorityBand  PriorityBand `db:"priority_band" json:"priority_band"`

	ClusterCentroidEmbedding []float64 `db:"-" json:"cluster_centroid_embedding,omitempty"`
	SimilarityThreshold      float64   `db:"similarity_threshold" json:"similarity_threshold" validate:"gte=0,lte=1"`

	TopKeywords     []string `db:"-" json:"top_keywords,omitempty"`
	TopSources      []string `db:"-" json:"top_sources,omitempty"`
	RegionsImpacted []string `db:"-" json:"regions_impacted,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IssueMention is the many-to-many link between an Issue and a Mention.
type IssueMention struct {
	IssueID        string    `db:"issue_id" json:"issue_id" validate:"required,uuid"`
	MentionID      string    `db:"mention_id" json:"mention_id" validate:"required,uuid"`
	SimilarityScore float64  `db:"similarity_score" json:"similarity_score" validate:"gte=0,lte=1"`
	AddedAt        time.Time `db:"added_at" json:"added_at"`
	TopicKey       string    `db:"topic_key" json:"topic_key" validate:"required"`
}

// MentionCluster is a single-pass greedy cluster of mention embeddings
// within one topic, built by Issue Clustering before match-or-create
// against existing Issues (spec 4.5).
type MentionCluster struct {
	Centroid   []float64
	MentionIDs []string
}
