package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/shared/sqlbuilder"
	"github.com/openpolicylabs/govintel/pkg/types"
)

type issueRow struct {
	ID              string    `db:"id"`
	Slug            string    `db:"slug"`
	Label           string    `db:"label"`
	AutoTitle       string    `db:"auto_title"`
	PrimaryTopicKey string    `db:"primary_topic_key"`
	State           string    `db:"state"`

	StartTime    time.Time  `db:"start_time"`
	LastActivity time.Time  `db:"last_activity"`
	ResolvedAt   *time.Time `db:"resolved_at"`

	MentionCount         int     `db:"mention_count"`
	VolumeCurrentWindow  int     `db:"volume_current_window"`
	VolumePreviousWindow int     `db:"volume_previous_window"`
	VelocityPercent      float64 `db:"velocity_percent"`
	VelocityScore        float64 `db:"velocity_score"`

	WeightedSentimentScore float64 `db:"weighted_sentiment_score"`
	SentimentIndex         float64 `db:"sentiment_index"`
	SentimentPositive      float64 `db:"sentiment_positive"`
	SentimentNegative      float64 `db:"sentiment_negative"`
	SentimentNeutral       float64 `db:"sentiment_neutral"`
	EmotionAnger           float64 `db:"emotion_anger"`
	EmotionFear            float64 `db:"emotion_fear"`
	EmotionTrust           float64 `db:"emotion_trust"`
	EmotionSadness         float64 `db:"emotion_sadness"`
	EmotionJoy             float64 `db:"emotion_joy"`
	EmotionDisgust         float64 `db:"emotion_disgust"`
	EmotionSurprise        float64 `db:"emotion_surprise"`
	EmotionNeutral         float64 `db:"emotion_neutral"`
	EmotionAdjustedSeverity float64 `db:"emotion_adjusted_severity"`

	PriorityScore float64 `db:"priority_score"`
	PriorityBand  string  `db:"priority_band"`

	ClusterCentroidEmbedding pq.Float64Array `db:"cluster_centroid_embedding"`
	SimilarityThreshold      float64         `db:"similarity_threshold"`

	TopKeywords     []byte `db:"top_keywords"`
	TopSources      []byte `db:"top_sources"`
	RegionsImpacted []byte `db:"regions_impacted"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *issueRow) toDomain() (types.Issue, error) {
	iss := types.Issue{
		ID: r.ID, Slug: r.Slug, Label: r.Label, AutoTitle: r.AutoTitle,
		PrimaryTopicKey: r.PrimaryTopicKey, State: types.IssueState(r.State),
		StartTime: r.StartTime, LastActivity: r.LastActivity, ResolvedAt: r.ResolvedAt,
		MentionCount: r.MentionCount, VolumeCurrentWindow: r.VolumeCurrentWindow,
		VolumePreviousWindow: r.VolumePreviousWindow, VelocityPercent: r.VelocityPercent,
		VelocityScore: r.VelocityScore, WeightedSentimentScore: r.WeightedSentimentScore,
		SentimentIndex: r.SentimentIndex,
		SentimentDistribution: types.SentimentDistribution{
			Positive: r.SentimentPositive, Negative: r.SentimentNegative, Neutral: r.SentimentNeutral,
		},
		EmotionDistribution: types.EmotionDistribution{
			Anger: r.EmotionAnger, Fear: r.EmotionFear, Trust: r.EmotionTrust, Sadness: r.EmotionSadness,
			Joy: r.EmotionJoy, Disgust: r.EmotionDisgust, Surprise: r.EmotionSurprise, Neutral: r.EmotionNeutral,
		},
		EmotionAdjustedSeverity:  r.EmotionAdjustedSeverity,
		PriorityScore:            r.PriorityScore,
		PriorityBand:             types.PriorityBand(r.PriorityBand),
		ClusterCentroidEmbedding: []float64(r.ClusterCentroidEmbedding),
		SimilarityThreshold:      r.SimilarityThreshold,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{
		{r.TopKeywords, &iss.TopKeywords},
		{r.TopSources, &iss.TopSources},
		{r.RegionsImpacted, &iss.RegionsImpacted},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return types.Issue{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "malformed issue list column")
		}
	}
	return iss, nil
}

// IssueRepository persists Issues and their mention memberships.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository builds an IssueRepository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = `id, slug, label, auto_title, primary_topic_key, state,
	start_time, last_activity, resolved_at,
	mention_count, volume_current_window, volume_previous_window, velocity_percent, velocity_score,
	weighted_sentiment_score, sentiment_index, sentiment_positive, sentiment_negative, sentiment_neutral,
	emotion_anger, emotion_fear, emotion_trust, emotion_sadness, emotion_joy, emotion_disgust,
	emotion_surprise, emotion_neutral, emotion_adjusted_severity,
	priority_score, priority_band, cluster_centroid_embedding, similarity_threshold,
	top_keywords, top_sources, regions_impacted, created_at, updated_at`

// ActiveByTopic returns every non-archived/resolved Issue for a topic,
// for Issue Clustering's match-or-create step (spec 4.5).
func (r *IssueRepository) ActiveByTopic(ctx context.Context, topicKey string) ([]types.Issue, error) {
	var rows []issueRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+issueColumns+` FROM issues
		WHERE primary_topic_key = $1 AND state NOT IN ('resolved', 'archived')
		ORDER BY last_activity DESC
	`, topicKey)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select active issues by topic", err)
	}
	return rowsToIssues(rows)
}

// Get fetches a single issue by ID. It takes no row lock.
func (r *IssueRepository) Get(ctx context.Context, id string) (types.Issue, error) {
	var row issueRow
	err := r.db.GetContext(ctx, &row, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	if err != nil {
		return types.Issue{}, apperrors.NewDatabaseError("get issue", err)
	}
	return row.toDomain()
}

// Create inserts a new Issue from a fresh mention cluster.
func (r *IssueRepository) Create(ctx context.Context, iss types.Issue) (string, error) {
	keywords, _ := json.Marshal(iss.TopKeywords)
	sources, _ := json.Marshal(iss.TopSources)
	regions, _ := json.Marshal(iss.RegionsImpacted)

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO issues (
			slug, label, auto_title, primary_topic_key, state, start_time, last_activity,
			mention_count, cluster_centroid_embedding, similarity_threshold,
			top_keywords, top_sources, regions_impacted
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, iss.Slug, iss.Label, iss.AutoTitle, iss.PrimaryTopicKey, string(iss.State),
		iss.StartTime, iss.LastActivity, iss.MentionCount,
		pq.Array(iss.ClusterCentroidEmbedding), iss.SimilarityThreshold,
		keywords, sources, regions,
	).Scan(&id)
	if err != nil {
		return "", apperrors.NewDatabaseError("create issue", err)
	}
	return id, nil
}

// AddMention links a mention into an issue and bumps its activity
// bookkeeping, within a single transaction so membership count and
// last_activity never drift apart.
func (r *IssueRepository) AddMention(ctx context.Context, issueID, mentionID, topicKey string, similarity float64, centroid []float64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError("begin add-mention transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issue_mentions (issue_id, mention_id, similarity_score, topic_key)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (issue_id, mention_id) DO NOTHING
	`, issueID, mentionID, similarity, topicKey); err != nil {
		return apperrors.NewDatabaseError("insert issue mention", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE issues SET
			mention_count = mention_count + 1, last_activity = now(),
			cluster_centroid_embedding = $2, updated_at = now()
		WHERE id = $1
	`, issueID, pq.Array(centroid)); err != nil {
		return apperrors.NewDatabaseError("update issue after add-mention", err)
	}

	return tx.Commit()
}

// UpdateMetrics rewrites an issue's velocity/sentiment/priority fields,
// the output of the aggregation and priority-scoring passes.
func (r *IssueRepository) UpdateMetrics(ctx context.Context, iss types.Issue) error {
	keywords, _ := json.Marshal(iss.TopKeywords)
	sources, _ := json.Marshal(iss.TopSources)
	regions, _ := json.Marshal(iss.RegionsImpacted)

	_, err := r.db.ExecContext(ctx, `
		UPDATE issues SET
			state = $2, volume_current_window = $3, volume_previous_window = $4,
			velocity_percent = $5, velocity_score = $6,
			weighted_sentiment_score = $7, sentiment_index = $8,
			sentiment_positive = $9, sentiment_negative = $10, sentiment_neutral = $11,
			emotion_anger = $12, emotion_fear = $13, emotion_trust = $14, emotion_sadness = $15,
			emotion_joy = $16, emotion_disgust = $17, emotion_surprise = $18, emotion_neutral = $19,
			emotion_adjusted_severity = $20, priority_score = $21, priority_band = $22,
			top_keywords = $23, top_sources = $24, regions_impacted = $25,
			last_activity = now(), updated_at = now()
		WHERE id = $1
	`, iss.ID, string(iss.State), iss.VolumeCurrentWindow, iss.VolumePreviousWindow,
		iss.VelocityPercent, iss.VelocityScore, iss.WeightedSentimentScore, iss.SentimentIndex,
		iss.SentimentDistribution.Positive, iss.SentimentDistribution.Negative, iss.SentimentDistribution.Neutral,
		iss.EmotionDistribution.Anger, iss.EmotionDistribution.Fear, iss.EmotionDistribution.Trust, iss.EmotionDistribution.Sadness,
		iss.EmotionDistribution.Joy, iss.EmotionDistribution.Disgust, iss.EmotionDistribution.Surprise, iss.EmotionDistribution.Neutral,
		iss.EmotionAdjustedSeverity, iss.PriorityScore, string(iss.PriorityBand),
		keywords, sources, regions,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update issue metrics", err)
	}
	return nil
}

// VolumeWindows counts an issue's member mentions added in the current
// window-width period ending at now, and the equal-width period before
// it, for velocity recomputation (spec 4.5's Recomputation).
func (r *IssueRepository) VolumeWindows(ctx context.Context, issueID string, window time.Duration, now time.Time) (current, previous int, err error) {
	var row struct {
		Current  int `db:"current_count"`
		Previous int `db:"previous_count"`
	}
	dbErr := r.db.GetContext(ctx, &row, `
		SELECT
			count(*) FILTER (WHERE added_at >= $2 AND added_at < $3) AS current_count,
			count(*) FILTER (WHERE added_at >= $4 AND added_at < $2) AS previous_count
		FROM issue_mentions
		WHERE issue_id = $1
	`, issueID, now.Add(-window), now, now.Add(-2*window))
	if dbErr != nil {
		return 0, 0, apperrors.NewDatabaseError("select issue volume windows", dbErr)
	}
	return row.Current, row.Previous, nil
}

// MemberRow is one issue member mention's text/source/location for
// recomputing Issue Metadata (top keywords/sources/regions impacted).
type MemberRow struct {
	Text          string
	SourceType    string
	LocationLabel *string
}

// Members returns the text, source type, and declared location of every
// mention linked to issueID, for Issue Metadata recomputation.
func (r *IssueRepository) Members(ctx context.Context, issueID string) ([]MemberRow, error) {
	var rows []struct {
		Text          string  `db:"text"`
		SourceType    string  `db:"source_type"`
		LocationLabel *string `db:"location_label"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT m.text, m.source_type, m.location_label
		FROM mentions m
		JOIN issue_mentions im ON im.mention_id = m.id
		WHERE im.issue_id = $1
	`, issueID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select issue members", err)
	}
	out := make([]MemberRow, len(rows))
	for i, rr := range rows {
		out[i] = MemberRow{Text: rr.Text, SourceType: rr.SourceType, LocationLabel: rr.LocationLabel}
	}
	return out, nil
}

// SearchFilter narrows IssueRepository.Search's results; zero-value
// fields are omitted from the WHERE clause.
type SearchFilter struct {
	TopicKey         string
	State            types.IssueState
	MinPriorityScore float64
	Limit            int
}

// Search returns issues matching filter, ordered by priority_score
// descending, for an operator's triage dashboard.
func (r *IssueRepository) Search(ctx context.Context, filter SearchFilter) ([]types.Issue, error) {
	topicCondition, stateCondition, priorityCondition := "", "", ""
	if filter.TopicKey != "" {
		topicCondition = "primary_topic_key = ?"
	}
	if filter.State != "" {
		stateCondition = "state = ?"
	}
	if filter.MinPriorityScore > 0 {
		priorityCondition = "priority_score >= ?"
	}

	b := sqlbuilder.NewBuilder().Select(issueColumns).From("issues").
		Where(topicCondition, filter.TopicKey).
		Where(stateCondition, string(filter.State)).
		Where(priorityCondition, filter.MinPriorityScore).
		OrderBy("priority_score", sqlbuilder.DESC)
	if filter.Limit > 0 {
		b.Limit(filter.Limit)
	}

	query, args := b.Build()
	var rows []issueRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewDatabaseError("search issues", err)
	}
	return rowsToIssues(rows)
}

// Resolve transitions an issue to resolved, stamping resolved_at.
func (r *IssueRepository) Resolve(ctx context.Context, issueID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE issues SET state = 'resolved', resolved_at = now(), updated_at = now() WHERE id = $1
	`, issueID)
	if err != nil {
		return apperrors.NewDatabaseError("resolve issue", err)
	}
	return nil
}

func rowsToIssues(rows []issueRow) ([]types.Issue, error) {
	out := make([]types.Issue, 0, len(rows))
	for _, row := range rows {
		iss, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, nil
}
