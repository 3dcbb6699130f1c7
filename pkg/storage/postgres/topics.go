package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/types"
)

type topicRow struct {
	Key           string  `db:"key"`
	DisplayName   string  `db:"display_name"`
	Description   string  `db:"description"`
	Keywords      []byte  `db:"keywords"`
	KeywordGroups []byte  `db:"keyword_groups"`
	Embedding     pq.Float64Array `db:"embedding"`
	Active        bool    `db:"active"`
	Category      *string `db:"category"`
}

func (r *topicRow) toDomain() (types.Topic, error) {
	t := types.Topic{
		Key: r.Key, DisplayName: r.DisplayName, Description: r.Description,
		Active: r.Active, Category: r.Category, Embedding: []float64(r.Embedding),
	}
	if len(r.Keywords) > 0 {
		if err := json.Unmarshal(r.Keywords, &t.Keywords); err != nil {
			return types.Topic{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "malformed topic keywords")
		}
	}
	if len(r.KeywordGroups) > 0 {
		if err := json.Unmarshal(r.KeywordGroups, &t.KeywordGroups); err != nil {
			return types.Topic{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "malformed topic keyword groups")
		}
	}
	return t, nil
}

// TopicRepository reads and writes topic definitions in the topics table.
// The Topic Registry loads from seed files and does not read or write
// this table.
type TopicRepository struct {
	db *sqlx.DB
}

// NewTopicRepository builds a TopicRepository.
func NewTopicRepository(db *sqlx.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// Upsert inserts or replaces a topic definition by key.
func (r *TopicRepository) Upsert(ctx context.Context, t types.Topic) error {
	keywords, err := json.Marshal(t.Keywords)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal topic keywords")
	}
	groups, err := json.Marshal(t.KeywordGroups)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal topic keyword groups")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO topics (key, display_name, description, keywords, keyword_groups, embedding, active, category)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (key) DO UPDATE SET
			display_name = EXCLUDED.display_name, description = EXCLUDED.description,
			keywords = EXCLUDED.keywords, keyword_groups = EXCLUDED.keyword_groups,
			embedding = EXCLUDED.embedding, active = EXCLUDED.active, category = EXCLUDED.category
	`, t.Key, t.DisplayName, t.Description, keywords, groups, pq.Array(t.Embedding), t.Active, t.Category)
	if err != nil {
		return apperrors.NewDatabaseError("upsert topic", err)
	}
	return nil
}

// ListActive returns every active topic; the Cycle Driver and
// cmd/aggregator iterate over it.
func (r *TopicRepository) ListActive(ctx context.Context) ([]types.Topic, error) {
	var rows []topicRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT key, display_name, description, keywords, keyword_groups, embedding, active, category
		FROM topics WHERE active = true
	`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list active topics", err)
	}
	out := make([]types.Topic, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// LinkMention records a scored topic assignment for a mention.
func (r *TopicRepository) LinkMention(ctx context.Context, mentionID string, score types.TopicScore) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mention_topics (mention_id, topic_key, confidence, keyword_score, embedding_score)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (mention_id, topic_key) DO UPDATE SET
			confidence = EXCLUDED.confidence, keyword_score = EXCLUDED.keyword_score,
			embedding_score = EXCLUDED.embedding_score
	`, mentionID, score.TopicKey, score.Confidence, score.KeywordScore, score.EmbeddingScore)
	if err != nil {
		return apperrors.NewDatabaseError("link mention topic", err)
	}
	return nil
}

// CandidateMention is a mention linked to a topic whose mention_topics
// row has not yet been assigned to an issue, the input row Issue
// Clustering fetches per topic (spec 4.5: "fetch mentions linked to the
// topic in the current cycle's window whose issue_id is unset").
type CandidateMention struct {
	MentionID     string
	TopicKey      string
	Embedding     pq.Float64Array
	PublishedAt   time.Time
	LocationLabel *string
	Text          string
}

// UnassignedByTopic returns mentions linked to topicKey whose
// mention_topics.issue_id is still null, joined against their
// embeddings for clustering input.
func (r *TopicRepository) UnassignedByTopic(ctx context.Context, topicKey string) ([]CandidateMention, error) {
	var rows []struct {
		MentionID     string          `db:"mention_id"`
		TopicKey      string          `db:"topic_key"`
		Embedding     pq.Float64Array `db:"vector"`
		PublishedAt   time.Time       `db:"published_at"`
		LocationLabel *string         `db:"location_label"`
		Text          string          `db:"text"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT mt.mention_id, mt.topic_key, me.vector, m.published_at, m.location_label, m.text
		FROM mention_topics mt
		JOIN mentions m ON m.id = mt.mention_id
		JOIN mention_embeddings me ON me.mention_id = mt.mention_id
		WHERE mt.topic_key = $1 AND mt.issue_id IS NULL AND m.processing_status = 'completed'
	`, topicKey)
	if err != nil {
		return nil, apperrors.NewDatabaseError("select unassigned mentions by topic", err)
	}
	out := make([]CandidateMention, len(rows))
	for i, row := range rows {
		out[i] = CandidateMention{
			MentionID: row.MentionID, TopicKey: row.TopicKey,
			Embedding: row.Embedding, PublishedAt: row.PublishedAt, LocationLabel: row.LocationLabel,
			Text: row.Text,
		}
	}
	return out, nil
}

// AssignIssue records which Issue a mention-topic link was clustered
// into.
func (r *TopicRepository) AssignIssue(ctx context.Context, mentionID, topicKey, issueID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mention_topics SET issue_id = $3 WHERE mention_id = $1 AND topic_key = $2
	`, mentionID, topicKey, issueID)
	if err != nil {
		return apperrors.NewDatabaseError("assign mention topic issue", err)
	}
	return nil
}
