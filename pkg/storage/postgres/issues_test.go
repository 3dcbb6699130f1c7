package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/openpolicylabs/govintel/pkg/types"
)

var issueSearchColumns = []string{
	"id", "slug", "label", "auto_title", "primary_topic_key", "state",
	"start_time", "last_activity", "resolved_at",
	"mention_count", "volume_current_window", "volume_previous_window", "velocity_percent", "velocity_score",
	"weighted_sentiment_score", "sentiment_index", "sentiment_positive", "sentiment_negative", "sentiment_neutral",
	"emotion_anger", "emotion_fear", "emotion_trust", "emotion_sadness", "emotion_joy", "emotion_disgust",
	"emotion_surprise", "emotion_neutral", "emotion_adjusted_severity",
	"priority_score", "priority_band", "cluster_centroid_embedding", "similarity_threshold",
	"top_keywords", "top_sources", "regions_impacted", "created_at", "updated_at",
}

func issueSearchRow(id string, priority float64) []interface{} {
	now := time.Now()
	return []interface{}{
		id, "slug-" + id, "label", "auto title", "healthcare", "active",
		now, now, nil,
		5, 3, 2, 10.0, 55.0,
		0.2, 60.0, 0.5, 0.2, 0.3,
		0, 0, 0, 0, 0, 0,
		0, 0, 40.0,
		priority, "high", []byte("{0.1,0.2}"), 0.75,
		nil, nil, nil, now, now,
	}
}

func TestIssueRepository_Search_FiltersByStateAndOrdersByPriority(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(issueSearchColumns).
		AddRow(issueSearchRow("issue-1", 90.0)...).
		AddRow(issueSearchRow("issue-2", 70.0)...)
	mock.ExpectQuery("SELECT .* FROM issues").WillReturnRows(rows)

	repo := NewIssueRepository(db)
	results, err := repo.Search(context.Background(), SearchFilter{
		State: types.IssueActive, MinPriorityScore: 50, Limit: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(results))
	}
	if results[0].ID != "issue-1" || results[1].ID != "issue-2" {
		t.Fatalf("unexpected ordering: %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIssueRepository_Search_NoFiltersOmitsWhereClause(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(issueSearchColumns).AddRow(issueSearchRow("issue-1", 30.0)...)
	mock.ExpectQuery("SELECT .* FROM issues").WillReturnRows(rows)

	repo := NewIssueRepository(db)
	results, err := repo.Search(context.Background(), SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(results))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
