package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/openpolicylabs/govintel/pkg/types"
)

func TestAggregationRepository_MembersForTopic_SkipsIncompleteRows(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	columns := []string{
		"sentiment_score", "sentiment_label", "influence_weight", "confidence_weight",
		"emotion_anger", "emotion_fear", "emotion_trust", "emotion_sadness",
		"emotion_joy", "emotion_disgust", "emotion_surprise", "emotion_neutral",
	}
	rows := sqlmock.NewRows(columns).
		AddRow(0.5, "positive", 1.0, 0.9, 0.1, 0.0, 0.2, 0.0, 0.7, 0.0, 0.0, 0.0).
		AddRow(nil, nil, nil, nil, 0, 0, 0, 0, 0, 0, 0, 0)

	mock.ExpectQuery("SELECT m.sentiment_score").WillReturnRows(rows)

	repo := NewAggregationRepository(db)
	members, err := repo.MembersForTopic(context.Background(), "healthcare", 0, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 complete member, got %d", len(members))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAggregationRepository_UpsertBaseline(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO topic_sentiment_baselines").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAggregationRepository(db)
	err := repo.UpsertBaseline(context.Background(), types.TopicBaseline{
		TopicKey: "healthcare", BaselineIndex: 55, LookbackDays: 30, SampleSize: 120,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
