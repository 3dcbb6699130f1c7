package topic

import (
	"context"
	"testing"

	"github.com/openpolicylabs/govintel/pkg/types"
)

func newTestRegistry(topics ...types.Topic) *Registry {
	m := make(map[string]types.Topic, len(topics))
	for _, t := range topics {
		m[t.Key] = t
	}
	return &Registry{topics: m}
}

func TestClassify_KeywordOnlyMatch(t *testing.T) {
	registry := newTestRegistry(types.Topic{
		Key:         "healthcare",
		DisplayName: "Healthcare",
		Keywords:    []string{"hospital", "clinic", "vaccine"},
		Active:      true,
	})
	classifier := NewClassifier(registry, DefaultScoringWeights(), nil)

	scores := classifier.Classify(context.Background(), "The new hospital wing opened with a vaccine drive.", nil)

	if len(scores) != 1 {
		t.Fatalf("expected exactly one scored topic, got %d (%+v)", len(scores), scores)
	}
	if scores[0].TopicKey != "healthcare" {
		t.Errorf("expected healthcare topic, got %q", scores[0].TopicKey)
	}
	if scores[0].EmbeddingScore != 0 {
		t.Errorf("expected zero embedding score with no mention embedding, got %v", scores[0].EmbeddingScore)
	}
}

func TestClassify_NoMatchFallsBackToNonGovernance(t *testing.T) {
	registry := newTestRegistry(types.Topic{
		Key:      "healthcare",
		Keywords: []string{"hospital", "clinic"},
		Active:   true,
	})
	classifier := NewClassifier(registry, DefaultScoringWeights(), nil)

	scores := classifier.Classify(context.Background(), "Weather forecast for the weekend.", nil)

	if len(scores) != 1 || scores[0].TopicKey != types.NonGovernanceTopicKey {
		t.Fatalf("expected non_governance fallback, got %+v", scores)
	}
	if scores[0].Confidence != 0 {
		t.Errorf("expected zero confidence for non_governance, got %v", scores[0].Confidence)
	}
}

func TestClassify_InactiveTopicIgnored(t *testing.T) {
	registry := newTestRegistry(types.Topic{
		Key:      "healthcare",
		Keywords: []string{"hospital"},
		Active:   false,
	})
	classifier := NewClassifier(registry, DefaultScoringWeights(), nil)

	scores := classifier.Classify(context.Background(), "The hospital expanded its wing.", nil)

	if len(scores) != 1 || scores[0].TopicKey != types.NonGovernanceTopicKey {
		t.Fatalf("expected inactive topic to be skipped, got %+v", scores)
	}
}

func TestClassify_RespectsMaxTopics(t *testing.T) {
	weights := DefaultScoringWeights()
	weights.MaxTopics = 1
	registry := newTestRegistry(
		types.Topic{Key: "a", Keywords: []string{"budget"}, Active: true},
		types.Topic{Key: "b", Keywords: []string{"budget", "tax"}, Active: true},
	)
	classifier := NewClassifier(registry, weights, nil)

	scores := classifier.Classify(context.Background(), "The budget and tax reform passed.", nil)

	if len(scores) != 1 {
		t.Fatalf("expected MaxTopics to cap results at 1, got %d", len(scores))
	}
}

func TestClassify_EmbeddingContributesScore(t *testing.T) {
	registry := newTestRegistry(types.Topic{
		Key:       "healthcare",
		Keywords:  []string{"nonmatching-term"},
		Active:    true,
		Embedding: []float64{1, 0, 0},
	})
	classifier := NewClassifier(registry, DefaultScoringWeights(), nil)

	scores := classifier.Classify(context.Background(), "unrelated text", []float64{1, 0, 0})

	if len(scores) != 1 || scores[0].TopicKey != "healthcare" {
		t.Fatalf("expected embedding-only match to surface healthcare, got %+v", scores)
	}
	if scores[0].EmbeddingScore < 0.99 {
		t.Errorf("expected near-1 embedding score for identical vectors, got %v", scores[0].EmbeddingScore)
	}
}
