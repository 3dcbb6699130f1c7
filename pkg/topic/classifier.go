// Package topic implements the Topic Registry (spec component C7) and
// Topic Classifier (spec component C8).
package topic

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	sharedmath "github.com/openpolicylabs/govintel/pkg/shared/math"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// ScoringWeights controls the keyword/embedding blend in Classifier.Score,
// overridable from the Config Store under processing.topic.
type ScoringWeights struct {
	KeywordWeight     float64 // default 0.4
	EmbeddingWeight   float64 // default 0.6
	MinScoreThreshold float64 // default 0.2
	MaxTopics         int     // default 5
}

// DefaultScoringWeights matches spec 4.2's defaults.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		KeywordWeight:     0.4,
		EmbeddingWeight:   0.6,
		MinScoreThreshold: 0.2,
		MaxTopics:         5,
	}
}

// Classifier scores a mention's cleaned text and embedding against every
// active topic in a Registry.
type Classifier struct {
	registry  *Registry
	weights   ScoringWeights
	groupEval *KeywordGroupEvaluator
}

// NewClassifier builds a Classifier bound to registry. groupEval may be
// nil if no topic in the registry declares keyword groups.
func NewClassifier(registry *Registry, weights ScoringWeights, groupEval *KeywordGroupEvaluator) *Classifier {
	return &Classifier{registry: registry, weights: weights, groupEval: groupEval}
}

// Classify scores text (and, if non-nil, embedding) against every active
// topic, returning at most weights.MaxTopics results ordered by
// confidence descending. An empty result is never returned: a mention
// that matches nothing is tagged with types.NonGovernanceTopicKey.
func (c *Classifier) Classify(ctx context.Context, text string, embedding []float64) []types.TopicScore {
	lower := strings.ToLower(text)

	var scores []types.TopicScore
	for _, t := range c.registry.Active() {
		k, matchedTerms := c.keywordScore(t, lower)
		e := 0.0
		if embedding != nil && len(t.Embedding) == len(embedding) {
			e = math.Max(0, sharedmath.CosineSimilarity(embedding, t.Embedding))
		}

		if k == 0 && e < 0.25 {
			continue
		}

		s := c.weights.KeywordWeight*k + c.weights.EmbeddingWeight*e

		if c.groupEval != nil && len(t.KeywordGroups) > 0 {
			if satisfied, _ := c.groupEval.Evaluate(ctx, t.KeywordGroups, matchedTerms); satisfied {
				s *= 1.1
			}
		}

		switch {
		case k > 0.15 && e > 0.25:
			s *= 1.15
		case k > 0.3 || e > 0.5:
			s *= 1.05
		}
		if s > 1 {
			s = 1
		}

		if s < c.weights.MinScoreThreshold {
			continue
		}

		scores = append(scores, types.TopicScore{
			TopicKey:       t.Key,
			TopicName:      t.DisplayName,
			Confidence:     s,
			KeywordScore:   k,
			EmbeddingScore: e,
		})
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Confidence > scores[j].Confidence })
	if len(scores) > c.weights.MaxTopics {
		scores = scores[:c.weights.MaxTopics]
	}

	if len(scores) == 0 {
		return []types.TopicScore{{TopicKey: types.NonGovernanceTopicKey, TopicName: "Non-governance", Confidence: 0}}
	}
	return scores
}

// keywordScore implements spec 4.2's k_t formula: count keyword hits
// (word-boundary matches weighted 1.2, substring matches 1.0), normalize
// by keyword count, then apply the diminishing-returns multiplier for
// m>1 matches.
func (c *Classifier) keywordScore(t types.Topic, lowerText string) (float64, []string) {
	if len(t.Keywords) == 0 {
		return 0, nil
	}

	var weighted float64
	var m int
	var matched []string
	for _, kw := range t.Keywords {
		lowerKw := strings.ToLower(kw)
		if !strings.Contains(lowerText, lowerKw) {
			continue
		}
		m++
		matched = append(matched, lowerKw)
		if isWordBoundaryMatch(lowerText, lowerKw) {
			weighted += 1.2
		} else {
			weighted += 1.0
		}
	}
	if m == 0 {
		return 0, nil
	}

	base := math.Min(weighted/float64(len(t.Keywords)), 1.0)
	if m > 1 {
		base *= 1 + math.Log(float64(m)+1)/8
	}
	return math.Min(base, 1.0), matched
}

func isWordBoundaryMatch(text, term string) bool {
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(term) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(text)
}
