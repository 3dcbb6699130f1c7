package issue

import (
	"fmt"
	"strings"
	"time"

	sharedmath "github.com/openpolicylabs/govintel/pkg/shared/math"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// DefaultIssueSimilarityThreshold is spec 4.5's issue_similarity_threshold.
const DefaultIssueSimilarityThreshold = 0.70

// DefaultMinClusterSize is spec 4.5's min_cluster_size: the smallest
// cluster that is allowed to seed a brand new Issue.
const DefaultMinClusterSize = 3

// DefaultMatchTimeWindow bounds how stale a candidate issue's last
// activity may be and still accept a new cluster attachment.
const DefaultMatchTimeWindow = 72 * time.Hour

// MatchDecision is the outcome of matching one cluster against a topic's
// candidate issues: either attach to an existing issue, or create a new
// one, or do nothing (cluster too small and no match).
type MatchDecision struct {
	Attach           bool
	IssueID          string
	Similarity       float64
	WeightedCentroid []float64
	ShouldCreate     bool
}

// MatchOrCreate implements spec 4.5's match-or-create step. candidates
// must already be ordered by last_activity desc (the repository query
// enforces this). The first candidate clearing issue_similarity_threshold
// within match_time_window of the cluster's latest member wins; ties are
// broken by candidate order.
func MatchOrCreate(cluster Cluster, candidates []types.Issue, threshold float64, matchTimeWindow time.Duration, minClusterSize int) MatchDecision {
	latest := cluster.LatestPublishedAt()

	for _, candidate := range candidates {
		sim := sharedmath.CosineSimilarity(cluster.Centroid, candidate.ClusterCentroidEmbedding)
		if sim < threshold {
			continue
		}
		if latest.Sub(candidate.LastActivity) > matchTimeWindow || candidate.LastActivity.Sub(latest) > matchTimeWindow {
			continue
		}
		weighted := sharedmath.WeightedMeanVector(
			[][]float64{candidate.ClusterCentroidEmbedding, cluster.Centroid},
			[]float64{float64(candidate.MentionCount), float64(len(cluster.Members))},
		)
		return MatchDecision{Attach: true, IssueID: candidate.ID, Similarity: sim, WeightedCentroid: weighted}
	}

	if len(cluster.Members) >= minClusterSize {
		return MatchDecision{ShouldCreate: true}
	}
	return MatchDecision{}
}

// NewIssueDraft is the set of fields BuildNewIssueDraft computes for a
// freshly seeded Issue.
type NewIssueDraft struct {
	Slug        string
	Label       string
	AutoTitle   string
	TopKeywords []string
}

// BuildNewIssueDraft derives a deterministic slug and a label/title from
// the cluster's top keywords and most representative member text (spec
// 4.5: "highest keyword overlap with the cluster's top keywords").
// texts maps mention ID to its raw text.
func BuildNewIssueDraft(topicKey string, cluster Cluster, texts map[string]string) NewIssueDraft {
	allTexts := make([]string, 0, len(cluster.Members))
	for _, m := range cluster.Members {
		allTexts = append(allTexts, texts[m.MentionID])
	}
	topKeywords := TopKeywords(allTexts, 10)
	keywordSet := make(map[string]bool, len(topKeywords))
	for _, k := range topKeywords {
		keywordSet[k] = true
	}

	var firstMention time.Time
	var representative string
	bestOverlap := -1
	for _, m := range cluster.Members {
		if firstMention.IsZero() || m.PublishedAt.Before(firstMention) {
			firstMention = m.PublishedAt
		}
		text := texts[m.MentionID]
		overlap := 0
		for _, word := range wordPattern.Split(strings.ToLower(text), -1) {
			if keywordSet[word] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			representative = text
		}
	}

	return NewIssueDraft{
		Slug:        fmt.Sprintf("%s-%d", topicKey, firstMention.Unix()),
		Label:       truncate(representative, 500),
		AutoTitle:   truncate(representative, 100),
		TopKeywords: topKeywords,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
