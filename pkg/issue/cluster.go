// Package issue implements Issue Clustering, the Issue Detection Engine,
// and Issue Metrics (spec components C13, C14, C15): grouping a topic's
// newly classified mentions into clusters, matching clusters against
// existing Issues or seeding new ones, and recomputing every Issue's
// volume/velocity/priority/lifecycle fields.
package issue

import (
	"sort"
	"time"

	sharedmath "github.com/openpolicylabs/govintel/pkg/shared/math"
)

// DefaultClusterSimilarityThreshold is spec 4.5's cluster_similarity_threshold.
const DefaultClusterSimilarityThreshold = 0.75

// Member is one mention being clustered, the minimal projection Issue
// Clustering needs out of a topic's newly classified mentions.
type Member struct {
	MentionID   string
	Embedding   []float64
	PublishedAt time.Time
}

// Cluster is one single-pass greedy cluster: a running centroid plus its
// member mentions in the order they were assigned.
type Cluster struct {
	Centroid []float64
	Members  []Member
}

// ClusterMentions groups members by pairwise cosine similarity to a
// running cluster centroid, per spec 4.5: sort by publish time
// descending, assign each mention to the first existing cluster whose
// centroid similarity clears threshold, else seed a new cluster.
func ClusterMentions(members []Member, threshold float64) []Cluster {
	sorted := make([]Member, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PublishedAt.After(sorted[j].PublishedAt) })

	var clusters []Cluster
	for _, m := range sorted {
		assigned := false
		for i := range clusters {
			if sharedmath.CosineSimilarity(m.Embedding, clusters[i].Centroid) >= threshold {
				clusters[i].Members = append(clusters[i].Members, m)
				clusters[i].Centroid = recomputeCentroid(clusters[i].Members)
				assigned = true
				break
			}
		}
		if !assigned {
			clusters = append(clusters, Cluster{
				Centroid: append([]float64{}, m.Embedding...),
				Members:  []Member{m},
			})
		}
	}
	return clusters
}

func recomputeCentroid(members []Member) []float64 {
	vectors := make([][]float64, len(members))
	for i, m := range members {
		vectors[i] = m.Embedding
	}
	return sharedmath.MeanVector(vectors)
}

// LatestPublishedAt returns the most recent PublishedAt across a
// cluster's members.
func (c Cluster) LatestPublishedAt() time.Time {
	var latest time.Time
	for _, m := range c.Members {
		if m.PublishedAt.After(latest) {
			latest = m.PublishedAt
		}
	}
	return latest
}

// MentionIDs returns the member mention IDs.
func (c Cluster) MentionIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.MentionID
	}
	return ids
}
