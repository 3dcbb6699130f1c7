package issue

import (
	"regexp"
	"sort"
	"strings"
)

// stopWords are dropped from top-keyword frequency counts (spec 4.5
// "stop-words and short tokens removed").
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true, "this": true,
	"from": true, "have": true, "has": true, "are": true, "was": true, "were": true,
	"been": true, "will": true, "would": true, "could": true, "should": true, "about": true,
	"their": true, "they": true, "them": true, "than": true, "then": true, "into": true,
	"over": true, "after": true, "before": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "also": true, "more": true, "some": true, "such": true,
	"not": true, "but": true, "his": true, "her": true, "its": true, "our": true, "you": true,
}

var wordPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Default element counts for the three Issue Metadata lists recomputed on
// every metrics pass (spec 4.5's Metadata).
const (
	DefaultTopKeywordsCount     = 10
	DefaultTopSourcesCount      = 5
	DefaultRegionsImpactedCount = 5
)

// TopKeywords returns the n most frequent non-stop words of length > 3
// across texts, descending by frequency then alphabetically for ties.
func TopKeywords(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, word := range wordPattern.Split(strings.ToLower(text), -1) {
			if len(word) <= 3 || stopWords[word] {
				continue
			}
			counts[word]++
		}
	}
	return topN(counts, n)
}

// TopSources returns the n most frequent source/platform labels.
func TopSources(labels []string, n int) []string {
	counts := make(map[string]int)
	for _, label := range labels {
		if label == "" {
			continue
		}
		counts[label]++
	}
	return topN(counts, n)
}

// RegionsImpacted returns up to n distinct non-empty location labels, in
// first-seen order.
func RegionsImpacted(locations []string, n int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, loc := range locations {
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
		if len(out) >= n {
			break
		}
	}
	return out
}

func topN(counts map[string]int, n int) []string {
	type pair struct {
		key   string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for k, c := range counts {
		pairs = append(pairs, pair{k, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.key
	}
	return out
}
