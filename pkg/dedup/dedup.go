// Package dedup implements the Deduplication Service (spec component
// C10): URL, exact-text, and fuzzy-text duplicate detection for incoming
// raw records within a sliding time window.
package dedup

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Candidate is one raw record being checked for duplication.
type Candidate struct {
	URL         string
	Text        string
	PublishedAt time.Time
}

// ExistingRecord is a minimal projection of an already-ingested record,
// as read from the window by a WindowSource.
type ExistingRecord struct {
	NormalizedURL  string
	NormalizedText string
	PublishedAt    time.Time
}

// WindowSource supplies the already-ingested records a Candidate must be
// checked against; the concrete implementation (pkg/storage) queries
// `mentions` for the lookback window.
type WindowSource interface {
	RecordsSince(ctx context.Context, since time.Time) ([]ExistingRecord, error)
}

// Options configures the Deduplicator's thresholds (spec 4.7's defaults,
// overridable from the Config Store under the deduplication category).
type Options struct {
	WindowDuration       time.Duration // default 7 days
	SimilarityThreshold  float64       // default 0.85
	SimilarityDateWindow time.Duration // default 24h
}

// DefaultOptions matches spec 4.7's defaults.
func DefaultOptions() Options {
	return Options{
		WindowDuration:       7 * 24 * time.Hour,
		SimilarityThreshold:  0.85,
		SimilarityDateWindow: 24 * time.Hour,
	}
}

// Deduplicator rejects candidates that duplicate an already-ingested
// record within the configured window.
type Deduplicator struct {
	source  WindowSource
	options Options
}

// New builds a Deduplicator.
func New(source WindowSource, options Options) *Deduplicator {
	return &Deduplicator{source: source, options: options}
}

// Reason explains why a candidate was rejected.
type Reason string

const (
	ReasonDuplicateURL   Reason = "duplicate_url"
	ReasonSimilarText    Reason = "similar_text"
	ReasonExactTextMatch Reason = "exact_text_match"
)

// Filter partitions candidates into accepted and rejected, querying the
// window once and checking every candidate (and, within the batch,
// earlier accepted candidates) against it.
func (d *Deduplicator) Filter(ctx context.Context, candidates []Candidate) (accepted []Candidate, rejected map[int]Reason, err error) {
	since := time.Now().Add(-d.options.WindowDuration)
	existing, err := d.source.RecordsSince(ctx, since)
	if err != nil {
		return nil, nil, err
	}

	rejected = make(map[int]Reason)
	window := make([]ExistingRecord, len(existing))
	copy(window, existing)

	for i, c := range candidates {
		normURL := NormalizeURL(c.URL)
		normText := NormalizeText(c.Text)

		reason, isDup := d.checkAgainst(normURL, normText, c.PublishedAt, window)
		if isDup {
			rejected[i] = reason
			continue
		}

		accepted = append(accepted, c)
		window = append(window, ExistingRecord{
			NormalizedURL:  normURL,
			NormalizedText: normText,
			PublishedAt:    c.PublishedAt,
		})
	}
	return accepted, rejected, nil
}

func (d *Deduplicator) checkAgainst(normURL, normText string, publishedAt time.Time, window []ExistingRecord) (Reason, bool) {
	for _, rec := range window {
		if normURL != "" && rec.NormalizedURL != "" && normURL == rec.NormalizedURL {
			return ReasonDuplicateURL, true
		}
		if normText == rec.NormalizedText {
			return ReasonExactTextMatch, true
		}
		if withinDateWindow(publishedAt, rec.PublishedAt, d.options.SimilarityDateWindow) {
			if JaccardSimilarity(normText, rec.NormalizedText) >= d.options.SimilarityThreshold {
				return ReasonSimilarText, true
			}
		}
	}
	return "", false
}

func withinDateWindow(a, b time.Time, window time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// NormalizeURL strips a trailing slash, drops query/fragment so tracking
// parameters don't defeat URL-based dedup, and lowercases the whole
// result (host and path alike).
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return strings.ToLower(u.String())
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// NormalizeText lowercases, strips punctuation, and collapses whitespace,
// producing the form used for both exact and Jaccard comparison.
func NormalizeText(text string) string {
	lower := strings.ToLower(text)
	stripped := nonWord.ReplaceAllString(lower, "")
	fields := strings.Fields(stripped)
	return strings.Join(fields, " ")
}

// JaccardSimilarity returns |A ∩ B| / |A ∪ B| over the normalized token
// sets of a and b, which must already be normalized text.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
