// Package location implements the pipeline's Location label phase:
// deriving a normalized region label and confidence from a mention's
// declared or user-supplied location text. There is no geocoding
// service in play here, only a small keyword gazetteer matched the way
// pkg/topic.Classifier matches topic keywords against mention text.
package location

import (
	"context"
	"strings"
)

// Gazetteer maps canonical region labels to the raw location aliases
// that should resolve to them (city names, abbreviations, demonyms).
type Gazetteer map[string][]string

// DefaultGazetteer is a small starter set; operators extend it via the
// Config Store the way pkg/topic's keyword lists are extended.
func DefaultGazetteer() Gazetteer {
	return Gazetteer{
		"US-Northeast": {"new york", "nyc", "boston", "philadelphia", "massachusetts", "new jersey"},
		"US-South":     {"texas", "florida", "atlanta", "houston", "dallas", "miami"},
		"US-Midwest":   {"chicago", "michigan", "ohio", "wisconsin", "minnesota"},
		"US-West":      {"california", "los angeles", "san francisco", "seattle", "oregon", "washington state"},
		"UK":           {"london", "manchester", "united kingdom", "england", "scotland", "wales"},
		"EU":           {"germany", "france", "berlin", "paris", "madrid", "rome", "european union"},
		"APAC":         {"tokyo", "singapore", "sydney", "india", "japan", "australia"},
	}
}

// Labeler resolves a declared-location string to a gazetteer region.
type Labeler struct {
	gazetteer Gazetteer
}

// New builds a Labeler over gazetteer.
func New(gazetteer Gazetteer) *Labeler {
	return &Labeler{gazetteer: gazetteer}
}

// Label implements pkg/cycle.LocationLabeler. An empty declaredLocation,
// or one matching no gazetteer alias, yields ("", 0).
func (l *Labeler) Label(ctx context.Context, declaredLocation string) (string, float64) {
	if declaredLocation == "" {
		return "", 0
	}
	lower := strings.ToLower(declaredLocation)

	var bestRegion string
	var bestLen int
	for region, aliases := range l.gazetteer {
		for _, alias := range aliases {
			if strings.Contains(lower, alias) && len(alias) > bestLen {
				bestRegion = region
				bestLen = len(alias)
			}
		}
	}
	if bestRegion == "" {
		return "", 0
	}

	// Confidence rewards longer, more specific alias matches relative to
	// the declared text's total length, capped at 1.
	confidence := float64(bestLen) / float64(len(lower))
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0.5 {
		confidence = 0.5
	}
	return bestRegion, confidence
}
