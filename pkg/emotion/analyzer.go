// Package emotion implements the local Emotion Analyzer (spec component
// C6): a fixed-vocabulary emotion distribution computed from a lexicon,
// with no external API call, used alongside the LLM-backed polarity
// sub-task in the Sentiment Analyzer.
package emotion

import (
	"strings"

	"github.com/openpolicylabs/govintel/pkg/types"
)

// Label identifies one of the seven core emotions plus the neutral
// fallback, matching types.EmotionDistribution's fields.
type Label string

const (
	Anger    Label = "anger"
	Fear     Label = "fear"
	Trust    Label = "trust"
	Sadness  Label = "sadness"
	Joy      Label = "joy"
	Disgust  Label = "disgust"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
)

// Analyzer scores cleaned text against a fixed lexicon of emotion
// keywords. It holds no external state and is safe for concurrent use.
type Analyzer struct {
	lexicon map[Label][]string
}

// New builds an Analyzer from the built-in default lexicon. Callers
// needing a domain-tuned lexicon should use NewWithLexicon.
func New() *Analyzer {
	return NewWithLexicon(defaultLexicon)
}

// NewWithLexicon builds an Analyzer against a caller-supplied lexicon,
// keyed by emotion label to its lowercase trigger words.
func NewWithLexicon(lexicon map[Label][]string) *Analyzer {
	return &Analyzer{lexicon: lexicon}
}

// Analyze returns the emotion distribution for text. Each emotion's raw
// score is its keyword hit count; counts are normalized to sum to 1. A
// text with no keyword hits at all is scored as fully Neutral.
func (a *Analyzer) Analyze(text string) types.EmotionDistribution {
	lower := strings.ToLower(text)

	counts := make(map[Label]float64, len(a.lexicon))
	var total float64
	for label, words := range a.lexicon {
		for _, word := range words {
			if strings.Contains(lower, word) {
				counts[label]++
				total++
			}
		}
	}

	dist := types.EmotionDistribution{}
	if total == 0 {
		dist.Neutral = 1.0
		return dist
	}

	dist.Anger = counts[Anger] / total
	dist.Fear = counts[Fear] / total
	dist.Trust = counts[Trust] / total
	dist.Sadness = counts[Sadness] / total
	dist.Joy = counts[Joy] / total
	dist.Disgust = counts[Disgust] / total
	dist.Surprise = counts[Surprise] / total
	dist.Neutral = counts[Neutral] / total
	return dist
}

// PrimaryEmotion returns the arg-max label of dist, resolving ties by the
// fixed precedence order below (matches spec 4.3's "primary emotion is
// the arg-max").
func PrimaryEmotion(dist types.EmotionDistribution) Label {
	best := Neutral
	bestScore := dist.Neutral

	candidates := []struct {
		label Label
		score float64
	}{
		{Anger, dist.Anger},
		{Fear, dist.Fear},
		{Trust, dist.Trust},
		{Sadness, dist.Sadness},
		{Joy, dist.Joy},
		{Disgust, dist.Disgust},
		{Surprise, dist.Surprise},
	}
	for _, c := range candidates {
		if c.score > bestScore {
			best = c.label
			bestScore = c.score
		}
	}
	return best
}

// defaultLexicon is a small, deliberately conservative seed lexicon. A
// real deployment overrides this via NewWithLexicon with a Config Store
// entry or a loaded word list.
var defaultLexicon = map[Label][]string{
	Anger:    {"angry", "outrage", "furious", "rage", "indignant", "livid"},
	Fear:     {"afraid", "scared", "fear", "panic", "alarmed", "threat"},
	Trust:    {"trust", "confidence", "reliable", "faith", "assured", "credible"},
	Sadness:  {"sad", "grief", "mourning", "sorrow", "disappointed", "heartbroken"},
	Joy:      {"happy", "joy", "celebrate", "delighted", "thrilled", "pleased"},
	Disgust:  {"disgust", "appalled", "revolting", "repugnant", "sickened"},
	Surprise: {"surprised", "shocked", "unexpected", "astonished", "stunned"},
}
