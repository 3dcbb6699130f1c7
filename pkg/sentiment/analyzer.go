// Package sentiment implements the Sentiment Analyzer (spec component
// C9): polarity+justification via the LLM Provider, emotion distribution
// via the local Emotion Analyzer, and embedding via the Embedding
// Provider, run as three independent sub-tasks per mention, followed by
// the deterministic influence/confidence weighting.
package sentiment

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/embedding"
	"github.com/openpolicylabs/govintel/pkg/emotion"
	"github.com/openpolicylabs/govintel/pkg/llm"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// sourceWeights is the default influence-weight table from spec 4.3,
// overridable from the Config Store under processing.sentiment.
var sourceWeights = DefaultSourceWeights()

// DefaultSourceWeights returns spec 4.3's built-in source-class weight
// table, the fallback used whenever the Config Store has no
// processing.sentiment.source_weight_<source> override.
func DefaultSourceWeights() map[types.SourceType]float64 {
	return map[types.SourceType]float64{
		types.SourcePresidencyStatement: 5.0,
		types.SourceNationalMedia:       4.0,
		types.SourceVerified:            3.0,
		types.SourceBroadcast:           2.0,
		types.SourceCitizen:             1.0,
	}
}

// DefaultEngagementBoostScale is the multiplier applied to the log10
// engagement curve absent a processing.sentiment.engagement_boost_scale
// override.
const DefaultEngagementBoostScale = 0.5

// Options configures the per-Analyzer influence-weighting inputs (spec
// 4.3's processing.sentiment.* config block).
type Options struct {
	SourceWeights        map[types.SourceType]float64
	EngagementBoostScale float64
}

// DefaultOptions matches the package-level defaults used by the exported
// InfluenceWeight helper.
func DefaultOptions() Options {
	return Options{
		SourceWeights:        DefaultSourceWeights(),
		EngagementBoostScale: DefaultEngagementBoostScale,
	}
}

// Analyzer orchestrates the Sentiment Analyzer's three sub-tasks for one
// mention at a time.
type Analyzer struct {
	llmProvider     llm.Provider
	embedder        embedding.Provider
	emotionAnalyzer *emotion.Analyzer
	systemPrompt    string
	options         Options
}

// Result is everything the Sentiment Analyzer derives for a single
// mention.
type Result struct {
	SentimentLabel      types.SentimentLabel
	SentimentScore      float64
	Justification       string
	TopicHints          []string
	EmotionDistribution types.EmotionDistribution
	PrimaryEmotionLabel string
	EmotionScore        float64
	InfluenceWeight     float64
	ConfidenceWeight    float64
	Embedding           embedding.Vector
	EmotionOnly         bool // never set by Analyze: an LLM sub-task failure returns an error instead of a partial Result
}

// New builds an Analyzer. emotionAnalyzer may be nil, in which case
// emotion.New()'s default lexicon is used. options' zero value (no
// SourceWeights, zero EngagementBoostScale) falls back to DefaultOptions.
func New(llmProvider llm.Provider, embedder embedding.Provider, emotionAnalyzer *emotion.Analyzer, systemPrompt string, options Options) *Analyzer {
	if emotionAnalyzer == nil {
		emotionAnalyzer = emotion.New()
	}
	if options.SourceWeights == nil {
		options.SourceWeights = DefaultSourceWeights()
	}
	if options.EngagementBoostScale <= 0 {
		options.EngagementBoostScale = DefaultEngagementBoostScale
	}
	return &Analyzer{
		llmProvider:     llmProvider,
		embedder:        embedder,
		emotionAnalyzer: emotionAnalyzer,
		systemPrompt:    systemPrompt,
		options:         options,
	}
}

// Input is the per-mention data the analyzer needs.
type Input struct {
	Text       string
	SourceType types.SourceType
	Engagement types.Engagement
}

// Analyze runs the three sub-tasks concurrently and combines them into a
// Result. If the LLM sub-task fails even after its one built-in retry
// (handled inside the llm.Provider implementations), Analyze returns an
// error so the caller can mark the mention failed per spec 4.3.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, error) {
	var polarity *llm.PolarityResponse
	var emotionDist types.EmotionDistribution
	var vec embedding.Vector

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resp, err := a.llmProvider.Complete(gctx, llm.PolarityRequest{
			SystemPrompt: a.systemPrompt,
			Text:         in.Text,
			SourceType:   string(in.SourceType),
		})
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "sentiment polarity sub-task failed")
		}
		polarity = resp
		return nil
	})

	g.Go(func() error {
		emotionDist = a.emotionAnalyzer.Analyze(in.Text)
		return nil
	})

	g.Go(func() error {
		embedded, err := a.embedder.Embed(gctx, embedding.Truncate(in.Text))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "sentiment embedding sub-task failed")
		}
		vec = embedded
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	primary := emotion.PrimaryEmotion(emotionDist)
	emotionConfidence := maxEmotion(emotionDist)

	result := &Result{
		SentimentLabel:      types.SentimentLabelForScore(polarity.Score),
		SentimentScore:      polarity.Score,
		Justification:       polarity.Justification,
		TopicHints:          polarity.TopicHints,
		EmotionDistribution: emotionDist,
		PrimaryEmotionLabel: string(primary),
		EmotionScore:        emotionConfidence,
		InfluenceWeight:     a.influenceWeight(in.SourceType, in.Engagement),
		ConfidenceWeight:    math.Abs(polarity.Score) * emotionConfidence,
		Embedding:           vec,
	}
	return result, nil
}

func maxEmotion(d types.EmotionDistribution) float64 {
	m := d.Anger
	for _, v := range []float64{d.Fear, d.Trust, d.Sadness, d.Joy, d.Disgust, d.Surprise, d.Neutral} {
		if v > m {
			m = v
		}
	}
	return m
}

// InfluenceWeight implements spec 4.3's deterministic post-hoc weighting
// using the package-level default source-weight table and engagement
// boost scale: a base weight from the source-class table, boosted (never
// past the next band) by engagement. Kept as a free function so callers
// without a Config-Store-backed Analyzer (and its tests) can compute the
// default weighting directly; an Analyzer built with Options uses
// influenceWeight instead, so its recomputation reflects any overrides.
func InfluenceWeight(sourceType types.SourceType, eng types.Engagement) float64 {
	return weighInfluence(sourceWeights, DefaultEngagementBoostScale, sourceType, eng)
}

func (a *Analyzer) influenceWeight(sourceType types.SourceType, eng types.Engagement) float64 {
	return weighInfluence(a.options.SourceWeights, a.options.EngagementBoostScale, sourceType, eng)
}

func weighInfluence(weights map[types.SourceType]float64, boostScale float64, sourceType types.SourceType, eng types.Engagement) float64 {
	base, ok := weights[sourceType]
	if !ok {
		base = weights[types.SourceCitizen]
	}

	boosted := base + engagementBoost(eng, boostScale)

	nextBand := nextBandCeiling(base)
	if boosted > nextBand {
		boosted = nextBand
	}
	if boosted > 5.0 {
		boosted = 5.0
	}
	return boosted
}

// engagementBoost grows monotonically with total engagement, using a log
// curve (scale configurable via processing.sentiment.engagement_boost_scale)
// so a single viral mention cannot dominate the band.
func engagementBoost(eng types.Engagement, scale float64) float64 {
	total := int64(0)
	if eng.Likes != nil {
		total += *eng.Likes
	}
	if eng.Shares != nil {
		total += *eng.Shares * 3
	}
	if eng.Comments != nil {
		total += *eng.Comments * 2
	}
	if total <= 0 {
		return 0
	}
	return math.Log10(float64(total)+1) * scale
}

// nextBandCeiling returns the ceiling a base weight's engagement boost
// must not cross, keeping boosted weights from leapfrogging more than one
// influence band.
func nextBandCeiling(base float64) float64 {
	switch {
	case base >= 5.0:
		return 5.0
	case base >= 4.0:
		return 5.0
	case base >= 3.0:
		return 4.0
	case base >= 2.0:
		return 3.0
	default:
		return 2.0
	}
}
