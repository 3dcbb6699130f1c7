package issue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openpolicylabs/govintel/pkg/shared/logging"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// IssueStore is the persistence surface the Issue Detection Engine needs
// from pkg/storage/postgres.IssueRepository.
type IssueStore interface {
	ActiveByTopic(ctx context.Context, topicKey string) ([]types.Issue, error)
	Create(ctx context.Context, iss types.Issue) (string, error)
	AddMention(ctx context.Context, issueID, mentionID, topicKey string, similarity float64, centroid []float64) error
	UpdateMetrics(ctx context.Context, iss types.Issue) error
	Get(ctx context.Context, id string) (types.Issue, error)
}

// TopicStore is the persistence surface the engine needs beyond
// candidate retrieval, matching pkg/storage/postgres.TopicRepository.
type TopicStore interface {
	AssignIssue(ctx context.Context, mentionID, topicKey, issueID string) error
}

// MemberView is one issue member mention's raw material for Issue
// Metadata (top keywords/sources/regions impacted).
type MemberView struct {
	Text     string
	Source   string
	Location string
}

// MetricsSource supplies the window-bounded volume counts, sentiment
// aggregation, and member metadata that Issue Metrics recomputation (spec
// 4.5's Recomputation) needs every time an issue's membership changes.
type MetricsSource interface {
	VolumeWindows(ctx context.Context, issueID string, window time.Duration, now time.Time) (current, previous int, err error)
	Aggregation(ctx context.Context, issueID string) (types.SentimentAggregation, error)
	Members(ctx context.Context, issueID string) ([]MemberView, error)
}

// MentionText resolves a mention's text for keyword extraction, since
// CandidateMention rows don't carry the body.
type MentionText func(mentionID string) string

// DefaultVolumeWindow is the window width compared current-vs-previous
// for an issue's volume/velocity recomputation.
const DefaultVolumeWindow = 24 * time.Hour

// Options configures the clustering/matching/priority thresholds (spec
// 4.5's processing.issue.* config block).
type Options struct {
	ClusterSimilarityThreshold float64
	IssueSimilarityThreshold   float64
	MinClusterSize             int
	MatchTimeWindow            time.Duration
	VolumeWindow               time.Duration
	PriorityWeights            PriorityWeights
	LifecycleWeights           LifecycleWeights
}

// DefaultOptions matches the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		ClusterSimilarityThreshold: DefaultClusterSimilarityThreshold,
		IssueSimilarityThreshold:   DefaultIssueSimilarityThreshold,
		MinClusterSize:             DefaultMinClusterSize,
		MatchTimeWindow:            DefaultMatchTimeWindow,
		VolumeWindow:               DefaultVolumeWindow,
		PriorityWeights:            DefaultPriorityWeights(),
		LifecycleWeights:           DefaultLifecycleWeights(),
	}
}

// Engine runs Issue Clustering and the Issue Detection Engine for one
// topic at a time (spec components C13/C14).
type Engine struct {
	issues  IssueStore
	topics  TopicStore
	metrics MetricsSource
	options Options
	logger  *logrus.Logger
}

// New builds an Engine. metrics may be nil, in which case a new or
// attached issue's volume/velocity/priority/lifecycle/metadata fields are
// left at their prior values until a caller with a MetricsSource
// recomputes them (e.g. the background aggregation scheduler).
func New(issues IssueStore, topics TopicStore, metrics MetricsSource, options Options, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{issues: issues, topics: topics, metrics: metrics, options: options, logger: logger}
}

// ProcessTopic clusters a topic's unassigned mentions, matches each
// cluster against existing issues or creates new ones, and persists the
// result (spec 4.5's per-topic pass). textOf resolves mention text for
// keyword extraction when a new issue must be created.
func (e *Engine) ProcessTopic(ctx context.Context, topicKey string, candidates []CandidateMentionView, textOf MentionText) error {
	members := make([]Member, len(candidates))
	for i, c := range candidates {
		members[i] = Member{MentionID: c.MentionID, Embedding: c.Embedding, PublishedAt: c.PublishedAt}
	}
	clusters := ClusterMentions(members, e.options.ClusterSimilarityThreshold)

	for _, cluster := range clusters {
		if err := e.resolveCluster(ctx, topicKey, cluster, textOf); err != nil {
			return err
		}
	}
	return nil
}

// CandidateMentionView is the clustering input the caller assembles from
// pkg/storage/postgres.TopicRepository.UnassignedByTopic.
type CandidateMentionView struct {
	MentionID   string
	Embedding   []float64
	PublishedAt time.Time
}

func (e *Engine) resolveCluster(ctx context.Context, topicKey string, cluster Cluster, textOf MentionText) error {
	candidates, err := e.issues.ActiveByTopic(ctx, topicKey)
	if err != nil {
		return err
	}

	decision := MatchOrCreate(cluster, candidates, e.options.IssueSimilarityThreshold, e.options.MatchTimeWindow, e.options.MinClusterSize)

	switch {
	case decision.Attach:
		return e.attach(ctx, topicKey, cluster, decision)
	case decision.ShouldCreate:
		return e.create(ctx, topicKey, cluster, textOf)
	default:
		e.logger.WithFields(logging.PipelineFields("issue", "cluster_below_threshold").
			Custom("topic_key", topicKey).Custom("cluster_size", len(cluster.Members)).ToLogrus()).
			Debug("cluster too small to match or create")
		return nil
	}
}

func (e *Engine) attach(ctx context.Context, topicKey string, cluster Cluster, decision MatchDecision) error {
	for _, m := range cluster.Members {
		if err := e.issues.AddMention(ctx, decision.IssueID, m.MentionID, topicKey, decision.Similarity, decision.WeightedCentroid); err != nil {
			return err
		}
		if err := e.topics.AssignIssue(ctx, m.MentionID, topicKey, decision.IssueID); err != nil {
			return err
		}
	}
	e.logger.WithFields(logging.PipelineFields("issue", "attach").
		Custom("issue_id", decision.IssueID).Custom("similarity", decision.Similarity).
		Custom("cluster_size", len(cluster.Members)).ToLogrus()).
		Info("cluster attached to existing issue")

	if err := e.RecomputeAndPersist(ctx, decision.IssueID); err != nil {
		e.logger.WithFields(logging.PipelineFields("issue", "attach").
			Custom("issue_id", decision.IssueID).ToLogrus()).
			WithError(err).Warn("issue metrics recompute failed after attach")
	}
	return nil
}

func (e *Engine) create(ctx context.Context, topicKey string, cluster Cluster, textOf MentionText) error {
	texts := make(map[string]string, len(cluster.Members))
	for _, m := range cluster.Members {
		texts[m.MentionID] = textOf(m.MentionID)
	}
	draft := BuildNewIssueDraft(topicKey, cluster, texts)

	now := cluster.LatestPublishedAt()
	iss := types.Issue{
		Slug: draft.Slug, Label: draft.Label, AutoTitle: draft.AutoTitle,
		PrimaryTopicKey: topicKey, State: types.IssueEmerging,
		StartTime: now, LastActivity: now, MentionCount: len(cluster.Members),
		ClusterCentroidEmbedding: cluster.Centroid,
		SimilarityThreshold:      e.options.IssueSimilarityThreshold,
		TopKeywords:              draft.TopKeywords,
	}
	issueID, err := e.issues.Create(ctx, iss)
	if err != nil {
		return err
	}
	for _, m := range cluster.Members {
		if err := e.issues.AddMention(ctx, issueID, m.MentionID, topicKey, 1.0, cluster.Centroid); err != nil {
			return err
		}
		if err := e.topics.AssignIssue(ctx, m.MentionID, topicKey, issueID); err != nil {
			return err
		}
	}
	e.logger.WithFields(logging.PipelineFields("issue", "create").
		Custom("issue_id", issueID).Custom("topic_key", topicKey).
		Custom("cluster_size", len(cluster.Members)).ToLogrus()).
		Info("new issue created from cluster")

	if err := e.RecomputeAndPersist(ctx, issueID); err != nil {
		e.logger.WithFields(logging.PipelineFields("issue", "create").
			Custom("issue_id", issueID).ToLogrus()).
			WithError(err).Warn("issue metrics recompute failed after create")
	}
	return nil
}

// RecomputeAndPersist reloads an issue, recomputes its volume, velocity,
// priority, lifecycle state, and metadata (top keywords/sources/regions
// impacted) from current member mentions, and persists the result (spec
// 4.5's Recomputation). It is a no-op if the engine was built without a
// MetricsSource, so callers that only need clustering/matching (e.g. unit
// tests) don't need to fake one. It is also called directly by the
// scheduled aggregation pass (cmd/aggregator) so metrics stay fresh
// between membership changes.
func (e *Engine) RecomputeAndPersist(ctx context.Context, issueID string) error {
	if e.metrics == nil {
		return nil
	}

	iss, err := e.issues.Get(ctx, issueID)
	if err != nil {
		return err
	}

	now := time.Now()
	window := e.options.VolumeWindow
	if window <= 0 {
		window = DefaultVolumeWindow
	}
	current, previous, err := e.metrics.VolumeWindows(ctx, issueID, window, now)
	if err != nil {
		return err
	}

	agg, err := e.metrics.Aggregation(ctx, issueID)
	if err != nil {
		return err
	}

	members, err := e.metrics.Members(ctx, issueID)
	if err != nil {
		return err
	}
	texts := make([]string, 0, len(members))
	sources := make([]string, 0, len(members))
	locations := make([]string, 0, len(members))
	for _, m := range members {
		texts = append(texts, m.Text)
		sources = append(sources, m.Source)
		locations = append(locations, m.Location)
	}

	iss = e.RecomputeMetrics(iss, current, previous, agg.SentimentIndex, now)
	iss.SentimentDistribution = agg.SentimentDistribution
	iss.TopKeywords = TopKeywords(texts, DefaultTopKeywordsCount)
	iss.TopSources = TopSources(sources, DefaultTopSourcesCount)
	iss.RegionsImpacted = RegionsImpacted(locations, DefaultRegionsImpactedCount)

	return e.issues.UpdateMetrics(ctx, iss)
}

// RecomputeMetrics applies spec 4.5's volume/velocity/priority/lifecycle
// recomputation to an issue given freshly counted window volumes and a
// sentiment aggregation already computed for it (pkg/aggregation's
// output). Metadata (top keywords/sources/regions) is left to the
// caller, which has the member mention texts/sources/locations this
// package does not fetch on its own.
func (e *Engine) RecomputeMetrics(iss types.Issue, volumeCurrent, volumePrevious int, sentimentIndex float64, now time.Time) types.Issue {
	iss.VolumeCurrentWindow = volumeCurrent
	iss.VolumePreviousWindow = volumePrevious
	iss.VelocityPercent = Velocity(volumeCurrent, volumePrevious)
	iss.VelocityScore = VelocityScore(iss.VelocityPercent)
	iss.SentimentIndex = sentimentIndex

	iss.PriorityScore = PriorityScore(PriorityInputs{
		SentimentIndex: sentimentIndex,
		MentionCount:   iss.MentionCount,
		Age:            now.Sub(iss.LastActivity),
		VelocityScore:  iss.VelocityScore,
	}, e.options.PriorityWeights)
	iss.PriorityBand = types.PriorityBandForScore(iss.PriorityScore)

	iss.State = NextState(LifecycleInputs{
		Now: now, StartTime: iss.StartTime, LastActivity: iss.LastActivity,
		MentionCount: iss.MentionCount, SentimentIndex: sentimentIndex, VelocityPercent: iss.VelocityPercent,
	}, e.options.LifecycleWeights)
	if iss.State == types.IssueResolved {
		resolvedAt := now
		iss.ResolvedAt = &resolvedAt
	}
	return iss
}
