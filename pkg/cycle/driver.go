// Package cycle implements the Cycle Driver (spec component C18):
// sequences the pipeline's six phases (raw load, dedup, classify+analyze,
// location label, issue detection, per-issue aggregation) behind a single
// run_cycle(operator_id, use_existing_data?) entry point, and returns a
// summary of counts, failures, and durations per phase.
package cycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openpolicylabs/govintel/pkg/aggregation"
	"github.com/openpolicylabs/govintel/pkg/dedup"
	"github.com/openpolicylabs/govintel/pkg/issue"
	"github.com/openpolicylabs/govintel/pkg/metrics"
	"github.com/openpolicylabs/govintel/pkg/orchestrator"
	"github.com/openpolicylabs/govintel/pkg/rawloader"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
	"github.com/openpolicylabs/govintel/pkg/storage/postgres"
	"github.com/openpolicylabs/govintel/pkg/types"
)

var tracer = otel.Tracer("github.com/openpolicylabs/govintel/pkg/cycle")

// Phase names, used both as summary keys and otel span/metric labels.
// Location labeling (spec's "Location label" pipeline step) runs inline
// inside PhaseAnalyze, in the same per-mention commit the orchestrator
// already makes for sentiment/emotion fields, rather than as its own
// pass over already-completed rows.
const (
	PhaseLoad      = "raw_load"
	PhaseDedup     = "dedup"
	PhaseAnalyze   = "classify_analyze"
	PhaseIssue     = "issue_detection"
	PhaseAggregate = "aggregation"
)

// MentionInserter is the subset of MentionRepository the loader/dedup
// phases need to persist newly accepted records.
type MentionInserter interface {
	Insert(ctx context.Context, m types.Mention, url string) (string, error)
}

// TopicLister enumerates active topics so the issue-detection phase can
// run per topic.
type TopicLister interface {
	ListActive(ctx context.Context) ([]types.Topic, error)
}

// TopicCandidateSource supplies the unassigned-mention clustering input
// per topic.
type TopicCandidateSource interface {
	UnassignedByTopic(ctx context.Context, topicKey string) ([]postgres.CandidateMention, error)
}

// IssueLister enumerates a topic's active issues so the aggregation
// phase can recompute each one, not just the topic-level snapshot (spec
// §2's per-issue aggregation, mandatory every cycle, not only on the
// background scheduler's interval).
type IssueLister interface {
	ActiveByTopic(ctx context.Context, topicKey string) ([]types.Issue, error)
}

// Options configures the driver's phase behavior.
type Options struct {
	RawDataDir        string
	DedupOptions      dedup.Options
	IssueOptions      issue.Options
	AggregationWindow time.Duration
	TrendEpsilon      float64
}

// DefaultOptions matches the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		DedupOptions:      dedup.DefaultOptions(),
		IssueOptions:      issue.DefaultOptions(),
		AggregationWindow: 24 * time.Hour,
		TrendEpsilon:      aggregation.DefaultTrendEpsilon,
	}
}

// Driver sequences the six pipeline phases for one run_cycle call.
type Driver struct {
	mentions   MentionInserter
	dedup      *dedup.Deduplicator
	orch       *orchestrator.Orchestrator
	topics     TopicLister
	candidates TopicCandidateSource
	issues     *issue.Engine
	issueStore IssueLister
	aggStore   *postgres.AggregationRepository
	options    Options
	logger     *logrus.Logger
}

// New builds a Driver.
func New(
	mentions MentionInserter,
	dd *dedup.Deduplicator,
	orch *orchestrator.Orchestrator,
	topics TopicLister,
	candidates TopicCandidateSource,
	issues *issue.Engine,
	issueStore IssueLister,
	aggStore *postgres.AggregationRepository,
	options Options,
	logger *logrus.Logger,
) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Driver{
		mentions: mentions, dedup: dd, orch: orch,
		topics: topics, candidates: candidates, issues: issues, issueStore: issueStore, aggStore: aggStore,
		options: options, logger: logger,
	}
}

// Summary is the cycle driver's user-visible result (spec §7).
type Summary struct {
	CountsPerPhase    map[string]int
	FailedMentionIDs  []string
	DurationsPerPhase map[string]time.Duration
}

func newSummary() Summary {
	return Summary{
		CountsPerPhase:    make(map[string]int),
		DurationsPerPhase: make(map[string]time.Duration),
	}
}

// RunCycle executes run_cycle(operator_id, use_existing_data). When
// useExistingData is true, phases 1-3 are skipped and phase 4 becomes an
// enrichment-only pass over mentions already embedded and sentiment-
// labeled (spec §6): this driver treats that as "skip load/dedup/analyze
// entirely and proceed straight to issue detection and aggregation"
// (location labeling, which runs inside the analyze phase, is skipped
// too), since
// mentions already `completed` carry every derived field phase 4 would
// otherwise produce.
func (d *Driver) RunCycle(ctx context.Context, operatorID string, useExistingData bool) (Summary, error) {
	ctx, span := tracer.Start(ctx, "cycle.run", trace.WithAttributes(
		attribute.String("operator_id", operatorID),
		attribute.Bool("use_existing_data", useExistingData),
	))
	defer span.End()

	summary := newSummary()

	if !useExistingData {
		loadPhase := func(ctx context.Context, summary *Summary) error {
			return d.loadAndInsert(ctx, summary, operatorID)
		}
		if err := d.runPhase(ctx, PhaseLoad, &summary, loadPhase); err != nil {
			return summary, err
		}
		if err := d.runPhase(ctx, PhaseAnalyze, &summary, d.analyze); err != nil {
			return summary, err
		}
	}

	if err := d.runPhase(ctx, PhaseIssue, &summary, d.detectIssues); err != nil {
		return summary, err
	}
	if err := d.runPhase(ctx, PhaseAggregate, &summary, d.aggregate); err != nil {
		return summary, err
	}

	return summary, nil
}

func (d *Driver) runPhase(ctx context.Context, phase string, summary *Summary, fn func(context.Context, *Summary) error) error {
	ctx, span := tracer.Start(ctx, "cycle."+phase)
	defer span.End()

	start := time.Now()
	err := fn(ctx, summary)
	elapsed := time.Since(start)
	summary.DurationsPerPhase[phase] = elapsed
	metrics.RecordCyclePhase(phase, elapsed)

	d.logger.WithFields(logging.PipelineFields(phase, "run_phase").
		Duration(elapsed).Error(err).ToLogrus()).
		Info("cycle phase completed")
	return err
}

// loadAndInsert runs the Raw Loader and Dedup phases: read CSV records,
// filter duplicates against the ingestion window, and insert the
// survivors as pending mentions.
func (d *Driver) loadAndInsert(ctx context.Context, summary *Summary, operatorID string) error {
	loader := rawloader.New(d.options.RawDataDir)
	records, err := loader.LoadAll()
	if err != nil {
		return err
	}
	summary.CountsPerPhase[PhaseLoad] = len(records)

	candidates := make([]dedup.Candidate, len(records))
	for i, r := range records {
		candidates[i] = dedup.Candidate{URL: r.URL, Text: r.Text, PublishedAt: r.PublishedAt}
	}
	_, rejected, err := d.dedup.Filter(ctx, candidates)
	if err != nil {
		return err
	}

	var inserted int
	for i, r := range records {
		if _, isDup := rejected[i]; isDup {
			continue
		}
		m := r.ToMention(operatorID)
		if err := types.ValidateNew(m, "ID"); err != nil {
			d.logger.WithFields(logging.PipelineFields(PhaseLoad, "validate").Error(err).ToLogrus()).
				Warn("dropping invalid raw record")
			continue
		}
		if _, err := d.mentions.Insert(ctx, m, r.URL); err != nil {
			return err
		}
		inserted++
	}
	summary.CountsPerPhase[PhaseDedup] = inserted
	return nil
}

// analyze runs the Batch Orchestrator (classify + sentiment analysis)
// until no pending mentions remain.
func (d *Driver) analyze(ctx context.Context, summary *Summary) error {
	for {
		result, err := d.orch.RunBatch(ctx)
		if err != nil {
			return err
		}
		summary.CountsPerPhase[PhaseAnalyze] += result.Completed
		summary.CountsPerPhase["failed"] += result.Failed
		if result.Claimed == 0 {
			return nil
		}
	}
}

// detectIssues runs Issue Clustering and the Issue Detection Engine for
// every active topic.
func (d *Driver) detectIssues(ctx context.Context, summary *Summary) error {
	topics, err := d.topics.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, t := range topics {
		rows, err := d.candidates.UnassignedByTopic(ctx, t.Key)
		if err != nil {
			return err
		}
		views := make([]issue.CandidateMentionView, len(rows))
		textByID := make(map[string]string, len(rows))
		for i, r := range rows {
			views[i] = issue.CandidateMentionView{
				MentionID: r.MentionID, Embedding: []float64(r.Embedding), PublishedAt: r.PublishedAt,
			}
			textByID[r.MentionID] = r.Text
		}
		if err := d.issues.ProcessTopic(ctx, t.Key, views, func(id string) string { return textByID[id] }); err != nil {
			return err
		}
		summary.CountsPerPhase[PhaseIssue] += len(rows)
	}
	return nil
}

// aggregate recomputes the sentiment aggregation for every active topic's
// current window, then snapshots and recomputes every issue still open
// under that topic (spec 4.6 + §2's Phase 6: per-issue aggregation is
// mandatory on every cycle, not just the background scheduler's
// interval-driven refresh).
func (d *Driver) aggregate(ctx context.Context, summary *Summary) error {
	topics, err := d.topics.ListActive(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, t := range topics {
		members, err := d.aggStore.MembersForTopic(ctx, t.Key, d.options.AggregationWindow, now)
		if err != nil {
			return err
		}
		snapshot := aggregation.Snapshot(members)
		snapshot.AggregationType = types.AggregationTopic
		snapshot.AggregationKey = t.Key
		snapshot.TimeWindow = types.Window24h
		if err := d.aggStore.Upsert(ctx, snapshot); err != nil {
			return err
		}
		summary.CountsPerPhase[PhaseAggregate]++

		if err := d.aggregateIssuesForTopic(ctx, t.Key, summary); err != nil {
			return err
		}
	}
	return nil
}

// aggregateIssuesForTopic snapshots the sentiment aggregation for, and
// recomputes the volume/velocity/priority/metadata of, every active
// issue under topicKey.
func (d *Driver) aggregateIssuesForTopic(ctx context.Context, topicKey string, summary *Summary) error {
	if d.issueStore == nil {
		return nil
	}
	issues, err := d.issueStore.ActiveByTopic(ctx, topicKey)
	if err != nil {
		return err
	}
	for _, iss := range issues {
		members, err := d.aggStore.MembersForIssue(ctx, iss.ID)
		if err != nil {
			return err
		}
		snapshot := aggregation.Snapshot(members)
		snapshot.AggregationType = types.AggregationIssue
		snapshot.AggregationKey = iss.ID
		snapshot.TimeWindow = types.Window24h
		if err := d.aggStore.Upsert(ctx, snapshot); err != nil {
			return err
		}

		if err := d.issues.RecomputeAndPersist(ctx, iss.ID); err != nil {
			d.logger.WithFields(logging.PipelineFields(PhaseAggregate, "recompute_issue_metrics").
				Custom("issue_id", iss.ID).Error(err).ToLogrus()).
				Warn("issue metrics recompute failed during aggregation phase")
		}
		summary.CountsPerPhase[PhaseAggregate]++
	}
	return nil
}
