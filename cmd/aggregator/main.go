// Command aggregator recomputes sentiment aggregations and trends on a
// fixed interval (spec 4.6: "stored once per refresh cycle, default
// every 24h"), independent of the Cycle Driver's on-demand aggregation
// pass. It runs the current-vs-previous window trend comparison for
// every active topic and every active issue.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openpolicylabs/govintel/internal/config"
	"github.com/openpolicylabs/govintel/internal/database"
	"github.com/openpolicylabs/govintel/pkg/aggregation"
	"github.com/openpolicylabs/govintel/pkg/issue"
	"github.com/openpolicylabs/govintel/pkg/metrics"
	"github.com/openpolicylabs/govintel/pkg/storage/postgres"
	"github.com/openpolicylabs/govintel/pkg/types"
)

func main() {
	configPath := flag.String("config", "/etc/govintel/config.yaml", "path to the bootstrap config file")
	interval := flag.Duration("interval", 24*time.Hour, "refresh cycle interval")
	window := flag.Duration("window", 24*time.Hour, "aggregation window width")
	lookbackDays := flag.Int("lookback-days", aggregation.DefaultLookbackDays, "rolling baseline lookback, in days")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load bootstrap config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbConfig := database.DefaultConfig()
	dbConfig.Host = cfg.Database.Host
	dbConfig.Port = cfg.Database.Port
	dbConfig.Database = cfg.Database.Name
	dbConfig.LoadFromEnv()

	db, err := database.Connect(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logger)
	metricsServer.StartAsync()

	topics := postgres.NewTopicRepository(db)
	issues := postgres.NewIssueRepository(db)
	aggStore := postgres.NewAggregationRepository(db)
	metricsSource := issue.NewPostgresMetricsSource(issues, aggStore)
	issueEngine := issue.New(issues, nil, metricsSource, issue.DefaultOptions(), logger)

	runRefreshCycle(ctx, topics, issues, issueEngine, aggStore, *window, *lookbackDays, logger)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("aggregator shutting down")
			return
		case <-ticker.C:
			runRefreshCycle(ctx, topics, issues, issueEngine, aggStore, *window, *lookbackDays, logger)
		}
	}
}

func runRefreshCycle(
	ctx context.Context,
	topics *postgres.TopicRepository,
	issues *postgres.IssueRepository,
	issueEngine *issue.Engine,
	aggStore *postgres.AggregationRepository,
	window time.Duration,
	lookbackDays int,
	logger *logrus.Logger,
) {
	now := time.Now()
	start := time.Now()

	active, err := topics.ListActive(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to list active topics for refresh cycle")
		return
	}

	for _, t := range active {
		if err := refreshAggregation(ctx, aggStore, types.AggregationTopic, t.Key, window, now); err != nil {
			logger.WithError(err).WithField("topic_key", t.Key).Error("failed to refresh topic aggregation")
		}
		if err := refreshBaseline(ctx, aggStore, t.Key, lookbackDays, now); err != nil {
			logger.WithError(err).WithField("topic_key", t.Key).Error("failed to refresh topic baseline")
		}
	}

	for _, t := range active {
		openIssues, err := issues.ActiveByTopic(ctx, t.Key)
		if err != nil {
			logger.WithError(err).WithField("topic_key", t.Key).Error("failed to list active issues for refresh cycle")
			continue
		}
		for _, iss := range openIssues {
			if err := refreshIssueAggregation(ctx, aggStore, iss.ID, window, now); err != nil {
				logger.WithError(err).WithField("issue_id", iss.ID).Error("failed to refresh issue aggregation")
			}
			if err := issueEngine.RecomputeAndPersist(ctx, iss.ID); err != nil {
				logger.WithError(err).WithField("issue_id", iss.ID).Error("failed to recompute issue metrics")
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"topics_refreshed": len(active),
		"duration":         time.Since(start).String(),
	}).Info("refresh cycle completed")
}

// refreshBaseline recomputes a topic's rolling sentiment baseline from
// its trailing day-bucketed history (spec 4.6's Baseline), the
// period-over-period trend's reference point for NormalizedScore.
func refreshBaseline(ctx context.Context, aggStore *postgres.AggregationRepository, topicKey string, lookbackDays int, now time.Time) error {
	rows, err := aggStore.DailyBucketsForTopic(ctx, topicKey, lookbackDays, now)
	if err != nil {
		return err
	}
	buckets := make([]aggregation.DailyBucket, len(rows))
	for i, r := range rows {
		buckets[i] = aggregation.DailyBucket{Day: r.Day, MeanSentiment: r.MeanSentiment, SampleSize: r.SampleSize}
	}
	baseline := aggregation.Baseline(topicKey, buckets, lookbackDays)
	return aggStore.UpsertBaseline(ctx, baseline)
}

// refreshAggregation recomputes the current window's snapshot, then
// compares it against the immediately preceding window of equal width to
// produce the period-over-period trend (spec 4.6).
func refreshAggregation(ctx context.Context, aggStore *postgres.AggregationRepository, aggType types.AggregationType, key string, window time.Duration, now time.Time) error {
	previous, err := aggStore.Get(ctx, aggType, key, types.Window24h)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	currentMembers, err := aggStore.MembersForTopic(ctx, key, window, now)
	if err != nil {
		return err
	}
	current := aggregation.Snapshot(currentMembers)
	current.AggregationType = aggType
	current.AggregationKey = key
	current.TimeWindow = types.Window24h
	if err := aggStore.Upsert(ctx, current); err != nil {
		return err
	}

	periodStart := now.Add(-window)
	trend := aggregation.Trend(aggType, key, current, previous, periodStart, now, aggregation.DefaultTrendEpsilon)
	return aggStore.UpsertTrend(ctx, trend)
}

func refreshIssueAggregation(ctx context.Context, aggStore *postgres.AggregationRepository, issueID string, window time.Duration, now time.Time) error {
	previous, err := aggStore.Get(ctx, types.AggregationIssue, issueID, types.Window24h)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	members, err := aggStore.MembersForIssue(ctx, issueID)
	if err != nil {
		return err
	}
	current := aggregation.Snapshot(members)
	current.AggregationType = types.AggregationIssue
	current.AggregationKey = issueID
	current.TimeWindow = types.Window24h
	if err := aggStore.Upsert(ctx, current); err != nil {
		return err
	}

	periodStart := now.Add(-window)
	trend := aggregation.Trend(types.AggregationIssue, issueID, current, previous, periodStart, now, aggregation.DefaultTrendEpsilon)
	return aggStore.UpsertTrend(ctx, trend)
}
