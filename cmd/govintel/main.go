// Command govintel runs one Cycle Driver pass: run_cycle(operator_id,
// use_existing_data?). It wires every pipeline component from the
// bootstrap config file and exits non-zero on the first phase failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/openpolicylabs/govintel/internal/config"
	"github.com/openpolicylabs/govintel/internal/database"
	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/cycle"
	"github.com/openpolicylabs/govintel/pkg/dedup"
	"github.com/openpolicylabs/govintel/pkg/embedding"
	"github.com/openpolicylabs/govintel/pkg/emotion"
	"github.com/openpolicylabs/govintel/pkg/issue"
	"github.com/openpolicylabs/govintel/pkg/llm"
	"github.com/openpolicylabs/govintel/pkg/location"
	"github.com/openpolicylabs/govintel/pkg/metrics"
	"github.com/openpolicylabs/govintel/pkg/orchestrator"
	"github.com/openpolicylabs/govintel/pkg/ratelimit"
	"github.com/openpolicylabs/govintel/pkg/sentiment"
	"github.com/openpolicylabs/govintel/pkg/storage/migrations"
	"github.com/openpolicylabs/govintel/pkg/storage/postgres"
	"github.com/openpolicylabs/govintel/pkg/topic"
	"github.com/openpolicylabs/govintel/pkg/types"
)

func main() {
	configPath := flag.String("config", "/etc/govintel/config.yaml", "path to the bootstrap config file")
	operatorID := flag.String("operator", "", "operator id this cycle's ingested mentions are attributed to")
	useExisting := flag.Bool("use-existing-data", false, "skip load/dedup/analyze and re-run detection+aggregation over already-completed mentions")
	skipMigrations := flag.Bool("skip-migrations", false, "do not apply pending schema migrations before running")
	listFailed := flag.Bool("list-failed", false, "print dead-lettered mentions (processing_status = failed) and exit")
	requeue := flag.String("requeue", "", "requeue a single dead-lettered mention by id and exit")
	configHistoryCategory := flag.String("config-history-category", "", "print the Config Store audit trail for this category (requires -config-history-key) and exit")
	configHistoryKey := flag.String("config-history-key", "", "key within -config-history-category to inspect")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load bootstrap config")
	}
	if cfg.Logging.Level != "" {
		if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
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

	if !*skipMigrations {
		if err := migrations.Apply(db.DB); err != nil {
			logger.WithError(err).Fatal("failed to apply migrations")
		}
	}

	store, err := config.NewStore(db, nil, nil, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config store")
	}

	mentions := postgres.NewMentionRepository(db)

	if *configHistoryCategory != "" {
		if *configHistoryKey == "" {
			logger.Fatal("-config-history-key is required with -config-history-category")
		}
		printConfigHistory(ctx, store, *configHistoryCategory, *configHistoryKey, logger)
		return
	}
	if *listFailed {
		printFailedMentions(ctx, mentions, logger)
		return
	}
	if *requeue != "" {
		if err := mentions.Requeue(ctx, *requeue); err != nil {
			logger.WithError(err).Fatal("failed to requeue mention")
		}
		logger.WithField("mention_id", *requeue).Info("mention requeued")
		return
	}

	if *operatorID == "" {
		logger.Fatal("-operator is required")
	}

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logger)
	metricsServer.StartAsync()

	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}
	limiter := ratelimit.NewLimiter(redisClient, []ratelimit.Budget{
		{Model: cfg.Providers.LLM.Model, TokensPerMin: store.GetInt("rate_limit", cfg.Providers.LLM.Model+".tpm_budget", 40000)},
		{Model: cfg.Providers.Embedding.Model, TokensPerMin: store.GetInt("rate_limit", cfg.Providers.Embedding.Model+".tpm_budget", 100000)},
	}, logger)

	embedder := embedding.NewHTTPProvider(
		os.Getenv("EMBEDDING_API_KEY"), cfg.Providers.Embedding.Endpoint, cfg.Providers.Embedding.Model,
		cfg.Providers.Embedding.Dimension, limiter, logger,
	)

	llmProvider, err := buildLLMProvider(ctx, cfg.Providers.LLM, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build LLM provider")
	}

	groupEval, err := topic.NewKeywordGroupEvaluator(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to compile keyword-group policy")
	}
	registry, err := topic.NewRegistry(ctx, cfg.Paths.ConfigDir+"/topics", embedder, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to load topic registry")
	}
	classifier := topic.NewClassifier(registry, loadTopicWeights(store), groupEval)

	analyzer := sentiment.New(llmProvider, embedder, emotion.New(), sentimentSystemPrompt, loadSentimentOptions(store))

	topics := postgres.NewTopicRepository(db)
	issues := postgres.NewIssueRepository(db)
	aggregations := postgres.NewAggregationRepository(db)

	locator := location.New(location.DefaultGazetteer())

	orch := orchestrator.New(mentions, topics, classifier, analyzer, embedder, limiter, locator, loadOrchestratorOptions(store), logger)
	dedupOptions := loadDedupOptions(store)
	dd := dedup.New(mentions, dedupOptions)
	metricsSource := issue.NewPostgresMetricsSource(issues, aggregations)
	issueOptions := loadIssueOptions(store)
	issueEngine := issue.New(issues, topics, metricsSource, issueOptions, logger)

	options := cycle.DefaultOptions()
	options.RawDataDir = cfg.Paths.RawDataDir
	options.DedupOptions = dedupOptions
	options.IssueOptions = issueOptions
	windowHours := store.GetInt("processing", "aggregation.window_hours", int(options.AggregationWindow.Hours()))
	options.AggregationWindow = time.Duration(windowHours) * time.Hour
	options.TrendEpsilon = store.GetFloat("processing", "aggregation.trend_epsilon", options.TrendEpsilon)

	driver := cycle.New(mentions, dd, orch, topics, topics, issueEngine, issues, aggregations, options, logger)

	summary, err := driver.RunCycle(ctx, *operatorID, *useExisting)
	if err != nil {
		logger.WithError(err).WithField("summary", summary).Fatal("cycle run failed")
	}

	logger.WithFields(logrus.Fields{
		"counts_per_phase":    summary.CountsPerPhase,
		"durations_per_phase": summary.DurationsPerPhase,
		"failed_mentions":     len(summary.FailedMentionIDs),
	}).Info("cycle run completed")
}

const sentimentSystemPrompt = `You analyze how a piece of public commentary portrays a government's policy or performance. Return only the requested structured fields: a sentiment label, a polarity score from -1 to 1, and a confidence from 0 to 1.`

func buildLLMProvider(ctx context.Context, cfg config.ProviderConfig, logger *logrus.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "bedrock":
		return llm.NewBedrockProvider(ctx, os.Getenv("AWS_REGION"), cfg.Model, logger)
	case "anthropic", "":
		return llm.NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"), cfg.Model, logger), nil
	default:
		return nil, apperrors.New(apperrors.ErrorTypeValidation, fmt.Sprintf("unknown llm provider %q", cfg.Provider))
	}
}

// printConfigHistory prints the Config Store's audit trail for one
// category.key, the CLI surface for the audit requirement the Config
// Store (C1) already persists on every Set.
func printConfigHistory(ctx context.Context, store *config.Store, category, key string, logger *logrus.Logger) {
	entries, err := store.ListAudit(ctx, category, key, 0)
	if err != nil {
		logger.WithError(err).Fatal("failed to list config audit history")
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s.%s\t%q -> %q\tby %s\treason: %s\n",
			e.CreatedAt.Format(time.RFC3339), e.Category, e.Key, e.OldValue, e.NewValue, e.UpdatedBy, e.Reason)
	}
}

// printFailedMentions prints every dead-lettered mention, the CLI
// surface for MentionRepository.ListFailed/Requeue (spec's dead-letter
// inspection).
func printFailedMentions(ctx context.Context, mentions *postgres.MentionRepository, logger *logrus.Logger) {
	failed, err := mentions.ListFailed(ctx, 0)
	if err != nil {
		logger.WithError(err).Fatal("failed to list dead-lettered mentions")
	}
	for _, m := range failed {
		errText := ""
		if m.ErrorText != nil {
			errText = *m.ErrorText
		}
		fmt.Printf("%s\t%s\terror: %s\n", m.ID, m.Platform, errText)
	}
}

// loadTopicWeights reads processing.topic.* overrides (spec C3's Topic
// Classifier scoring weights), falling back to DefaultScoringWeights.
func loadTopicWeights(store *config.Store) topic.ScoringWeights {
	defaults := topic.DefaultScoringWeights()
	return topic.ScoringWeights{
		KeywordWeight:     store.GetFloat("processing", "topic.keyword_weight", defaults.KeywordWeight),
		EmbeddingWeight:   store.GetFloat("processing", "topic.embedding_weight", defaults.EmbeddingWeight),
		MinScoreThreshold: store.GetFloat("processing", "topic.min_score_threshold", defaults.MinScoreThreshold),
		MaxTopics:         store.GetInt("processing", "topic.max_topics", defaults.MaxTopics),
	}
}

// loadOrchestratorOptions reads processing.parallel.* overrides (spec
// C6's Batch Orchestrator concurrency/retry knobs).
func loadOrchestratorOptions(store *config.Store) orchestrator.Options {
	defaults := orchestrator.DefaultOptions()
	retryMS := store.GetInt("processing", "parallel.retry_base_delay_ms", int(defaults.RetryBaseDelay.Milliseconds()))
	return orchestrator.Options{
		BatchSize:           store.GetInt("processing", "parallel.batch_size", defaults.BatchSize),
		MaxSentimentWorkers: store.GetInt("processing", "parallel.max_sentiment_workers", defaults.MaxSentimentWorkers),
		MaxAttempts:         store.GetInt("processing", "parallel.max_attempts", defaults.MaxAttempts),
		RetryBaseDelay:      time.Duration(retryMS) * time.Millisecond,
	}
}

// loadDedupOptions reads deduplication.* overrides (spec C8's
// Deduplicator window/threshold knobs).
func loadDedupOptions(store *config.Store) dedup.Options {
	defaults := dedup.DefaultOptions()
	windowDays := store.GetInt("deduplication", "window_days", int(defaults.WindowDuration.Hours()/24))
	dateWindowHours := store.GetInt("deduplication", "similarity_date_window_hours", int(defaults.SimilarityDateWindow.Hours()))
	return dedup.Options{
		WindowDuration:       time.Duration(windowDays) * 24 * time.Hour,
		SimilarityThreshold:  store.GetFloat("deduplication", "similarity_threshold", defaults.SimilarityThreshold),
		SimilarityDateWindow: time.Duration(dateWindowHours) * time.Hour,
	}
}

// loadIssueOptions reads processing.issue.* overrides (spec C13/C14/C15's
// clustering, matching, and volume-window knobs). Priority and lifecycle
// weights are left at their compiled defaults: the spec documents their
// factor names, not a per-factor Config Store key.
func loadIssueOptions(store *config.Store) issue.Options {
	defaults := issue.DefaultOptions()
	matchWindowHours := store.GetInt("processing", "issue.match_time_window_hours", int(defaults.MatchTimeWindow.Hours()))
	volumeWindowHours := store.GetInt("processing", "issue.volume_window_hours", int(defaults.VolumeWindow.Hours()))
	return issue.Options{
		ClusterSimilarityThreshold: store.GetFloat("processing", "issue.cluster_similarity_threshold", defaults.ClusterSimilarityThreshold),
		IssueSimilarityThreshold:   store.GetFloat("processing", "issue.issue_similarity_threshold", defaults.IssueSimilarityThreshold),
		MinClusterSize:             store.GetInt("processing", "issue.min_cluster_size", defaults.MinClusterSize),
		MatchTimeWindow:            time.Duration(matchWindowHours) * time.Hour,
		VolumeWindow:               time.Duration(volumeWindowHours) * time.Hour,
		PriorityWeights:            defaults.PriorityWeights,
		LifecycleWeights:           defaults.LifecycleWeights,
	}
}

// loadSentimentOptions reads processing.sentiment.* overrides (spec
// C9/finding on InfluenceWeight's source-class table and engagement
// boost curve).
func loadSentimentOptions(store *config.Store) sentiment.Options {
	defaults := sentiment.DefaultOptions()
	weights := make(map[types.SourceType]float64, len(defaults.SourceWeights))
	for sourceType, defaultWeight := range defaults.SourceWeights {
		weights[sourceType] = store.GetFloat("processing", "sentiment.source_weight_"+string(sourceType), defaultWeight)
	}
	return sentiment.Options{
		SourceWeights:        weights,
		EngagementBoostScale: store.GetFloat("processing", "sentiment.engagement_boost_scale", defaults.EngagementBoostScale),
	}
}
