package issue

import (
	"context"
	"time"

	"github.com/openpolicylabs/govintel/pkg/aggregation"
	"github.com/openpolicylabs/govintel/pkg/storage/postgres"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// PostgresMetricsSource composes the issue and aggregation repositories
// into a MetricsSource, keeping the import of pkg/aggregation (which
// itself imports pkg/storage/postgres for MentionMember) out of the
// storage package to avoid a cycle.
type PostgresMetricsSource struct {
	issues       *postgres.IssueRepository
	aggregations *postgres.AggregationRepository
}

// NewPostgresMetricsSource builds a PostgresMetricsSource.
func NewPostgresMetricsSource(issues *postgres.IssueRepository, aggregations *postgres.AggregationRepository) *PostgresMetricsSource {
	return &PostgresMetricsSource{issues: issues, aggregations: aggregations}
}

// VolumeWindows delegates to IssueRepository.VolumeWindows.
func (s *PostgresMetricsSource) VolumeWindows(ctx context.Context, issueID string, window time.Duration, now time.Time) (int, int, error) {
	return s.issues.VolumeWindows(ctx, issueID, window, now)
}

// Aggregation recomputes an issue's sentiment aggregation snapshot from
// its current member mentions (pkg/aggregation's Sentiment Aggregator).
func (s *PostgresMetricsSource) Aggregation(ctx context.Context, issueID string) (types.SentimentAggregation, error) {
	members, err := s.aggregations.MembersForIssue(ctx, issueID)
	if err != nil {
		return types.SentimentAggregation{}, err
	}
	agg := aggregation.Snapshot(members)
	agg.AggregationType = types.AggregationIssue
	agg.AggregationKey = issueID
	agg.TimeWindow = types.Window24h
	return agg, nil
}

// Members delegates to IssueRepository.Members, adapting postgres.MemberRow
// to the package-local MemberView.
func (s *PostgresMetricsSource) Members(ctx context.Context, issueID string) ([]MemberView, error) {
	rows, err := s.issues.Members(ctx, issueID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberView, len(rows))
	for i, r := range rows {
		location := ""
		if r.LocationLabel != nil {
			location = *r.LocationLabel
		}
		out[i] = MemberView{Text: r.Text, Source: r.SourceType, Location: location}
	}
	return out, nil
}
