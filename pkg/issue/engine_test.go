package issue

import (
	"context"
	"testing"
	"time"

	"github.com/openpolicylabs/govintel/pkg/types"
)

type fakeIssueStore struct {
	active  []types.Issue
	created []types.Issue
	updated []types.Issue
	added   int
}

func (f *fakeIssueStore) ActiveByTopic(ctx context.Context, topicKey string) ([]types.Issue, error) {
	return f.active, nil
}
func (f *fakeIssueStore) Create(ctx context.Context, iss types.Issue) (string, error) {
	iss.ID = "new-issue"
	f.created = append(f.created, iss)
	return iss.ID, nil
}
func (f *fakeIssueStore) AddMention(ctx context.Context, issueID, mentionID, topicKey string, similarity float64, centroid []float64) error {
	f.added++
	return nil
}
func (f *fakeIssueStore) UpdateMetrics(ctx context.Context, iss types.Issue) error {
	f.updated = append(f.updated, iss)
	return nil
}
func (f *fakeIssueStore) Get(ctx context.Context, id string) (types.Issue, error) {
	return types.Issue{ID: id}, nil
}

// fakeMetricsSource feeds RecomputeAndPersist a fixed volume/aggregation/
// member set, independent of fakeIssueStore's bookkeeping.
type fakeMetricsSource struct {
	current, previous int
	agg                 types.SentimentAggregation
	members             []MemberView
}

func (f *fakeMetricsSource) VolumeWindows(ctx context.Context, issueID string, window time.Duration, now time.Time) (int, int, error) {
	return f.current, f.previous, nil
}
func (f *fakeMetricsSource) Aggregation(ctx context.Context, issueID string) (types.SentimentAggregation, error) {
	return f.agg, nil
}
func (f *fakeMetricsSource) Members(ctx context.Context, issueID string) ([]MemberView, error) {
	return f.members, nil
}

type fakeTopicStore struct {
	assigned int
}

func (f *fakeTopicStore) AssignIssue(ctx context.Context, mentionID, topicKey, issueID string) error {
	f.assigned++
	return nil
}

func TestEngine_ProcessTopic_CreatesNewIssueForLargeCluster(t *testing.T) {
	now := time.Now()
	candidates := []CandidateMentionView{
		{MentionID: "a", Embedding: []float64{1, 0, 0}, PublishedAt: now},
		{MentionID: "b", Embedding: []float64{0.99, 0.01, 0}, PublishedAt: now.Add(-time.Minute)},
		{MentionID: "c", Embedding: []float64{0.98, 0.02, 0}, PublishedAt: now.Add(-2 * time.Minute)},
	}
	texts := map[string]string{
		"a": "hospital shortages grow across the capital",
		"b": "hospital clinic staff report shortages",
		"c": "citizens worry about hospital capacity",
	}

	issues := &fakeIssueStore{}
	topics := &fakeTopicStore{}
	engine := New(issues, topics, nil, DefaultOptions(), nil)

	err := engine.ProcessTopic(context.Background(), "healthcare", candidates, func(id string) string { return texts[id] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues.created) != 1 {
		t.Fatalf("expected one new issue created, got %d", len(issues.created))
	}
	if issues.added != 3 {
		t.Errorf("expected 3 AddMention calls, got %d", issues.added)
	}
	if topics.assigned != 3 {
		t.Errorf("expected 3 AssignIssue calls, got %d", topics.assigned)
	}
}

func TestEngine_ProcessTopic_AttachesToExistingIssue(t *testing.T) {
	now := time.Now()
	candidates := []CandidateMentionView{
		{MentionID: "a", Embedding: []float64{1, 0, 0}, PublishedAt: now},
	}
	issues := &fakeIssueStore{active: []types.Issue{
		{ID: "existing", ClusterCentroidEmbedding: []float64{0.99, 0.01, 0}, LastActivity: now.Add(-time.Hour), MentionCount: 5},
	}}
	topics := &fakeTopicStore{}
	engine := New(issues, topics, nil, DefaultOptions(), nil)

	err := engine.ProcessTopic(context.Background(), "healthcare", candidates, func(id string) string { return "" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues.created) != 0 {
		t.Errorf("expected no new issue, got %d", len(issues.created))
	}
	if issues.added != 1 {
		t.Errorf("expected attach via AddMention, got %d calls", issues.added)
	}
}

func TestEngine_RecomputeMetrics_SetsResolvedAtWhenTransitioningToResolved(t *testing.T) {
	now := time.Now()
	engine := New(&fakeIssueStore{}, &fakeTopicStore{}, nil, DefaultOptions(), nil)
	iss := types.Issue{
		StartTime: now.Add(-30 * 24 * time.Hour), LastActivity: now.Add(-10 * 24 * time.Hour), MentionCount: 20,
	}
	out := engine.RecomputeMetrics(iss, 0, 0, 50, now)
	if out.State != types.IssueResolved {
		t.Fatalf("expected resolved state, got %s", out.State)
	}
	if out.ResolvedAt == nil {
		t.Error("expected ResolvedAt to be set")
	}
}

func TestEngine_Create_RecomputesAndPersistsMetrics(t *testing.T) {
	now := time.Now()
	candidates := []CandidateMentionView{
		{MentionID: "a", Embedding: []float64{1, 0, 0}, PublishedAt: now},
		{MentionID: "b", Embedding: []float64{0.99, 0.01, 0}, PublishedAt: now.Add(-time.Minute)},
		{MentionID: "c", Embedding: []float64{0.98, 0.02, 0}, PublishedAt: now.Add(-2 * time.Minute)},
	}
	texts := map[string]string{
		"a": "hospital shortages grow across the capital region",
		"b": "hospital clinic staff report shortages nationwide",
		"c": "citizens worry about hospital capacity shortages",
	}

	issues := &fakeIssueStore{}
	topics := &fakeTopicStore{}
	metricsSource := &fakeMetricsSource{
		current: 9, previous: 3,
		agg: types.SentimentAggregation{SentimentIndex: 35.5, SentimentDistribution: types.SentimentDistribution{Negative: 0.8, Neutral: 0.2}},
		members: []MemberView{
			{Text: texts["a"], Source: "citizen", Location: "capital"},
			{Text: texts["b"], Source: "national_media", Location: "capital"},
			{Text: texts["c"], Source: "citizen", Location: ""},
		},
	}
	engine := New(issues, topics, metricsSource, DefaultOptions(), nil)

	err := engine.ProcessTopic(context.Background(), "healthcare", candidates, func(id string) string { return texts[id] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues.updated) != 1 {
		t.Fatalf("expected one UpdateMetrics call after create, got %d", len(issues.updated))
	}
	got := issues.updated[0]
	if got.VolumeCurrentWindow != 9 || got.VolumePreviousWindow != 3 {
		t.Errorf("expected recomputed volume windows 9/3, got %d/%d", got.VolumeCurrentWindow, got.VolumePreviousWindow)
	}
	if got.SentimentIndex != 35.5 {
		t.Errorf("expected recomputed sentiment index 35.5, got %v", got.SentimentIndex)
	}
	if len(got.TopSources) == 0 {
		t.Error("expected TopSources populated from member sources")
	}
	if len(got.RegionsImpacted) == 0 {
		t.Error("expected RegionsImpacted populated from member locations")
	}
}
