package issue

import (
	"testing"
	"time"

	"github.com/openpolicylabs/govintel/pkg/types"
)

func TestNextState_Resolved_TakesPriorityOverEverythingElse(t *testing.T) {
	now := time.Now()
	state := NextState(LifecycleInputs{
		Now: now, StartTime: now.Add(-30 * 24 * time.Hour), LastActivity: now.Add(-8 * 24 * time.Hour),
		MentionCount: 50, SentimentIndex: 5, VelocityPercent: 500,
	}, DefaultLifecycleWeights())
	if state != types.IssueResolved {
		t.Errorf("expected resolved, got %s", state)
	}
}

func TestNextState_Emerging_NewOrSmall(t *testing.T) {
	now := time.Now()
	state := NextState(LifecycleInputs{
		Now: now, StartTime: now.Add(-time.Hour), LastActivity: now, MentionCount: 1,
	}, DefaultLifecycleWeights())
	if state != types.IssueEmerging {
		t.Errorf("expected emerging, got %s", state)
	}
}

func TestNextState_Escalated(t *testing.T) {
	now := time.Now()
	state := NextState(LifecycleInputs{
		Now: now, StartTime: now.Add(-48 * time.Hour), LastActivity: now,
		MentionCount: 10, SentimentIndex: 20, VelocityPercent: 15,
	}, DefaultLifecycleWeights())
	if state != types.IssueEscalated {
		t.Errorf("expected escalated, got %s", state)
	}
}

func TestNextState_Stabilizing(t *testing.T) {
	now := time.Now()
	state := NextState(LifecycleInputs{
		Now: now, StartTime: now.Add(-48 * time.Hour), LastActivity: now,
		MentionCount: 8, SentimentIndex: 60, VelocityPercent: -33.3,
	}, DefaultLifecycleWeights())
	if state != types.IssueStabilizing {
		t.Errorf("expected stabilizing, got %s", state)
	}
}

func TestNextState_ActiveFallback(t *testing.T) {
	now := time.Now()
	state := NextState(LifecycleInputs{
		Now: now, StartTime: now.Add(-48 * time.Hour), LastActivity: now,
		MentionCount: 5, SentimentIndex: 60, VelocityPercent: 5,
	}, DefaultLifecycleWeights())
	if state != types.IssueActive {
		t.Errorf("expected active, got %s", state)
	}
}
