package issue

import (
	"time"

	"github.com/openpolicylabs/govintel/pkg/types"
)

// LifecycleWeights are the spec 4.5 processing.lifecycle.* thresholds.
type LifecycleWeights struct {
	ResolvedThresholdDays int
}

// DefaultLifecycleWeights matches the spec's documented defaults.
func DefaultLifecycleWeights() LifecycleWeights {
	return LifecycleWeights{ResolvedThresholdDays: 7}
}

// LifecycleInputs are the fields the state machine evaluates, a pure
// function of (now, start_time, last_activity, mention_count,
// sentiment_index, velocity_percent) per spec 4.5.
type LifecycleInputs struct {
	Now             time.Time
	StartTime       time.Time
	LastActivity    time.Time
	MentionCount    int
	SentimentIndex  float64
	VelocityPercent float64
}

// NextState evaluates the 5-state lifecycle machine in strict priority
// order; the first matching condition wins. archived is never returned —
// it is only ever set by an explicit operator action.
func NextState(in LifecycleInputs, w LifecycleWeights) types.IssueState {
	if in.Now.Sub(in.LastActivity) >= time.Duration(w.ResolvedThresholdDays)*24*time.Hour {
		return types.IssueResolved
	}
	if in.Now.Sub(in.StartTime) < 24*time.Hour || in.MentionCount < 3 {
		return types.IssueEmerging
	}
	if in.SentimentIndex < 30 && in.MentionCount >= 10 && in.VelocityPercent > 0 {
		return types.IssueEscalated
	}
	if in.VelocityPercent < -20 && in.MentionCount >= 5 {
		return types.IssueStabilizing
	}
	return types.IssueActive
}
