package issue

import (
	"math"
	"time"
)

// PriorityWeights is spec 4.5's processing.priority.* config block.
type PriorityWeights struct {
	SentimentWeight float64
	VolumeWeight    float64
	TimeWeight      float64
	VelocityWeight  float64
}

// DefaultPriorityWeights matches the spec's documented defaults.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{SentimentWeight: 0.4, VolumeWeight: 0.3, TimeWeight: 0.2, VelocityWeight: 0.1}
}

// VelocitySaturation is the velocity_percent value used when prev=0 and
// cur>0 (spec 4.5).
const VelocitySaturation = 1000.0

// Velocity computes velocity_percent from the current and previous
// window volumes.
func Velocity(cur, prev int) float64 {
	switch {
	case prev > 0:
		return 100 * float64(cur-prev) / float64(prev)
	case cur > 0:
		return VelocitySaturation
	default:
		return 0
	}
}

// VelocityScore maps velocity_percent into a 0-100 band.
func VelocityScore(velocityPercent float64) float64 {
	switch {
	case velocityPercent >= 100:
		return 100
	case velocityPercent >= 0:
		return 50 + velocityPercent/2
	default:
		return math.Max(0, 50+velocityPercent/2)
	}
}

// RecencyDecay implements the 0h->100, 24h->70, 7d->30, 30d->10, >=90d->0
// piecewise-linear decay curve over age.
func RecencyDecay(age time.Duration) float64 {
	hours := age.Hours()
	switch {
	case hours <= 0:
		return 100
	case hours <= 24:
		return lerp(hours, 0, 24, 100, 70)
	case hours <= 24*7:
		return lerp(hours, 24, 24*7, 70, 30)
	case hours <= 24*30:
		return lerp(hours, 24*7, 24*30, 30, 10)
	case hours <= 24*90:
		return lerp(hours, 24*30, 24*90, 10, 0)
	default:
		return 0
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

// PriorityInputs are the recomputed fields PriorityScore weighs.
type PriorityInputs struct {
	SentimentIndex float64
	MentionCount   int
	Age            time.Duration
	VelocityScore  float64
}

// PriorityScore computes the weighted-sum 0-100 priority score (spec
// 4.5): sentiment + volume + time + velocity components.
func PriorityScore(in PriorityInputs, w PriorityWeights) float64 {
	sentimentComponent := (100 - in.SentimentIndex) * w.SentimentWeight
	volumeComponent := 100 * (1 - math.Exp(-float64(in.MentionCount)/20)) * w.VolumeWeight
	timeComponent := RecencyDecay(in.Age) * w.TimeWeight
	velocityComponent := in.VelocityScore * w.VelocityWeight
	return sentimentComponent + volumeComponent + timeComponent + velocityComponent
}
