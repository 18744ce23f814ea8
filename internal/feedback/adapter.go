// Package feedback adjusts storyboard timing from the aggregate viewer rating.
package feedback

import (
	"math"

	"github.com/ivlev/script2video/internal/storyboard"
)

const (
	NeutralRating = 3.0
	MinRating     = 1.0
	MaxRating     = 5.0

	// shortenStep is how much every scene loses on a below-neutral signal.
	shortenStep = 1.0
)

// ClampRating pulls a signal into [MinRating, MaxRating].
func ClampRating(r float64) float64 {
	if math.IsNaN(r) {
		return NeutralRating
	}
	if r < MinRating {
		return MinRating
	}
	if r > MaxRating {
		return MaxRating
	}
	return r
}

// Adapt returns a new storyboard derived from sb. Below the neutral rating
// every scene is shortened by one second, never under the duration floor;
// otherwise durations are left as they are. sb itself is not modified.
func Adapt(sb *storyboard.Storyboard, signal float64) *storyboard.Storyboard {
	out := sb.Clone()
	if out == nil {
		return nil
	}

	if ClampRating(signal) >= NeutralRating {
		return out
	}

	for i := range out.Scenes {
		d := out.Scenes[i].DurationSecs - shortenStep
		if d < storyboard.MinSceneDuration {
			d = storyboard.MinSceneDuration
		}
		out.Scenes[i].DurationSecs = d
	}
	return out
}
