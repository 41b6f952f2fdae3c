package inputengine

import (
	"math"

	"github.com/quietaudio/quiet/pkg/audioframe"
)

// levelEMAAlpha smooths the published input level (spec.md §4.3: "apply
// EMA with coefficient 0.9 against the stored level").
const levelEMAAlpha = 0.9

// dbFloor is the clamp spec.md §4.3 specifies for the dB conversion before
// normalizing to [0,1].
const dbFloor = -60.0

// computeLevel combines every channel's RMS into a single 0..1 loudness
// value: combined RMS across channels, converted to dB and clamped to
// [-60, 0], then linearly normalized to [0, 1].
func computeLevel(frame *audioframe.Frame) float64 {
	n := frame.Channels()
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for ch := 0; ch < n; ch++ {
		r := frame.RMS(ch, 0, frame.Samples())
		sumSquares += r * r
	}
	combined := math.Sqrt(sumSquares / float64(n))
	db := dbFloor
	if combined > 0 {
		db = 20 * math.Log10(combined)
	}
	if db < dbFloor {
		db = dbFloor
	}
	if db > 0 {
		db = 0
	}
	return (db - dbFloor) / -dbFloor
}

// emaLevel folds a new instantaneous level into the smoothed running level.
// The 0.9 coefficient weights the previous value (spec.md §4.3), so a
// meter decays smoothly rather than jittering with every callback.
func emaLevel(prev, instant float64) float64 {
	return levelEMAAlpha*prev + (1-levelEMAAlpha)*instant
}
