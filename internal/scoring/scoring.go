// Package scoring turns raw keystroke counts into WPM and accuracy.
package scoring

import (
	"math"

	"github.com/verte-zerg/tuirace/internal/model"
)

// charsPerWord is the standard word length used by WPM.
const charsPerWord = 5.0

// WPM computes words per minute for correct characters typed over seconds.
// Non-positive durations score 0.
func WPM(correct, seconds int) int {
	if seconds <= 0 || correct <= 0 {
		return 0
	}
	minutes := float64(seconds) / 60.0
	return roundHalfUp((float64(correct) / charsPerWord) / minutes)
}

// Accuracy returns the percentage of correct comparisons, 0 when nothing was typed.
func Accuracy(correct, incorrect int) int {
	total := correct + incorrect
	if total <= 0 {
		return 0
	}
	return roundHalfUp(float64(correct) / float64(total) * 100)
}

// Compute builds a results snapshot from keystroke counters.
func Compute(stats model.KeystrokeStats, seconds int) model.Results {
	return model.Results{
		WPM:            WPM(stats.Correct, seconds),
		Accuracy:       Accuracy(stats.Correct, stats.Incorrect),
		CorrectChars:   stats.Correct,
		IncorrectChars: stats.Incorrect,
	}
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
