package srs

import (
	"math"
	"time"
)

const minEase = 1.3

// Card is the scheduling state carried by a flashcard.
type Card struct {
	EaseFactor   float64
	IntervalDays float64
	Repetitions  int
}

// Review is one answer event. SpeedRatio is derived from response time
// against the timer limit; a zero limit means speed is not judged.
type Review struct {
	Correct             bool
	ResponseTimeSeconds float64
	TimerLimitSeconds   float64
}

// Result is the updated scheduling state after a review.
type Result struct {
	EaseFactor   float64
	IntervalDays float64
	Repetitions  int
	Due          time.Time
	Quality      int
	SpeedRatio   float64
}

// Calculate applies one review to a card. Quality bands: 0 incorrect,
// 5 correct and fast (ratio <= 0.6), 4 correct in time, 3 correct but
// over the limit. An optional deadline compresses the interval so the
// remaining reviews fit before it.
func Calculate(card Card, review Review, deadline *time.Time, now time.Time) Result {
	speedRatio := 1.0
	if review.TimerLimitSeconds > 0 {
		speedRatio = review.ResponseTimeSeconds / review.TimerLimitSeconds
	}

	ease := card.EaseFactor
	reps := card.Repetitions
	var interval float64
	var quality int

	switch {
	case !review.Correct:
		quality = 0
		ease = math.Max(ease-0.20, minEase)
		reps = 0
		interval = 1.0
	case speedRatio <= 0.6:
		quality = 5
		ease += 0.15
		reps++
		interval = nextInterval(reps, card.IntervalDays, ease, 1.3)
	case speedRatio <= 1.0:
		quality = 4
		ease += 0.05
		reps++
		interval = nextInterval(reps, card.IntervalDays, ease, 1.0)
	default:
		quality = 3
		ease = math.Max(ease-0.10, minEase)
		reps++
		interval = nextInterval(reps, card.IntervalDays, ease, 0.8)
	}

	ease = math.Max(ease, minEase)

	if deadline != nil {
		daysRemaining := math.Floor(deadline.Sub(now).Hours() / 24)
		if daysRemaining > 0 {
			// New cards need roughly five reviews to mature.
			reviewsStillNeeded := float64(6 - reps)
			if reviewsStillNeeded < 1 {
				reviewsStillNeeded = 1
			}
			maxInterval := daysRemaining / reviewsStillNeeded
			interval = math.Max(math.Min(interval, maxInterval), 1.0)
		}
	}

	due := now.AddDate(0, 0, int(math.Round(interval)))

	return Result{
		EaseFactor:   ease,
		IntervalDays: interval,
		Repetitions:  reps,
		Due:          due,
		Quality:      quality,
		SpeedRatio:   speedRatio,
	}
}

func nextInterval(reps int, prevInterval, ease, speedMultiplier float64) float64 {
	switch {
	case reps <= 1:
		return 1.0
	case reps == 2:
		return 3.0
	default:
		return math.Max(prevInterval*ease*speedMultiplier, 1.0)
	}
}
