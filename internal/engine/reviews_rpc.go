package engine

import (
	"context"
	"encoding/json"
	"time"

	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/srs"
	"studybench/engine/internal/store"
)

type reviewSubmitParams struct {
	CardID              string  `json:"card_id"`
	Correct             bool    `json:"correct"`
	ResponseTimeSeconds float64 `json:"response_time_seconds"`
}

type reviewSubmitResult struct {
	Card       store.Card `json:"card"`
	Quality    int        `json:"quality"`
	SpeedRatio float64    `json:"speed_ratio"`
}

// ReviewsSubmit scores one answer, advances the card's schedule, and
// records the review. The deck deadline, when set, compresses the
// interval so the card gets enough repetitions before it.
func (e *Engine) ReviewsSubmit(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p reviewSubmitParams
	if errInfo := parseParams(errinfo.PhaseReview, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.CardID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseReview, "card_id is required")
	}
	if p.ResponseTimeSeconds < 0 {
		return nil, errinfo.ValidationFailed(errinfo.PhaseReview, "response_time_seconds must not be negative")
	}

	card, err := e.store.GetCard(ctx, p.CardID)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseReview, err)
	}

	var deadline *time.Time
	if card.DeckID != "" {
		deck, err := e.store.GetDeck(ctx, card.DeckID)
		if err == nil && deck.Deadline != nil {
			deadline = deck.Deadline
		}
	}

	now := e.now()
	result := srs.Calculate(
		srs.Card{
			EaseFactor:   card.EaseFactor,
			IntervalDays: card.IntervalDays,
			Repetitions:  card.Repetitions,
		},
		srs.Review{
			Correct:             p.Correct,
			ResponseTimeSeconds: p.ResponseTimeSeconds,
			TimerLimitSeconds:   float64(card.TimerSeconds),
		},
		deadline,
		now,
	)

	record := store.ReviewRecord{
		CardID:              card.ID,
		Correct:             p.Correct,
		ResponseTimeSeconds: p.ResponseTimeSeconds,
		TimerLimitSeconds:   float64(card.TimerSeconds),
		SpeedRatio:          result.SpeedRatio,
		Quality:             result.Quality,
		EaseBefore:          card.EaseFactor,
		EaseAfter:           result.EaseFactor,
		IntervalBefore:      card.IntervalDays,
		IntervalAfter:       result.IntervalDays,
		ReviewedAt:          now,
	}
	if err := e.store.SaveReview(ctx, record, result.EaseFactor, result.IntervalDays, result.Repetitions, result.Due); err != nil {
		return nil, mapStoreError(errinfo.PhaseReview, err)
	}

	updated, err := e.store.GetCard(ctx, card.ID)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseReview, err)
	}
	e.logger.Info("review.submitted",
		"card_id", card.ID, "correct", p.Correct,
		"quality", result.Quality, "interval_days", result.IntervalDays)
	return reviewSubmitResult{Card: updated, Quality: result.Quality, SpeedRatio: result.SpeedRatio}, nil
}
