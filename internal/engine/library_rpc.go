package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/store"
)

func mapStoreError(phase string, err error) *errinfo.ErrorInfo {
	if errors.Is(err, store.ErrNotFound) {
		return errinfo.NotFound(phase, err.Error())
	}
	return errinfo.StorageFailed(phase, err.Error())
}

type deckCreateParams struct {
	Name     string     `json:"name"`
	Emoji    string     `json:"emoji,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (e *Engine) DecksCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p deckCreateParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "name must not be empty")
	}
	deck, err := e.store.CreateDeck(ctx, strings.TrimSpace(p.Name), p.Emoji, p.Deadline)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"deck": deck}, nil
}

func (e *Engine) DecksList(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	decks, err := e.store.ListDecks(ctx)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"decks": decks}, nil
}

type deckRenameParams struct {
	DeckID   string     `json:"deck_id"`
	Name     string     `json:"name,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	// SetDeadline distinguishes "leave alone" from "clear".
	SetDeadline bool `json:"set_deadline,omitempty"`
}

func (e *Engine) DecksRename(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p deckRenameParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.DeckID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "deck_id is required")
	}
	if p.Name != "" {
		if err := e.store.RenameDeck(ctx, p.DeckID, strings.TrimSpace(p.Name)); err != nil {
			return nil, mapStoreError(errinfo.PhaseLibrary, err)
		}
	}
	if p.SetDeadline {
		if err := e.store.SetDeckDeadline(ctx, p.DeckID, p.Deadline); err != nil {
			return nil, mapStoreError(errinfo.PhaseLibrary, err)
		}
	}
	deck, err := e.store.GetDeck(ctx, p.DeckID)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"deck": deck}, nil
}

type deckIDParams struct {
	DeckID string `json:"deck_id"`
}

func (e *Engine) DecksDelete(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p deckIDParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.DeckID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "deck_id is required")
	}
	if err := e.store.DeleteDeck(ctx, p.DeckID); err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]bool{"deleted": true}, nil
}

type cardCreateParams struct {
	DeckID          string `json:"deck_id,omitempty"`
	QuestionType    string `json:"question_type,omitempty"`
	QuestionContent string `json:"question_content"`
	AnswerType      string `json:"answer_type,omitempty"`
	AnswerContent   string `json:"answer_content,omitempty"`
	TimerMode       string `json:"timer_mode,omitempty"`
	TimerSeconds    int    `json:"timer_seconds,omitempty"`
}

func (e *Engine) CardsCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardCreateParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(p.QuestionContent) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "question_content must not be empty")
	}
	card, err := e.store.CreateCard(ctx, store.CreateCardInput{
		DeckID:          p.DeckID,
		QuestionType:    p.QuestionType,
		QuestionContent: p.QuestionContent,
		AnswerType:      p.AnswerType,
		AnswerContent:   p.AnswerContent,
		TimerMode:       p.TimerMode,
		TimerSeconds:    p.TimerSeconds,
	})
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"card": card}, nil
}

type cardsListParams struct {
	DeckID string `json:"deck_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (e *Engine) CardsList(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardsListParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	cards, err := e.store.ListCards(ctx, p.DeckID)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	if p.Limit > 0 && len(cards) > p.Limit {
		cards = cards[:p.Limit]
	}
	return map[string]any{"cards": cards}, nil
}

type cardIDParams struct {
	CardID string `json:"card_id"`
	Limit  int    `json:"limit,omitempty"`
}

func (e *Engine) CardsGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardIDParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.CardID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "card_id is required")
	}
	card, err := e.store.GetCard(ctx, p.CardID)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"card": card}, nil
}

type cardUpdateParams struct {
	CardID          string  `json:"card_id"`
	DeckID          *string `json:"deck_id,omitempty"`
	QuestionType    *string `json:"question_type,omitempty"`
	QuestionContent *string `json:"question_content,omitempty"`
	AnswerType      *string `json:"answer_type,omitempty"`
	AnswerContent   *string `json:"answer_content,omitempty"`
	TimerMode       *string `json:"timer_mode,omitempty"`
	TimerSeconds    *int    `json:"timer_seconds,omitempty"`
}

func (e *Engine) CardsUpdate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardUpdateParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.CardID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "card_id is required")
	}
	card, err := e.store.UpdateCard(ctx, p.CardID, store.UpdateCardInput{
		DeckID:          p.DeckID,
		QuestionType:    p.QuestionType,
		QuestionContent: p.QuestionContent,
		AnswerType:      p.AnswerType,
		AnswerContent:   p.AnswerContent,
		TimerMode:       p.TimerMode,
		TimerSeconds:    p.TimerSeconds,
	})
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"card": card}, nil
}

func (e *Engine) CardsDelete(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardIDParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.CardID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "card_id is required")
	}
	if err := e.store.DeleteCard(ctx, p.CardID); err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]bool{"deleted": true}, nil
}

func (e *Engine) CardsListDue(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardsListParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	cards, err := e.store.ListDue(ctx, p.DeckID, p.Limit, e.now())
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"cards": cards}, nil
}

func (e *Engine) CardsGetHistory(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p cardIDParams
	if errInfo := parseParams(errinfo.PhaseLibrary, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.CardID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseLibrary, "card_id is required")
	}
	if _, err := e.store.GetCard(ctx, p.CardID); err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	history, err := e.store.CardHistory(ctx, p.CardID, p.Limit)
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return map[string]any{"reviews": history}, nil
}

func (e *Engine) StatsGet(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	stats, err := e.store.Stats(ctx, e.now())
	if err != nil {
		return nil, mapStoreError(errinfo.PhaseLibrary, err)
	}
	return stats, nil
}
