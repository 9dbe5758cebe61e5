package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "studybench.db"))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDeckLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deck, err := s.CreateDeck(ctx, "Calculus", "📐", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, deck.ID)
	assert.Equal(t, 0, deck.Position)

	second, err := s.CreateDeck(ctx, "Physics", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)

	decks, err := s.ListDecks(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, "Calculus", decks[0].Name)

	require.NoError(t, s.RenameDeck(ctx, deck.ID, "Calculus II"))
	renamed, err := s.GetDeck(ctx, deck.ID)
	require.NoError(t, err)
	assert.Equal(t, "Calculus II", renamed.Name)

	require.NoError(t, s.DeleteDeck(ctx, second.ID))
	_, err = s.GetDeck(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.RenameDeck(ctx, "missing", "x"), ErrNotFound)
}

func TestCardLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deck, err := s.CreateDeck(ctx, "Chemistry", "", nil)
	require.NoError(t, err)

	card, err := s.CreateCard(ctx, CreateCardInput{
		DeckID:          deck.ID,
		QuestionContent: "What is the atomic number of carbon?",
		AnswerType:      "text",
		AnswerContent:   "6",
	})
	require.NoError(t, err)
	assert.Equal(t, "text", card.QuestionType)
	assert.Equal(t, "5min", card.TimerMode)
	assert.Equal(t, 300, card.TimerSeconds)
	assert.Equal(t, 2.5, card.EaseFactor)
	assert.Nil(t, card.DueDate)

	newQuestion := "What is the atomic number of oxygen?"
	newAnswer := "8"
	updated, err := s.UpdateCard(ctx, card.ID, UpdateCardInput{
		QuestionContent: &newQuestion,
		AnswerContent:   &newAnswer,
	})
	require.NoError(t, err)
	assert.Equal(t, newQuestion, updated.QuestionContent)
	assert.Equal(t, "8", updated.AnswerContent)

	cards, err := s.ListCards(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	require.NoError(t, s.DeleteCard(ctx, card.ID))
	_, err = s.GetCard(ctx, card.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeckDeleteOrphansCards(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deck, err := s.CreateDeck(ctx, "History", "", nil)
	require.NoError(t, err)
	card, err := s.CreateCard(ctx, CreateCardInput{DeckID: deck.ID, QuestionContent: "When was 1066?"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDeck(ctx, deck.ID))
	orphan, err := s.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, orphan.DeckID)
}

func TestListDue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	fresh, err := s.CreateCard(ctx, CreateCardInput{QuestionContent: "never reviewed"})
	require.NoError(t, err)
	overdue, err := s.CreateCard(ctx, CreateCardInput{QuestionContent: "overdue"})
	require.NoError(t, err)
	future, err := s.CreateCard(ctx, CreateCardInput{QuestionContent: "future"})
	require.NoError(t, err)

	require.NoError(t, s.SaveReview(ctx, ReviewRecord{
		CardID: overdue.ID, Correct: true, ReviewedAt: now.AddDate(0, 0, -3),
	}, 2.55, 1, 1, now.AddDate(0, 0, -2)))
	require.NoError(t, s.SaveReview(ctx, ReviewRecord{
		CardID: future.ID, Correct: true, ReviewedAt: now,
	}, 2.55, 3, 2, now.AddDate(0, 0, 3)))

	due, err := s.ListDue(ctx, "", 0, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Overdue cards come before never-reviewed ones.
	assert.Equal(t, overdue.ID, due[0].ID)
	assert.Equal(t, fresh.ID, due[1].ID)

	limited, err := s.ListDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSaveReviewAdvancesCard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	card, err := s.CreateCard(ctx, CreateCardInput{QuestionContent: "q"})
	require.NoError(t, err)

	due := now.AddDate(0, 0, 1)
	record := ReviewRecord{
		CardID:              card.ID,
		Correct:             true,
		ResponseTimeSeconds: 20,
		TimerLimitSeconds:   60,
		SpeedRatio:          20.0 / 60.0,
		Quality:             5,
		EaseBefore:          2.5,
		EaseAfter:           2.65,
		IntervalBefore:      0,
		IntervalAfter:       1,
		ReviewedAt:          now,
	}
	require.NoError(t, s.SaveReview(ctx, record, 2.65, 1, 1, due))

	reloaded, err := s.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.65, reloaded.EaseFactor, 0.001)
	assert.Equal(t, 1, reloaded.Repetitions)
	require.NotNil(t, reloaded.DueDate)
	assert.WithinDuration(t, due, *reloaded.DueDate, time.Second)
	require.NotNil(t, reloaded.LastReviewed)

	history, err := s.CardHistory(ctx, card.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Correct)
	assert.Equal(t, 5, history[0].Quality)

	assert.ErrorIs(t, s.SaveReview(ctx, ReviewRecord{CardID: "missing", ReviewedAt: now}, 2.5, 1, 1, due), ErrNotFound)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	a, err := s.CreateCard(ctx, CreateCardInput{QuestionContent: "a"})
	require.NoError(t, err)
	_, err = s.CreateCard(ctx, CreateCardInput{QuestionContent: "b"})
	require.NoError(t, err)

	require.NoError(t, s.SaveReview(ctx, ReviewRecord{
		CardID: a.ID, Correct: true, Quality: 4, ReviewedAt: now,
	}, 2.55, 1, 1, now.AddDate(0, 0, 1)))

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCards)
	assert.Equal(t, 1, stats.ReviewedToday)
	assert.Equal(t, 1.0, stats.AccuracyToday)
	// The unreviewed card has no due date, so it counts as due.
	assert.GreaterOrEqual(t, stats.DueToday, 1)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	value, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, s.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, s.SetSetting(ctx, "theme", "light"))
	value, err = s.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)
}
