package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a deck or card id does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339

type Deck struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Emoji     string     `json:"emoji,omitempty"`
	Position  int        `json:"position"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Card struct {
	ID              string     `json:"id"`
	DeckID          string     `json:"deck_id,omitempty"`
	QuestionType    string     `json:"question_type"`
	QuestionContent string     `json:"question_content"`
	AnswerType      string     `json:"answer_type,omitempty"`
	AnswerContent   string     `json:"answer_content,omitempty"`
	TimerMode       string     `json:"timer_mode"`
	TimerSeconds    int        `json:"timer_seconds"`
	EaseFactor      float64    `json:"ease_factor"`
	IntervalDays    float64    `json:"interval_days"`
	Repetitions     int        `json:"repetitions"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	LastReviewed    *time.Time `json:"last_reviewed,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreateCardInput struct {
	DeckID          string
	QuestionType    string
	QuestionContent string
	AnswerType      string
	AnswerContent   string
	TimerMode       string
	TimerSeconds    int
}

// UpdateCardInput carries optional field updates; nil means unchanged.
type UpdateCardInput struct {
	DeckID          *string
	QuestionType    *string
	QuestionContent *string
	AnswerType      *string
	AnswerContent   *string
	TimerMode       *string
	TimerSeconds    *int
}

type ReviewRecord struct {
	ID                  string    `json:"id"`
	CardID              string    `json:"card_id"`
	Correct             bool      `json:"correct"`
	ResponseTimeSeconds float64   `json:"response_time_seconds"`
	TimerLimitSeconds   float64   `json:"timer_limit_seconds"`
	SpeedRatio          float64   `json:"speed_ratio"`
	Quality             int       `json:"quality"`
	EaseBefore          float64   `json:"ease_before"`
	EaseAfter           float64   `json:"ease_after"`
	IntervalBefore      float64   `json:"interval_before"`
	IntervalAfter       float64   `json:"interval_after"`
	ReviewedAt          time.Time `json:"reviewed_at"`
}

type Stats struct {
	TotalCards    int     `json:"total_cards"`
	DueToday      int     `json:"due_today"`
	Overdue       int     `json:"overdue"`
	ReviewedToday int     `json:"reviewed_today"`
	AccuracyToday float64 `json:"accuracy_today"`
}

type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS decks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  emoji TEXT NOT NULL DEFAULT '',
  position INTEGER NOT NULL DEFAULT 0,
  deadline TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cards (
  id TEXT PRIMARY KEY,
  deck_id TEXT REFERENCES decks(id) ON DELETE SET NULL,
  question_type TEXT NOT NULL CHECK(question_type IN ('text', 'image', 'latex')),
  question_content TEXT NOT NULL,
  answer_type TEXT CHECK(answer_type IN ('text', 'image', 'latex')),
  answer_content TEXT,
  timer_mode TEXT NOT NULL DEFAULT '5min' CHECK(timer_mode IN ('1min', '5min', '10min', 'llm')),
  timer_seconds INTEGER NOT NULL DEFAULT 300,
  ease_factor REAL NOT NULL DEFAULT 2.5,
  interval_days REAL NOT NULL DEFAULT 0,
  repetitions INTEGER NOT NULL DEFAULT 0,
  due_date TEXT,
  last_reviewed TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(due_date);
CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id);

CREATE TABLE IF NOT EXISTS reviews (
  id TEXT PRIMARY KEY,
  card_id TEXT REFERENCES cards(id) ON DELETE CASCADE,
  correct INTEGER NOT NULL,
  response_time_seconds REAL NOT NULL,
  timer_limit_seconds REAL NOT NULL,
  speed_ratio REAL NOT NULL,
  quality INTEGER NOT NULL,
  ease_before REAL NOT NULL,
  ease_after REAL NOT NULL,
  interval_before REAL NOT NULL,
  interval_after REAL NOT NULL,
  reviewed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_id);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ensureDB(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db != nil {
		return db, nil
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db, nil
}

func (s *Store) CreateDeck(ctx context.Context, name, emoji string, deadline *time.Time) (Deck, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Deck{}, err
	}
	var position int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM decks`).Scan(&position); err != nil {
		return Deck{}, err
	}
	now := time.Now().UTC()
	deck := Deck{
		ID:        uuid.NewString(),
		Name:      name,
		Emoji:     emoji,
		Position:  position,
		Deadline:  deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO decks(id, name, emoji, position, deadline, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		deck.ID, deck.Name, deck.Emoji, deck.Position, formatNullableTime(deck.Deadline), formatTime(now), formatTime(now),
	)
	if err != nil {
		return Deck{}, err
	}
	return deck, nil
}

func (s *Store) ListDecks(ctx context.Context) ([]Deck, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, emoji, position, deadline, created_at, updated_at FROM decks ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	decks := []Deck{}
	for rows.Next() {
		deck, err := scanDeck(rows)
		if err != nil {
			return nil, err
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

func (s *Store) GetDeck(ctx context.Context, id string) (Deck, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Deck{}, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT id, name, emoji, position, deadline, created_at, updated_at FROM decks WHERE id = ?`, id)
	deck, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Deck{}, ErrNotFound
	}
	return deck, err
}

func (s *Store) RenameDeck(ctx context.Context, id, name string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`UPDATE decks SET name = ?, updated_at = ? WHERE id = ?`, name, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) SetDeckDeadline(ctx context.Context, id string, deadline *time.Time) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`UPDATE decks SET deadline = ?, updated_at = ? WHERE id = ?`,
		formatNullableTime(deadline), formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) DeleteDeck(ctx context.Context, id string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) CreateCard(ctx context.Context, input CreateCardInput) (Card, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Card{}, err
	}
	now := time.Now().UTC()
	card := Card{
		ID:              uuid.NewString(),
		DeckID:          input.DeckID,
		QuestionType:    defaultIfEmpty(input.QuestionType, "text"),
		QuestionContent: input.QuestionContent,
		AnswerType:      input.AnswerType,
		AnswerContent:   input.AnswerContent,
		TimerMode:       defaultIfEmpty(input.TimerMode, "5min"),
		TimerSeconds:    input.TimerSeconds,
		EaseFactor:      2.5,
		IntervalDays:    0,
		Repetitions:     0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if card.TimerSeconds <= 0 {
		card.TimerSeconds = 300
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO cards(id, deck_id, question_type, question_content, answer_type, answer_content,
		   timer_mode, timer_seconds, ease_factor, interval_days, repetitions, due_date, last_reviewed,
		   created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)`,
		card.ID, nullableString(card.DeckID), card.QuestionType, card.QuestionContent,
		nullableString(card.AnswerType), nullableString(card.AnswerContent),
		card.TimerMode, card.TimerSeconds, card.EaseFactor, card.IntervalDays, card.Repetitions,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

func (s *Store) GetCard(ctx context.Context, id string) (Card, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Card{}, err
	}
	row := db.QueryRowContext(ctx, selectCardColumns+` WHERE id = ?`, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	return card, err
}

// ListCards returns cards, optionally filtered to one deck.
func (s *Store) ListCards(ctx context.Context, deckID string) ([]Card, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	query := selectCardColumns
	args := []any{}
	if deckID != "" {
		query += ` WHERE deck_id = ?`
		args = append(args, deckID)
	}
	query += ` ORDER BY created_at`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCards(rows)
}

// ListDue returns cards due at or before now. Cards never reviewed
// (null due date) count as due. Limit <= 0 means no limit.
func (s *Store) ListDue(ctx context.Context, deckID string, limit int, now time.Time) ([]Card, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	query := selectCardColumns + ` WHERE (due_date IS NULL OR due_date <= ?)`
	args := []any{formatTime(now.UTC())}
	if deckID != "" {
		query += ` AND deck_id = ?`
		args = append(args, deckID)
	}
	query += ` ORDER BY due_date IS NULL, due_date, created_at`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCards(rows)
}

func (s *Store) UpdateCard(ctx context.Context, id string, input UpdateCardInput) (Card, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Card{}, err
	}
	sets := []string{}
	args := []any{}
	appendSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if input.DeckID != nil {
		appendSet("deck_id", nullableString(*input.DeckID))
	}
	if input.QuestionType != nil {
		appendSet("question_type", *input.QuestionType)
	}
	if input.QuestionContent != nil {
		appendSet("question_content", *input.QuestionContent)
	}
	if input.AnswerType != nil {
		appendSet("answer_type", nullableString(*input.AnswerType))
	}
	if input.AnswerContent != nil {
		appendSet("answer_content", nullableString(*input.AnswerContent))
	}
	if input.TimerMode != nil {
		appendSet("timer_mode", *input.TimerMode)
	}
	if input.TimerSeconds != nil {
		appendSet("timer_seconds", *input.TimerSeconds)
	}
	if len(sets) > 0 {
		appendSet("updated_at", formatTime(time.Now().UTC()))
		args = append(args, id)
		result, err := db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE cards SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
		if err != nil {
			return Card{}, err
		}
		if err := requireRow(result); err != nil {
			return Card{}, err
		}
	}
	return s.GetCard(ctx, id)
}

func (s *Store) DeleteCard(ctx context.Context, id string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SaveReview records a review and advances the card's scheduling state
// in one transaction.
func (s *Store) SaveReview(ctx context.Context, record ReviewRecord, ease, interval float64, reps int, due time.Time) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reviews(id, card_id, correct, response_time_seconds, timer_limit_seconds,
		   speed_ratio, quality, ease_before, ease_after, interval_before, interval_after, reviewed_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.CardID, boolToInt(record.Correct), record.ResponseTimeSeconds,
		record.TimerLimitSeconds, record.SpeedRatio, record.Quality,
		record.EaseBefore, record.EaseAfter, record.IntervalBefore, record.IntervalAfter,
		formatTime(record.ReviewedAt.UTC()),
	)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE cards SET ease_factor = ?, interval_days = ?, repetitions = ?, due_date = ?,
		   last_reviewed = ?, updated_at = ? WHERE id = ?`,
		ease, interval, reps, formatTime(due.UTC()),
		formatTime(record.ReviewedAt.UTC()), formatTime(record.ReviewedAt.UTC()), record.CardID,
	)
	if err != nil {
		return err
	}
	if err := requireRow(result); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CardHistory(ctx context.Context, cardID string, limit int) ([]ReviewRecord, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, card_id, correct, response_time_seconds, timer_limit_seconds, speed_ratio,
	   quality, ease_before, ease_after, interval_before, interval_after, reviewed_at
	 FROM reviews WHERE card_id = ? ORDER BY reviewed_at DESC`
	args := []any{cardID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []ReviewRecord{}
	for rows.Next() {
		var rec ReviewRecord
		var correct int
		var reviewedAt string
		if err := rows.Scan(&rec.ID, &rec.CardID, &correct, &rec.ResponseTimeSeconds,
			&rec.TimerLimitSeconds, &rec.SpeedRatio, &rec.Quality,
			&rec.EaseBefore, &rec.EaseAfter, &rec.IntervalBefore, &rec.IntervalAfter,
			&reviewedAt); err != nil {
			return nil, err
		}
		rec.Correct = correct != 0
		if ts, err := time.Parse(timeLayout, reviewedAt); err == nil {
			rec.ReviewedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	utc := now.UTC()
	dayStart := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&stats.TotalCards); err != nil {
		return Stats{}, err
	}
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE due_date IS NULL OR due_date < ?`,
		formatTime(dayEnd)).Scan(&stats.DueToday); err != nil {
		return Stats{}, err
	}
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE due_date IS NOT NULL AND due_date < ?`,
		formatTime(dayStart)).Scan(&stats.Overdue); err != nil {
		return Stats{}, err
	}
	var reviewed, correct int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(correct), 0) FROM reviews WHERE reviewed_at >= ? AND reviewed_at < ?`,
		formatTime(dayStart), formatTime(dayEnd)).Scan(&reviewed, &correct); err != nil {
		return Stats{}, err
	}
	stats.ReviewedToday = reviewed
	if reviewed > 0 {
		stats.AccuracyToday = float64(correct) / float64(reviewed)
	}
	return stats, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

const selectCardColumns = `SELECT id, deck_id, question_type, question_content, answer_type, answer_content,
   timer_mode, timer_seconds, ease_factor, interval_days, repetitions, due_date, last_reviewed,
   created_at, updated_at FROM cards`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeck(row rowScanner) (Deck, error) {
	var deck Deck
	var deadline sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&deck.ID, &deck.Name, &deck.Emoji, &deck.Position, &deadline, &createdAt, &updatedAt); err != nil {
		return Deck{}, err
	}
	deck.Deadline = parseNullableTime(deadline)
	deck.CreatedAt = parseTime(createdAt)
	deck.UpdatedAt = parseTime(updatedAt)
	return deck, nil
}

func scanCard(row rowScanner) (Card, error) {
	var card Card
	var deckID, answerType, answerContent, dueDate, lastReviewed sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&card.ID, &deckID, &card.QuestionType, &card.QuestionContent,
		&answerType, &answerContent, &card.TimerMode, &card.TimerSeconds,
		&card.EaseFactor, &card.IntervalDays, &card.Repetitions,
		&dueDate, &lastReviewed, &createdAt, &updatedAt); err != nil {
		return Card{}, err
	}
	card.DeckID = deckID.String
	card.AnswerType = answerType.String
	card.AnswerContent = answerContent.String
	card.DueDate = parseNullableTime(dueDate)
	card.LastReviewed = parseNullableTime(lastReviewed)
	card.CreatedAt = parseTime(createdAt)
	card.UpdatedAt = parseTime(updatedAt)
	return card, nil
}

func collectCards(rows *sql.Rows) ([]Card, error) {
	cards := []Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(timeLayout, value)
	return t
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
