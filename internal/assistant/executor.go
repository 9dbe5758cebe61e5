package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mitchellh/mapstructure"

	"studybench/engine/internal/llm"
	"studybench/engine/internal/store"
)

// Executor runs one tool call against the library, the editor bridge,
// and the proposal sink.
type Executor struct {
	store     *store.Store
	bridge    *Bridge
	proposals *Proposals
	logger    *slog.Logger
	now       func() time.Time
}

func NewExecutor(st *store.Store, bridge *Bridge, proposals *Proposals, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:     st,
		bridge:    bridge,
		proposals: proposals,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type listCardsArgs struct {
	DeckID string `json:"deck_id"`
	Limit  int    `json:"limit"`
}

type cardIDArgs struct {
	CardID string `json:"card_id"`
	Limit  int    `json:"limit"`
}

type createCardArgs struct {
	DeckID       string `json:"deck_id"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	TimerSeconds int    `json:"timer_seconds"`
}

type proposeCardsArgs struct {
	DeckID string         `json:"deck_id"`
	Cards  []ProposedCard `json:"cards"`
}

type writeFieldArgs struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type setTimerArgs struct {
	Seconds int `json:"seconds"`
}

// Execute dispatches a tool call and returns its result payload as a
// JSON string for the transcript.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Function.Name {
	case "list_decks":
		return e.listDecks(ctx)
	case "list_cards":
		return e.listCards(ctx, call)
	case "list_due_cards":
		return e.listDueCards(ctx, call)
	case "get_card_detail":
		return e.getCardDetail(ctx, call)
	case "get_card_history":
		return e.getCardHistory(ctx, call)
	case "get_study_stats":
		return e.getStudyStats(ctx)
	case "create_card":
		return e.createCard(ctx, call)
	case "propose_cards":
		return e.proposeCards(call)
	case "editor_read":
		return e.editorRead()
	case "editor_write_question":
		return e.editorWrite(call, false)
	case "editor_write_answer":
		return e.editorWrite(call, true)
	case "editor_set_timer":
		return e.editorSetTimer(call)
	case "editor_clear":
		return e.editorClear()
	default:
		return "", fmt.Errorf("unknown tool: %s", call.Function.Name)
	}
}

func decodeArgs(call llm.ToolCall, out any) error {
	raw := map[string]any{}
	arguments := call.Function.Arguments
	if arguments == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), &raw); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func marshalResult(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *Executor) listDecks(ctx context.Context) (string, error) {
	decks, err := e.store.ListDecks(ctx)
	if err != nil {
		return "", err
	}
	type deckSummary struct {
		store.Deck
		CardCount int `json:"card_count"`
	}
	summaries := make([]deckSummary, 0, len(decks))
	for _, deck := range decks {
		cards, err := e.store.ListCards(ctx, deck.ID)
		if err != nil {
			return "", err
		}
		summaries = append(summaries, deckSummary{Deck: deck, CardCount: len(cards)})
	}
	return marshalResult(map[string]any{"decks": summaries})
}

// cardSummary is the compact card view returned by listing tools.
// Media content stays out so transcripts do not carry image payloads.
type cardSummary struct {
	ID           string     `json:"id"`
	DeckID       string     `json:"deck_id,omitempty"`
	Question     string     `json:"question"`
	QuestionType string     `json:"question_type"`
	EaseFactor   float64    `json:"ease_factor"`
	IntervalDays float64    `json:"interval_days"`
	Repetitions  int        `json:"repetitions"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

func summarizeCard(card store.Card) cardSummary {
	question := card.QuestionContent
	if card.QuestionType == "image" {
		question = "[image]"
	}
	return cardSummary{
		ID:           card.ID,
		DeckID:       card.DeckID,
		Question:     question,
		QuestionType: card.QuestionType,
		EaseFactor:   card.EaseFactor,
		IntervalDays: card.IntervalDays,
		Repetitions:  card.Repetitions,
		DueDate:      card.DueDate,
	}
}

func (e *Executor) listCards(ctx context.Context, call llm.ToolCall) (string, error) {
	var args listCardsArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	cards, err := e.store.ListCards(ctx, args.DeckID)
	if err != nil {
		return "", err
	}
	if args.Limit > 0 && len(cards) > args.Limit {
		cards = cards[:args.Limit]
	}
	summaries := make([]cardSummary, 0, len(cards))
	for _, card := range cards {
		summaries = append(summaries, summarizeCard(card))
	}
	return marshalResult(map[string]any{"cards": summaries})
}

func (e *Executor) listDueCards(ctx context.Context, call llm.ToolCall) (string, error) {
	var args listCardsArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	cards, err := e.store.ListDue(ctx, args.DeckID, args.Limit, e.now())
	if err != nil {
		return "", err
	}
	summaries := make([]cardSummary, 0, len(cards))
	for _, card := range cards {
		summaries = append(summaries, summarizeCard(card))
	}
	return marshalResult(map[string]any{"cards": summaries})
}

func (e *Executor) getCardDetail(ctx context.Context, call llm.ToolCall) (string, error) {
	var args cardIDArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	if args.CardID == "" {
		return "", fmt.Errorf("card_id is required")
	}
	card, err := e.store.GetCard(ctx, args.CardID)
	if err != nil {
		return "", err
	}
	// Image payloads are base64 blobs; the model only needs to know
	// an image is there.
	if card.QuestionType == "image" {
		card.QuestionContent = "[image]"
	}
	if card.AnswerType == "image" {
		card.AnswerContent = "[image]"
	}
	return marshalResult(map[string]any{"card": card})
}

func (e *Executor) getCardHistory(ctx context.Context, call llm.ToolCall) (string, error) {
	var args cardIDArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	if args.CardID == "" {
		return "", fmt.Errorf("card_id is required")
	}
	if _, err := e.store.GetCard(ctx, args.CardID); err != nil {
		return "", err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	history, err := e.store.CardHistory(ctx, args.CardID, limit)
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"reviews": history})
}

func (e *Executor) getStudyStats(ctx context.Context) (string, error) {
	stats, err := e.store.Stats(ctx, e.now())
	if err != nil {
		return "", err
	}
	return marshalResult(stats)
}

func (e *Executor) createCard(ctx context.Context, call llm.ToolCall) (string, error) {
	var args createCardArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	if args.DeckID == "" {
		return "", fmt.Errorf("deck_id is required")
	}
	if args.Question == "" {
		return "", fmt.Errorf("question is required")
	}
	answerType := ""
	if args.Answer != "" {
		answerType = "text"
	}
	card, err := e.store.CreateCard(ctx, store.CreateCardInput{
		DeckID:          args.DeckID,
		QuestionType:    "text",
		QuestionContent: args.Question,
		AnswerType:      answerType,
		AnswerContent:   args.Answer,
		TimerSeconds:    args.TimerSeconds,
	})
	if err != nil {
		return "", err
	}
	e.logger.Info("assistant.card_created", "card_id", card.ID, "deck_id", card.DeckID)
	return marshalResult(map[string]any{"created": true, "card_id": card.ID})
}

func (e *Executor) proposeCards(call llm.ToolCall) (string, error) {
	var args proposeCardsArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	if len(args.Cards) == 0 {
		return "", fmt.Errorf("cards must not be empty")
	}
	for i := range args.Cards {
		if args.Cards[i].Question == "" || args.Cards[i].Answer == "" {
			return "", fmt.Errorf("card %d: question and answer are required", i+1)
		}
		if args.Cards[i].DeckID == "" {
			args.Cards[i].DeckID = args.DeckID
		}
	}
	proposal := e.proposals.Add(args.Cards)
	e.logger.Info("assistant.cards_proposed", "proposal_id", proposal.ID, "count", len(proposal.Cards))
	return marshalResult(map[string]any{
		"proposal_id": proposal.ID,
		"card_count":  len(proposal.Cards),
		"status":      "pending user confirmation",
	})
}

func (e *Executor) editorRead() (string, error) {
	state, err := e.bridge.Snapshot()
	if err != nil {
		return "", err
	}
	if state.Question.Type == "image" {
		state.Question.Content = "[image]"
	}
	if state.Answer.Type == "image" {
		state.Answer.Content = "[image]"
	}
	return marshalResult(state)
}

func (e *Executor) editorWrite(call llm.ToolCall, answer bool) (string, error) {
	var args writeFieldArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	var summary string
	var err error
	if answer {
		summary, err = e.bridge.WriteAnswer(args.Type, args.Content)
	} else {
		summary, err = e.bridge.WriteQuestion(args.Type, args.Content)
	}
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"written": true, "summary": summary})
}

func (e *Executor) editorSetTimer(call llm.ToolCall) (string, error) {
	var args setTimerArgs
	if err := decodeArgs(call, &args); err != nil {
		return "", err
	}
	if args.Seconds <= 0 {
		return "", fmt.Errorf("seconds must be positive")
	}
	if err := e.bridge.SetTimer(args.Seconds); err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"timer_seconds": args.Seconds})
}

func (e *Executor) editorClear() (string, error) {
	if err := e.bridge.Clear(); err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"cleared": true})
}
