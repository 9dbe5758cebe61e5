package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/llm"
	"studybench/engine/internal/store"
)

// fakeTransport replays canned raw bodies regardless of provider.
type fakeTransport struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	block     chan struct{}
}

func (f *fakeTransport) Complete(ctx context.Context, _, _ string, _ []llm.ChatMessage, _ []llm.Tool) (json.RawMessage, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.responses) {
		return nil, fmt.Errorf("unexpected request %d", idx)
	}
	return json.RawMessage(f.responses[idx]), nil
}

func (f *fakeTransport) ValidateKey(context.Context, string) error { return nil }

func textResponse(text string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, text)
}

func newTestEngine(t *testing.T, transport llm.Transport) *Engine {
	t.Helper()
	eng, err := New(
		WithDataDir(t.TempDir()),
		WithTransportFactory(func(string, string) llm.Transport { return transport }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	if transport != nil {
		_, errInfo := eng.ProvidersSetApiKey(context.Background(),
			json.RawMessage(`{"provider_id":"openai","api_key":"sk-test"}`))
		require.Nil(t, errInfo)
	}
	return eng
}

func TestEngineGetInfo(t *testing.T) {
	eng := newTestEngine(t, nil)
	result, errInfo := eng.EngineGetInfo(context.Background(), nil)
	require.Nil(t, errInfo)
	info := result.(engineInfoResult)
	assert.Equal(t, EngineVersion, info.EngineVersion)
	assert.Equal(t, APIVersion, info.APIVersion)
	assert.NotEmpty(t, info.DataDir)
}

func TestProvidersConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &fakeTransport{})

	result, errInfo := eng.ProvidersGetConfig(ctx, nil)
	require.Nil(t, errInfo)
	cfg := result.(providersConfigResult)
	assert.Equal(t, "openai", cfg.ActiveProvider)
	require.Len(t, cfg.Providers, 2)
	assert.True(t, cfg.Providers[0].HasAPIKey)
	assert.False(t, cfg.Providers[1].HasAPIKey)

	_, errInfo = eng.ProvidersSetConfig(ctx, json.RawMessage(
		`{"active_provider":"anthropic","provider_id":"anthropic","model":"claude-3-5-haiku-latest"}`))
	require.Nil(t, errInfo)

	result, errInfo = eng.ProvidersGetConfig(ctx, nil)
	require.Nil(t, errInfo)
	cfg = result.(providersConfigResult)
	assert.Equal(t, "anthropic", cfg.ActiveProvider)

	_, errInfo = eng.ProvidersSetConfig(ctx, json.RawMessage(`{"active_provider":"mistral"}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeValidationFailed, errInfo.ErrorCode)
}

func TestProvidersClearApiKey(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &fakeTransport{})

	_, errInfo := eng.ProvidersClearApiKey(ctx, json.RawMessage(`{"provider_id":"openai"}`))
	require.Nil(t, errInfo)

	result, errInfo := eng.ProvidersGetConfig(ctx, nil)
	require.Nil(t, errInfo)
	assert.False(t, result.(providersConfigResult).Providers[0].HasAPIKey)
}

func TestAssistantSendMessageNotConfigured(t *testing.T) {
	eng := newTestEngine(t, nil)
	_, errInfo := eng.AssistantSendMessage(context.Background(),
		json.RawMessage(`{"message":"hello"}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeProviderNotConfigured, errInfo.ErrorCode)
}

func TestAssistantSendMessagePlainReply(t *testing.T) {
	transport := &fakeTransport{responses: []string{textResponse("study 10 cards a day")}}
	eng := newTestEngine(t, transport)

	result, errInfo := eng.AssistantSendMessage(context.Background(),
		json.RawMessage(`{"message":"how should I study?"}`))
	require.Nil(t, errInfo)
	reply := result.(sendMessageResult)
	assert.Equal(t, "study 10 cards a day", reply.Reply)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, 1, reply.Rounds)
}

func TestAssistantSendMessageRunsTools(t *testing.T) {
	transport := &fakeTransport{}
	eng := newTestEngine(t, transport)

	deckResult, errInfo := eng.DecksCreate(context.Background(), json.RawMessage(`{"name":"Math"}`))
	require.Nil(t, errInfo)
	deck := deckResult.(map[string]any)["deck"].(store.Deck)

	transport.responses = []string{
		fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"create_card",
			 "arguments":"{\"deck_id\":\"%s\",\"question\":\"What is 2+2?\",\"answer\":\"4\"}"}}]}}]}`, deck.ID),
		textResponse("created the card"),
	}

	var notifications []string
	eng.SetNotifier(func(method string, _ any) { notifications = append(notifications, method) })

	result, errInfo := eng.AssistantSendMessage(context.Background(),
		json.RawMessage(`{"message":"make a card for 2+2"}`))
	require.Nil(t, errInfo)
	reply := result.(sendMessageResult)
	assert.Equal(t, "created the card", reply.Reply)
	assert.Equal(t, 1, reply.ToolCalls)
	assert.Contains(t, notifications, "AssistantToolExecuting")
	assert.Contains(t, notifications, "AssistantToolComplete")

	cardsResult, errInfo := eng.CardsList(context.Background(), nil)
	require.Nil(t, errInfo)
	cards := cardsResult.(map[string]any)["cards"].([]store.Card)
	require.Len(t, cards, 1)
	assert.Equal(t, "What is 2+2?", cards[0].QuestionContent)
}

func TestAssistantSendMessageKeepsSessionHistory(t *testing.T) {
	transport := &fakeTransport{responses: []string{
		textResponse("first reply"),
		textResponse("second reply"),
	}}
	eng := newTestEngine(t, transport)
	ctx := context.Background()

	result, errInfo := eng.AssistantSendMessage(ctx, json.RawMessage(`{"message":"one"}`))
	require.Nil(t, errInfo)
	sessionID := result.(sendMessageResult).SessionID

	params, _ := json.Marshal(map[string]string{"session_id": sessionID, "message": "two"})
	result, errInfo = eng.AssistantSendMessage(ctx, params)
	require.Nil(t, errInfo)
	assert.Equal(t, sessionID, result.(sendMessageResult).SessionID)

	eng.runMu.Lock()
	transcript := eng.transcripts[sessionID]
	eng.runMu.Unlock()
	// (user, assistant) x 2; the system prompt is re-seeded per turn,
	// not persisted.
	require.Len(t, transcript, 4)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "two", transcript[2].Content)
	assert.Equal(t, "second reply", transcript[3].Content)
}

func TestAssistantHistoryExcludesToolTrace(t *testing.T) {
	transport := &fakeTransport{responses: []string{
		`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"list_decks","arguments":"{}"}}]}}]}`,
		textResponse("no decks yet"),
	}}
	eng := newTestEngine(t, transport)

	result, errInfo := eng.AssistantSendMessage(context.Background(),
		json.RawMessage(`{"session_id":"s1","message":"what decks do I have?"}`))
	require.Nil(t, errInfo)
	assert.Equal(t, "no decks yet", result.(sendMessageResult).Reply)

	eng.runMu.Lock()
	transcript := eng.transcripts["s1"]
	eng.runMu.Unlock()
	// The run's tool-call and tool-result messages are discarded;
	// only the user message and the final reply remain.
	require.Len(t, transcript, 2)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "assistant", transcript[1].Role)
	assert.Equal(t, "no decks yet", transcript[1].Content)
	assert.Empty(t, transcript[1].ToolCalls)
	for _, msg := range transcript {
		assert.NotEqual(t, "tool", msg.Role)
	}
}

func TestAssistantBusyRejection(t *testing.T) {
	transport := &fakeTransport{
		responses: []string{textResponse("done")},
		block:     make(chan struct{}),
	}
	eng := newTestEngine(t, transport)
	ctx := context.Background()
	params := json.RawMessage(`{"session_id":"s1","message":"slow one"}`)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, errInfo := eng.AssistantSendMessage(ctx, params)
		assert.Nil(t, errInfo)
	}()

	// Wait until the first run holds the session.
	require.Eventually(t, func() bool {
		eng.runMu.Lock()
		defer eng.runMu.Unlock()
		_, busy := eng.runs["s1"]
		return busy
	}, time.Second, 5*time.Millisecond)

	_, errInfo := eng.AssistantSendMessage(ctx, params)
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeAssistantBusy, errInfo.ErrorCode)

	close(transport.block)
	<-done
}

func TestAssistantCancelRun(t *testing.T) {
	transport := &fakeTransport{block: make(chan struct{})}
	eng := newTestEngine(t, transport)
	ctx := context.Background()

	done := make(chan *errinfo.ErrorInfo, 1)
	go func() {
		_, errInfo := eng.AssistantSendMessage(ctx,
			json.RawMessage(`{"session_id":"s1","message":"cancel me"}`))
		done <- errInfo
	}()

	require.Eventually(t, func() bool {
		eng.runMu.Lock()
		defer eng.runMu.Unlock()
		_, busy := eng.runs["s1"]
		return busy
	}, time.Second, 5*time.Millisecond)

	result, errInfo := eng.AssistantCancelRun(ctx, json.RawMessage(`{"session_id":"s1"}`))
	require.Nil(t, errInfo)
	assert.True(t, result.(map[string]bool)["canceled"])

	runErr := <-done
	require.NotNil(t, runErr)
	assert.Equal(t, errinfo.CodeUserCanceled, runErr.ErrorCode)

	// Canceling an idle session is a no-op.
	result, errInfo = eng.AssistantCancelRun(ctx, json.RawMessage(`{"session_id":"s1"}`))
	require.Nil(t, errInfo)
	assert.False(t, result.(map[string]bool)["canceled"])
}

func TestAssistantProposalConfirmFlow(t *testing.T) {
	transport := &fakeTransport{responses: []string{
		`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"propose_cards",
			 "arguments":"{\"cards\":[{\"question\":\"q1\",\"answer\":\"a1\"},{\"question\":\"q2\",\"answer\":\"a2\"}]}"}}]}}]}`,
		textResponse("proposed two cards"),
	}}
	eng := newTestEngine(t, transport)
	ctx := context.Background()

	var proposalID string
	eng.SetNotifier(func(method string, params any) {
		if method == "AssistantCardsProposed" {
			data, _ := json.Marshal(params)
			var p struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(data, &p)
			proposalID = p.ID
		}
	})

	_, errInfo := eng.AssistantSendMessage(ctx, json.RawMessage(`{"message":"make cards"}`))
	require.Nil(t, errInfo)
	require.NotEmpty(t, proposalID)

	// Nothing is persisted until confirmation.
	cardsResult, errInfo := eng.CardsList(ctx, nil)
	require.Nil(t, errInfo)
	assert.Empty(t, cardsResult.(map[string]any)["cards"].([]store.Card))

	params, _ := json.Marshal(map[string]string{"proposal_id": proposalID})
	result, errInfo := eng.AssistantConfirmProposal(ctx, params)
	require.Nil(t, errInfo)
	assert.Equal(t, 2, result.(map[string]any)["created"])

	cardsResult, errInfo = eng.CardsList(ctx, nil)
	require.Nil(t, errInfo)
	assert.Len(t, cardsResult.(map[string]any)["cards"].([]store.Card), 2)

	// A confirmed proposal is gone.
	_, errInfo = eng.AssistantConfirmProposal(ctx, params)
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeProposalNotFound, errInfo.ErrorCode)
}

func TestAssistantDismissProposal(t *testing.T) {
	eng := newTestEngine(t, &fakeTransport{})
	_, errInfo := eng.AssistantDismissProposal(context.Background(),
		json.RawMessage(`{"proposal_id":"nope"}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeProposalNotFound, errInfo.ErrorCode)
}

func TestEditorLifecycleOverRPC(t *testing.T) {
	eng := newTestEngine(t, &fakeTransport{})
	ctx := context.Background()

	_, errInfo := eng.EditorSync(ctx, json.RawMessage(`{"state":{}}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeEditorNotOpen, errInfo.ErrorCode)

	_, errInfo = eng.EditorOpened(ctx, json.RawMessage(
		`{"state":{"card_id":"c1","question":{"type":"text","content":"q"},"answer":{"type":"text","content":""},"timer_seconds":300}}`))
	require.Nil(t, errInfo)
	assert.True(t, eng.bridge.IsOpen())

	_, errInfo = eng.EditorSync(ctx, json.RawMessage(
		`{"state":{"card_id":"c1","question":{"type":"text","content":"edited"},"answer":{"type":"text","content":""},"timer_seconds":300}}`))
	require.Nil(t, errInfo)

	_, errInfo = eng.EditorClosed(ctx, nil)
	require.Nil(t, errInfo)
	assert.False(t, eng.bridge.IsOpen())
}

func TestReviewsSubmit(t *testing.T) {
	eng := newTestEngine(t, &fakeTransport{})
	ctx := context.Background()

	cardResult, errInfo := eng.CardsCreate(ctx, json.RawMessage(
		`{"question_content":"What is 6*7?","answer_content":"42","timer_seconds":60}`))
	require.Nil(t, errInfo)
	card := cardResult.(map[string]any)["card"].(store.Card)

	params, _ := json.Marshal(map[string]any{
		"card_id":               card.ID,
		"correct":               true,
		"response_time_seconds": 30,
	})
	result, errInfo := eng.ReviewsSubmit(ctx, params)
	require.Nil(t, errInfo)
	review := result.(reviewSubmitResult)
	// 30s of 60s is the fast band.
	assert.Equal(t, 5, review.Quality)
	assert.InDelta(t, 2.65, review.Card.EaseFactor, 0.001)
	assert.Equal(t, 1, review.Card.Repetitions)
	require.NotNil(t, review.Card.DueDate)

	historyResult, errInfo := eng.CardsGetHistory(ctx, json.RawMessage(
		fmt.Sprintf(`{"card_id":%q}`, card.ID)))
	require.Nil(t, errInfo)
	history := historyResult.(map[string]any)["reviews"].([]store.ReviewRecord)
	require.Len(t, history, 1)

	_, errInfo = eng.ReviewsSubmit(ctx, json.RawMessage(`{"card_id":"missing"}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeNotFound, errInfo.ErrorCode)
}

func TestDeckAndCardRPCValidation(t *testing.T) {
	eng := newTestEngine(t, &fakeTransport{})
	ctx := context.Background()

	_, errInfo := eng.DecksCreate(ctx, json.RawMessage(`{"name":"  "}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeValidationFailed, errInfo.ErrorCode)

	_, errInfo = eng.CardsGet(ctx, json.RawMessage(`{"card_id":"missing"}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeNotFound, errInfo.ErrorCode)

	_, errInfo = eng.CardsCreate(ctx, json.RawMessage(`{"question_content":""}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeValidationFailed, errInfo.ErrorCode)
}

func TestAssistGenerateAnswer(t *testing.T) {
	transport := &fakeTransport{responses: []string{textResponse("The mitochondria.")}}
	eng := newTestEngine(t, transport)

	result, errInfo := eng.AssistGenerateAnswer(context.Background(),
		json.RawMessage(`{"question":"What is the powerhouse of the cell?"}`))
	require.Nil(t, errInfo)
	assert.Equal(t, "The mitochondria.", result.(map[string]string)["answer"])

	_, errInfo = eng.AssistGenerateAnswer(context.Background(), json.RawMessage(`{}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeValidationFailed, errInfo.ErrorCode)
}

func TestAssistAssessDifficulty(t *testing.T) {
	transport := &fakeTransport{responses: []string{textResponse("I think about 90 seconds.")}}
	eng := newTestEngine(t, transport)

	result, errInfo := eng.AssistAssessDifficulty(context.Background(),
		json.RawMessage(`{"question":"Integrate x^2 from 0 to 3","answer":"9"}`))
	require.Nil(t, errInfo)
	assert.Equal(t, 90, result.(map[string]int)["timer_seconds"])
}

func TestParseSecondsClamps(t *testing.T) {
	assert.Equal(t, difficultyDefaultSeconds, parseSeconds("no idea"))
	assert.Equal(t, difficultyMinSeconds, parseSeconds("5"))
	assert.Equal(t, difficultyMaxSeconds, parseSeconds("100000 seconds"))
	assert.Equal(t, 120, parseSeconds("120"))
}

func TestAssistantTransportErrorMapped(t *testing.T) {
	transport := &fakeTransport{errs: []error{llm.ErrRateLimited}, responses: []string{""}}
	eng := newTestEngine(t, transport)

	_, errInfo := eng.AssistantSendMessage(context.Background(),
		json.RawMessage(`{"message":"hi"}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, errinfo.CodeProviderRateLimited, errInfo.ErrorCode)
	assert.True(t, errInfo.Retryable)
}
