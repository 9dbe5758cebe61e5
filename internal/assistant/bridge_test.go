package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeClosedByDefault(t *testing.T) {
	bridge := NewBridge()
	assert.False(t, bridge.IsOpen())

	_, err := bridge.Snapshot()
	assert.ErrorIs(t, err, ErrNoEditor)
	_, err = bridge.WriteQuestion("text", "x")
	assert.ErrorIs(t, err, ErrNoEditor)
	assert.ErrorIs(t, bridge.SetTimer(60), ErrNoEditor)
	assert.ErrorIs(t, bridge.Clear(), ErrNoEditor)
	assert.ErrorIs(t, bridge.Sync(EditorState{}), ErrNoEditor)
}

func TestBridgeOpenSyncClose(t *testing.T) {
	bridge := NewBridge()
	bridge.Open(EditorState{CardID: "card-1", TimerSeconds: 300})
	assert.True(t, bridge.IsOpen())

	require.NoError(t, bridge.Sync(EditorState{
		CardID:   "card-1",
		Question: EditorField{Type: "text", Content: "user typed this"},
	}))
	state, err := bridge.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "user typed this", state.Question.Content)

	bridge.Close()
	assert.False(t, bridge.IsOpen())
	_, err = bridge.Snapshot()
	assert.ErrorIs(t, err, ErrNoEditor)
}

func TestBridgeWriteNotifiesAndSummarizes(t *testing.T) {
	bridge := NewBridge()
	bridge.Open(EditorState{})

	var changes []EditorState
	bridge.OnChange(func(state EditorState) { changes = append(changes, state) })

	summary, err := bridge.WriteQuestion("", "What is the capital of France?")
	require.NoError(t, err)
	assert.NotEqual(t, "no change", summary)

	summary, err = bridge.WriteAnswer("text", "Paris")
	require.NoError(t, err)
	assert.Contains(t, summary, "+")

	require.Len(t, changes, 2)
	// Empty type defaults to text.
	assert.Equal(t, "text", changes[0].Question.Type)
	assert.Equal(t, "Paris", changes[1].Answer.Content)
}

func TestBridgeWriteSameContent(t *testing.T) {
	bridge := NewBridge()
	bridge.Open(EditorState{Question: EditorField{Type: "text", Content: "same"}})

	summary, err := bridge.WriteQuestion("text", "same")
	require.NoError(t, err)
	assert.Equal(t, "no change", summary)
}

func TestBridgeClearKeepsCardID(t *testing.T) {
	bridge := NewBridge()
	bridge.Open(EditorState{
		CardID:       "card-7",
		Question:     EditorField{Type: "latex", Content: "x^2"},
		Answer:       EditorField{Type: "text", Content: "parabola"},
		TimerSeconds: 120,
	})

	require.NoError(t, bridge.Clear())
	state, err := bridge.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "card-7", state.CardID)
	assert.Empty(t, state.Question.Content)
	assert.Empty(t, state.Answer.Content)
	assert.Zero(t, state.TimerSeconds)
}

func TestBridgeWriteEmitsFieldDiff(t *testing.T) {
	bridge := NewBridge()
	bridge.Open(EditorState{Question: EditorField{Type: "text", Content: "old line"}})

	var diffs []FieldDiff
	bridge.OnFieldDiff(func(d FieldDiff) { diffs = append(diffs, d) })

	_, err := bridge.WriteQuestion("text", "new line")
	require.NoError(t, err)
	_, err = bridge.WriteAnswer("text", "fresh answer")
	require.NoError(t, err)

	require.Len(t, diffs, 2)
	assert.Equal(t, "question", diffs[0].Field)
	assert.Equal(t, "answer", diffs[1].Field)
	assert.NotEmpty(t, diffs[0].Hunks)
}

func TestBridgeReopenReplacesState(t *testing.T) {
	bridge := NewBridge()
	bridge.Open(EditorState{CardID: "first"})
	bridge.Open(EditorState{CardID: "second"})

	state, err := bridge.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "second", state.CardID)
}
