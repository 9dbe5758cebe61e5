package assistant

import (
	"errors"
	"sync"

	"studybench/engine/internal/diff"
)

// ErrNoEditor is returned by editor operations when no editor session
// is registered.
var ErrNoEditor = errors.New("no editor open")

type EditorField struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// EditorState mirrors the card editor form in the UI.
type EditorState struct {
	CardID       string      `json:"card_id,omitempty"`
	Question     EditorField `json:"question"`
	Answer       EditorField `json:"answer"`
	TimerSeconds int         `json:"timer_seconds"`
}

// Bridge tracks the single live editor session. The UI registers the
// session when an editor opens, keeps it in sync while the user types,
// and unregisters it on close. Tool writes mutate the bridge state and
// surface to the UI through the change hook.
type Bridge struct {
	mu          sync.Mutex
	open        bool
	state       EditorState
	onChange    func(EditorState)
	onFieldDiff func(FieldDiff)
}

// FieldDiff describes one tool-driven field edit so the UI can
// highlight what the assistant changed.
type FieldDiff struct {
	Field string      `json:"field"`
	Hunks []diff.Hunk `json:"hunks"`
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// OnChange installs the hook invoked after every tool-driven mutation.
func (b *Bridge) OnChange(fn func(EditorState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// OnFieldDiff installs the hook invoked with the line diff of each
// tool-driven field write.
func (b *Bridge) OnFieldDiff(fn func(FieldDiff)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFieldDiff = fn
}

func (b *Bridge) Open(state EditorState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.state = state
}

// Sync replaces the tracked state with what the user currently sees.
func (b *Bridge) Sync(state EditorState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return ErrNoEditor
	}
	b.state = state
	return nil
}

func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.state = EditorState{}
}

func (b *Bridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Bridge) Snapshot() (EditorState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return EditorState{}, ErrNoEditor
	}
	return b.state, nil
}

// WriteQuestion replaces the question field and returns a change
// summary for the tool result.
func (b *Bridge) WriteQuestion(fieldType, content string) (string, error) {
	return b.writeField(fieldType, content, false)
}

// WriteAnswer replaces the answer field and returns a change summary.
func (b *Bridge) WriteAnswer(fieldType, content string) (string, error) {
	return b.writeField(fieldType, content, true)
}

func (b *Bridge) writeField(fieldType, content string, answer bool) (string, error) {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return "", ErrNoEditor
	}
	if fieldType == "" {
		fieldType = "text"
	}
	field := &b.state.Question
	fieldName := "question"
	if answer {
		field = &b.state.Answer
		fieldName = "answer"
	}
	summary := diff.Summary(field.Content, content)
	hunks := diff.TextDiff(field.Content, content)
	field.Type = fieldType
	field.Content = content
	state := b.state
	changeHook := b.onChange
	diffHook := b.onFieldDiff
	b.mu.Unlock()

	if diffHook != nil {
		diffHook(FieldDiff{Field: fieldName, Hunks: hunks})
	}
	if changeHook != nil {
		changeHook(state)
	}
	return summary, nil
}

func (b *Bridge) SetTimer(seconds int) error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return ErrNoEditor
	}
	b.state.TimerSeconds = seconds
	state := b.state
	hook := b.onChange
	b.mu.Unlock()

	if hook != nil {
		hook(state)
	}
	return nil
}

func (b *Bridge) Clear() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return ErrNoEditor
	}
	cardID := b.state.CardID
	b.state = EditorState{CardID: cardID}
	state := b.state
	hook := b.onChange
	b.mu.Unlock()

	if hook != nil {
		hook(state)
	}
	return nil
}
