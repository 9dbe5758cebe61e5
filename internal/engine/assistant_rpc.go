package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"studybench/engine/internal/assistant"
	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/llm"
)

const assistantSystemPrompt = `You are the study assistant inside StudyBench, a flashcard app with spaced repetition.
You help the user manage their card library, understand their study progress, and write good flashcards.
Use the available tools to look things up instead of guessing. Keep answers short and concrete.
When asked to create more than one or two cards, use propose_cards so the user can review the batch before it is saved.
When a card editor is open you can read and edit its fields directly with the editor tools.`

type sendMessageParams struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type sendMessageResult struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	Reply     string `json:"reply"`
	Rounds    int    `json:"rounds"`
	ToolCalls int    `json:"tool_calls"`
}

// AssistantSendMessage runs one assistant turn to completion. A second
// message for the same session while a run is in flight is rejected.
func (e *Engine) AssistantSendMessage(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p sendMessageParams
	if errInfo := parseParams(errinfo.PhaseAssistant, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAssistant, "message must not be empty")
	}
	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, errInfo := e.resolveProvider(errinfo.PhaseAssistant)
	if errInfo != nil {
		return nil, errInfo
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.runMu.Lock()
	if _, busy := e.runs[sessionID]; busy {
		e.runMu.Unlock()
		return nil, errinfo.AssistantBusy(sessionID)
	}
	e.runs[sessionID] = runHandle{runID: runID, cancel: cancel}
	history := e.transcripts[sessionID]
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		delete(e.runs, sessionID)
		e.runMu.Unlock()
	}()

	// The working transcript is built fresh each turn: system prompt,
	// persisted history, then the new user message. Tool traces from
	// the run are not merged back into history.
	userMessage := llm.ChatMessage{Role: "user", Content: p.Message}
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: assistantSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, userMessage)

	runner := assistant.NewRunner(e.logger)
	runner.MaxRounds = e.maxRounds
	runner.Notify = func(event assistant.NotifyEvent) {
		e.notifyUI(event.Kind, event)
	}
	executor := assistant.NewExecutor(e.store, e.bridge, e.proposals, e.logger)

	result, err := runner.Run(runCtx, session.transport, assistant.RunConfig{
		APIKey:    session.apiKey,
		Model:     session.model,
		Messages:  messages,
		Tools:     assistant.Catalog(e.bridge.IsOpen()),
		Executor:  executor,
		SessionID: sessionID,
	})
	if err != nil {
		// A failed run leaves the transcript where it was so the
		// user can retry the same message.
		return nil, mapLLMError(errinfo.PhaseAssistant, session.providerID, err)
	}

	// Persist only the user message and the final assistant reply.
	updated := make([]llm.ChatMessage, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, userMessage, llm.ChatMessage{Role: "assistant", Content: result.FinalText})
	e.runMu.Lock()
	e.transcripts[sessionID] = updated
	e.runMu.Unlock()

	return sendMessageResult{
		SessionID: sessionID,
		RunID:     runID,
		Reply:     result.FinalText,
		Rounds:    result.Rounds,
		ToolCalls: result.ToolCalls,
	}, nil
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func (e *Engine) AssistantCancelRun(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p sessionIDParams
	if errInfo := parseParams(errinfo.PhaseAssistant, params, &p); errInfo != nil {
		return nil, errInfo
	}
	e.runMu.Lock()
	handle, ok := e.runs[p.SessionID]
	e.runMu.Unlock()
	if !ok {
		return map[string]bool{"canceled": false}, nil
	}
	handle.cancel()
	e.logger.Info("assistant.run_canceled", "session_id", p.SessionID, "run_id", handle.runID)
	return map[string]bool{"canceled": true}, nil
}

type proposalIDParams struct {
	ProposalID string `json:"proposal_id"`
}

func (e *Engine) AssistantConfirmProposal(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p proposalIDParams
	if errInfo := parseParams(errinfo.PhaseAssistant, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.ProposalID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAssistant, "proposal_id is required")
	}
	if _, ok := e.proposals.Get(p.ProposalID); !ok {
		return nil, errinfo.ProposalNotFound(p.ProposalID)
	}
	created, err := e.proposals.Confirm(ctx, e.store, p.ProposalID)
	if err != nil {
		info := errinfo.StorageFailed(errinfo.PhaseAssistant, err.Error())
		info.Subphase = errinfo.SubphaseConfirm
		// Partial results still matter to the caller.
		info.Detail = err.Error()
		e.logger.Warn("assistant.proposal_confirm_failed",
			"proposal_id", p.ProposalID, "created", len(created), "error", err)
		return nil, info
	}
	e.logger.Info("assistant.proposal_confirmed", "proposal_id", p.ProposalID, "created", len(created))
	return map[string]any{"cards": created, "created": len(created)}, nil
}

func (e *Engine) AssistantDismissProposal(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p proposalIDParams
	if errInfo := parseParams(errinfo.PhaseAssistant, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if !e.proposals.Dismiss(p.ProposalID) {
		return nil, errinfo.ProposalNotFound(p.ProposalID)
	}
	return map[string]bool{"dismissed": true}, nil
}

type editorStateParams struct {
	State assistant.EditorState `json:"state"`
}

func (e *Engine) EditorOpened(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p editorStateParams
	if errInfo := parseParams(errinfo.PhaseEditor, params, &p); errInfo != nil {
		return nil, errInfo
	}
	e.bridge.Open(p.State)
	e.logger.Info("editor.opened", "card_id", p.State.CardID)
	return map[string]bool{"open": true}, nil
}

func (e *Engine) EditorClosed(_ context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	e.bridge.Close()
	e.logger.Info("editor.closed")
	return map[string]bool{"open": false}, nil
}

func (e *Engine) EditorSync(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p editorStateParams
	if errInfo := parseParams(errinfo.PhaseEditor, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if err := e.bridge.Sync(p.State); err != nil {
		return nil, errinfo.EditorNotOpen(errinfo.PhaseEditor)
	}
	return map[string]bool{"synced": true}, nil
}
