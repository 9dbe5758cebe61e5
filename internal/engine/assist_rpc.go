package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/llm"
)

const (
	difficultyMinSeconds     = 30
	difficultyMaxSeconds     = 3600
	difficultyDefaultSeconds = 300
)

// oneShot runs a single no-tools completion for the assist helpers.
func (e *Engine) oneShot(ctx context.Context, system, user string) (string, *errinfo.ErrorInfo) {
	session, errInfo := e.resolveProvider(errinfo.PhaseAssist)
	if errInfo != nil {
		return "", errInfo
	}
	raw, err := session.transport.Complete(ctx, session.apiKey, session.model,
		[]llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		}, nil)
	if err != nil {
		return "", mapLLMError(errinfo.PhaseAssist, session.providerID, err)
	}
	resp := llm.Normalize(raw)
	if resp.Shape == llm.ShapeUnknown {
		return "", errinfo.ProviderUnavailable(errinfo.PhaseAssist, "unrecognized provider response")
	}
	return strings.TrimSpace(resp.Content), nil
}

type assistTextParams struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Context  string `json:"context,omitempty"`
}

func (e *Engine) AssistGenerateAnswer(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p assistTextParams
	if errInfo := parseParams(errinfo.PhaseAssist, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(p.Question) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAssist, "question is required")
	}
	prompt := "Question: " + p.Question
	if p.Context != "" {
		prompt += "\n\nAdditional context: " + p.Context
	}
	answer, errInfo := e.oneShot(ctx,
		"You write concise flashcard answers. Reply with only the answer text, no preamble, no restating the question.",
		prompt)
	if errInfo != nil {
		return nil, errInfo
	}
	return map[string]string{"answer": answer}, nil
}

func (e *Engine) AssistGenerateQuestion(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p assistTextParams
	if errInfo := parseParams(errinfo.PhaseAssist, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(p.Answer) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAssist, "answer is required")
	}
	prompt := "Answer: " + p.Answer
	if p.Context != "" {
		prompt += "\n\nAdditional context: " + p.Context
	}
	question, errInfo := e.oneShot(ctx,
		"You write flashcard questions. Given an answer, reply with one clear question it answers. Only the question text.",
		prompt)
	if errInfo != nil {
		return nil, errInfo
	}
	return map[string]string{"question": question}, nil
}

func (e *Engine) AssistGenerateTitle(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p assistTextParams
	if errInfo := parseParams(errinfo.PhaseAssist, params, &p); errInfo != nil {
		return nil, errInfo
	}
	content := strings.TrimSpace(p.Question)
	if content == "" {
		content = strings.TrimSpace(p.Context)
	}
	if content == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAssist, "question or context is required")
	}
	title, errInfo := e.oneShot(ctx,
		"You name flashcard decks. Reply with a short title, at most five words, no quotes.",
		content)
	if errInfo != nil {
		return nil, errInfo
	}
	return map[string]string{"title": strings.Trim(title, `"`)}, nil
}

// AssistAssessDifficulty estimates how long answering a card should
// take and returns a timer value clamped to a sane range.
func (e *Engine) AssistAssessDifficulty(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p assistTextParams
	if errInfo := parseParams(errinfo.PhaseAssist, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(p.Question) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAssist, "question is required")
	}
	prompt := "Question: " + p.Question
	if p.Answer != "" {
		prompt += "\nAnswer: " + p.Answer
	}
	reply, errInfo := e.oneShot(ctx,
		fmt.Sprintf("Estimate how many seconds a prepared student needs to answer this flashcard. Reply with a single integer between %d and %d.",
			difficultyMinSeconds, difficultyMaxSeconds),
		prompt)
	if errInfo != nil {
		return nil, errInfo
	}
	return map[string]int{"timer_seconds": parseSeconds(reply)}, nil
}

var digitsPattern = regexp.MustCompile(`\d+`)

func parseSeconds(reply string) int {
	match := digitsPattern.FindString(reply)
	if match == "" {
		return difficultyDefaultSeconds
	}
	seconds, err := strconv.Atoi(match)
	if err != nil {
		return difficultyDefaultSeconds
	}
	if seconds < difficultyMinSeconds {
		return difficultyMinSeconds
	}
	if seconds > difficultyMaxSeconds {
		return difficultyMaxSeconds
	}
	return seconds
}
