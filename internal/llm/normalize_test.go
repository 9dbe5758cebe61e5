package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOpenAIContentOnly(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "Hello there"}}]
	}`)
	resp := Normalize(raw)
	assert.Equal(t, ShapeOpenAI, resp.Shape)
	assert.Equal(t, "Hello there", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestNormalizeOpenAIToolCalls(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {
			"content": null,
			"tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "list_decks", "arguments": "{}"}},
				{"id": "call_2", "type": "function", "function": {"name": "list_due_cards", "arguments": "{\"deck_id\":\"d1\"}"}}
			]
		}}]
	}`)
	resp := Normalize(raw)
	require.Equal(t, ShapeOpenAI, resp.Shape)
	assert.Empty(t, resp.Content)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "list_decks", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, "call_2", resp.ToolCalls[1].ID)
	assert.JSONEq(t, `{"deck_id":"d1"}`, resp.ToolCalls[1].Function.Arguments)
}

func TestNormalizeOpenAIMissingCallType(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {
			"tool_calls": [{"id": "c1", "function": {"name": "get_study_stats"}}]
		}}]
	}`)
	resp := Normalize(raw)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "function", resp.ToolCalls[0].Type)
	assert.Equal(t, "{}", resp.ToolCalls[0].Function.Arguments)
}

func TestNormalizeAnthropicTextBlocks(t *testing.T) {
	raw := json.RawMessage(`{
		"content": [
			{"type": "text", "text": "You have "},
			{"type": "text", "text": "3 cards due."}
		]
	}`)
	resp := Normalize(raw)
	assert.Equal(t, ShapeAnthropic, resp.Shape)
	assert.Equal(t, "You have 3 cards due.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestNormalizeAnthropicToolUse(t *testing.T) {
	raw := json.RawMessage(`{
		"content": [
			{"type": "text", "text": "Checking your decks."},
			{"type": "tool_use", "id": "toolu_1", "name": "list_decks", "input": {}},
			{"type": "tool_use", "id": "toolu_2", "name": "get_card_detail", "input": {"card_id": "c9"}}
		]
	}`)
	resp := Normalize(raw)
	require.Equal(t, ShapeAnthropic, resp.Shape)
	assert.Equal(t, "Checking your decks.", resp.Content)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "list_decks", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, "{}", resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "function", resp.ToolCalls[1].Type)
	assert.JSONEq(t, `{"card_id":"c9"}`, resp.ToolCalls[1].Function.Arguments)
}

func TestNormalizeNeverErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"whitespace":     `   `,
		"not json":       `<html>rate limited</html>`,
		"json array":     `[1,2,3]`,
		"empty object":   `{}`,
		"empty choices":  `{"choices": []}`,
		"string content": `{"content": "plain"}`,
		"error payload":  `{"error": {"message": "overloaded"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			resp := Normalize(json.RawMessage(raw))
			assert.Equal(t, ShapeUnknown, resp.Shape)
			assert.Empty(t, resp.Content)
			assert.Empty(t, resp.ToolCalls)
		})
	}
}
