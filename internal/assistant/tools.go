package assistant

import (
	"encoding/json"

	"studybench/engine/internal/llm"
)

// BaseTools defines the tools always available to the model.
var BaseTools = []llm.Tool{
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "list_decks",
			Description: "List the user's decks with card counts, positions, and deadlines. Use this first to see how the library is organized.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "list_cards",
			Description: "List cards, optionally scoped to one deck. Returns scheduling state but not full media content.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"deck_id": {"type": "string", "description": "Optional deck id to filter by"},
					"limit": {"type": "integer", "description": "Maximum number of cards to return"}
				},
				"required": []
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "list_due_cards",
			Description: "List cards that are due for review right now, most overdue first. Never-reviewed cards count as due.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"deck_id": {"type": "string", "description": "Optional deck id to filter by"},
					"limit": {"type": "integer", "description": "Maximum number of cards to return"}
				},
				"required": []
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "get_card_detail",
			Description: "Get one card's full detail including question and answer content. Image content is redacted to a placeholder.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"card_id": {"type": "string", "description": "Card id"}
				},
				"required": ["card_id"]
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "get_card_history",
			Description: "Get a card's review history, most recent first. Each entry has correctness, speed, quality, and ease changes.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"card_id": {"type": "string", "description": "Card id"},
					"limit": {"type": "integer", "description": "Maximum number of reviews to return"}
				},
				"required": ["card_id"]
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "get_study_stats",
			Description: "Get overall study statistics: total cards, due today, overdue, reviews done today, and today's accuracy.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "create_card",
			Description: "Create one flashcard immediately in a deck. Use propose_cards instead when creating several cards so the user can review them first.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"deck_id": {"type": "string", "description": "Deck id to file the card under"},
					"question": {"type": "string", "description": "Question text"},
					"answer": {"type": "string", "description": "Optional answer text; the card can be created question-only"},
					"timer_seconds": {"type": "integer", "description": "Optional answer timer in seconds (default 300)"}
				},
				"required": ["deck_id", "question"]
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "propose_cards",
			Description: "Propose a batch of flashcards without saving them. The user reviews the proposal and confirms or dismisses it out of band; nothing is persisted until they confirm.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"deck_id": {"type": "string", "description": "Optional deck id applied to every proposed card"},
					"cards": {
						"type": "array",
						"description": "Cards to propose",
						"items": {
							"type": "object",
							"properties": {
								"question": {"type": "string"},
								"answer": {"type": "string"},
								"deck_id": {"type": "string", "description": "Optional per-card deck override"},
								"timer_seconds": {"type": "integer"}
							},
							"required": ["question", "answer"]
						}
					}
				},
				"required": ["cards"]
			}`),
		},
	},
}

// EditorTools extends the catalog while a card editor session is open.
var EditorTools = []llm.Tool{
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "editor_read",
			Description: "Read the current state of the open card editor: question, answer, and timer.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "editor_write_question",
			Description: "Replace the question field in the open card editor. Returns a summary of what changed.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"content": {"type": "string", "description": "New question content"},
					"type": {"type": "string", "enum": ["text", "latex"], "description": "Content type (default text)"}
				},
				"required": ["content"]
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "editor_write_answer",
			Description: "Replace the answer field in the open card editor. Returns a summary of what changed.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"content": {"type": "string", "description": "New answer content"},
					"type": {"type": "string", "enum": ["text", "latex"], "description": "Content type (default text)"}
				},
				"required": ["content"]
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "editor_set_timer",
			Description: "Set the answer timer for the card being edited, in seconds.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"seconds": {"type": "integer", "description": "Timer duration in seconds"}
				},
				"required": ["seconds"]
			}`),
		},
	},
	{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "editor_clear",
			Description: "Clear the question, answer, and timer fields in the open card editor.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		},
	},
}

// Catalog returns the tool set for one run. Editor tools are offered
// only while an editor session is registered.
func Catalog(editorOpen bool) []llm.Tool {
	tools := make([]llm.Tool, 0, len(BaseTools)+len(EditorTools))
	tools = append(tools, BaseTools...)
	if editorOpen {
		tools = append(tools, EditorTools...)
	}
	return tools
}
