package domain

import "strings"

// Role tags a conversation message author.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a message written by the assistant.
	RoleAssistant Role = "assistant"
)

// MaxHistoryTurns bounds how much conversation history enters the pipeline.
const MaxHistoryTurns = 6

// Message is a single role-tagged conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Query is a raw question plus bounded conversation history.
// Immutable once accepted into the pipeline.
type Query struct {
	text    string
	history []Message
}

// NewQuery validates and creates a Query, capping history to the most
// recent MaxHistoryTurns messages.
func NewQuery(text string, history []Message) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, ErrEmptyQuery
	}
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	h := make([]Message, len(history))
	copy(h, history)
	return Query{text: text, history: h}, nil
}

// Text returns the raw query string.
func (q Query) Text() string { return q.text }

// History returns the bounded conversation history, oldest first.
func (q Query) History() []Message { return q.history }

// HistoryLen returns the number of history messages.
func (q Query) HistoryLen() int { return len(q.history) }
