package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessageKind string

const (
	ChatMessageUser      ChatMessageKind = "user"
	ChatMessageAssistant ChatMessageKind = "assistant"
	ChatMessageError     ChatMessageKind = "error"
)

type ChatMessageStatus string

const (
	ChatMessagePending   ChatMessageStatus = "pending"
	ChatMessageCompleted ChatMessageStatus = "completed"
	ChatMessageFailed    ChatMessageStatus = "failed"
)

type ChatSession struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ChatMessage struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	SessionID uuid.UUID         `db:"session_id" json:"session_id"`
	Kind      ChatMessageKind   `db:"kind" json:"kind"`
	Status    ChatMessageStatus `db:"status" json:"status"`
	Content   string            `db:"content" json:"content"`
	SQL       *string           `db:"sql_query" json:"sql,omitempty"`
	Columns   []string          `db:"-" json:"columns,omitempty"`
	Rows      []map[string]any  `db:"-" json:"rows,omitempty"`
	RowCount  int               `db:"row_count" json:"row_count"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// ChatAnswer is the natural-language-to-SQL engine's reply to one question.
type ChatAnswer struct {
	Question         string           `json:"question"`
	SQL              string           `json:"sql"`
	Results          []map[string]any `json:"results"`
	RowCount         int              `json:"row_count"`
	Columns          []string         `json:"columns"`
	ProcessingTimeMS float64          `json:"processing_time_ms"`
	ServiceMode      string           `json:"service_mode,omitempty"`
}
