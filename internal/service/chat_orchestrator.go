package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

var (
	ErrChatSessionNotFound = errors.New("chat session not found")
	ErrQuestionTooShort    = errors.New("question is too short")
	ErrQuestionTooLong     = errors.New("question is too long")
)

const (
	defaultMinQuestionLength = 3
	maxQuestionLength        = 2000
	maxTitleLength           = 80
)

type ChatConfig struct {
	MinQuestionLength int
}

// ChatOrchestrator sends questions to the query engine and records the
// conversation, including failed answers, as chat messages.
type ChatOrchestrator struct {
	engine ports.QueryEngine
	repo   ports.ChatRepository
	minLen int
	now    func() time.Time
}

func NewChatOrchestrator(engine ports.QueryEngine, repo ports.ChatRepository, cfg ChatConfig) *ChatOrchestrator {
	minLen := cfg.MinQuestionLength
	if minLen <= 0 {
		minLen = defaultMinQuestionLength
	}
	return &ChatOrchestrator{engine: engine, repo: repo, minLen: minLen, now: time.Now}
}

func (c *ChatOrchestrator) CreateSession(ctx context.Context, ownerID, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}
	now := c.now().UTC()
	return c.repo.CreateSession(ctx, &domain.ChatSession{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     truncate(title, maxTitleLength),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (c *ChatOrchestrator) Sessions(ctx context.Context, ownerID string) ([]domain.ChatSession, error) {
	return c.repo.ListSessions(ctx, ownerID)
}

// DeleteSession removes one of the owner's sessions and its history.
func (c *ChatOrchestrator) DeleteSession(ctx context.Context, ownerID string, sessionID uuid.UUID) error {
	if _, err := c.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}
	err := c.repo.DeleteSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChatSessionNotFound
	}
	return err
}

func (c *ChatOrchestrator) Messages(ctx context.Context, ownerID string, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	if _, err := c.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	return c.repo.ListMessages(ctx, sessionID)
}

// Ask records the question, then the engine's answer. A failing engine does
// not fail the call: the answer is stored and returned as an error message.
func (c *ChatOrchestrator) Ask(ctx context.Context, ownerID string, sessionID uuid.UUID, question string) (*domain.ChatMessage, error) {
	question = strings.TrimSpace(question)
	switch n := utf8.RuneCountInString(question); {
	case n < c.minLen:
		return nil, fmt.Errorf("%w: at least %d characters", ErrQuestionTooShort, c.minLen)
	case n > maxQuestionLength:
		return nil, fmt.Errorf("%w: at most %d characters", ErrQuestionTooLong, maxQuestionLength)
	}
	if _, err := c.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	if _, err := c.repo.InsertMessage(ctx, &domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Kind:      domain.ChatMessageUser,
		Status:    domain.ChatMessageCompleted,
		Content:   question,
		CreatedAt: c.now().UTC(),
	}); err != nil {
		return nil, err
	}

	pending, err := c.repo.InsertMessage(ctx, &domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Kind:      domain.ChatMessageAssistant,
		Status:    domain.ChatMessagePending,
		CreatedAt: c.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	answer, askErr := c.engine.Ask(ctx, question)
	reply := *pending
	if askErr != nil {
		log.Printf("chat %s: query failed: %v", sessionID, askErr)
		reply.Kind = domain.ChatMessageError
		reply.Status = domain.ChatMessageFailed
		reply.Content = "query failed: " + askErr.Error()
	} else {
		reply.Status = domain.ChatMessageCompleted
		reply.Content = summarizeAnswer(answer)
		if answer.SQL != "" {
			query := answer.SQL
			reply.SQL = &query
		}
		reply.Columns = answer.Columns
		reply.Rows = answer.Results
		reply.RowCount = answer.RowCount
	}

	// store the reply even if the request was cancelled meanwhile
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return c.repo.UpdateMessage(saveCtx, &reply)
}

func (c *ChatOrchestrator) ownedSession(ctx context.Context, ownerID string, id uuid.UUID) (*domain.ChatSession, error) {
	session, err := c.repo.FindSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session == nil || session.OwnerID != ownerID {
		return nil, ErrChatSessionNotFound
	}
	return session, nil
}

func summarizeAnswer(answer *domain.ChatAnswer) string {
	switch answer.RowCount {
	case 0:
		return "No rows matched the question."
	case 1:
		return "Found 1 row."
	default:
		return fmt.Sprintf("Found %d rows.", answer.RowCount)
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
