package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
)

type ChatRepository interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, error)
	FindSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, ownerID string) ([]domain.ChatSession, error)
	// DeleteSession removes the session with its messages.
	DeleteSession(ctx context.Context, id uuid.UUID) error
	InsertMessage(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	UpdateMessage(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error)
}
