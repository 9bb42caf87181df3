package memory

import (
	"context"
	"database/sql"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

// ChatRepository keeps sessions and messages in insertion order. Lookups of
// unknown rows return sql.ErrNoRows, like the postgres repository.
type ChatRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.ChatSession
	messages map[uuid.UUID][]domain.ChatMessage
}

var _ ports.ChatRepository = (*ChatRepository)(nil)

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		sessions: make(map[uuid.UUID]domain.ChatSession),
		messages: make(map[uuid.UUID][]domain.ChatMessage),
	}
}

func (r *ChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *session
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	r.sessions[stored.ID] = stored
	return &stored, nil
}

func (r *ChatRepository) FindSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

// ListSessions returns the owner's sessions, most recently updated first.
func (r *ChatRepository) ListSessions(ctx context.Context, ownerID string) ([]domain.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChatSession, 0)
	for _, s := range r.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.ChatSession) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (r *ChatRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.sessions, id)
	delete(r.messages, id)
	return nil
}

func (r *ChatRepository) InsertMessage(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[msg.SessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	stored := *msg
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	r.messages[msg.SessionID] = append(r.messages[msg.SessionID], stored)
	if stored.CreatedAt.After(session.UpdatedAt) {
		session.UpdatedAt = stored.CreatedAt
		r.sessions[session.ID] = session
	}
	return &stored, nil
}

func (r *ChatRepository) UpdateMessage(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.messages[msg.SessionID]
	for i := range list {
		if list[i].ID == msg.ID {
			updated := *msg
			updated.CreatedAt = list[i].CreatedAt
			list[i] = updated
			return &updated, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *ChatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ChatMessage{}, r.messages[sessionID]...), nil
}
