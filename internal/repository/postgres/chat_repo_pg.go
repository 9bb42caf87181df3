package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

type ChatRepository struct {
	db *sqlx.DB
}

var _ ports.ChatRepository = (*ChatRepository)(nil)

func NewChatRepo(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// messageRow is chat_message as stored: columns as text[], rows as JSONB.
type messageRow struct {
	ID        uuid.UUID      `db:"id"`
	SessionID uuid.UUID      `db:"session_id"`
	Kind      string         `db:"kind"`
	Status    string         `db:"status"`
	Content   string         `db:"content"`
	SQL       sql.NullString `db:"sql_query"`
	Columns   pq.StringArray `db:"columns"`
	Rows      []byte         `db:"rows"`
	RowCount  int            `db:"row_count"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r messageRow) toDomain() (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{
		ID:        r.ID,
		SessionID: r.SessionID,
		Kind:      domain.ChatMessageKind(r.Kind),
		Status:    domain.ChatMessageStatus(r.Status),
		Content:   r.Content,
		Columns:   []string(r.Columns),
		RowCount:  r.RowCount,
		CreatedAt: r.CreatedAt,
	}
	if r.SQL.Valid {
		query := r.SQL.String
		msg.SQL = &query
	}
	if len(r.Rows) > 0 {
		if err := json.Unmarshal(r.Rows, &msg.Rows); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func encodeRows(rows []map[string]any) ([]byte, error) {
	if rows == nil {
		return nil, nil
	}
	return json.Marshal(rows)
}

const messageColumns = `id, session_id, kind, status, content, sql_query, columns, rows, row_count, created_at`

func (r *ChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, error) {
	const query = `
		INSERT INTO chat_session (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, title, created_at, updated_at
	`
	id := session.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var out domain.ChatSession
	if err := r.db.GetContext(ctx, &out, query, id, session.OwnerID, session.Title, session.CreatedAt, session.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ChatRepository) FindSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	const query = `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_session
		WHERE id = $1
	`
	var session domain.ChatSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *ChatRepository) ListSessions(ctx context.Context, ownerID string) ([]domain.ChatSession, error) {
	const query = `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_session
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id DESC
	`
	sessions := make([]domain.ChatSession, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, ownerID); err != nil {
		return nil, err
	}
	return sessions, nil
}

// InsertMessage stores the message and bumps the session's updated_at in one
// transaction.
// DeleteSession relies on the foreign key cascade to drop the messages.
func (r *ChatRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_session WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ChatRepository) InsertMessage(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	const insert = `
		INSERT INTO chat_message (id, session_id, kind, status, content, sql_query, columns, rows, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + messageColumns
	const touch = `
		UPDATE chat_session SET updated_at = GREATEST(updated_at, $2)
		WHERE id = $1
	`
	rows, err := encodeRows(msg.Rows)
	if err != nil {
		return nil, err
	}
	id := msg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, touch, msg.SessionID, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, sql.ErrNoRows
	}

	var row messageRow
	if err := tx.GetContext(ctx, &row, insert,
		id, msg.SessionID, string(msg.Kind), string(msg.Status), msg.Content, msg.SQL,
		pq.StringArray(msg.Columns), rows, msg.RowCount, msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *ChatRepository) UpdateMessage(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	const query = `
		UPDATE chat_message
		SET kind = $2, status = $3, content = $4, sql_query = $5, columns = $6, rows = $7, row_count = $8
		WHERE id = $1
		RETURNING ` + messageColumns
	rows, err := encodeRows(msg.Rows)
	if err != nil {
		return nil, err
	}
	var row messageRow
	if err := r.db.GetContext(ctx, &row, query,
		msg.ID, string(msg.Kind), string(msg.Status), msg.Content, msg.SQL,
		pq.StringArray(msg.Columns), rows, msg.RowCount,
	); err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *ChatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM chat_message
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}
