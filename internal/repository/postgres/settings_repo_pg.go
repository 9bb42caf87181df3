package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

// SettingsRepository stores JSON documents keyed by string in user_setting.
type SettingsRepository struct {
	db *sqlx.DB
}

var _ ports.KeyValueStore = (*SettingsRepository)(nil)

func NewSettingsRepo(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM user_setting WHERE key = $1`
	var value []byte
	if err := r.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrKeyNotFound
		}
		return nil, err
	}
	return value, nil
}

func (r *SettingsRepository) Put(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO user_setting (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, key, string(value))
	return err
}
