package settings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/torim-app/torim/libs/db"
)

// Repository persists the singleton settings document as a JSONB row.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Load(ctx context.Context) (Settings, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT document FROM settings WHERE id = 1
	`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}

	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, false, err
	}
	return s, true, nil
}

func (r *Repository) Save(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO settings (id, document, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()
	`, raw)
	return err
}
