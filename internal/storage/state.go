package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"album_poster/internal/domain"
)

// StateStore keeps the single publish_state row.
type StateStore struct {
	db *sqlx.DB
}

func NewStateStore(db *sqlx.DB) *StateStore {
	return &StateStore{db: db}
}

func (s *StateStore) Get(ctx context.Context) (*domain.PublishState, error) {
	exec := executor(ctx, s.db)

	var state domain.PublishState
	query := `
		SELECT last_item_id, last_published_at, total_published
		FROM publish_state
		WHERE id = 1`

	err := sqlx.GetContext(ctx, exec, &state, query)
	if errors.Is(err, sql.ErrNoRows) {
		// nothing published yet
		return &domain.PublishState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateStore) Update(ctx context.Context, state *domain.PublishState) error {
	exec := executor(ctx, s.db)

	query := exec.Rebind(`
		INSERT INTO publish_state (id, last_item_id, last_published_at, total_published)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_item_id = EXCLUDED.last_item_id,
			last_published_at = EXCLUDED.last_published_at,
			total_published = EXCLUDED.total_published`)

	_, err := exec.ExecContext(ctx, query,
		state.LastItemID,
		state.LastPublishedAt.UTC(),
		state.TotalPublished,
	)
	return err
}
