package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"album_poster/internal/domain"
)

// LedgerStore records published item ids. Rows are insert-only.
type LedgerStore struct {
	db *sqlx.DB
}

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) IsPublished(ctx context.Context, itemID string) (bool, error) {
	exec := executor(ctx, s.db)

	var count int64
	query := exec.Rebind(`SELECT COUNT(*) FROM published_items WHERE item_id = ?`)
	if err := sqlx.GetContext(ctx, exec, &count, query, itemID); err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkPublished writes the record unless one already exists for the item; an
// existing record is left as it is.
func (s *LedgerStore) MarkPublished(ctx context.Context, record *domain.DedupRecord) error {
	exec := executor(ctx, s.db)

	query := exec.Rebind(`
		INSERT INTO published_items (item_id, filename, remote_id, published_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id) DO NOTHING`)

	_, err := exec.ExecContext(ctx, query,
		record.ItemID,
		record.Filename,
		record.RemoteID,
		record.PublishedAt.UTC(),
	)
	return err
}

// Get returns the record for itemID, or nil when the item was never published.
func (s *LedgerStore) Get(ctx context.Context, itemID string) (*domain.DedupRecord, error) {
	exec := executor(ctx, s.db)

	var record domain.DedupRecord
	query := exec.Rebind(`
		SELECT item_id, filename, remote_id, published_at
		FROM published_items
		WHERE item_id = ?`)

	err := sqlx.GetContext(ctx, exec, &record, query, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *LedgerStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := sqlx.GetContext(ctx, executor(ctx, s.db), &count, `SELECT COUNT(*) FROM published_items`)
	return count, err
}
