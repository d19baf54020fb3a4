package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"inventory_sync/internal/domain"
)

type SyncLogStore struct {
	db *sqlx.DB
}

func NewSyncLogStore(db *sqlx.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// Append writes one immutable ledger entry. details must be valid JSON.
func (s *SyncLogStore) Append(ctx context.Context, eventType, message string, details []byte) error {
	query := `
		INSERT INTO sync_logs (event_type, message, details)
		VALUES ($1, $2, $3)`

	if len(details) == 0 {
		details = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, query, eventType, message, details)
	return err
}

// List returns the most recent entries, newest first. Read by the admin
// log viewer.
func (s *SyncLogStore) List(ctx context.Context, limit int) ([]domain.SyncLogEntry, error) {
	query := `
		SELECT id, event_type, message, details, created_at
		FROM sync_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	var entries []domain.SyncLogEntry
	err := s.db.SelectContext(ctx, &entries, query, limit)
	return entries, err
}
