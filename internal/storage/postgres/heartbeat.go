package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"inventory_sync/internal/domain"
)

type HeartbeatStore struct {
	db *sqlx.DB
}

func NewHeartbeatStore(db *sqlx.DB) *HeartbeatStore {
	return &HeartbeatStore{db: db}
}

func (s *HeartbeatStore) Append(ctx context.Context, status string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heartbeats (status) VALUES ($1)`,
		status,
	)
	return err
}

// Latest returns the most recent heartbeat, or nil when none exists yet.
// The status widget compares its age against the expected interval.
func (s *HeartbeatStore) Latest(ctx context.Context) (*domain.Heartbeat, error) {
	query := `
		SELECT id, status, created_at
		FROM heartbeats
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var hb domain.Heartbeat
	err := s.db.GetContext(ctx, &hb, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hb, nil
}
