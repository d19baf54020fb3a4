package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"inventory_sync/internal/domain"
)

type VehicleStore interface {
	UpsertBatch(ctx context.Context, vehicles []domain.Vehicle) error
	ListAvailableVINs(ctx context.Context) ([]string, error)
	MarkSold(ctx context.Context, vins []string, soldAt time.Time) (int, error)
}

type SyncLogStore interface {
	Append(ctx context.Context, eventType, message string, details []byte) error
	List(ctx context.Context, limit int) ([]domain.SyncLogEntry, error)
}

type HeartbeatStore interface {
	Append(ctx context.Context, status string) error
	Latest(ctx context.Context) (*domain.Heartbeat, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Notifier interface {
	Send(ctx context.Context, to, subject, html string) bool
}

type Publisher interface {
	PublishSold(ctx context.Context, vin string, soldAt time.Time) error
	PublishSynced(ctx context.Context, stats *domain.SyncStats) error
	Close() error
}
