package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"inventory_sync/internal/config"
	"inventory_sync/internal/domain"
	"inventory_sync/internal/notifier"
)

type SyncService struct {
	vehicles   VehicleStore
	syncLogs   SyncLogStore
	heartbeats HeartbeatStore
	txManager  TransactionManager
	notifier   Notifier
	publisher  Publisher
	logger     *slog.Logger
	config     config.SyncConfig
	alertTo    string
}

func NewSyncService(
	vehicles VehicleStore,
	syncLogs SyncLogStore,
	heartbeats HeartbeatStore,
	txManager TransactionManager,
	n Notifier,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
	alertTo string,
) *SyncService {
	return &SyncService{
		vehicles:   vehicles,
		syncLogs:   syncLogs,
		heartbeats: heartbeats,
		txManager:  txManager,
		notifier:   n,
		publisher:  publisher,
		logger:     logger,
		config:     cfg,
		alertTo:    alertTo,
	}
}

// Sync reconciles one full snapshot against the persisted inventory:
// dedup, normalize, batch upsert, then guarded sold-by-omission. An upsert
// failure aborts the run; a sold-detection failure does not. Exactly one
// ledger entry is appended either way.
func (s *SyncService) Sync(ctx context.Context, incoming []domain.IncomingVehicle, meta *domain.SyncMeta) (*domain.SyncStats, error) {
	startTime := time.Now()

	stats := &domain.SyncStats{Processed: len(incoming)}
	if meta != nil {
		stats.Skipped = meta.SkippedCount
	}

	s.logger.Info("starting snapshot sync",
		"vehicles", len(incoming),
		"min_batch_size", s.config.MinBatchSize,
	)

	rows := s.normalize(incoming)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.vehicles.UpsertBatch(txCtx, rows)
	})
	if err != nil {
		s.recordFailure(ctx, err, meta)
		return nil, fmt.Errorf("upsert vehicles: %w", err)
	}
	stats.Upserted = len(rows)

	soldAt := time.Now().UTC()
	guardSkipped := stats.Processed < s.config.MinBatchSize

	if guardSkipped {
		s.logger.Warn("batch below safety threshold, skipping sold detection",
			"processed", stats.Processed,
			"min_batch_size", s.config.MinBatchSize,
		)
	} else {
		soldVINs, err := s.detectSold(ctx, rows, soldAt)
		if err != nil {
			// A failure to mark sold vehicles must not fail the ingest.
			stats.SoldError = err.Error()
			s.logger.Error("sold detection failed", "error", err)
		} else {
			stats.Sold = len(soldVINs)
			s.publishSold(ctx, soldVINs, soldAt, stats)
		}
	}

	s.publishSynced(ctx, stats)
	s.recordSuccess(ctx, stats, meta, guardSkipped)

	stats.Duration = time.Since(startTime)

	s.logger.Info("snapshot sync completed",
		"processed", stats.Processed,
		"upserted", stats.Upserted,
		"sold", stats.Sold,
		"skipped", stats.Skipped,
		"duration", stats.Duration,
	)

	return stats, nil
}

// normalize dedups by VIN (last occurrence wins) and applies field defaults.
// Input order is preserved for the surviving records.
func (s *SyncService) normalize(incoming []domain.IncomingVehicle) []domain.Vehicle {
	lastIdx := make(map[string]int, len(incoming))
	for i, in := range incoming {
		lastIdx[in.VIN] = i
	}

	rows := make([]domain.Vehicle, 0, len(lastIdx))
	for i, in := range incoming {
		if lastIdx[in.VIN] != i {
			s.logger.Warn("duplicate vin in batch, keeping last occurrence", "vin", in.VIN)
			continue
		}
		rows = append(rows, in.Normalize())
	}
	return rows
}

// detectSold marks every currently Available VIN absent from the snapshot
// as Sold. Returns the VINs that transitioned.
func (s *SyncService) detectSold(ctx context.Context, rows []domain.Vehicle, soldAt time.Time) ([]string, error) {
	available, err := s.vehicles.ListAvailableVINs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available vins: %w", err)
	}

	present := make(map[string]struct{}, len(rows))
	for _, v := range rows {
		present[v.VIN] = struct{}{}
	}

	var missing []string
	for _, vin := range available {
		if _, ok := present[vin]; !ok {
			missing = append(missing, vin)
		}
	}

	if len(missing) == 0 {
		return nil, nil
	}

	if _, err := s.vehicles.MarkSold(ctx, missing, soldAt); err != nil {
		return nil, fmt.Errorf("mark sold: %w", err)
	}

	s.logger.Info("marked vehicles sold by omission", "count", len(missing), "vins", missing)
	return missing, nil
}

func (s *SyncService) publishSold(ctx context.Context, vins []string, soldAt time.Time, stats *domain.SyncStats) {
	if s.publisher == nil {
		return
	}
	for _, vin := range vins {
		if err := s.publisher.PublishSold(ctx, vin, soldAt); err != nil {
			stats.PublishErrors = append(stats.PublishErrors, fmt.Sprintf("sold %s: %v", vin, err))
			s.logger.Error("failed to publish sold event", "vin", vin, "error", err)
		}
	}
}

func (s *SyncService) publishSynced(ctx context.Context, stats *domain.SyncStats) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSynced(ctx, stats); err != nil {
		stats.PublishErrors = append(stats.PublishErrors, fmt.Sprintf("synced: %v", err))
		s.logger.Error("failed to publish sync summary", "error", err)
	}
}

func (s *SyncService) recordSuccess(ctx context.Context, stats *domain.SyncStats, meta *domain.SyncMeta, guardSkipped bool) {
	details := map[string]interface{}{
		"processed": stats.Processed,
		"upserted":  stats.Upserted,
		"sold":      stats.Sold,
	}
	mergeMeta(details, meta)
	if guardSkipped {
		details["sold_detection"] = fmt.Sprintf("skipped: batch of %d below safety threshold %d", stats.Processed, s.config.MinBatchSize)
	}
	if stats.SoldError != "" {
		details["sold_error"] = stats.SoldError
	}
	if len(stats.PublishErrors) > 0 {
		details["publish_errors"] = stats.PublishErrors
	}

	msg := fmt.Sprintf("Processed %d vehicles, marked %d sold.", stats.Processed, stats.Sold)
	s.appendLog(ctx, domain.EventSyncSuccess, msg, details)
}

func (s *SyncService) recordFailure(ctx context.Context, runErr error, meta *domain.SyncMeta) {
	details := map[string]interface{}{
		"error": runErr.Error(),
	}
	mergeMeta(details, meta)

	s.appendLog(ctx, domain.EventSyncError, "Inventory sync failed.", details)

	if s.notifier != nil && s.alertTo != "" {
		sent := s.notifier.Send(ctx, s.alertTo,
			"CRITICAL: Inventory sync failed",
			notifier.SyncFailureHTML(runErr.Error()),
		)
		if !sent {
			s.logger.Error("critical alert email not sent")
		}
	}
}

// appendLog writes one ledger entry; on persistence failure it falls back to
// the process log so the caller can still get a response.
func (s *SyncService) appendLog(ctx context.Context, eventType, message string, details map[string]interface{}) {
	payload, err := json.Marshal(details)
	if err != nil {
		s.logger.Error("failed to marshal ledger details", "error", err)
		payload = []byte("{}")
	}

	if err := s.syncLogs.Append(ctx, eventType, message, payload); err != nil {
		s.logger.Error("failed to append sync log entry",
			"event_type", eventType,
			"message", message,
			"details", string(payload),
			"error", err,
		)
	}
}

func mergeMeta(details map[string]interface{}, meta *domain.SyncMeta) {
	if meta == nil {
		return
	}
	if meta.TotalRows > 0 {
		details["total_rows"] = meta.TotalRows
	}
	details["skipped_count"] = meta.SkippedCount
	if len(meta.SkippedDetails) > 0 {
		details["skipped_details"] = meta.SkippedDetails
	}
	if meta.Filename != "" {
		details["filename"] = meta.Filename
	}
	if meta.RetryAttempt > 0 {
		details["retry_attempt"] = meta.RetryAttempt
	}
}
