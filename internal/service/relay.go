package service

import (
	"context"
	"fmt"

	"inventory_sync/internal/domain"
	"inventory_sync/internal/notifier"
)

// RecordHeartbeat appends a liveness record for the external feed bridge.
// The status dashboard computes online/offline from the latest record's age.
func (s *SyncService) RecordHeartbeat(ctx context.Context) error {
	if err := s.heartbeats.Append(ctx, domain.HeartbeatAlive); err != nil {
		return fmt.Errorf("append heartbeat: %w", err)
	}

	s.appendLog(ctx, domain.EventSyncStatus, "Heartbeat received.", map[string]interface{}{
		"status": domain.HeartbeatAlive,
	})

	s.logger.Debug("heartbeat recorded")
	return nil
}

// RelayStatus records a bridge-reported status event and forwards FAILED
// ones to the notifier. Never returns an error to the producer: a broken
// alert path must not make the bridge retry a status report.
func (s *SyncService) RelayStatus(ctx context.Context, status, message string) {
	s.appendLog(ctx, domain.EventSyncStatus, message, map[string]interface{}{
		"status": status,
	})

	s.logger.Info("bridge status received", "status", status, "message", message)

	if status != domain.BridgeStatusFailed {
		return
	}

	if s.notifier == nil || s.alertTo == "" {
		s.logger.Error("bridge reported failure but no alert recipient configured", "message", message)
		return
	}

	sent := s.notifier.Send(ctx, s.alertTo,
		"CRITICAL: Inventory feed bridge failure",
		notifier.BridgeFailureHTML(message),
	)
	if !sent {
		s.logger.Error("bridge failure alert not sent", "message", message)
	}
}
