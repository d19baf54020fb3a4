package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"inventory_sync/internal/config"
	"inventory_sync/internal/domain"
	"inventory_sync/internal/service/mocks"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	vehicles   *mocks.MockVehicleStore
	syncLogs   *mocks.MockSyncLogStore
	heartbeats *mocks.MockHeartbeatStore
	txManager  *mocks.MockTransactionManager
	notifier   *mocks.MockNotifier
	publisher  *mocks.MockPublisher

	service *SyncService
	cfg     config.SyncConfig
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.vehicles = mocks.NewMockVehicleStore(s.ctrl)
	s.syncLogs = mocks.NewMockSyncLogStore(s.ctrl)
	s.heartbeats = mocks.NewMockHeartbeatStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.SyncConfig{MinBatchSize: 5}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewSyncService(
		s.vehicles,
		s.syncLogs,
		s.heartbeats,
		s.txManager,
		s.notifier,
		nil, // publisher wired per test
		s.logger,
		s.cfg,
		"alerts@example.com",
	)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) expectTransaction(ctx context.Context) {
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func batch(vins ...string) []domain.IncomingVehicle {
	out := make([]domain.IncomingVehicle, 0, len(vins))
	for i, vin := range vins {
		out = append(out, domain.IncomingVehicle{
			VIN:     vin,
			Year:    2020 + i,
			Make:    "Toyota",
			Model:   "Camry",
			Price:   15000,
			Mileage: 42000,
		})
	}
	return out
}

func (s *SyncServiceTestSuite) TestSync_MarksMissingVehiclesSold() {
	ctx := context.Background()

	// Store: A and B Available, C already Sold. Batch: A reused, D-G new.
	incoming := batch("A", "D", "E", "F", "G")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)

	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return([]string{"A", "B"}, nil)
	s.vehicles.EXPECT().MarkSold(ctx, []string{"B"}, gomock.Any()).Return(1, nil)

	var logged map[string]interface{}
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, details []byte) error {
			return json.Unmarshal(details, &logged)
		},
	)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(5, stats.Processed)
	s.Equal(5, stats.Upserted)
	s.Equal(1, stats.Sold)
	s.Equal(0, stats.Skipped)
	s.Empty(stats.SoldError)

	s.EqualValues(5, logged["processed"])
	s.EqualValues(1, logged["sold"])
}

func (s *SyncServiceTestSuite) TestSync_SmallBatchSkipsSoldDetection() {
	ctx := context.Background()

	incoming := batch("A", "D")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(2)).Return(nil)
	// No ListAvailableVINs, no MarkSold: the guard must short-circuit.

	var logged map[string]interface{}
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, details []byte) error {
			return json.Unmarshal(details, &logged)
		},
	)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(2, stats.Processed)
	s.Equal(0, stats.Sold)
	s.Contains(logged["sold_detection"], "skipped")
}

func (s *SyncServiceTestSuite) TestSync_DuplicateVINsKeepLastOccurrence() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")
	incoming = append(incoming, domain.IncomingVehicle{VIN: "A", Make: "Honda", Model: "Civic", Price: 9000})

	var upserted []domain.Vehicle
	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, rows []domain.Vehicle) error {
			upserted = rows
			return nil
		},
	)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return(nil, nil)
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(6, stats.Processed)
	s.Len(upserted, 5)

	var a *domain.Vehicle
	for i := range upserted {
		if upserted[i].VIN == "A" {
			a = &upserted[i]
		}
	}
	s.Require().NotNil(a)
	s.Equal("Honda", a.Make)
	s.Equal("Civic", a.Model)
}

func (s *SyncServiceTestSuite) TestSync_NormalizationDefaults() {
	ctx := context.Background()

	incoming := []domain.IncomingVehicle{{VIN: "A", Make: "Ford", Model: "F-150", Price: 25000}}

	var upserted []domain.Vehicle
	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, rows []domain.Vehicle) error {
			upserted = rows
			return nil
		},
	)
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Sync(ctx, incoming, nil)
	s.NoError(err)

	s.Require().Len(upserted, 1)
	v := upserted[0]
	s.Equal(domain.DefaultBodyType, v.BodyType)
	s.Equal(domain.DefaultFuelType, v.FuelType)
	s.Equal(domain.DefaultTransmission, v.Transmission)
	s.Equal(domain.DefaultColor, v.ExteriorColor)
	s.Equal(domain.DefaultColor, v.InteriorColor)
	s.NotNil(v.Images)
	s.NotNil(v.Features)
	s.Empty(v.Images)
	s.Empty(v.Features)
}

func (s *SyncServiceTestSuite) TestSync_UpsertFailureAbortsRun() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")
	boom := errors.New("connection refused")

	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).Return(boom)

	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncError, gomock.Any(), gomock.Any()).Return(nil)
	s.notifier.EXPECT().Send(ctx, "alerts@example.com", gomock.Any(), gomock.Any()).Return(true)
	// No sold detection may run against a failed upsert.

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.Error(err)
	s.Nil(stats)
	s.ErrorContains(err, "upsert vehicles")
}

func (s *SyncServiceTestSuite) TestSync_SoldDetectionFailureIsRecovered() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return(nil, errors.New("timeout"))

	var logged map[string]interface{}
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, details []byte) error {
			return json.Unmarshal(details, &logged)
		},
	)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(0, stats.Sold)
	s.Contains(stats.SoldError, "timeout")
	s.Contains(logged["sold_error"], "timeout")
}

func (s *SyncServiceTestSuite) TestSync_MarkSoldFailureIsRecovered() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return([]string{"Z"}, nil)
	s.vehicles.EXPECT().MarkSold(ctx, []string{"Z"}, gomock.Any()).Return(0, errors.New("deadlock detected"))
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(0, stats.Sold)
	s.Contains(stats.SoldError, "deadlock")
}

func (s *SyncServiceTestSuite) TestSync_LedgerFailureDoesNotSurface() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return(nil, nil)
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(5, stats.Processed)
}

func (s *SyncServiceTestSuite) TestSync_MetaPassedThroughToLedger() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")
	meta := &domain.SyncMeta{
		TotalRows:      7,
		SkippedCount:   2,
		SkippedDetails: []interface{}{map[string]interface{}{"row": 3.0, "reason": "Missing VIN"}},
		Filename:       "inventory_20260828.csv",
	}

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return(nil, nil)

	var logged map[string]interface{}
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, details []byte) error {
			return json.Unmarshal(details, &logged)
		},
	)

	stats, err := s.service.Sync(ctx, incoming, meta)

	s.NoError(err)
	s.Equal(2, stats.Skipped)
	s.EqualValues(2, logged["skipped_count"])
	s.EqualValues(7, logged["total_rows"])
	s.Equal("inventory_20260828.csv", logged["filename"])
}

func (s *SyncServiceTestSuite) TestSync_PublishesInventoryEvents() {
	ctx := context.Background()

	s.service = NewSyncService(
		s.vehicles, s.syncLogs, s.heartbeats, s.txManager,
		s.notifier, s.publisher, s.logger, s.cfg, "alerts@example.com",
	)

	incoming := batch("A", "B", "C", "D", "E")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return([]string{"A", "X"}, nil)
	s.vehicles.EXPECT().MarkSold(ctx, []string{"X"}, gomock.Any()).Return(1, nil)

	s.publisher.EXPECT().PublishSold(ctx, "X", gomock.Any()).Return(nil)
	s.publisher.EXPECT().PublishSynced(ctx, gomock.Any()).Return(nil)

	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Equal(1, stats.Sold)
	s.Empty(stats.PublishErrors)
}

func (s *SyncServiceTestSuite) TestSync_PublishFailureIsAggregatedNotFatal() {
	ctx := context.Background()

	s.service = NewSyncService(
		s.vehicles, s.syncLogs, s.heartbeats, s.txManager,
		s.notifier, s.publisher, s.logger, s.cfg, "alerts@example.com",
	)

	incoming := batch("A", "B", "C", "D", "E")

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return([]string{"X"}, nil)
	s.vehicles.EXPECT().MarkSold(ctx, []string{"X"}, gomock.Any()).Return(1, nil)

	s.publisher.EXPECT().PublishSold(ctx, "X", gomock.Any()).Return(errors.New("channel closed"))
	s.publisher.EXPECT().PublishSynced(ctx, gomock.Any()).Return(errors.New("channel closed"))

	var logged map[string]interface{}
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, details []byte) error {
			return json.Unmarshal(details, &logged)
		},
	)

	stats, err := s.service.Sync(ctx, incoming, nil)

	s.NoError(err)
	s.Len(stats.PublishErrors, 2)
	s.NotNil(logged["publish_errors"])
}

func (s *SyncServiceTestSuite) TestSync_SoldDateSetToCallTime() {
	ctx := context.Background()

	incoming := batch("A", "B", "C", "D", "E")

	before := time.Now().UTC()
	var soldAt time.Time

	s.expectTransaction(ctx)
	s.vehicles.EXPECT().UpsertBatch(ctx, gomock.Len(5)).Return(nil)
	s.vehicles.EXPECT().ListAvailableVINs(ctx).Return([]string{"X"}, nil)
	s.vehicles.EXPECT().MarkSold(ctx, []string{"X"}, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ []string, at time.Time) (int, error) {
			soldAt = at
			return 1, nil
		},
	)
	s.syncLogs.EXPECT().Append(ctx, domain.EventSyncSuccess, gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Sync(ctx, incoming, nil)
	s.NoError(err)

	after := time.Now().UTC()
	s.False(soldAt.Before(before))
	s.False(soldAt.After(after))
}
