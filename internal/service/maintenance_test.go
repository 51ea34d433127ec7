package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/cache"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/collector"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Collector.Workers = 4
	cfg.Collector.Timeout = time.Second
	cfg.Collector.Retention = time.Hour
	cfg.Cleaner.Window = 15 * time.Minute
	cfg.Cleaner.ExpectedSamples = 3
	cfg.Cleaner.MinTemperature = -20
	cfg.Cleaner.MaxTemperature = 120
	cfg.Predictor.Horizon = 30 * 24 * time.Hour
	cfg.Predictor.HistoryWindows = 3
	cfg.Predictor.NotifySeverity = "High"
	cfg.Predictor.CacheTTL = time.Minute
	cfg.Feedback.HighQualityCommentLength = 40
	cfg.Feedback.RecentWindow = 24 * time.Hour
	cfg.Retrainer.MinTrainingRecords = 50
	return cfg
}

func lowTonerSource() collector.TelemetrySource {
	return collector.TelemetrySourceFunc(func(_ context.Context, d models.Device) (*models.RawTelemetrySample, error) {
		return &models.RawTelemetrySample{
			Status:      models.StatusPrinting,
			TonerLevel:  8,
			PaperLevel:  90,
			Temperature: 40,
			CPUUsage:    10,
			MemoryUsage: 30,
		}, nil
	})
}

func newTestService(t *testing.T, kv cache.KVStore) (*MaintenanceService, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	store.PutDevice(models.Device{DeviceID: "printer-1", MonitoringEnabled: true})

	deps := Dependencies{
		Devices:     store,
		Telemetry:   store,
		Predictions: store,
		Feedback:    store,
		Training:    store,
		Retraining:  store,
		Source:      lowTonerSource(),
	}
	if kv != nil {
		deps.Cache = cache.NewPredictionCache(kv, time.Minute, zap.NewNop())
	}
	svc, err := NewMaintenanceService(testConfig(), deps, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.LoadModel(context.Background()))
	t.Cleanup(svc.Stop)
	return svc, store
}

func seedLowToner(t *testing.T, store *repository.MemoryStore) {
	start := time.Now().UTC().Truncate(15 * time.Minute).Add(-time.Hour)
	var aggs []models.CleanTelemetryAggregate
	for i := 0; i < 3; i++ {
		ws := start.Add(time.Duration(i) * 15 * time.Minute)
		aggs = append(aggs, models.CleanTelemetryAggregate{
			DeviceID:       "printer-1",
			WindowStart:    ws,
			WindowEnd:      ws.Add(15 * time.Minute),
			AvgToner:       8,
			AvgPaper:       90,
			AvgTemperature: 40,
			SampleCount:    3,
			QualityScore:   92,
			DominantStatus: models.StatusPrinting,
		})
	}
	require.NoError(t, store.SaveAggregates(context.Background(), aggs))
}

func TestNewMaintenanceService_RequiresRepositories(t *testing.T) {
	_, err := NewMaintenanceService(testConfig(), Dependencies{}, zap.NewNop())
	assert.Error(t, err)
}

func TestProcessFeedback_UnknownPrediction(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	ok, err := svc.ProcessFeedback(ctx, 999, true, "looks right", "tech-1")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := store.ListFeedbackSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPredictMaintenance_ThenRecent(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	seedLowToner(t, store)

	preds, err := svc.PredictMaintenance(ctx, "printer-1", 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.NotZero(t, preds[0].PredictionID)
	assert.Equal(t, models.FailureTonerDepletion, preds[0].FailureType)

	recent, err := svc.GetRecentPredictions(ctx, "printer-1")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, preds[0].PredictionID, recent[0].PredictionID)

	ok, err := svc.ProcessFeedback(ctx, preds[0].PredictionID, true, "toner was low", "tech-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetRecentPredictions_UsesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, store := newTestService(t, cache.NewRedisKVStore(client))
	ctx := context.Background()
	seedLowToner(t, store)

	preds, err := svc.PredictMaintenance(ctx, "printer-1", 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.True(t, mr.Exists("maintenance:device:printer-1:predictions"))

	recent, err := svc.GetRecentPredictions(ctx, "printer-1")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, preds[0].PredictionID, recent[0].PredictionID)
}

func TestRetrainModel_InsufficientData(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.CreateTrainingRecord(ctx, &models.TrainingDataRecord{
			FeedbackID:       int64(i + 1),
			DeviceID:         "printer-1",
			FailureType:      models.FailureTonerDepletion,
			ReadyForTraining: true,
			EventOccurred:    true,
			Weight:           1,
			CreatedAt:        time.Now().UTC().Add(-time.Hour),
		}))
	}

	run, err := svc.RetrainModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, run.TrainingDataSize)
	assert.False(t, run.ModelUpdated)
	require.Len(t, run.Issues, 1)
	assert.True(t, strings.HasPrefix(run.Issues[0], models.IssueInsufficientData))

	runs, err := svc.ListRetrainingRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got, err := svc.GetRetrainingRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
}

func TestGetRetrainingRun_NotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.GetRetrainingRun(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetAdvancedStatistics_CountsResolvedOnly(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		require.NoError(t, store.CreatePrediction(ctx, &models.MaintenancePrediction{
			DeviceID:       "printer-1",
			FailureType:    models.FailureTonerDepletion,
			Probability:    0.8,
			DaysUntilEvent: 6,
			HorizonDays:    30,
			CreatedAt:      now,
		}))
		ok, err := svc.ProcessFeedback(ctx, int64(i+1), true, "", "tech-1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	days := 5
	_, err := svc.MaterializeTrainingRecord(ctx, 1, &days, true)
	require.NoError(t, err)

	stats, err := svc.GetAdvancedStatistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFeedback)
	assert.Equal(t, 1, stats.ResolvedFeedback)
}

func TestCleanClosedWindows_StoresAggregatesOnce(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.collector.CollectAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ActiveDevices)

	later := time.Now().UTC().Add(30 * time.Minute)
	require.NoError(t, svc.CleanClosedWindows(ctx, later))
	require.NoError(t, svc.CleanClosedWindows(ctx, later))

	aggs, err := store.LatestAggregates(ctx, "printer-1", 10)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 1, aggs[0].SampleCount)
	assert.InDelta(t, 8, aggs[0].AvgToner, 1e-9)
}

func TestStart_StopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
