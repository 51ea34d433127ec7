package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Feedback.HighQualityCommentLength = 40
	cfg.Feedback.RecentWindow = 24 * time.Hour
	return cfg
}

type fixture struct {
	store *repository.MemoryStore
	agg   *Aggregator
}

func newFixture() *fixture {
	store := repository.NewMemoryStore()
	a := NewAggregator(testConfig(), store, store, zap.NewNop())
	a.now = func() time.Time { return base }
	return &fixture{store: store, agg: a}
}

func (f *fixture) feedback(t *testing.T, device string, ft models.FailureType, prob float64, correct bool, createdAt time.Time) *models.PredictionFeedback {
	ctx := context.Background()
	p := &models.MaintenancePrediction{DeviceID: device, FailureType: ft, Probability: prob, CreatedAt: createdAt}
	require.NoError(t, f.store.CreatePrediction(ctx, p))
	fb := &models.PredictionFeedback{PredictionID: p.PredictionID, IsCorrect: correct, Author: "alice", CreatedAt: createdAt}
	require.NoError(t, f.store.CreateFeedback(ctx, fb))
	return fb
}

func (f *fixture) resolve(t *testing.T, fb *models.PredictionFeedback, occurred bool, days *int) {
	require.NoError(t, f.store.CreateTrainingRecord(context.Background(), &models.TrainingDataRecord{
		FeedbackID:           fb.FeedbackID,
		PredictionID:         fb.PredictionID,
		EventOccurred:        occurred,
		ActualDaysUntilEvent: days,
		ReadyForTraining:     true,
		CreatedAt:            fb.CreatedAt,
	}))
}

func TestAdvancedStatistics_OnlyResolvedCountTowardsAccuracy(t *testing.T) {
	f := newFixture()
	days := 4
	resolved := f.feedback(t, "printer-1", models.FailureTonerDepletion, 0.8, true, base.Add(-time.Hour))
	f.feedback(t, "printer-2", models.FailurePaperDepletion, 0.7, false, base.Add(-2*time.Hour))
	f.resolve(t, resolved, true, &days)

	stats, err := f.agg.AdvancedStatistics(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFeedback)
	assert.Equal(t, 1, stats.ResolvedFeedback)
	assert.Equal(t, 1.0, stats.OverallAccuracy)
	assert.Equal(t, 1.0, stats.AccuracyByType[models.FailureTonerDepletion])
	_, pending := stats.AccuracyByType[models.FailurePaperDepletion]
	assert.False(t, pending)
	assert.Equal(t, 4.0, stats.AverageAnticipationDays)
	assert.Equal(t, 2, stats.RecentFeedback)
	assert.Equal(t, 2, stats.FeedbackByQuality["Low"])
}

func TestAdvancedStatistics_ErrorRates(t *testing.T) {
	f := newFixture()
	at := base.Add(-time.Hour)

	// TP, FP, FN, TN
	f.resolve(t, f.feedback(t, "a", models.FailureTonerDepletion, 0.9, true, at), true, nil)
	f.resolve(t, f.feedback(t, "b", models.FailureTonerDepletion, 0.7, false, at), false, nil)
	f.resolve(t, f.feedback(t, "c", models.FailureNetwork, 0.2, false, at), true, nil)
	f.resolve(t, f.feedback(t, "d", models.FailureNetwork, 0.1, true, at), false, nil)
	f.resolve(t, f.feedback(t, "e", models.FailureNetwork, 0.3, true, at), false, nil)

	stats, err := f.agg.AdvancedStatistics(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ResolvedFeedback)
	assert.InDelta(t, 0.6, stats.OverallAccuracy, 1e-9)
	assert.InDelta(t, 1.0/3.0, stats.FalsePositiveRate, 1e-9)
	assert.InDelta(t, 0.5, stats.FalseNegativeRate, 1e-9)
	assert.InDelta(t, 0.5, stats.AccuracyByType[models.FailureTonerDepletion], 1e-9)
	assert.InDelta(t, 2.0/3.0, stats.AccuracyByType[models.FailureNetwork], 1e-9)
	assert.Equal(t, 0.0, stats.AccuracyByDevice["c"])
}

func TestAdvancedStatistics_TimeWindow(t *testing.T) {
	f := newFixture()
	f.feedback(t, "a", models.FailureTonerDepletion, 0.9, true, base.Add(-72*time.Hour))
	f.feedback(t, "b", models.FailureTonerDepletion, 0.9, true, base.Add(-time.Hour))

	from := base.Add(-24 * time.Hour)
	stats, err := f.agg.AdvancedStatistics(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFeedback)
	assert.Equal(t, 0.0, stats.OverallAccuracy)
}

func TestAdvancedStatistics_InvalidRange(t *testing.T) {
	f := newFixture()
	from, to := base, base.Add(-time.Hour)
	_, err := f.agg.AdvancedStatistics(context.Background(), &from, &to)
	assert.Error(t, err)
}

func TestAdvancedStatistics_CollectionHealth(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.RecordCollectionRound(ctx, models.CollectionRound{
		RoundID: "r1", CollectedAt: base.Add(-time.Hour), Attempts: 3, Succeeded: 2, LatencySumMillis: 600,
	}))
	require.NoError(t, f.store.RecordCollectionRound(ctx, models.CollectionRound{
		RoundID: "r2", CollectedAt: base.Add(-48 * time.Hour), Attempts: 4, Succeeded: 0, LatencySumMillis: 4000,
	}))

	stats, err := f.agg.AdvancedStatistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CollectionAttempts)
	require.NotNil(t, stats.CollectionSuccessRate)
	assert.InDelta(t, 2.0/3.0, *stats.CollectionSuccessRate, 1e-9)
	require.NotNil(t, stats.AverageCollectionMillis)
	assert.InDelta(t, 200.0, *stats.AverageCollectionMillis, 1e-9)
}

func TestAdvancedStatistics_NoCollectionDataIsNotZeroRate(t *testing.T) {
	f := newFixture()

	stats, err := f.agg.AdvancedStatistics(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CollectionAttempts)
	assert.Nil(t, stats.CollectionSuccessRate)
	assert.Nil(t, stats.AverageCollectionMillis)
}
