package feedback

import (
	"context"
	"errors"
	"strings"
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

type fakeTracker struct {
	outcomes  map[string]*models.Outcome
	deviceErr map[string]error
	err       error
	windows   map[string][2]time.Time
}

func (f *fakeTracker) ActualOutcome(_ context.Context, deviceID string, _ models.FailureType, since, until time.Time) (*models.Outcome, error) {
	if f.windows == nil {
		f.windows = map[string][2]time.Time{}
	}
	f.windows[deviceID] = [2]time.Time{since, until}
	if f.err != nil {
		return nil, f.err
	}
	if err := f.deviceErr[deviceID]; err != nil {
		return nil, err
	}
	return f.outcomes[deviceID], nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Feedback.HighQualityCommentLength = 40
	return cfg
}

func setup(t *testing.T, tracker OutcomeTracker) (*Ingestor, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	ing := NewIngestor(testConfig(), store, store, store, tracker, zap.NewNop())
	ing.now = func() time.Time { return base }
	return ing, store
}

func createPrediction(t *testing.T, store *repository.MemoryStore, device string, createdAt time.Time) *models.MaintenancePrediction {
	p := &models.MaintenancePrediction{
		DeviceID:       device,
		FailureType:    models.FailureTonerDepletion,
		Probability:    0.8,
		Confidence:     0.9,
		DaysUntilEvent: 6,
		HorizonDays:    30,
		CreatedAt:      createdAt,
		InputSnapshot:  &models.CleanTelemetryAggregate{DeviceID: device, AvgToner: 8},
	}
	require.NoError(t, store.CreatePrediction(context.Background(), p))
	return p
}

func TestSubmitFeedback_UnknownPrediction(t *testing.T) {
	ing, store := setup(t, &fakeTracker{})

	f, err := ing.SubmitFeedback(context.Background(), SubmitRequest{PredictionID: 999, IsCorrect: true, Author: "alice"})
	assert.Nil(t, f)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	ready, err := store.ListReadyRecords(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ready)
	pending, err := store.ListUnresolvedFeedback(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmitFeedback_DoesNotCreateTrainingData(t *testing.T) {
	ing, store := setup(t, &fakeTracker{})
	p := createPrediction(t, store, "printer-1", base.Add(-time.Hour))

	f, err := ing.SubmitFeedback(context.Background(), SubmitRequest{
		PredictionID: p.PredictionID,
		IsCorrect:    true,
		Comment:      "  toner was indeed low  ",
		Author:       "alice",
	})
	require.NoError(t, err)
	assert.NotZero(t, f.FeedbackID)
	assert.Equal(t, "toner was indeed low", f.Comment)
	assert.Equal(t, models.QualityMedium, ing.Quality(f))
	assert.Equal(t, base, f.CreatedAt)

	ready, err := store.ListReadyRecords(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestQuality_Tiers(t *testing.T) {
	ing, _ := setup(t, &fakeTracker{})
	long := strings.Repeat("x", 41)

	assert.Equal(t, models.QualityLow, ing.Quality(&models.PredictionFeedback{}))
	assert.Equal(t, models.QualityMedium, ing.Quality(&models.PredictionFeedback{Comment: "short"}))
	assert.Equal(t, models.QualityMedium, ing.Quality(&models.PredictionFeedback{Comment: long}))
	assert.Equal(t, models.QualityHigh, ing.Quality(&models.PredictionFeedback{Comment: long, ProposedCorrection: "hardware-failure"}))
}

func TestMaterializeTrainingRecord(t *testing.T) {
	ing, store := setup(t, &fakeTracker{})
	p := createPrediction(t, store, "printer-1", base.Add(-48*time.Hour))
	f, err := ing.SubmitFeedback(context.Background(), SubmitRequest{PredictionID: p.PredictionID, IsCorrect: false, Author: "bob"})
	require.NoError(t, err)

	days := 2
	rec, err := ing.MaterializeTrainingRecord(context.Background(), f, &days, true)
	require.NoError(t, err)
	assert.True(t, rec.ReadyForTraining)
	assert.Equal(t, 8.0, rec.InputSnapshot.AvgToner)
	assert.Equal(t, 0.8, rec.PredictedProbability)
	assert.Equal(t, 1.25, rec.Weight)
	assert.Equal(t, 2, *rec.ActualDaysUntilEvent)

	// 重复物化不产生第二条记录
	again, err := ing.MaterializeTrainingRecord(context.Background(), f, &days, true)
	require.NoError(t, err)
	assert.Equal(t, rec.RecordID, again.RecordID)

	ready, err := store.ListReadyRecords(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestResolvePending(t *testing.T) {
	days := 3
	tracker := &fakeTracker{outcomes: map[string]*models.Outcome{
		"printer-known": {DaysUntilEvent: &days, Occurred: true},
	}}
	ing, store := setup(t, tracker)

	known := createPrediction(t, store, "printer-known", base.Add(-5*24*time.Hour))
	waiting := createPrediction(t, store, "printer-waiting", base.Add(-5*24*time.Hour))
	expired := createPrediction(t, store, "printer-expired", base.Add(-31*24*time.Hour))

	for _, p := range []*models.MaintenancePrediction{known, waiting, expired} {
		_, err := ing.SubmitFeedback(context.Background(), SubmitRequest{PredictionID: p.PredictionID, IsCorrect: true, Author: "alice"})
		require.NoError(t, err)
	}

	resolved, err := ing.ResolvePending(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	ready, err := store.ListReadyRecords(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ready, 2)
	byDevice := map[string]models.TrainingDataRecord{}
	for _, r := range ready {
		byDevice[r.DeviceID] = r
	}
	assert.True(t, byDevice["printer-known"].EventOccurred)
	assert.False(t, byDevice["printer-expired"].EventOccurred)
	assert.Nil(t, byDevice["printer-expired"].ActualDaysUntilEvent)

	pending, err := store.ListUnresolvedFeedback(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, waiting.PredictionID, pending[0].PredictionID)
}

func TestResolvePending_TrackerErrorIsNotFatal(t *testing.T) {
	ing, store := setup(t, &fakeTracker{err: errors.New("tracker down")})
	p := createPrediction(t, store, "printer-1", base.Add(-time.Hour))
	_, err := ing.SubmitFeedback(context.Background(), SubmitRequest{PredictionID: p.PredictionID, Author: "alice"})
	require.NoError(t, err)

	resolved, err := ing.ResolvePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)
}

func TestResolvePending_BacklogDoesNotBlockNewerFeedback(t *testing.T) {
	days := 2
	tracker := &fakeTracker{
		outcomes:  map[string]*models.Outcome{"printer-known": {DaysUntilEvent: &days, Occurred: true}},
		deviceErr: map[string]error{"printer-flaky": errors.New("lookup failed")},
	}
	ing, store := setup(t, tracker)
	ctx := context.Background()

	// 较早的反馈结果未知或查询失败，排在结果已知的反馈之前
	waiting := createPrediction(t, store, "printer-waiting", base.Add(-2*24*time.Hour))
	flaky := createPrediction(t, store, "printer-flaky", base.Add(-2*24*time.Hour))
	known := createPrediction(t, store, "printer-known", base.Add(-24*time.Hour))
	for _, p := range []*models.MaintenancePrediction{waiting, flaky, known} {
		_, err := ing.SubmitFeedback(ctx, SubmitRequest{PredictionID: p.PredictionID, IsCorrect: true, Author: "alice"})
		require.NoError(t, err)
	}

	resolved, err := ing.ResolvePending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	ready, err := store.ListReadyRecords(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "printer-known", ready[0].DeviceID)

	pending, err := store.ListUnresolvedFeedback(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestResolvePending_LookupBoundedByHorizon(t *testing.T) {
	tracker := &fakeTracker{}
	ing, store := setup(t, tracker)
	ctx := context.Background()

	created := base.Add(-40 * 24 * time.Hour)
	p := createPrediction(t, store, "printer-late", created)
	_, err := ing.SubmitFeedback(ctx, SubmitRequest{PredictionID: p.PredictionID, Author: "alice"})
	require.NoError(t, err)

	resolved, err := ing.ResolvePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	window := tracker.windows["printer-late"]
	assert.Equal(t, created, window[0])
	assert.Equal(t, created.AddDate(0, 0, 30), window[1])

	ready, err := store.ListReadyRecords(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.False(t, ready[0].EventOccurred)
}
