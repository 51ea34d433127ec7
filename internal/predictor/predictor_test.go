package predictor

import (
	"context"
	"math/rand"
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
	cfg.Predictor.Horizon = 30 * 24 * time.Hour
	cfg.Predictor.HistoryWindows = 3
	return cfg
}

func healthyAggregate(device string, i int) models.CleanTelemetryAggregate {
	start := base.Add(time.Duration(i) * 15 * time.Minute)
	return models.CleanTelemetryAggregate{
		DeviceID:       device,
		WindowStart:    start,
		WindowEnd:      start.Add(15 * time.Minute),
		AvgToner:       80,
		AvgPaper:       90,
		AvgTemperature: 40,
		AvgCPU:         10,
		AvgMemory:      30,
		SampleCount:    3,
		QualityScore:   95,
		DominantStatus: models.StatusIdle,
	}
}

func newTestPredictor(t *testing.T, aggs ...models.CleanTelemetryAggregate) *Predictor {
	store := repository.NewMemoryStore()
	require.NoError(t, store.SaveAggregates(context.Background(), aggs))
	p := NewPredictor(testConfig(), NewHeuristicModel(), store, zap.NewNop())
	p.now = func() time.Time { return base.Add(time.Hour) }
	return p
}

func TestPredict_LowTonerThreeWindows(t *testing.T) {
	var aggs []models.CleanTelemetryAggregate
	for i := 0; i < 3; i++ {
		a := healthyAggregate("printer-1", i)
		a.AvgToner = 8
		a.QualityScore = 92
		aggs = append(aggs, a)
	}
	p := newTestPredictor(t, aggs...)

	preds, err := p.Predict(context.Background(), "printer-1", 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, preds, 1)

	toner := preds[0]
	assert.Equal(t, models.FailureTonerDepletion, toner.FailureType)
	assert.GreaterOrEqual(t, toner.Probability, 0.6)
	assert.LessOrEqual(t, toner.DaysUntilEvent, 7)
	assert.InDelta(t, 0.92, toner.Confidence, 1e-9)
	assert.Equal(t, 30, toner.HorizonDays)
	assert.Equal(t, base.Add(time.Hour).AddDate(0, 0, toner.DaysUntilEvent), toner.EstimatedDate)
	require.NotNil(t, toner.InputSnapshot)
	assert.Equal(t, aggs[2].WindowStart, toner.InputSnapshot.WindowStart)
	assert.NotEmpty(t, toner.RecommendedAction)
}

func TestPredict_NoSignalOmitted(t *testing.T) {
	p := newTestPredictor(t, healthyAggregate("printer-1", 0), healthyAggregate("printer-1", 1))

	preds, err := p.Predict(context.Background(), "printer-1", 0)
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestPredict_NoAggregates(t *testing.T) {
	p := newTestPredictor(t)

	preds, err := p.Predict(context.Background(), "unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestPredict_NetworkAndHardwareSignals(t *testing.T) {
	a := healthyAggregate("printer-1", 0)
	a.DominantStatus = models.StatusOffline
	a.TotalErrors = 12
	a.AvgTemperature = 95
	p := newTestPredictor(t, a)

	preds, err := p.Predict(context.Background(), "printer-1", 0)
	require.NoError(t, err)

	types := map[models.FailureType]bool{}
	for _, pr := range preds {
		types[pr.FailureType] = true
	}
	assert.True(t, types[models.FailureNetwork])
	assert.True(t, types[models.FailureHardware])
	assert.False(t, types[models.FailureTonerDepletion])
}

func TestPredict_BoundsAndDeterministicSeverity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var aggs []models.CleanTelemetryAggregate
	for i := 0; i < 3; i++ {
		a := healthyAggregate("printer-r", i)
		a.AvgToner = rng.Float64() * 100
		a.AvgPaper = rng.Float64() * 100
		a.AvgTemperature = rng.Float64() * 120
		a.AvgCPU = rng.Float64() * 100
		a.AvgMemory = rng.Float64() * 100
		a.TotalErrors = rng.Intn(50)
		a.QualityScore = rng.Float64() * 100
		a.DominantStatus = models.StatusError
		aggs = append(aggs, a)
	}
	p := newTestPredictor(t, aggs...)

	preds, err := p.Predict(context.Background(), "printer-r", 0)
	require.NoError(t, err)
	require.NotEmpty(t, preds)
	for _, pr := range preds {
		assert.GreaterOrEqual(t, pr.Probability, 0.0)
		assert.LessOrEqual(t, pr.Probability, 1.0)
		assert.GreaterOrEqual(t, pr.Confidence, 0.0)
		assert.LessOrEqual(t, pr.Confidence, 1.0)
		assert.Equal(t, models.ComputeSeverity(pr.Probability, pr.DaysUntilEvent), pr.Severity())
	}
}

func TestTrain_DoesNotInstall(t *testing.T) {
	p := newTestPredictor(t)

	snapshot := healthyAggregate("printer-1", 0)
	snapshot.AvgToner = 8
	var records []models.TrainingDataRecord
	for i := 0; i < 20; i++ {
		records = append(records, models.TrainingDataRecord{
			RecordID:         int64(i + 1),
			FailureType:      models.FailureTonerDepletion,
			InputSnapshot:    snapshot,
			EventOccurred:    false,
			ReadyForTraining: true,
			Weight:           1,
		})
	}

	result, err := p.Train(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 20, result.TrainingDataSize)
	require.NotNil(t, result.Parameters)
	assert.Equal(t, int64(1), result.Parameters.Version)
	assert.Equal(t, int64(0), p.Parameters().Version)

	// 事件从未发生，拟合后偏置下降、质量提升
	assert.Equal(t, 0.0, result.Parameters.Weights[models.FailureTonerDepletion].Bias)
	assert.Greater(t, result.FitQuality, p.Evaluate(p.Parameters(), records))

	p.Install(result.Parameters)
	assert.Equal(t, int64(1), p.Parameters().Version)
}

func TestModelFit_RejectsUnknownFailureType(t *testing.T) {
	m := NewHeuristicModel()
	_, err := m.Fit(nil, []models.TrainingDataRecord{{FailureType: "fuser-jam"}})
	assert.ErrorIs(t, err, models.ErrInvalidFailureType)
}

func TestRecommendedAction(t *testing.T) {
	assert.Contains(t, RecommendedAction(models.FailureTonerDepletion, models.SeverityCritical), "Immediately")
	assert.Equal(t, "Replace the toner cartridge", RecommendedAction(models.FailureTonerDepletion, models.SeverityHigh))
	assert.Equal(t, "Inspect the device", RecommendedAction("unknown", models.SeverityLow))
}
