package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// MemoryStore 内存版仓库（未配置数据库时使用，也用于单元测试）
// 实现 DevicesRepository / TelemetryRepository / PredictionsRepository /
// FeedbackRepository / TrainingRepository / RetrainingRepository
type MemoryStore struct {
	mu sync.RWMutex

	devices     map[string]models.Device
	samples     map[string]models.RawTelemetrySample // sample_id -> sample
	aggregates  map[string]models.CleanTelemetryAggregate
	rounds      []models.CollectionRound
	predictions []models.MaintenancePrediction
	feedback    []models.PredictionFeedback
	records     []models.TrainingDataRecord
	runs        []models.RetrainingRun
	params      *models.ModelParameters
}

// NewMemoryStore 创建内存仓库
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:    map[string]models.Device{},
		samples:    map[string]models.RawTelemetrySample{},
		aggregates: map[string]models.CleanTelemetryAggregate{},
	}
}

// PutDevice 注册设备
func (m *MemoryStore) PutDevice(d models.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.DeviceID] = d
}

// --- Devices ---

func (m *MemoryStore) ListMonitoredDevices(_ context.Context) ([]models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if d.MonitoringEnabled {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// --- Telemetry ---

func (m *MemoryStore) AppendSamples(_ context.Context, samples []models.RawTelemetrySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		if _, exists := m.samples[s.SampleID]; !exists {
			m.samples[s.SampleID] = s
		}
	}
	return nil
}

func (m *MemoryStore) ListSamples(_ context.Context, from, to time.Time) ([]models.RawTelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.RawTelemetrySample
	for _, s := range m.samples {
		if !s.Timestamp.Before(from) && s.Timestamp.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].SampleID < out[j].SampleID
	})
	return out, nil
}

func (m *MemoryStore) PurgeSamplesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.samples {
		if s.Timestamp.Before(cutoff) {
			delete(m.samples, id)
			n++
		}
	}
	return n, nil
}

func aggregateKey(deviceID string, windowStart time.Time) string {
	return deviceID + "|" + windowStart.UTC().Format(time.RFC3339Nano)
}

func (m *MemoryStore) SaveAggregates(_ context.Context, aggregates []models.CleanTelemetryAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range aggregates {
		key := aggregateKey(a.DeviceID, a.WindowStart)
		if _, exists := m.aggregates[key]; !exists {
			m.aggregates[key] = a
		}
	}
	return nil
}

func (m *MemoryStore) LatestAggregates(_ context.Context, deviceID string, limit int) ([]models.CleanTelemetryAggregate, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 1
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.CleanTelemetryAggregate
	for _, a := range m.aggregates {
		if a.DeviceID == deviceID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) RecordCollectionRound(_ context.Context, round models.CollectionRound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rounds {
		if r.RoundID == round.RoundID {
			return nil
		}
	}
	m.rounds = append(m.rounds, round)
	return nil
}

func (m *MemoryStore) CollectionStats(_ context.Context, from, to time.Time) (CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats CollectionStats
	var latencySum int64
	for _, r := range m.rounds {
		if r.CollectedAt.Before(from) || !r.CollectedAt.Before(to) {
			continue
		}
		stats.Total += r.Attempts
		stats.Succeeded += r.Succeeded
		latencySum += r.LatencySumMillis
	}
	if stats.Total > 0 {
		stats.AvgLatencyMillis = float64(latencySum) / float64(stats.Total)
	}
	return stats, nil
}

// --- Predictions ---

func (m *MemoryStore) CreatePrediction(_ context.Context, p *models.MaintenancePrediction) error {
	if p == nil {
		return fmt.Errorf("prediction is required")
	}
	if _, err := models.ParseFailureType(string(p.FailureType)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p.PredictionID = int64(len(m.predictions) + 1)
	m.predictions = append(m.predictions, *p)
	return nil
}

func (m *MemoryStore) GetPrediction(_ context.Context, predictionID int64) (*models.MaintenancePrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if predictionID < 1 || predictionID > int64(len(m.predictions)) {
		return nil, fmt.Errorf("prediction %d: %w", predictionID, models.ErrNotFound)
	}
	p := m.predictions[predictionID-1]
	return &p, nil
}

func (m *MemoryStore) ListLatestPredictions(_ context.Context, deviceID string) ([]models.MaintenancePrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := map[string]models.MaintenancePrediction{}
	for _, p := range m.predictions {
		if deviceID != "" && p.DeviceID != deviceID {
			continue
		}
		key := p.DeviceID + "|" + string(p.FailureType)
		// 追加顺序即创建顺序，后写入的取代先写入的
		latest[key] = p
	}

	out := make([]models.MaintenancePrediction, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].FailureType < out[j].FailureType
	})
	return out, nil
}

// --- Feedback ---

func (m *MemoryStore) CreateFeedback(_ context.Context, f *models.PredictionFeedback) error {
	if f == nil {
		return fmt.Errorf("feedback is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f.PredictionID < 1 || f.PredictionID > int64(len(m.predictions)) {
		return fmt.Errorf("prediction %d: %w", f.PredictionID, models.ErrNotFound)
	}
	f.FeedbackID = int64(len(m.feedback) + 1)
	m.feedback = append(m.feedback, *f)
	return nil
}

func (m *MemoryStore) GetFeedback(_ context.Context, feedbackID int64) (*models.PredictionFeedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if feedbackID < 1 || feedbackID > int64(len(m.feedback)) {
		return nil, fmt.Errorf("feedback %d: %w", feedbackID, models.ErrNotFound)
	}
	f := m.feedback[feedbackID-1]
	return &f, nil
}

func (m *MemoryStore) ListFeedbackSince(_ context.Context, since time.Time) ([]models.PredictionFeedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.PredictionFeedback
	for _, f := range m.feedback {
		if !f.CreatedAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListUnresolvedFeedback(_ context.Context, afterID int64, limit int) ([]models.PredictionFeedback, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved := m.recordsByFeedbackLocked()
	var out []models.PredictionFeedback
	for _, f := range m.feedback {
		if f.FeedbackID <= afterID {
			continue
		}
		if _, ok := resolved[f.FeedbackID]; ok {
			continue
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) ListFeedbackOutcomes(_ context.Context, from, to *time.Time) ([]FeedbackOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved := m.recordsByFeedbackLocked()
	var out []FeedbackOutcome
	for _, f := range m.feedback {
		if from != nil && f.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && f.CreatedAt.After(*to) {
			continue
		}
		o := FeedbackOutcome{
			Feedback:   f,
			Prediction: m.predictions[f.PredictionID-1],
		}
		if rec, ok := resolved[f.FeedbackID]; ok {
			r := rec
			o.Record = &r
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MemoryStore) recordsByFeedbackLocked() map[int64]models.TrainingDataRecord {
	byFeedback := make(map[int64]models.TrainingDataRecord, len(m.records))
	for _, r := range m.records {
		byFeedback[r.FeedbackID] = r
	}
	return byFeedback
}

// --- Training data ---

func (m *MemoryStore) CreateTrainingRecord(_ context.Context, rec *models.TrainingDataRecord) error {
	if rec == nil {
		return fmt.Errorf("training record is required")
	}
	if !rec.ReadyForTraining {
		return fmt.Errorf("training record for feedback %d has no known outcome", rec.FeedbackID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.FeedbackID == rec.FeedbackID {
			rec.RecordID = existing.RecordID
			return nil
		}
	}
	rec.RecordID = int64(len(m.records) + 1)
	rec.Used = false
	m.records = append(m.records, *rec)
	return nil
}

func (m *MemoryStore) ListReadyRecords(_ context.Context, asOf time.Time) ([]models.TrainingDataRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.TrainingDataRecord
	for _, r := range m.records {
		if r.ReadyForTraining && !r.Used && !r.CreatedAt.After(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkUsed(_ context.Context, recordIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make(map[int64]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		ids[id] = struct{}{}
	}
	for i := range m.records {
		if _, ok := ids[m.records[i].RecordID]; ok {
			m.records[i].Used = true
		}
	}
	return nil
}

// --- Retraining ---

func (m *MemoryStore) AppendRun(_ context.Context, run *models.RetrainingRun) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.RunID == run.RunID {
			return fmt.Errorf("retraining run %s already recorded", run.RunID)
		}
	}
	c := *run
	c.Issues = append([]string(nil), run.Issues...)
	m.runs = append(m.runs, c)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (*models.RetrainingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.RunID == runID {
			c := r
			return &c, nil
		}
	}
	return nil, fmt.Errorf("retraining run %s: %w", runID, models.ErrNotFound)
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]models.RetrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RetrainingRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *MemoryStore) LoadParameters(_ context.Context) (*models.ModelParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params.Clone(), nil
}

func (m *MemoryStore) ReplaceParameters(_ context.Context, params *models.ModelParameters) error {
	if params == nil {
		return fmt.Errorf("parameters are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params.Clone()
	return nil
}
