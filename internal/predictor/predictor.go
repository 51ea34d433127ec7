package predictor

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/metrics"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"go.uber.org/zap"
)

// Predictor 维护预测器
// 读取参数无锁；参数只整体替换
type Predictor struct {
	config    *config.Config
	logger    *zap.Logger
	model     Model
	telemetry repository.TelemetryRepository
	params    atomic.Pointer[models.ModelParameters]
	now       func() time.Time
}

// NewPredictor 创建预测器（使用模型默认参数）
func NewPredictor(cfg *config.Config, model Model, telemetry repository.TelemetryRepository, logger *zap.Logger) *Predictor {
	p := &Predictor{
		config:    cfg,
		logger:    logger,
		model:     model,
		telemetry: telemetry,
		now:       func() time.Time { return time.Now().UTC() },
	}
	p.params.Store(model.DefaultParameters())
	return p
}

// LoadParameters 从存储恢复生效参数；没有持久化参数时保留默认值
func (p *Predictor) LoadParameters(ctx context.Context, repo repository.RetrainingRepository) error {
	params, err := repo.LoadParameters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model parameters: %w", err)
	}
	if params == nil {
		p.logger.Info("No stored model parameters, using defaults", zap.String("model", p.model.Name()))
		return nil
	}
	p.Install(params)
	return nil
}

// Parameters 当前生效参数（只读）
func (p *Predictor) Parameters() *models.ModelParameters {
	return p.params.Load()
}

// Install 原子替换生效参数
func (p *Predictor) Install(params *models.ModelParameters) {
	if params == nil {
		return
	}
	p.params.Store(params.Clone())
	metrics.ModelVersion.Set(float64(params.Version))
	p.logger.Info("Installed model parameters",
		zap.Int64("version", params.Version),
		zap.Float64("quality", params.Quality),
	)
}

// Model 当前模型
func (p *Predictor) Model() Model {
	return p.model
}

// Predict 为设备生成各故障类型的预测；没有信号的类型不输出
func (p *Predictor) Predict(ctx context.Context, deviceID string, horizon time.Duration) ([]models.MaintenancePrediction, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if horizon <= 0 {
		horizon = p.config.Predictor.Horizon
	}
	windows := p.config.Predictor.HistoryWindows
	if windows <= 0 {
		windows = 1
	}

	history, err := p.telemetry.LatestAggregates(ctx, deviceID, windows)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates for %s: %w", deviceID, err)
	}
	if len(history) == 0 {
		p.logger.Debug("No clean aggregates for device", zap.String("device_id", deviceID))
		return nil, nil
	}

	params := p.params.Load()
	now := p.now()
	horizonDays := int(math.Round(horizon.Hours() / 24))
	latest := history[len(history)-1]

	var predictions []models.MaintenancePrediction
	for _, ft := range models.AllFailureTypes {
		score, ok := p.model.Score(params, ft, history, windows)
		if !ok {
			continue
		}

		prob := models.Clamp01(score.Probability)
		days := models.DaysUntilEvent(prob, horizon)
		snapshot := latest
		pred := models.MaintenancePrediction{
			DeviceID:       deviceID,
			FailureType:    ft,
			Probability:    prob,
			Confidence:     models.Clamp01(score.Confidence),
			EstimatedDate:  now.AddDate(0, 0, days),
			DaysUntilEvent: days,
			ModelVersion:   params.Version,
			HorizonDays:    horizonDays,
			CreatedAt:      now,
			InputSnapshot:  &snapshot,
		}
		pred.RecommendedAction = RecommendedAction(ft, pred.Severity())
		predictions = append(predictions, pred)

		metrics.PredictionsEmitted.WithLabelValues(string(ft), pred.Severity().String()).Inc()
	}

	p.logger.Debug("Generated predictions",
		zap.String("device_id", deviceID),
		zap.Int("prediction_count", len(predictions)),
		zap.Int64("model_version", params.Version),
	)
	return predictions, nil
}

// Train 在训练集上拟合新参数，不安装
func (p *Predictor) Train(ctx context.Context, records []models.TrainingDataRecord) (models.TrainingResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return models.TrainingResult{}, err
	}

	next, err := p.model.Fit(p.params.Load(), records)
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("failed to fit %s: %w", p.model.Name(), err)
	}

	return models.TrainingResult{
		TrainingDataSize: len(records),
		Duration:         time.Since(start),
		FitQuality:       next.Quality,
		Parameters:       next,
	}, nil
}

// Evaluate 参数在训练集上的质量
func (p *Predictor) Evaluate(params *models.ModelParameters, records []models.TrainingDataRecord) float64 {
	return p.model.Evaluate(params, records)
}
