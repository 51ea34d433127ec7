package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/cache"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/cleaner"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/collector"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/feedback"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/notify"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/predictor"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/retrainer"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/statistics"
	"go.uber.org/zap"
)

// Dependencies 服务依赖（存储与外部协作方）
type Dependencies struct {
	Devices     repository.DevicesRepository
	Telemetry   repository.TelemetryRepository
	Predictions repository.PredictionsRepository
	Feedback    repository.FeedbackRepository
	Training    repository.TrainingRepository
	Retraining  repository.RetrainingRepository

	Source  collector.TelemetrySource
	Tracker feedback.OutcomeTracker
	Model   predictor.Model // 为空时使用启发式模型

	Cache *cache.PredictionCache // 可选
	Lock  retrainer.Lock         // 可选
	Sinks []notify.Sink
}

// MaintenanceService 维护预测流水线
type MaintenanceService struct {
	config *config.Config
	logger *zap.Logger
	deps   Dependencies

	collector  *collector.Collector
	cleaner    *cleaner.Cleaner
	predictor  *predictor.Predictor
	ingestor   *feedback.Ingestor
	retrainer  *retrainer.Retrainer
	stats      *statistics.Aggregator
	dispatcher *notify.Dispatcher

	mu          sync.Mutex
	lastCleaned time.Time
	closers     []func()
}

// NewMaintenanceService 组装流水线组件
func NewMaintenanceService(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*MaintenanceService, error) {
	if deps.Devices == nil || deps.Telemetry == nil || deps.Predictions == nil ||
		deps.Feedback == nil || deps.Training == nil || deps.Retraining == nil {
		return nil, fmt.Errorf("all repositories are required")
	}
	if deps.Model == nil {
		deps.Model = predictor.NewHeuristicModel()
	}
	if deps.Tracker == nil {
		deps.Tracker = feedback.NoEventTracker{}
	}

	minSeverity, err := models.ParseSeverity(cfg.Predictor.NotifySeverity)
	if err != nil {
		return nil, err
	}

	p := predictor.NewPredictor(cfg, deps.Model, deps.Telemetry, logger)

	return &MaintenanceService{
		config:     cfg,
		logger:     logger,
		deps:       deps,
		collector:  collector.NewCollector(cfg, deps.Source, deps.Devices, deps.Telemetry, logger),
		cleaner:    cleaner.NewCleaner(cfg, logger),
		predictor:  p,
		ingestor:   feedback.NewIngestor(cfg, deps.Predictions, deps.Feedback, deps.Training, deps.Tracker, logger),
		retrainer:  retrainer.NewRetrainer(cfg, p, deps.Training, deps.Feedback, deps.Retraining, deps.Lock, logger),
		stats:      statistics.NewAggregator(cfg, deps.Feedback, deps.Telemetry, logger),
		dispatcher: notify.NewDispatcher(deps.Sinks, minSeverity, 10*time.Second, logger),
	}, nil
}

// LoadModel 恢复持久化的模型参数
func (s *MaintenanceService) LoadModel(ctx context.Context) error {
	return s.predictor.LoadParameters(ctx, s.deps.Retraining)
}

// GetRecentPredictions 每种故障类型的最新预测；deviceID 为空表示全部设备
func (s *MaintenanceService) GetRecentPredictions(ctx context.Context, deviceID string) ([]models.MaintenancePrediction, error) {
	if deviceID != "" && s.deps.Cache != nil {
		cached, err := s.deps.Cache.Get(ctx, deviceID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Prediction cache read failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	predictions, err := s.deps.Predictions.ListLatestPredictions(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}

	if deviceID != "" {
		s.refreshCache(ctx, deviceID, predictions)
	}
	return predictions, nil
}

// PredictMaintenance 生成、保存并分发设备的预测
func (s *MaintenanceService) PredictMaintenance(ctx context.Context, deviceID string, horizon time.Duration) ([]models.MaintenancePrediction, error) {
	predictions, err := s.predictor.Predict(ctx, deviceID, horizon)
	if err != nil {
		return nil, err
	}

	for i := range predictions {
		if err := s.deps.Predictions.CreatePrediction(ctx, &predictions[i]); err != nil {
			return nil, fmt.Errorf("failed to store prediction: %w", err)
		}
	}

	if len(predictions) > 0 {
		if latest, err := s.deps.Predictions.ListLatestPredictions(ctx, deviceID); err == nil {
			s.refreshCache(ctx, deviceID, latest)
		} else {
			s.logger.Warn("Failed to reload latest predictions", zap.String("device_id", deviceID), zap.Error(err))
		}
		s.dispatcher.Dispatch(predictions)
	}
	return predictions, nil
}

func (s *MaintenanceService) refreshCache(ctx context.Context, deviceID string, predictions []models.MaintenancePrediction) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Put(ctx, deviceID, predictions); err != nil {
		s.logger.Warn("Prediction cache write failed", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// ProcessFeedback 提交反馈；预测不存在时返回 false
func (s *MaintenanceService) ProcessFeedback(ctx context.Context, predictionID int64, isCorrect bool, comment, author string) (bool, error) {
	_, err := s.SubmitFeedback(ctx, feedback.SubmitRequest{
		PredictionID: predictionID,
		IsCorrect:    isCorrect,
		Comment:      comment,
		Author:       author,
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SubmitFeedback 提交反馈（含修正建议）
func (s *MaintenanceService) SubmitFeedback(ctx context.Context, req feedback.SubmitRequest) (*models.PredictionFeedback, error) {
	return s.ingestor.SubmitFeedback(ctx, req)
}

// RetrainModel 按需重新训练；已有训练进行中时返回 models.ErrBusy
func (s *MaintenanceService) RetrainModel(ctx context.Context) (*models.RetrainingRun, error) {
	return s.retrainer.Retrain(ctx)
}

// GetAdvancedStatistics 统计
func (s *MaintenanceService) GetAdvancedStatistics(ctx context.Context, from, to *time.Time) (*models.Statistics, error) {
	return s.stats.AdvancedStatistics(ctx, from, to)
}

// ListRetrainingRuns 最近的重新训练记录
func (s *MaintenanceService) ListRetrainingRuns(ctx context.Context, limit int) ([]models.RetrainingRun, error) {
	return s.deps.Retraining.ListRuns(ctx, limit)
}

// GetRetrainingRun 单次重新训练记录；不存在时返回 models.ErrNotFound
func (s *MaintenanceService) GetRetrainingRun(ctx context.Context, runID string) (*models.RetrainingRun, error) {
	return s.deps.Retraining.GetRun(ctx, runID)
}

// ResolveOutcomes 为结果已知的反馈物化训练记录
func (s *MaintenanceService) ResolveOutcomes(ctx context.Context) (int, error) {
	return s.ingestor.ResolvePending(ctx, 500)
}

// MaterializeTrainingRecord 外部协作方直接提供结果时使用
func (s *MaintenanceService) MaterializeTrainingRecord(ctx context.Context, feedbackID int64, actualDaysUntilEvent *int, eventOccurred bool) (*models.TrainingDataRecord, error) {
	f, err := s.deps.Feedback.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	return s.ingestor.MaterializeTrainingRecord(ctx, f, actualDaysUntilEvent, eventOccurred)
}

// OnClose 注册关闭时释放的资源
func (s *MaintenanceService) OnClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// Stop 等待通知投递并释放资源
func (s *MaintenanceService) Stop() {
	s.dispatcher.Wait()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
