package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// Start 启动采集、清洗、预测、结果解析与定时重新训练，阻塞直到 ctx 结束
func (s *MaintenanceService) Start(ctx context.Context) error {
	s.logger.Info("Starting maintenance pipeline",
		zap.Duration("collector_interval", s.config.Collector.Interval),
		zap.Duration("predictor_interval", s.config.Predictor.Interval),
		zap.Duration("resolve_interval", s.config.Feedback.ResolveInterval),
		zap.Duration("retrain_interval", s.config.Retrainer.Interval),
	)

	var wg sync.WaitGroup
	run := func(name string, interval time.Duration, fn func(context.Context)) {
		if interval <= 0 {
			s.logger.Info("Loop disabled", zap.String("loop", name))
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, interval, fn)
		}()
	}

	if s.deps.Source != nil {
		run("collection", s.config.Collector.Interval, s.collectAndClean)
	}
	run("prediction", s.config.Predictor.Interval, s.predictAll)
	run("resolve", s.config.Feedback.ResolveInterval, s.resolveOutcomes)
	run("retrain", s.config.Retrainer.Interval, s.scheduledRetrain)

	<-ctx.Done()
	wg.Wait()
	s.logger.Info("Maintenance pipeline stopped")
	return nil
}

func (s *MaintenanceService) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// collectAndClean 采集一轮，清理过期样本，清洗已结束的窗口
func (s *MaintenanceService) collectAndClean(ctx context.Context) {
	if _, err := s.collector.CollectAll(ctx); err != nil {
		s.logger.Error("Telemetry collection failed", zap.Error(err))
	}
	if err := s.CleanClosedWindows(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("Telemetry cleaning failed", zap.Error(err))
	}
	if _, err := s.collector.CleanupRecent(ctx); err != nil {
		s.logger.Error("Failed to clean up recent samples", zap.Error(err))
	}
}

// CleanClosedWindows 清洗 now 之前已结束、尚未清洗的窗口
func (s *MaintenanceService) CleanClosedWindows(ctx context.Context, now time.Time) error {
	window := s.config.Cleaner.Window
	closedUntil := now.Truncate(window)

	s.mu.Lock()
	from := s.lastCleaned
	s.mu.Unlock()
	if from.IsZero() {
		from = closedUntil.Add(-s.config.Collector.Retention)
	}
	if !closedUntil.After(from) {
		return nil
	}

	result := s.cleaner.Clean(s.collector.Recent(from, closedUntil))
	if err := s.deps.Telemetry.SaveAggregates(ctx, result.Aggregates); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastCleaned = closedUntil
	s.mu.Unlock()
	return nil
}

// predictAll 为所有受监控设备生成预测
func (s *MaintenanceService) predictAll(ctx context.Context) {
	devices, err := s.deps.Devices.ListMonitoredDevices(ctx)
	if err != nil {
		s.logger.Error("Failed to list devices", zap.Error(err))
		return
	}

	successCount, errorCount, predictionCount := 0, 0, 0
	for _, d := range devices {
		select {
		case <-ctx.Done():
			return
		default:
		}
		preds, err := s.PredictMaintenance(ctx, d.DeviceID, 0)
		if err != nil {
			s.logger.Error("Failed to predict maintenance",
				zap.String("device_id", d.DeviceID),
				zap.Error(err),
			)
			errorCount++
			continue
		}
		successCount++
		predictionCount += len(preds)
	}

	s.logger.Info("Completed prediction round",
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
		zap.Int("prediction_count", predictionCount),
	)
}

func (s *MaintenanceService) resolveOutcomes(ctx context.Context) {
	if _, err := s.ResolveOutcomes(ctx); err != nil {
		s.logger.Error("Outcome resolution failed", zap.Error(err))
	}
}

func (s *MaintenanceService) scheduledRetrain(ctx context.Context) {
	if _, err := s.RetrainModel(ctx); err != nil {
		if errors.Is(err, models.ErrBusy) {
			s.logger.Info("Scheduled retraining skipped: another run in progress")
			return
		}
		s.logger.Error("Scheduled retraining failed", zap.Error(err))
	}
}
