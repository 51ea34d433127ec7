package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/metrics"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"go.uber.org/zap"
)

// OutcomeTracker 外部结果跟踪器
// 只认 [since, until) 内发生的事件；结果未知时返回 (nil, nil)
type OutcomeTracker interface {
	ActualOutcome(ctx context.Context, deviceID string, ft models.FailureType, since, until time.Time) (*models.Outcome, error)
}

// SubmitRequest 反馈提交参数
type SubmitRequest struct {
	PredictionID       int64
	IsCorrect          bool
	Comment            string
	ProposedCorrection string
	Author             string
}

// Ingestor 反馈接收与训练数据物化
type Ingestor struct {
	config      *config.Config
	logger      *zap.Logger
	predictions repository.PredictionsRepository
	feedback    repository.FeedbackRepository
	training    repository.TrainingRepository
	tracker     OutcomeTracker
	now         func() time.Time
}

// NewIngestor 创建反馈接收器
func NewIngestor(
	cfg *config.Config,
	predictions repository.PredictionsRepository,
	feedback repository.FeedbackRepository,
	training repository.TrainingRepository,
	tracker OutcomeTracker,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		config:      cfg,
		logger:      logger,
		predictions: predictions,
		feedback:    feedback,
		training:    training,
		tracker:     tracker,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitFeedback 记录对预测的反馈；预测不存在时返回 models.ErrNotFound
func (i *Ingestor) SubmitFeedback(ctx context.Context, req SubmitRequest) (*models.PredictionFeedback, error) {
	if _, err := i.predictions.GetPrediction(ctx, req.PredictionID); err != nil {
		return nil, err
	}

	f := &models.PredictionFeedback{
		PredictionID:       req.PredictionID,
		IsCorrect:          req.IsCorrect,
		Comment:            strings.TrimSpace(req.Comment),
		ProposedCorrection: strings.TrimSpace(req.ProposedCorrection),
		Author:             req.Author,
		CreatedAt:          i.now(),
	}
	if err := i.feedback.CreateFeedback(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}

	quality := i.Quality(f)
	metrics.FeedbackSubmitted.WithLabelValues(quality.String()).Inc()
	i.logger.Info("Feedback received",
		zap.Int64("feedback_id", f.FeedbackID),
		zap.Int64("prediction_id", f.PredictionID),
		zap.Bool("is_correct", f.IsCorrect),
		zap.String("quality", quality.String()),
	)
	return f, nil
}

// Quality 反馈质量等级（使用配置的评论长度阈值）
func (i *Ingestor) Quality(f *models.PredictionFeedback) models.FeedbackQuality {
	return models.ComputeFeedbackQuality(f.Comment, f.ProposedCorrection, i.config.Feedback.HighQualityCommentLength)
}

// MaterializeTrainingRecord 真实结果已知后生成训练记录
func (i *Ingestor) MaterializeTrainingRecord(ctx context.Context, f *models.PredictionFeedback, actualDaysUntilEvent *int, eventOccurred bool) (*models.TrainingDataRecord, error) {
	if f == nil {
		return nil, fmt.Errorf("feedback is required")
	}
	pred, err := i.predictions.GetPrediction(ctx, f.PredictionID)
	if err != nil {
		return nil, err
	}
	return i.materialize(ctx, f, pred, &models.Outcome{DaysUntilEvent: actualDaysUntilEvent, Occurred: eventOccurred})
}

func (i *Ingestor) materialize(ctx context.Context, f *models.PredictionFeedback, pred *models.MaintenancePrediction, outcome *models.Outcome) (*models.TrainingDataRecord, error) {
	snapshot := models.CleanTelemetryAggregate{DeviceID: pred.DeviceID}
	if pred.InputSnapshot != nil {
		snapshot = *pred.InputSnapshot
	}

	rec := &models.TrainingDataRecord{
		FeedbackID:           f.FeedbackID,
		PredictionID:         pred.PredictionID,
		DeviceID:             pred.DeviceID,
		InputSnapshot:        snapshot,
		PredictedProbability: pred.Probability,
		FailureType:          pred.FailureType,
		ActualDaysUntilEvent: outcome.DaysUntilEvent,
		EventOccurred:        outcome.Occurred,
		ReadyForTraining:     true,
		Weight:               models.TrainingWeight(i.Quality(f), f.IsCorrect),
		CreatedAt:            i.now(),
	}
	if err := i.training.CreateTrainingRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store training record: %w", err)
	}

	metrics.TrainingRecordsMaterialized.Inc()
	i.logger.Info("Training record materialized",
		zap.Int64("record_id", rec.RecordID),
		zap.Int64("feedback_id", f.FeedbackID),
		zap.Bool("event_occurred", rec.EventOccurred),
	)
	return rec, nil
}

// ResolvePending 为结果已知的反馈物化训练记录
// 按 feedback_id 分页处理全部未解析反馈，结果仍未知的不会阻塞后续反馈；
// 预测时间范围已过且没有事件视为未发生
func (i *Ingestor) ResolvePending(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	now := i.now()
	var afterID int64
	scanned, resolved, errorCount := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		page, err := i.feedback.ListUnresolvedFeedback(ctx, afterID, batchSize)
		if err != nil {
			return resolved, fmt.Errorf("failed to list unresolved feedback: %w", err)
		}

		for idx := range page {
			f := &page[idx]
			afterID = f.FeedbackID
			scanned++

			ok, err := i.resolveOne(ctx, f, now)
			if err != nil {
				errorCount++
				continue
			}
			if ok {
				resolved++
			}
		}
		if len(page) < batchSize {
			break
		}
	}

	i.logger.Info("Completed feedback resolution",
		zap.Int("pending", scanned),
		zap.Int("success_count", resolved),
		zap.Int("error_count", errorCount),
	)
	return resolved, nil
}

// resolveOne 结果仍未知时返回 (false, nil)
func (i *Ingestor) resolveOne(ctx context.Context, f *models.PredictionFeedback, now time.Time) (bool, error) {
	pred, err := i.predictions.GetPrediction(ctx, f.PredictionID)
	if err != nil {
		i.logger.Warn("Cannot resolve feedback", zap.Int64("feedback_id", f.FeedbackID), zap.Error(err))
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	horizonEnd := pred.CreatedAt.AddDate(0, 0, pred.HorizonDays)
	outcome, err := i.tracker.ActualOutcome(ctx, pred.DeviceID, pred.FailureType, pred.CreatedAt, horizonEnd)
	if err != nil {
		i.logger.Warn("Outcome lookup failed",
			zap.Int64("feedback_id", f.FeedbackID),
			zap.String("device_id", pred.DeviceID),
			zap.Error(err),
		)
		return false, err
	}
	if outcome == nil {
		if now.Before(horizonEnd) {
			return false, nil
		}
		outcome = &models.Outcome{Occurred: false}
	}

	if _, err := i.materialize(ctx, f, pred, outcome); err != nil {
		i.logger.Error("Failed to materialize training record", zap.Int64("feedback_id", f.FeedbackID), zap.Error(err))
		return false, err
	}
	return true, nil
}

// NoEventTracker 没有事件来源时使用：结果只能由预测时间范围到期判定
type NoEventTracker struct{}

// ActualOutcome 总是未知
func (NoEventTracker) ActualOutcome(context.Context, string, models.FailureType, time.Time, time.Time) (*models.Outcome, error) {
	return nil, nil
}
