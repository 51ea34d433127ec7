package retrainer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/metrics"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/predictor"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lock 跨进程的重新训练互斥锁
type Lock interface {
	TryAcquire(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
}

// Retrainer 模型重新训练
type Retrainer struct {
	config    *config.Config
	logger    *zap.Logger
	predictor *predictor.Predictor
	training  repository.TrainingRepository
	feedback  repository.FeedbackRepository
	runs      repository.RetrainingRepository
	lock      Lock // 可为 nil
	busy      atomic.Bool
	now       func() time.Time
}

// NewRetrainer 创建重新训练器
func NewRetrainer(
	cfg *config.Config,
	p *predictor.Predictor,
	training repository.TrainingRepository,
	feedback repository.FeedbackRepository,
	runs repository.RetrainingRepository,
	lock Lock,
	logger *zap.Logger,
) *Retrainer {
	return &Retrainer{
		config:    cfg,
		logger:    logger,
		predictor: p,
		training:  training,
		feedback:  feedback,
		runs:      runs,
		lock:      lock,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Busy 是否有重新训练正在进行
func (r *Retrainer) Busy() bool {
	return r.busy.Load()
}

// Retrain 执行一次重新训练
// 已有运行中的训练时立即返回 models.ErrBusy，不产生任何记录
func (r *Retrainer) Retrain(ctx context.Context) (*models.RetrainingRun, error) {
	if !r.busy.CompareAndSwap(false, true) {
		metrics.RetrainingRuns.WithLabelValues("busy").Inc()
		return nil, models.ErrBusy
	}
	defer r.busy.Store(false)

	run := &models.RetrainingRun{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
	}

	if r.lock != nil {
		acquired, err := r.lock.TryAcquire(ctx, run.RunID)
		if err != nil {
			return r.fail(ctx, run, fmt.Errorf("failed to acquire retrain lock: %w", err))
		}
		if !acquired {
			metrics.RetrainingRuns.WithLabelValues("busy").Inc()
			return nil, models.ErrBusy
		}
		defer func() {
			if err := r.lock.Release(context.Background(), run.RunID); err != nil {
				r.logger.Warn("Failed to release retrain lock", zap.String("run_id", run.RunID), zap.Error(err))
			}
		}()
	}

	r.logger.Info("Starting model retraining", zap.String("run_id", run.RunID))

	// 快照：只使用开始时已就绪的记录
	records, err := r.training.ListReadyRecords(ctx, run.StartedAt)
	if err != nil {
		return r.fail(ctx, run, fmt.Errorf("failed to load training data: %w", err))
	}
	run.TrainingDataSize = len(records)

	recent, err := r.feedback.ListFeedbackSince(ctx, run.StartedAt.Add(-r.config.Feedback.RecentWindow))
	if err != nil {
		return r.fail(ctx, run, fmt.Errorf("failed to load recent feedback: %w", err))
	}
	run.FeedbackCount = len(recent)

	if len(records) < r.config.Retrainer.MinTrainingRecords {
		run.Issues = append(run.Issues, fmt.Sprintf("%s: %d records, %d required",
			models.IssueInsufficientData, len(records), r.config.Retrainer.MinTrainingRecords))
		r.logger.Info("Skipping retraining: insufficient training data",
			zap.String("run_id", run.RunID),
			zap.Int("training_data_size", len(records)),
			zap.Int("min_training_records", r.config.Retrainer.MinTrainingRecords),
		)
		metrics.RetrainingRuns.WithLabelValues("insufficient").Inc()
		return r.finish(ctx, run)
	}

	previous := r.predictor.Parameters()
	result, err := r.predictor.Train(ctx, records)
	if err != nil {
		return r.fail(ctx, run, err)
	}
	run.Fitted = true
	run.QualityDelta = result.FitQuality - r.predictor.Evaluate(previous, records)

	if run.QualityDelta >= 0 {
		if err := r.runs.ReplaceParameters(ctx, result.Parameters); err != nil {
			run.Fitted = false
			return r.fail(ctx, run, fmt.Errorf("failed to store model parameters: %w", err))
		}
		r.predictor.Install(result.Parameters)
		run.ModelUpdated = true
		version := result.Parameters.Version
		run.ParametersVersion = &version
		metrics.RetrainingRuns.WithLabelValues("updated").Inc()
	} else {
		run.Issues = append(run.Issues, fmt.Sprintf("%s (delta %.4f)", models.IssueRegression, run.QualityDelta))
		r.logger.Info("Retrained parameters regress, keeping current model",
			zap.String("run_id", run.RunID),
			zap.Float64("quality_delta", run.QualityDelta),
		)
		metrics.RetrainingRuns.WithLabelValues("regression").Inc()
	}

	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.RecordID
	}
	if err := r.training.MarkUsed(ctx, ids); err != nil {
		run.Issues = append(run.Issues, fmt.Sprintf("%s: %v", models.IssueStoreFailure, err))
		r.logger.Error("Failed to mark training data used", zap.String("run_id", run.RunID), zap.Error(err))
	}

	return r.finish(ctx, run)
}

func (r *Retrainer) finish(ctx context.Context, run *models.RetrainingRun) (*models.RetrainingRun, error) {
	run.FinishedAt = r.now()
	if err := r.runs.AppendRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to record retraining run: %w", err)
	}

	r.logger.Info("Completed model retraining",
		zap.String("run_id", run.RunID),
		zap.Bool("model_updated", run.ModelUpdated),
		zap.Int("training_data_size", run.TrainingDataSize),
		zap.Int("feedback_count", run.FeedbackCount),
		zap.Float64("quality_delta", run.QualityDelta),
		zap.Strings("issues", run.Issues),
	)
	return run, nil
}

// fail 记录失败的运行；参数不替换
func (r *Retrainer) fail(ctx context.Context, run *models.RetrainingRun, cause error) (*models.RetrainingRun, error) {
	run.Failed = true
	run.ModelUpdated = false
	run.Issues = append(run.Issues, fmt.Sprintf("%s: %v", models.IssueStoreFailure, cause))
	metrics.RetrainingRuns.WithLabelValues("failed").Inc()
	r.logger.Error("Model retraining failed", zap.String("run_id", run.RunID), zap.Error(cause))

	if _, err := r.finish(ctx, run); err != nil {
		r.logger.Error("Failed to record failed run", zap.String("run_id", run.RunID), zap.Error(err))
	}
	return run, cause
}
