package repository

import (
	"context"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// FeedbackRepository 预测反馈（只追加）
type FeedbackRepository interface {
	// CreateFeedback 写入反馈并回填 FeedbackID
	CreateFeedback(ctx context.Context, f *models.PredictionFeedback) error
	GetFeedback(ctx context.Context, feedbackID int64) (*models.PredictionFeedback, error)
	// ListFeedbackSince 返回 created_at >= since 的反馈
	ListFeedbackSince(ctx context.Context, since time.Time) ([]models.PredictionFeedback, error)
	// ListUnresolvedFeedback 返回 feedback_id > afterID 且尚未物化训练记录的反馈（按 feedback_id 升序）
	ListUnresolvedFeedback(ctx context.Context, afterID int64, limit int) ([]models.PredictionFeedback, error)
	// ListFeedbackOutcomes 返回时间范围内的反馈及其预测、训练记录（未解析的 Record 为 nil）
	ListFeedbackOutcomes(ctx context.Context, from, to *time.Time) ([]FeedbackOutcome, error)
}

// FeedbackOutcome 统计用的反馈视图
type FeedbackOutcome struct {
	Feedback   models.PredictionFeedback
	Prediction models.MaintenancePrediction
	Record     *models.TrainingDataRecord
}
