package repository

import (
	"context"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// TrainingRepository 训练数据（只追加，仅允许标记 used）
type TrainingRepository interface {
	// CreateTrainingRecord 写入训练记录并回填 RecordID；同一反馈重复物化返回已有记录
	CreateTrainingRecord(ctx context.Context, r *models.TrainingDataRecord) error
	// ListReadyRecords 返回 asOf 之前已就绪且未使用的记录（重新训练快照）
	ListReadyRecords(ctx context.Context, asOf time.Time) ([]models.TrainingDataRecord, error)
	MarkUsed(ctx context.Context, recordIDs []int64) error
}

// RetrainingRepository 重新训练历史（只追加）与当前模型参数（原子替换）
type RetrainingRepository interface {
	AppendRun(ctx context.Context, run *models.RetrainingRun) error
	// GetRun 不存在时返回 models.ErrNotFound
	GetRun(ctx context.Context, runID string) (*models.RetrainingRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.RetrainingRun, error)

	// LoadParameters 当前生效参数；尚未训练过时返回 (nil, nil)
	LoadParameters(ctx context.Context) (*models.ModelParameters, error)
	// ReplaceParameters 整体替换生效参数
	ReplaceParameters(ctx context.Context, params *models.ModelParameters) error
}
