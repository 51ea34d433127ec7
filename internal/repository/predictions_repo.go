package repository

import (
	"context"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// PredictionsRepository 维护预测（只追加；每个设备每种故障类型以最新一条为准）
type PredictionsRepository interface {
	// CreatePrediction 写入预测并回填 PredictionID
	CreatePrediction(ctx context.Context, p *models.MaintenancePrediction) error
	// GetPrediction 不存在时返回 models.ErrNotFound
	GetPrediction(ctx context.Context, predictionID int64) (*models.MaintenancePrediction, error)
	// ListLatestPredictions 每个 (device, failure_type) 的最新预测；deviceID 为空表示全部设备
	ListLatestPredictions(ctx context.Context, deviceID string) ([]models.MaintenancePrediction, error)
}
