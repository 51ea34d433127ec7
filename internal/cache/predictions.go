package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// PredictionCache 设备最新预测缓存
type PredictionCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewPredictionCache 创建预测缓存
func NewPredictionCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *PredictionCache {
	return &PredictionCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

func predictionsKey(deviceID string) string {
	return fmt.Sprintf("maintenance:device:%s:predictions", deviceID)
}

// Put 写入设备的最新预测
func (c *PredictionCache) Put(ctx context.Context, deviceID string, predictions []models.MaintenancePrediction) error {
	if predictions == nil {
		predictions = []models.MaintenancePrediction{}
	}
	data, err := json.Marshal(predictions)
	if err != nil {
		return fmt.Errorf("failed to marshal predictions: %w", err)
	}

	key := predictionsKey(deviceID)
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated prediction cache",
		zap.String("device_id", deviceID),
		zap.String("key", key),
		zap.Int("prediction_count", len(predictions)),
	)
	return nil
}

// Get 读取设备的最新预测；未命中返回 ErrCacheMiss
func (c *PredictionCache) Get(ctx context.Context, deviceID string) ([]models.MaintenancePrediction, error) {
	raw, err := c.kv.Get(ctx, predictionsKey(deviceID))
	if err != nil {
		return nil, err
	}

	var predictions []models.MaintenancePrediction
	if err := json.Unmarshal([]byte(raw), &predictions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached predictions: %w", err)
	}
	return predictions, nil
}

// Invalidate 删除设备缓存
func (c *PredictionCache) Invalidate(ctx context.Context, deviceID string) error {
	return c.kv.Del(ctx, predictionsKey(deviceID))
}
