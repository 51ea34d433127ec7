package repository

import (
	"context"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// TelemetryRepository 原始样本（短期保留、只追加）与清洗聚合（不可修改）
type TelemetryRepository interface {
	AppendSamples(ctx context.Context, samples []models.RawTelemetrySample) error
	// ListSamples 返回 [from, to) 内的样本，按 device_id、时间排序
	ListSamples(ctx context.Context, from, to time.Time) ([]models.RawTelemetrySample, error)
	PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveAggregates 写入聚合；同一 (device_id, window_start) 已存在时保持原值
	SaveAggregates(ctx context.Context, aggregates []models.CleanTelemetryAggregate) error
	// LatestAggregates 返回设备最近 limit 个窗口，按时间升序
	LatestAggregates(ctx context.Context, deviceID string, limit int) ([]models.CleanTelemetryAggregate, error)

	// RecordCollectionRound 写入一轮采集汇总；不随原始样本清理
	RecordCollectionRound(ctx context.Context, round models.CollectionRound) error
	// CollectionStats 按采集轮次汇总 [from, to) 内的尝试数、成功数与平均延迟（毫秒）
	CollectionStats(ctx context.Context, from, to time.Time) (CollectionStats, error)
}

// CollectionStats 采集健康度；Total 为 0 表示区间内没有采集记录
type CollectionStats struct {
	Total            int
	Succeeded        int
	AvgLatencyMillis float64
}
