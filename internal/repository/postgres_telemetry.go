package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// PostgresTelemetryRepository 遥测仓库（PostgreSQL）
type PostgresTelemetryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresTelemetryRepository 创建遥测仓库
func NewPostgresTelemetryRepository(db *sql.DB, logger *zap.Logger) *PostgresTelemetryRepository {
	return &PostgresTelemetryRepository{
		db:     db,
		logger: logger,
	}
}

// AppendSamples 批量追加原始样本（单事务）
func (r *PostgresTelemetryRepository) AppendSamples(ctx context.Context, samples []models.RawTelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_telemetry (
			sample_id, device_id, sampled_at, status,
			toner_level, paper_level, temperature, cpu_usage, memory_usage,
			queue_depth, error_count, collection_success, collection_latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (sample_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx,
			s.SampleID, s.DeviceID, s.Timestamp.UTC(), s.Status,
			s.TonerLevel, s.PaperLevel, s.Temperature, s.CPUUsage, s.MemoryUsage,
			s.QueueDepth, s.ErrorCount, s.CollectionSuccess, s.CollectionLatency.Milliseconds(),
		); err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", s.SampleID, err)
		}
	}

	return tx.Commit()
}

// ListSamples 查询时间范围内的原始样本
func (r *PostgresTelemetryRepository) ListSamples(ctx context.Context, from, to time.Time) ([]models.RawTelemetrySample, error) {
	query := `
		SELECT
			sample_id, device_id, sampled_at, status,
			toner_level, paper_level, temperature, cpu_usage, memory_usage,
			queue_depth, error_count, collection_success, collection_latency_ms
		FROM raw_telemetry
		WHERE sampled_at >= $1 AND sampled_at < $2
		ORDER BY device_id, sampled_at, sample_id
	`

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query raw telemetry: %w", err)
	}
	defer rows.Close()

	var samples []models.RawTelemetrySample
	for rows.Next() {
		var s models.RawTelemetrySample
		var latencyMs int64
		if err := rows.Scan(
			&s.SampleID, &s.DeviceID, &s.Timestamp, &s.Status,
			&s.TonerLevel, &s.PaperLevel, &s.Temperature, &s.CPUUsage, &s.MemoryUsage,
			&s.QueueDepth, &s.ErrorCount, &s.CollectionSuccess, &latencyMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan raw telemetry: %w", err)
		}
		s.Timestamp = s.Timestamp.UTC()
		s.CollectionLatency = time.Duration(latencyMs) * time.Millisecond
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw telemetry: %w", err)
	}

	return samples, nil
}

// PurgeSamplesBefore 删除保留期之外的原始样本
func (r *PostgresTelemetryRepository) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM raw_telemetry WHERE sampled_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge raw telemetry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purged rows: %w", err)
	}
	return n, nil
}

// SaveAggregates 写入清洗聚合（已存在的窗口保持不变）
func (r *PostgresTelemetryRepository) SaveAggregates(ctx context.Context, aggregates []models.CleanTelemetryAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry_aggregates (
			device_id, window_start, window_end,
			avg_toner, avg_paper, avg_temperature, avg_cpu, avg_memory, avg_queue_depth,
			total_errors, sample_count, quality_score, dominant_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (device_id, window_start) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range aggregates {
		if _, err := stmt.ExecContext(ctx,
			a.DeviceID, a.WindowStart.UTC(), a.WindowEnd.UTC(),
			a.AvgToner, a.AvgPaper, a.AvgTemperature, a.AvgCPU, a.AvgMemory, a.AvgQueueDepth,
			a.TotalErrors, a.SampleCount, a.QualityScore, a.DominantStatus,
		); err != nil {
			return fmt.Errorf("failed to insert aggregate for %s: %w", a.DeviceID, err)
		}
	}

	return tx.Commit()
}

// LatestAggregates 获取设备最近的聚合窗口（时间升序）
func (r *PostgresTelemetryRepository) LatestAggregates(ctx context.Context, deviceID string, limit int) ([]models.CleanTelemetryAggregate, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 1
	}

	query := `
		SELECT
			device_id, window_start, window_end,
			avg_toner, avg_paper, avg_temperature, avg_cpu, avg_memory, avg_queue_depth,
			total_errors, sample_count, quality_score, dominant_status
		FROM telemetry_aggregates
		WHERE device_id = $1
		ORDER BY window_start DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var aggregates []models.CleanTelemetryAggregate
	for rows.Next() {
		var a models.CleanTelemetryAggregate
		if err := rows.Scan(
			&a.DeviceID, &a.WindowStart, &a.WindowEnd,
			&a.AvgToner, &a.AvgPaper, &a.AvgTemperature, &a.AvgCPU, &a.AvgMemory, &a.AvgQueueDepth,
			&a.TotalErrors, &a.SampleCount, &a.QualityScore, &a.DominantStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		a.WindowStart = a.WindowStart.UTC()
		a.WindowEnd = a.WindowEnd.UTC()
		aggregates = append(aggregates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregates: %w", err)
	}

	// 倒序查询，返回升序
	for i, j := 0, len(aggregates)-1; i < j; i, j = i+1, j-1 {
		aggregates[i], aggregates[j] = aggregates[j], aggregates[i]
	}
	return aggregates, nil
}

// RecordCollectionRound 写入采集轮次汇总
func (r *PostgresTelemetryRepository) RecordCollectionRound(ctx context.Context, round models.CollectionRound) error {
	query := `
		INSERT INTO collection_rounds (round_id, collected_at, attempts, succeeded, latency_sum_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query,
		round.RoundID, round.CollectedAt.UTC(), round.Attempts, round.Succeeded, round.LatencySumMillis,
	); err != nil {
		return fmt.Errorf("failed to insert collection round: %w", err)
	}
	return nil
}

// CollectionStats 采集健康度统计（按轮次汇总，不依赖原始样本）
func (r *PostgresTelemetryRepository) CollectionStats(ctx context.Context, from, to time.Time) (CollectionStats, error) {
	query := `
		SELECT
			COALESCE(SUM(attempts), 0)::int,
			COALESCE(SUM(succeeded), 0)::int,
			COALESCE(SUM(latency_sum_ms), 0)::bigint
		FROM collection_rounds
		WHERE collected_at >= $1 AND collected_at < $2
	`

	var stats CollectionStats
	var latencySum int64
	if err := r.db.QueryRowContext(ctx, query, from.UTC(), to.UTC()).Scan(
		&stats.Total, &stats.Succeeded, &latencySum,
	); err != nil {
		return CollectionStats{}, fmt.Errorf("failed to query collection stats: %w", err)
	}
	if stats.Total > 0 {
		stats.AvgLatencyMillis = float64(latencySum) / float64(stats.Total)
	}
	return stats, nil
}
