package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// 生效参数只有一行
const liveParametersSlot = "live"

// PostgresRetrainingRepository 重新训练历史与模型参数（PostgreSQL）
type PostgresRetrainingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRetrainingRepository 创建重新训练仓库
func NewPostgresRetrainingRepository(db *sql.DB, logger *zap.Logger) *PostgresRetrainingRepository {
	return &PostgresRetrainingRepository{
		db:     db,
		logger: logger,
	}
}

const runColumns = `
	run_id, started_at, finished_at, training_data_size, feedback_count,
	quality_delta, issues, model_updated, failed, fitted, parameters_version`

// AppendRun 追加一次重新训练记录
func (r *PostgresRetrainingRepository) AppendRun(ctx context.Context, run *models.RetrainingRun) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	var version sql.NullInt64
	if run.ParametersVersion != nil {
		version = sql.NullInt64{Int64: *run.ParametersVersion, Valid: true}
	}
	issues := run.Issues
	if issues == nil {
		issues = []string{}
	}

	query := `INSERT INTO retraining_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := r.db.ExecContext(ctx, query,
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.TrainingDataSize, run.FeedbackCount,
		run.QualityDelta, pq.Array(issues), run.ModelUpdated, run.Failed, run.Fitted, version,
	); err != nil {
		return fmt.Errorf("failed to insert retraining run: %w", err)
	}
	return nil
}

// GetRun 获取单次重新训练记录
func (r *PostgresRetrainingRepository) GetRun(ctx context.Context, runID string) (*models.RetrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM retraining_runs WHERE run_id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("retraining run %s: %w", runID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get retraining run: %w", err)
	}
	return run, nil
}

// ListRuns 最近的重新训练记录（新到旧）
func (r *PostgresRetrainingRepository) ListRuns(ctx context.Context, limit int) ([]models.RetrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM retraining_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query retraining runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RetrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retraining run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate retraining runs: %w", err)
	}
	return runs, nil
}

// LoadParameters 读取生效参数
func (r *PostgresRetrainingRepository) LoadParameters(ctx context.Context) (*models.ModelParameters, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT params FROM model_parameters WHERE slot = $1`, liveParametersSlot,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load model parameters: %w", err)
	}

	var params models.ModelParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("corrupt model parameters: %w", err)
	}
	return &params, nil
}

// ReplaceParameters 单条 UPSERT 原子替换生效参数
func (r *PostgresRetrainingRepository) ReplaceParameters(ctx context.Context, params *models.ModelParameters) error {
	if params == nil {
		return fmt.Errorf("parameters are required")
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal model parameters: %w", err)
	}

	query := `
		INSERT INTO model_parameters (slot, version, params, quality, trained_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slot) DO UPDATE SET
			version = EXCLUDED.version,
			params = EXCLUDED.params,
			quality = EXCLUDED.quality,
			trained_at = EXCLUDED.trained_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		liveParametersSlot, params.Version, raw, params.Quality, params.TrainedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to replace model parameters: %w", err)
	}
	return nil
}

func scanRun(row rowScanner) (*models.RetrainingRun, error) {
	var run models.RetrainingRun
	var issues pq.StringArray
	var version sql.NullInt64

	if err := row.Scan(
		&run.RunID, &run.StartedAt, &run.FinishedAt, &run.TrainingDataSize, &run.FeedbackCount,
		&run.QualityDelta, &issues, &run.ModelUpdated, &run.Failed, &run.Fitted, &version,
	); err != nil {
		return nil, err
	}
	run.Issues = []string(issues)
	if version.Valid {
		v := version.Int64
		run.ParametersVersion = &v
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}
