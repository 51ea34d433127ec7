package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// PostgresPredictionsRepository 维护预测仓库（PostgreSQL）
type PostgresPredictionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPredictionsRepository 创建预测仓库
func NewPostgresPredictionsRepository(db *sql.DB, logger *zap.Logger) *PostgresPredictionsRepository {
	return &PostgresPredictionsRepository{
		db:     db,
		logger: logger,
	}
}

const predictionColumns = `
	prediction_id, device_id, failure_type, probability, confidence,
	estimated_date, days_until_event, recommended_action, model_version,
	horizon_days, input_snapshot, created_at`

// CreatePrediction 写入预测
func (r *PostgresPredictionsRepository) CreatePrediction(ctx context.Context, p *models.MaintenancePrediction) error {
	if p == nil {
		return fmt.Errorf("prediction is required")
	}
	if _, err := models.ParseFailureType(string(p.FailureType)); err != nil {
		return err
	}

	snapshot := []byte("{}")
	if p.InputSnapshot != nil {
		b, err := json.Marshal(p.InputSnapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal input snapshot: %w", err)
		}
		snapshot = b
	}

	query := `
		INSERT INTO maintenance_predictions (
			device_id, failure_type, probability, confidence,
			estimated_date, days_until_event, recommended_action, model_version,
			horizon_days, input_snapshot, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING prediction_id
	`

	if err := r.db.QueryRowContext(ctx, query,
		p.DeviceID, string(p.FailureType), p.Probability, p.Confidence,
		p.EstimatedDate.UTC(), p.DaysUntilEvent, p.RecommendedAction, p.ModelVersion,
		p.HorizonDays, snapshot, p.CreatedAt.UTC(),
	).Scan(&p.PredictionID); err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	return nil
}

// GetPrediction 获取单个预测
func (r *PostgresPredictionsRepository) GetPrediction(ctx context.Context, predictionID int64) (*models.MaintenancePrediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM maintenance_predictions WHERE prediction_id = $1`

	p, err := scanPrediction(r.db.QueryRowContext(ctx, query, predictionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("prediction %d: %w", predictionID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// ListLatestPredictions 每个设备、每种故障类型的最新预测
func (r *PostgresPredictionsRepository) ListLatestPredictions(ctx context.Context, deviceID string) ([]models.MaintenancePrediction, error) {
	query := `
		SELECT DISTINCT ON (device_id, failure_type) ` + predictionColumns + `
		FROM maintenance_predictions
		WHERE ($1 = '' OR device_id = $1)
		ORDER BY device_id, failure_type, created_at DESC, prediction_id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []models.MaintenancePrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}

	return predictions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*models.MaintenancePrediction, error) {
	var p models.MaintenancePrediction
	var failureType string
	var snapshot []byte

	if err := row.Scan(
		&p.PredictionID, &p.DeviceID, &failureType, &p.Probability, &p.Confidence,
		&p.EstimatedDate, &p.DaysUntilEvent, &p.RecommendedAction, &p.ModelVersion,
		&p.HorizonDays, &snapshot, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	ft, err := models.ParseFailureType(failureType)
	if err != nil {
		return nil, fmt.Errorf("corrupt prediction %d: %w", p.PredictionID, err)
	}
	p.FailureType = ft
	p.EstimatedDate = p.EstimatedDate.UTC()
	p.CreatedAt = p.CreatedAt.UTC()

	if len(snapshot) > 0 && string(snapshot) != "{}" {
		var agg models.CleanTelemetryAggregate
		if err := json.Unmarshal(snapshot, &agg); err != nil {
			return nil, fmt.Errorf("corrupt input snapshot for prediction %d: %w", p.PredictionID, err)
		}
		p.InputSnapshot = &agg
	}

	return &p, nil
}
