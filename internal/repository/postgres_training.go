package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresTrainingRepository 训练数据仓库（PostgreSQL）
type PostgresTrainingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresTrainingRepository 创建训练数据仓库
func NewPostgresTrainingRepository(db *sql.DB, logger *zap.Logger) *PostgresTrainingRepository {
	return &PostgresTrainingRepository{
		db:     db,
		logger: logger,
	}
}

// CreateTrainingRecord 物化训练记录；同一 feedback_id 只会保留第一条
func (r *PostgresTrainingRepository) CreateTrainingRecord(ctx context.Context, rec *models.TrainingDataRecord) error {
	if rec == nil {
		return fmt.Errorf("training record is required")
	}
	if !rec.ReadyForTraining {
		return fmt.Errorf("training record for feedback %d has no known outcome", rec.FeedbackID)
	}

	snapshot, err := json.Marshal(rec.InputSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal input snapshot: %w", err)
	}

	var actualDays sql.NullInt32
	if rec.ActualDaysUntilEvent != nil {
		actualDays = sql.NullInt32{Int32: int32(*rec.ActualDaysUntilEvent), Valid: true}
	}

	query := `
		INSERT INTO training_data (
			feedback_id, prediction_id, device_id, input_snapshot, predicted_probability,
			failure_type, actual_days_until_event, event_occurred, ready_for_training,
			weight, used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)
		ON CONFLICT (feedback_id) DO UPDATE SET feedback_id = EXCLUDED.feedback_id
		RETURNING record_id
	`

	if err := r.db.QueryRowContext(ctx, query,
		rec.FeedbackID, rec.PredictionID, rec.DeviceID, snapshot, rec.PredictedProbability,
		string(rec.FailureType), actualDays, rec.EventOccurred, rec.ReadyForTraining,
		rec.Weight, rec.CreatedAt.UTC(),
	).Scan(&rec.RecordID); err != nil {
		return fmt.Errorf("failed to insert training record: %w", err)
	}
	return nil
}

// ListReadyRecords 重新训练快照：asOf 之前就绪且未使用的记录
func (r *PostgresTrainingRepository) ListReadyRecords(ctx context.Context, asOf time.Time) ([]models.TrainingDataRecord, error) {
	query := `
		SELECT
			record_id, feedback_id, prediction_id, device_id, input_snapshot,
			predicted_probability, failure_type, actual_days_until_event, event_occurred,
			ready_for_training, weight, used, created_at
		FROM training_data
		WHERE ready_for_training = TRUE
		  AND used = FALSE
		  AND created_at <= $1
		ORDER BY record_id
	`

	rows, err := r.db.QueryContext(ctx, query, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query training data: %w", err)
	}
	defer rows.Close()

	var records []models.TrainingDataRecord
	for rows.Next() {
		var rec models.TrainingDataRecord
		var snapshot []byte
		var failureType string
		var actualDays sql.NullInt32

		if err := rows.Scan(
			&rec.RecordID, &rec.FeedbackID, &rec.PredictionID, &rec.DeviceID, &snapshot,
			&rec.PredictedProbability, &failureType, &actualDays, &rec.EventOccurred,
			&rec.ReadyForTraining, &rec.Weight, &rec.Used, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan training record: %w", err)
		}

		ft, err := models.ParseFailureType(failureType)
		if err != nil {
			return nil, fmt.Errorf("corrupt training record %d: %w", rec.RecordID, err)
		}
		rec.FailureType = ft
		if actualDays.Valid {
			d := int(actualDays.Int32)
			rec.ActualDaysUntilEvent = &d
		}
		if err := json.Unmarshal(snapshot, &rec.InputSnapshot); err != nil {
			return nil, fmt.Errorf("corrupt training record %d: %w", rec.RecordID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training data: %w", err)
	}

	return records, nil
}

// MarkUsed 标记记录已被重新训练使用
func (r *PostgresTrainingRepository) MarkUsed(ctx context.Context, recordIDs []int64) error {
	if len(recordIDs) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE training_data SET used = TRUE WHERE record_id = ANY($1)`,
		pq.Array(recordIDs),
	); err != nil {
		return fmt.Errorf("failed to mark training data used: %w", err)
	}
	return nil
}
