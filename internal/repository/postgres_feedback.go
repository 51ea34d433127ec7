package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// PostgresFeedbackRepository 反馈仓库（PostgreSQL）
type PostgresFeedbackRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresFeedbackRepository 创建反馈仓库
func NewPostgresFeedbackRepository(db *sql.DB, logger *zap.Logger) *PostgresFeedbackRepository {
	return &PostgresFeedbackRepository{
		db:     db,
		logger: logger,
	}
}

const feedbackColumns = `
	f.feedback_id, f.prediction_id, f.is_correct, f.comment,
	f.proposed_correction, f.author, f.created_at`

// CreateFeedback 写入反馈
func (r *PostgresFeedbackRepository) CreateFeedback(ctx context.Context, f *models.PredictionFeedback) error {
	if f == nil {
		return fmt.Errorf("feedback is required")
	}

	query := `
		INSERT INTO prediction_feedback (
			prediction_id, is_correct, comment, proposed_correction, author, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING feedback_id
	`

	if err := r.db.QueryRowContext(ctx, query,
		f.PredictionID, f.IsCorrect, f.Comment, f.ProposedCorrection, f.Author, f.CreatedAt.UTC(),
	).Scan(&f.FeedbackID); err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// GetFeedback 获取单条反馈
func (r *PostgresFeedbackRepository) GetFeedback(ctx context.Context, feedbackID int64) (*models.PredictionFeedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM prediction_feedback f WHERE f.feedback_id = $1`

	f, err := scanFeedback(r.db.QueryRowContext(ctx, query, feedbackID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feedback %d: %w", feedbackID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return f, nil
}

// ListFeedbackSince 查询 since 之后的反馈
func (r *PostgresFeedbackRepository) ListFeedbackSince(ctx context.Context, since time.Time) ([]models.PredictionFeedback, error) {
	query := `SELECT ` + feedbackColumns + `
		FROM prediction_feedback f
		WHERE f.created_at >= $1
		ORDER BY f.created_at, f.feedback_id
	`
	return r.queryFeedback(ctx, query, since.UTC())
}

// ListUnresolvedFeedback 按 feedback_id 分页查询尚未物化训练记录的反馈
func (r *PostgresFeedbackRepository) ListUnresolvedFeedback(ctx context.Context, afterID int64, limit int) ([]models.PredictionFeedback, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + feedbackColumns + `
		FROM prediction_feedback f
		LEFT JOIN training_data t ON t.feedback_id = f.feedback_id
		WHERE t.record_id IS NULL AND f.feedback_id > $1
		ORDER BY f.feedback_id
		LIMIT $2
	`
	return r.queryFeedback(ctx, query, afterID, limit)
}

// ListFeedbackOutcomes 反馈 + 预测 + 训练记录（统计使用）
func (r *PostgresFeedbackRepository) ListFeedbackOutcomes(ctx context.Context, from, to *time.Time) ([]FeedbackOutcome, error) {
	var where []string
	var args []any
	if from != nil {
		args = append(args, from.UTC())
		where = append(where, fmt.Sprintf("f.created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, to.UTC())
		where = append(where, fmt.Sprintf("f.created_at <= $%d", len(args)))
	}

	query := `
		SELECT ` + feedbackColumns + `,
			p.device_id, p.failure_type, p.probability, p.days_until_event, p.created_at,
			t.record_id, t.actual_days_until_event, t.event_occurred, t.weight, t.used,
			t.input_snapshot, t.created_at
		FROM prediction_feedback f
		JOIN maintenance_predictions p ON p.prediction_id = f.prediction_id
		LEFT JOIN training_data t ON t.feedback_id = f.feedback_id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.created_at, f.feedback_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []FeedbackOutcome
	for rows.Next() {
		var o FeedbackOutcome
		var failureType string
		var recordID sql.NullInt64
		var actualDays sql.NullInt32
		var occurred, used sql.NullBool
		var weight sql.NullFloat64
		var snapshot []byte
		var recordCreated sql.NullTime

		if err := rows.Scan(
			&o.Feedback.FeedbackID, &o.Feedback.PredictionID, &o.Feedback.IsCorrect, &o.Feedback.Comment,
			&o.Feedback.ProposedCorrection, &o.Feedback.Author, &o.Feedback.CreatedAt,
			&o.Prediction.DeviceID, &failureType, &o.Prediction.Probability, &o.Prediction.DaysUntilEvent, &o.Prediction.CreatedAt,
			&recordID, &actualDays, &occurred, &weight, &used,
			&snapshot, &recordCreated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feedback outcome: %w", err)
		}

		ft, err := models.ParseFailureType(failureType)
		if err != nil {
			return nil, fmt.Errorf("corrupt prediction %d: %w", o.Feedback.PredictionID, err)
		}
		o.Prediction.PredictionID = o.Feedback.PredictionID
		o.Prediction.FailureType = ft

		if recordID.Valid {
			rec := &models.TrainingDataRecord{
				RecordID:             recordID.Int64,
				FeedbackID:           o.Feedback.FeedbackID,
				PredictionID:         o.Feedback.PredictionID,
				DeviceID:             o.Prediction.DeviceID,
				PredictedProbability: o.Prediction.Probability,
				FailureType:          ft,
				EventOccurred:        occurred.Bool,
				ReadyForTraining:     true,
				Weight:               weight.Float64,
				Used:                 used.Bool,
				CreatedAt:            recordCreated.Time,
			}
			if actualDays.Valid {
				d := int(actualDays.Int32)
				rec.ActualDaysUntilEvent = &d
			}
			if len(snapshot) > 0 {
				if err := json.Unmarshal(snapshot, &rec.InputSnapshot); err != nil {
					return nil, fmt.Errorf("corrupt training record %d: %w", rec.RecordID, err)
				}
			}
			o.Record = rec
		}

		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback outcomes: %w", err)
	}

	return outcomes, nil
}

func (r *PostgresFeedbackRepository) queryFeedback(ctx context.Context, query string, args ...any) ([]models.PredictionFeedback, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var feedback []models.PredictionFeedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedback = append(feedback, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}
	return feedback, nil
}

func scanFeedback(row rowScanner) (*models.PredictionFeedback, error) {
	var f models.PredictionFeedback
	if err := row.Scan(
		&f.FeedbackID, &f.PredictionID, &f.IsCorrect, &f.Comment,
		&f.ProposedCorrection, &f.Author, &f.CreatedAt,
	); err != nil {
		return nil, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}
