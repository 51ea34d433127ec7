package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// Event 设备实际发生的维护事件
type Event struct {
	DeviceID    string             `json:"device_id"`
	FailureType models.FailureType `json:"failure_type"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// PostgresTracker 基于 device_maintenance_events 的结果跟踪器
type PostgresTracker struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresTracker 创建结果跟踪器
func NewPostgresTracker(db *sql.DB, logger *zap.Logger) *PostgresTracker {
	return &PostgresTracker{
		db:     db,
		logger: logger,
	}
}

// ActualOutcome [since, until) 内第一次发生的同类事件；没有事件时返回 (nil, nil)
// until 为零值时不设上界
func (t *PostgresTracker) ActualOutcome(ctx context.Context, deviceID string, ft models.FailureType, since, until time.Time) (*models.Outcome, error) {
	query := `
		SELECT occurred_at
		FROM device_maintenance_events
		WHERE device_id = $1 AND failure_type = $2 AND occurred_at >= $3
			AND ($4::timestamptz IS NULL OR occurred_at < $4)
		ORDER BY occurred_at
		LIMIT 1
	`

	var upper any
	if !until.IsZero() {
		upper = until.UTC()
	}

	var occurredAt time.Time
	err := t.db.QueryRowContext(ctx, query, deviceID, string(ft), since.UTC(), upper).Scan(&occurredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query maintenance events: %w", err)
	}

	days := DaysBetween(since, occurredAt)
	return &models.Outcome{DaysUntilEvent: &days, Occurred: true}, nil
}

// RecordEvent 写入维护事件
func (t *PostgresTracker) RecordEvent(ctx context.Context, e Event) error {
	if e.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if _, err := models.ParseFailureType(string(e.FailureType)); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	if _, err := t.db.ExecContext(ctx,
		`INSERT INTO device_maintenance_events (device_id, failure_type, occurred_at) VALUES ($1, $2, $3)`,
		e.DeviceID, string(e.FailureType), e.OccurredAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert maintenance event: %w", err)
	}

	t.logger.Info("Maintenance event recorded",
		zap.String("device_id", e.DeviceID),
		zap.String("failure_type", string(e.FailureType)),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

// HandleMessage MQTT 事件消息处理（payload 为 Event JSON）
func (t *PostgresTracker) HandleMessage(topic string, payload []byte) error {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("invalid maintenance event on %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.RecordEvent(ctx, e)
}

// DaysBetween 向上取整的天数（不小于 0）
func DaysBetween(from, to time.Time) int {
	d := to.Sub(from).Hours() / 24
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d - 1e-9))
}
