package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// 维护预测相关表结构
const (
	DevicesTableSQL = `
		CREATE TABLE IF NOT EXISTS devices (
			device_id          TEXT PRIMARY KEY,
			device_name        TEXT NOT NULL,
			address            TEXT NOT NULL DEFAULT '',
			model              TEXT NOT NULL DEFAULT '',
			monitoring_enabled BOOLEAN NOT NULL DEFAULT FALSE
		)`

	RawTelemetryTableSQL = `
		CREATE TABLE IF NOT EXISTS raw_telemetry (
			sample_id             TEXT PRIMARY KEY,
			device_id             TEXT NOT NULL,
			sampled_at            TIMESTAMPTZ NOT NULL,
			status                TEXT NOT NULL,
			toner_level           DOUBLE PRECISION NOT NULL,
			paper_level           DOUBLE PRECISION NOT NULL,
			temperature           DOUBLE PRECISION NOT NULL,
			cpu_usage             DOUBLE PRECISION NOT NULL,
			memory_usage          DOUBLE PRECISION NOT NULL,
			queue_depth           INTEGER NOT NULL,
			error_count           INTEGER NOT NULL,
			collection_success    BOOLEAN NOT NULL,
			collection_latency_ms BIGINT NOT NULL
		)`

	RawTelemetryIndexSQL = `
		CREATE INDEX IF NOT EXISTS raw_telemetry_device_time_idx
			ON raw_telemetry (device_id, sampled_at)`

	CollectionRoundsTableSQL = `
		CREATE TABLE IF NOT EXISTS collection_rounds (
			round_id       TEXT PRIMARY KEY,
			collected_at   TIMESTAMPTZ NOT NULL,
			attempts       INTEGER NOT NULL CHECK (attempts >= 0),
			succeeded      INTEGER NOT NULL CHECK (succeeded >= 0),
			latency_sum_ms BIGINT NOT NULL
		)`

	CollectionRoundsIndexSQL = `
		CREATE INDEX IF NOT EXISTS collection_rounds_time_idx
			ON collection_rounds (collected_at)`

	TelemetryAggregatesTableSQL = `
		CREATE TABLE IF NOT EXISTS telemetry_aggregates (
			device_id       TEXT NOT NULL,
			window_start    TIMESTAMPTZ NOT NULL,
			window_end      TIMESTAMPTZ NOT NULL,
			avg_toner       DOUBLE PRECISION NOT NULL,
			avg_paper       DOUBLE PRECISION NOT NULL,
			avg_temperature DOUBLE PRECISION NOT NULL,
			avg_cpu         DOUBLE PRECISION NOT NULL,
			avg_memory      DOUBLE PRECISION NOT NULL,
			avg_queue_depth DOUBLE PRECISION NOT NULL,
			total_errors    INTEGER NOT NULL,
			sample_count    INTEGER NOT NULL,
			quality_score   DOUBLE PRECISION NOT NULL CHECK (quality_score BETWEEN 0 AND 100),
			dominant_status TEXT NOT NULL,
			PRIMARY KEY (device_id, window_start)
		)`

	PredictionsTableSQL = `
		CREATE TABLE IF NOT EXISTS maintenance_predictions (
			prediction_id      BIGSERIAL PRIMARY KEY,
			device_id          TEXT NOT NULL,
			failure_type       TEXT NOT NULL CHECK (failure_type IN
				('toner-depletion', 'paper-depletion', 'network-failure', 'hardware-failure')),
			probability        DOUBLE PRECISION NOT NULL CHECK (probability BETWEEN 0 AND 1),
			confidence         DOUBLE PRECISION NOT NULL CHECK (confidence BETWEEN 0 AND 1),
			estimated_date     TIMESTAMPTZ NOT NULL,
			days_until_event   INTEGER NOT NULL,
			recommended_action TEXT NOT NULL,
			model_version      BIGINT NOT NULL,
			horizon_days       INTEGER NOT NULL,
			input_snapshot     JSONB NOT NULL DEFAULT '{}',
			created_at         TIMESTAMPTZ NOT NULL
		)`

	PredictionsIndexSQL = `
		CREATE INDEX IF NOT EXISTS maintenance_predictions_latest_idx
			ON maintenance_predictions (device_id, failure_type, created_at DESC)`

	FeedbackTableSQL = `
		CREATE TABLE IF NOT EXISTS prediction_feedback (
			feedback_id         BIGSERIAL PRIMARY KEY,
			prediction_id       BIGINT NOT NULL REFERENCES maintenance_predictions (prediction_id),
			is_correct          BOOLEAN NOT NULL,
			comment             TEXT NOT NULL DEFAULT '',
			proposed_correction TEXT NOT NULL DEFAULT '',
			author              TEXT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL
		)`

	TrainingDataTableSQL = `
		CREATE TABLE IF NOT EXISTS training_data (
			record_id               BIGSERIAL PRIMARY KEY,
			feedback_id             BIGINT NOT NULL UNIQUE REFERENCES prediction_feedback (feedback_id),
			prediction_id           BIGINT NOT NULL REFERENCES maintenance_predictions (prediction_id),
			device_id               TEXT NOT NULL,
			input_snapshot          JSONB NOT NULL,
			predicted_probability   DOUBLE PRECISION NOT NULL,
			failure_type            TEXT NOT NULL,
			actual_days_until_event INTEGER,
			event_occurred          BOOLEAN NOT NULL,
			ready_for_training      BOOLEAN NOT NULL,
			weight                  DOUBLE PRECISION NOT NULL,
			used                    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at              TIMESTAMPTZ NOT NULL
		)`

	RetrainingRunsTableSQL = `
		CREATE TABLE IF NOT EXISTS retraining_runs (
			run_id             TEXT PRIMARY KEY,
			started_at         TIMESTAMPTZ NOT NULL,
			finished_at        TIMESTAMPTZ NOT NULL,
			training_data_size INTEGER NOT NULL,
			feedback_count     INTEGER NOT NULL,
			quality_delta      DOUBLE PRECISION NOT NULL,
			issues             TEXT[] NOT NULL DEFAULT '{}',
			model_updated      BOOLEAN NOT NULL,
			failed             BOOLEAN NOT NULL,
			fitted             BOOLEAN NOT NULL,
			parameters_version BIGINT
		)`

	ModelParametersTableSQL = `
		CREATE TABLE IF NOT EXISTS model_parameters (
			slot       TEXT PRIMARY KEY,
			version    BIGINT NOT NULL,
			params     JSONB NOT NULL,
			quality    DOUBLE PRECISION NOT NULL,
			trained_at TIMESTAMPTZ NOT NULL
		)`

	MaintenanceEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS device_maintenance_events (
			event_id     BIGSERIAL PRIMARY KEY,
			device_id    TEXT NOT NULL,
			failure_type TEXT NOT NULL,
			occurred_at  TIMESTAMPTZ NOT NULL
		)`
)

// AllTables 建表顺序（外键依赖在前）
func AllTables() []string {
	return []string{
		DevicesTableSQL,
		RawTelemetryTableSQL,
		RawTelemetryIndexSQL,
		CollectionRoundsTableSQL,
		CollectionRoundsIndexSQL,
		TelemetryAggregatesTableSQL,
		PredictionsTableSQL,
		PredictionsIndexSQL,
		FeedbackTableSQL,
		TrainingDataTableSQL,
		RetrainingRunsTableSQL,
		ModelParametersTableSQL,
		MaintenanceEventsTableSQL,
	}
}

// EnsureSchema 创建缺失的表
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range AllTables() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
