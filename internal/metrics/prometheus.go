package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "printer_maintenance"

var (
	// SamplesCollected 采集结果（result=success|failure）
	SamplesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_collected_total",
			Help:      "Telemetry samples collected by result",
		},
		[]string{"result"},
	)

	// CollectionLatency 单设备采集耗时
	CollectionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_latency_seconds",
			Help:      "Per-device telemetry collection latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// InvalidSamples 清洗时丢弃的样本
	InvalidSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_samples_total",
			Help:      "Raw samples rejected by the cleaner",
		},
	)

	// AggregatesProduced 清洗产生的聚合
	AggregatesProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_produced_total",
			Help:      "Clean telemetry aggregates produced",
		},
	)

	// PredictionsEmitted 预测（按故障类型与严重级别）
	PredictionsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Maintenance predictions emitted",
		},
		[]string{"failure_type", "severity"},
	)

	// FeedbackSubmitted 反馈（按质量）
	FeedbackSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Prediction feedback submitted by quality tier",
		},
		[]string{"quality"},
	)

	// TrainingRecordsMaterialized 物化的训练记录
	TrainingRecordsMaterialized = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_records_total",
			Help:      "Training data records materialized",
		},
	)

	// RetrainingRuns 重新训练（outcome=updated|regression|insufficient|failed|busy）
	RetrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retraining_runs_total",
			Help:      "Retraining runs by outcome",
		},
		[]string{"outcome"},
	)

	// ModelVersion 当前生效参数版本
	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_version",
			Help:      "Version of the live model parameters",
		},
	)

	// NotificationsSent 通知（按 sink 与结果）
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications delivered by sink and result",
		},
		[]string{"sink", "result"},
	)
)

// 结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
