package models

import "time"

// DeviceStatus 设备状态标签
const (
	StatusIdle     = "idle"
	StatusPrinting = "printing"
	StatusWarning  = "warning"
	StatusError    = "error"
	StatusOffline  = "offline"
	StatusUnknown  = "unknown"
)

// Device 受监控的打印机（对应 devices 表）
type Device struct {
	DeviceID          string `json:"device_id" db:"device_id"`
	DeviceName        string `json:"device_name" db:"device_name"`
	Address           string `json:"address" db:"address"`
	Model             string `json:"model" db:"model"`
	MonitoringEnabled bool   `json:"monitoring_enabled" db:"monitoring_enabled"`
}

// RawTelemetrySample 单次原始采集样本（写入后不可修改）
type RawTelemetrySample struct {
	SampleID          string        `json:"sample_id" db:"sample_id"`
	DeviceID          string        `json:"device_id" db:"device_id"`
	Timestamp         time.Time     `json:"timestamp" db:"sampled_at"` // UTC
	Status            string        `json:"status" db:"status"`
	TonerLevel        float64       `json:"toner_level" db:"toner_level"`   // %
	PaperLevel        float64       `json:"paper_level" db:"paper_level"`   // %
	Temperature       float64       `json:"temperature" db:"temperature"`   // °C
	CPUUsage          float64       `json:"cpu_usage" db:"cpu_usage"`       // %
	MemoryUsage       float64       `json:"memory_usage" db:"memory_usage"` // %
	QueueDepth        int           `json:"queue_depth" db:"queue_depth"`
	ErrorCount        int           `json:"error_count" db:"error_count"`
	CollectionSuccess bool          `json:"collection_success" db:"collection_success"`
	CollectionLatency time.Duration `json:"collection_latency" db:"collection_latency_ms"`
}

// CleanTelemetryAggregate 清洗后的时间窗口聚合（不可修改）
type CleanTelemetryAggregate struct {
	DeviceID       string    `json:"device_id" db:"device_id"`
	WindowStart    time.Time `json:"window_start" db:"window_start"`
	WindowEnd      time.Time `json:"window_end" db:"window_end"`
	AvgToner       float64   `json:"avg_toner" db:"avg_toner"`
	AvgPaper       float64   `json:"avg_paper" db:"avg_paper"`
	AvgTemperature float64   `json:"avg_temperature" db:"avg_temperature"`
	AvgCPU         float64   `json:"avg_cpu" db:"avg_cpu"`
	AvgMemory      float64   `json:"avg_memory" db:"avg_memory"`
	AvgQueueDepth  float64   `json:"avg_queue_depth" db:"avg_queue_depth"`
	TotalErrors    int       `json:"total_errors" db:"total_errors"`
	SampleCount    int       `json:"sample_count" db:"sample_count"`
	QualityScore   float64   `json:"quality_score" db:"quality_score"` // 0-100
	DominantStatus string    `json:"dominant_status" db:"dominant_status"`
}

// CollectionResult 一轮采集结果
type CollectionResult struct {
	TotalDevices  int           `json:"total_devices"`
	ActiveDevices int           `json:"active_devices"`
	FailedDevices int           `json:"failed_devices"`
	Duration      time.Duration `json:"duration"`
}

// CollectionRound 一轮采集的汇总（原始样本清理后仍保留，供采集健康度统计）
type CollectionRound struct {
	RoundID          string    `json:"round_id" db:"round_id"`
	CollectedAt      time.Time `json:"collected_at" db:"collected_at"`
	Attempts         int       `json:"attempts" db:"attempts"`
	Succeeded        int       `json:"succeeded" db:"succeeded"`
	LatencySumMillis int64     `json:"latency_sum_ms" db:"latency_sum_ms"`
}

// CleanResult 一轮清洗结果
type CleanResult struct {
	TotalRaw     int                       `json:"total_raw"`
	TotalClean   int                       `json:"total_clean"`
	InvalidCount int                       `json:"invalid_count"`
	Duration     time.Duration             `json:"duration"`
	Aggregates   []CleanTelemetryAggregate `json:"aggregates"`
}
