package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TelemetrySource 设备遥测来源（协议对采集器不透明）
type TelemetrySource interface {
	Sample(ctx context.Context, device models.Device) (*models.RawTelemetrySample, error)
}

// TelemetrySourceFunc 函数适配器
type TelemetrySourceFunc func(ctx context.Context, device models.Device) (*models.RawTelemetrySample, error)

// Sample 实现 TelemetrySource
func (f TelemetrySourceFunc) Sample(ctx context.Context, device models.Device) (*models.RawTelemetrySample, error) {
	return f(ctx, device)
}

// gatewayReading 设备网关返回的读数
type gatewayReading struct {
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	TonerLevel  float64   `json:"toner_level"`
	PaperLevel  float64   `json:"paper_level"`
	Temperature float64   `json:"temperature"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	QueueDepth  int       `json:"queue_depth"`
	ErrorCount  int       `json:"error_count"`
}

// HTTPSource 通过设备网关 HTTP 接口读取遥测
type HTTPSource struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPSource 创建 HTTP 遥测来源
func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json")

	return &HTTPSource{
		httpClient: client,
		logger:     logger,
	}
}

// Sample 读取单台设备的当前读数
func (s *HTTPSource) Sample(ctx context.Context, device models.Device) (*models.RawTelemetrySample, error) {
	var reading gatewayReading
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("deviceID", device.DeviceID).
		SetResult(&reading).
		Get("/devices/{deviceID}/telemetry")
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry gateway: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("telemetry gateway returned %d for %s", resp.StatusCode(), device.DeviceID)
	}

	s.logger.Debug("Telemetry reading received",
		zap.String("device_id", device.DeviceID),
		zap.String("status", reading.Status),
	)

	return &models.RawTelemetrySample{
		DeviceID:    device.DeviceID,
		Timestamp:   reading.Timestamp.UTC(),
		Status:      reading.Status,
		TonerLevel:  reading.TonerLevel,
		PaperLevel:  reading.PaperLevel,
		Temperature: reading.Temperature,
		CPUUsage:    reading.CPUUsage,
		MemoryUsage: reading.MemoryUsage,
		QueueDepth:  reading.QueueDepth,
		ErrorCount:  reading.ErrorCount,
	}, nil
}
