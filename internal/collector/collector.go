package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/metrics"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector 遥测采集器
type Collector struct {
	config  *config.Config
	logger  *zap.Logger
	source  TelemetrySource
	devices repository.DevicesRepository
	store   repository.TelemetryRepository // 可为 nil（只用内存缓冲）
	buffer  *RecentBuffer
	now     func() time.Time
}

// NewCollector 创建采集器
func NewCollector(
	cfg *config.Config,
	source TelemetrySource,
	devices repository.DevicesRepository,
	store repository.TelemetryRepository,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		config:  cfg,
		logger:  logger,
		source:  source,
		devices: devices,
		store:   store,
		buffer:  NewRecentBuffer(cfg.Collector.Retention),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Buffer 最近样本缓冲
func (c *Collector) Buffer() *RecentBuffer {
	return c.buffer
}

// CollectAll 采集所有受监控设备；单设备失败只计数，不影响其它设备
func (c *Collector) CollectAll(ctx context.Context) (models.CollectionResult, error) {
	start := time.Now()

	devices, err := c.devices.ListMonitoredDevices(ctx)
	if err != nil {
		return models.CollectionResult{}, fmt.Errorf("failed to list devices: %w", err)
	}

	workers := c.config.Collector.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		active int64
		failed int64
		mu     sync.Mutex
		batch  = make([]models.RawTelemetrySample, 0, len(devices))
	)
	round := models.CollectionRound{
		RoundID:     uuid.NewString(),
		CollectedAt: c.now(),
		Attempts:    len(devices),
	}

	// errgroup 只用于限制并发：单设备失败计入 failed，worker 不返回错误
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, device := range devices {
		device := device
		g.Go(func() error {
			sample, err := c.CollectOne(ctx, device)
			mu.Lock()
			batch = append(batch, sample)
			mu.Unlock()
			if err != nil {
				atomic.AddInt64(&failed, 1)
			} else {
				atomic.AddInt64(&active, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.CollectionResult{TotalDevices: len(devices)}, fmt.Errorf("collection workers failed: %w", err)
	}

	round.Succeeded = int(active)
	for _, s := range batch {
		round.LatencySumMillis += s.CollectionLatency.Milliseconds()
	}

	result := models.CollectionResult{
		TotalDevices:  len(devices),
		ActiveDevices: int(active),
		FailedDevices: int(failed),
		Duration:      time.Since(start),
	}

	c.logger.Info("Completed telemetry collection",
		zap.Int("total_devices", result.TotalDevices),
		zap.Int("success_count", result.ActiveDevices),
		zap.Int("error_count", result.FailedDevices),
		zap.Duration("duration", result.Duration),
	)

	if c.store != nil && len(batch) > 0 {
		if err := c.store.AppendSamples(ctx, batch); err != nil {
			return result, fmt.Errorf("failed to persist samples: %w", err)
		}
		if err := c.store.RecordCollectionRound(ctx, round); err != nil {
			return result, fmt.Errorf("failed to record collection round: %w", err)
		}
	}

	return result, nil
}

// CollectOne 采集单台设备
// 总是返回带延迟的样本记录；失败时 CollectionSuccess 为 false 且不进入缓冲
func (c *Collector) CollectOne(ctx context.Context, device models.Device) (models.RawTelemetrySample, error) {
	timeout := c.config.Collector.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sample, err := c.sampleSafely(sctx, device)
	latency := time.Since(start)
	metrics.CollectionLatency.Observe(latency.Seconds())

	if err != nil {
		metrics.SamplesCollected.WithLabelValues(metrics.ResultFailure).Inc()
		c.logger.Warn("Failed to collect telemetry",
			zap.String("device_id", device.DeviceID),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return models.RawTelemetrySample{
			SampleID:          uuid.NewString(),
			DeviceID:          device.DeviceID,
			Timestamp:         c.now(),
			Status:            models.StatusUnknown,
			CollectionSuccess: false,
			CollectionLatency: latency,
		}, err
	}

	out := *sample
	out.DeviceID = device.DeviceID
	if out.SampleID == "" {
		out.SampleID = uuid.NewString()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = c.now()
	}
	out.Timestamp = out.Timestamp.UTC()
	if out.Status == "" {
		out.Status = models.StatusUnknown
	}
	out.CollectionSuccess = true
	out.CollectionLatency = latency

	c.buffer.Append(out)
	metrics.SamplesCollected.WithLabelValues(metrics.ResultSuccess).Inc()
	return out, nil
}

// sampleSafely 把来源的 panic 转成普通失败
func (c *Collector) sampleSafely(ctx context.Context, device models.Device) (sample *models.RawTelemetrySample, err error) {
	defer func() {
		if r := recover(); r != nil {
			sample = nil
			err = fmt.Errorf("telemetry source panic: %v", r)
		}
	}()

	sample, err = c.source.Sample(ctx, device)
	if err == nil && sample == nil {
		err = fmt.Errorf("telemetry source returned no sample")
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return sample, err
}

// CleanupRecent 清理保留窗口之外的样本（内存缓冲与持久化存储）
func (c *Collector) CleanupRecent(ctx context.Context) (int, error) {
	now := c.now()
	removed := c.buffer.Cleanup(now)

	if c.store != nil {
		purged, err := c.store.PurgeSamplesBefore(ctx, now.Add(-c.config.Collector.Retention))
		if err != nil {
			return removed, fmt.Errorf("failed to purge raw samples: %w", err)
		}
		c.logger.Debug("Purged raw samples",
			zap.Int("buffer_removed", removed),
			zap.Int64("store_removed", purged),
		)
	}
	return removed, nil
}

// Recent 返回缓冲中 [from, to) 内的样本
func (c *Collector) Recent(from, to time.Time) []models.RawTelemetrySample {
	return c.buffer.Window(from, to)
}
