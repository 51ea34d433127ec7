package cleaner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/metrics"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// 质量评分权重
const (
	retainedWeight = 0.5
	coverageWeight = 0.3
	recencyWeight  = 0.2

	// 距批次最新样本超过 staleWindows 个窗口时 recency 为 0
	staleWindows = 4
)

// Cleaner 遥测清洗器
type Cleaner struct {
	config *config.Config
	logger *zap.Logger
}

// NewCleaner 创建清洗器
func NewCleaner(cfg *config.Config, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		config: cfg,
		logger: logger,
	}
}

type groupKey struct {
	deviceID    string
	windowStart time.Time
}

// Clean 按设备与固定时间窗口聚合原始样本
// 采集失败的记录不是样本，不计入 TotalRaw
func (c *Cleaner) Clean(raw []models.RawTelemetrySample) models.CleanResult {
	start := time.Now()
	window := c.window()

	groups := make(map[groupKey][]models.RawTelemetrySample)
	var latest time.Time
	totalRaw := 0
	for _, s := range raw {
		if !s.CollectionSuccess {
			continue
		}
		totalRaw++
		ts := s.Timestamp.UTC()
		key := groupKey{deviceID: s.DeviceID, windowStart: ts.Truncate(window)}
		groups[key] = append(groups[key], s)
		if ts.After(latest) {
			latest = ts
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].deviceID != keys[j].deviceID {
			return keys[i].deviceID < keys[j].deviceID
		}
		return keys[i].windowStart.Before(keys[j].windowStart)
	})

	result := models.CleanResult{TotalRaw: totalRaw}
	for _, key := range keys {
		samples := groups[key]
		sort.Slice(samples, func(i, j int) bool {
			if !samples[i].Timestamp.Equal(samples[j].Timestamp) {
				return samples[i].Timestamp.Before(samples[j].Timestamp)
			}
			return samples[i].SampleID < samples[j].SampleID
		})

		valid := samples[:0:0]
		for _, s := range samples {
			if err := c.validate(s); err != nil {
				result.InvalidCount++
				c.logger.Debug("Dropping invalid sample",
					zap.String("device_id", s.DeviceID),
					zap.String("sample_id", s.SampleID),
					zap.Error(err),
				)
				continue
			}
			valid = append(valid, s)
		}
		if len(valid) == 0 {
			continue
		}

		result.Aggregates = append(result.Aggregates, c.aggregate(key, valid, len(samples), latest))
	}

	result.TotalClean = len(result.Aggregates)
	result.Duration = time.Since(start)

	metrics.InvalidSamples.Add(float64(result.InvalidCount))
	metrics.AggregatesProduced.Add(float64(result.TotalClean))

	c.logger.Info("Completed telemetry cleaning",
		zap.Int("total_raw", result.TotalRaw),
		zap.Int("total_clean", result.TotalClean),
		zap.Int("invalid_count", result.InvalidCount),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// validate 校验样本数值是否在物理范围内
func (c *Cleaner) validate(s models.RawTelemetrySample) error {
	gauges := []struct {
		name  string
		value float64
	}{
		{"toner_level", s.TonerLevel},
		{"paper_level", s.PaperLevel},
		{"cpu_usage", s.CPUUsage},
		{"memory_usage", s.MemoryUsage},
	}
	for _, g := range gauges {
		if math.IsNaN(g.value) || g.value < 0 || g.value > 100 {
			return fmt.Errorf("%s out of range: %v", g.name, g.value)
		}
	}

	minT, maxT := c.config.Cleaner.MinTemperature, c.config.Cleaner.MaxTemperature
	if math.IsNaN(s.Temperature) || s.Temperature < minT || s.Temperature > maxT {
		return fmt.Errorf("temperature out of range: %v", s.Temperature)
	}
	if s.QueueDepth < 0 {
		return fmt.Errorf("negative queue depth: %d", s.QueueDepth)
	}
	if s.ErrorCount < 0 {
		return fmt.Errorf("negative error count: %d", s.ErrorCount)
	}
	return nil
}

func (c *Cleaner) aggregate(key groupKey, valid []models.RawTelemetrySample, groupSize int, latest time.Time) models.CleanTelemetryAggregate {
	window := c.window()
	agg := models.CleanTelemetryAggregate{
		DeviceID:    key.deviceID,
		WindowStart: key.windowStart,
		WindowEnd:   key.windowStart.Add(window),
		SampleCount: len(valid),
	}

	statusCounts := make(map[string]int)
	var toner, paper, temp, cpu, mem, queue float64
	var newest time.Time
	for _, s := range valid {
		toner += s.TonerLevel
		paper += s.PaperLevel
		temp += s.Temperature
		cpu += s.CPUUsage
		mem += s.MemoryUsage
		queue += float64(s.QueueDepth)
		agg.TotalErrors += s.ErrorCount
		statusCounts[s.Status]++
		if s.Timestamp.After(newest) {
			newest = s.Timestamp
		}
	}

	n := float64(len(valid))
	agg.AvgToner = round2(toner / n)
	agg.AvgPaper = round2(paper / n)
	agg.AvgTemperature = round2(temp / n)
	agg.AvgCPU = round2(cpu / n)
	agg.AvgMemory = round2(mem / n)
	agg.AvgQueueDepth = round2(queue / n)
	agg.DominantStatus = dominantStatus(statusCounts)
	agg.QualityScore = c.qualityScore(len(valid), groupSize, latest.Sub(newest))
	return agg
}

// qualityScore 0-100：保留比例、样本覆盖率、新鲜度
func (c *Cleaner) qualityScore(retained, total int, age time.Duration) float64 {
	retainedFrac := float64(retained) / float64(total)

	expected := c.config.Cleaner.ExpectedSamples
	if expected <= 0 {
		expected = 1
	}
	coverage := math.Min(1, float64(retained)/float64(expected))

	stale := float64(staleWindows) * float64(c.window())
	recency := 1 - float64(age)/stale
	recency = math.Max(0, math.Min(1, recency))

	score := 100 * (retainedWeight*retainedFrac + coverageWeight*coverage + recencyWeight*recency)
	return round2(math.Max(0, math.Min(100, score)))
}

func (c *Cleaner) window() time.Duration {
	if c.config.Cleaner.Window <= 0 {
		return 15 * time.Minute
	}
	return c.config.Cleaner.Window
}

// dominantStatus 出现次数最多的状态；并列时取字典序最小
func dominantStatus(counts map[string]int) string {
	best, bestN := "", -1
	for status, n := range counts {
		if n > bestN || (n == bestN && status < best) {
			best, bestN = status, n
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
