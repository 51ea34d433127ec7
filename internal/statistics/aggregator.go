package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"go.uber.org/zap"
)

// positiveThreshold 概率达到该值视为"预测会发生"
const positiveThreshold = 0.5

// 未指定时间范围时采集健康度统计的回看窗口
const defaultCollectionLookback = 24 * time.Hour

// Aggregator 统计聚合器（只读）
type Aggregator struct {
	config    *config.Config
	logger    *zap.Logger
	feedback  repository.FeedbackRepository
	telemetry repository.TelemetryRepository
	now       func() time.Time
}

// NewAggregator 创建统计聚合器
func NewAggregator(cfg *config.Config, feedback repository.FeedbackRepository, telemetry repository.TelemetryRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		config:    cfg,
		logger:    logger,
		feedback:  feedback,
		telemetry: telemetry,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type ratio struct {
	hits, total int
}

func (r ratio) value() float64 {
	if r.total == 0 {
		return 0
	}
	return float64(r.hits) / float64(r.total)
}

// AdvancedStatistics 时间范围内的准确率、提前量与反馈质量统计
// 准确率只计算已有真实结果的反馈
func (a *Aggregator) AdvancedStatistics(ctx context.Context, from, to *time.Time) (*models.Statistics, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, fmt.Errorf("invalid range: from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	outcomes, err := a.feedback.ListFeedbackOutcomes(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback outcomes: %w", err)
	}

	now := a.now()
	stats := &models.Statistics{
		From:              from,
		To:                to,
		TotalFeedback:     len(outcomes),
		AccuracyByType:    make(map[models.FailureType]float64),
		AccuracyByDevice:  make(map[string]float64),
		FeedbackByQuality: map[string]int{},
	}

	var overall ratio
	byType := make(map[models.FailureType]*ratio)
	byDevice := make(map[string]*ratio)
	var tp, fp, tn, fn int
	var leadSum float64
	var leadCount int

	for _, o := range outcomes {
		quality := models.ComputeFeedbackQuality(o.Feedback.Comment, o.Feedback.ProposedCorrection, a.config.Feedback.HighQualityCommentLength)
		stats.FeedbackByQuality[quality.String()]++
		if o.Feedback.IsRecent(now, a.config.Feedback.RecentWindow) {
			stats.RecentFeedback++
		}

		if o.Record == nil {
			continue
		}
		stats.ResolvedFeedback++

		hit := 0
		if o.Feedback.IsCorrect {
			hit = 1
		}
		overall.hits += hit
		overall.total++
		if byType[o.Prediction.FailureType] == nil {
			byType[o.Prediction.FailureType] = &ratio{}
		}
		byType[o.Prediction.FailureType].hits += hit
		byType[o.Prediction.FailureType].total++
		if byDevice[o.Prediction.DeviceID] == nil {
			byDevice[o.Prediction.DeviceID] = &ratio{}
		}
		byDevice[o.Prediction.DeviceID].hits += hit
		byDevice[o.Prediction.DeviceID].total++

		predictedPositive := o.Prediction.Probability >= positiveThreshold
		switch {
		case predictedPositive && o.Record.EventOccurred:
			tp++
		case predictedPositive && !o.Record.EventOccurred:
			fp++
		case !predictedPositive && o.Record.EventOccurred:
			fn++
		default:
			tn++
		}

		if o.Record.EventOccurred && o.Record.ActualDaysUntilEvent != nil {
			leadSum += float64(*o.Record.ActualDaysUntilEvent)
			leadCount++
		}
	}

	stats.OverallAccuracy = overall.value()
	for ft, r := range byType {
		stats.AccuracyByType[ft] = r.value()
	}
	for id, r := range byDevice {
		stats.AccuracyByDevice[id] = r.value()
	}
	stats.FalsePositiveRate = ratio{hits: fp, total: fp + tn}.value()
	stats.FalseNegativeRate = ratio{hits: fn, total: fn + tp}.value()
	if leadCount > 0 {
		stats.AverageAnticipationDays = leadSum / float64(leadCount)
	}

	if err := a.collectionHealth(ctx, stats, from, to, now); err != nil {
		return nil, err
	}

	a.logger.Debug("Computed advanced statistics",
		zap.Int("total_feedback", stats.TotalFeedback),
		zap.Int("resolved_feedback", stats.ResolvedFeedback),
		zap.Float64("overall_accuracy", stats.OverallAccuracy),
	)
	return stats, nil
}

func (a *Aggregator) collectionHealth(ctx context.Context, stats *models.Statistics, from, to *time.Time, now time.Time) error {
	if a.telemetry == nil {
		return nil
	}
	end := now
	if to != nil {
		end = *to
	}
	start := end.Add(-defaultCollectionLookback)
	if from != nil {
		start = *from
	}

	cs, err := a.telemetry.CollectionStats(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to load collection stats: %w", err)
	}
	stats.CollectionAttempts = cs.Total
	if cs.Total == 0 {
		return nil
	}
	rate := ratio{hits: cs.Succeeded, total: cs.Total}.value()
	avg := cs.AvgLatencyMillis
	stats.CollectionSuccessRate = &rate
	stats.AverageCollectionMillis = &avg
	return nil
}
