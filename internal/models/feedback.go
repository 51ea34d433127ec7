package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// FeedbackQuality 反馈质量等级
type FeedbackQuality int

const (
	QualityLow FeedbackQuality = iota
	QualityMedium
	QualityHigh
)

func (q FeedbackQuality) String() string {
	switch q {
	case QualityHigh:
		return "High"
	case QualityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// MarshalText 以名称形式序列化
func (q FeedbackQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// DefaultHighQualityCommentLength High 质量评论长度阈值（严格大于）
const DefaultHighQualityCommentLength = 40

// PredictionFeedback 对预测的人工反馈（不可修改）
type PredictionFeedback struct {
	FeedbackID         int64     `json:"feedback_id" db:"feedback_id"`
	PredictionID       int64     `json:"prediction_id" db:"prediction_id"`
	IsCorrect          bool      `json:"is_correct" db:"is_correct"`
	Comment            string    `json:"comment" db:"comment"`
	ProposedCorrection string    `json:"proposed_correction,omitempty" db:"proposed_correction"`
	Author             string    `json:"author" db:"author"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// ComputeFeedbackQuality 计算反馈质量（纯函数）
// High: 评论长度 > minLength 且有修正建议
// Medium: 有评论
// Low: 无评论
func ComputeFeedbackQuality(comment, correction string, minLength int) FeedbackQuality {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return QualityLow
	}
	if utf8.RuneCountInString(comment) > minLength && strings.TrimSpace(correction) != "" {
		return QualityHigh
	}
	return QualityMedium
}

// Quality 使用默认阈值计算质量
func (f *PredictionFeedback) Quality() FeedbackQuality {
	return ComputeFeedbackQuality(f.Comment, f.ProposedCorrection, DefaultHighQualityCommentLength)
}

// TimeSinceCreation 距创建的时长（显式传入 now）
func (f *PredictionFeedback) TimeSinceCreation(now time.Time) time.Duration {
	return now.Sub(f.CreatedAt)
}

// IsRecent 是否在窗口内（默认 24h）
func (f *PredictionFeedback) IsRecent(now time.Time, window time.Duration) bool {
	return f.TimeSinceCreation(now) <= window
}

// TrainingDataRecord 由反馈+真实结果物化的训练数据
type TrainingDataRecord struct {
	RecordID             int64                   `json:"record_id" db:"record_id"`
	FeedbackID           int64                   `json:"feedback_id" db:"feedback_id"`
	PredictionID         int64                   `json:"prediction_id" db:"prediction_id"`
	DeviceID             string                  `json:"device_id" db:"device_id"`
	InputSnapshot        CleanTelemetryAggregate `json:"input_snapshot" db:"input_snapshot"`
	PredictedProbability float64                 `json:"predicted_probability" db:"predicted_probability"`
	FailureType          FailureType             `json:"failure_type" db:"failure_type"`
	ActualDaysUntilEvent *int                    `json:"actual_days_until_event,omitempty" db:"actual_days_until_event"`
	EventOccurred        bool                    `json:"event_occurred" db:"event_occurred"`
	ReadyForTraining     bool                    `json:"ready_for_training" db:"ready_for_training"`
	Weight               float64                 `json:"weight" db:"weight"`
	Used                 bool                    `json:"used" db:"used"`
	CreatedAt            time.Time               `json:"created_at" db:"created_at"`
}

// TrainingWeight 训练权重：质量越高权重越大，否定反馈略加权
func TrainingWeight(quality FeedbackQuality, isCorrect bool) float64 {
	w := 1.0
	switch quality {
	case QualityHigh:
		w = 1.5
	case QualityMedium:
		w = 1.2
	}
	if !isCorrect {
		w += 0.25
	}
	return w
}

// Outcome 设备实际发生的结果（由外部结果跟踪器提供）
type Outcome struct {
	DaysUntilEvent *int // 事件未发生时为 nil
	Occurred       bool
}
