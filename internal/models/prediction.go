package models

import (
	"fmt"
	"math"
	"time"
)

// FailureType 故障类型
type FailureType string

const (
	FailureTonerDepletion FailureType = "toner-depletion"
	FailurePaperDepletion FailureType = "paper-depletion"
	FailureNetwork        FailureType = "network-failure"
	FailureHardware       FailureType = "hardware-failure"
)

// AllFailureTypes 全部故障类型（评估顺序固定）
var AllFailureTypes = []FailureType{
	FailureTonerDepletion,
	FailurePaperDepletion,
	FailureNetwork,
	FailureHardware,
}

// ParseFailureType 校验并解析故障类型
func ParseFailureType(s string) (FailureType, error) {
	for _, ft := range AllFailureTypes {
		if string(ft) == s {
			return ft, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFailureType, s)
}

// Severity 严重级别
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// ParseSeverity 解析严重级别名称
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "Low":
		return SeverityLow, nil
	case "Medium":
		return SeverityMedium, nil
	case "High":
		return SeverityHigh, nil
	case "Critical":
		return SeverityCritical, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", s)
}

// MarshalText 以名称形式序列化
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// 严重级别分界点
const (
	CriticalProbability = 0.85
	CriticalMaxDays     = 3
	HighProbability     = 0.6
	MediumProbability   = 0.35
)

// ComputeSeverity 根据概率与剩余天数计算严重级别（纯函数）
func ComputeSeverity(probability float64, daysUntilEvent int) Severity {
	switch {
	case probability >= CriticalProbability && daysUntilEvent <= CriticalMaxDays:
		return SeverityCritical
	case probability >= HighProbability:
		return SeverityHigh
	case probability >= MediumProbability:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RequiresImmediateAttention 仅 Critical 需要立即处理
func RequiresImmediateAttention(probability float64, daysUntilEvent int) bool {
	return ComputeSeverity(probability, daysUntilEvent) == SeverityCritical
}

// DaysUntilEvent 由概率与预测范围推导剩余天数：概率越高天数越少
func DaysUntilEvent(probability float64, horizon time.Duration) int {
	p := Clamp01(probability)
	horizonDays := horizon.Hours() / 24
	if p >= 1 {
		return 0
	}
	days := int(math.Ceil(horizonDays*(1-p) - 1e-9))
	if days < 1 {
		days = 1
	}
	return days
}

// MaintenancePrediction 维护预测（创建后不可修改，新预测取代旧预测）
type MaintenancePrediction struct {
	PredictionID      int64       `json:"prediction_id" db:"prediction_id"`
	DeviceID          string      `json:"device_id" db:"device_id"`
	FailureType       FailureType `json:"failure_type" db:"failure_type"`
	Probability       float64     `json:"probability" db:"probability"`
	Confidence        float64     `json:"confidence" db:"confidence"`
	EstimatedDate     time.Time   `json:"estimated_date" db:"estimated_date"`
	DaysUntilEvent    int         `json:"days_until_event" db:"days_until_event"`
	RecommendedAction string      `json:"recommended_action" db:"recommended_action"`
	ModelVersion      int64       `json:"model_version" db:"model_version"`
	HorizonDays       int         `json:"horizon_days" db:"horizon_days"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`

	// InputSnapshot 生成预测时使用的最新聚合
	InputSnapshot *CleanTelemetryAggregate `json:"input_snapshot,omitempty" db:"input_snapshot"`
}

// Severity 派生严重级别（不存储）
func (p *MaintenancePrediction) Severity() Severity {
	return ComputeSeverity(p.Probability, p.DaysUntilEvent)
}

// RequiresImmediateAttention 是否需要立即处理
func (p *MaintenancePrediction) RequiresImmediateAttention() bool {
	return p.Severity() == SeverityCritical
}

// Clamp01 将数值限制在 [0,1]
func Clamp01(v float64) float64 {
	if v != v || v < 0 { // NaN 视为 0
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
