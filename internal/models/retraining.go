package models

import "time"

// ModelParameters 模型参数（整体原子替换，不原地修改）
type ModelParameters struct {
	Version   int64                              `json:"version"`
	Weights   map[FailureType]FailureTypeWeights `json:"weights"`
	Quality   float64                            `json:"quality"`
	TrainedAt time.Time                          `json:"trained_at"`
}

// FailureTypeWeights 单个故障类型的参数
type FailureTypeWeights struct {
	Bias        float64 `json:"bias"`
	Signal      float64 `json:"signal"`
	Persistence float64 `json:"persistence"`
	Threshold   float64 `json:"threshold"`
}

// Clone 深拷贝
func (p *ModelParameters) Clone() *ModelParameters {
	if p == nil {
		return nil
	}
	c := *p
	c.Weights = make(map[FailureType]FailureTypeWeights, len(p.Weights))
	for k, v := range p.Weights {
		c.Weights[k] = v
	}
	return &c
}

// TrainingResult 一次拟合的结果
type TrainingResult struct {
	TrainingDataSize int              `json:"training_data_size"`
	Duration         time.Duration    `json:"duration"`
	FitQuality       float64          `json:"fit_quality"`
	Parameters       *ModelParameters `json:"-"`
}

// RetrainingRun 一次重新训练记录（只追加，不覆盖）
type RetrainingRun struct {
	RunID             string    `json:"run_id" db:"run_id"`
	StartedAt         time.Time `json:"started_at" db:"started_at"`
	FinishedAt        time.Time `json:"finished_at" db:"finished_at"`
	TrainingDataSize  int       `json:"training_data_size" db:"training_data_size"`
	FeedbackCount     int       `json:"feedback_count" db:"feedback_count"`
	QualityDelta      float64   `json:"quality_delta" db:"quality_delta"`
	Issues            []string  `json:"issues" db:"issues"`
	ModelUpdated      bool      `json:"model_updated" db:"model_updated"`
	Failed            bool      `json:"failed" db:"failed"`
	Fitted            bool      `json:"fitted" db:"fitted"`
	ParametersVersion *int64    `json:"parameters_version,omitempty" db:"parameters_version"`
}

// Issue 消息
const (
	IssueInsufficientData = "insufficient training data"
	IssueRegression       = "quality regression: parameters not installed"
	IssueStoreFailure     = "store failure"
)

// Statistics 高级统计
type Statistics struct {
	From                    *time.Time              `json:"from,omitempty"`
	To                      *time.Time              `json:"to,omitempty"`
	TotalFeedback           int                     `json:"total_feedback"`
	ResolvedFeedback        int                     `json:"resolved_feedback"`
	OverallAccuracy         float64                 `json:"overall_accuracy"`
	AccuracyByType          map[FailureType]float64 `json:"accuracy_by_type"`
	AccuracyByDevice        map[string]float64      `json:"accuracy_by_device"`
	AverageAnticipationDays float64                 `json:"average_anticipation_days"`
	FalsePositiveRate       float64                 `json:"false_positive_rate"`
	FalseNegativeRate       float64                 `json:"false_negative_rate"`
	FeedbackByQuality       map[string]int          `json:"feedback_by_quality"`
	RecentFeedback          int                     `json:"recent_feedback"`
	CollectionAttempts      int                     `json:"collection_attempts"`
	CollectionSuccessRate   *float64                `json:"collection_success_rate"` // 区间内无采集记录时为 nil
	AverageCollectionMillis *float64                `json:"average_collection_ms"`
}
