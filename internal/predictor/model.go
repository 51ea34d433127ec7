package predictor

import (
	"fmt"
	"math"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// Score 单个故障类型的评估结果
type Score struct {
	Probability float64
	Confidence  float64
}

// Model 可替换的预测模型
type Model interface {
	Name() string
	// DefaultParameters 尚未训练时使用的参数
	DefaultParameters() *models.ModelParameters
	// Score 评估设备最近的聚合（时间升序）；没有信号时返回 false
	Score(params *models.ModelParameters, ft models.FailureType, history []models.CleanTelemetryAggregate, historyWindows int) (Score, bool)
	// Fit 基于当前参数拟合新参数（不修改 current）
	Fit(current *models.ModelParameters, records []models.TrainingDataRecord) (*models.ModelParameters, error)
	// Evaluate 参数在训练集上的质量，[0,1]，越大越好
	Evaluate(params *models.ModelParameters, records []models.TrainingDataRecord) float64
}

// HeuristicModel 加权启发式模型：p = bias + signal·s + persistence·持续比例
type HeuristicModel struct{}

// NewHeuristicModel 创建启发式模型
func NewHeuristicModel() *HeuristicModel {
	return &HeuristicModel{}
}

// Name 模型名称
func (m *HeuristicModel) Name() string {
	return "weighted-heuristic"
}

// DefaultParameters 初始参数
func (m *HeuristicModel) DefaultParameters() *models.ModelParameters {
	return &models.ModelParameters{
		Version: 0,
		Weights: map[models.FailureType]models.FailureTypeWeights{
			models.FailureTonerDepletion: {Bias: 0.3, Signal: 0.7, Persistence: 0.1, Threshold: 25},
			models.FailurePaperDepletion: {Bias: 0.3, Signal: 0.7, Persistence: 0.1, Threshold: 20},
			models.FailureNetwork:        {Bias: 0.2, Signal: 0.6, Persistence: 0.2, Threshold: 10},
			models.FailureHardware:       {Bias: 0.2, Signal: 0.6, Persistence: 0.2, Threshold: 70},
		},
	}
}

// Score 评估
func (m *HeuristicModel) Score(params *models.ModelParameters, ft models.FailureType, history []models.CleanTelemetryAggregate, historyWindows int) (Score, bool) {
	if len(history) == 0 || params == nil {
		return Score{}, false
	}
	w, ok := params.Weights[ft]
	if !ok {
		return Score{}, false
	}

	latest := history[len(history)-1]
	s := signal(ft, latest, w.Threshold)
	if s <= 0 {
		return Score{}, false
	}

	withSignal := 0
	qualitySum := 0.0
	for _, a := range history {
		if signal(ft, a, w.Threshold) > 0 {
			withSignal++
		}
		qualitySum += a.QualityScore
	}
	persistence := float64(withSignal) / float64(len(history))

	if historyWindows <= 0 {
		historyWindows = 1
	}
	coverage := math.Min(1, float64(len(history))/float64(historyWindows))
	meanQuality := qualitySum / float64(len(history)) / 100

	return Score{
		Probability: models.Clamp01(w.Bias + w.Signal*s + w.Persistence*persistence),
		Confidence:  models.Clamp01(meanQuality * coverage),
	}, true
}

// signal 单个聚合窗口的信号强度 [0,1]
func signal(ft models.FailureType, a models.CleanTelemetryAggregate, threshold float64) float64 {
	switch ft {
	case models.FailureTonerDepletion:
		return below(a.AvgToner, threshold)
	case models.FailurePaperDepletion:
		return below(a.AvgPaper, threshold)
	case models.FailureNetwork:
		s := 0.0
		if a.DominantStatus == models.StatusOffline || a.DominantStatus == models.StatusError {
			s += 0.6
		}
		if threshold > 0 {
			s += 0.4 * math.Min(1, float64(a.TotalErrors)/threshold)
		}
		return models.Clamp01(s)
	case models.FailureHardware:
		s := 0.6*models.Clamp01((a.AvgTemperature-threshold)/30) +
			0.2*models.Clamp01((a.AvgCPU-80)/20) +
			0.2*models.Clamp01((a.AvgMemory-85)/15)
		return models.Clamp01(s)
	}
	return 0
}

// below 数值低于阈值的程度
func below(v, threshold float64) float64 {
	if threshold <= 0 || v >= threshold {
		return 0
	}
	return models.Clamp01((threshold - v) / threshold)
}

// Fit 按故障类型做加权最小二乘，拟合 bias 与 signal
func (m *HeuristicModel) Fit(current *models.ModelParameters, records []models.TrainingDataRecord) (*models.ModelParameters, error) {
	if current == nil {
		current = m.DefaultParameters()
	}
	next := current.Clone()
	next.Version = current.Version + 1
	next.TrainedAt = time.Now().UTC()

	byType := make(map[models.FailureType][]models.TrainingDataRecord)
	for _, r := range records {
		byType[r.FailureType] = append(byType[r.FailureType], r)
	}

	for ft, recs := range byType {
		w, ok := next.Weights[ft]
		if !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidFailureType, ft)
		}

		var sw, sx, sy, sxx, sxy float64
		for _, r := range recs {
			weight := r.Weight
			if weight <= 0 {
				weight = 1
			}
			x := signal(ft, r.InputSnapshot, w.Threshold)
			y := 0.0
			if r.EventOccurred {
				y = 1
			}
			if x > 0 {
				y -= w.Persistence
			}
			sw += weight
			sx += weight * x
			sy += weight * y
			sxx += weight * x * x
			sxy += weight * x * y
		}
		if sw == 0 {
			continue
		}

		meanX, meanY := sx/sw, sy/sw
		varX := sxx/sw - meanX*meanX
		if varX > 1e-9 {
			w.Signal = models.Clamp01((sxy/sw - meanX*meanY) / varX)
		}
		w.Bias = models.Clamp01(meanY - w.Signal*meanX)
		next.Weights[ft] = w
	}

	next.Quality = m.Evaluate(next, records)
	return next, nil
}

// Evaluate 1 - 加权 Brier 分数
func (m *HeuristicModel) Evaluate(params *models.ModelParameters, records []models.TrainingDataRecord) float64 {
	if params == nil || len(records) == 0 {
		return 0
	}

	var sw, loss float64
	for _, r := range records {
		w, ok := params.Weights[r.FailureType]
		if !ok {
			continue
		}
		weight := r.Weight
		if weight <= 0 {
			weight = 1
		}
		x := signal(r.FailureType, r.InputSnapshot, w.Threshold)
		p := 0.0
		if x > 0 {
			p = models.Clamp01(w.Bias + w.Signal*x + w.Persistence)
		}
		y := 0.0
		if r.EventOccurred {
			y = 1
		}
		loss += weight * (p - y) * (p - y)
		sw += weight
	}
	if sw == 0 {
		return 0
	}
	return models.Clamp01(1 - loss/sw)
}
