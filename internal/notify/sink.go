package notify

import (
	"context"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// Alert 发送给通知渠道的预测告警
type Alert struct {
	Prediction                 models.MaintenancePrediction `json:"prediction"`
	Severity                   models.Severity              `json:"severity"`
	RequiresImmediateAttention bool                         `json:"requires_immediate_attention"`
	EmittedAt                  time.Time                    `json:"emitted_at"`
}

// NewAlert 由预测构建告警
func NewAlert(p models.MaintenancePrediction, now time.Time) Alert {
	return Alert{
		Prediction:                 p,
		Severity:                   p.Severity(),
		RequiresImmediateAttention: p.RequiresImmediateAttention(),
		EmittedAt:                  now,
	}
}

// Sink 通知渠道
type Sink interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}
