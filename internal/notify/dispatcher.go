package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/metrics"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// Dispatcher 把达到严重级别阈值的预测异步分发到所有渠道
type Dispatcher struct {
	sinks       []Sink
	minSeverity models.Severity
	timeout     time.Duration
	logger      *zap.Logger
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewDispatcher 创建分发器
func NewDispatcher(sinks []Sink, minSeverity models.Severity, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:       sinks,
		minSeverity: minSeverity,
		timeout:     timeout,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch 发送告警，不等待结果；返回实际分发的告警数
func (d *Dispatcher) Dispatch(predictions []models.MaintenancePrediction) int {
	if len(d.sinks) == 0 {
		return 0
	}

	sent := 0
	for _, p := range predictions {
		if p.Severity() < d.minSeverity {
			continue
		}
		alert := NewAlert(p, d.now())
		sent++
		for _, sink := range d.sinks {
			d.wg.Add(1)
			go d.deliver(sink, alert)
		}
	}
	return sent
}

func (d *Dispatcher) deliver(sink Sink, alert Alert) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Notify(ctx, alert); err != nil {
		metrics.NotificationsSent.WithLabelValues(sink.Name(), metrics.ResultFailure).Inc()
		d.logger.Warn("Failed to deliver alert",
			zap.String("sink", sink.Name()),
			zap.String("device_id", alert.Prediction.DeviceID),
			zap.String("failure_type", string(alert.Prediction.FailureType)),
			zap.Error(err),
		)
		return
	}
	metrics.NotificationsSent.WithLabelValues(sink.Name(), metrics.ResultSuccess).Inc()
}

// Wait 等待已发出的告警投递完成
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
