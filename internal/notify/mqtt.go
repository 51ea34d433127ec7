package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 发布到 {topic}/{device_id}
type MQTTSink struct {
	client Publisher
	topic  string
	qos    byte
}

// NewMQTTSink 创建 MQTT 通知渠道
func NewMQTTSink(client Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{
		client: client,
		topic:  topic,
		qos:    qos,
	}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Notify 发布告警
func (s *MQTTSink) Notify(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", s.topic, alert.Prediction.DeviceID)
	return s.client.Publish(topic, s.qos, false, payload)
}
