package notify

import (
	"context"

	rediscommon "github.com/Demiurgo9404/monitor-impresoras-sub002/internal/common/redis"
	"github.com/go-redis/redis/v8"
)

// StreamSink 写入 Redis Stream，供下游消费者读取
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink 创建 Redis Stream 通知渠道
func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *StreamSink) Name() string { return "redis-stream" }

// Notify 追加告警
func (s *StreamSink) Notify(ctx context.Context, alert Alert) error {
	_, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, alert)
	return err
}
