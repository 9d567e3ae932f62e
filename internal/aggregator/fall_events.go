package aggregator

import (
	"context"
	"fmt"

	"wisefido-vitals/internal/models"
	rediscommon "wisefido-vitals/owl-common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisFallEventPublisher 将跌倒事件写入 Redis Stream，供报警服务消费
type RedisFallEventPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisFallEventPublisher 创建跌倒事件发布器
func NewRedisFallEventPublisher(client *redis.Client, stream string, maxLen int64) *RedisFallEventPublisher {
	return &RedisFallEventPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// PublishFallEvent 发布跌倒事件（自动生成 event_id）
func (p *RedisFallEventPublisher) PublishFallEvent(ctx context.Context, event *models.FallEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if _, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, event); err != nil {
		return fmt.Errorf("failed to publish fall event to %s: %w", p.stream, err)
	}
	return nil
}
