package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher go-redis 的 PUBLISH 能力，*redis.Client 即满足
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink 将遥测 JSON 发布到 Redis 频道 <prefix><channel>
type RedisSink struct {
	pub    Publisher
	prefix string
}

func NewRedisSink(pub Publisher, prefix string) *RedisSink {
	return &RedisSink{pub: pub, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

// Topic 事件发布的 Redis 频道名
func (s *RedisSink) Topic(channel string) string { return s.prefix + channel }

func (s *RedisSink) Publish(ctx context.Context, t Telemetry) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	if err := s.pub.Publish(ctx, s.Topic(t.Channel), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
