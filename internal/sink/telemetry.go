// Package sink 将解码后的帧作为遥测事件发布到下游
package sink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Telemetry 一帧解码结果
type Telemetry struct {
	ID         uuid.UUID      `json:"id"`
	Channel    string         `json:"channel"`
	Schema     string         `json:"schema"`
	Remote     string         `json:"remote"`
	ReceivedAt time.Time      `json:"received_at"`
	Fields     map[string]any `json:"fields"`
}

// NewTelemetry 生成带唯一 ID 的事件
func NewTelemetry(channel, schema, remote string, fields map[string]any) Telemetry {
	return Telemetry{
		ID:         uuid.New(),
		Channel:    channel,
		Schema:     schema,
		Remote:     remote,
		ReceivedAt: time.Now().UTC(),
		Fields:     fields,
	}
}

// Sink 遥测发布目标
type Sink interface {
	Name() string
	Publish(ctx context.Context, t Telemetry) error
}
