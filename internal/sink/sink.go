package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/framelink/internal/metrics"
)

// LogSink 以结构化日志输出遥测
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, t Telemetry) error {
	s.logger.Info("telemetry",
		zap.String("id", t.ID.String()),
		zap.String("channel", t.Channel),
		zap.String("schema", t.Schema),
		zap.String("remote_addr", t.Remote),
		zap.Any("fields", t.Fields),
	)
	return nil
}

// Multi 依次发布到所有 sink，单个失败不影响其他
type Multi struct {
	sinks   []Sink
	metrics *metrics.AppMetrics
}

func NewMulti(m *metrics.AppMetrics, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, metrics: m}
}

func (m *Multi) Name() string { return "multi" }

// Publish 返回所有失败 sink 的合并错误
func (m *Multi) Publish(ctx context.Context, t Telemetry) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Publish(ctx, t)
		m.metrics.ObservePublish(s.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len sink 数量
func (m *Multi) Len() int { return len(m.sinks) }
