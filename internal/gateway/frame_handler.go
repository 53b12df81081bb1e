package gateway

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/framelink/internal/metrics"
	"github.com/taoyao-code/framelink/internal/protocol/frame"
	"github.com/taoyao-code/framelink/internal/sink"
	"github.com/taoyao-code/framelink/internal/tcpserver"
)

// publishTimeout 单帧遥测发布超时
const publishTimeout = 2 * time.Second

// NewFrameHandler 构建单通道帧处理器：解码 -> 指标 -> 发布遥测。
// 只有帧校验失败才返回错误（计入连接的连续错误数），发布失败仅记录日志。
func NewFrameHandler(channel string, codec *frame.Codec, out sink.Sink, appm *metrics.AppMetrics, logger *zap.Logger) tcpserver.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema := codec.Name()
	return func(cc *tcpserver.ConnContext, raw []byte) error {
		p, err := codec.Decode(raw)
		appm.ObserveDecode(schema, frame.ErrorKind(err))
		if err != nil {
			logger.Warn("frame rejected",
				zap.String("channel", channel),
				zap.String("schema", schema),
				zap.String("error_kind", frame.ErrorKind(err)),
				zap.String("remote_addr", cc.RemoteAddr().String()),
				zap.String("hex", hex.EncodeToString(raw)),
				zap.Error(err),
			)
			return err
		}

		if out == nil {
			return nil
		}
		t := sink.NewTelemetry(channel, schema, cc.RemoteAddr().String(), codec.Schema().Named(p))
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := out.Publish(ctx, t); err != nil {
			logger.Warn("publish telemetry failed",
				zap.String("channel", channel),
				zap.String("id", t.ID.String()),
				zap.Error(err),
			)
		}
		return nil
	}
}
