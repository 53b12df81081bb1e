package frame

import (
	"errors"
	"fmt"
)

// 解码失败的四种情形，按校验顺序排列
var (
	ErrLengthMismatch   = errors.New("frame length mismatch")
	ErrBadHeader        = errors.New("bad frame header")
	ErrBadFooter        = errors.New("bad frame footer")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

var (
	// ErrShortBuffer 游标读写越过缓冲区边界
	ErrShortBuffer = errors.New("short buffer")
	// ErrPayloadMismatch 载荷与 schema 的字段数量或类型不符
	ErrPayloadMismatch = errors.New("payload does not match schema")
	// ErrInvalidSchema schema 定义不合法
	ErrInvalidSchema = errors.New("invalid schema")
)

// FrameError 解码错误，携带期望值与实际值便于排查
type FrameError struct {
	Kind     error // 上面四个哨兵错误之一
	Schema   string
	Expected int
	Actual   int
}

func (e *FrameError) Error() string {
	switch e.Kind {
	case ErrLengthMismatch:
		return fmt.Sprintf("%s: %v: expected %d bytes, got %d", e.Schema, e.Kind, e.Expected, e.Actual)
	case ErrBadHeader, ErrBadFooter, ErrChecksumMismatch:
		return fmt.Sprintf("%s: %v: expected 0x%02X, got 0x%02X", e.Schema, e.Kind, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("%s: %v", e.Schema, e.Kind)
	}
}

func (e *FrameError) Unwrap() error { return e.Kind }

// ErrorKind 将错误映射为稳定的指标/日志标签
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLengthMismatch):
		return "length"
	case errors.Is(err, ErrBadHeader):
		return "header"
	case errors.Is(err, ErrBadFooter):
		return "footer"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	default:
		return "other"
	}
}
