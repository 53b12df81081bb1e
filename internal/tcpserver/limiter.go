package tcpserver

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ConnectionLimiter 并发连接数上限（信号量），可在多个通道间共享
type ConnectionLimiter struct {
	sem      chan struct{}
	maxConn  int
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter maxConn<=0 时取 1024
func NewConnectionLimiter(maxConn int) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = 1024
	}
	return &ConnectionLimiter{sem: make(chan struct{}, maxConn), maxConn: maxConn}
}

// TryAcquire 非阻塞获取许可，accept 循环使用
func (l *ConnectionLimiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		l.rejected.Add(1)
		return false
	}
}

// Acquire 阻塞获取许可，直到 ctx 结束
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		l.rejected.Add(1)
		return fmt.Errorf("connection limit exceeded: max=%d: %w", l.maxConn, ctx.Err())
	}
}

// Release 释放许可；未持有许可时为空操作
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

// Stats 获取统计信息
func (l *ConnectionLimiter) Stats() LimiterStats {
	cur := int(l.active.Load())
	return LimiterStats{
		MaxConnections:    l.maxConn,
		ActiveConnections: cur,
		RejectedTotal:     l.rejected.Load(),
		Utilization:       float64(cur) / float64(l.maxConn),
	}
}

// LimiterStats 限流器统计信息
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"` // 0.0 - 1.0
}
