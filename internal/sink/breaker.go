package sink

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen 熔断期间直接拒绝发布
var ErrBreakerOpen = errors.New("sink circuit breaker is open")

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常放行
	BreakerOpen                         // 拒绝所有发布
	BreakerHalfOpen                     // 放行一次试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker 连续失败 threshold 次后熔断，cooldown 后放行一次试探，成功即恢复
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	trips     int64
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow 判断本次是否放行
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		// 同一时刻只允许一个试探
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record 记录放行后的结果
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		b.probing = false
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		if b.state != BreakerOpen {
			b.trips++
		}
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.probing = false
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips 累计熔断次数
func (b *Breaker) Trips() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// Guarded 受熔断保护的 sink，熔断期间 Publish 直接返回 ErrBreakerOpen
type Guarded struct {
	Sink
	breaker *Breaker
}

func Guard(s Sink, b *Breaker) *Guarded {
	return &Guarded{Sink: s, breaker: b}
}

func (g *Guarded) Publish(ctx context.Context, t Telemetry) error {
	if err := g.breaker.Allow(); err != nil {
		return err
	}
	err := g.Sink.Publish(ctx, t)
	g.breaker.Record(err)
	return err
}

// Breaker 返回内部熔断器
func (g *Guarded) Breaker() *Breaker { return g.breaker }
