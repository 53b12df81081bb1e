package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/framelink/internal/gateway"
	"github.com/taoyao-code/framelink/internal/sink"
)

// StatsSource gateway.Gateway 满足该接口
type StatsSource interface {
	Stats() gateway.Stats
}

// GatewayChecker 通道启动状态与连接数利用率
type GatewayChecker struct {
	source  StatsSource
	started atomic.Bool
}

func NewGatewayChecker(source StatsSource) *GatewayChecker {
	return &GatewayChecker{source: source}
}

// MarkStarted 通道全部启动后调用
func (c *GatewayChecker) MarkStarted() { c.started.Store(true) }

func (c *GatewayChecker) Name() string { return "tcp" }

func (c *GatewayChecker) Check(context.Context) CheckResult {
	start := time.Now()
	if !c.started.Load() {
		return CheckResult{Status: StatusUnhealthy, Message: "channels not started", Latency: time.Since(start)}
	}

	st := c.source.Stats()
	util := st.Connections.Utilization
	status, message := StatusHealthy, "ok"
	switch {
	case util > 0.95:
		status, message = StatusUnhealthy, "connection limit near exhausted"
	case util > 0.8:
		status, message = StatusDegraded, "high connection usage"
	}

	details := map[string]any{
		"channels":           len(st.Channels),
		"active_connections": st.Connections.ActiveConnections,
		"max_connections":    st.Connections.MaxConnections,
		"rejected_total":     st.Connections.RejectedTotal,
		"utilization":        fmt.Sprintf("%.1f%%", util*100),
	}
	if st.AcceptRate != nil {
		details["rate_rejected_total"] = st.AcceptRate.RejectedTotal
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}

// BreakerChecker sink 熔断状态；熔断只影响遥测外发，报告为 degraded
type BreakerChecker struct {
	name    string
	breaker *sink.Breaker
}

func NewBreakerChecker(name string, b *sink.Breaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: b}
}

func (c *BreakerChecker) Name() string { return "sink_" + c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	state := c.breaker.State()
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{"state": state.String(), "trips": c.breaker.Trips()},
	}
	if state != sink.BreakerClosed {
		res.Status, res.Message = StatusDegraded, "circuit "+state.String()
	}
	return res
}
