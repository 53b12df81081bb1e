package health

import (
	"context"
	"fmt"
	"time"
)

// DatabaseProbe storage/pg.Probe 满足该接口
type DatabaseProbe interface {
	Ping(ctx context.Context) error
	Usage() (acquired, maxConns int32)
}

// DatabaseChecker 数据库健康检查器
type DatabaseChecker struct {
	db DatabaseProbe
}

func NewDatabaseChecker(db DatabaseProbe) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	acquired, maxConns := c.db.Usage()
	utilization := 0.0
	if maxConns > 0 {
		utilization = float64(acquired) / float64(maxConns)
	}

	status, message := StatusHealthy, "ok"
	switch {
	case utilization >= 1.0:
		status, message = StatusUnhealthy, "connection pool exhausted"
	case utilization > 0.9:
		status, message = StatusDegraded, "connection pool near limit"
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"acquired_conns": acquired,
			"max_conns":      maxConns,
			"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
		},
		Latency: time.Since(start),
	}
}
