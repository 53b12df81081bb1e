// Package gateway 把 TCP 通道、schema 注册表与遥测 sink 组装在一起
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/framelink/internal/config"
	"github.com/taoyao-code/framelink/internal/metrics"
	"github.com/taoyao-code/framelink/internal/protocol/frame"
	"github.com/taoyao-code/framelink/internal/registry"
	"github.com/taoyao-code/framelink/internal/sink"
	"github.com/taoyao-code/framelink/internal/tcpserver"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Channel 一个已绑定 schema 的监听通道
type Channel struct {
	Name   string
	Codec  *frame.Codec
	Server *tcpserver.Server
}

// Gateway 管理全部通道的生命周期
type Gateway struct {
	cfg      cfgpkg.TCPConfig
	registry *registry.Registry
	out      sink.Sink
	appm     *metrics.AppMetrics
	logger   *zap.Logger

	connLimiter *tcpserver.ConnectionLimiter
	rateLimiter *tcpserver.RateLimiter

	mu       sync.RWMutex
	channels map[string]*Channel
	order    []string
}

// New 创建网关；所有通道共享一组连接数与接入速率限制
func New(cfg cfgpkg.TCPConfig, reg *registry.Registry, out sink.Sink, appm *metrics.AppMetrics, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:         cfg,
		registry:    reg,
		out:         out,
		appm:        appm,
		logger:      logger,
		connLimiter: tcpserver.NewConnectionLimiter(cfg.MaxConnections),
		rateLimiter: tcpserver.NewRateLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		channels:    make(map[string]*Channel),
	}
}

// AddChannel 按配置创建通道，schema 必须已注册
func (g *Gateway) AddChannel(c cfgpkg.ChannelConfig) error {
	codec, err := g.registry.Get(c.Schema)
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[c.Name]; ok {
		return fmt.Errorf("channel %s: already exists", c.Name)
	}

	srv := tcpserver.New(c.Name, c.Addr, codec.FrameSize(), g.cfg)
	srv.SetLogger(g.logger)
	srv.SetMetrics(g.appm)
	srv.SetLimiters(g.connLimiter, g.rateLimiter)
	srv.SetHandler(NewFrameHandler(c.Name, codec, g.out, g.appm, g.logger))

	g.channels[c.Name] = &Channel{Name: c.Name, Codec: codec, Server: srv}
	g.order = append(g.order, c.Name)
	return nil
}

// Start 依次启动所有通道；任一失败则关闭已启动的通道
func (g *Gateway) Start() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, name := range g.order {
		if err := g.channels[name].Server.Start(); err != nil {
			for _, started := range g.order[:i] {
				_ = g.channels[started].Server.Shutdown(context.Background())
			}
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}
	return nil
}

// Shutdown 关闭所有通道
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var errs []error
	for _, name := range g.order {
		if err := g.channels[name].Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Channel 按名称查找通道
func (g *Gateway) Channel(name string) (*Channel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Send 按通道 schema 编码并下发到该通道所有连接，返回帧与成功入队的连接数
func (g *Gateway) Send(name string, p frame.Payload) ([]byte, int, error) {
	ch, err := g.Channel(name)
	if err != nil {
		return nil, 0, err
	}
	b, err := ch.Codec.Encode(p)
	if err != nil {
		return nil, 0, err
	}
	g.appm.ObserveEncode(ch.Codec.Name())
	return b, ch.Server.Broadcast(b), nil
}

// ChannelInfo 通道概况
type ChannelInfo struct {
	Schema string `json:"schema"`
	tcpserver.ChannelStats
}

// Stats 网关整体状态
type Stats struct {
	Channels    []ChannelInfo               `json:"channels"`
	Connections tcpserver.LimiterStats      `json:"connections"`
	AcceptRate  *tcpserver.RateLimiterStats `json:"accept_rate,omitempty"`
}

func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Stats{
		Channels:    make([]ChannelInfo, 0, len(g.order)),
		Connections: g.connLimiter.Stats(),
	}
	for _, name := range g.order {
		ch := g.channels[name]
		st.Channels = append(st.Channels, ChannelInfo{Schema: ch.Codec.Name(), ChannelStats: ch.Server.Stats()})
	}
	if g.rateLimiter != nil {
		rs := g.rateLimiter.Stats()
		st.AcceptRate = &rs
	}
	return st
}
