package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/framelink/internal/config"
	"github.com/taoyao-code/framelink/internal/metrics"
)

// Handler 处理一帧完整的上行字节；返回错误计入连续错误数。
// frame 在回调返回后会被复用，需要保留时自行拷贝。
type Handler func(cc *ConnContext, frame []byte) error

// Server 单通道 TCP 监听：每个连接按固定帧长读取
type Server struct {
	cfg       cfgpkg.TCPConfig
	channel   string
	addr      string
	frameSize int

	ln       net.Listener
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once

	handler     Handler
	logger      *zap.Logger
	metrics     *metrics.AppMetrics
	connLimiter *ConnectionLimiter
	rateLimiter *RateLimiter

	nextConnID atomic.Uint64
	conns      sync.Map // id -> *ConnContext
}

// New 创建通道监听，frameSize 为该通道 schema 的整帧长度
func New(channel, addr string, frameSize int, cfg cfgpkg.TCPConfig) *Server {
	return &Server{
		cfg:       cfg,
		channel:   channel,
		addr:      addr,
		frameSize: frameSize,
		stopC:     make(chan struct{}),
		logger:    zap.NewNop(),
	}
}

// SetHandler 设置帧处理回调
func (s *Server) SetHandler(h Handler) { s.handler = h }

// SetLogger 设置日志器
func (s *Server) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l.With(zap.String("channel", s.channel))
	}
}

// SetMetrics 设置指标
func (s *Server) SetMetrics(m *metrics.AppMetrics) { s.metrics = m }

// SetLimiters 设置连接数与接入速率限制，nil 表示不限制。多个通道可共享同一组限流器。
func (s *Server) SetLimiters(conn *ConnectionLimiter, rate *RateLimiter) {
	s.connLimiter, s.rateLimiter = conn, rate
}

// Channel 通道名
func (s *Server) Channel() string { return s.channel }

// FrameSize 每帧字节数
func (s *Server) FrameSize() int { return s.frameSize }

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	if s.frameSize <= 0 {
		return errors.New("tcpserver: frame size must be positive")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp channel listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("frame_size", s.frameSize),
	)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			// 短暂错误等待后重试
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if s.rateLimiter != nil && !s.rateLimiter.Allow() {
			s.reject(conn, "rate")
			continue
		}
		if s.connLimiter != nil && !s.connLimiter.TryAcquire() {
			s.reject(conn, "limit")
			continue
		}
		if s.metrics != nil {
			s.metrics.TCPAccepted.Inc()
			s.metrics.TCPActive.Inc()
		}

		cc := newConnContext(s, conn)
		s.track(cc)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.conns.Delete(cc.ID())
				if s.connLimiter != nil {
					s.connLimiter.Release()
				}
				if s.metrics != nil {
					s.metrics.TCPActive.Dec()
				}
			}()
			cc.run()
		}()
	}
}

// track 登记连接；Shutdown 已开始时立即关闭，避免漏关
func (s *Server) track(cc *ConnContext) {
	s.conns.Store(cc.ID(), cc)
	select {
	case <-s.stopC:
		_ = cc.Close()
	default:
	}
}

func (s *Server) reject(c net.Conn, reason string) {
	if s.metrics != nil {
		s.metrics.TCPRejected.WithLabelValues(reason).Inc()
	}
	s.logger.Warn("connection rejected",
		zap.String("remote_addr", c.RemoteAddr().String()),
		zap.String("reason", reason),
	)
	_ = c.Close()
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int {
	n := 0
	s.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown 关闭监听与所有连接并等待退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopC)
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.conns.Range(func(_, v any) bool {
			_ = v.(*ConnContext).Close()
			return true
		})
	})
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// ChannelStats 通道运行状态
type ChannelStats struct {
	Channel           string `json:"channel"`
	Addr              string `json:"addr"`
	FrameSize         int    `json:"frame_size"`
	ActiveConnections int    `json:"active_connections"`
}

// Stats 返回通道状态快照
func (s *Server) Stats() ChannelStats {
	st := ChannelStats{
		Channel:           s.channel,
		Addr:              s.addr,
		FrameSize:         s.frameSize,
		ActiveConnections: s.ActiveConnections(),
	}
	if a := s.Addr(); a != nil {
		st.Addr = a.String()
	}
	return st
}

// Broadcast 向通道内所有连接写入同一帧，返回成功入队的连接数
func (s *Server) Broadcast(b []byte) int {
	n := 0
	s.conns.Range(func(_, v any) bool {
		if err := v.(*ConnContext).Write(b); err == nil {
			n++
		}
		return true
	})
	return n
}
