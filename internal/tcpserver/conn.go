package tcpserver

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnClosed        = errors.New("connection closed")
	ErrWriteQueueTimeout = errors.New("write queue timeout")
)

// ConnContext 单个连接的读/写循环
type ConnContext struct {
	s         *Server
	c         net.Conn
	id        uint64
	writeC    chan []byte
	doneC     chan struct{}
	closeOnce sync.Once
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	return &ConnContext{
		s:      s,
		c:      c,
		id:     s.nextConnID.Add(1),
		writeC: make(chan []byte, 128),
		doneC:  make(chan struct{}),
	}
}

// ID 返回连接ID（单进程唯一递增）
func (cc *ConnContext) ID() uint64 { return cc.id }

// Channel 所属通道
func (cc *ConnContext) Channel() string { return cc.s.channel }

// RemoteAddr 返回远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Write 异步写入，受写队列与写超时影响
func (cc *ConnContext) Write(b []byte) error {
	select {
	case <-cc.doneC:
		return ErrConnClosed
	default:
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()
	select {
	case cc.writeC <- dup:
		return nil
	case <-cc.doneC:
		return ErrConnClosed
	case <-timer.C:
		return ErrWriteQueueTimeout
	}
}

// Close 关闭连接，可重复调用
func (cc *ConnContext) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		close(cc.doneC)
		err = cc.c.Close()
	})
	return err
}

// Done 返回连接关闭通知通道
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

func (cc *ConnContext) writeLoop(done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case msg := <-cc.writeC:
			if cc.s.cfg.WriteTimeout > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
			}
			if _, err := cc.c.Write(msg); err != nil {
				cc.s.logger.Debug("write failed", zap.Uint64("conn_id", cc.id), zap.Error(err))
				_ = cc.Close()
				return
			}
		case <-cc.doneC:
			return
		}
	}
}

// run 启动读/写循环，阻塞直至连接结束。
// 每次读取恰好一帧；帧内读超时或半帧 EOF 视为失去对齐，直接断开。
func (cc *ConnContext) run() {
	log := cc.s.logger.With(
		zap.Uint64("conn_id", cc.id),
		zap.String("remote_addr", cc.RemoteAddr().String()),
	)
	log.Debug("connection opened")
	defer log.Debug("connection closed")

	doneW := make(chan struct{})
	go cc.writeLoop(doneW)
	defer func() {
		_ = cc.Close()
		<-doneW
	}()

	buf := make([]byte, cc.s.frameSize)
	consecutive := 0
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := io.ReadFull(cc.c, buf)
		if n > 0 && cc.s.metrics != nil {
			cc.s.metrics.TCPBytesReceived.Add(float64(n))
		}
		if err != nil {
			var ne net.Error
			if n == 0 && errors.As(err, &ne) && ne.Timeout() {
				// 空闲超时，继续等待下一帧
				select {
				case <-cc.doneC:
					return
				default:
					continue
				}
			}
			if n > 0 {
				log.Warn("partial frame, closing", zap.Int("read", n), zap.Error(err))
			}
			return
		}

		if cc.s.handler == nil {
			continue
		}
		if err := cc.s.handler(cc, buf); err != nil {
			consecutive++
			if limit := cc.s.cfg.MaxConsecutiveErrors; limit > 0 && consecutive >= limit {
				log.Warn("too many consecutive bad frames, closing", zap.Int("count", consecutive))
				return
			}
			continue
		}
		consecutive = 0
	}
}
