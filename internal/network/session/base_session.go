package session

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// defaultSendQueueSize 为每个会话的发送队列容量。
const defaultSendQueueSize = 64

// 同一分组内所有会话共享的出站丢弃日志限流参数。
const (
	sendFailureRateGroup = "session.send"
	sendFailureCredit    = 1
	sendFailureBurst     = 10
)

// Options 为创建 BaseSession 时的可选参数。
type Options struct {
	// SendQueueSize 为发送队列容量，<=0 时使用默认值。
	SendQueueSize int

	// WriteTimeout 为单次写入的超时时间，0 表示不设置写超时。
	WriteTimeout time.Duration

	// Framer 决定写出时的消息边界，为 nil 时原样写出。
	Framer framer.Framer
}

// BaseSession 提供了 Session 接口的基础实现。
//
// Send 仅把字节投递到发送队列，独立的发送协程按入队顺序写入连接，
// 因此同一接收方看到的消息顺序与入队顺序一致。发送协程在注册成功后才启动，
// 注册前入队的消息（例如握手确认）总是最先写出。
type BaseSession struct {
	log.Binder

	id   uint64
	name string
	tag  Tag

	ctx    context.Context
	cancel context.CancelFunc

	conn   net.Conn
	framer framer.Framer

	writeTimeout time.Duration
	sendQueue    chan []byte

	writeFailed atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
	connOnce  sync.Once
	connErr   error
}

// 确保 BaseSession 实现了 Session 接口。
var _ Session = (*BaseSession)(nil)

// NewBaseSession 创建一个尚未注册的会话。
//
// 参数：
//   - parent：会话所属的上层上下文；若为 nil，则使用 context.Background()；
//   - name  ：已通过校验的显示名；
//   - conn  ：底层网络连接，所有权转移给会话。
func NewBaseSession(parent context.Context, name string, conn net.Conn, opts Options) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	size := opts.SendQueueSize
	if size <= 0 {
		size = defaultSendQueueSize
	}
	f := opts.Framer
	if f == nil {
		f = framer.NewRawFramer(0)
	}

	return &BaseSession{
		name:         name,
		tag:          TagNone,
		ctx:          ctx,
		cancel:       cancel,
		conn:         conn,
		framer:       f,
		writeTimeout: opts.WriteTimeout,
		sendQueue:    make(chan []byte, size),
	}
}

func (s *BaseSession) ID() uint64 {
	return s.id
}

func (s *BaseSession) Name() string {
	return s.name
}

func (s *BaseSession) Tag() Tag {
	return s.tag
}

func (s *BaseSession) Context() context.Context {
	return s.ctx
}

func (s *BaseSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *BaseSession) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send 实现 Session.Send。
func (s *BaseSession) Send(payload []byte) error {
	if s.ctx.Err() != nil || s.writeFailed.Load() {
		return merr.WrapErrSessionClosed(s.id)
	}
	select {
	case <-s.ctx.Done():
		return merr.WrapErrSessionClosed(s.id)
	case s.sendQueue <- payload:
		return nil
	default:
		return merr.WrapErrSendQueueFull(s.id, cap(s.sendQueue))
	}
}

// Close 实现 Session.Close。
func (s *BaseSession) Close() error {
	s.closeOnce.Do(func() {
		// 先取消上下文，再关闭连接。
		s.cancel()
		s.closeErr = s.closeConn()
	})
	return s.closeErr
}

// WriteFailed 报告发送协程是否因写入对端失败而退出。
func (s *BaseSession) WriteFailed() bool {
	return s.writeFailed.Load()
}

func (s *BaseSession) closeConn() error {
	s.connOnce.Do(func() {
		s.connErr = s.conn.Close()
	})
	return s.connErr
}

// bind 在注册时由 Registry 调用，持有 Registry 锁。
func (s *BaseSession) bind(id uint64, tag Tag) {
	s.id = id
	s.tag = tag
	s.SetLogger(log.With(
		log.FieldSessionID(id),
		log.FieldClient(s.name),
		log.FieldRemote(s.conn.RemoteAddr()),
	).WithRateGroup(sendFailureRateGroup, sendFailureCredit, sendFailureBurst))
}

// start 启动发送协程，多次调用只生效一次。
func (s *BaseSession) start() {
	s.startOnce.Do(func() {
		go s.sendLoop()
	})
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 写入失败说明对端已不可达：只关闭连接而不取消上下文，读取端随之返回错误，
// 由读循环广播下线通知并注销会话。发送队列从不关闭。
func (s *BaseSession) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case payload := <-s.sendQueue:
			if s.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := s.framer.WriteMessage(s.conn, payload); err != nil {
				if s.ctx.Err() == nil {
					s.Logger().Warn("write to peer failed", network.StageSend.Field(), zap.Error(err))
				}
				s.writeFailed.Store(true)
				_ = s.closeConn()
				return
			}
		}
	}
}
