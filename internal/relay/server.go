package relay

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/activitylog"
	"github.com/lk2023060901/danmu-chat-relay/internal/config"
	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/router"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// Server 是聊天中继的核心：对每条连接执行准入握手，成功后运行会话循环，
// 并按命令把消息路由为名单、私聊或广播。
//
// Server 实现 acceptor.Handler 与 acceptor.Rejecter，可同时挂在多个 Acceptor 上，
// 所有传输共享同一个注册表。
type Server struct {
	log.Binder

	registry *session.Registry
	router   router.Router
	sink     activitylog.Sink
	framer   framer.Framer
	rules    protocol.NameRules

	msgSize          int
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

var (
	_ acceptor.Handler  = (*Server)(nil)
	_ acceptor.Rejecter = (*Server)(nil)
)

// NewServer 按配置创建 Server。sink 为 nil 时不记录活动日志。
func NewServer(cfg *config.Config, sink activitylog.Sink) (*Server, error) {
	if cfg == nil {
		return nil, merr.WrapErrParameterMissing("config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = activitylog.Nop()
	}

	f, err := framer.New(cfg.Server.Framing, cfg.Relay.BuffSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		registry: session.NewRegistry(cfg.Relay.MaxClients, session.Options{
			SendQueueSize: cfg.Server.SendQueueSize,
			WriteTimeout:  cfg.Server.WriteTimeout,
			Framer:        f,
		}),
		sink:             sink,
		framer:           f,
		rules:            protocol.NameRules{MinLen: cfg.Relay.MinNameLen, Size: cfg.Relay.NameSize},
		msgSize:          cfg.Relay.MsgSize,
		handshakeTimeout: cfg.Server.HandshakeTimeout,
		writeTimeout:     cfg.Server.WriteTimeout,
	}
	s.SetLogger(log.With(log.FieldComponent("relay")))
	s.registry.SetLogger(log.With(log.FieldComponent("registry")))

	r, err := newChatRouter(s.registry, sink, s.msgSize)
	if err != nil {
		return nil, err
	}
	s.router = r
	return s, nil
}

// Registry 返回服务器使用的会话注册表。
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// ServeConn 实现 acceptor.Handler：准入成功后在当前协程中运行会话循环。
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	reader := s.framer.NewReader(conn)

	sess, err := s.admit(ctx, conn, reader)
	if err != nil {
		s.logAdmissionFailure(conn, err)
		return
	}
	s.serveSession(sess, reader)
}

// RejectConn 实现 acceptor.Rejecter：资源不足时以 ERR 令牌拒绝。
func (s *Server) RejectConn(conn net.Conn, err error) {
	metrics.Admissions.WithLabelValues(metrics.AdmissionRejectedFull).Inc()
	if werr := s.writeToken(conn, protocol.ErrStatus); werr != nil {
		s.Logger().Debug("write reject token failed", network.StageHandshake.Field(), zap.Error(werr))
	}
}

// Shutdown 关闭所有在线会话。
func (s *Server) Shutdown() {
	s.registry.CloseAll()
}

// notify 将服务器通知记入活动日志并广播给所有会话。
func (s *Server) notify(notice string) {
	if err := s.sink.Record("", notice); err != nil {
		s.Logger().Warn("record notice failed", zap.Error(err))
	}
	s.registry.Broadcast([]byte(protocol.FormatNotice(notice)))
	s.Logger().Info(notice)
}

// writeToken 在会话建立前直接向连接写出握手令牌。
func (s *Server) writeToken(conn net.Conn, token string) error {
	if s.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := s.framer.WriteMessage(conn, []byte(token)); err != nil {
		return merr.WrapErrIoFailed(conn.RemoteAddr().String(), err)
	}
	return nil
}

func (s *Server) logAdmissionFailure(conn net.Conn, err error) {
	logger := s.Logger().With(
		log.FieldRemote(conn.RemoteAddr()),
		network.StageHandshake.Field(),
		zap.Int32("code", merr.Code(err)),
		zap.Bool("retryable", merr.IsRetryableErr(err)),
	)
	if errors.IsAny(err, merr.ErrRegistryFull, merr.ErrNameTaken, merr.ErrNameInvalid, merr.ErrServiceResourceInsufficient) {
		logger.Info("admission rejected", zap.Error(err))
		return
	}
	logger.Warn("admission failed", zap.Error(err))
}
