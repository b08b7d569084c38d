package acceptor

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

const wsShutdownTimeout = 3 * time.Second

// WSAcceptor 在 HTTP 服务上完成 WebSocket 升级，并将升级后的连接
// 以 net.Conn 的形式交给 Handler，每条文本消息对应一条逻辑消息。
type WSAcceptor struct {
	ln       net.Listener
	cfg      Config
	upgrader *websocket.Upgrader

	closeOnce sync.Once
	closeErr  error
}

var _ Acceptor = (*WSAcceptor)(nil)

// NewWSAcceptor 使用已有的 Listener 创建 WebSocket 接入器。
func NewWSAcceptor(ln net.Listener, cfg Config) (*WSAcceptor, error) {
	if ln == nil {
		return nil, merr.WrapErrParameterMissing("listener")
	}
	if cfg.Transport == "" {
		cfg.Transport = "ws"
	}
	cfg = cfg.withDefaults()

	upgrader := cfg.Upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		}
	}
	return &WSAcceptor{ln: ln, cfg: cfg, upgrader: upgrader}, nil
}

// ListenWS 在给定地址上监听并创建 WebSocket 接入器。
func ListenWS(addr string, cfg Config) (*WSAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen ws %s", addr)
	}
	return NewWSAcceptor(ln, cfg)
}

func (a *WSAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Serve 实现 Acceptor.Serve。
func (a *WSAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterMissing("handler")
	}

	logger := log.Ctx(ctx).With(log.FieldComponent("acceptor"), zap.String("transport", a.cfg.Transport))
	d := newDispatcher(a.cfg)
	defer d.release()

	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade 已经向对端写出错误响应。
			logger.Debug("websocket upgrade failed", network.StageHandshake.Field(), zap.Error(err))
			return
		}
		d.dispatch(ctx, network.WrapWebSocket(ws), h, logger)
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := watchContext(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), wsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.Info("acceptor serving", zap.Stringer("addr", a.ln.Addr()), zap.String("path", a.cfg.Path))
	err := srv.Serve(a.ln)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
		logger.Info("acceptor stopped")
		return nil
	}
	return errors.Wrap(err, "serve websocket")
}

// Close 实现 Acceptor.Close。
func (a *WSAcceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.ln.Close()
	})
	return a.closeErr
}
