package acceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// BaseAcceptor 是 Acceptor 接口的基础 TCP 实现。
//
// 每条连接在协程池中独立处理，Accept 的临时错误按指数退避重试。
type BaseAcceptor struct {
	ln  net.Listener
	cfg Config

	closeOnce sync.Once
	closeErr  error
}

// 确保 BaseAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建一个基础接入器。
func NewBaseAcceptor(ln net.Listener, cfg Config) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, merr.WrapErrParameterMissing("listener")
	}
	return &BaseAcceptor{
		ln:  ln,
		cfg: cfg.withDefaults(),
	}, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建一个基础接入器。
//
// 参数：
//   - addr：监听地址，例如 "0.0.0.0:6969"；
//   - cfg ：接入配置。
func NewTCPAcceptor(addr string, cfg Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen tcp %s", addr)
	}
	return NewBaseAcceptor(ln, cfg)
}

func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Serve 实现 Acceptor.Serve。
func (a *BaseAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterMissing("handler")
	}

	logger := log.Ctx(ctx).With(log.FieldComponent("acceptor"), zap.String("transport", a.cfg.Transport))
	d := newDispatcher(a.cfg)
	defer d.release()

	stop := watchContext(ctx, func() { _ = a.Close() })
	defer stop()

	bo := newAcceptBackoff(a.cfg.MaxBackoff)
	logger.Info("acceptor serving", zap.Stringer("addr", a.ln.Addr()))
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			// 若上层已取消或监听器已关闭，则视为正常退出。
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("acceptor stopped")
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				wait := bo.NextBackOff()
				logger.Warn("accept failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
				}
				continue
			}
			return errors.Wrap(err, "accept")
		}
		bo.Reset()
		d.dispatch(ctx, conn, h, logger)
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.ln.Close()
	})
	return a.closeErr
}

// dispatcher 将连接交给协程池中的 Handler。
type dispatcher struct {
	transport string
	pool      *conc.Pool
}

func newDispatcher(cfg Config) *dispatcher {
	return &dispatcher{
		transport: cfg.Transport,
		pool:      conc.NewPool(cfg.PoolSize, conc.WithNonBlocking(true), conc.WithConcealPanic(true)),
	}
}

func (d *dispatcher) dispatch(ctx context.Context, conn net.Conn, h Handler, logger *log.MLogger) {
	metrics.AcceptedConnections.WithLabelValues(d.transport).Inc()
	err := d.pool.Spawn(func() {
		h.ServeConn(ctx, conn)
	})
	if err == nil {
		return
	}

	logger.Warn("connection rejected by pool",
		log.FieldRemote(conn.RemoteAddr()),
		network.StageHandshake.Field(),
		zap.Int("running", d.pool.Running()),
		zap.Int("cap", d.pool.Cap()),
		zap.Error(err))
	if r, ok := h.(Rejecter); ok {
		r.RejectConn(conn, err)
	}
	_ = conn.Close()
}

func (d *dispatcher) release() {
	d.pool.Release()
}

func newAcceptBackoff(maxInterval time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// watchContext 在 ctx 取消时调用 fn，返回的 stop 用于提前结束监听。
func watchContext(ctx context.Context, fn func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fn()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
