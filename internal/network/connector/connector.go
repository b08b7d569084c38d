package connector

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/retry"
)

// Config 描述客户端拨号的基础配置。
type Config struct {
	// DialTimeout 为单次拨号的超时时间。
	DialTimeout time.Duration

	// Attempts 为拨号的最大尝试次数，0 表示使用默认值。
	Attempts uint

	// RetrySleep 为首次重试前的等待时间，之后按指数增长。
	RetrySleep time.Duration

	// MaxRetrySleep 为两次重试之间等待时间的上限。
	MaxRetrySleep time.Duration

	// Header 为 WebSocket 握手时附带的 HTTP 头。
	Header http.Header
}

func defaultConfig() Config {
	return Config{
		DialTimeout:   5 * time.Second,
		Attempts:      3,
		RetrySleep:    200 * time.Millisecond,
		MaxRetrySleep: 2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := defaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.Attempts == 0 {
		c.Attempts = def.Attempts
	}
	if c.RetrySleep <= 0 {
		c.RetrySleep = def.RetrySleep
	}
	if c.MaxRetrySleep <= 0 {
		c.MaxRetrySleep = def.MaxRetrySleep
	}
	return c
}

// Connector 抽象了客户端的拨号器，拨号成功后返回可直接读写的 net.Conn。
type Connector interface {
	Dial(ctx context.Context, target string) (net.Conn, error)
}

type dialFunc func(ctx context.Context, target string) (net.Conn, error)

// retryConnector 在 dialFunc 之上叠加重试。
type retryConnector struct {
	cfg       Config
	transport string
	dial      dialFunc
}

// NewTCPConnector 创建一个 TCP 拨号器，target 形如 "127.0.0.1:6969"。
func NewTCPConnector(cfg Config) Connector {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	return &retryConnector{
		cfg:       cfg,
		transport: "tcp",
		dial: func(ctx context.Context, target string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", target)
		},
	}
}

// NewWSConnector 创建一个基于 gorilla/websocket 的拨号器，target 形如 "ws://host:port/ws"。
func NewWSConnector(cfg Config) Connector {
	cfg = cfg.withDefaults()
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	return &retryConnector{
		cfg:       cfg,
		transport: "ws",
		dial: func(ctx context.Context, target string) (net.Conn, error) {
			ws, resp, err := dialer.DialContext(ctx, target, cfg.Header)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				return nil, err
			}
			return network.WrapWebSocket(ws), nil
		},
	}
}

func (c *retryConnector) Dial(ctx context.Context, target string) (net.Conn, error) {
	if target == "" {
		return nil, merr.WrapErrParameterMissing("target")
	}

	logger := log.Ctx(ctx).With(log.FieldComponent("connector"), zap.String("transport", c.transport), zap.String("target", target))
	var conn net.Conn
	err := retry.Do(ctx, func() error {
		var err error
		conn, err = c.dial(ctx, target)
		if err == nil {
			return nil
		}
		logger.Debug("dial failed", zap.Error(err))
		if isPermanentDialErr(err) {
			return retry.Unrecoverable(err)
		}
		return err
	}, retry.Attempts(c.cfg.Attempts), retry.Sleep(c.cfg.RetrySleep), retry.MaxSleepTime(c.cfg.MaxRetrySleep))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s %s", c.transport, target)
	}
	return conn, nil
}

// isPermanentDialErr 判断重试也无法挽回的拨号错误：服务端拒绝了 WebSocket
// 升级（路径错误或并非中继服务），或者主机名不存在。
func isPermanentDialErr(err error) bool {
	if errors.Is(err, websocket.ErrBadHandshake) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
