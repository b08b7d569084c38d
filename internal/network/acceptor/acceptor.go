package acceptor

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Config 描述 Acceptor 的接入配置。
//
// 说明：
//   - Transport 为指标与日志中的传输名（如 "tcp"、"ws"）；
//   - PoolSize 为处理连接的协程池容量，<=0 表示不限制；
//   - Path 控制 WebSocket 的升级路径（如 "/ws"）。
type Config struct {
	Transport string
	PoolSize  int

	Path string

	// Upgrader 允许调用方自定义 gorilla/websocket 的升级行为。
	// 若为 nil，则使用内部默认的 Upgrader。
	Upgrader *websocket.Upgrader

	// MaxBackoff 为 Accept 临时错误重试间隔的上限。
	MaxBackoff time.Duration
}

// 默认配置。
func defaultConfig() Config {
	return Config{
		Transport:  "tcp",
		Path:       "/ws",
		MaxBackoff: time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := defaultConfig()
	if c.Transport == "" {
		c.Transport = def.Transport
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	return c
}

// Handler 由框架使用者实现，负责单条连接的完整生命周期。
//
// 说明：
//   - ServeConn 在协程池中执行，返回时连接的所有权已由实现方处理；
//   - ctx 在 Acceptor 停止时被取消。
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// HandlerFunc 将普通函数适配为 Handler。
type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Rejecter 为可选接口：协程池无法接纳新连接时，Acceptor 调用 RejectConn
// 让实现方按自身协议告知对端，随后由 Acceptor 关闭连接。
type Rejecter interface {
	RejectConn(conn net.Conn, err error)
}

// Acceptor 抽象了服务器侧的接入层。
//
// 职责：
//   - 在监听器上接受连接（TCP 直接接受，WebSocket 先完成 HTTP 升级）；
//   - 将每条连接交给协程池中的 Handler 处理；
//   - ctx 取消后关闭监听器并返回。
type Acceptor interface {
	// Serve 启动接入循环，阻塞直至 ctx 取消或出现不可恢复的错误。
	// ctx 取消导致的退出返回 nil。
	Serve(ctx context.Context, h Handler) error

	// Addr 返回实际监听地址。
	Addr() net.Addr

	// Close 关闭监听器，多次调用是幂等的。
	Close() error
}
