package session

import (
	"context"
	"net"
)

// Session 抽象了一个已准入的聊天客户端。
//
// 约定：
//   - 每个 Session 独占一条底层连接，连接只会被关闭一次。
//   - ID 由 Registry 在注册时分配，单调递增且不会复用。
//   - Name 在同一时刻的 Registry 内唯一（区分大小写）。
type Session interface {
	// ID 返回会话标识，未注册时为 0。
	ID() uint64

	// Name 返回客户端显示名。
	Name() string

	// Tag 返回注册时分配的颜色标签。
	Tag() Tag

	// Context 返回与该会话关联的上下文，会话关闭时被取消。
	Context() context.Context

	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	// Send 将 payload 投递到会话的发送队列，不阻塞调用方。
	//
	// 行为：
	//   - 会话已关闭时返回 merr.ErrSessionClosed；
	//   - 发送队列已满时返回 merr.ErrSendQueueFull，本条消息被丢弃。
	Send(payload []byte) error

	// Close 关闭会话与底层连接，多次调用是幂等的。
	Close() error
}
