package relay

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-relay/internal/activitylog"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/router"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// chatRoutes 实现三类聊天消息的处理。
type chatRoutes struct {
	reg     session.Manager
	sink    activitylog.Sink
	msgSize int
}

// newChatRouter 注册名单与私聊路由，其余消息作为广播处理。
// 名单要求完全匹配，私聊只要消息中包含命令即可，因此名单在前。
func newChatRouter(reg session.Manager, sink activitylog.Sink, msgSize int) (router.Router, error) {
	c := &chatRoutes{reg: reg, sink: sink, msgSize: msgSize}

	r := router.New()
	if err := r.Register(router.Route{
		Name:    metrics.MessageList,
		Match:   protocol.IsList,
		Handler: c.list,
	}); err != nil {
		return nil, err
	}
	if err := r.Register(router.Route{
		Name:    metrics.MessageWhisper,
		Match:   protocol.IsWhisper,
		Handler: c.whisper,
	}); err != nil {
		return nil, err
	}
	r.SetFallback(metrics.MessageBroadcast, c.broadcast)
	return r, nil
}

func styled(sess session.Session) protocol.StyledName {
	return protocol.StyledName{
		Name:  sess.Name(),
		Color: sess.Tag().Color(),
		Reset: sess.Tag().Reset(),
	}
}

// list 仅向发送方返回当前名单。
func (c *chatRoutes) list(ctx context.Context, sess session.Session, msg string) error {
	return sess.Send([]byte(protocol.FormatRoster(c.reg.Snapshot(), c.msgSize)))
}

// whisper 仅向目标发送私聊，目标不存在时通知发送方。私聊不记入活动日志。
func (c *chatRoutes) whisper(ctx context.Context, sess session.Session, msg string) error {
	target, body, ok := protocol.ParseWhisper(msg)
	if !ok {
		return sess.Send([]byte(protocol.NotFoundNotice))
	}

	payload := protocol.FormatWhisper(styled(sess), session.Italic(), session.ResetAll(), body)
	err := c.reg.SendTo(target, []byte(payload))
	if errors.Is(err, merr.ErrSessionNotFound) {
		return sess.Send([]byte(protocol.NotFoundNotice))
	}
	return err
}

// broadcast 发给除发送方外的所有会话，并记入活动日志。
func (c *chatRoutes) broadcast(ctx context.Context, sess session.Session, msg string) error {
	err := c.sink.Record(sess.Name(), msg)
	c.reg.BroadcastExcept(sess.ID(), []byte(protocol.FormatBroadcast(styled(sess), msg)))
	return err
}
