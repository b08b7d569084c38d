package router

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// Handler 是路由暴露给业务层的处理函数签名。
//
// 说明：
//   - sess：消息的发送方会话；
//   - msg ：已去除首尾空白的非空文本消息；
//   - 返回的错误由调用方记录，不会中断会话。
type Handler func(ctx context.Context, sess session.Session, msg string) error

// Route 描述一条路由规则：匹配谓词 + 业务 Handler。
type Route struct {
	// Name 为路由名，用于日志与指标，不允许重复。
	Name string

	// Match 判断消息是否由该路由处理。
	Match func(msg string) bool

	// Handler 为业务层实现的处理函数。
	Handler Handler
}

// Router 按注册顺序依次匹配路由，第一条命中的路由处理消息；
// 全部未命中时交给 fallback。
type Router interface {
	// Register 注册一条路由规则，Name/Match/Handler 均不能为空。
	Register(route Route) error

	// SetFallback 设置未命中任何路由时使用的处理函数。
	SetFallback(name string, h Handler)

	// Handle 分发一条消息，返回实际处理该消息的路由名。
	Handle(ctx context.Context, sess session.Session, msg string) (string, error)
}

// defaultRouter 是 Router 接口的基础实现。
type defaultRouter struct {
	routes       []Route
	fallbackName string
	fallback     Handler
}

// 编译期断言：确保 defaultRouter 实现了 Router 接口。
var _ Router = (*defaultRouter)(nil)

// New 创建一个空的 Router 实例。
func New() Router {
	return &defaultRouter{}
}

// Register 实现 Router.Register。
func (r *defaultRouter) Register(route Route) error {
	if route.Name == "" {
		return merr.WrapErrParameterMissing("name", "route name is empty")
	}
	if route.Match == nil {
		return merr.WrapErrParameterMissing("match", "route "+route.Name)
	}
	if route.Handler == nil {
		return merr.WrapErrParameterMissing("handler", "route "+route.Name)
	}
	if lo.ContainsBy(r.routes, func(exist Route) bool { return exist.Name == route.Name }) {
		return merr.WrapErrParameterInvalidMsg("route %s already registered", route.Name)
	}
	r.routes = append(r.routes, route)
	return nil
}

// SetFallback 实现 Router.SetFallback。
func (r *defaultRouter) SetFallback(name string, h Handler) {
	r.fallbackName = name
	r.fallback = h
}

// Handle 实现 Router.Handle。
func (r *defaultRouter) Handle(ctx context.Context, sess session.Session, msg string) (string, error) {
	if sess == nil {
		return "", merr.WrapErrParameterMissing("session")
	}

	route, ok := lo.Find(r.routes, func(route Route) bool { return route.Match(msg) })
	if ok {
		return route.Name, errors.Wrapf(route.Handler(ctx, sess, msg), "route %s", route.Name)
	}
	if r.fallback == nil {
		return "", merr.WrapErrOperationNotSupported("route", "no route matched and no fallback set")
	}
	return r.fallbackName, errors.Wrapf(r.fallback(ctx, sess, msg), "route %s", r.fallbackName)
}
