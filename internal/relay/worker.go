package relay

import (
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/funcutil"
)

// serveSession 是单个会话的读循环，返回前总会注销会话。
//
// 对端正常关闭或写入对端失败时广播下线通知，其余读错误只记录日志。
// 本端主动关闭（注销或进程退出）时不再广播。
func (s *Server) serveSession(sess *session.BaseSession, reader framer.Reader) {
	logger := sess.Logger()
	defer func() {
		s.registry.Remove(sess.ID())
		logger.Debug("session cleaned up", network.StageCleanup.Field())
	}()

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			switch {
			case sess.Context().Err() != nil:
				logger.Debug("session closed locally", network.StageRecv.Field(), zap.Error(err))
			case errors.Is(err, io.EOF), sess.WriteFailed():
				s.notify(protocol.QuitNotice(sess.Name()))
			default:
				logger.Warn("read from peer failed", network.StageRecv.Field(), zap.Error(err))
			}
			return
		}

		text := funcutil.TrimMessage(msg)
		if text == "" {
			continue
		}

		route, err := s.router.Handle(sess.Context(), sess, text)
		if route != "" {
			metrics.RoutedMessages.WithLabelValues(route).Inc()
		}
		if err != nil {
			logger.Warn("route message failed", network.StageRoute.Field(), zap.String("route", route), zap.Error(err))
		}
	}
}
