package relay

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/funcutil"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// admit 执行准入握手：
//
//	Accepted -> CapacityChecked -> NameExchanged -> Registered | Rejected
//
// 任一步失败都会关闭连接。容量不足、名字不合法或已被占用时先写出 ERR 令牌；
// 读名失败属于系统错误，不再写令牌。成功时连接的所有权转移给返回的会话。
func (s *Server) admit(ctx context.Context, conn net.Conn, reader framer.Reader) (*session.BaseSession, error) {
	// 1. 容量检查。
	if s.registry.Count()+1 > s.registry.Cap() {
		return nil, s.reject(conn, metrics.AdmissionRejectedFull, merr.WrapErrRegistryFull(s.registry.Cap()))
	}

	// 2. 允许客户端继续发送名字。
	if err := s.writeToken(conn, protocol.OKStatus); err != nil {
		return nil, s.fail(conn, err)
	}

	// 3. 读取名字。
	name, err := s.readName(conn, reader)
	if err != nil {
		return nil, s.fail(conn, err)
	}

	// 4. 重新校验名字与唯一性。
	if err := s.rules.Validate(name); err != nil {
		return nil, s.reject(conn, metrics.AdmissionRejectedName, err)
	}
	if s.registry.Exists(name) {
		return nil, s.reject(conn, metrics.AdmissionRejectedName, merr.WrapErrNameTaken(name))
	}

	// 5. 在注册表锁内复核并注册，OK 令牌作为会话的第一条出站消息。
	sess, err := s.registry.Admit(ctx, name, conn, []byte(protocol.OKStatus))
	if err != nil {
		label := metrics.AdmissionRejectedFull
		if errors.Is(err, merr.ErrNameTaken) {
			label = metrics.AdmissionRejectedName
		}
		return nil, s.reject(conn, label, err)
	}

	// 6. 上线通知。
	metrics.Admissions.WithLabelValues(metrics.AdmissionAccepted).Inc()
	s.notify(protocol.ConnectedNotice(name))
	return sess, nil
}

func (s *Server) readName(conn net.Conn, reader framer.Reader) (string, error) {
	if s.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	}
	msg, err := reader.ReadMessage()
	if s.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", merr.WrapErrIoUnexpectEOF("name", err)
		}
		return "", merr.WrapErrIoFailed("name", err)
	}
	return funcutil.TrimMessage(msg), nil
}

// reject 写出 ERR 令牌后关闭连接，返回 cause 以便调用方记录。
func (s *Server) reject(conn net.Conn, label string, cause error) error {
	metrics.Admissions.WithLabelValues(label).Inc()
	if err := s.writeToken(conn, protocol.ErrStatus); err != nil {
		cause = merr.Combine(cause, err)
	}
	_ = conn.Close()
	return cause
}

// fail 关闭连接并返回 cause，不写令牌。
func (s *Server) fail(conn net.Conn, cause error) error {
	metrics.Admissions.WithLabelValues(metrics.AdmissionHandshakeFail).Inc()
	_ = conn.Close()
	return cause
}
