package acceptor

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

func echoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return
			}
		}
	})
}

// blockingHandler 占住协程池，直到 release 关闭。
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
}

func (h *blockingHandler) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	h.started <- struct{}{}
	<-h.release
}

func (h *blockingHandler) RejectConn(conn net.Conn, err error) {
	_, _ = conn.Write([]byte("err"))
}

func serve(t *testing.T, a Acceptor, h Handler) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- a.Serve(ctx, h) }()
	return cancelFn, ch
}

func roundTrip(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(msg))
	require.NoError(t, err)
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestTCPAcceptorEcho(t *testing.T) {
	a, err := NewTCPAcceptor("127.0.0.1:0", Config{PoolSize: 4})
	require.NoError(t, err)
	cancel, done := serve(t, a, echoHandler())

	conn, err := connector.NewTCPConnector(connector.Config{}).Dial(context.Background(), a.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "hello", roundTrip(t, conn, "hello"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor did not stop")
	}
}

func TestTCPAcceptorPoolFull(t *testing.T) {
	a, err := NewTCPAcceptor("127.0.0.1:0", Config{PoolSize: 1})
	require.NoError(t, err)
	h := &blockingHandler{started: make(chan struct{}, 1), release: make(chan struct{})}
	cancel, _ := serve(t, a, h)
	defer cancel()
	defer close(h.release)

	dialer := connector.NewTCPConnector(connector.Config{})
	first, err := dialer.Dial(context.Background(), a.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	<-h.started

	second, err := dialer.Dial(context.Background(), a.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))

	got, err := io.ReadAll(second)
	require.NoError(t, err)
	assert.Equal(t, "err", string(got))
}

func TestWSAcceptorEcho(t *testing.T) {
	a, err := ListenWS("127.0.0.1:0", Config{Path: "/chat"})
	require.NoError(t, err)
	cancel, done := serve(t, a, echoHandler())

	conn, err := connector.NewWSConnector(connector.Config{}).Dial(context.Background(), "ws://"+a.Addr().String()+"/chat")
	require.NoError(t, err)
	assert.Equal(t, "one", roundTrip(t, conn, "one"))
	assert.Equal(t, "two words", roundTrip(t, conn, "two words"))
	require.NoError(t, conn.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ws acceptor did not stop")
	}
}

func TestWSCloseYieldsEOF(t *testing.T) {
	a, err := ListenWS("127.0.0.1:0", Config{})
	require.NoError(t, err)

	readErr := make(chan error, 1)
	cancel, _ := serve(t, a, HandlerFunc(func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		_, err := conn.Read(make([]byte, 16))
		readErr <- err
	}))
	defer cancel()

	conn, err := connector.NewWSConnector(connector.Config{}).Dial(context.Background(), "ws://"+a.Addr().String()+"/ws")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("server read did not return")
	}
}

func TestAcceptorNilArguments(t *testing.T) {
	_, err := NewBaseAcceptor(nil, Config{})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	_, err = NewTCPAcceptor("", Config{})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a, err := NewBaseAcceptor(ln, Config{})
	require.NoError(t, err)
	defer a.Close()
	assert.ErrorIs(t, a.Serve(context.Background(), nil), merr.ErrParameterMissing)
}
