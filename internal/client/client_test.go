package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-chat-relay/internal/config"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/internal/relay"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeServer 在管道另一端按脚本扮演服务器。
func fakeServer(t *testing.T, script func(conn net.Conn)) net.Conn {
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	go script(server)
	return client
}

func readOnce(conn net.Conn) string {
	buf := make([]byte, 256)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := conn.Read(buf)
	return string(buf[:n])
}

func TestJoinServerFull(t *testing.T) {
	conn := fakeServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte(protocol.ErrStatus))
	})

	_, err := Join(conn, "alice", Options{})
	assert.ErrorIs(t, err, merr.ErrRegistryFull)
	assert.NotErrorIs(t, err, merr.ErrNameTaken)
}

func TestJoinNameTaken(t *testing.T) {
	got := make(chan string, 1)
	conn := fakeServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte(protocol.OKStatus))
		got <- readOnce(conn)
		_, _ = conn.Write([]byte(protocol.ErrStatus))
	})

	_, err := Join(conn, "alice", Options{})
	assert.ErrorIs(t, err, merr.ErrNameTaken)
	assert.Equal(t, "alice", <-got)
}

func TestJoinRejectsInvalidNameLocally(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	_, err := Join(client, "a b", Options{})
	assert.ErrorIs(t, err, merr.ErrNameInvalid)

	_, err = server.Read(make([]byte, 16))
	assert.ErrorIs(t, err, io.EOF)
}

func TestJoinUnexpectedStatus(t *testing.T) {
	conn := fakeServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("hello"))
	})

	_, err := Join(conn, "alice", Options{})
	assert.ErrorIs(t, err, merr.ErrHandshakeRejected)
}

func TestRunPrintsLeftoverAndLostConnection(t *testing.T) {
	conn := fakeServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte(protocol.OKStatus))
		readOnce(conn)
		_, _ = conn.Write([]byte(protocol.OKStatus + "alice has connected.\n"))
		_ = conn.Close()
	})

	c, err := Join(conn, "alice", Options{})
	require.NoError(t, err)

	in, _ := io.Pipe()
	out := &lockedBuffer{}
	require.NoError(t, c.Run(context.Background(), in, out))

	printed := out.String()
	assert.True(t, strings.HasPrefix(printed, Banner()))
	assert.Contains(t, printed, "alice has connected.\n")
	assert.Contains(t, printed, lostConnection)
	assert.Contains(t, printed, goodbye)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	conn := fakeServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte(protocol.OKStatus))
		readOnce(conn)
		_, _ = conn.Write([]byte(protocol.OKStatus))
		readOnce(conn)
	})

	c, err := Join(conn, "alice", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	in, _ := io.Pipe()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, in, out) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NotContains(t, out.String(), lostConnection)
}

func TestInputReader(t *testing.T) {
	r := newInputReader(strings.NewReader("abcdefgh\n  xy \n\nlast"), 6)

	for _, want := range []string{"abcde", "xy", "", "last"} {
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err := r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNameHint(t *testing.T) {
	rules := protocol.DefaultNameRules()
	assert.Empty(t, NameHint("alice", rules))
	assert.Contains(t, NameHint("al", rules), "at least 3")
	assert.Contains(t, NameHint(strings.Repeat("a", 32), rules), "exceed 31")
	assert.Contains(t, NameHint("al ice", rules), "whitespace")
}

// RelaySuite 让客户端连到真实的中继服务器。
type RelaySuite struct {
	suite.Suite

	srv    *relay.Server
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *RelaySuite) SetupTest() {
	cfg := config.Default()
	cfg.Activity.Enable = false
	cfg.Relay.MaxClients = 2

	srv, err := relay.NewServer(cfg, nil)
	s.Require().NoError(err)
	s.srv = srv
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func (s *RelaySuite) TearDownTest() {
	s.cancel()
	s.srv.Shutdown()
}

func (s *RelaySuite) dial() net.Conn {
	server, client := net.Pipe()
	go s.srv.ServeConn(s.ctx, server)
	return client
}

func (s *RelaySuite) join(name string) *Client {
	c, err := Join(s.dial(), name, Options{})
	s.Require().NoError(err)
	return c
}

func (s *RelaySuite) next(c *Client) string {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := c.reader.ReadMessage()
	s.Require().NoError(err)
	return string(msg)
}

func (s *RelaySuite) TestFullAndTaken() {
	bob := s.join("bob")
	defer bob.Close()

	_, err := Join(s.dial(), "bob", Options{})
	s.ErrorIs(err, merr.ErrNameTaken)

	alice := s.join("alice")
	defer alice.Close()

	_, err = Join(s.dial(), "carol", Options{})
	s.ErrorIs(err, merr.ErrRegistryFull)
}

func (s *RelaySuite) TestRunSendsInputUntilQuit() {
	bob := s.join("bob")
	defer bob.Close()
	s.Equal("bob has connected.\n", s.next(bob))

	alice := s.join("alice")
	s.Equal("alice has connected.\n", s.next(bob))

	out := &lockedBuffer{}
	err := alice.Run(context.Background(), strings.NewReader("  hi there \n\n!quit\nignored\n"), out)
	s.NoError(err)

	s.Equal("\x1b[32malice\x1b[0m: hi there\n", s.next(bob))
	s.Equal("alice has quit.\n", s.next(bob))
	s.True(strings.HasSuffix(out.String(), goodbye))
	s.Eventually(func() bool { return s.srv.Registry().Count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}
