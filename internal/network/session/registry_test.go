package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

func newPipe(t *testing.T) (server net.Conn, client net.Conn) {
	t.Helper()
	server, client = net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return server, client
}

func readMsg(t *testing.T, c net.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, err := c.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func expectSilent(t *testing.T, c net.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err := c.Read(make([]byte, 16))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func admit(t *testing.T, r *Registry, name string) (*BaseSession, net.Conn) {
	t.Helper()
	server, client := newPipe(t)
	sess, err := r.Admit(context.Background(), name, server, nil)
	require.NoError(t, err)
	return sess, client
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(2, Options{})
	admit(t, r, "alice")
	admit(t, r, "bob")

	server, _ := newPipe(t)
	_, err := r.Admit(context.Background(), "carol", server, nil)
	assert.ErrorIs(t, err, merr.ErrRegistryFull)
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, 2, r.Cap())
}

func TestRegistryNameUnique(t *testing.T) {
	r := NewRegistry(3, Options{})
	alice, _ := admit(t, r, "alice")

	server, _ := newPipe(t)
	_, err := r.Admit(context.Background(), "alice", server, nil)
	assert.ErrorIs(t, err, merr.ErrNameTaken)
	assert.True(t, r.Exists("alice"))
	assert.False(t, r.Exists("Alice"))

	r.Remove(alice.ID())
	assert.False(t, r.Exists("alice"))
	again, _ := admit(t, r, "alice")
	assert.Greater(t, again.ID(), alice.ID())
}

func TestRegistryLowestSlotAndSnapshot(t *testing.T) {
	r := NewRegistry(3, Options{})
	admit(t, r, "aaa")
	bbb, _ := admit(t, r, "bbb")
	admit(t, r, "ccc")
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, r.Snapshot())

	r.Remove(bbb.ID())
	assert.Equal(t, []string{"aaa", "ccc"}, r.Snapshot())

	admit(t, r, "ddd")
	assert.Equal(t, []string{"aaa", "ddd", "ccc"}, r.Snapshot())
}

func TestRegistryTryAdd(t *testing.T) {
	r := NewRegistry(1, Options{})
	s1, _ := newPipe(t)
	s2, _ := newPipe(t)

	first := NewBaseSession(context.Background(), "first", s1, Options{})
	second := NewBaseSession(context.Background(), "second", s2, Options{})
	assert.True(t, r.TryAdd(first))
	assert.Equal(t, uint64(1), first.ID())
	assert.False(t, r.TryAdd(second))
	assert.Equal(t, uint64(0), second.ID())
	assert.Equal(t, []string{"first"}, r.Snapshot())
}

func TestRegistryTags(t *testing.T) {
	r := NewRegistry(PaletteSize()+2, Options{})

	sessions := make([]*BaseSession, 0, PaletteSize()+1)
	seen := make(map[Tag]struct{})
	for i := 0; i < PaletteSize(); i++ {
		sess, _ := admit(t, r, fmt.Sprintf("user%d", i))
		assert.NotEqual(t, TagNone, sess.Tag())
		_, dup := seen[sess.Tag()]
		assert.False(t, dup, "tag %d handed out twice", sess.Tag())
		seen[sess.Tag()] = struct{}{}
		sessions = append(sessions, sess)
	}

	extra, _ := admit(t, r, "overflow")
	assert.Equal(t, TagNone, extra.Tag())
	assert.Empty(t, extra.Tag().Color())
	assert.Empty(t, extra.Tag().Reset())

	released := sessions[2].Tag()
	r.Remove(sessions[2].ID())
	next, _ := admit(t, r, "reuse")
	assert.Equal(t, released, next.Tag())
}

func TestRegistryGreetingFirst(t *testing.T) {
	r := NewRegistry(2, Options{})
	server, client := newPipe(t)

	_, err := r.Admit(context.Background(), "alice", server, []byte("ok"))
	require.NoError(t, err)
	r.Broadcast([]byte("alice has connected.\n"))

	assert.Equal(t, "ok", readMsg(t, client))
	assert.Equal(t, "alice has connected.\n", readMsg(t, client))
}

func TestRegistryBroadcastExcept(t *testing.T) {
	r := NewRegistry(3, Options{})
	alice, aliceConn := admit(t, r, "alice")
	_, bobConn := admit(t, r, "bob")
	_, carolConn := admit(t, r, "carol")

	n := r.BroadcastExcept(alice.ID(), []byte("hi"))
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", readMsg(t, bobConn))
	assert.Equal(t, "hi", readMsg(t, carolConn))
	expectSilent(t, aliceConn)
}

func TestRegistrySendTo(t *testing.T) {
	r := NewRegistry(2, Options{})
	_, bobConn := admit(t, r, "bob")

	require.NoError(t, r.SendTo("bob", []byte("psst")))
	assert.Equal(t, "psst", readMsg(t, bobConn))

	err := r.SendTo("nobody", []byte("psst"))
	assert.ErrorIs(t, err, merr.ErrSessionNotFound)

	sess, ok := r.Find("bob")
	require.True(t, ok)
	assert.Equal(t, "bob", sess.Name())
	_, ok = r.Find("nobody")
	assert.False(t, ok)
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry(2, Options{})
	alice, aliceConn := admit(t, r, "alice")

	r.Remove(alice.ID())
	r.Remove(alice.ID())
	r.Remove(12345)
	assert.Equal(t, 0, r.Count())

	_, err := aliceConn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, alice.Send([]byte("late")), merr.ErrSessionClosed)
	assert.Error(t, alice.Context().Err())
}

func TestRegistrySendQueueFull(t *testing.T) {
	r := NewRegistry(1, Options{SendQueueSize: 1})
	_, bobConn := admit(t, r, "bob")

	// 发送协程阻塞在第一条写入上，队列容量为 1。
	require.NoError(t, r.SendTo("bob", []byte("one")))
	require.Eventually(t, func() bool {
		return r.SendTo("bob", []byte("two")) == nil
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, r.SendTo("bob", []byte("three")), merr.ErrSendQueueFull)

	assert.Equal(t, "one", readMsg(t, bobConn))
	assert.Equal(t, "two", readMsg(t, bobConn))
}

func TestRegistryConcurrentAdmit(t *testing.T) {
	r := NewRegistry(5, Options{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			server, client := net.Pipe()
			defer client.Close()
			if _, err := r.Admit(context.Background(), fmt.Sprintf("user%02d", i), server, nil); err != nil {
				_ = server.Close()
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, r.Count())
	assert.Len(t, r.Snapshot(), 5)
	r.CloseAll()
	assert.Equal(t, 0, r.Count())
}

func TestRegistryConcurrentSameName(t *testing.T) {
	r := NewRegistry(8, Options{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server, _ := newPipe(t)
			if _, err := r.Admit(context.Background(), "alice", server, nil); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, []string{"alice"}, r.Snapshot())
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry(2, Options{})
	alice, aliceConn := admit(t, r, "alice")
	admit(t, r, "bob")

	r.CloseAll()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Snapshot())
	assert.Error(t, alice.Context().Err())

	_, err := aliceConn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestRegistryDropLogIsRated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	oldL, oldLevel := log.L(), log.Level()
	log.ReplaceGlobals(zap.New(core), &log.ZapProperties{Core: core, Level: zap.NewAtomicLevelAt(zap.DebugLevel)})
	defer log.ReplaceGlobals(oldL, &log.ZapProperties{Level: oldLevel})

	r := NewRegistry(2, Options{SendQueueSize: 1})
	alice, _ := admit(t, r, "alice")
	admit(t, r, "bob")

	// bob 从不读取，发送协程卡在第一条写入上，之后的消息都会被丢弃。
	const flood = 100
	dropped := 0
	for i := 0; i < flood; i++ {
		dropped += 1 - r.BroadcastExcept(alice.ID(), []byte(fmt.Sprintf("msg %d", i)))
	}

	logged := logs.FilterMessage("drop outbound message").Len()
	assert.Greater(t, dropped, sendFailureBurst+1)
	assert.LessOrEqual(t, logged, sendFailureBurst+1)
	assert.Less(t, logged, dropped)
}

func TestSessionWriteFailureKeepsContext(t *testing.T) {
	r := NewRegistry(1, Options{})
	bob, bobConn := admit(t, r, "bob")
	require.NoError(t, bobConn.Close())

	require.NoError(t, bob.Send([]byte("hello?")))
	require.Eventually(t, bob.WriteFailed, time.Second, time.Millisecond)

	// 写失败只关闭连接，会话仍在注册表中，等待读循环注销。
	assert.NoError(t, bob.Context().Err())
	assert.True(t, r.Exists("bob"))
	assert.ErrorIs(t, bob.Send([]byte("again")), merr.ErrSessionClosed)

	r.Remove(bob.ID())
	assert.Error(t, bob.Context().Err())
	assert.Equal(t, 0, r.Count())
}

func TestRegistryAdmitGreetingFailure(t *testing.T) {
	r := NewRegistry(2, Options{})
	server, _ := newPipe(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Admit(ctx, "alice", server, []byte("ok"))
	assert.ErrorIs(t, err, merr.ErrSessionClosed)
	assert.Equal(t, 0, r.Count())
	assert.False(t, r.Exists("alice"))

	// 失败不占用槽位，后续准入不受影响。
	admit(t, r, "alice")
	assert.Equal(t, 1, r.Count())
}
