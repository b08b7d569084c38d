package session

import (
	"context"
	"net"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/typeutil"
)

// Registry 是固定容量的会话表，提供 Manager 的实现。
//
// 特性：
//   - 新会话占用下标最小的空槽位，Snapshot 按槽位顺序返回；
//   - 会话 ID 从 1 开始单调递增，永不复用；
//   - 颜色标签从未被占用的调色板颜色中轮转分配，注销时归还该会话自己的标签；
//   - 一把互斥锁保护全部状态。
type Registry struct {
	log.Binder

	mu       sync.Mutex
	slots    []*BaseSession
	count    int
	usedTags typeutil.Set[Tag]
	nextTag  int

	nextID atomic.Uint64
	opts   Options
}

// 确保 Registry 实现了 Manager 接口。
var _ Manager = (*Registry)(nil)

// NewRegistry 创建容量为 capacity 的注册表，opts 用于 Admit 创建的会话。
func NewRegistry(capacity int, opts Options) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry{
		slots:    make([]*BaseSession, capacity),
		usedTags: typeutil.NewSet[Tag](),
		opts:     opts,
	}
}

// TryAdd 将会话放入下标最小的空槽位并分配 ID 与标签。
// 注册表已满时返回 false，不产生任何副作用。
func (r *Registry) TryAdd(sess *BaseSession) bool {
	r.mu.Lock()
	ok := r.tryAddLocked(sess)
	r.mu.Unlock()

	if ok {
		sess.start()
	}
	return ok
}

// Admit 在一次加锁内完成重名检查、容量检查与注册。
//
// greeting 非空时作为该会话的第一条出站消息入队，先于注册后任何广播写出。
// 失败时返回 merr.ErrNameTaken 或 merr.ErrRegistryFull，conn 的所有权仍归调用方。
func (r *Registry) Admit(ctx context.Context, name string, conn net.Conn, greeting []byte) (*BaseSession, error) {
	r.mu.Lock()
	if r.existsLocked(name) {
		r.mu.Unlock()
		return nil, merr.WrapErrNameTaken(name)
	}
	if r.count >= len(r.slots) {
		r.mu.Unlock()
		return nil, merr.WrapErrRegistryFull(len(r.slots))
	}

	sess := NewBaseSession(ctx, name, conn, r.opts)
	if len(greeting) > 0 {
		if err := sess.Send(greeting); err != nil {
			r.mu.Unlock()
			sess.cancel()
			return nil, err
		}
	}
	r.tryAddLocked(sess)
	r.mu.Unlock()

	sess.start()
	return sess, nil
}

func (r *Registry) tryAddLocked(sess *BaseSession) bool {
	for i, slot := range r.slots {
		if slot != nil {
			continue
		}
		sess.bind(r.nextID.Inc(), r.allocTagLocked())
		r.slots[i] = sess
		r.count++
		metrics.ConnectedSessions.Set(float64(r.count))
		return true
	}
	return false
}

// allocTagLocked 从 nextTag 起寻找第一个未占用的颜色，全部占用时返回 TagNone。
func (r *Registry) allocTagLocked() Tag {
	n := PaletteSize()
	for i := 0; i < n; i++ {
		tag := Tag((r.nextTag + i) % n)
		if r.usedTags.Contain(tag) {
			continue
		}
		r.usedTags.Insert(tag)
		r.nextTag = (int(tag) + 1) % n
		return tag
	}
	return TagNone
}

// Remove 实现 Manager.Remove。
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	var removed *BaseSession
	for i, slot := range r.slots {
		if slot != nil && slot.ID() == id {
			removed = slot
			r.releaseLocked(i)
			break
		}
	}
	r.mu.Unlock()

	if removed != nil {
		if err := removed.Close(); err != nil {
			removed.Logger().Debug("close session", network.StageCleanup.Field(), zap.Error(err))
		}
	}
}

func (r *Registry) releaseLocked(i int) {
	r.usedTags.Remove(r.slots[i].Tag())
	r.slots[i] = nil
	r.count--
	metrics.ConnectedSessions.Set(float64(r.count))
}

// Exists 实现 Manager.Exists。
func (r *Registry) Exists(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.existsLocked(name)
}

func (r *Registry) existsLocked(name string) bool {
	return r.findLocked(name) != nil
}

func (r *Registry) findLocked(name string) *BaseSession {
	for _, slot := range r.slots {
		if slot != nil && slot.Name() == name {
			return slot
		}
	}
	return nil
}

// Find 实现 Manager.Find。
func (r *Registry) Find(name string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.findLocked(name)
	if sess == nil {
		return nil, false
	}
	return sess, true
}

// Snapshot 实现 Manager.Snapshot。
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.FilterMap(r.slots, func(slot *BaseSession, _ int) (string, bool) {
		if slot == nil {
			return "", false
		}
		return slot.Name(), true
	})
}

// SendTo 实现 Manager.SendTo。
func (r *Registry) SendTo(name string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.findLocked(name)
	if sess == nil {
		return merr.WrapErrSessionNotFound(name)
	}
	if err := sess.Send(payload); err != nil {
		metrics.SendFailures.Inc()
		return err
	}
	return nil
}

// BroadcastExcept 实现 Manager.BroadcastExcept。
func (r *Registry) BroadcastExcept(senderID uint64, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, slot := range r.slots {
		if slot == nil || slot.ID() == senderID {
			continue
		}
		if err := slot.Send(payload); err != nil {
			metrics.SendFailures.Inc()
			slot.Logger().RatedWarn(1, "drop outbound message", network.StageSend.Field(), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast 实现 Manager.Broadcast。会话 ID 从 1 开始，0 不排除任何会话。
func (r *Registry) Broadcast(payload []byte) int {
	return r.BroadcastExcept(0, payload)
}

// Count 实现 Manager.Count。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap 实现 Manager.Cap。
func (r *Registry) Cap() int {
	return len(r.slots)
}

// CloseAll 注销并关闭所有会话，用于进程退出。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := lo.Compact(r.slots)
	for i := range r.slots {
		if r.slots[i] != nil {
			r.releaseLocked(i)
		}
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
	}
	r.Logger().Info("all sessions closed", zap.Int("count", len(sessions)))
}
