package session

// Manager 维护当前所有在线会话，并提供按名字定向发送与广播能力。
//
// 职责说明：
//   - 所有读写都在同一把锁内完成，任一时刻观察到的名字集合都满足唯一性；
//   - 发送只投递到各会话的发送队列，不在锁内执行网络写；
//   - 单个接收方投递失败只记录日志，不影响其他接收方。
type Manager interface {
	// Exists 判断是否已有同名会话。
	Exists(name string) bool

	// Find 按名字查找会话。
	Find(name string) (sess Session, ok bool)

	// Snapshot 按槽位顺序返回当前所有会话名。
	Snapshot() []string

	// SendTo 向指定名字的会话投递 payload，不存在时返回 merr.ErrSessionNotFound。
	SendTo(name string, payload []byte) error

	// BroadcastExcept 向除 senderID 之外的所有会话投递 payload，返回成功投递的数量。
	BroadcastExcept(senderID uint64, payload []byte) int

	// Broadcast 向所有会话投递 payload，返回成功投递的数量。
	Broadcast(payload []byte) int

	// Remove 注销并关闭指定会话，不存在时为空操作。
	Remove(id uint64)

	// Count 返回当前已注册的会话数量。
	Count() int

	// Cap 返回注册表容量。
	Cap() int
}
