package network

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
)

// Stage 表示会话处理链路中的阶段。
//
// 主要用于在日志中标记错误发生的位置，便于排查。
type Stage string

const (
	StageHandshake Stage = "handshake" // 容量检查与名字交换
	StageRecv      Stage = "recv"      // 读取底层连接数据
	StageRoute     Stage = "route"     // 消息 -> 路由处理
	StageSend      Stage = "send"      // 写入对端
	StageCleanup   Stage = "cleanup"   // 会话注销与连接关闭
)

func (s Stage) String() string {
	return string(s)
}

// Field 返回用于日志的 stage 字段。
func (s Stage) Field() zap.Field {
	return log.FieldStage(string(s))
}
