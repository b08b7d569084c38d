package log

import (
	"net"

	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSessionID = "sessionID"
	FieldNameStage     = "stage"
	FieldNameClient    = "client"
	FieldNameRemote    = "remote"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldStage 返回一个标记处理阶段的 zap 字段。
func FieldStage(stage string) zap.Field {
	return zap.String(FieldNameStage, stage)
}

// FieldSessionID 返回一个包含会话 ID 的 zap 字段。
func FieldSessionID(id uint64) zap.Field {
	return zap.Uint64(FieldNameSessionID, id)
}

// FieldClient 返回一个包含客户端显示名的 zap 字段。
func FieldClient(name string) zap.Field {
	return zap.String(FieldNameClient, name)
}

// FieldRemote 返回一个包含对端地址的 zap 字段，addr 为 nil 时记为空串。
func FieldRemote(addr net.Addr) zap.Field {
	if addr == nil {
		return zap.String(FieldNameRemote, "")
	}
	return zap.String(FieldNameRemote, addr.String())
}
