// Package protocol 定义客户端与服务器之间交换的握手令牌、命令与消息格式。
package protocol

import (
	"strings"
	"unicode/utf8"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/funcutil"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// 握手令牌。ERR 同时用于“服务器已满”与“名字不可用”。
const (
	OKStatus  = "ok"
	ErrStatus = "err"
)

// 客户端命令。
const (
	ListCmd  = "!list"
	WhispCmd = "!whisp"
	QuitCmd  = "!quit"
)

// 默认长度限制。
const (
	DefaultNameSize   = 32
	DefaultMinNameLen = 3
	DefaultMsgSize    = 1024
	DefaultBuffSize   = 2048
	DefaultMaxClients = 7
	DefaultPort       = 6969
)

const (
	NotFoundNotice = "Client not found.\n"

	ReasonTooShort  = "too short"
	ReasonTooLong   = "too long"
	ReasonHasSpaces = "contains whitespace"
)

// NameRules 描述名字的长度约束，长度按字符计。
type NameRules struct {
	MinLen int
	// Size 为名字缓冲区大小，名字最多 Size-1 个字符。
	Size int
}

// DefaultNameRules 返回默认的名字约束。
func DefaultNameRules() NameRules {
	return NameRules{MinLen: DefaultMinNameLen, Size: DefaultNameSize}
}

// MaxLen 返回名字允许的最大字符数。
func (r NameRules) MaxLen() int {
	return r.Size - 1
}

// Check 返回名字不合法的原因，合法时返回空串。
// 原因为 ReasonTooLong、ReasonTooShort 或 ReasonHasSpaces，按此顺序判定。
func (r NameRules) Check(name string) string {
	n := utf8.RuneCountInString(name)
	switch {
	case n > r.MaxLen():
		return ReasonTooLong
	case n < r.MinLen:
		return ReasonTooShort
	case funcutil.ContainsSpace(name):
		return ReasonHasSpaces
	}
	return ""
}

// Validate 校验名字，失败时返回携带原因的 merr.ErrNameInvalid。
func (r NameRules) Validate(name string) error {
	if reason := r.Check(name); reason != "" {
		return merr.WrapErrNameInvalid(name, reason)
	}
	return nil
}

// ParseWhisper 解析私聊消息：按空格切分并丢弃空片段，第 0 段忽略，
// 第 1 段为目标名，其余以单个空格重新拼接为正文。缺少目标名时 ok 为 false。
func ParseWhisper(msg string) (target string, body string, ok bool) {
	fields := strings.FieldsFunc(msg, func(r rune) bool { return r == ' ' })
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[1], strings.Join(fields[2:], " "), true
}

// IsList 判断消息是否为名单命令，要求完全匹配。
func IsList(msg string) bool {
	return msg == ListCmd
}

// IsWhisper 判断消息是否包含私聊命令。
func IsWhisper(msg string) bool {
	return strings.Contains(msg, WhispCmd)
}

// StyledName 为带颜色的发送者名前缀。color/reset 为空时输出纯文本。
type StyledName struct {
	Name  string
	Color string
	Reset string
}

// FormatBroadcast 生成 "<color>name<reset>: text\n"。
func FormatBroadcast(from StyledName, text string) string {
	return from.Color + from.Name + from.Reset + ": " + text + "\n"
}

// FormatWhisper 生成 "<color><italic>name<reset>: body\n"，发送者名以斜体显示。
func FormatWhisper(from StyledName, italic, reset, body string) string {
	return from.Color + italic + from.Name + reset + ": " + body + "\n"
}

// ConnectedNotice 返回上线通知正文（不含换行）。
func ConnectedNotice(name string) string {
	return name + " has connected."
}

// QuitNotice 返回下线通知正文（不含换行）。
func QuitNotice(name string) string {
	return name + " has quit."
}

// FormatNotice 为服务器通知追加换行。
func FormatNotice(notice string) string {
	return notice + "\n"
}

// FormatRoster 生成名单："\n" 后每个名字占一行。
// 总长度达到 limit 后不再追加新名字，结果截断到 limit 字节。
func FormatRoster(names []string, limit int) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, name := range names {
		if limit > 0 && b.Len() >= limit {
			break
		}
		b.WriteString(name)
		b.WriteString("\n")
	}
	out := b.String()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
