package session

// Tag 是会话在调色板中的颜色槽位，用于区分不同发送者。
type Tag int

// TagNone 表示调色板已耗尽，会话以无色文本显示。
const TagNone Tag = -1

const (
	ansiReset  = "\x1b[0m"
	ansiItalic = "\x1b[3m"
)

// palette 为可分配的颜色，顺序即轮转顺序。
var palette = [...]string{
	"\x1b[31m", // red
	"\x1b[32m", // green
	"\x1b[33m", // yellow
	"\x1b[34m", // blue
	"\x1b[35m", // magenta
	"\x1b[36m", // cyan
	"\x1b[37m", // white
}

// PaletteSize 返回调色板中的颜色数量。
func PaletteSize() int {
	return len(palette)
}

// Color 返回该标签对应的 ANSI 颜色前缀，TagNone 返回空串。
func (t Tag) Color() string {
	if t < 0 || int(t) >= len(palette) {
		return ""
	}
	return palette[t]
}

// Reset 返回用于结束颜色的 ANSI 序列，TagNone 返回空串。
func (t Tag) Reset() string {
	if t.Color() == "" {
		return ""
	}
	return ansiReset
}

// Italic 返回斜体前缀。
func Italic() string {
	return ansiItalic
}

// ResetAll 返回无条件的 ANSI 复位序列。
func ResetAll() string {
	return ansiReset
}
