package funcutil

import (
	"context"
	"strings"
	"unicode"
)

// CheckCtxValid 判断 ctx 是否仍然有效（未取消且未超时）。
func CheckCtxValid(ctx context.Context) bool {
	return ctx.Err() == nil
}

// ContainsSpace 判断字符串中是否含有任意空白字符。
func ContainsSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// TrimMessage 去掉消息两端的空白字符（包括行尾的 \r\n）。
func TrimMessage(b []byte) string {
	return strings.TrimSpace(string(b))
}
