// Package json 基于 bytedance/sonic 提供与 encoding/json 兼容的编解码函数。
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

var (
	api = sonic.ConfigStd

	// Marshal 等价于 encoding/json.Marshal。
	Marshal = api.Marshal

	// MarshalIndent 等价于 encoding/json.MarshalIndent。
	MarshalIndent = api.MarshalIndent

	// Unmarshal 等价于 encoding/json.Unmarshal。
	Unmarshal = api.Unmarshal
)

// NewEncoder 返回写入 w 的编码器，每次 Encode 输出一行。
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// NewDecoder 返回从 r 读取的解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}
