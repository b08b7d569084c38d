package client

import (
	"bufio"
	"io"
	"strings"
)

// inputReader 按行读取用户输入。超过 limit-1 字节的行只保留前缀，
// 其余部分丢弃到行尾。
type inputReader struct {
	r     *bufio.Reader
	limit int
}

func newInputReader(r io.Reader, limit int) *inputReader {
	return &inputReader{r: bufio.NewReader(r), limit: limit}
}

// ReadLine 返回去除首尾空白后的一行。最后一行没有换行符时同样返回。
func (ir *inputReader) ReadLine() (string, error) {
	var b strings.Builder
	maxLen := ir.limit - 1
	for {
		chunk, isPrefix, err := ir.r.ReadLine()
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return strings.TrimSpace(b.String()), nil
			}
			return "", err
		}
		if room := maxLen - b.Len(); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			b.Write(chunk)
		}
		if !isPrefix {
			return strings.TrimSpace(b.String()), nil
		}
	}
}
