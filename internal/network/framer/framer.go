package framer

import (
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// Framer 抽象了在字节流上划分逻辑消息的方式。
//
// 约定：
//   - 读取端由 NewReader 创建，一个连接只创建一次，握手与会话共用同一个 Reader，
//     以免握手阶段预读的数据丢失。
//   - ReadMessage 返回的切片归调用方所有。
type Framer interface {
	// NewReader 在 r 上创建消息读取器。
	NewReader(r io.Reader) Reader

	// WriteMessage 将一条逻辑消息写入 w。
	WriteMessage(w io.Writer, p []byte) error
}

// Reader 逐条读取逻辑消息。
type Reader interface {
	// ReadMessage 读取下一条消息。对端正常关闭时返回 io.EOF。
	ReadMessage() ([]byte, error)
}

const (
	ModeRaw  = "raw"
	ModeLine = "line"

	defaultMaxMessageSize = 2048
)

// New 按模式名创建 Framer，mode 为空时使用 raw。
func New(mode string, maxSize int) (Framer, error) {
	switch mode {
	case "", ModeRaw:
		return NewRawFramer(maxSize), nil
	case ModeLine:
		return NewLineFramer(maxSize), nil
	default:
		return nil, merr.WrapErrParameterInvalid("raw|line", mode, "unknown framing mode")
	}
}

// RawFramer 将一次成功的读取视为一条消息，单次读取至多 MaxSize 字节。
// 写入时原样输出，不附加任何边界。
type RawFramer struct {
	MaxSize int
}

func NewRawFramer(maxSize int) *RawFramer {
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	return &RawFramer{MaxSize: maxSize}
}

func (f *RawFramer) NewReader(r io.Reader) Reader {
	return &rawReader{r: r, buf: make([]byte, f.MaxSize)}
}

func (f *RawFramer) WriteMessage(w io.Writer, p []byte) error {
	_, err := w.Write(p)
	return err
}

type rawReader struct {
	r   io.Reader
	buf []byte
	err error
}

func (r *rawReader) ReadMessage() ([]byte, error) {
	for {
		if r.err != nil {
			return nil, r.err
		}
		n, err := r.r.Read(r.buf)
		// 先交付已读到的数据，错误留到下一次调用返回。
		r.err = err
		if n > 0 {
			msg := make([]byte, n)
			copy(msg, r.buf[:n])
			return msg, nil
		}
	}
}

// LineFramer 以 '\n' 为消息边界，返回的消息不含换行符。
// 超过 MaxSize 的行被整行丢弃。
type LineFramer struct {
	MaxSize int
}

func NewLineFramer(maxSize int) *LineFramer {
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	return &LineFramer{MaxSize: maxSize}
}

func (f *LineFramer) NewReader(r io.Reader) Reader {
	return &lineReader{br: bufio.NewReaderSize(r, f.MaxSize)}
}

func (f *LineFramer) WriteMessage(w io.Writer, p []byte) error {
	if bytes.HasSuffix(p, []byte{'\n'}) {
		_, err := w.Write(p)
		return err
	}
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

type lineReader struct {
	br *bufio.Reader
}

func (r *lineReader) ReadMessage() ([]byte, error) {
	for {
		line, err := r.br.ReadSlice('\n')
		switch {
		case err == nil:
			return cloneLine(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			if err := r.discardLine(); err != nil {
				return nil, err
			}
		case errors.Is(err, io.EOF) && len(line) > 0:
			// 末尾没有换行符的残留数据也算一条消息。
			return cloneLine(line), nil
		default:
			return nil, err
		}
	}
}

func (r *lineReader) discardLine() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func cloneLine(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	out := make([]byte, len(line))
	copy(out, line)
	return out
}
