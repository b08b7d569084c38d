// Package activitylog 实现只追加的聊天活动日志：公开消息与上下线通知各占一行，私聊不记录。
package activitylog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lk2023060901/danmu-chat-relay/internal/json"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Sink 是活动日志的单向出口。
type Sink interface {
	// Record 追加一条记录。sender 为空表示服务器通知。
	Record(sender, text string) error

	Close() error
}

// Config 为文件型活动日志的配置。
type Config struct {
	Path       string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Option 用于定制 FileSink。
type Option func(*FileSink)

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(s *FileSink) {
		s.now = now
	}
}

// FileSink 将记录写入按大小滚动的文件。
type FileSink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	format string
	now    func() time.Time
	closed bool
}

var _ Sink = (*FileSink)(nil)

// NewFileSink 打开（或创建）cfg.Path 并以追加方式写入。
func NewFileSink(cfg Config, opts ...Option) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, merr.WrapErrParameterMissing("activity.path")
	}
	format := cfg.Format
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, merr.WrapErrParameterInvalid("text|json", format, "activity.format")
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return newSink(lj, format, opts...), nil
}

// NewWriterSink 将记录写入任意 io.WriteCloser。
func NewWriterSink(w io.WriteCloser, format string, opts ...Option) *FileSink {
	if format == "" {
		format = FormatText
	}
	return newSink(w, format, opts...)
}

func newSink(w io.WriteCloser, format string, opts ...Option) *FileSink {
	s := &FileSink{
		w:      w,
		format: format,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type jsonRecord struct {
	Time   string `json:"time"`
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text"`
}

// Record 实现 Sink.Record，每条记录写入后立即落盘。
func (s *FileSink) Record(sender, text string) error {
	ts := s.now().UTC()

	var line []byte
	switch s.format {
	case FormatJSON:
		data, err := json.Marshal(jsonRecord{Time: ts.Format(time.RFC3339), Sender: sender, Text: text})
		if err != nil {
			return errors.Wrap(err, "encode activity record")
		}
		line = append(data, '\n')
	default:
		line = []byte(formatText(ts, sender, text))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return merr.WrapErrServiceUnavailable("activity log closed")
	}
	if _, err := s.w.Write(line); err != nil {
		metrics.ActivityWriteFailures.Inc()
		return merr.WrapErrIoFailed("activity", err)
	}
	metrics.ActivityRecords.Inc()
	return nil
}

// formatText 生成 "[Y-M-D h:m:s] sender: text" 形式的行，各字段不补零。
func formatText(ts time.Time, sender, text string) string {
	stamp := fmt.Sprintf("[%d-%d-%d %d:%d:%d]",
		ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
	if sender == "" {
		return stamp + " " + text + "\n"
	}
	return stamp + " " + sender + ": " + text + "\n"
}

// Close 关闭底层文件，之后的 Record 返回错误。
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}

type nopSink struct{}

// Nop 返回丢弃所有记录的 Sink。
func Nop() Sink {
	return nopSink{}
}

func (nopSink) Record(string, string) error { return nil }

func (nopSink) Close() error { return nil }
