// Package client 实现聊天中继的命令行客户端：握手注册名字，然后并发地
// 打印服务器消息并把用户输入转发给服务器。
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

const (
	// Prompt 为每次等待输入前打印的提示符。
	Prompt = "> "

	lostConnection = "Lost connection with the server.\n"
	goodbye        = "Goodbye.\n"
)

// Options 为客户端的可选配置。
type Options struct {
	// Framer 与服务器使用的分帧方式一致，默认 raw。
	Framer framer.Framer
	// Rules 为提交前在本地执行的名字校验规则。
	Rules protocol.NameRules
	// MsgSize 为单条输入消息的最大字节数，超出部分被丢弃。
	MsgSize int
}

func (o Options) withDefaults() Options {
	if o.Framer == nil {
		o.Framer = framer.NewRawFramer(protocol.DefaultBuffSize)
	}
	if o.Rules.Size == 0 {
		o.Rules = protocol.DefaultNameRules()
	}
	if o.MsgSize <= 0 {
		o.MsgSize = protocol.DefaultMsgSize
	}
	return o
}

// Client 是一条已完成握手的客户端连接。
type Client struct {
	log.Binder

	name     string
	conn     net.Conn
	framer   framer.Framer
	reader   framer.Reader
	msgSize  int
	leftover []byte

	closed    atomic.Bool
	closeOnce sync.Once
}

// Join 在 conn 上完成握手并注册 name。
//
// 服务器已满时返回 merr.ErrRegistryFull，名字不可用时返回 merr.ErrNameTaken。
// 名字未通过本地校验时返回 merr.ErrNameInvalid，此时不会读写 conn。
// 握手失败时 conn 会被关闭。
func Join(conn net.Conn, name string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if err := opts.Rules.Validate(name); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		name:    name,
		conn:    conn,
		framer:  opts.Framer,
		reader:  opts.Framer.NewReader(conn),
		msgSize: opts.MsgSize,
	}
	c.SetLogger(log.With(log.FieldComponent("client"), log.FieldClient(name)))

	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	status, err := c.readStatus()
	if err != nil {
		return err
	}
	if strings.HasPrefix(status, protocol.ErrStatus) {
		return errors.Wrap(merr.ErrRegistryFull, "server is full")
	}

	if err := c.framer.WriteMessage(c.conn, []byte(c.name)); err != nil {
		return merr.WrapErrIoFailed("name", err)
	}

	status, err = c.readStatus()
	if err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(status, protocol.ErrStatus):
		return merr.WrapErrNameTaken(c.name)
	case strings.HasPrefix(status, protocol.OKStatus):
		// 第二个 OK 之后可能紧跟着已到达的广播。
		rest := strings.TrimPrefix(status, protocol.OKStatus)
		rest = strings.TrimPrefix(rest, "\n")
		if rest != "" {
			c.leftover = []byte(rest)
		}
		return nil
	default:
		return merr.WrapErrHandshakeRejected(errors.Newf("unexpected status %q", status))
	}
}

func (c *Client) readStatus() (string, error) {
	msg, err := c.reader.ReadMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", merr.WrapErrIoUnexpectEOF("status", err)
		}
		return "", merr.WrapErrIoFailed("status", err)
	}
	return string(msg), nil
}

// Name 返回注册成功的名字。
func (c *Client) Name() string {
	return c.name
}

// Send 向服务器发送一条消息。
func (c *Client) Send(msg string) error {
	if err := c.framer.WriteMessage(c.conn, []byte(msg)); err != nil {
		return merr.WrapErrIoFailed("send", err)
	}
	return nil
}

// Close 关闭连接，可重复调用。
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// Run 打印欢迎信息后并发执行两个循环：把服务器消息写到 out，
// 把 in 中的每行输入发给服务器。
//
// 输入 !quit、输入结束、服务器断开或 ctx 取消时返回，返回前关闭连接。
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w := &syncWriter{w: out}
	w.WriteString(Banner())

	listenDone := make(chan error, 1)
	go func() { listenDone <- c.listen(w) }()

	promptDone := make(chan error, 1)
	go func() { promptDone <- c.prompt(in, w) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-promptDone:
	case err = <-listenDone:
		listenDone = nil
	}
	_ = c.Close()
	if listenDone != nil {
		<-listenDone
	}

	w.WriteString(goodbye)
	return err
}

// listen 持续读取服务器消息，连接断开时返回 nil。
func (c *Client) listen(w *syncWriter) error {
	if len(c.leftover) > 0 {
		w.WriteString(string(c.leftover) + Prompt)
		c.leftover = nil
	}
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				w.WriteString(lostConnection)
				return nil
			}
			c.Logger().Debug("read from server failed", zap.Error(err))
			w.WriteString(lostConnection)
			return merr.WrapErrIoFailed("recv", err)
		}
		w.WriteString(string(msg) + Prompt)
	}
}

// prompt 逐行读取输入并发送，!quit 或输入结束时返回 nil。
func (c *Client) prompt(in io.Reader, w *syncWriter) error {
	input := newInputReader(in, c.msgSize)
	for {
		w.WriteString(Prompt)
		line, err := input.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return merr.WrapErrIoFailed("stdin", err)
		}
		if line == "" {
			continue
		}
		if line == protocol.QuitCmd {
			return nil
		}
		if err := c.Send(line); err != nil {
			return err
		}
	}
}

// Banner 返回注册成功后打印的欢迎信息。
func Banner() string {
	var b strings.Builder
	b.WriteString("\n****************************\n")
	b.WriteString("****************************\n")
	b.WriteString("* Welcome to the Chat Room *\n")
	b.WriteString("****************************\n")
	b.WriteString("****************************\n")
	fmt.Fprintf(&b, "\nType %s to leave the chatroom.\n", protocol.QuitCmd)
	fmt.Fprintf(&b, "Type %s to show all clients connected to the chatroom.\n", protocol.ListCmd)
	fmt.Fprintf(&b, "Type %s and the client name to send a private message.\n\n", protocol.WhispCmd)
	return b.String()
}

// NameHint 返回名字未通过 rules 校验时提示给用户的信息，合法时返回空串。
func NameHint(name string, rules protocol.NameRules) string {
	switch rules.Check(name) {
	case protocol.ReasonTooShort:
		return fmt.Sprintf("Your name has to be at least %d characters long.", rules.MinLen)
	case protocol.ReasonTooLong:
		return fmt.Sprintf("Your name can't exceed %d characters long.", rules.MaxLen())
	case protocol.ReasonHasSpaces:
		return "Your name can't contain a whitespace in between."
	}
	return ""
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) WriteString(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, str)
}
