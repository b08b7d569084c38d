// chatcli 是聊天中继的命令行客户端。
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-relay/internal/client"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-relay/internal/protocol"
	"github.com/lk2023060901/danmu-chat-relay/internal/version"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

func main() {
	var (
		addr        = flag.String("addr", fmt.Sprintf("localhost:%d", protocol.DefaultPort), "server address, host:port or ws://host:port/path")
		framing     = flag.String("framing", framer.ModeRaw, "message framing: raw or line")
		attempts    = flag.Uint("attempts", 3, "dial attempts before giving up")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("chatcli", version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithModule(ctx, "chatcli")

	if err := run(ctx, *addr, *framing, *attempts); err != nil {
		fmt.Fprintf(os.Stderr, "chatcli: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, framing string, attempts uint) error {
	f, err := framer.New(framing, protocol.DefaultBuffSize)
	if err != nil {
		return err
	}

	var dialer connector.Connector
	cfg := connector.Config{Attempts: attempts}
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		dialer = connector.NewWSConnector(cfg)
	} else {
		dialer = connector.NewTCPConnector(cfg)
	}

	opts := client.Options{Framer: f, Rules: protocol.DefaultNameRules()}
	stdin := bufio.NewReader(os.Stdin)

	for {
		name, err := askName(stdin, opts.Rules)
		if err != nil {
			return err
		}

		conn, err := dialer.Dial(ctx, addr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error connecting to server. Try again later.")
			return err
		}

		c, err := client.Join(conn, name, opts)
		switch {
		case err == nil:
			return c.Run(ctx, stdin, os.Stdout)
		case errors.Is(err, merr.ErrRegistryFull):
			fmt.Fprintln(os.Stderr, "The server is full. Please try again.")
		case errors.Is(err, merr.ErrNameTaken):
			fmt.Fprintln(os.Stderr, "Your name already exists in the server. Please, try again.")
		default:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// askName 反复提示输入名字，直到通过本地校验。
func askName(in *bufio.Reader, rules protocol.NameRules) (string, error) {
	for {
		fmt.Println("Please type your name: ")
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", errors.Wrap(err, "read name")
		}
		name := strings.TrimSpace(line)
		if hint := client.NameHint(name, rules); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
			continue
		}
		return name, nil
	}
}
