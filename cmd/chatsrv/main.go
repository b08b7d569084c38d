// chatsrv 启动聊天中继服务器。
//
// 配置按 ./config.yaml、CHAT_CONFIG_FILE_PATH、--config 的顺序解析，
// 每个配置项均可由 CHAT_<SECTION>_<KEY> 环境变量覆盖。
package main

import (
	"context"
	"fmt"
	"net/http"
	// #nosec
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-chat-relay/application"
	"github.com/lk2023060901/danmu-chat-relay/internal/activitylog"
	"github.com/lk2023060901/danmu-chat-relay/internal/config"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-relay/internal/relay"
	"github.com/lk2023060901/danmu-chat-relay/internal/version"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
)

const shutdownTimeout = 3 * time.Second

func main() {
	args := os.Args[1:]
	if lo.Contains(args, "--version") {
		fmt.Println("chatsrv", version.String())
		return
	}

	app := application.New()
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "chatsrv: %v\n", err)
		os.Exit(1)
	}
	defer log.Cleanup()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app); err != nil {
		log.Error("chatsrv exited with error", zap.Error(err))
		_ = log.Sync()
		log.Cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *application.Application) error {
	cfg := app.Relay()
	logger := app.Logger("relay")
	logger.Info("starting chat relay",
		zap.String("version", version.String()),
		zap.Int("maxClients", cfg.Relay.MaxClients),
		zap.String("framing", cfg.Server.Framing))

	sink, err := openActivityLog(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close activity log failed", zap.Error(err))
		}
	}()

	srv, err := relay.NewServer(cfg, sink)
	if err != nil {
		return err
	}
	srv.SetLogger(logger.With(log.FieldComponent("relay")))
	defer srv.Shutdown()

	tcp, err := acceptor.NewTCPAcceptor(cfg.Server.TCPAddr, acceptor.Config{
		Transport: "tcp",
		PoolSize:  cfg.PoolSize(),
	})
	if err != nil {
		return err
	}
	logger.Info("tcp listener ready", zap.Stringer("addr", tcp.Addr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tcp.Serve(gctx, srv)
	})

	if cfg.WS.Enable {
		ws, err := acceptor.ListenWS(cfg.WS.Addr, acceptor.Config{
			Transport: "ws",
			PoolSize:  cfg.PoolSize(),
			Path:      cfg.WS.Path,
		})
		if err != nil {
			_ = tcp.Close()
			return err
		}
		logger.Info("websocket listener ready", zap.Stringer("addr", ws.Addr()), zap.String("path", cfg.WS.Path))
		g.Go(func() error {
			return ws.Serve(gctx, srv)
		})
	}

	if cfg.Metrics.Enable {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics, logger)
		})
	}

	err = g.Wait()
	logger.Info("chat relay stopped", zap.Int("sessions", srv.Registry().Count()))
	return err
}

func openActivityLog(cfg *config.Config) (activitylog.Sink, error) {
	if !cfg.Activity.Enable {
		return activitylog.Nop(), nil
	}
	sink, err := activitylog.NewFileSink(activitylog.Config{
		Path:       cfg.Activity.Path,
		Format:     cfg.Activity.Format,
		MaxSizeMB:  cfg.Activity.MaxSizeMB,
		MaxBackups: cfg.Activity.MaxBackups,
		MaxAgeDays: cfg.Activity.MaxAgeDays,
		Compress:   cfg.Activity.Compress,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open activity log")
	}
	return sink, nil
}

// serveMetrics 暴露 Prometheus 指标，/debug/pprof/ 由 net/http/pprof 注册在默认 mux 上。
func serveMetrics(ctx context.Context, cfg config.MetricsConfig, logger *log.MLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint ready", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve metrics")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
