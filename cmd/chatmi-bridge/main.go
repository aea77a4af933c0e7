// Command chatmi-bridge serves the JSON-RPC message endpoint and the
// keep-alive event stream in front of a Chatmi webhook.
//
// Configuration is read from the environment; see internal/config.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ggoodman/mcp-chatmi-bridge/chatmi"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/config"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/metrics"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/server"
	"github.com/ggoodman/mcp-chatmi-bridge/messagehttp"
	"github.com/ggoodman/mcp-chatmi-bridge/sessions/memoryhost"
	"github.com/ggoodman/mcp-chatmi-bridge/ssehttp"
)

var version = "dev"

// registryGrace is added to the stream lifetime to get the registry TTL.
const registryGrace = time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("chatmi-bridge.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	client, err := chatmi.New(cfg.ChatmiEndpoint,
		chatmi.WithTimeout(cfg.ChatmiTimeout),
		chatmi.WithLogger(log),
	)
	if err != nil {
		return err
	}

	registry := memoryhost.New(memoryhost.WithTTL(cfg.SSEMaxDuration + registryGrace))
	defer registry.Close()

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.RegisterActiveStreams(preg, registry.Len)
	metrics.SetBuildInfo(version)

	message, err := messagehttp.New(client, messagehttp.WithLogger(log))
	if err != nil {
		return err
	}
	stream, err := ssehttp.New(registry,
		ssehttp.WithLogger(log),
		ssehttp.WithKeepAliveInterval(cfg.SSEKeepAliveInterval),
		ssehttp.WithMaxDuration(cfg.SSEMaxDuration),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(cfg, message, stream, preg),
		ReadHeaderTimeout: 10 * time.Second,
		// Open streams observe shutdown through their request context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.start",
			slog.String("addr", cfg.ListenAddr),
			slog.String("message_path", cfg.MessagePath),
			slog.String("sse_path", cfg.SSEPath),
			slog.String("endpoint", client.Endpoint()),
			slog.String("version", version),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server.shutdown.fail", slog.String("err", err.Error()))
		return err
	}
	log.Info("server.shutdown.ok")
	return nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}
