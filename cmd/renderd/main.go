package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/oskarlund/tilerender/internal/coalesce"
	"github.com/oskarlund/tilerender/internal/compose"
	"github.com/oskarlund/tilerender/internal/config"
	"github.com/oskarlund/tilerender/internal/fetch/httpfetch"
	"github.com/oskarlund/tilerender/internal/fetch/redisfetch"
	"github.com/oskarlund/tilerender/internal/httpclient"
	"github.com/oskarlund/tilerender/internal/invalidation/kafkaconsumer"
	"github.com/oskarlund/tilerender/internal/logger"
	"github.com/oskarlund/tilerender/internal/observability"
	"github.com/oskarlund/tilerender/internal/render/software"
	"github.com/oskarlund/tilerender/internal/server"
	"github.com/oskarlund/tilerender/internal/tilepool"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Component: "renderd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting renderd",
		"addr", cfg.Addr,
		"version", Version,
		"sources", len(cfg.Sources),
		"block_size", cfg.BlockSize,
		"oversample", cfg.Oversample)

	if len(cfg.Sources) == 0 {
		appLog.Error("no tile sources configured (set TILE_SOURCES)")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := httpclient.NewOutbound()
	registry := tilepool.NewRegistry()
	for source, tmpl := range cfg.Sources {
		var backend tilepool.Backend = httpfetch.New(source, tmpl, client, appLog)
		if cfg.RedisAddr != "" {
			rb, err := redisfetch.New(ctx, cfg.RedisAddr, backend, cfg.RedisTTL, appLog)
			if err != nil {
				appLog.Error("redis tile cache setup failed", "err", err)
				return 1
			}
			defer func() { _ = rb.Close() }()
			backend = rb
		}
		mgr := tilepool.New(source, backend, tilepool.Config{
			Capacity:    cfg.CacheCapacity,
			LoadTimeout: cfg.LoadTimeout,
		}, appLog)
		registry.Register(source, mgr)
	}

	comp := compose.New(software.New(), software.NewStyle(), compose.Config{
		BlockSize:  cfg.BlockSize,
		Oversample: cfg.Oversample,
	}, appLog)
	sched := coalesce.New(registry, comp, appLog)

	if cfg.Invalidation.Enabled && cfg.Invalidation.Driver == "kafka" {
		kcfg := kafkaconsumer.FromEnv()
		cons := kafkaconsumer.New(kcfg, appLog, sched)
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, appLog, sched); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
