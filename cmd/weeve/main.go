package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hxnx/weeve/config"
	"github.com/hxnx/weeve/internal/bot"
	"github.com/hxnx/weeve/internal/database"
	"github.com/hxnx/weeve/internal/metrics"
	"github.com/hxnx/weeve/internal/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		fmt.Fprintln(os.Stderr, "Set DISCORD_TOKEN and DISCORD_APPLICATION_ID, optionally in a .env file.")
		os.Exit(1)
	}

	logger := buildLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Weeve stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}
	return builtLogger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mode := "production"
	if cfg.IsDevelopment() {
		mode = "development"
	}
	logger.Info("Starting Weeve",
		zap.String("mode", mode),
		zap.String("default_source", cfg.DefaultSource),
		zap.Bool("youtube_enabled", cfg.YouTubeEnabled()),
		zap.Bool("database_enabled", cfg.GetDBConfig().Enabled),
		zap.Bool("redis_enabled", cfg.GetRedisConfig().Enabled),
		zap.Int("shard_count", cfg.ShardCount))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	b, err := bot.New(ctx, cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gCtx)
	})

	if cfg.MetricsAddr != "" {
		checks := []metrics.Check{
			{Name: "database", Fn: database.Ping},
			{Name: "redis", Fn: redis.Ping},
		}
		server := metrics.NewServer(cfg.MetricsAddr, reg, checks, logger)
		g.Go(func() error {
			return server.Start(gCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Weeve stopped gracefully")
	return nil
}
