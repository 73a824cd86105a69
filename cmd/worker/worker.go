package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Attendly/config"
	"Attendly/internal/bootstrap"
	"Attendly/internal/cache"
	"Attendly/internal/queue"
	"Attendly/internal/service"
	"Attendly/pkg/logger"
	"Attendly/pkg/otel"
	"Attendly/pkg/snowflake"
	"Attendly/storage"
	"Attendly/storage/redis"
)

func main() {
	config.MustLoad()
	cfg := &config.Cfg

	logger.Init()
	defer logger.Sync()

	// 消费者依赖 MQ 与 redis 去重，memory 模式下没有可消费的事件
	if cfg.IsMemoryBackend() {
		logger.Logger.Fatal("Worker requires STORAGE_BACKEND=postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if cfg.OTelEnabled {
		shutdownOTel, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:    cfg.ServiceName + "-worker",
			ServiceVersion: cfg.ServiceVersion,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTelEndpoint,
			SampleRatio:    cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			_ = shutdownOTel(flushCtx)
		}()
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// 不同 worker 实例应使用不同的 SNOWFLAKE_MACHINE_ID
	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	deps, err := bootstrap.ServiceDeps(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal("Failed to assemble services", zap.Error(err))
	}
	service.Init(deps)

	watcher := queue.NewCriteriaWatcher(
		service.Criteria(),
		cache.NewMessageGuard(redis.Client(), cfg.RedisPrefix),
		cfg.MarkEventsExchange,
	)

	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
	)

	queue.StartAllConsumers(ctx,
		queue.Consumer{Name: "criteria_watcher", Start: watcher.Start},
	)

	logger.Logger.Info("Worker service shutting down gracefully")
}
