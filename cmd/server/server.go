package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"go.uber.org/zap"

	appcfg "Attendly/config"
	"Attendly/internal/bootstrap"
	"Attendly/internal/middleware"
	"Attendly/internal/router"
	"Attendly/internal/service"
	"Attendly/pkg/logger"
	"Attendly/pkg/metrics"
	"Attendly/pkg/otel"
	"Attendly/pkg/snowflake"
	"Attendly/pkg/token"
	"Attendly/storage"
)

func main() {
	appcfg.MustLoad()
	cfg := &appcfg.Cfg

	// 日志部分
	logger.Init()
	defer logger.Sync()

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
			ServiceName:    cfg.ServiceName,
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
			if err := shutdownOTel(flushCtx); err != nil {
				logger.Logger.Warn("Failed to flush telemetry", zap.Error(err))
			}
		}()
	}
	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Metrics disabled", zap.Error(err))
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	deps, err := bootstrap.ServiceDeps(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal("Failed to assemble services", zap.Error(err))
	}
	service.Init(deps)

	// 初始化中间件
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
		zap.String("storage_backend", cfg.StorageBackend),
	)

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	opts := []config.Option{server.WithHostPorts(addr)}

	var tracingMW app.HandlerFunc
	if cfg.OTelEnabled {
		var tracerOpt config.Option
		tracerOpt, tracingMW = middleware.NewServerTracerConfig()
		opts = append(opts, tracerOpt)
	}

	h := server.Default(opts...)
	if tracingMW != nil {
		// 追踪中间件要在路由之前注册
		h.Use(tracingMW)
	}

	router.Register(h)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
