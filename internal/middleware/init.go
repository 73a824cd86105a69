package middleware

import (
	"go.uber.org/zap"

	"Attendly/config"
	"Attendly/pkg/logger"
)

// Init 初始化中间件，需在 token.Init 与 storage.Init 之后调用
func Init() error {
	if err := initAuthMiddleware(); err != nil {
		logger.Logger.Error("Failed to initialize auth middleware", zap.Error(err))
		return err
	}

	// 指标不可用不影响签到
	if err := initHTTPMetrics(); err != nil {
		logger.Logger.Warn("HTTP metrics disabled", zap.Error(err))
	}

	scanLimit := scanRateLimitEnabled()
	if config.Cfg.RateLimitEnabled && !scanLimit {
		logger.Logger.Warn("Scan rate limit requested but redis is unavailable or RATE_LIMIT_SCAN_RPM is 0, identity scans are not limited")
	}

	logger.Logger.Info("All middlewares initialized successfully",
		zap.Bool("scan_rate_limit", scanLimit),
		zap.Int("scan_rpm", config.Cfg.RateLimitScanRPM),
	)
	return nil
}
