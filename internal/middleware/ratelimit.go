package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Attendly/config"
	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
	"Attendly/pkg/response"
	"Attendly/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 是否按操作员限流（需要认证）
	ByOperator bool
	// 是否按IP限流
	ByIP bool
	// 超限后禁止访问的时长（秒），0 表示不额外封禁
	BlockDuration int
}

// ScanRateLimitConfig 扫码解析限流：每个操作员每分钟 RATE_LIMIT_SCAN_RPM 次
func ScanRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:      60,
		MaxRequests: config.Cfg.RateLimitScanRPM,
		KeyPrefix:   "rate:scan",
		ByOperator:  true,
		ByIP:        true,
	}
}

// RateLimiter 基于 zset 的滑动窗口限流器
type RateLimiter struct {
	client goredis.Cmdable
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client goredis.Cmdable, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// getKey 生成限流键
func (rl *RateLimiter) getKey(ctx context.Context, c *app.RequestContext) string {
	var identifier string

	if rl.config.ByOperator {
		if operator, exists := GetOperatorID(ctx, c); exists {
			identifier = "op:" + operator
		}
	}

	if identifier == "" && rl.config.ByIP {
		identifier = "ip:" + c.ClientIP()
	}

	return redis.Key(rl.config.KeyPrefix, identifier)
}

// Allow 检查是否允许请求，使用滑动窗口算法
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := rl.now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := rl.client.Pipeline()

	// 移除窗口开始之前的请求记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})

	zcardCmd := pipe.ZCard(ctx, key)

	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(key string) string {
	return key + ":block"
}

func (rl *RateLimiter) Block(ctx context.Context, key string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return rl.client.Set(ctx, rl.blockKey(key), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	result, err := rl.client.Exists(ctx, rl.blockKey(key)).Result()
	return result > 0, err
}

// Middleware 限流中间件；redis 不可用时放行，限流不能挡住签到
func (rl *RateLimiter) Middleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		key := rl.getKey(ctx, c)

		blocked, err := rl.IsBlocked(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, &errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := rl.Allow(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := rl.config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(time.Duration(rl.config.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := rl.Block(ctx, key); err != nil {
				logger.Logger.Error("Failed to block operator", zap.Error(err))
			}
			response.Error(ctx, c, &errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// ScanRateLimitMiddleware 扫码接口限流，未启用或 redis 未初始化时不限流
func ScanRateLimitMiddleware() app.HandlerFunc {
	if !scanRateLimitEnabled() {
		return func(ctx context.Context, c *app.RequestContext) { c.Next(ctx) }
	}
	return NewRateLimiter(redis.Client(), ScanRateLimitConfig()).Middleware()
}

func scanRateLimitEnabled() bool {
	return config.Cfg.RateLimitEnabled && config.Cfg.RateLimitScanRPM > 0 && redis.Initialized()
}
