package cache

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Attendly/internal/model"
)

// 只缓存策略配置本身，进度和统计永远从流水实时计算
const strategyPrefix = "strategy"

// StrategyCache 活动签到策略缓存，配置或锁定时失效
type StrategyCache struct {
	pc *ProtectedCache
}

func NewStrategyCache(client goredis.Cmdable, ttl time.Duration) *StrategyCache {
	return &StrategyCache{pc: NewProtectedCache(client, strategyPrefix, ttl)}
}

// Get hit 且 cfg 为 nil 表示已知该活动未配置策略
func (c *StrategyCache) Get(ctx context.Context, eventID int64) (*model.StrategyConfig, bool, error) {
	var cfg model.StrategyConfig
	hit, empty, err := c.pc.Get(ctx, strconv.FormatInt(eventID, 10), &cfg)
	if err != nil || !hit {
		return nil, false, err
	}
	if empty {
		return nil, true, nil
	}
	return &cfg, true, nil
}

// Set cfg 为 nil 时缓存"未配置"，TTL 较短
func (c *StrategyCache) Set(ctx context.Context, eventID int64, cfg *model.StrategyConfig) error {
	key := strconv.FormatInt(eventID, 10)
	if cfg == nil {
		return c.pc.Set(ctx, key, nil)
	}
	return c.pc.Set(ctx, key, cfg)
}

func (c *StrategyCache) Invalidate(ctx context.Context, eventID int64) error {
	return c.pc.Delete(ctx, strconv.FormatInt(eventID, 10))
}
