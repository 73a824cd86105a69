package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Attendly/storage/redis"
)

const (
	// 空值缓存标识
	emptyValueFlag = "__EMPTY__"
	// 空值缓存TTL，较短时间避免长期占用
	emptyValueTTL = 30 * time.Second
)

// ProtectedCache 带空值保护与熔断的 JSON 缓存
type ProtectedCache struct {
	client    goredis.Cmdable
	breaker   *CircuitBreaker
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
}

// NewProtectedCache 创建受保护的缓存实例
func NewProtectedCache(client goredis.Cmdable, keyPrefix string, ttl time.Duration) *ProtectedCache {
	return &ProtectedCache{
		client:    client,
		breaker:   NewCircuitBreaker(keyPrefix, 5, 30*time.Second),
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  emptyValueTTL,
	}
}

// Set value 为 nil 时写入空值标识
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	cacheKey := redis.Key(pc.keyPrefix, key)

	data := emptyValueFlag
	ttl := pc.emptyTTL
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		data = string(raw)
		ttl = pc.ttl
	}

	return pc.breaker.Call(func() error {
		return pc.client.Set(ctx, cacheKey, data, ttl).Err()
	})
}

// Get 返回 (hit, empty, err)；empty 表示命中了空值标识
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (bool, bool, error) {
	cacheKey := redis.Key(pc.keyPrefix, key)

	var data string
	err := pc.breaker.Call(func() error {
		v, err := pc.client.Get(ctx, cacheKey).Result()
		if stderrors.Is(err, goredis.Nil) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == "" {
		return false, false, nil
	}
	if data == emptyValueFlag {
		return true, true, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, false, nil
}

// Delete 删除缓存
func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	cacheKey := redis.Key(pc.keyPrefix, key)
	return pc.breaker.Call(func() error {
		return pc.client.Del(ctx, cacheKey).Err()
	})
}
