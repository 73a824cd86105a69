package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"Attendly/storage/redis"
)

// 分布式锁，通过 SetNX 实现；释放时校验持有者，避免误删别人续上的锁
const lockPrefix = "lock"

var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// UnlockFunc 释放锁
type UnlockFunc func(ctx context.Context) error

// RedisLocker 多实例部署时使用
type RedisLocker struct {
	client goredis.UniversalClient
}

func NewRedisLocker(client goredis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, bool, error) {
	fullKey := redis.Key(lockPrefix, key)
	owner := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil || !acquired {
		return nil, false, err
	}

	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.client, []string{fullKey}, owner).Err()
	}, true, nil
}

// LocalLocker 单进程（memory 模式、测试）使用
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return nil
	}, true, nil
}
