package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"Attendly/internal/cache"
	"Attendly/internal/model"
	"Attendly/pkg/errors"
)

// memoryCache 记录缓存读写，nil 值表示“未配置”
type memoryCache struct {
	mu      sync.Mutex
	entries map[int64]*model.StrategyConfig
	err     error
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[int64]*model.StrategyConfig)}
}

func (c *memoryCache) Get(ctx context.Context, eventID int64) (*model.StrategyConfig, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	cfg, ok := c.entries[eventID]
	if cfg != nil {
		cfg = cfg.Clone()
	}
	return cfg, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, eventID int64, cfg *model.StrategyConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if cfg != nil {
		cfg = cfg.Clone()
	}
	c.entries[eventID] = cfg
	return c.err
}

func (c *memoryCache) Invalidate(ctx context.Context, eventID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, eventID)
	return nil
}

func TestResolveFailsClosed(t *testing.T) {
	f := newFixture(t)

	broken := sessionBased(50, "s1", "s1")
	// 绕过 Configure 的校验直接写入存储
	if err := f.store.Save(context.Background(), broken); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, err := f.strategies.Resolve(context.Background(), 1)
	if !errors.IsNotConfigured(err) {
		t.Fatalf("Resolve() error = %v, want not configured", err)
	}

	_, err = f.strategies.Resolve(context.Background(), 2)
	if !stderrors.Is(err, errors.AttendanceNotConfigured) {
		t.Fatalf("Resolve() for missing event error = %v", err)
	}
}

func TestConfigureRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *model.StrategyConfig
	}{
		{"empty units", sessionBased(50)},
		{"duplicate units", sessionBased(50, "a", "a")},
		{"percentage out of range", sessionBased(101, "a")},
		{"single mark with units", &model.StrategyConfig{EventID: 1, StrategyType: model.StrategySingleMark, Units: []model.Unit{{Key: "a"}}}},
		{"bad day key", &model.StrategyConfig{EventID: 1, StrategyType: model.StrategyDayBased, Units: []model.Unit{{Key: "monday"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.strategies.Configure(context.Background(), 1, tt.cfg)
			if !stderrors.Is(err, errors.StrategyInvalid) {
				t.Fatalf("Configure() error = %v, want STRATEGY_INVALID", err)
			}
		})
	}
}

func TestConfigureBusy(t *testing.T) {
	locker := cache.NewLocalLocker()
	f := newFixture(t)
	f.strategies.locker = locker

	unlock, ok, err := locker.TryLock(context.Background(), "strategy:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer unlock(context.Background())

	_, err = f.strategies.Configure(context.Background(), 1, singleMark())
	if !stderrors.Is(err, errors.StrategyBusy) {
		t.Fatalf("Configure() error = %v, want STRATEGY_BUSY", err)
	}
}

func TestResolveUsesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, individual(7, 1))
	c := newMemoryCache()
	f.strategies.cache = c

	// 未配置同样会被缓存
	if _, err := f.strategies.Resolve(ctx, 1); !errors.IsNotConfigured(err) {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg, hit, _ := c.Get(ctx, 1); !hit || cfg != nil {
		t.Fatal("not-configured result should be cached as empty")
	}

	// 配置后缓存失效
	f.configure(t, singleMark())
	cfg, err := f.strategies.Resolve(ctx, 1)
	if err != nil || cfg.StrategyType != model.StrategySingleMark {
		t.Fatalf("Resolve() = %+v, %v", cfg, err)
	}

	// 首次签到锁定后，缓存里是锁定后的版本
	f.mark(t, 7, "", model.MarkStatusPresent, clock)
	cfg, _ = f.strategies.Resolve(ctx, 1)
	if cfg.LockedAt == nil {
		t.Fatal("cached strategy should carry locked_at after the first mark")
	}
}

func TestResolveFallsBackWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	f.configure(t, singleMark())

	c := newMemoryCache()
	c.err = stderrors.New("redis: connection refused")
	f.strategies.cache = c

	if _, err := f.strategies.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("Resolve() should fall back to the store, got %v", err)
	}
}
