package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"Attendly/config"
	"Attendly/internal/cache"
	"Attendly/internal/queue"
	"Attendly/internal/repository"
	"Attendly/internal/service"
	"Attendly/pkg/logger"
	"Attendly/pkg/token"
	"Attendly/storage/database"
	"Attendly/storage/redis"
)

// ServiceDeps 按存储后端组装服务依赖，需在 storage.Init 之后调用
func ServiceDeps(ctx context.Context, cfg *config.Config) (service.Deps, error) {
	d := service.Deps{
		Issuer:          token.NewIdentityIssuer(cfg.IdentityTokenSecret, cfg.IdentityTokenTTL(), cfg.ServiceName),
		BulkConcurrency: cfg.BulkMarkConcurrency,
		BulkMaxItems:    cfg.BulkMarkMaxItems,
		ClockSkew:       cfg.MarkClockSkew(),
	}

	if cfg.IsMemoryBackend() {
		regs := repository.NewMemoryRegistrationDirectory()
		strategies := repository.NewMemoryStrategyStore()
		if cfg.SeedPath != "" {
			seed, err := repository.LoadSeed(cfg.SeedPath)
			if err != nil {
				return d, err
			}
			if err := seed.Apply(ctx, regs, strategies); err != nil {
				return d, fmt.Errorf("apply seed: %w", err)
			}
			logger.Logger.Info("Memory backend seeded",
				zap.String("path", cfg.SeedPath),
				zap.Int("registrations", len(seed.Registrations)),
				zap.Int("strategies", len(seed.Strategies)),
			)
		}
		d.Ledger = repository.NewMemoryLedger()
		d.Strategies = strategies
		d.Registrations = regs
		d.Locker = cache.NewLocalLocker()
		return d, nil
	}

	db := database.DB()
	client := redis.Client()
	d.Ledger = repository.NewLedger(db)
	d.Strategies = repository.NewStrategyStore(db)
	d.Registrations = repository.NewRegistrationDirectory(db)
	d.Cache = cache.NewStrategyCache(client, cfg.StrategyCacheTTL())
	d.Locker = cache.NewRedisLocker(client)
	d.Publisher = queue.NewMarkPublisher(cfg.MarkEventsExchange)
	return d, nil
}
