package service

import (
	"context"
	"sync"
	"time"

	"Attendly/internal/cache"
	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/token"
)

// StrategyCache 策略缓存，redis 实现见 cache.StrategyCache；为 nil 时不缓存
type StrategyCache interface {
	Get(ctx context.Context, eventID int64) (*model.StrategyConfig, bool, error)
	Set(ctx context.Context, eventID int64, cfg *model.StrategyConfig) error
	Invalidate(ctx context.Context, eventID int64) error
}

// Locker 按键互斥
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (cache.UnlockFunc, bool, error)
}

// MarkPublisher 写入流水后的事件通知，失败不影响签到结果
type MarkPublisher interface {
	PublishMarkRecorded(ctx context.Context, mark *model.AttendanceMark) error
}

// Deps 引擎依赖，进程入口按存储后端组装
type Deps struct {
	Ledger        repository.Ledger
	Strategies    repository.StrategyStore
	Registrations repository.RegistrationDirectory
	Cache         StrategyCache
	Locker        Locker
	Publisher     MarkPublisher
	Issuer        *token.IdentityIssuer

	BulkConcurrency int
	BulkMaxItems    int
	ClockSkew       time.Duration
}

var (
	strategyService  *StrategyService
	criteriaService  *CriteriaService
	markingService   *MarkingService
	identityService  *IdentityService
	analyticsService *AnalyticsService
	initOnce         sync.Once
)

// Init 组装全部服务，进程内只生效一次
func Init(d Deps) {
	initOnce.Do(func() {
		strategyService, criteriaService, markingService, identityService, analyticsService = build(d)
	})
}

func build(d Deps) (*StrategyService, *CriteriaService, *MarkingService, *IdentityService, *AnalyticsService) {
	if d.Locker == nil {
		d.Locker = cache.NewLocalLocker()
	}
	strategies := NewStrategyService(d.Strategies, d.Ledger, d.Cache, d.Locker)
	criteria := NewCriteriaService(strategies, d.Ledger, d.Registrations)
	marking := NewMarkingService(MarkingConfig{
		Strategies:    strategies,
		Criteria:      criteria,
		Ledger:        d.Ledger,
		Registrations: d.Registrations,
		Publisher:     d.Publisher,
		Concurrency:   d.BulkConcurrency,
		MaxItems:      d.BulkMaxItems,
		ClockSkew:     d.ClockSkew,
	})
	identity := NewIdentityService(d.Issuer, strategies, marking, d.Ledger, d.Registrations)
	analytics := NewAnalyticsService(strategies, d.Ledger, d.Registrations)
	return strategies, criteria, marking, identity, analytics
}

func mustInit[T any](svc *T) *T {
	if svc == nil {
		panic("service not init")
	}
	return svc
}

func Strategy() *StrategyService { return mustInit(strategyService) }

func Criteria() *CriteriaService { return mustInit(criteriaService) }

func Marking() *MarkingService { return mustInit(markingService) }

func Identity() *IdentityService { return mustInit(identityService) }

func Analytics() *AnalyticsService { return mustInit(analyticsService) }
