package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
)

const configureLockTTL = 10 * time.Second

// StrategyService 解析、配置活动签到策略
type StrategyService struct {
	store  repository.StrategyStore
	ledger repository.Ledger
	cache  StrategyCache
	locker Locker
	now    func() time.Time
}

func NewStrategyService(store repository.StrategyStore, ledger repository.Ledger, cache StrategyCache, locker Locker) *StrategyService {
	return &StrategyService{
		store:  store,
		ledger: ledger,
		cache:  cache,
		locker: locker,
		now:    time.Now,
	}
}

// Resolve 返回可用的策略；不存在或结构非法一律视为未配置（fail closed）
func (s *StrategyService) Resolve(ctx context.Context, eventID int64) (*model.StrategyConfig, error) {
	if s.cache != nil {
		cfg, hit, err := s.cache.Get(ctx, eventID)
		switch {
		case err != nil:
			logger.Logger.Warn("Strategy cache read failed, falling back to store",
				zap.Int64("event_id", eventID),
				zap.Error(err),
			)
		case hit && cfg == nil:
			return nil, errors.Wrap(errors.AttendanceNotConfigured, "event %d", eventID)
		case hit:
			return cfg, nil
		}
	}

	cfg, err := s.load(ctx, eventID)
	if errors.IsNotConfigured(err) {
		s.remember(ctx, eventID, nil)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.remember(ctx, eventID, cfg)
	return cfg, nil
}

// load 直接读存储，不经过缓存
func (s *StrategyService) load(ctx context.Context, eventID int64) (*model.StrategyConfig, error) {
	cfg, err := s.store.Get(ctx, eventID)
	if err != nil {
		if errors.KindOf(err) == errors.KindValidation {
			logger.Logger.Warn("Stored attendance strategy is malformed",
				zap.Int64("event_id", eventID),
				zap.Error(err),
			)
			return nil, errors.Wrap(errors.AttendanceNotConfigured, "event %d: %v", eventID, err)
		}
		return nil, err
	}
	if cfg == nil {
		return nil, errors.Wrap(errors.AttendanceNotConfigured, "event %d", eventID)
	}

	if err := cfg.Validate(); err != nil {
		logger.Logger.Warn("Attendance strategy failed validation",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		return nil, errors.Wrap(errors.AttendanceNotConfigured, "event %d: %v", eventID, err)
	}
	return cfg, nil
}

func (s *StrategyService) remember(ctx context.Context, eventID int64, cfg *model.StrategyConfig) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, eventID, cfg); err != nil {
		logger.Logger.Warn("Failed to cache attendance strategy", zap.Int64("event_id", eventID), zap.Error(err))
	}
}

func (s *StrategyService) forget(ctx context.Context, eventID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		logger.Logger.Warn("Failed to invalidate attendance strategy cache", zap.Int64("event_id", eventID), zap.Error(err))
	}
}

// Configure 写入策略；开始签到后拒绝修改
func (s *StrategyService) Configure(ctx context.Context, eventID int64, cfg *model.StrategyConfig) (*model.StrategyConfig, error) {
	cfg = cfg.Clone()
	cfg.EventID = eventID
	cfg.LockedAt = nil
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	unlock, ok, err := s.locker.TryLock(ctx, "strategy:"+strconv.FormatInt(eventID, 10), configureLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(errors.StrategyBusy, "event %d", eventID)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Logger.Warn("Failed to release strategy lock", zap.Int64("event_id", eventID), zap.Error(err))
		}
	}()

	started, err := s.ledger.HasMarks(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if started {
		return nil, errors.Wrap(errors.StrategyLocked, "event %d already has attendance marks", eventID)
	}

	if err := s.store.Save(ctx, cfg); err != nil {
		return nil, err
	}
	s.forget(ctx, eventID)

	logger.Logger.Info("Attendance strategy configured",
		zap.Int64("event_id", eventID),
		zap.String("strategy_type", string(cfg.StrategyType)),
		zap.Int("units", len(cfg.Units)),
	)
	return cfg, nil
}

// lockForMarking 首次签到前锁定策略，并返回锁定后的最新配置
// 锁定之后策略不可再改，校验结果才是可靠的
func (s *StrategyService) lockForMarking(ctx context.Context, cfg *model.StrategyConfig) (*model.StrategyConfig, error) {
	if cfg.LockedAt != nil {
		return cfg, nil
	}

	locked, err := s.store.Lock(ctx, cfg.EventID, s.now())
	if err != nil {
		return nil, err
	}
	s.forget(ctx, cfg.EventID)
	if locked {
		logger.Logger.Info("Attendance strategy locked", zap.Int64("event_id", cfg.EventID))
	}

	return s.load(ctx, cfg.EventID)
}
