package repository

import (
	"context"
	"sync"
	"time"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
)

// MemoryStrategyStore 进程内策略表
type MemoryStrategyStore struct {
	mu         sync.RWMutex
	strategies map[int64]model.StrategyConfig
}

func NewMemoryStrategyStore() *MemoryStrategyStore {
	return &MemoryStrategyStore{strategies: make(map[int64]model.StrategyConfig)}
}

func (s *MemoryStrategyStore) Get(ctx context.Context, eventID int64) (*model.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.strategies[eventID]
	if !ok {
		return nil, nil
	}
	return cfg.Clone(), nil
}

func (s *MemoryStrategyStore) Save(ctx context.Context, cfg *model.StrategyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.strategies[cfg.EventID]; ok && existing.LockedAt != nil {
		return errors.Wrap(errors.StrategyLocked, "event %d", cfg.EventID)
	}
	stored := cfg.Clone()
	stored.LockedAt = nil
	s.strategies[cfg.EventID] = *stored
	return nil
}

func (s *MemoryStrategyStore) Lock(ctx context.Context, eventID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.strategies[eventID]
	if !ok || cfg.LockedAt != nil {
		return false, nil
	}
	cfg.LockedAt = &at
	s.strategies[eventID] = cfg
	return true, nil
}
