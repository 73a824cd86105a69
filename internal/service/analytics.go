package service

import (
	"context"

	"Attendly/internal/model"
	"Attendly/internal/repository"
)

// AnalyticsService 活动统计，每次从流水重新折叠，不维护计数器
type AnalyticsService struct {
	strategies    *StrategyService
	ledger        repository.Ledger
	registrations repository.RegistrationDirectory
}

func NewAnalyticsService(strategies *StrategyService, ledger repository.Ledger, registrations repository.RegistrationDirectory) *AnalyticsService {
	return &AnalyticsService{
		strategies:    strategies,
		ledger:        ledger,
		registrations: registrations,
	}
}

func (s *AnalyticsService) UnitStats(ctx context.Context, eventID int64, unitKey string) (*model.UnitStats, error) {
	cfg, err := s.strategies.Resolve(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckUnitKey(unitKey); err != nil {
		return nil, err
	}

	regs, latest, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	stats := countUnit(cfg, unitKey, regs, latest)
	return &stats, nil
}

func (s *AnalyticsService) OverallStats(ctx context.Context, eventID int64) (*model.OverallStats, error) {
	cfg, err := s.strategies.Resolve(ctx, eventID)
	if err != nil {
		return nil, err
	}

	regs, latest, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}

	keys := cfg.UnitKeys()
	out := &model.OverallStats{
		EventID:            eventID,
		StrategyType:       cfg.StrategyType,
		PerUnit:            make([]model.UnitStats, 0, len(keys)),
		RegistrationsTotal: len(regs),
	}
	for _, key := range keys {
		out.PerUnit = append(out.PerUnit, countUnit(cfg, key, regs, latest))
	}
	for _, reg := range regs {
		if foldProgress(cfg, reg.ID, latest[reg.ID]).MeetsCriteria {
			out.RegistrationsOnTrack++
		}
	}
	return out, nil
}

// load 只统计当前有效的报名，已取消报名的历史记录不计入
func (s *AnalyticsService) load(ctx context.Context, eventID int64) ([]model.Registration, model.LatestByRegistration, error) {
	regs, err := s.registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	latest, err := s.ledger.LatestForEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	return regs, latest, nil
}

func countUnit(cfg *model.StrategyConfig, unitKey string, regs []model.Registration, latest model.LatestByRegistration) model.UnitStats {
	unit, _ := cfg.FindUnit(unitKey)
	stats := model.UnitStats{
		UnitKey:            unitKey,
		Label:              unit.Label,
		TotalRegistrations: len(regs),
	}
	for _, reg := range regs {
		mark, ok := latest[reg.ID][unitKey]
		if !ok {
			stats.Unmarked++
			continue
		}
		switch mark.Status {
		case model.MarkStatusPresent:
			stats.Present++
		case model.MarkStatusAbsent:
			stats.Absent++
		case model.MarkStatusExcused:
			stats.Excused++
		}
		if cfg.Criteria.Counts(mark.Status) {
			stats.Attended++
		}
	}
	return stats
}
