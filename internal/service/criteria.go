package service

import (
	"context"
	"time"

	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/metrics"
)

// CriteriaService 由流水实时计算出勤进度
type CriteriaService struct {
	strategies    *StrategyService
	ledger        repository.Ledger
	registrations repository.RegistrationDirectory
}

func NewCriteriaService(strategies *StrategyService, ledger repository.Ledger, registrations repository.RegistrationDirectory) *CriteriaService {
	return &CriteriaService{
		strategies:    strategies,
		ledger:        ledger,
		registrations: registrations,
	}
}

// Evaluate 计算单个报名的进度快照；没有任何签到记录时返回 0，不是错误
func (s *CriteriaService) Evaluate(ctx context.Context, registrationID int64) (*model.ProgressSnapshot, error) {
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.strategies.Resolve(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}

	return s.evaluate(ctx, cfg, reg.ID)
}

func (s *CriteriaService) evaluate(ctx context.Context, cfg *model.StrategyConfig, registrationID int64) (*model.ProgressSnapshot, error) {
	start := time.Now()

	latest, err := s.ledger.LatestForRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	snapshot := foldProgress(cfg, registrationID, latest)

	metrics.GetMetrics().RecordEvaluation(ctx, string(cfg.StrategyType), time.Since(start).Seconds())
	return snapshot, nil
}

// foldProgress 纯函数：策略 + 各单元最新记录 -> 进度
// 只看策略中定义的单元，历史上不属于当前单元集合的记录被忽略
func foldProgress(cfg *model.StrategyConfig, registrationID int64, latest model.LatestByUnit) *model.ProgressSnapshot {
	keys := cfg.UnitKeys()
	snapshot := &model.ProgressSnapshot{
		RegistrationID:    registrationID,
		EventID:           cfg.EventID,
		StrategyType:      cfg.StrategyType,
		TotalUnits:        cfg.TotalUnits(),
		MinimumPercentage: cfg.Criteria.MinimumPercentage,
		Units:             make([]model.UnitProgress, 0, len(keys)),
	}

	for _, key := range keys {
		unit, _ := cfg.FindUnit(key)
		up := model.UnitProgress{UnitKey: key, Label: unit.Label}

		if mark, ok := latest[key]; ok {
			status := mark.Status
			markedAt := mark.MarkedAt
			up.Status = &status
			up.MarkedAt = &markedAt
			up.Attended = cfg.Criteria.Counts(status)
		}
		if up.Attended {
			snapshot.AttendedUnits++
		}
		snapshot.Units = append(snapshot.Units, up)
	}

	if snapshot.TotalUnits > 0 {
		snapshot.Percentage = snapshot.AttendedUnits * 100 / snapshot.TotalUnits
	}

	if cfg.StrategyType.MultiUnit() {
		// 一个单元都没出勤时不算达标，即使阈值为 0
		snapshot.MeetsCriteria = snapshot.AttendedUnits > 0 && snapshot.Percentage >= cfg.Criteria.MinimumPercentage
	} else {
		// single_mark 只看是否签到，不看百分比阈值
		snapshot.MinimumPercentage = 0
		snapshot.MeetsCriteria = snapshot.AttendedUnits == 1
	}

	return snapshot
}
