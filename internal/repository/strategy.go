package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
)

type gormStrategyStore struct {
	db *gorm.DB
}

func NewStrategyStore(db *gorm.DB) StrategyStore {
	return &gormStrategyStore{db: db}
}

func (s *gormStrategyStore) Get(ctx context.Context, eventID int64) (*model.StrategyConfig, error) {
	var rec model.EventAttendanceStrategy
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).
		Where("event_id = ?", eventID).
		Take(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance strategy: %w", err)
	}
	return rec.ToConfig()
}

// Save upsert，冲突更新只在 locked_at 为空时生效
func (s *gormStrategyStore) Save(ctx context.Context, cfg *model.StrategyConfig) error {
	rec, err := model.NewStrategyRecord(cfg)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "event_attendance_strategies.locked_at IS NULL"},
		}},
		DoUpdates: clause.AssignmentColumns([]string{
			"strategy_type", "units", "minimum_percentage", "attended_statuses", "updated_at",
		}),
	}).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("save attendance strategy: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(errors.StrategyLocked, "event %d", cfg.EventID)
	}
	return nil
}

func (s *gormStrategyStore) Lock(ctx context.Context, eventID int64, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.EventAttendanceStrategy{}).
		Where("event_id = ? AND locked_at IS NULL", eventID).
		Update("locked_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("lock attendance strategy: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
