package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"Attendly/internal/model"
)

type gormLedger struct {
	db *gorm.DB
}

// NewLedger postgres 流水。签到路径需要读到自己刚写的数据，强制走主库；
// 活动维度的统计查询交给 dbresolver 分流到只读副本
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) primary(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).Clauses(dbresolver.Write)
}

func (l *gormLedger) Append(ctx context.Context, mark *model.AttendanceMark) error {
	if err := l.db.WithContext(ctx).Create(mark).Error; err != nil {
		return fmt.Errorf("append attendance mark: %w", err)
	}
	return nil
}

func (l *gormLedger) Read(ctx context.Context, registrationID int64, unitKey string) ([]model.AttendanceMark, error) {
	var marks []model.AttendanceMark
	err := l.primary(ctx).
		Where("registration_id = ? AND unit_key = ?", registrationID, unitKey).
		Order("marked_at ASC, id ASC").
		Find(&marks).Error
	if err != nil {
		return nil, fmt.Errorf("read attendance marks: %w", err)
	}
	return marks, nil
}

func (l *gormLedger) Latest(ctx context.Context, registrationID int64, unitKey string) (*model.AttendanceMark, error) {
	var mark model.AttendanceMark
	err := l.primary(ctx).
		Where("registration_id = ? AND unit_key = ?", registrationID, unitKey).
		Order("marked_at DESC, id DESC").
		Take(&mark).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest attendance mark: %w", err)
	}
	return &mark, nil
}

func (l *gormLedger) LatestForRegistration(ctx context.Context, registrationID int64) (model.LatestByUnit, error) {
	var marks []model.AttendanceMark
	err := l.primary(ctx).Raw(`
		SELECT DISTINCT ON (unit_key) *
		FROM attendance_marks
		WHERE registration_id = ?
		ORDER BY unit_key, marked_at DESC, id DESC`, registrationID).
		Scan(&marks).Error
	if err != nil {
		return nil, fmt.Errorf("latest marks for registration: %w", err)
	}

	latest := make(model.LatestByUnit, len(marks))
	for _, m := range marks {
		latest[m.UnitKey] = m
	}
	return latest, nil
}

func (l *gormLedger) LatestForEvent(ctx context.Context, eventID int64) (model.LatestByRegistration, error) {
	var marks []model.AttendanceMark
	err := l.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (registration_id, unit_key) *
		FROM attendance_marks
		WHERE event_id = ?
		ORDER BY registration_id, unit_key, marked_at DESC, id DESC`, eventID).
		Scan(&marks).Error
	if err != nil {
		return nil, fmt.Errorf("latest marks for event: %w", err)
	}

	latest := make(model.LatestByRegistration)
	for _, m := range marks {
		units, ok := latest[m.RegistrationID]
		if !ok {
			units = make(model.LatestByUnit)
			latest[m.RegistrationID] = units
		}
		units[m.UnitKey] = m
	}
	return latest, nil
}

func (l *gormLedger) HasMarks(ctx context.Context, eventID int64) (bool, error) {
	var exists bool
	err := l.primary(ctx).
		Raw("SELECT EXISTS (SELECT 1 FROM attendance_marks WHERE event_id = ?)", eventID).
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("check attendance marks: %w", err)
	}
	return exists, nil
}
