package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
)

type gormRegistrationDirectory struct {
	db *gorm.DB
}

// NewRegistrationDirectory registrations 表由报名服务维护，这里只读，查询可以走副本
func NewRegistrationDirectory(db *gorm.DB) RegistrationDirectory {
	return &gormRegistrationDirectory{db: db}
}

func (d *gormRegistrationDirectory) Get(ctx context.Context, registrationID int64) (*model.Registration, error) {
	var reg model.Registration
	err := d.db.WithContext(ctx).Where("id = ?", registrationID).Take(&reg).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(errors.RegistrationNotFound, "registration %d", registrationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

func (d *gormRegistrationDirectory) ListByEvent(ctx context.Context, eventID int64) ([]model.Registration, error) {
	var regs []model.Registration
	err := d.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, model.RegistrationActive).
		Order("id ASC").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func (d *gormRegistrationDirectory) ListTeam(ctx context.Context, teamRegistrationID int64) ([]model.Registration, error) {
	var regs []model.Registration
	err := d.db.WithContext(ctx).
		Where("team_registration_id = ? AND status = ?", teamRegistrationID, model.RegistrationActive).
		Order("id ASC").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("list team registrations: %w", err)
	}
	return regs, nil
}
