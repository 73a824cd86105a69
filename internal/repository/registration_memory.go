package repository

import (
	"context"
	"sort"
	"sync"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
)

// MemoryRegistrationDirectory 进程内报名表，memory 模式从种子文件加载
type MemoryRegistrationDirectory struct {
	mu            sync.RWMutex
	registrations map[int64]model.Registration
}

func NewMemoryRegistrationDirectory(regs ...model.Registration) *MemoryRegistrationDirectory {
	d := &MemoryRegistrationDirectory{registrations: make(map[int64]model.Registration, len(regs))}
	d.Put(regs...)
	return d
}

// Put 新增或替换报名
func (d *MemoryRegistrationDirectory) Put(regs ...model.Registration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range regs {
		if r.Status == "" {
			r.Status = model.RegistrationActive
		}
		if r.RegistrationType == "" {
			r.RegistrationType = model.RegistrationIndividual
		}
		d.registrations[r.ID] = r
	}
}

func (d *MemoryRegistrationDirectory) Get(ctx context.Context, registrationID int64) (*model.Registration, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reg, ok := d.registrations[registrationID]
	if !ok {
		return nil, errors.Wrap(errors.RegistrationNotFound, "registration %d", registrationID)
	}
	return &reg, nil
}

func (d *MemoryRegistrationDirectory) filter(keep func(r *model.Registration) bool) []model.Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Registration, 0)
	for _, r := range d.registrations {
		if r.IsActive() && keep(&r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *MemoryRegistrationDirectory) ListByEvent(ctx context.Context, eventID int64) ([]model.Registration, error) {
	return d.filter(func(r *model.Registration) bool { return r.EventID == eventID }), nil
}

func (d *MemoryRegistrationDirectory) ListTeam(ctx context.Context, teamRegistrationID int64) ([]model.Registration, error) {
	return d.filter(func(r *model.Registration) bool {
		return r.TeamRegistrationID != nil && *r.TeamRegistrationID == teamRegistrationID
	}), nil
}
