package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"Attendly/internal/model"
)

type markKey struct {
	registrationID int64
	unitKey        string
}

// markLog 单个 (报名, 单元) 的流水，各自加锁，不同 key 之间互不阻塞
type markLog struct {
	mu    sync.RWMutex
	marks []model.AttendanceMark
}

// keySet 活动或报名下出现过的 key，用于统计时枚举
type keySet struct {
	mu   sync.RWMutex
	keys map[markKey]struct{}
}

func (s *keySet) add(k markKey) {
	s.mu.Lock()
	s.keys[k] = struct{}{}
	s.mu.Unlock()
}

func (s *keySet) snapshot() []markKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]markKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	return keys
}

// MemoryLedger 进程内流水，memory 模式与测试使用
type MemoryLedger struct {
	logs    sync.Map // markKey -> *markLog
	byEvent sync.Map // eventID -> *keySet
	byReg   sync.Map // registrationID -> *keySet
	seq     atomic.Int64
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

func (l *MemoryLedger) log(k markKey) *markLog {
	v, _ := l.logs.LoadOrStore(k, &markLog{})
	return v.(*markLog)
}

func indexOf(m *sync.Map, id int64) *keySet {
	v, _ := m.LoadOrStore(id, &keySet{keys: make(map[markKey]struct{})})
	return v.(*keySet)
}

func (l *MemoryLedger) Append(ctx context.Context, mark *model.AttendanceMark) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := markKey{registrationID: mark.RegistrationID, unitKey: mark.UnitKey}
	ml := l.log(k)

	ml.mu.Lock()
	// 在 key 锁内分配序号，保证同一 key 的流水按序号递增
	mark.ID = l.seq.Add(1)
	if mark.CreatedAt.IsZero() {
		mark.CreatedAt = l.now()
	}
	ml.marks = append(ml.marks, *mark)
	ml.mu.Unlock()

	indexOf(&l.byEvent, mark.EventID).add(k)
	indexOf(&l.byReg, mark.RegistrationID).add(k)
	return nil
}

func (l *MemoryLedger) copyLog(k markKey) []model.AttendanceMark {
	v, ok := l.logs.Load(k)
	if !ok {
		return nil
	}
	ml := v.(*markLog)
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	out := make([]model.AttendanceMark, len(ml.marks))
	copy(out, ml.marks)
	return out
}

func (l *MemoryLedger) Read(ctx context.Context, registrationID int64, unitKey string) ([]model.AttendanceMark, error) {
	marks := l.copyLog(markKey{registrationID: registrationID, unitKey: unitKey})
	// 离线设备的 marked_at 可能乱序到达
	sort.SliceStable(marks, func(i, j int) bool {
		return marks[j].Supersedes(&marks[i])
	})
	return marks, nil
}

func (l *MemoryLedger) Latest(ctx context.Context, registrationID int64, unitKey string) (*model.AttendanceMark, error) {
	marks := l.copyLog(markKey{registrationID: registrationID, unitKey: unitKey})
	latest := model.LatestMark(marks)
	if latest == nil {
		return nil, nil
	}
	m := *latest
	return &m, nil
}

func (l *MemoryLedger) foldKeys(keys []markKey) model.LatestByRegistration {
	out := make(model.LatestByRegistration)
	for _, k := range keys {
		latest := model.LatestMark(l.copyLog(k))
		if latest == nil {
			continue
		}
		units, ok := out[k.registrationID]
		if !ok {
			units = make(model.LatestByUnit)
			out[k.registrationID] = units
		}
		units[k.unitKey] = *latest
	}
	return out
}

func (l *MemoryLedger) LatestForRegistration(ctx context.Context, registrationID int64) (model.LatestByUnit, error) {
	v, ok := l.byReg.Load(registrationID)
	if !ok {
		return model.LatestByUnit{}, nil
	}
	folded := l.foldKeys(v.(*keySet).snapshot())
	if units, ok := folded[registrationID]; ok {
		return units, nil
	}
	return model.LatestByUnit{}, nil
}

func (l *MemoryLedger) LatestForEvent(ctx context.Context, eventID int64) (model.LatestByRegistration, error) {
	v, ok := l.byEvent.Load(eventID)
	if !ok {
		return model.LatestByRegistration{}, nil
	}
	return l.foldKeys(v.(*keySet).snapshot()), nil
}

func (l *MemoryLedger) HasMarks(ctx context.Context, eventID int64) (bool, error) {
	v, ok := l.byEvent.Load(eventID)
	if !ok {
		return false, nil
	}
	return len(v.(*keySet).snapshot()) > 0, nil
}
