package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"Attendly/internal/model"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newMark(reg int64, unit string, status model.MarkStatus, at time.Time) *model.AttendanceMark {
	return &model.AttendanceMark{
		EventID:            1,
		RegistrationID:     reg,
		UnitKey:            unit,
		Status:             status,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
		MarkedAt:           at,
	}
}

func TestMemoryLedgerAppendOnly(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	first := newMark(7, "s1", model.MarkStatusAbsent, base)
	second := newMark(7, "s1", model.MarkStatusPresent, base.Add(time.Minute))
	for _, m := range []*model.AttendanceMark{first, second} {
		if err := l.Append(ctx, m); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	marks, err := l.Read(ctx, 7, "s1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("Read() returned %d marks, want 2", len(marks))
	}
	if marks[0].Status != model.MarkStatusAbsent || marks[1].Status != model.MarkStatusPresent {
		t.Fatalf("Read() order = %s,%s", marks[0].Status, marks[1].Status)
	}

	// 返回的是副本，修改不影响流水
	marks[0].Status = model.MarkStatusExcused
	again, _ := l.Read(ctx, 7, "s1")
	if again[0].Status != model.MarkStatusAbsent {
		t.Fatalf("ledger entry was mutated through Read()")
	}

	latest, err := l.Latest(ctx, 7, "s1")
	if err != nil || latest == nil {
		t.Fatalf("Latest() = %v, %v", latest, err)
	}
	if latest.Status != model.MarkStatusPresent {
		t.Fatalf("Latest().Status = %s, want present", latest.Status)
	}
}

func TestMemoryLedgerLatestUsesMarkedAt(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	// 离线设备晚到的旧记录不会覆盖新记录
	newer := newMark(3, "", model.MarkStatusPresent, base.Add(time.Hour))
	older := newMark(3, "", model.MarkStatusAbsent, base)
	_ = l.Append(ctx, newer)
	_ = l.Append(ctx, older)

	latest, _ := l.Latest(ctx, 3, "")
	if latest.Status != model.MarkStatusPresent {
		t.Fatalf("Latest().Status = %s, want present", latest.Status)
	}

	marks, _ := l.Read(ctx, 3, "")
	if !marks[0].MarkedAt.Equal(base) {
		t.Fatalf("Read() is not chronological: %v", marks[0].MarkedAt)
	}
}

func TestMemoryLedgerTieBreakByInsertion(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	a := newMark(4, "d1", model.MarkStatusPresent, base)
	b := newMark(4, "d1", model.MarkStatusExcused, base)
	_ = l.Append(ctx, a)
	_ = l.Append(ctx, b)

	if b.ID <= a.ID {
		t.Fatalf("sequence not increasing: %d then %d", a.ID, b.ID)
	}
	latest, _ := l.Latest(ctx, 4, "d1")
	if latest.Status != model.MarkStatusExcused {
		t.Fatalf("Latest().Status = %s, want excused (later insert)", latest.Status)
	}
}

func TestMemoryLedgerLatestEmpty(t *testing.T) {
	l := NewMemoryLedger()
	latest, err := l.Latest(context.Background(), 99, "x")
	if err != nil || latest != nil {
		t.Fatalf("Latest() = %v, %v; want nil, nil", latest, err)
	}
	has, _ := l.HasMarks(context.Background(), 1)
	if has {
		t.Fatalf("HasMarks() = true on empty ledger")
	}
}

func TestMemoryLedgerConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// 一半写同一个 key，一半各写各的
				reg := int64(1)
				if i%2 == 1 {
					reg = int64(100 + w)
				}
				_ = l.Append(ctx, newMark(reg, "s1", model.MarkStatusPresent, base.Add(time.Duration(i)*time.Second)))
			}
		}(w)
	}
	wg.Wait()

	shared, _ := l.Read(ctx, 1, "s1")
	if len(shared) != workers*perWorker/2 {
		t.Fatalf("shared key has %d marks, want %d", len(shared), workers*perWorker/2)
	}

	total := len(shared)
	for w := 0; w < workers; w++ {
		own, _ := l.Read(ctx, int64(100+w), "s1")
		total += len(own)
	}
	if total != workers*perWorker {
		t.Fatalf("lost appends: %d of %d", total, workers*perWorker)
	}

	seen := make(map[int64]bool)
	for _, m := range shared {
		if seen[m.ID] {
			t.Fatalf("duplicate sequence %d", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestMemoryLedgerFolds(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_ = l.Append(ctx, newMark(1, "d1", model.MarkStatusAbsent, base))
	_ = l.Append(ctx, newMark(1, "d1", model.MarkStatusPresent, base.Add(time.Minute)))
	_ = l.Append(ctx, newMark(1, "d2", model.MarkStatusExcused, base))
	_ = l.Append(ctx, newMark(2, "d1", model.MarkStatusPresent, base))

	other := newMark(9, "d1", model.MarkStatusPresent, base)
	other.EventID = 2
	_ = l.Append(ctx, other)

	byUnit, err := l.LatestForRegistration(ctx, 1)
	if err != nil {
		t.Fatalf("LatestForRegistration() error = %v", err)
	}
	if len(byUnit) != 2 || byUnit["d1"].Status != model.MarkStatusPresent || byUnit["d2"].Status != model.MarkStatusExcused {
		t.Fatalf("LatestForRegistration() = %+v", byUnit)
	}

	byReg, err := l.LatestForEvent(ctx, 1)
	if err != nil {
		t.Fatalf("LatestForEvent() error = %v", err)
	}
	if len(byReg) != 2 {
		t.Fatalf("LatestForEvent() has %d registrations, want 2", len(byReg))
	}
	if _, leaked := byReg[9]; leaked {
		t.Fatalf("LatestForEvent() included another event's registration")
	}

	if has, _ := l.HasMarks(ctx, 2); !has {
		t.Fatalf("HasMarks(2) = false")
	}
}
