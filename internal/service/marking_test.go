package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/errors"
)

func TestMarkLatestByMarkedAtWins(t *testing.T) {
	f := newFixture(t, individual(7, 1))
	f.configure(t, sessionBased(50, "s1", "s2"))

	// 离线设备晚到的旧记录不能覆盖新状态
	f.mark(t, 7, "s1", model.MarkStatusAbsent, clock.Add(-time.Minute))
	res := f.mark(t, 7, "s1", model.MarkStatusPresent, clock.Add(-2*time.Minute))

	if res.Mark.Status != model.MarkStatusPresent {
		t.Fatalf("returned mark status = %s, want the appended one", res.Mark.Status)
	}
	if res.Progress == nil {
		t.Fatal("expected a progress snapshot")
	}
	if res.Progress.AttendedUnits != 0 {
		t.Fatalf("AttendedUnits = %d, want 0 (later marked_at is absent)", res.Progress.AttendedUnits)
	}

	latest, err := f.ledger.Latest(context.Background(), 7, "s1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Status != model.MarkStatusAbsent {
		t.Fatalf("Latest() status = %s, want absent", latest.Status)
	}
}

func TestDuplicateMarkKeepsState(t *testing.T) {
	f := newFixture(t, individual(7, 1))
	f.configure(t, singleMark())

	first := f.mark(t, 7, "", model.MarkStatusPresent, clock)
	second := f.mark(t, 7, "", model.MarkStatusPresent, clock)

	if first.Progress.MeetsCriteria != second.Progress.MeetsCriteria ||
		first.Progress.AttendedUnits != second.Progress.AttendedUnits {
		t.Fatalf("duplicate mark changed progress: %+v vs %+v", first.Progress, second.Progress)
	}
	if first.Mark.PublicID == second.Mark.PublicID {
		t.Fatal("each append needs its own mark id")
	}

	history, err := f.marking.History(context.Background(), 7, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d marks, want 2", len(history))
	}
}

func TestMarkValidation(t *testing.T) {
	future := clock.Add(time.Hour)
	tests := []struct {
		name   string
		cfg    *model.StrategyConfig
		mutate func(c *MarkCommand)
		want   errors.Definition
	}{
		{"single mark with unit", singleMark(), func(c *MarkCommand) { c.UnitKey = "s1" }, errors.UnitKeyNotAllowed},
		{"missing unit", sessionBased(0, "s1"), func(c *MarkCommand) { c.UnitKey = "" }, errors.UnitKeyRequired},
		{"unknown unit", sessionBased(0, "s1"), func(c *MarkCommand) { c.UnitKey = "s9" }, errors.UnknownUnit},
		{"unknown registration", singleMark(), func(c *MarkCommand) { c.RegistrationID = 404 }, errors.RegistrationNotFound},
		{"other event", singleMark(), func(c *MarkCommand) { c.RegistrationID = 8 }, errors.RegistrationNotInEvent},
		{"cancelled", singleMark(), func(c *MarkCommand) { c.RegistrationID = 9 }, errors.RegistrationInactive},
		{"bad status", singleMark(), func(c *MarkCommand) { c.Status = "late" }, errors.InvalidMarkStatus},
		{"bad method", singleMark(), func(c *MarkCommand) { c.VerificationMethod = "nfc" }, errors.InvalidVerificationMethod},
		{"future", singleMark(), func(c *MarkCommand) { c.MarkedAt = &future }, errors.MarkedAtInFuture},
		{"no operator", singleMark(), func(c *MarkCommand) { c.MarkedBy = "" }, errors.InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cancelled := individual(9, 1)
			cancelled.Status = model.RegistrationCancelled
			f := newFixture(t, individual(7, 1), individual(8, 2), cancelled)
			f.configure(t, tt.cfg)

			cmd := MarkCommand{
				EventID:            1,
				RegistrationID:     7,
				UnitKey:            "s1",
				Status:             model.MarkStatusPresent,
				VerificationMethod: model.VerificationPhysical,
				MarkedBy:           "volunteer-1",
			}
			if tt.cfg.StrategyType == model.StrategySingleMark {
				cmd.UnitKey = ""
			}
			tt.mutate(&cmd)

			_, err := f.marking.Mark(context.Background(), cmd)
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("Mark() error = %v, want %s", err, tt.want.Code)
			}
			if started, _ := f.ledger.HasMarks(context.Background(), 1); started {
				t.Fatal("rejected mark must not touch the ledger")
			}
		})
	}
}

func TestMarkNotConfigured(t *testing.T) {
	f := newFixture(t, individual(7, 1))

	_, err := f.marking.Mark(context.Background(), MarkCommand{
		EventID:            1,
		RegistrationID:     7,
		Status:             model.MarkStatusPresent,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
	})
	if !errors.IsNotConfigured(err) {
		t.Fatalf("Mark() error = %v, want not configured", err)
	}
}

func TestMarkAllowsSmallClockSkew(t *testing.T) {
	f := newFixture(t, individual(7, 1))
	f.configure(t, singleMark())

	res := f.mark(t, 7, "", model.MarkStatusPresent, clock.Add(30*time.Second))
	if !res.Mark.MarkedAt.Equal(clock.Add(30 * time.Second)) {
		t.Fatalf("MarkedAt = %v", res.Mark.MarkedAt)
	}
}

func TestFirstMarkLocksStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, individual(7, 1))
	f.configure(t, dayBased(60))

	// 签到前可以反复修改
	f.configure(t, dayBased(67))

	f.mark(t, 7, "2026-03-14", model.MarkStatusPresent, clock)

	cfg, err := f.strategies.Resolve(ctx, 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.LockedAt == nil {
		t.Fatal("strategy should be locked after the first mark")
	}
	if cfg.Criteria.MinimumPercentage != 67 {
		t.Fatalf("MinimumPercentage = %d, want the last configured value", cfg.Criteria.MinimumPercentage)
	}

	_, err = f.strategies.Configure(ctx, 1, sessionBased(50, "s1"))
	if !stderrors.Is(err, errors.StrategyLocked) {
		t.Fatalf("Configure() after first mark error = %v, want STRATEGY_LOCKED", err)
	}
}

func TestBulkMarkPartialFailure(t *testing.T) {
	cancelled := individual(4, 1)
	cancelled.Status = model.RegistrationCancelled
	f := newFixture(t, individual(1, 1), individual(2, 1), individual(3, 2), cancelled)
	f.configure(t, sessionBased(50, "s1", "s2"))

	res, err := f.marking.BulkMark(context.Background(), BulkMarkCommand{
		EventID:            1,
		RegistrationIDs:    []int64{1, 99, 2, 3, 4, 1},
		UnitKey:            "s1",
		Status:             model.MarkStatusPresent,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
	})
	if err != nil {
		t.Fatalf("BulkMark() error = %v", err)
	}

	wantOK := []int64{1, 2, 1}
	if len(res.Successful) != len(wantOK) {
		t.Fatalf("Successful = %v, want %v", res.Successful, wantOK)
	}
	for i, id := range wantOK {
		if res.Successful[i] != id {
			t.Fatalf("Successful = %v, want %v", res.Successful, wantOK)
		}
	}

	wantFailed := []struct {
		id   int64
		code string
	}{
		{99, errors.RegistrationNotFound.Code},
		{3, errors.RegistrationNotInEvent.Code},
		{4, errors.RegistrationInactive.Code},
	}
	if len(res.Failed) != len(wantFailed) {
		t.Fatalf("Failed = %+v", res.Failed)
	}
	for i, w := range wantFailed {
		got := res.Failed[i]
		if got.RegistrationID != w.id || got.Code != w.code || got.Reason == "" {
			t.Fatalf("Failed[%d] = %+v, want id %d code %s", i, got, w.id, w.code)
		}
	}

	// 成功项已经落账，失败项不影响它们
	for _, id := range []int64{1, 2} {
		latest, _ := f.ledger.Latest(context.Background(), id, "s1")
		if latest == nil || latest.Status != model.MarkStatusPresent {
			t.Fatalf("registration %d should be marked present", id)
		}
	}
	for _, id := range []int64{99, 3, 4} {
		if latest, _ := f.ledger.Latest(context.Background(), id, "s1"); latest != nil {
			t.Fatalf("registration %d should have no marks", id)
		}
	}
}

func TestBulkMarkPerItemValidation(t *testing.T) {
	f := newFixture(t, individual(1, 1), individual(2, 1))
	f.configure(t, sessionBased(50, "s1"))

	res, err := f.marking.BulkMark(context.Background(), BulkMarkCommand{
		EventID:            1,
		RegistrationIDs:    []int64{1, 2},
		UnitKey:            "s9",
		Status:             model.MarkStatusPresent,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
	})
	if err != nil {
		t.Fatalf("BulkMark() error = %v", err)
	}
	if len(res.Successful) != 0 || len(res.Failed) != 2 {
		t.Fatalf("result = %+v", res)
	}
	for _, f := range res.Failed {
		if f.Code != errors.UnknownUnit.Code {
			t.Fatalf("failure code = %s, want UNKNOWN_UNIT", f.Code)
		}
	}
}

// teamFullDirectory 模拟外部报名服务返回容量错误
type teamFullDirectory struct {
	*repository.MemoryRegistrationDirectory
	full map[int64]bool
}

func (d *teamFullDirectory) Get(ctx context.Context, id int64) (*model.Registration, error) {
	if d.full[id] {
		return nil, errors.Wrap(errors.TeamFull, "team of registration %d has 5/5 members", id)
	}
	return d.MemoryRegistrationDirectory.Get(ctx, id)
}

func TestBulkMarkPropagatesCapacityError(t *testing.T) {
	dir := &teamFullDirectory{
		MemoryRegistrationDirectory: repository.NewMemoryRegistrationDirectory(individual(1, 1), individual(2, 1)),
		full:                        map[int64]bool{2: true},
	}
	f := newFixtureWith(t, dir, nil)
	f.configure(t, singleMark())

	res, err := f.marking.BulkMark(context.Background(), BulkMarkCommand{
		EventID:            1,
		RegistrationIDs:    []int64{1, 2},
		Status:             model.MarkStatusPresent,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
	})
	if err != nil {
		t.Fatalf("BulkMark() error = %v", err)
	}
	if len(res.Successful) != 1 || res.Successful[0] != 1 {
		t.Fatalf("Successful = %v", res.Successful)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("Failed = %+v", res.Failed)
	}
	got := res.Failed[0]
	if got.Code != errors.TeamFull.Code {
		t.Fatalf("failure code = %s, want TEAM_FULL", got.Code)
	}
	if got.Reason != "Team is full: team of registration 2 has 5/5 members" {
		t.Fatalf("capacity reason was masked: %q", got.Reason)
	}
}

func TestBulkMarkRejectedWholesale(t *testing.T) {
	ids := make([]int64, 11)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	tests := []struct {
		name      string
		configure bool
		ids       []int64
		want      errors.Definition
	}{
		{"not configured", false, []int64{1}, errors.AttendanceNotConfigured},
		{"empty", true, nil, errors.BulkEmpty},
		{"too large", true, ids, errors.BulkTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, individual(1, 1))
			if tt.configure {
				f.configure(t, singleMark())
			}
			res, err := f.marking.BulkMark(context.Background(), BulkMarkCommand{
				EventID:            1,
				RegistrationIDs:    tt.ids,
				Status:             model.MarkStatusPresent,
				VerificationMethod: model.VerificationManual,
				MarkedBy:           "volunteer-1",
			})
			if res != nil || !stderrors.Is(err, tt.want) {
				t.Fatalf("BulkMark() = %+v, %v, want %s", res, err, tt.want.Code)
			}
		})
	}
}

func TestBulkMarkCancelledContext(t *testing.T) {
	f := newFixture(t, individual(1, 1), individual(2, 1))
	f.configure(t, singleMark())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.marking.BulkMark(ctx, BulkMarkCommand{
		EventID:            1,
		RegistrationIDs:    []int64{1, 2},
		Status:             model.MarkStatusPresent,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
	})
	if err != nil {
		t.Fatalf("BulkMark() error = %v", err)
	}
	if len(res.Successful) != 0 || len(res.Failed) != 2 {
		t.Fatalf("result = %+v", res)
	}
	for _, fail := range res.Failed {
		if fail.Code != errors.MarkCancelled.Code {
			t.Fatalf("failure code = %s, want CANCELLED", fail.Code)
		}
	}
	if started, _ := f.ledger.HasMarks(context.Background(), 1); started {
		t.Fatal("cancelled batch must not write")
	}
}

type recordingPublisher struct {
	mu    sync.Mutex
	marks []int64
	err   error
}

func (p *recordingPublisher) PublishMarkRecorded(ctx context.Context, mark *model.AttendanceMark) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = append(p.marks, mark.PublicID)
	return p.err
}

func TestMarkPublishesBestEffort(t *testing.T) {
	pub := &recordingPublisher{err: stderrors.New("broker down")}
	f := newFixtureWith(t, repository.NewMemoryRegistrationDirectory(individual(7, 1)), pub)
	f.configure(t, singleMark())

	res := f.mark(t, 7, "", model.MarkStatusPresent, clock)
	if len(pub.marks) != 1 || pub.marks[0] != res.Mark.PublicID {
		t.Fatalf("published = %v, want [%d]", pub.marks, res.Mark.PublicID)
	}
	if !res.Progress.MeetsCriteria {
		t.Fatal("publish failure must not affect the mark")
	}
}

func TestHistoryAcrossUnits(t *testing.T) {
	f := newFixture(t, individual(7, 1))
	f.configure(t, sessionBased(50, "s1", "s2"))

	f.mark(t, 7, "s2", model.MarkStatusPresent, clock.Add(-time.Minute))
	f.mark(t, 7, "s1", model.MarkStatusPresent, clock.Add(-2*time.Minute))

	all, err := f.marking.History(context.Background(), 7, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 2 || all[0].UnitKey != "s1" || all[1].UnitKey != "s2" {
		t.Fatalf("History() = %+v, want s1 then s2", all)
	}

	one, err := f.marking.History(context.Background(), 7, "s2")
	if err != nil {
		t.Fatalf("History(s2) error = %v", err)
	}
	if len(one) != 1 {
		t.Fatalf("History(s2) returned %d marks", len(one))
	}
}
