package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"Attendly/internal/model"
	"Attendly/pkg/errors"
)

func TestAnalytics(t *testing.T) {
	ctx := context.Background()
	cancelled := individual(4, 1)
	cancelled.Status = model.RegistrationCancelled
	f := newFixture(t, individual(1, 1), individual(2, 1), individual(3, 1), cancelled, individual(5, 2))
	f.configure(t, sessionBased(50, "s1", "s2"))

	f.mark(t, 1, "s1", model.MarkStatusPresent, clock.Add(-time.Hour))
	f.mark(t, 1, "s2", model.MarkStatusPresent, clock)
	f.mark(t, 2, "s1", model.MarkStatusAbsent, clock.Add(-time.Hour))
	// 后到的更正覆盖之前的 absent
	f.mark(t, 2, "s1", model.MarkStatusExcused, clock)
	f.mark(t, 3, "s2", model.MarkStatusAbsent, clock)

	unit, err := f.analytics.UnitStats(ctx, 1, "s1")
	if err != nil {
		t.Fatalf("UnitStats() error = %v", err)
	}
	want := model.UnitStats{UnitKey: "s1", Attended: 2, Present: 1, Excused: 1, Unmarked: 1, TotalRegistrations: 3}
	if *unit != want {
		t.Fatalf("UnitStats() = %+v, want %+v", *unit, want)
	}

	overall, err := f.analytics.OverallStats(ctx, 1)
	if err != nil {
		t.Fatalf("OverallStats() error = %v", err)
	}
	if overall.RegistrationsTotal != 3 || overall.RegistrationsOnTrack != 2 {
		t.Fatalf("OverallStats() = %+v", overall)
	}
	if len(overall.PerUnit) != 2 || overall.PerUnit[1].Absent != 1 || overall.PerUnit[1].Present != 1 {
		t.Fatalf("PerUnit = %+v", overall.PerUnit)
	}
}

func TestAnalyticsErrors(t *testing.T) {
	f := newFixture(t, individual(1, 1))

	if _, err := f.analytics.OverallStats(context.Background(), 1); !errors.IsNotConfigured(err) {
		t.Fatalf("OverallStats() error = %v, want not configured", err)
	}

	f.configure(t, sessionBased(50, "s1"))
	if _, err := f.analytics.UnitStats(context.Background(), 1, "s9"); !stderrors.Is(err, errors.UnknownUnit) {
		t.Fatalf("UnitStats() error = %v, want UNKNOWN_UNIT", err)
	}
}
