package service

import (
	"context"
	"os"
	"testing"
	"time"

	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/snowflake"
	"Attendly/pkg/token"
)

var clock = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	if err := snowflake.Init(1, 1); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fixture struct {
	ledger     *repository.MemoryLedger
	store      *repository.MemoryStrategyStore
	regs       *repository.MemoryRegistrationDirectory
	issuer     *token.IdentityIssuer
	strategies *StrategyService
	criteria   *CriteriaService
	marking    *MarkingService
	identity   *IdentityService
	analytics  *AnalyticsService
}

func newFixture(t *testing.T, regs ...model.Registration) *fixture {
	t.Helper()
	return newFixtureWith(t, repository.NewMemoryRegistrationDirectory(regs...), nil)
}

func newFixtureWith(t *testing.T, dir repository.RegistrationDirectory, publisher MarkPublisher) *fixture {
	t.Helper()
	f := &fixture{
		ledger: repository.NewMemoryLedger(),
		store:  repository.NewMemoryStrategyStore(),
		issuer: token.NewIdentityIssuer("identity-secret", 24*time.Hour, "attendly-test").
			WithClock(func() time.Time { return clock }),
	}
	if mem, ok := dir.(*repository.MemoryRegistrationDirectory); ok {
		f.regs = mem
	}

	f.strategies, f.criteria, f.marking, f.identity, f.analytics = build(Deps{
		Ledger:          f.ledger,
		Strategies:      f.store,
		Registrations:   dir,
		Publisher:       publisher,
		Issuer:          f.issuer,
		BulkConcurrency: 4,
		BulkMaxItems:    10,
		ClockSkew:       time.Minute,
	})
	f.marking.now = func() time.Time { return clock }
	f.strategies.now = func() time.Time { return clock }
	return f
}

func (f *fixture) configure(t *testing.T, cfg *model.StrategyConfig) {
	t.Helper()
	if _, err := f.strategies.Configure(context.Background(), cfg.EventID, cfg); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
}

func (f *fixture) mark(t *testing.T, reg int64, unit string, status model.MarkStatus, at time.Time) *model.MarkResult {
	t.Helper()
	res, err := f.marking.Mark(context.Background(), MarkCommand{
		MarkedAt:           &at,
		EventID:            1,
		RegistrationID:     reg,
		UnitKey:            unit,
		Status:             status,
		VerificationMethod: model.VerificationManual,
		MarkedBy:           "volunteer-1",
	})
	if err != nil {
		t.Fatalf("Mark(%d, %q) error = %v", reg, unit, err)
	}
	return res
}

func individual(id, event int64) model.Registration {
	return model.Registration{ID: id, EventID: event, RegistrationType: model.RegistrationIndividual}
}

func teamOf(teamID int64, ids ...int64) []model.Registration {
	out := make([]model.Registration, 0, len(ids))
	for i, id := range ids {
		typ := model.RegistrationTeamMember
		if i == 0 {
			typ = model.RegistrationTeamLeader
		}
		tid := teamID
		out = append(out, model.Registration{ID: id, EventID: 1, RegistrationType: typ, TeamRegistrationID: &tid})
	}
	return out
}

func dayBased(minimum int) *model.StrategyConfig {
	return &model.StrategyConfig{
		EventID:      1,
		StrategyType: model.StrategyDayBased,
		Units: []model.Unit{
			{Key: "2026-03-14", Label: "Day 1"},
			{Key: "2026-03-15", Label: "Day 2"},
			{Key: "2026-03-16", Label: "Day 3"},
		},
		Criteria: model.Criteria{MinimumPercentage: minimum},
	}
}

func sessionBased(minimum int, keys ...string) *model.StrategyConfig {
	cfg := &model.StrategyConfig{
		EventID:      1,
		StrategyType: model.StrategySessionBased,
		Criteria:     model.Criteria{MinimumPercentage: minimum},
	}
	for _, k := range keys {
		cfg.Units = append(cfg.Units, model.Unit{Key: k})
	}
	return cfg
}

func singleMark() *model.StrategyConfig {
	return &model.StrategyConfig{EventID: 1, StrategyType: model.StrategySingleMark}
}
