package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"Attendly/config"
)

const seedJSON = `{
  "registrations": [
    {"registration_id": 11, "event_id": 1, "status": "active"},
    {"registration_id": 12, "event_id": 1, "status": "active"}
  ],
  "strategies": [
    {"event_id": 1, "strategy_type": "single_mark"}
  ]
}`

func memoryConfig(seedPath string) *config.Config {
	return &config.Config{
		StorageBackend:        "memory",
		SeedPath:              seedPath,
		IdentityTokenSecret:   "identity-secret",
		IdentityTokenTTLHours: 1,
		BulkMarkConcurrency:   2,
		BulkMarkMaxItems:      10,
		ServiceName:           "attendly-test",
	}
}

func TestServiceDepsMemorySeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	d, err := ServiceDeps(ctx, memoryConfig(path))
	if err != nil {
		t.Fatalf("ServiceDeps() error = %v", err)
	}
	if d.Ledger == nil || d.Strategies == nil || d.Registrations == nil || d.Locker == nil || d.Issuer == nil {
		t.Fatalf("incomplete deps: %+v", d)
	}
	if d.Cache != nil || d.Publisher != nil {
		t.Fatal("memory backend must not wire redis cache or mq publisher")
	}

	reg, err := d.Registrations.Get(ctx, 12)
	if err != nil || reg.EventID != 1 {
		t.Fatalf("seeded registration missing: %+v, %v", reg, err)
	}
	cfg, err := d.Strategies.Get(ctx, 1)
	if err != nil || cfg == nil {
		t.Fatalf("seeded strategy missing: %+v, %v", cfg, err)
	}
}

func TestServiceDepsBadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(`{"strategies":[{"event_id":1,"strategy_type":"day_based"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ServiceDeps(context.Background(), memoryConfig(path)); err == nil {
		t.Fatal("day_based strategy without units should be rejected")
	}

	if _, err := ServiceDeps(context.Background(), memoryConfig(filepath.Join(t.TempDir(), "missing.json"))); err == nil {
		t.Fatal("missing seed file should fail")
	}
}

func TestServiceDepsWithoutSeed(t *testing.T) {
	if _, err := ServiceDeps(context.Background(), memoryConfig("")); err != nil {
		t.Fatalf("ServiceDeps() error = %v", err)
	}
}
