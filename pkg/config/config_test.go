package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Outbox.PollInterval != 60*time.Second {
		t.Fatalf("expected 60s poll interval, got %s", cfg.Outbox.PollInterval)
	}
	if cfg.Outbox.MaxAttempts != 5 || cfg.Outbox.BackoffStep != 5*time.Minute {
		t.Fatalf("unexpected retry defaults: %d attempts, %s step", cfg.Outbox.MaxAttempts, cfg.Outbox.BackoffStep)
	}
	if cfg.Outbox.BatchSize != 100 {
		t.Fatalf("expected batch size 100, got %d", cfg.Outbox.BatchSize)
	}
	if cfg.Route.Attempts != 2 {
		t.Fatalf("expected 2 route attempts, got %d", cfg.Route.Attempts)
	}
	if cfg.Schedule.Timezone != "Asia/Seoul" {
		t.Fatalf("expected Asia/Seoul, got %q", cfg.Schedule.Timezone)
	}
	if len(cfg.Redis.Addresses) != 1 || cfg.Redis.Addresses[0] != "localhost:6379" {
		t.Fatalf("unexpected redis addresses %v", cfg.Redis.Addresses)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COMMUTEALARM_OUTBOX_WAKE_DRIVER", "postgres")
	t.Setenv("COMMUTEALARM_OUTBOX_POLL_INTERVAL", "15s")
	t.Setenv("COMMUTEALARM_DATABASE_DRIVER", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Outbox.WakeDriver != "postgres" {
		t.Fatalf("expected postgres wake driver, got %q", cfg.Outbox.WakeDriver)
	}
	if cfg.Outbox.PollInterval != 15*time.Second {
		t.Fatalf("expected 15s poll interval, got %s", cfg.Outbox.PollInterval)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "alarm", Password: "pw", Database: "commute", SSLMode: "disable"}
	want := "host=db port=5432 user=alarm password=pw dbname=commute sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
