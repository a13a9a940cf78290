package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Bidding.MinIncrement != 100 {
		t.Fatalf("expected default min increment 100, got %d", cfg.Bidding.MinIncrement)
	}
	if cfg.Bidding.WithdrawProtection() != 5*time.Minute {
		t.Fatalf("expected default protection window 5m, got %v", cfg.Bidding.WithdrawProtection())
	}
	if cfg.Settlement.Gateway != "log" {
		t.Fatalf("expected default gateway log, got %q", cfg.Settlement.Gateway)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bidflow.yaml")
	body := []byte(`
database:
  dsn: postgres://file-dsn/bidflow
bidding:
  min_increment: 250
  max_amount: 5000000
  withdraw_protection_seconds: 30
settlement:
  gateway: noop
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env-dsn/bidflow")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env-dsn/bidflow" {
		t.Fatalf("expected env DSN to win, got %q", cfg.Database.DSN)
	}
	if cfg.Bidding.MinIncrement != 250 {
		t.Fatalf("expected file min increment 250, got %d", cfg.Bidding.MinIncrement)
	}
	if cfg.Settlement.Gateway != "noop" {
		t.Fatalf("expected gateway noop, got %q", cfg.Settlement.Gateway)
	}
	if cfg.Bidding.WithdrawProtection() != 30*time.Second {
		t.Fatalf("expected protection window 30s, got %v", cfg.Bidding.WithdrawProtection())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("settlement:\n  gateway: stripe\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown gateway")
	}
}
