package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"KV_URL", "DB_URL", "PROVIDER_BASE_URL", "SCHEDULE_CRON", "PORT",
		"VERSION", "FETCH_CONCURRENCY", "FETCH_TIMEOUT", "RUN_DEADLINE",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_MissingRequiredFieldsFails(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when KV_URL and PROVIDER_BASE_URL are unset")
	}
}

func TestLoad_DefaultsAppliedWhenOptionalFieldsUnset(t *testing.T) {
	clearEnv(t)
	os.Setenv("KV_URL", "redis://localhost:6379/0")
	os.Setenv("PROVIDER_BASE_URL", "https://forecast.example.com")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScheduleCron != "0 0,6,12,18 * * *" {
		t.Fatalf("ScheduleCron = %q, want default", cfg.ScheduleCron)
	}
	if cfg.FetchConcurrency != 4 {
		t.Fatalf("FetchConcurrency = %d, want 4", cfg.FetchConcurrency)
	}
	if cfg.DBURL != "" {
		t.Fatalf("DBURL = %q, want empty (audit log disabled by default)", cfg.DBURL)
	}
}

func TestLoad_RejectsInvalidProviderURL(t *testing.T) {
	clearEnv(t)
	os.Setenv("KV_URL", "redis://localhost:6379/0")
	os.Setenv("PROVIDER_BASE_URL", "not-a-url")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for a malformed PROVIDER_BASE_URL")
	}
}

func TestLoad_RejectsBadDurationOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("KV_URL", "redis://localhost:6379/0")
	os.Setenv("PROVIDER_BASE_URL", "https://forecast.example.com")
	os.Setenv("FETCH_TIMEOUT", "not-a-duration")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for a malformed FETCH_TIMEOUT")
	}
}
