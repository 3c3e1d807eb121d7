package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "BACKEND_URL", "STORE_NAME",
		"SYNC_INTERVAL_SECONDS", "SETTLE_DELAY_SECONDS",
		"SYNC_RETENTION_HOURS", "REQUEST_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8090" {
		t.Errorf("Port = %s, want 8090", cfg.Port)
	}
	if cfg.BackendURL != "http://127.0.0.1:8080" {
		t.Errorf("BackendURL = %s", cfg.BackendURL)
	}
	if cfg.StoreName != "kiosk" {
		t.Errorf("StoreName = %s", cfg.StoreName)
	}
	if cfg.SyncIntervalSeconds != 30 || cfg.SettleDelaySeconds != 2 {
		t.Errorf("sync timing defaults wrong: %d/%d", cfg.SyncIntervalSeconds, cfg.SettleDelaySeconds)
	}
	if cfg.RetentionHours != 72 || cfg.RequestTimeoutSecs != 10 {
		t.Errorf("retention/timeout defaults wrong: %d/%d", cfg.RetentionHours, cfg.RequestTimeoutSecs)
	}
}

func TestLoadOverridesAndTrimming(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BACKEND_URL", "https://pos.example.com/")
	t.Setenv("SYNC_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("MANAGER_PIN", "  1234  ")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if cfg.BackendURL != "https://pos.example.com" {
		t.Errorf("trailing slash not trimmed: %s", cfg.BackendURL)
	}
	if cfg.SyncIntervalSeconds != 30 {
		t.Errorf("bad interval should fall back to default, got %d", cfg.SyncIntervalSeconds)
	}
	if cfg.ManagerPIN != "1234" {
		t.Errorf("ManagerPIN = %q", cfg.ManagerPIN)
	}
	if cfg.Address() != ":9000" {
		t.Errorf("Address = %s", cfg.Address())
	}
}
