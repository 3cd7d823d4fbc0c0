package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
master_bot:
  token: "file-token"
database:
  url: "postgres://file"
subscription:
  trial_days: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MASTER_BOT_TOKEN", "env-token")
	t.Setenv("TRIAL_ENABLED", "true")
	t.Setenv("ADMIN_CHAT_ID", "777")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MasterBot.Token != "env-token" {
		t.Fatalf("env override lost: %q", cfg.MasterBot.Token)
	}
	if cfg.Database.URL != "postgres://file" {
		t.Fatalf("file value lost: %q", cfg.Database.URL)
	}
	if cfg.Subscription.TrialDays != 5 {
		t.Fatalf("trial_days = %d, want 5", cfg.Subscription.TrialDays)
	}
	if !cfg.Subscription.TrialEnabled {
		t.Fatal("TRIAL_ENABLED not applied")
	}
	if cfg.MasterBot.AdminChatID != 777 {
		t.Fatalf("admin chat id = %d", cfg.MasterBot.AdminChatID)
	}
	if cfg.Web.Port != 9090 {
		t.Fatalf("port = %d", cfg.Web.Port)
	}
	// Defaults.
	if cfg.Dispatch.FunnelInterval != 30*time.Second {
		t.Fatalf("funnel interval default = %s", cfg.Dispatch.FunnelInterval)
	}
	if cfg.Dispatch.BroadcastBatch != 50 {
		t.Fatalf("broadcast batch default = %d", cfg.Dispatch.BroadcastBatch)
	}
	if cfg.Subscription.PaidDays != 30 {
		t.Fatalf("paid days default = %d", cfg.Subscription.PaidDays)
	}
}

func TestLoadConfigRequiresToken(t *testing.T) {
	t.Setenv("MASTER_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatal("expected error for missing master bot token")
	}
}
