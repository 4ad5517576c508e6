package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dealflow/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("BITLY_TOKEN", "bitly-token")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "dealflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "dealflow.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Telegram.BotToken != "bot-token" {
		t.Fatalf("expected telegram token from env, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Shortener.BitlyToken != "bitly-token" {
		t.Fatalf("expected bitly token from env, got %q", cfg.Shortener.BitlyToken)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Scheduler.MaxAttempts != 1 {
		t.Fatalf("expected single-attempt default, got %d", cfg.Scheduler.MaxAttempts)
	}
	if cfg.TickInterval().Minutes() != 5 {
		t.Fatalf("expected 5 minute tick, got %s", cfg.TickInterval())
	}
}

func TestDefaultCadenceMatchesPlatformPolicy(t *testing.T) {
	cfg := config.Default()

	cases := []struct {
		platform string
		slots    int
		first    int
		interval int
	}{
		{config.PlatformInstagram, 1, 30, 0},
		{config.PlatformTelegram, 6, 5, 5},
		{config.PlatformDiscord, 6, 5, 5},
	}
	for _, tc := range cases {
		cadence, ok := cfg.Cadence[tc.platform]
		if !ok {
			t.Fatalf("missing cadence for %s", tc.platform)
		}
		if cadence.Slots != tc.slots || cadence.FirstDelayMinutes != tc.first || cadence.IntervalMinutes != tc.interval {
			t.Fatalf("unexpected cadence for %s: %+v", tc.platform, cadence)
		}
	}
}

func TestCommissionRateFallsBackToDefault(t *testing.T) {
	cfg := config.Default()
	if got := cfg.Affiliate.CommissionRate("Amazon"); got != 0.08 {
		t.Fatalf("amazon rate = %v, want 0.08", got)
	}
	if got := cfg.Affiliate.CommissionRate("unknown"); got != 0.05 {
		t.Fatalf("unknown rate = %v, want 0.05", got)
	}
}

func TestLoadFileOverridesAndPartialCadence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "dealflow.toml")
	content := `
[paths]
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[scheduler]
platforms = ["Telegram", "discord", "telegram"]
max_attempts = 3

[cadence.telegram]
slots = 2
first_delay_minutes = 1
interval_minutes = 10

[affiliate.commission_rates]
amazon = 0.04
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q to be used, got %q exists=%v", path, resolved, exists)
	}
	if got := cfg.EnabledPlatforms(); strings.Join(got, ",") != "telegram,discord" {
		t.Fatalf("unexpected enabled platforms: %v", got)
	}
	if cfg.Scheduler.MaxAttempts != 3 {
		t.Fatalf("expected max_attempts 3, got %d", cfg.Scheduler.MaxAttempts)
	}
	telegram := cfg.Cadence[config.PlatformTelegram]
	if telegram.Slots != 2 || telegram.Template != "deal_alert" {
		t.Fatalf("unexpected telegram cadence: %+v", telegram)
	}
	if cfg.Cadence[config.PlatformInstagram].Slots != 1 {
		t.Fatalf("expected instagram cadence default to survive, got %+v", cfg.Cadence[config.PlatformInstagram])
	}
	if got := cfg.Affiliate.CommissionRate("amazon"); got != 0.04 {
		t.Fatalf("expected overridden amazon rate, got %v", got)
	}
	if got := cfg.Affiliate.CommissionRate("flipkart"); got != 0.10 {
		t.Fatalf("expected default flipkart rate to survive, got %v", got)
	}
}

func TestValidateRejectsUnknownPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Platforms = []string{"myspace"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown platform to fail validation")
	}
}

func TestValidateRejectsBadCronSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Analytics.SnapshotSchedule = "every day"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid cron expression to fail validation")
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if len(cfg.EnabledPlatforms()) != 3 {
		t.Fatalf("expected all platforms enabled in sample, got %v", cfg.EnabledPlatforms())
	}
}
