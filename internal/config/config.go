package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Platform names recognised by the scheduler and adapters.
const (
	PlatformTelegram  = "telegram"
	PlatformDiscord   = "discord"
	PlatformInstagram = "instagram"
)

// Platforms lists every supported distribution platform in a stable order.
var Platforms = []string{PlatformTelegram, PlatformDiscord, PlatformInstagram}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains configuration for the daemon HTTP server.
type API struct {
	Bind                  string `toml:"bind"`
	Token                 string `toml:"token"`
	RedirectRatePerMinute int    `toml:"redirect_rate_per_minute"`
	ShutdownTimeout       int    `toml:"shutdown_timeout"`
}

// Scheduler contains configuration for the posting queue loop.
type Scheduler struct {
	Platforms      []string `toml:"platforms"`
	TickInterval   int      `toml:"tick_interval"`
	AdapterTimeout int      `toml:"adapter_timeout"`
	MaxAttempts    int      `toml:"max_attempts"`
	RetryBackoff   int      `toml:"retry_backoff"`
}

// Cadence describes how many delivery slots a platform receives per product
// and how far apart they are.
type Cadence struct {
	Slots             int    `toml:"slots"`
	FirstDelayMinutes int    `toml:"first_delay_minutes"`
	IntervalMinutes   int    `toml:"interval_minutes"`
	Template          string `toml:"template"`
}

// FirstDelay returns the offset of the first slot from enqueue time.
func (c Cadence) FirstDelay() time.Duration {
	return time.Duration(c.FirstDelayMinutes) * time.Minute
}

// Interval returns the spacing between consecutive slots.
func (c Cadence) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Affiliate contains network identifiers, tracking parameters, and commission rates.
type Affiliate struct {
	AmazonTag             string             `toml:"amazon_tag"`
	AmazonRef             string             `toml:"amazon_ref"`
	FlipkartID            string             `toml:"flipkart_id"`
	CJID                  string             `toml:"cj_id"`
	ShareASaleID          string             `toml:"shareasale_id"`
	ShareASaleMerchant    string             `toml:"shareasale_merchant"`
	ClickBankNickname     string             `toml:"clickbank_nickname"`
	TrackingSource        string             `toml:"tracking_source"`
	TrackingMedium        string             `toml:"tracking_medium"`
	TrackingCampaign      string             `toml:"tracking_campaign"`
	CommissionRates       map[string]float64 `toml:"commission_rates"`
	DefaultCommissionRate float64            `toml:"default_commission_rate"`
}

// CommissionRate returns the configured rate for a network, falling back to
// the default rate when the network is not listed.
func (a Affiliate) CommissionRate(network string) float64 {
	if rate, ok := a.CommissionRates[strings.ToLower(network)]; ok {
		return rate
	}
	return a.DefaultCommissionRate
}

// Shortener contains configuration for the short-link service.
type Shortener struct {
	BitlyToken     string `toml:"bitly_token"`
	BitlyBaseURL   string `toml:"bitly_base_url"`
	ShortBaseURL   string `toml:"short_base_url"`
	Brand          string `toml:"brand"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Catalog contains configuration for product ingestion.
type Catalog struct {
	MinDiscountPercent float64 `toml:"min_discount_percent"`
}

// Telegram contains Bot API credentials.
type Telegram struct {
	BotToken          string `toml:"bot_token"`
	ChatID            string `toml:"chat_id"`
	Channel           string `toml:"channel"`
	APIBaseURL        string `toml:"api_base_url"`
	MessagesPerMinute int    `toml:"messages_per_minute"`
}

// Discord contains webhook configuration.
type Discord struct {
	WebhookURL string `toml:"webhook_url"`
	Username   string `toml:"username"`
}

// Instagram contains Graph API credentials.
type Instagram struct {
	AccessToken  string   `toml:"access_token"`
	UserID       string   `toml:"user_id"`
	GraphBaseURL string   `toml:"graph_base_url"`
	Hashtags     []string `toml:"hashtags"`
}

// Analytics contains cron schedules and report windows.
type Analytics struct {
	SnapshotSchedule string `toml:"snapshot_schedule"`
	ReportSchedule   string `toml:"report_schedule"`
	ReportWindowDays int    `toml:"report_window_days"`
	TopLinks         int    `toml:"top_links"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dealflow.
//
// Configuration sections by subsystem:
//   - Paths: database and log directories
//   - API: daemon HTTP server bind, token, and redirect limits
//   - Scheduler: tick interval, adapter timeout, bounded retry
//   - Cadence: per-platform slot policy
//   - Affiliate: network identifiers, tracking params, commission table
//   - Shortener: Bitly token and local fallback base URL
//   - Catalog: ingestion thresholds
//   - Telegram/Discord/Instagram: adapter credentials
//   - Analytics: snapshot and report schedules
//   - Logging: log format and level
type Config struct {
	Paths     Paths              `toml:"paths"`
	API       API                `toml:"api"`
	Scheduler Scheduler          `toml:"scheduler"`
	Cadence   map[string]Cadence `toml:"cadence"`
	Affiliate Affiliate          `toml:"affiliate"`
	Shortener Shortener          `toml:"shortener"`
	Catalog   Catalog            `toml:"catalog"`
	Telegram  Telegram           `toml:"telegram"`
	Discord   Discord            `toml:"discord"`
	Instagram Instagram          `toml:"instagram"`
	Analytics Analytics          `toml:"analytics"`
	Logging   Logging            `toml:"logging"`
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "dealflow.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "dealflow.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "dealflow.pid")
}

// TickInterval returns the scheduler polling interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickInterval) * time.Second
}

// AdapterTimeout returns the deadline applied to each adapter call.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Scheduler.AdapterTimeout) * time.Second
}

// RetryBackoff returns the base delay between delivery attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Scheduler.RetryBackoff) * time.Second
}

// EnabledPlatforms returns the platforms deliveries are enqueued for, in the
// order of Platforms.
func (c *Config) EnabledPlatforms() []string {
	enabled := make(map[string]struct{}, len(c.Scheduler.Platforms))
	for _, name := range c.Scheduler.Platforms {
		enabled[name] = struct{}{}
	}
	out := make([]string, 0, len(Platforms))
	for _, name := range Platforms {
		if _, ok := enabled[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dealflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dealflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
