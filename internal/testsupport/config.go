package testsupport

import (
	"path/filepath"
	"testing"

	"dealflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Affiliate.FlipkartID = "flipkart-test"
	cfgVal.Affiliate.CJID = "cj-test"
	cfgVal.Affiliate.ShareASaleID = "sas-test"
	cfgVal.Affiliate.ClickBankNickname = "cbnick"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPlatforms restricts the platforms deliveries are enqueued for.
func WithPlatforms(platforms ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.Platforms = append([]string(nil), platforms...)
	}
}

// WithMaxAttempts enables bounded retry with the given attempt budget.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxAttempts = attempts
	}
}

// WithCadence overrides a single platform's cadence.
func WithCadence(platform string, cadence config.Cadence) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cadence[platform] = cadence
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
