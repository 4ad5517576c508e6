package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateCadence(); err != nil {
		return err
	}
	if err := c.validateAffiliate(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateAnalytics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScheduler() error {
	for _, name := range c.Scheduler.Platforms {
		if !isKnownPlatform(name) {
			return fmt.Errorf("scheduler.platforms: unknown platform %q (expected one of %s)", name, strings.Join(Platforms, ", "))
		}
	}
	return ensurePositiveMap(map[string]int{
		"scheduler.tick_interval":   c.Scheduler.TickInterval,
		"scheduler.adapter_timeout": c.Scheduler.AdapterTimeout,
		"scheduler.max_attempts":    c.Scheduler.MaxAttempts,
		"scheduler.retry_backoff":   c.Scheduler.RetryBackoff,
	})
}

func (c *Config) validateCadence() error {
	for name, cadence := range c.Cadence {
		if !isKnownPlatform(name) {
			return fmt.Errorf("cadence.%s: unknown platform", name)
		}
		if cadence.Slots <= 0 {
			return fmt.Errorf("cadence.%s.slots must be positive", name)
		}
		if cadence.FirstDelayMinutes < 0 {
			return fmt.Errorf("cadence.%s.first_delay_minutes must be >= 0", name)
		}
		if cadence.Slots > 1 && cadence.IntervalMinutes <= 0 {
			return fmt.Errorf("cadence.%s.interval_minutes must be positive when slots > 1", name)
		}
	}
	return nil
}

func (c *Config) validateAffiliate() error {
	if c.Affiliate.DefaultCommissionRate < 0 || c.Affiliate.DefaultCommissionRate > 1 {
		return errors.New("affiliate.default_commission_rate must be between 0 and 1")
	}
	for network, rate := range c.Affiliate.CommissionRates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("affiliate.commission_rates.%s must be between 0 and 1", network)
		}
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.MinDiscountPercent < 0 || c.Catalog.MinDiscountPercent > 100 {
		return errors.New("catalog.min_discount_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateAnalytics() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.Analytics.SnapshotSchedule); err != nil {
		return fmt.Errorf("analytics.snapshot_schedule: %w", err)
	}
	if _, err := parser.Parse(c.Analytics.ReportSchedule); err != nil {
		return fmt.Errorf("analytics.report_schedule: %w", err)
	}
	return nil
}

func isKnownPlatform(name string) bool {
	for _, known := range Platforms {
		if known == name {
			return true
		}
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
