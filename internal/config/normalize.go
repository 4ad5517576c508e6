package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeScheduler()
	c.normalizeCadence()
	c.normalizeAffiliate()
	c.normalizeShortener()
	c.normalizeAdapters()
	c.normalizeAnalytics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = lookupEnv("DEALFLOW_API_TOKEN")
	}
	if c.API.RedirectRatePerMinute <= 0 {
		c.API.RedirectRatePerMinute = defaultRedirectRatePerMinute
	}
	if c.API.ShutdownTimeout <= 0 {
		c.API.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (c *Config) normalizeScheduler() {
	platforms := make([]string, 0, len(c.Scheduler.Platforms))
	seen := make(map[string]struct{}, len(c.Scheduler.Platforms))
	for _, name := range c.Scheduler.Platforms {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		platforms = append(platforms, name)
	}
	c.Scheduler.Platforms = platforms
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = defaultTickInterval
	}
	if c.Scheduler.AdapterTimeout <= 0 {
		c.Scheduler.AdapterTimeout = defaultAdapterTimeout
	}
	if c.Scheduler.MaxAttempts <= 0 {
		c.Scheduler.MaxAttempts = defaultMaxAttempts
	}
	if c.Scheduler.RetryBackoff <= 0 {
		c.Scheduler.RetryBackoff = defaultRetryBackoff
	}
}

// normalizeCadence fills entries that were declared without slots from the
// built-in cadence so a partial [cadence.<platform>] table keeps working.
func (c *Config) normalizeCadence() {
	defaults := defaultCadence()
	if c.Cadence == nil {
		c.Cadence = defaults
		return
	}
	normalized := make(map[string]Cadence, len(c.Cadence))
	for name, cadence := range c.Cadence {
		normalized[strings.ToLower(strings.TrimSpace(name))] = cadence
	}
	for name, fallback := range defaults {
		cadence, ok := normalized[name]
		if !ok || cadence.Slots <= 0 {
			normalized[name] = fallback
			continue
		}
		cadence.Template = strings.TrimSpace(cadence.Template)
		if cadence.Template == "" {
			cadence.Template = fallback.Template
		}
		normalized[name] = cadence
	}
	c.Cadence = normalized
}

func (c *Config) normalizeAffiliate() {
	a := &c.Affiliate
	a.AmazonTag = strings.TrimSpace(a.AmazonTag)
	if a.AmazonTag == "" {
		a.AmazonTag = defaultAmazonTag
	}
	a.AmazonRef = strings.TrimSpace(a.AmazonRef)
	if a.AmazonRef == "" {
		a.AmazonRef = defaultAmazonRef
	}
	a.FlipkartID = firstNonEmpty(a.FlipkartID, lookupEnv("FLIPKART_AFFILIATE_ID"))
	a.CJID = firstNonEmpty(a.CJID, lookupEnv("CJ_AFFILIATE_ID"))
	a.ShareASaleID = firstNonEmpty(a.ShareASaleID, lookupEnv("SHAREASALE_AFFILIATE_ID"))
	a.ShareASaleMerchant = firstNonEmpty(a.ShareASaleMerchant, defaultShareASaleMerchant)
	a.ClickBankNickname = firstNonEmpty(a.ClickBankNickname, lookupEnv("CLICKBANK_NICKNAME"))
	a.TrackingSource = firstNonEmpty(a.TrackingSource, defaultTrackingSource)
	a.TrackingMedium = firstNonEmpty(a.TrackingMedium, defaultTrackingMedium)
	a.TrackingCampaign = firstNonEmpty(a.TrackingCampaign, defaultTrackingCampaign)
	rates := defaultCommissionRates()
	for network, rate := range a.CommissionRates {
		rates[strings.ToLower(strings.TrimSpace(network))] = rate
	}
	a.CommissionRates = rates
	if a.DefaultCommissionRate <= 0 {
		a.DefaultCommissionRate = defaultCommissionRate
	}
}

func (c *Config) normalizeShortener() {
	s := &c.Shortener
	s.BitlyToken = firstNonEmpty(s.BitlyToken, lookupEnv("BITLY_TOKEN"))
	s.BitlyBaseURL = strings.TrimRight(firstNonEmpty(s.BitlyBaseURL, defaultBitlyBaseURL), "/")
	s.ShortBaseURL = strings.TrimRight(firstNonEmpty(s.ShortBaseURL, defaultShortBaseURL), "/")
	s.Brand = firstNonEmpty(s.Brand, defaultBrand)
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = defaultShortenerTimeout
	}
}

func (c *Config) normalizeAdapters() {
	c.Telegram.BotToken = firstNonEmpty(c.Telegram.BotToken, lookupEnv("TELEGRAM_BOT_TOKEN"))
	c.Telegram.ChatID = firstNonEmpty(c.Telegram.ChatID, lookupEnv("TELEGRAM_CHAT_ID"))
	c.Telegram.Channel = strings.TrimSpace(c.Telegram.Channel)
	c.Telegram.APIBaseURL = strings.TrimRight(firstNonEmpty(c.Telegram.APIBaseURL, defaultTelegramAPIBaseURL), "/")
	if c.Telegram.MessagesPerMinute <= 0 {
		c.Telegram.MessagesPerMinute = defaultTelegramPerMinute
	}

	c.Discord.WebhookURL = firstNonEmpty(c.Discord.WebhookURL, lookupEnv("DISCORD_WEBHOOK_URL"))
	c.Discord.Username = firstNonEmpty(c.Discord.Username, defaultDiscordUsername)

	c.Instagram.AccessToken = firstNonEmpty(c.Instagram.AccessToken, lookupEnv("INSTAGRAM_ACCESS_TOKEN"))
	c.Instagram.UserID = firstNonEmpty(c.Instagram.UserID, lookupEnv("INSTAGRAM_USER_ID"))
	c.Instagram.GraphBaseURL = strings.TrimRight(firstNonEmpty(c.Instagram.GraphBaseURL, defaultGraphBaseURL), "/")
	if len(c.Instagram.Hashtags) == 0 {
		c.Instagram.Hashtags = defaultHashtags()
	}
}

func (c *Config) normalizeAnalytics() {
	c.Analytics.SnapshotSchedule = firstNonEmpty(c.Analytics.SnapshotSchedule, defaultSnapshotSchedule)
	c.Analytics.ReportSchedule = firstNonEmpty(c.Analytics.ReportSchedule, defaultReportSchedule)
	if c.Analytics.ReportWindowDays <= 0 {
		c.Analytics.ReportWindowDays = defaultReportWindowDays
	}
	if c.Analytics.TopLinks <= 0 {
		c.Analytics.TopLinks = defaultTopLinks
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
