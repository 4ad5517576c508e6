package config

const (
	defaultDataDir               = "~/.local/share/dealflow"
	defaultLogDir                = "~/.local/share/dealflow/logs"
	defaultAPIBind               = "127.0.0.1:7490"
	defaultRedirectRatePerMinute = 60
	defaultShutdownTimeout       = 10
	defaultTickInterval          = 300
	defaultAdapterTimeout        = 30
	defaultMaxAttempts           = 1
	defaultRetryBackoff          = 300
	defaultAmazonTag             = "smartsasta07-21"
	defaultAmazonRef             = "sastasmart_deals"
	defaultTrackingSource        = "sastasmart"
	defaultTrackingMedium        = "affiliate"
	defaultTrackingCampaign      = "deals"
	defaultCommissionRate        = 0.05
	defaultShareASaleMerchant    = "12345"
	defaultBitlyBaseURL          = "https://api-ssl.bitly.com"
	defaultShortBaseURL          = "https://sastasmart.com/go"
	defaultBrand                 = "SastaSmart"
	defaultShortenerTimeout      = 10
	defaultMinDiscountPercent    = 20
	defaultTelegramAPIBaseURL    = "https://api.telegram.org"
	defaultTelegramPerMinute     = 20
	defaultDiscordUsername       = "SastaSmart Deals"
	defaultGraphBaseURL          = "https://graph.facebook.com/v19.0"
	defaultSnapshotSchedule      = "59 23 * * *"
	defaultReportSchedule        = "0 * * * *"
	defaultReportWindowDays      = 7
	defaultTopLinks              = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

func defaultCommissionRates() map[string]float64 {
	return map[string]float64{
		"amazon":     0.08,
		"flipkart":   0.10,
		"cj":         0.12,
		"shareasale": 0.15,
		"clickbank":  0.50,
	}
}

func defaultCadence() map[string]Cadence {
	return map[string]Cadence{
		PlatformInstagram: {Slots: 1, FirstDelayMinutes: 30, IntervalMinutes: 0, Template: "flash_deal"},
		PlatformTelegram:  {Slots: 6, FirstDelayMinutes: 5, IntervalMinutes: 5, Template: "deal_alert"},
		PlatformDiscord:   {Slots: 6, FirstDelayMinutes: 5, IntervalMinutes: 5, Template: "embed_deal"},
	}
}

func defaultHashtags() []string {
	return []string{"#deals", "#sale", "#discount", "#shopping", "#offers", "#sastasmart"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind:                  defaultAPIBind,
			RedirectRatePerMinute: defaultRedirectRatePerMinute,
			ShutdownTimeout:       defaultShutdownTimeout,
		},
		Scheduler: Scheduler{
			Platforms:      append([]string(nil), Platforms...),
			TickInterval:   defaultTickInterval,
			AdapterTimeout: defaultAdapterTimeout,
			MaxAttempts:    defaultMaxAttempts,
			RetryBackoff:   defaultRetryBackoff,
		},
		Cadence: defaultCadence(),
		Affiliate: Affiliate{
			AmazonTag:             defaultAmazonTag,
			AmazonRef:             defaultAmazonRef,
			ShareASaleMerchant:    defaultShareASaleMerchant,
			TrackingSource:        defaultTrackingSource,
			TrackingMedium:        defaultTrackingMedium,
			TrackingCampaign:      defaultTrackingCampaign,
			CommissionRates:       defaultCommissionRates(),
			DefaultCommissionRate: defaultCommissionRate,
		},
		Shortener: Shortener{
			BitlyBaseURL:   defaultBitlyBaseURL,
			ShortBaseURL:   defaultShortBaseURL,
			Brand:          defaultBrand,
			RequestTimeout: defaultShortenerTimeout,
		},
		Catalog: Catalog{
			MinDiscountPercent: defaultMinDiscountPercent,
		},
		Telegram: Telegram{
			APIBaseURL:        defaultTelegramAPIBaseURL,
			MessagesPerMinute: defaultTelegramPerMinute,
		},
		Discord: Discord{
			Username: defaultDiscordUsername,
		},
		Instagram: Instagram{
			GraphBaseURL: defaultGraphBaseURL,
			Hashtags:     defaultHashtags(),
		},
		Analytics: Analytics{
			SnapshotSchedule: defaultSnapshotSchedule,
			ReportSchedule:   defaultReportSchedule,
			ReportWindowDays: defaultReportWindowDays,
			TopLinks:         defaultTopLinks,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
