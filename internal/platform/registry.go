package platform

import (
	"log/slog"
	"net/http"
	"strings"

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

// FromConfig registers an adapter for every enabled platform that has
// credentials. Enabled platforms without credentials are logged and left
// unregistered; their deliveries end in error with "no adapter".
func FromConfig(cfg *config.Config, logger *slog.Logger) *Registry {
	registry := NewRegistry()
	client := &http.Client{Timeout: cfg.AdapterTimeout()}
	log := logging.NewComponentLogger(logger, "platforms")

	for _, name := range cfg.EnabledPlatforms() {
		var (
			adapter Adapter
			missing string
		)
		switch name {
		case config.PlatformTelegram:
			if strings.TrimSpace(cfg.Telegram.BotToken) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "" {
				missing = "telegram.bot_token and telegram.chat_id"
			} else {
				adapter = NewTelegram(cfg.Telegram, client, logger)
			}
		case config.PlatformDiscord:
			if strings.TrimSpace(cfg.Discord.WebhookURL) == "" {
				missing = "discord.webhook_url"
			} else {
				adapter = NewDiscord(cfg.Discord, client, logger)
			}
		case config.PlatformInstagram:
			if strings.TrimSpace(cfg.Instagram.AccessToken) == "" || strings.TrimSpace(cfg.Instagram.UserID) == "" {
				missing = "instagram.access_token and instagram.user_id"
			} else {
				adapter = NewInstagram(cfg.Instagram, client, logger)
			}
		}
		if adapter == nil {
			logging.WarnWithContext(log, "platform enabled without credentials", "adapter_unavailable",
				logging.String(logging.FieldPlatform, name),
				logging.String(logging.FieldImpact, "deliveries for this platform will be recorded as errors"),
				logging.String(logging.FieldErrorHint, "set "+missing),
			)
			continue
		}
		registry.Register(adapter)
	}
	return registry
}
