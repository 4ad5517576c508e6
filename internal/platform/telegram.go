package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

// Telegram caps photo captions at 1024 characters.
const telegramCaptionLimit = 1024

// TelegramAdapter posts deals through the Telegram Bot API.
type TelegramAdapter struct {
	baseURL string
	token   string
	chatID  string
	channel string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTelegram builds a Telegram adapter. messagesPerMinute <= 0 disables
// outbound rate limiting.
func NewTelegram(cfg config.Telegram, client *http.Client, logger *slog.Logger) *TelegramAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.MessagesPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.MessagesPerMinute))
	}
	return &TelegramAdapter{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		channel: cfg.Channel,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.NewComponentLogger(logger, "telegram"),
	}
}

// Name implements Adapter.
func (t *TelegramAdapter) Name() string { return config.PlatformTelegram }

// Deliver sends a photo post when the product has an image, otherwise a text
// message.
func (t *TelegramAdapter) Deliver(ctx context.Context, content Content) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	text := t.Render(content)
	method := "sendMessage"
	payload := map[string]any{
		"chat_id":    t.chatID,
		"parse_mode": "Markdown",
	}
	if strings.TrimSpace(content.ImageURL) != "" {
		method = "sendPhoto"
		payload["photo"] = content.ImageURL
		payload["caption"] = truncateRunes(text, telegramCaptionLimit)
	} else {
		payload["text"] = text
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode telegram payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error text.
		return fmt.Errorf("send telegram %s: %w", method, unwrapURLError(err))
	}
	defer resp.Body.Close()
	if err := checkResponse(t.Name(), resp); err != nil {
		return err
	}
	t.logger.Debug("telegram post sent",
		logging.Int64(logging.FieldProductID, content.ProductID),
		logging.String("method", method),
	)
	return nil
}

// Render builds the Markdown post text.
func (t *TelegramAdapter) Render(content Content) string {
	var b strings.Builder
	switch content.Template {
	case "flash_deal":
		b.WriteString("⚡ *FLASH DEAL* ⚡\n\n")
	default:
		b.WriteString("🔥 *DEAL ALERT* 🔥\n\n")
	}
	fmt.Fprintf(&b, "📱 *%s*\n\n", content.Title)
	fmt.Fprintf(&b, "💰 Price: %s\n", FormatPrice(content.Price))
	if content.OriginalPrice > 0 {
		fmt.Fprintf(&b, "🏷️ Was: %s\n", FormatPrice(content.OriginalPrice))
	}
	if savings := content.Savings(); savings > 0 {
		fmt.Fprintf(&b, "💸 Save: %s (%s OFF)\n", FormatPrice(savings), FormatPercent(content.DiscountPercent))
	}
	if networks := content.Networks(); len(networks) > 0 {
		b.WriteString("\n🛒 *Buy Now:*\n")
		for _, network := range networks {
			fmt.Fprintf(&b, "%s: %s\n", networkLabel(network), content.AffiliateURLs[network])
		}
	}
	b.WriteString("\n⏰ Limited Time Offer!")
	if t.channel != "" {
		fmt.Fprintf(&b, "\n🚀 %s", t.channel)
	}
	return b.String()
}
