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

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

const (
	discordEmbedColor = 0xff6b6b
	discordFooter     = "SastaSmart - Best Deals Daily"
)

// DiscordAdapter posts deal embeds through a channel webhook.
type DiscordAdapter struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     *slog.Logger
}

// NewDiscord builds a Discord webhook adapter.
func NewDiscord(cfg config.Discord, client *http.Client, logger *slog.Logger) *DiscordAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DiscordAdapter{
		webhookURL: cfg.WebhookURL,
		username:   cfg.Username,
		client:     client,
		logger:     logging.NewComponentLogger(logger, "discord"),
	}
}

// Name implements Adapter.
func (d *DiscordAdapter) Name() string { return config.PlatformDiscord }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordFooterText struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Color       int               `json:"color"`
	Fields      []discordField    `json:"fields"`
	Image       *discordImage     `json:"image,omitempty"`
	Footer      discordFooterText `json:"footer"`
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Deliver posts one embed to the webhook.
func (d *DiscordAdapter) Deliver(ctx context.Context, content Content) error {
	body, err := json.Marshal(discordMessage{
		Username: d.username,
		Embeds:   []discordEmbed{d.buildEmbed(content)},
	})
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()
	if err := checkResponse(d.Name(), resp); err != nil {
		return err
	}
	d.logger.Debug("discord post sent", logging.Int64(logging.FieldProductID, content.ProductID))
	return nil
}

// buildEmbed renders the deal embed.
func (d *DiscordAdapter) buildEmbed(content Content) discordEmbed {
	embed := discordEmbed{
		Title:       "🔥 FLASH DEAL ALERT",
		Description: content.Title,
		Color:       discordEmbedColor,
		Fields: []discordField{
			{Name: "💰 Price", Value: FormatPrice(content.Price), Inline: true},
			{Name: "🏷️ Original Price", Value: FormatPrice(content.OriginalPrice), Inline: true},
			{Name: "💸 Discount", Value: FormatPercent(content.DiscountPercent) + " OFF", Inline: true},
		},
		Footer: discordFooterText{Text: discordFooter},
	}
	if networks := content.Networks(); len(networks) > 0 {
		links := make([]string, 0, len(networks))
		for _, network := range networks {
			links = append(links, fmt.Sprintf("[%s](%s)", networkLabel(network), content.AffiliateURLs[network]))
		}
		embed.Fields = append(embed.Fields, discordField{Name: "🛒 Buy Links", Value: strings.Join(links, "\n")})
	}
	if image := strings.TrimSpace(content.ImageURL); image != "" {
		embed.Image = &discordImage{URL: image}
	}
	return embed
}
