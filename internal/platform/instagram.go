package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

// Instagram caps captions at 2200 characters.
const instagramCaptionLimit = 2200

var categoryHashtags = map[string]string{
	"electronics": "#Electronics #Tech #Gadgets #Mobile #Smartphone",
	"fashion":     "#Fashion #Style #Clothing #Shoes #Accessories",
	"home":        "#Home #Kitchen #Decor #Appliances #HomeDecor",
	"books":       "#Books #Reading #Education #Literature #Study",
	"sports":      "#Sports #Fitness #Health #Workout #Exercise",
}

// InstagramAdapter publishes image posts through the Instagram Graph API.
type InstagramAdapter struct {
	baseURL  string
	token    string
	userID   string
	hashtags []string
	client   *http.Client
	logger   *slog.Logger
}

// NewInstagram builds an Instagram Graph API adapter.
func NewInstagram(cfg config.Instagram, client *http.Client, logger *slog.Logger) *InstagramAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &InstagramAdapter{
		baseURL:  strings.TrimRight(cfg.GraphBaseURL, "/"),
		token:    cfg.AccessToken,
		userID:   cfg.UserID,
		hashtags: append([]string(nil), cfg.Hashtags...),
		client:   client,
		logger:   logging.NewComponentLogger(logger, "instagram"),
	}
}

// Name implements Adapter.
func (a *InstagramAdapter) Name() string { return config.PlatformInstagram }

type graphID struct {
	ID string `json:"id"`
}

// Deliver creates a media container and publishes it. Products without an
// image are rejected since the Graph API cannot publish text-only posts.
func (a *InstagramAdapter) Deliver(ctx context.Context, content Content) error {
	if strings.TrimSpace(content.ImageURL) == "" {
		return Reject(a.Name(), "image_url is required")
	}

	container, err := a.post(ctx, "media", url.Values{
		"image_url": {content.ImageURL},
		"caption":   {a.Caption(content)},
	})
	if err != nil {
		return fmt.Errorf("create media container: %w", err)
	}
	media, err := a.post(ctx, "media_publish", url.Values{"creation_id": {container}})
	if err != nil {
		return fmt.Errorf("publish media %s: %w", container, err)
	}
	a.logger.Debug("instagram post published",
		logging.Int64(logging.FieldProductID, content.ProductID),
		logging.String("media_id", media),
	)
	return nil
}

func (a *InstagramAdapter) post(ctx context.Context, edge string, form url.Values) (string, error) {
	form.Set("access_token", a.token)
	endpoint := fmt.Sprintf("%s/%s/%s", a.baseURL, url.PathEscape(a.userID), edge)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", unwrapURLError(err)
	}
	defer resp.Body.Close()
	if err := checkResponse(a.Name(), resp); err != nil {
		return "", err
	}
	var decoded graphID
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode %s response: %w", edge, err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("%s response missing id", edge)
	}
	return decoded.ID, nil
}

// Caption renders the post caption for the content's template followed by
// the shop link and hashtags.
func (a *InstagramAdapter) Caption(content Content) string {
	var b strings.Builder
	price := FormatPrice(content.Price)
	original := FormatPrice(content.OriginalPrice)
	switch content.Template {
	case "product_showcase":
		b.WriteString("✨ Product Spotlight ✨\n\n")
		b.WriteString(content.Title + "\n\n")
		if features := strings.TrimSpace(content.Features); features != "" {
			b.WriteString("🔥 Key Features:\n• " + features + "\n\n")
		}
		fmt.Fprintf(&b, "💰 Best Price: %s\n\n", price)
	case "price_comparison":
		b.WriteString("💰 BEST PRICE FOUND! 💰\n\n")
		b.WriteString(content.Title + "\n\n")
		fmt.Fprintf(&b, "📊 Other Stores: %s\n📉 Now: %s\n\n💸 You Save: %s\n\n", original, price, FormatPrice(content.Savings()))
	case "discount_alert":
		b.WriteString("🚨 DISCOUNT ALERT 🚨\n\n")
		b.WriteString(content.Title + "\n\n")
		fmt.Fprintf(&b, "💥 %s OFF\n🏷️ Was: %s\n💰 Now: %s\n\n", FormatPercent(content.DiscountPercent), original, price)
	default:
		b.WriteString("🔥 FLASH DEAL ALERT! 🔥\n\n")
		b.WriteString(content.Title + " at UNBEATABLE price!\n\n")
		fmt.Fprintf(&b, "💰 Only %s (Was %s)\n💯 %s OFF\n⏰ Limited Time Only!\n\n", price, original, FormatPercent(content.DiscountPercent))
	}
	if link := content.PrimaryURL(); link != "" {
		b.WriteString("🛒 Shop Now: " + link + "\n\n")
	}
	tags := append([]string(nil), a.hashtags...)
	if category, ok := categoryHashtags[strings.ToLower(strings.TrimSpace(content.Category))]; ok {
		tags = append(tags, category)
	}
	b.WriteString(strings.Join(tags, " "))
	return truncateRunes(strings.TrimSpace(b.String()), instagramCaptionLimit)
}
