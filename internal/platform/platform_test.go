package platform_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/platform"
	"dealflow/internal/testsupport"
)

func sampleContent() platform.Content {
	return platform.Content{
		ProductID:       42,
		Title:           "Samsung Galaxy S24 Ultra",
		Price:           89999,
		OriginalPrice:   94999,
		DiscountPercent: 5.3,
		Category:        "electronics",
		ImageURL:        "https://img.example.com/s24.jpg",
		AffiliateURLs: map[string]string{
			"flipkart": "https://fk.example/aff",
			"amazon":   "https://amzn.example/aff",
		},
		Template: "deal_alert",
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		89999: "₹89,999",
		0:     "₹0",
		499.5: "₹499.5",
	}
	for amount, want := range cases {
		if got := platform.FormatPrice(amount); got != want {
			t.Errorf("FormatPrice(%v) = %q, want %q", amount, got, want)
		}
	}
}

func TestIsRejected(t *testing.T) {
	rejected := platform.Reject("instagram", "image_url is required")
	if !platform.IsRejected(rejected) {
		t.Fatal("expected rejection")
	}
	if !platform.IsRejected(fmt.Errorf("wrapped: %w", rejected)) {
		t.Fatal("expected wrapped rejection to classify")
	}
	if platform.IsRejected(errors.New("connection reset")) {
		t.Fatal("plain errors are faults")
	}
	if platform.IsRejected(nil) {
		t.Fatal("nil is not a rejection")
	}
}

func TestContentForCopiesProductFields(t *testing.T) {
	product := testsupport.SampleProduct()
	product.ID = 9
	product.AffiliateURLs = map[string]string{"amazon": "https://a"}

	content := platform.ContentFor(&product, "flash_deal")
	product.AffiliateURLs["amazon"] = "mutated"

	if content.ProductID != 9 || content.Template != "flash_deal" || content.Title != product.Title {
		t.Fatalf("unexpected content %+v", content)
	}
	if content.AffiliateURLs["amazon"] != "https://a" {
		t.Fatalf("expected affiliate map copy, got %q", content.AffiliateURLs["amazon"])
	}
}

type capturedRequest struct {
	mu   sync.Mutex
	path string
	form map[string]string
}

func TestTelegramSendPhoto(t *testing.T) {
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.mu.Lock()
		defer captured.mu.Unlock()
		captured.path = r.URL.Path
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		captured.form = map[string]string{}
		for k, v := range payload {
			captured.form[k] = fmt.Sprint(v)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	adapter := platform.NewTelegram(config.Telegram{
		BotToken:   "123:abc",
		ChatID:     "@sastasmart",
		Channel:    "@sastasmart",
		APIBaseURL: srv.URL,
	}, srv.Client(), logging.NewNop())

	if err := adapter.Deliver(context.Background(), sampleContent()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if captured.path != "/bot123:abc/sendPhoto" {
		t.Fatalf("unexpected path %s", captured.path)
	}
	if captured.form["photo"] != "https://img.example.com/s24.jpg" || captured.form["parse_mode"] != "Markdown" {
		t.Fatalf("unexpected payload %+v", captured.form)
	}
	caption := captured.form["caption"]
	for _, want := range []string{"*Samsung Galaxy S24 Ultra*", "₹89,999", "Save: ₹5,000 (5% OFF)", "Amazon: https://amzn.example/aff", "@sastasmart"} {
		if !strings.Contains(caption, want) {
			t.Fatalf("caption missing %q:\n%s", want, caption)
		}
	}
	if strings.Index(caption, "Amazon:") > strings.Index(caption, "Flipkart:") {
		t.Fatalf("expected buy links sorted by network:\n%s", caption)
	}
}

func TestTelegramSendMessageWithoutImage(t *testing.T) {
	var path string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	adapter := platform.NewTelegram(config.Telegram{BotToken: "t", ChatID: "1", APIBaseURL: srv.URL}, srv.Client(), logging.NewNop())
	content := sampleContent()
	content.ImageURL = ""
	if err := adapter.Deliver(context.Background(), content); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if path != "/bott/sendMessage" {
		t.Fatalf("unexpected path %s", path)
	}
	if _, ok := payload["text"]; !ok {
		t.Fatalf("expected text payload, got %+v", payload)
	}
}

func TestTelegramClassifiesResponses(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	adapter := platform.NewTelegram(config.Telegram{BotToken: "t", ChatID: "1", APIBaseURL: srv.URL}, srv.Client(), logging.NewNop())

	err := adapter.Deliver(context.Background(), sampleContent())
	if !platform.IsRejected(err) {
		t.Fatalf("expected 400 to be a rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}

	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		status = code
		err = adapter.Deliver(context.Background(), sampleContent())
		if err == nil || platform.IsRejected(err) {
			t.Fatalf("expected %d to be a fault, got %v", code, err)
		}
	}
}

func TestTelegramTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	adapter := platform.NewTelegram(config.Telegram{BotToken: "secret-token", ChatID: "1", APIBaseURL: base}, nil, logging.NewNop())
	err := adapter.Deliver(context.Background(), sampleContent())
	if err == nil || platform.IsRejected(err) {
		t.Fatalf("expected transport fault, got %v", err)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestDiscordEmbed(t *testing.T) {
	var message struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
			Fields      []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"fields"`
			Image struct {
				URL string `json:"url"`
			} `json:"image"`
			Footer struct {
				Text string `json:"text"`
			} `json:"footer"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&message)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	adapter := platform.NewDiscord(config.Discord{WebhookURL: srv.URL + "/api/webhooks/1/x", Username: "Deals"}, srv.Client(), logging.NewNop())
	if err := adapter.Deliver(context.Background(), sampleContent()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if message.Username != "Deals" || len(message.Embeds) != 1 {
		t.Fatalf("unexpected message %+v", message)
	}
	embed := message.Embeds[0]
	if embed.Color != 0xff6b6b || embed.Description != "Samsung Galaxy S24 Ultra" {
		t.Fatalf("unexpected embed %+v", embed)
	}
	if len(embed.Fields) != 4 || embed.Fields[3].Value != "[Amazon](https://amzn.example/aff)\n[Flipkart](https://fk.example/aff)" {
		t.Fatalf("unexpected fields %+v", embed.Fields)
	}
	if embed.Image.URL != "https://img.example.com/s24.jpg" || embed.Footer.Text == "" {
		t.Fatalf("expected image and footer, got %+v", embed)
	}
}

func TestDiscordRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "Unknown Webhook"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := platform.NewDiscord(config.Discord{WebhookURL: srv.URL}, srv.Client(), logging.NewNop())
	if err := adapter.Deliver(context.Background(), sampleContent()); !platform.IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestInstagramTwoStepPublish(t *testing.T) {
	captured := &capturedRequest{form: map[string]string{}}
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/17841/media":
			captured.form["caption"] = r.PostForm.Get("caption")
			captured.form["image_url"] = r.PostForm.Get("image_url")
			captured.form["access_token"] = r.PostForm.Get("access_token")
			_, _ = w.Write([]byte(`{"id":"container-1"}`))
		case "/17841/media_publish":
			captured.form["creation_id"] = r.PostForm.Get("creation_id")
			_, _ = w.Write([]byte(`{"id":"media-1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter := platform.NewInstagram(config.Instagram{
		AccessToken:  "ig-token",
		UserID:       "17841",
		GraphBaseURL: srv.URL,
		Hashtags:     []string{"#deals", "#sastasmart"},
	}, srv.Client(), logging.NewNop())

	content := sampleContent()
	content.Template = "flash_deal"
	if err := adapter.Deliver(context.Background(), content); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected two Graph API calls, got %v", paths)
	}
	if captured.form["creation_id"] != "container-1" || captured.form["access_token"] != "ig-token" {
		t.Fatalf("unexpected form values %+v", captured.form)
	}
	caption := captured.form["caption"]
	for _, want := range []string{"FLASH DEAL ALERT", "Shop Now: https://amzn.example/aff", "#deals #sastasmart", "#Electronics"} {
		if !strings.Contains(caption, want) {
			t.Fatalf("caption missing %q:\n%s", want, caption)
		}
	}
}

func TestInstagramRequiresImage(t *testing.T) {
	adapter := platform.NewInstagram(config.Instagram{AccessToken: "x", UserID: "1", GraphBaseURL: "http://127.0.0.1:1"}, nil, logging.NewNop())
	content := sampleContent()
	content.ImageURL = ""
	if err := adapter.Deliver(context.Background(), content); !platform.IsRejected(err) {
		t.Fatalf("expected rejection for missing image, got %v", err)
	}
}

func TestFromConfigRegistersCredentialedPlatforms(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Telegram.BotToken = "t"
	cfg.Telegram.ChatID = "c"
	cfg.Discord.WebhookURL = ""
	cfg.Instagram.AccessToken = ""

	registry := platform.FromConfig(cfg, logging.NewNop())
	names := registry.Names()
	if len(names) != 1 || names[0] != config.PlatformTelegram {
		t.Fatalf("expected only telegram registered, got %v", names)
	}
	if _, ok := registry.Get(config.PlatformDiscord); ok {
		t.Fatal("discord should not be registered without a webhook")
	}
}

func TestFromConfigSkipsDisabledPlatforms(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlatforms(config.PlatformDiscord))
	cfg.Telegram.BotToken = "t"
	cfg.Telegram.ChatID = "c"
	cfg.Discord.WebhookURL = "https://discord.example/hook"

	names := platform.FromConfig(cfg, logging.NewNop()).Names()
	if len(names) != 1 || names[0] != config.PlatformDiscord {
		t.Fatalf("expected only discord registered, got %v", names)
	}
}
