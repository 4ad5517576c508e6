package affiliate

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codeGROOVE-dev/retry"

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

const (
	titleRuneLimit  = 50
	maxErrorBody    = 4 << 10
	shortenAttempts = 3
)

// ShortLink is the outcome of shortening a URL.
type ShortLink struct {
	URL      string `json:"url"`
	Code     string `json:"code"`
	Fallback bool   `json:"fallback"`
}

// Shortener wraps the Bitly v4 API with a deterministic local fallback.
type Shortener struct {
	token      string
	apiBase    string
	shortBase  string
	brand      string
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewShortener constructs a shortener from configuration.
func NewShortener(cfg *config.Config, logger *slog.Logger) *Shortener {
	return &Shortener{
		token:      cfg.Shortener.BitlyToken,
		apiBase:    cfg.Shortener.BitlyBaseURL,
		shortBase:  cfg.Shortener.ShortBaseURL,
		brand:      cfg.Shortener.Brand,
		client:     &http.Client{Timeout: time.Duration(cfg.Shortener.RequestTimeout) * time.Second},
		logger:     logging.NewComponentLogger(logger, "shortener"),
		retryDelay: 500 * time.Millisecond,
	}
}

// SetRetryDelay overrides the initial backoff between Bitly attempts.
func (s *Shortener) SetRetryDelay(d time.Duration) {
	s.retryDelay = d
}

// LocalCode returns the stable 8 hex character code for longURL.
func LocalCode(longURL string) string {
	sum := md5.Sum([]byte(longURL))
	return hex.EncodeToString(sum[:])[:8]
}

// Shorten returns a short URL for longURL. It never fails: without a token,
// or when Bitly is unavailable, it returns the local fallback, which is the
// same for the same input.
func (s *Shortener) Shorten(ctx context.Context, longURL, title string) ShortLink {
	code := LocalCode(longURL)
	fallback := ShortLink{URL: s.shortBase + "/" + code, Code: code, Fallback: true}
	if strings.TrimSpace(s.token) == "" {
		return fallback
	}

	link, err := s.bitly(ctx, longURL, title)
	if err != nil {
		logging.WarnWithContext(s.logger, "bitly shorten failed; using local short link", "shorten_fallback",
			logging.Error(err),
			logging.String(logging.FieldImpact, "short link served by local redirect"),
			logging.String(logging.FieldErrorHint, "verify shortener.bitly_token"),
		)
		return fallback
	}
	return ShortLink{URL: link, Code: code}
}

type bitlyRequest struct {
	LongURL string `json:"long_url"`
	Title   string `json:"title,omitempty"`
}

type bitlyResponse struct {
	Link string `json:"link"`
}

func (s *Shortener) bitly(ctx context.Context, longURL, title string) (string, error) {
	body, err := json.Marshal(bitlyRequest{LongURL: longURL, Title: s.linkTitle(title)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var link string
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/v4/shorten", bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+s.token)

			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("bitly status %d", resp.StatusCode)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				return retry.Unrecoverable(fmt.Errorf("bitly status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
			}

			var decoded bitlyResponse
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode bitly response: %w", err))
			}
			if decoded.Link == "" {
				return retry.Unrecoverable(fmt.Errorf("bitly response missing link"))
			}
			link = decoded.Link
			return nil
		},
		retry.Attempts(shortenAttempts),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(s.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying bitly shorten", logging.Int("attempt", int(n)+1), logging.Error(err))
		}),
	)
	if err != nil {
		return "", err
	}
	return link, nil
}

func (s *Shortener) linkTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return s.brand
	}
	if utf8.RuneCountInString(title) > titleRuneLimit {
		title = string([]rune(title)[:titleRuneLimit])
	}
	return s.brand + " - " + title
}
