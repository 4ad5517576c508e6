package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealflow/internal/config"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func encodeURLMap(values map[string]string) (string, error) {
	if len(values) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode url map: %w", err)
	}
	return string(data), nil
}

func decodeURLMap(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// postedColumn maps a platform to its posted flag column. Only known
// platforms have a column, which keeps the name out of user input.
func postedColumn(platform string) (string, bool) {
	switch platform {
	case config.PlatformTelegram:
		return "posted_telegram", true
	case config.PlatformDiscord:
		return "posted_discord", true
	case config.PlatformInstagram:
		return "posted_instagram", true
	default:
		return "", false
	}
}
