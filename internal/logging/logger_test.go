package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

func newFileLogger(t *testing.T, level, format string) (func() string, *logging.Options) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	opts := &logging.Options{Level: level, Format: format, OutputPaths: []string{logPath}}
	read := func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
	return read, opts
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "dealflow.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	read, opts := newFileLogger(t, "info", "console")
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := read(); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerPromotesComponent(t *testing.T) {
	read, opts := newFileLogger(t, "info", "console")
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "scheduler").Info("tick complete", logging.Int("due", 3))

	content := read()
	if !strings.Contains(content, "INFO scheduler: tick complete due=3") {
		t.Fatalf("unexpected console line: %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no colour codes in file output, got %q", content)
	}
}

func TestJSONLoggerCarriesContextFields(t *testing.T) {
	read, opts := newFileLogger(t, "info", "json")
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithTickID(context.Background(), "tick-1")
	logging.WithContext(ctx, logger).Info("dispatching", logging.String(logging.FieldPlatform, "telegram"))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["tick_id"] != "tick-1" {
		t.Fatalf("expected tick_id field, got %v", payload)
	}
	if payload["platform"] != "telegram" {
		t.Fatalf("expected platform field, got %v", payload)
	}
	if payload["level"] != "info" {
		t.Fatalf("expected lower-case level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	read, opts := newFileLogger(t, "info", "console")
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "adapter missing", "adapter_missing", logging.String(logging.FieldImpact, "records will error"))

	content := read()
	for _, want := range []string{"event_type=adapter_missing", "error_hint=", `impact="records will error"`} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
