package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dealflow/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dealflow.log")
	writeLog(t, path, "a\nb\nc\n")

	lines, offset, err := logs.Tail(path, 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}
}

func TestTailShortFileAndMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dealflow.log")
	lines, offset, err := logs.Tail(path, 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("missing file: lines=%v offset=%d err=%v", lines, offset, err)
	}

	writeLog(t, path, "only\npartial")
	lines, offset, err = logs.Tail(path, 5)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("partial trailing line must wait: %#v", lines)
	}
	if offset != 5 {
		t.Fatalf("expected offset after complete line, got %d", offset)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitForLines(t *testing.T, c *collector, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, have %#v", n, c.snapshot())
	return nil
}

func TestFollowEmitsAppendedMatchingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dealflow.log")
	writeLog(t, path, "old\n")
	_, offset, err := logs.Tail(path, 1)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got collector
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, logs.FollowOptions{Offset: offset, Poll: 10 * time.Millisecond, Match: "tick"}, got.add)
	}()

	appendLog(t, path, "tick one\nnoise\ntick two\n")
	lines := waitForLines(t, &got, 2)
	if lines[0] != "tick one" || lines[1] != "tick two" {
		t.Fatalf("unexpected lines: %#v", lines)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("follow returned %v", err)
	}
}

func TestFollowRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dealflow.log")
	writeLog(t, path, "first line that is long\n")
	_, offset, _ := logs.Tail(path, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got collector
	go func() {
		_ = logs.Follow(ctx, path, logs.FollowOptions{Offset: offset, Poll: 10 * time.Millisecond}, got.add)
	}()

	writeLog(t, path, "rotated\n")
	lines := waitForLines(t, &got, 1)
	if lines[0] != "rotated" {
		t.Fatalf("expected rotated line, got %#v", lines)
	}
}

func TestMatches(t *testing.T) {
	if !logs.Matches("anything", "") {
		t.Fatal("empty match keeps every line")
	}
	if logs.Matches("delivery completed", "error") {
		t.Fatal("unexpected match")
	}
}
