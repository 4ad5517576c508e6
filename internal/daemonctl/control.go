// Package daemonctl talks to a running dealflow daemon: its HTTP API for
// requests and its pid and lock files for process control.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"dealflow/internal/config"
	"dealflow/internal/daemon"
	"dealflow/internal/scheduler"
)

// ErrDaemonNotRunning indicates no daemon holds the lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Client calls the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon configured in cfg.
func NewClient(cfg *config.Config) *Client {
	bind := strings.TrimSpace(cfg.API.Bind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return NewClientURL("http://"+bind, cfg.API.Token)
}

// NewClientURL builds a client for an explicit base URL.
func NewClientURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var out daemon.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Tick asks the daemon to run one scheduler tick now.
func (c *Client) Tick(ctx context.Context) (scheduler.TickResult, error) {
	var out scheduler.TickResult
	err := c.do(ctx, http.MethodPost, "/api/tick", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon %s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ProcessInfo reports whether a daemon holds the lock and the pid recorded
// in the pid file, if any.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	running, err := LockHeld(cfg.LockPath())
	if err != nil {
		return false, 0, err
	}
	pid, err := readPID(cfg.PIDPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return running, 0, err
	}
	return running, pid, nil
}

// LockHeld probes the daemon lock without keeping it.
func LockHeld(lockPath string) (bool, error) {
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := flock.New(lockPath)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}

// Terminate sends SIGTERM to the daemon and waits up to grace for the lock
// to be released, then sends SIGKILL. It returns the pid and whether a kill
// was needed.
func Terminate(cfg *config.Config, grace time.Duration) (int, bool, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return 0, false, err
	}
	if !running {
		return 0, false, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return 0, false, fmt.Errorf("unable to determine daemon pid (pid file: %s)", cfg.PIDPath())
	}
	if pid == os.Getpid() {
		return 0, false, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return 0, false, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		held, err := LockHeld(cfg.LockPath())
		if err == nil && !held {
			return pid, false, nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err := proc.Kill(); err != nil {
		return pid, false, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pid, true, fmt.Errorf("remove pid file %q: %w", cfg.PIDPath(), err)
	}
	return pid, true, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse pid file %q: %w", path, err)
	}
	return pid, nil
}
