package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"dealflow/internal/config"
	"dealflow/internal/testsupport"
)

var credentialEnv = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "DISCORD_WEBHOOK_URL",
	"INSTAGRAM_ACCESS_TOKEN", "INSTAGRAM_USER_ID", "BITLY_TOKEN", "DEALFLOW_API_TOKEN",
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	for _, key := range credentialEnv {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath := filepath.Join(base, "dealflow.toml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath}, args...))
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("dealflow %v: %v\noutput:\n%s", args, err, out)
	}
	return out
}

func (e *cliTestEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out := e.mustRun(t, append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %v output: %v\n%s", args, err, out)
	}
}

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}
