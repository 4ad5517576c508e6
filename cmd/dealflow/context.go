package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dealflow/internal/config"
	"dealflow/internal/daemon"
	"dealflow/internal/daemonrun"
	"dealflow/internal/logging"
	"dealflow/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	jsonFlag     *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		jsonFlag:     jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger writes to stderr so command output on stdout stays parseable.
// One-shot commands default to warnings only.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := c.logLevel()
	if level == "" {
		level = "warn"
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

// withServices assembles the same services the daemon runs, against the
// local database.
func (c *commandContext) withServices(fn func(daemon.Services) error) error {
	logger, err := c.logger()
	if err != nil {
		return err
	}
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		svc, err := daemonrun.Build(cfg, st, logger)
		if err != nil {
			return err
		}
		return fn(svc)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatMoney(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
