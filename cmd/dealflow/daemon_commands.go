package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dealflow/internal/daemonctl"
	"dealflow/internal/daemonrun"
)

const stopGracePeriod = 10 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var development bool

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler daemon in the foreground",
		Long: "Runs the posting queue loop, the analytics jobs, and the HTTP API until " +
			"interrupted. Only one daemon may run per data directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}
	daemonCmd.Flags().BoolVar(&development, "development", false, "Add source locations to log output")

	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	return daemonCmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon process and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !running {
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"running": false})
				}
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			status, err := daemonctl.NewClient(cfg).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon is running (pid %d) but the API is unreachable: %w", pid, err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			fmt.Fprintf(out, "Daemon running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)
			fmt.Fprintf(out, "Platforms: %v\n", status.Platforms)

			keys := make([]string, 0, len(status.Queue))
			for key := range status.Queue {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				rows = append(rows, []string{key, strconv.Itoa(status.Queue[key])})
			}
			fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pid, killed, err := daemonctl.Terminate(cfg, stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if killed {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit within %s and was killed\n", pid, stopGracePeriod)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", pid)
			return nil
		},
	}
}
