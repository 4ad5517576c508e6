package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"dealflow/internal/daemon"
	"dealflow/internal/daemonctl"
	"dealflow/internal/scheduler"
)

func newTickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Dispatch every delivery that is due now",
		Long: "Runs one scheduler tick. Without a daemon the tick runs in this process " +
			"under the daemon lock; with a daemon running it is requested over the API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var (
				result scheduler.TickResult
				where  string
			)
			lock := flock.New(cfg.LockPath())
			acquired, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire daemon lock: %w", err)
			}
			if acquired {
				defer func() { _ = lock.Unlock() }()
				where = "local"
				err = ctx.withServices(func(svc daemon.Services) error {
					if _, err := svc.Scheduler.Recover(cmd.Context()); err != nil {
						return err
					}
					result, err = svc.Scheduler.Tick(cmd.Context())
					return err
				})
			} else {
				where = "daemon"
				result, err = daemonctl.NewClient(cfg).Tick(cmd.Context())
			}
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Tick %s (%s): due %d, completed %d, failed %d, errored %d, retried %d, skipped %d\n",
				result.TickID, where, result.Due, result.Completed, result.Failed,
				result.Errored, result.Retried, result.Skipped,
			)
			return nil
		},
	}
}
