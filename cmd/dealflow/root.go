package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &logLevelFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "dealflow",
		Short:         "Affiliate deal posting scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(newDaemonCommand(ctx))
	rootCmd.AddCommand(newTickCommand(ctx))
	rootCmd.AddCommand(newProductCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newLinkCommand(ctx))
	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newDashboardCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
