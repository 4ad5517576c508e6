package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"dealflow/internal/logs"
)

const daemonLogFile = "dealflow.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		match  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, daemonLogFile)
			out := cmd.OutOrStdout()

			tail, offset, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				if logs.Matches(line, match) {
					fmt.Fprintln(out, line)
				}
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, logs.FollowOptions{Offset: offset, Match: match}, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().StringVar(&match, "grep", "", "Only print lines containing this text")
	return cmd
}
