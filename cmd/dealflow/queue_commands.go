package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dealflow/internal/config"
	"dealflow/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the delivery queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses  []string
		platform  string
		productID int64
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.DeliveryFilter{
				ProductID: productID,
				Platform:  strings.ToLower(strings.TrimSpace(platform)),
				Limit:     limit,
			}
			for _, raw := range statuses {
				status, ok := store.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				deliveries, err := st.ListDeliveries(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, deliveries)
				}
				out := cmd.OutOrStdout()
				if len(deliveries) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderDeliveryTable(deliveries))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	flags.StringVarP(&platform, "platform", "p", "", "Filter by platform")
	flags.Int64Var(&productID, "product", 0, "Filter by product id")
	flags.IntVarP(&limit, "limit", "n", defaultListLimit, "Maximum deliveries to show")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count deliveries by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				counts, err := st.DeliveryStats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, counts)
				}
				rows := make([][]string, 0, len(store.AllStatuses()))
				for _, status := range store.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(counts[status])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
