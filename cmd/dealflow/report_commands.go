package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dealflow/internal/analytics"
	"dealflow/internal/config"
	"dealflow/internal/daemon"
	"dealflow/internal/store"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var days, top int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize link performance by platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(svc daemon.Services) error {
				report, err := svc.Analytics.Rollup(cmd.Context(), days, top)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Report window in days (configured default when 0)")
	cmd.Flags().IntVar(&top, "top", 0, "Number of top links to list (configured default when 0)")
	return cmd
}

func printReport(out io.Writer, report analytics.Report) {
	fmt.Fprintf(out, "Performance over the last %d days (since %s)\n", report.WindowDays, report.Since.Local().Format(time.DateOnly))
	rows := make([][]string, 0, len(report.Platforms))
	for _, p := range report.Platforms {
		rows = append(rows, []string{
			p.Platform,
			strconv.Itoa(p.Links),
			strconv.FormatInt(p.Clicks, 10),
			strconv.FormatInt(p.Conversions, 10),
			strconv.FormatFloat(p.ConversionRate, 'f', 2, 64) + "%",
			formatMoney(p.Earnings),
		})
	}
	fmt.Fprintln(out, tableSpec{
		Headers: []string{"Platform", "Links", "Clicks", "Conversions", "Conv. Rate", "Earnings"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		Footer: []string{
			"total",
			strconv.Itoa(report.Totals.Links),
			strconv.FormatInt(report.Totals.Clicks, 10),
			strconv.FormatInt(report.Totals.Conversions, 10),
			strconv.FormatFloat(analytics.ConversionRate(report.Totals.Clicks, report.Totals.Conversions), 'f', 2, 64) + "%",
			formatMoney(report.Totals.Earnings),
		},
	}.render())
	if len(report.TopLinks) > 0 {
		fmt.Fprintln(out, "Top links")
		fmt.Fprintln(out, renderLinkTable(report.TopLinks))
	}
}

func newDashboardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the operator overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(svc daemon.Services) error {
				dash, err := svc.Analytics.Dashboard(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, dash)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Products: %d\n", dash.TotalProducts)

				platforms := make([]string, 0, len(dash.Posted))
				for name := range dash.Posted {
					platforms = append(platforms, name)
				}
				sort.Strings(platforms)
				for _, name := range platforms {
					fmt.Fprintf(out, "Posted to %s: %d\n", name, dash.Posted[name])
				}

				queueRows := make([][]string, 0, len(store.AllStatuses()))
				for _, status := range store.AllStatuses() {
					queueRows = append(queueRows, []string{string(status), strconv.Itoa(dash.Queue[status])})
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, queueRows, []columnAlignment{alignLeft, alignRight}))
				printReport(out, dash.Report)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Daily activity snapshots",
	}
	statsCmd.AddCommand(newStatsSnapshotCommand(ctx))
	statsCmd.AddCommand(newStatsListCommand(ctx))
	return statsCmd
}

func newStatsSnapshotCommand(ctx *commandContext) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write the daily stats row for a UTC day (today by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC()
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
				}
				day = parsed
			}
			return ctx.withServices(func(svc daemon.Services) error {
				stats, err := svc.Analytics.Snapshot(cmd.Context(), day)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatsTable([]store.DailyStats{stats}))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC day as YYYY-MM-DD")
	return cmd
}

func newStatsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent daily snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				stats, err := st.ListDailyStats(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No snapshots")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatsTable(stats))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "Maximum days to show")
	return cmd
}

func renderStatsTable(stats []store.DailyStats) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Date,
			strconv.Itoa(s.ProductsProcessed),
			strconv.Itoa(s.PostsCreated),
			strconv.FormatInt(s.TotalClicks, 10),
			formatMoney(s.TotalEarnings),
		})
	}
	return renderTable(
		[]string{"Date", "Products", "Posts", "Clicks", "Earnings"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}
