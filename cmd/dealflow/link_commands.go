package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dealflow/internal/affiliate"
	"dealflow/internal/config"
	"dealflow/internal/daemon"
	"dealflow/internal/store"
)

func newLinkCommand(ctx *commandContext) *cobra.Command {
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Generate affiliate links and record their activity",
	}
	linkCmd.AddCommand(newLinkGenerateCommand(ctx))
	linkCmd.AddCommand(newLinkShortenCommand(ctx))
	linkCmd.AddCommand(newLinkShowCommand(ctx))
	linkCmd.AddCommand(newLinkClickCommand(ctx))
	linkCmd.AddCommand(newLinkConvertCommand(ctx))
	return linkCmd
}

func newLinkGenerateCommand(ctx *commandContext) *cobra.Command {
	var meta affiliate.Metadata

	cmd := &cobra.Command{
		Use:   "generate <url>",
		Short: "Build and record an affiliate link for a store URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				result, err := affiliate.NewGenerator(cfg, st, logger).Generate(cmd.Context(), args[0], meta)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if !result.Generated {
					fmt.Fprintf(out, "No affiliate link generated (network %s); use %s\n", result.Network, result.URL)
					return nil
				}
				fmt.Fprintf(out, "%s\n", result.URL)
				fmt.Fprintf(out, "Link %s (%s), commission rate %s, estimated commission %s\n",
					result.Link.ID, result.Network,
					strconv.FormatFloat(result.Link.CommissionRate, 'f', -1, 64),
					formatMoney(result.Link.EstimatedCommission))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&meta.Title, "title", "", "Product title recorded on the link")
	flags.Float64Var(&meta.Price, "price", 0, "Product price used for the commission estimate")
	flags.Int64Var(&meta.ProductID, "product", 0, "Product id the link belongs to")
	flags.StringVar(&meta.Platform, "platform", "", "Platform the link is attributed to")
	return cmd
}

func newLinkShortenCommand(ctx *commandContext) *cobra.Command {
	var (
		title  string
		linkID string
	)

	cmd := &cobra.Command{
		Use:   "shorten [url]",
		Short: "Shorten a URL through Bitly, or locally when Bitly is unavailable",
		Long: `Shorten a URL through Bitly, or locally when Bitly is unavailable.

With --link the short code is saved on that recorded link so /go/<code>
redirects resolve it. The URL then defaults to the link's affiliate URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if linkID == "" {
				if len(args) == 0 {
					return fmt.Errorf("a url or --link is required")
				}
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				logger, err := ctx.logger()
				if err != nil {
					return err
				}
				return printShortLink(cmd, ctx, affiliate.NewShortener(cfg, logger).Shorten(cmd.Context(), args[0], title))
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				link, err := st.GetLink(cmd.Context(), linkID)
				if err != nil {
					return fmt.Errorf("link %s: %w", linkID, err)
				}
				longURL := link.AffiliateURL
				if len(args) == 1 {
					longURL = args[0]
				}
				label := title
				if label == "" {
					label = link.ProductTitle
				}
				short := affiliate.NewShortener(cfg, logger).Shorten(cmd.Context(), longURL, label)
				if err := st.SetShortURL(cmd.Context(), link.ID, short.Code, short.URL); err != nil {
					return err
				}
				return printShortLink(cmd, ctx, short)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title attached to the Bitly link")
	cmd.Flags().StringVar(&linkID, "link", "", "Recorded link id that receives the short code")
	return cmd
}

func printShortLink(cmd *cobra.Command, ctx *commandContext, short affiliate.ShortLink) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, short)
	}
	fmt.Fprintln(cmd.OutOrStdout(), short.URL)
	if short.Fallback {
		fmt.Fprintln(cmd.ErrOrStderr(), "Bitly unavailable; local short code used")
	}
	return nil
}

func newLinkShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <link-id>",
		Short: "Show a link's counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				link, err := st.GetLink(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("link %s: %w", args[0], err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, link)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Affiliate URL: %s\n", link.AffiliateURL)
				fmt.Fprintln(out, renderLinkTable([]*store.AffiliateLink{link}))
				return nil
			})
		},
	}
}

func newLinkClickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "click <link-id>",
		Short: "Record one click",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(svc daemon.Services) error {
				if err := svc.Analytics.RecordClick(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Click recorded for %s\n", args[0])
				return nil
			})
		},
	}
}

func newLinkConvertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <link-id> <sale-amount>",
		Short: "Record a sale and credit its commission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid sale amount %q", args[1])
			}
			return ctx.withServices(func(svc daemon.Services) error {
				earned, err := svc.Analytics.RecordConversion(cmd.Context(), args[0], amount)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, daemon.ConversionResponse{LinkID: args[0], Earned: earned})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Conversion recorded for %s; earned %s\n", args[0], formatMoney(earned))
				return nil
			})
		},
	}
}
