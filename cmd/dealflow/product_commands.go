package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dealflow/internal/catalog"
	"dealflow/internal/config"
	"dealflow/internal/daemon"
	"dealflow/internal/store"
)

const defaultListLimit = 50

func newProductCommand(ctx *commandContext) *cobra.Command {
	productCmd := &cobra.Command{
		Use:   "product",
		Short: "Ingest and maintain catalog products",
	}
	productCmd.AddCommand(newProductAddCommand(ctx))
	productCmd.AddCommand(newProductListCommand(ctx))
	productCmd.AddCommand(newProductShowCommand(ctx))
	productCmd.AddCommand(newProductUpdateCommand(ctx))
	productCmd.AddCommand(newProductWithdrawCommand(ctx))
	return productCmd
}

func newProductAddCommand(ctx *commandContext) *cobra.Command {
	var (
		input    catalog.NewProduct
		fromFile string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Ingest a product and schedule its deliveries",
		Example: "  dealflow product add --title \"Noise Buds\" --price 1799 --original-price 2499 \\\n" +
			"    --url amazon=https://www.amazon.in/dp/B0ABCDEFGH",
		RunE: func(cmd *cobra.Command, args []string) error {
			np := input
			if fromFile != "" {
				loaded, err := readNewProduct(cmd, fromFile)
				if err != nil {
					return err
				}
				np = loaded
			}
			return ctx.withServices(func(svc daemon.Services) error {
				ingested, err := svc.Catalog.Ingest(cmd.Context(), np)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, ingested)
				}
				out := cmd.OutOrStdout()
				p := ingested.Product
				fmt.Fprintf(out, "Product %d ingested: %s (%s%% off)\n", p.ID, p.Title, strconv.FormatFloat(p.DiscountPercent, 'f', -1, 64))
				fmt.Fprintf(out, "Scheduled %d deliveries\n", ingested.Enqueued)
				fmt.Fprintln(out, renderLinkTable(ingested.Links))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&input.Title, "title", "", "Product title")
	flags.Float64Var(&input.Price, "price", 0, "Deal price")
	flags.Float64Var(&input.OriginalPrice, "original-price", 0, "Price before the discount")
	flags.Float64Var(&input.DiscountPercent, "discount", 0, "Discount percent (computed from prices when omitted)")
	flags.StringVar(&input.Category, "category", "", "Product category")
	flags.StringVar(&input.ImageURL, "image-url", "", "Product image URL")
	flags.StringArrayVar(&input.Features, "feature", nil, "Feature bullet (repeatable)")
	flags.StringToStringVar(&input.SourceURLs, "url", nil, "Store URL as name=url (repeatable)")
	flags.StringVarP(&fromFile, "file", "f", "", "Read the product as JSON from a file, or - for stdin")
	return cmd
}

func readNewProduct(cmd *cobra.Command, path string) (catalog.NewProduct, error) {
	var np catalog.NewProduct
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		file, err := os.Open(path)
		if err != nil {
			return np, fmt.Errorf("open product file: %w", err)
		}
		defer file.Close()
		r = file
	}
	if err := json.NewDecoder(r).Decode(&np); err != nil {
		return np, fmt.Errorf("decode product file: %w", err)
	}
	return np, nil
}

func newProductListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently ingested products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				products, err := st.ListProducts(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, products)
				}
				out := cmd.OutOrStdout()
				if len(products) == 0 {
					fmt.Fprintln(out, "No products")
					return nil
				}
				rows := make([][]string, 0, len(products))
				for _, p := range products {
					rows = append(rows, []string{
						strconv.FormatInt(p.ID, 10),
						p.Title,
						formatMoney(p.Price),
						strconv.FormatFloat(p.DiscountPercent, 'f', -1, 64) + "%",
						string(p.Status),
						postedSummary(p),
						p.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Price", "Discount", "Status", "Posted", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "Maximum products to show")
	return cmd
}

func postedSummary(p *store.Product) string {
	var posted []string
	for _, name := range config.Platforms {
		if p.IsPosted(name) {
			posted = append(posted, name)
		}
	}
	if len(posted) == 0 {
		return "-"
	}
	return strings.Join(posted, ",")
}

// ProductDetail is the JSON shape of product show.
type ProductDetail struct {
	Product    *store.Product         `json:"product"`
	Links      []*store.AffiliateLink `json:"links"`
	Deliveries []*store.Delivery      `json:"deliveries"`
}

func newProductShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a product with its links and deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				var detail ProductDetail
				if detail.Product, err = st.GetProduct(cmd.Context(), id); err != nil {
					return fmt.Errorf("product %d: %w", id, err)
				}
				if detail.Links, err = st.LinksForProduct(cmd.Context(), id); err != nil {
					return err
				}
				if detail.Deliveries, err = st.ListDeliveries(cmd.Context(), store.DeliveryFilter{ProductID: id}); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, detail)
				}

				out := cmd.OutOrStdout()
				p := detail.Product
				fmt.Fprintf(out, "Product %d: %s\n", p.ID, p.Title)
				fmt.Fprintf(out, "Price: %s (was %s, %s%% off)\n", formatMoney(p.Price), formatMoney(p.OriginalPrice), strconv.FormatFloat(p.DiscountPercent, 'f', -1, 64))
				if p.Category != "" {
					fmt.Fprintf(out, "Category: %s\n", p.Category)
				}
				fmt.Fprintf(out, "Status: %s\n", p.Status)
				fmt.Fprintf(out, "Posted: %s\n", postedSummary(p))
				if len(detail.Links) > 0 {
					fmt.Fprintln(out, renderLinkTable(detail.Links))
				}
				if len(detail.Deliveries) > 0 {
					fmt.Fprintln(out, renderDeliveryTable(detail.Deliveries))
				}
				return nil
			})
		},
	}
}

func newProductUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		title, category, imageURL, features string
		price, originalPrice, discount      float64
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change product fields; changed prices recompute the discount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			var patch store.ProductPatch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("price") {
				patch.Price = &price
			}
			if flags.Changed("original-price") {
				patch.OriginalPrice = &originalPrice
			}
			if flags.Changed("discount") {
				patch.DiscountPercent = &discount
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("image-url") {
				patch.ImageURL = &imageURL
			}
			if flags.Changed("features") {
				patch.Features = &features
			}
			return ctx.withServices(func(svc daemon.Services) error {
				product, err := svc.Catalog.Update(cmd.Context(), id, patch)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, product)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Product %d updated: %s at %s (%s%% off)\n",
					product.ID, product.Title, formatMoney(product.Price),
					strconv.FormatFloat(product.DiscountPercent, 'f', -1, 64))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "Product title")
	flags.Float64Var(&price, "price", 0, "Deal price")
	flags.Float64Var(&originalPrice, "original-price", 0, "Price before the discount")
	flags.Float64Var(&discount, "discount", 0, "Discount percent")
	flags.StringVar(&category, "category", "", "Product category")
	flags.StringVar(&imageURL, "image-url", "", "Product image URL")
	flags.StringVar(&features, "features", "", "Feature text")
	return cmd
}

func newProductWithdrawCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <id>",
		Short: "Withdraw a product and cancel its outstanding deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc daemon.Services) error {
				cancelled, err := svc.Catalog.Withdraw(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, daemon.WithdrawResponse{ProductID: id, Cancelled: cancelled})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Product %d withdrawn; %d deliveries cancelled\n", id, cancelled)
				return nil
			})
		},
	}
}
