package catalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dealflow/internal/catalog"
	"dealflow/internal/logging"
	"dealflow/internal/scheduler"
	"dealflow/internal/store"
	"dealflow/internal/testsupport"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*catalog.Service, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(start)
	sched := scheduler.New(cfg, st, nil, logging.NewNop(), scheduler.WithClock(clock.Now))
	return catalog.NewService(cfg, st, sched, logging.NewNop()), st
}

func sampleSubmission() catalog.NewProduct {
	return catalog.NewProduct{
		Title:         "  Samsung Galaxy S24 Ultra 5G (256GB) ",
		Price:         89999,
		OriginalPrice: 124999,
		Category:      "Electronics",
		ImageURL:      "https://example.com/s24.jpg",
		Features:      []string{"256GB Storage", " ", "200MP Camera"},
		SourceURLs: map[string]string{
			"amazon":   "https://www.amazon.in/dp/B0CMDWTJ5X",
			"flipkart": "https://www.flipkart.com/samsung-galaxy-s24/p/itm123?pid=ABC",
			"myntra":   "https://www.myntra.com/phones/123",
		},
	}
}

func TestIngestStoresLinksAndDeliveries(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	out, err := svc.Ingest(ctx, sampleSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	p := out.Product
	if p.Title != "Samsung Galaxy S24 Ultra 5G (256GB)" {
		t.Fatalf("title not trimmed: %q", p.Title)
	}
	if p.DiscountPercent != 28 {
		t.Fatalf("expected computed discount 28, got %v", p.DiscountPercent)
	}
	if p.Features != "256GB Storage\n• 200MP Camera" {
		t.Fatalf("unexpected features %q", p.Features)
	}
	if !strings.Contains(p.AffiliateURLs["amazon"], "tag=smartsasta07-21") {
		t.Fatalf("amazon url not generated: %s", p.AffiliateURLs["amazon"])
	}
	if !strings.Contains(p.AffiliateURLs["flipkart"], "affid=flipkart-test") {
		t.Fatalf("flipkart url not generated: %s", p.AffiliateURLs["flipkart"])
	}
	if !strings.Contains(p.AffiliateURLs["myntra"], "utm_source=sastasmart") {
		t.Fatalf("tracking fallback missing: %s", p.AffiliateURLs["myntra"])
	}
	if out.Enqueued != 13 {
		t.Fatalf("expected 13 deliveries, got %d", out.Enqueued)
	}

	links, err := st.LinksForProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("LinksForProduct: %v", err)
	}
	if len(links) != 2 || len(out.Links) != 2 {
		t.Fatalf("expected 2 recorded links, got %d (%d returned)", len(links), len(out.Links))
	}
	for _, link := range links {
		if link.ShortCode == "" || !strings.HasSuffix(link.ShortURL, "/"+link.ShortCode) {
			t.Fatalf("link %s missing short url: %+v", link.ID, link)
		}
		resolved, err := st.LinkByShortCode(ctx, link.ShortCode)
		if err != nil || resolved.ID != link.ID {
			t.Fatalf("short code %s did not resolve: %v", link.ShortCode, err)
		}
	}

	deliveries, err := st.ListDeliveries(ctx, store.DeliveryFilter{ProductID: p.ID})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(deliveries) != 13 {
		t.Fatalf("expected 13 queued records, got %d", len(deliveries))
	}
	for _, d := range deliveries {
		if !d.ScheduledTime.After(start) {
			t.Fatalf("delivery %d scheduled at %s, not after ingest", d.ID, d.ScheduledTime)
		}
	}
}

func TestIngestRejectsInvalidProducts(t *testing.T) {
	svc, st := newService(t)
	cases := map[string]func(*catalog.NewProduct){
		"empty title":    func(p *catalog.NewProduct) { p.Title = "" },
		"zero price":     func(p *catalog.NewProduct) { p.Price = 0 },
		"original below": func(p *catalog.NewProduct) { p.OriginalPrice = 100 },
		"no urls":        func(p *catalog.NewProduct) { p.SourceURLs = map[string]string{} },
		"bad url":        func(p *catalog.NewProduct) { p.SourceURLs = map[string]string{"amazon": "not a url"} },
		"bad image":      func(p *catalog.NewProduct) { p.ImageURL = "s24.jpg" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			np := sampleSubmission()
			mutate(&np)
			if _, err := svc.Ingest(context.Background(), np); !errors.Is(err, catalog.ErrInvalidProduct) {
				t.Fatalf("expected ErrInvalidProduct, got %v", err)
			}
		})
	}
	count, err := st.CountProducts(context.Background())
	if err != nil {
		t.Fatalf("CountProducts: %v", err)
	}
	if count != 0 {
		t.Fatalf("invalid products were stored: %d", count)
	}
}

func TestIngestDropsShallowDiscounts(t *testing.T) {
	svc, st := newService(t)
	np := sampleSubmission()
	np.Price = 950
	np.OriginalPrice = 1000

	if _, err := svc.Ingest(context.Background(), np); !errors.Is(err, catalog.ErrBelowThreshold) {
		t.Fatalf("expected ErrBelowThreshold, got %v", err)
	}
	count, err := st.CountProducts(context.Background())
	if err != nil {
		t.Fatalf("CountProducts: %v", err)
	}
	if count != 0 {
		t.Fatalf("below-threshold product stored")
	}
}

func TestIngestKeepsExplicitDiscount(t *testing.T) {
	svc, _ := newService(t)
	np := sampleSubmission()
	np.DiscountPercent = 30

	out, err := svc.Ingest(context.Background(), np)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if out.Product.DiscountPercent != 30 {
		t.Fatalf("expected explicit discount kept, got %v", out.Product.DiscountPercent)
	}
}

func TestWithdrawCancelsOutstandingDeliveries(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	out, err := svc.Ingest(ctx, sampleSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	cancelled, err := svc.Withdraw(ctx, out.Product.ID)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if cancelled != 13 {
		t.Fatalf("expected 13 cancelled, got %d", cancelled)
	}
	product, err := st.GetProduct(ctx, out.Product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Status != store.ProductWithdrawn {
		t.Fatalf("expected withdrawn, got %s", product.Status)
	}
	if _, err := svc.Withdraw(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRecomputesDiscount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	out, err := svc.Ingest(ctx, sampleSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	price := 62499.5
	updated, err := svc.Update(ctx, out.Product.ID, store.ProductPatch{Price: &price})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Price != price || updated.DiscountPercent != 50 {
		t.Fatalf("unexpected update: price=%v discount=%v", updated.Price, updated.DiscountPercent)
	}

	tooHigh := 200000.0
	if _, err := svc.Update(ctx, out.Product.ID, store.ProductPatch{Price: &tooHigh}); !errors.Is(err, catalog.ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
}

func TestDiscount(t *testing.T) {
	if got := catalog.Discount(89999, 124999); got != 28 {
		t.Fatalf("expected 28, got %v", got)
	}
	if got := catalog.Discount(100, 100); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := catalog.Discount(100, 0); got != 0 {
		t.Fatalf("expected 0 for zero original, got %v", got)
	}
}
