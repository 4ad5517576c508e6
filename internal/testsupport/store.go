package testsupport

import (
	"context"
	"testing"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SampleProduct returns the deal used throughout the test suite.
func SampleProduct() store.Product {
	return store.Product{
		Title:           "Samsung Galaxy S24 Ultra 5G (256GB)",
		Price:           89999,
		OriginalPrice:   124999,
		DiscountPercent: 28,
		Category:        "Electronics",
		ImageURL:        "https://example.com/s24.jpg",
		SourceURLs:      map[string]string{"amazon": "https://www.amazon.in/dp/B0CMDWTJ5X"},
		AffiliateURLs:   map[string]string{"amazon": "https://www.amazon.in/dp/B0CMDWTJ5X?tag=smartsasta07-21"},
	}
}

// MustCreateProduct inserts p with the given creation time.
func MustCreateProduct(t testing.TB, st *store.Store, p store.Product, created time.Time) *store.Product {
	t.Helper()

	p.CreatedAt = created
	product, err := st.CreateProduct(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return product
}

// MustInsertDelivery inserts one pending delivery and returns it.
func MustInsertDelivery(t testing.TB, st *store.Store, productID int64, platform string, scheduled time.Time) *store.Delivery {
	t.Helper()

	ctx := context.Background()
	if _, err := st.InsertDeliveries(ctx, []store.Delivery{{
		ProductID:     productID,
		Platform:      platform,
		ScheduledTime: scheduled,
		Template:      "test",
	}}); err != nil {
		t.Fatalf("InsertDeliveries: %v", err)
	}
	list, err := st.ListDeliveries(ctx, store.DeliveryFilter{ProductID: productID, Platform: platform})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	for _, d := range list {
		if d.ScheduledTime.Equal(scheduled.UTC()) {
			return d
		}
	}
	t.Fatalf("inserted delivery not found for product %d on %s", productID, platform)
	return nil
}
