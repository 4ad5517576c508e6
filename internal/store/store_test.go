package store_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/store"
	"dealflow/internal/testsupport"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)
	if product.ID == 0 {
		t.Fatal("expected product ID to be assigned")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("GetProduct after reopen: %v", err)
	}
	if fetched.Title != product.Title || fetched.SourceURLs["amazon"] == "" {
		t.Fatalf("unexpected product after reopen: %#v", fetched)
	}
	if fetched.Status != store.ProductActive {
		t.Fatalf("expected active product, got %q", fetched.Status)
	}
}

// execRaw creates the database through the store, then runs stmt on a plain
// handle once the store is closed.
func execRaw(t *testing.T, cfg *config.Config, stmt string) {
	t.Helper()
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

func TestOpenRejectsForeignSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	execRaw(t, cfg, "UPDATE schema_version SET version = 99")

	_, err := store.Open(cfg)
	if !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "version 99") || !strings.Contains(err.Error(), cfg.DatabasePath()) {
		t.Fatalf("error should name the version and file: %v", err)
	}
}

func TestOpenRejectsDatabaseMissingQueueTables(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	execRaw(t, cfg, "DROP TABLE delivery_queue")

	_, err := store.Open(cfg)
	if !errors.Is(err, store.ErrSchemaMismatch) || !strings.Contains(err.Error(), "delivery_queue") {
		t.Fatalf("expected missing delivery_queue mismatch, got %v", err)
	}
}

func TestGetProductMissingReturnsErrNotFound(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := st.GetProduct(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDeliveriesIsIdempotentPerSlot(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)

	slots := []store.Delivery{
		{ProductID: product.ID, Platform: config.PlatformTelegram, ScheduledTime: base.Add(5 * time.Minute), Template: "deal_alert"},
		{ProductID: product.ID, Platform: config.PlatformTelegram, ScheduledTime: base.Add(10 * time.Minute), Template: "deal_alert"},
	}
	inserted, err := st.InsertDeliveries(ctx, slots)
	if err != nil {
		t.Fatalf("InsertDeliveries: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}
	inserted, err = st.InsertDeliveries(ctx, slots)
	if err != nil {
		t.Fatalf("InsertDeliveries again: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected duplicate slots to be skipped, got %d inserted", inserted)
	}
	all, err := st.ListDeliveries(ctx, store.DeliveryFilter{ProductID: product.ID})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
}

func TestDueDeliveriesOrderingAndFilters(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	active := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)
	withdrawn := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)

	late := testsupport.MustInsertDelivery(t, st, active.ID, config.PlatformDiscord, base.Add(10*time.Minute))
	early := testsupport.MustInsertDelivery(t, st, active.ID, config.PlatformTelegram, base.Add(5*time.Minute))
	sameTime := testsupport.MustInsertDelivery(t, st, active.ID, config.PlatformInstagram, base.Add(10*time.Minute))
	testsupport.MustInsertDelivery(t, st, active.ID, config.PlatformTelegram, base.Add(time.Hour))
	testsupport.MustInsertDelivery(t, st, withdrawn.ID, config.PlatformTelegram, base.Add(time.Minute))

	if _, err := st.WithdrawProduct(ctx, withdrawn.ID, base); err != nil {
		t.Fatalf("WithdrawProduct: %v", err)
	}

	due, err := st.DueDeliveries(ctx, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("DueDeliveries: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due records, got %d", len(due))
	}
	want := []int64{early.ID, late.ID, sameTime.ID}
	for i, d := range due {
		if d.ID != want[i] {
			t.Fatalf("due[%d] = %d, want %d", i, d.ID, want[i])
		}
	}
}

func TestClaimAndCompleteSetsPostedFlag(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)
	d := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformTelegram, base)

	ok, err := st.ClaimDelivery(ctx, d.ID, base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("ClaimDelivery = %v, %v", ok, err)
	}
	ok, err = st.ClaimDelivery(ctx, d.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("second ClaimDelivery: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to fail")
	}

	if err := st.CompleteDelivery(ctx, d.ID, base.Add(2*time.Second)); err != nil {
		t.Fatalf("CompleteDelivery: %v", err)
	}
	got, err := st.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if got.Status != store.StatusCompleted || got.Attempts != 1 {
		t.Fatalf("unexpected delivery after completion: %#v", got)
	}
	if got.DispatchedAt == nil {
		t.Fatal("expected dispatched_at to be recorded")
	}

	fetched, err := st.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if !fetched.IsPosted(config.PlatformTelegram) || fetched.IsPosted(config.PlatformDiscord) {
		t.Fatalf("unexpected posted flags: %#v", fetched.Posted)
	}

	if err := st.CompleteDelivery(ctx, d.ID, base.Add(3*time.Second)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected completing twice to fail with ErrNotFound, got %v", err)
	}
}

func TestFailErrorAndRetryTransitions(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)
	failed := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformTelegram, base)
	errored := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformDiscord, base)
	retried := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformInstagram, base)

	for _, id := range []int64{failed.ID, errored.ID, retried.ID} {
		if ok, err := st.ClaimDelivery(ctx, id, base); err != nil || !ok {
			t.Fatalf("ClaimDelivery(%d) = %v, %v", id, ok, err)
		}
	}
	if err := st.FailDelivery(ctx, failed.ID, "rejected", base); err != nil {
		t.Fatalf("FailDelivery: %v", err)
	}
	if err := st.ErrorDelivery(ctx, errored.ID, "timeout", base); err != nil {
		t.Fatalf("ErrorDelivery: %v", err)
	}
	next := base.Add(5 * time.Minute)
	if err := st.RetryDelivery(ctx, retried.ID, next, "connection reset", base); err != nil {
		t.Fatalf("RetryDelivery: %v", err)
	}

	stats, err := st.DeliveryStats(ctx)
	if err != nil {
		t.Fatalf("DeliveryStats: %v", err)
	}
	if stats[store.StatusFailed] != 1 || stats[store.StatusError] != 1 || stats[store.StatusRetrying] != 1 {
		t.Fatalf("unexpected histogram: %v", stats)
	}

	due, err := st.DueDeliveries(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("DueDeliveries: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected retrying record to wait for backoff, got %d due", len(due))
	}
	due, err = st.DueDeliveries(ctx, next)
	if err != nil {
		t.Fatalf("DueDeliveries: %v", err)
	}
	if len(due) != 1 || due[0].ID != retried.ID || due[0].LastError != "connection reset" {
		t.Fatalf("unexpected due set after backoff: %#v", due)
	}
}

func TestWithdrawProductCancelsOutstanding(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)
	done := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformTelegram, base)
	testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformTelegram, base.Add(time.Minute))
	testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformDiscord, base.Add(time.Minute))

	if ok, err := st.ClaimDelivery(ctx, done.ID, base); err != nil || !ok {
		t.Fatalf("ClaimDelivery = %v, %v", ok, err)
	}
	if err := st.CompleteDelivery(ctx, done.ID, base); err != nil {
		t.Fatalf("CompleteDelivery: %v", err)
	}

	cancelled, err := st.WithdrawProduct(ctx, product.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("WithdrawProduct: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 cancelled, got %d", cancelled)
	}
	stats, err := st.DeliveryStats(ctx)
	if err != nil {
		t.Fatalf("DeliveryStats: %v", err)
	}
	if stats[store.StatusCancelled] != 2 || stats[store.StatusCompleted] != 1 {
		t.Fatalf("unexpected histogram after withdraw: %v", stats)
	}
	if _, err := st.WithdrawProduct(ctx, 4242, base); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}
}

func TestRecoverDispatchingMarksError(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)
	d := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformTelegram, base)
	if ok, err := st.ClaimDelivery(ctx, d.ID, base); err != nil || !ok {
		t.Fatalf("ClaimDelivery = %v, %v", ok, err)
	}

	recovered, err := st.RecoverDispatching(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecoverDispatching: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered, got %d", recovered)
	}
	got, err := st.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if got.Status != store.StatusError || got.LastError != store.InterruptedReason {
		t.Fatalf("unexpected recovered delivery: %#v", got)
	}
}

func TestUpdateProductPatchesFields(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), base)

	price := 84999.0
	title := "Samsung Galaxy S24 Ultra (Price Drop)"
	updated, err := st.UpdateProduct(ctx, product.ID, store.ProductPatch{Price: &price, Title: &title})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Price != price || updated.Title != title || updated.OriginalPrice != product.OriginalPrice {
		t.Fatalf("unexpected product after patch: %#v", updated)
	}
}

func TestLinkCountersAndRollup(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	links := []store.AffiliateLink{
		{ID: "a", OriginalURL: "u1", AffiliateURL: "a1", Network: "amazon", Platform: "telegram", Price: 100, CommissionRate: 0.08, EstimatedCommission: 8, CreatedAt: base},
		{ID: "b", OriginalURL: "u2", AffiliateURL: "a2", Network: "flipkart", Platform: "telegram", Price: 200, CommissionRate: 0.10, EstimatedCommission: 20, CreatedAt: base},
		{ID: "c", OriginalURL: "u3", AffiliateURL: "a3", Network: "amazon", Platform: "discord", Price: 50, CommissionRate: 0.08, EstimatedCommission: 4, CreatedAt: base},
		{ID: "old", OriginalURL: "u4", AffiliateURL: "a4", Network: "amazon", Platform: "discord", Price: 50, CommissionRate: 0.08, EstimatedCommission: 4, CreatedAt: base.AddDate(0, 0, -30)},
	}
	for _, l := range links {
		if err := st.CreateLink(ctx, l); err != nil {
			t.Fatalf("CreateLink(%s): %v", l.ID, err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := st.IncrementClicks(ctx, "a"); err != nil {
			t.Fatalf("IncrementClicks: %v", err)
		}
	}
	if err := st.AddConversion(ctx, "b", 30); err != nil {
		t.Fatalf("AddConversion: %v", err)
	}
	if err := st.IncrementClicks(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing link, got %v", err)
	}

	rollup, err := st.PlatformRollup(ctx, base.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("PlatformRollup: %v", err)
	}
	if len(rollup) != 2 {
		t.Fatalf("expected 2 platforms, got %#v", rollup)
	}
	telegram := rollup[0]
	if telegram.Platform != "telegram" || telegram.Links != 2 || telegram.Clicks != 4 || telegram.Conversions != 1 || telegram.Earnings != 30 {
		t.Fatalf("unexpected telegram rollup: %#v", telegram)
	}
	if rollup[1].Links != 1 {
		t.Fatalf("expected old link excluded from discord rollup: %#v", rollup[1])
	}

	top, err := st.TopLinks(ctx, base.AddDate(0, 0, -7), 2)
	if err != nil {
		t.Fatalf("TopLinks: %v", err)
	}
	if len(top) != 2 || top[0].ID != "b" || top[1].ID != "a" {
		t.Fatalf("unexpected top links: %v, %v", top[0].ID, top[1].ID)
	}

	frozen, err := st.GetLink(ctx, "b")
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if frozen.CommissionRate != 0.10 || frozen.EstimatedCommission != 20 {
		t.Fatalf("commission terms changed after conversion: %#v", frozen)
	}
}

func TestShortCodeLookup(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := st.CreateLink(ctx, store.AffiliateLink{ID: "x", OriginalURL: "o", AffiliateURL: "https://aff", Network: "amazon", CommissionRate: 0.08}); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if err := st.SetShortURL(ctx, "x", "abcd1234", "https://sastasmart.com/go/abcd1234"); err != nil {
		t.Fatalf("SetShortURL: %v", err)
	}
	link, err := st.LinkByShortCode(ctx, "abcd1234")
	if err != nil {
		t.Fatalf("LinkByShortCode: %v", err)
	}
	if link.ID != "x" || link.Platform != "general" {
		t.Fatalf("unexpected link: %#v", link)
	}
	if _, err := st.LinkByShortCode(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDailyStatsSnapshot(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), day.Add(2*time.Hour))
	testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), day.Add(-2*time.Hour))
	d := testsupport.MustInsertDelivery(t, st, product.ID, config.PlatformTelegram, day.Add(3*time.Hour))
	if ok, err := st.ClaimDelivery(ctx, d.ID, day.Add(3*time.Hour)); err != nil || !ok {
		t.Fatalf("ClaimDelivery = %v, %v", ok, err)
	}
	if err := st.CompleteDelivery(ctx, d.ID, day.Add(3*time.Hour)); err != nil {
		t.Fatalf("CompleteDelivery: %v", err)
	}

	stats, err := st.CollectDailyStats(ctx, day)
	if err != nil {
		t.Fatalf("CollectDailyStats: %v", err)
	}
	if stats.Date != "2026-03-01" || stats.ProductsProcessed != 1 || stats.PostsCreated != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
	if err := st.UpsertDailyStats(ctx, stats, day.Add(23*time.Hour)); err != nil {
		t.Fatalf("UpsertDailyStats: %v", err)
	}
	stats.PostsCreated = 5
	if err := st.UpsertDailyStats(ctx, stats, day.Add(23*time.Hour+time.Minute)); err != nil {
		t.Fatalf("UpsertDailyStats again: %v", err)
	}
	list, err := st.ListDailyStats(ctx, 10)
	if err != nil {
		t.Fatalf("ListDailyStats: %v", err)
	}
	if len(list) != 1 || list[0].PostsCreated != 5 {
		t.Fatalf("unexpected daily stats list: %#v", list)
	}
}
