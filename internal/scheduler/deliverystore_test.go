package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/platform"
	"dealflow/internal/scheduler"
	"dealflow/internal/store"
	"dealflow/internal/testsupport"
)

var _ scheduler.DeliveryStore = (*store.Store)(nil)

// flakyProducts fails product reads and counts claims against the real store.
type flakyProducts struct {
	scheduler.DeliveryStore
	claims int
}

func (f *flakyProducts) GetProduct(context.Context, int64) (*store.Product, error) {
	return nil, errors.New("database is locked")
}

func (f *flakyProducts) ClaimDelivery(ctx context.Context, id int64, now time.Time) (bool, error) {
	f.claims++
	return f.DeliveryStore.ClaimDelivery(ctx, id, now)
}

func TestTickWithUnreadableProductNeverClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlatforms(config.PlatformTelegram))
	st := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(start)
	product := testsupport.MustCreateProduct(t, st, testsupport.SampleProduct(), start)
	adapter := testsupport.NewFakeAdapter(config.PlatformTelegram)
	flaky := &flakyProducts{DeliveryStore: st}
	sched := scheduler.New(cfg, flaky, platform.NewRegistry(adapter), logging.NewNop(), scheduler.WithClock(clock.Now))
	ctx := context.Background()

	if _, err := sched.Enqueue(ctx, product.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if _, err := sched.Tick(ctx); err == nil {
		t.Fatal("expected product read failure to abort the tick")
	}
	if flaky.claims != 0 || len(adapter.Calls()) != 0 {
		t.Fatalf("claims=%d calls=%d, want none", flaky.claims, len(adapter.Calls()))
	}

	list, err := st.ListDeliveries(ctx, store.DeliveryFilter{ProductID: product.ID, Platform: config.PlatformTelegram})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	for _, d := range list {
		if d.Status != store.StatusPending || d.Attempts != 0 {
			t.Fatalf("record %d left %s after %d attempts", d.ID, d.Status, d.Attempts)
		}
	}
}
