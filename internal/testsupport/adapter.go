package testsupport

import (
	"context"
	"sync"

	"dealflow/internal/platform"
)

// FakeAdapter records deliveries and returns scripted outcomes.
type FakeAdapter struct {
	name string

	mu    sync.Mutex
	calls []platform.Content
	// Deliver behaviour; Fn wins over Err when both are set.
	Err error
	Fn  func(ctx context.Context, content platform.Content) error
}

// NewFakeAdapter returns an adapter for name that succeeds by default.
func NewFakeAdapter(name string) *FakeAdapter {
	return &FakeAdapter{name: name}
}

// Name implements platform.Adapter.
func (f *FakeAdapter) Name() string { return f.name }

// Deliver implements platform.Adapter.
func (f *FakeAdapter) Deliver(ctx context.Context, content platform.Content) error {
	f.mu.Lock()
	f.calls = append(f.calls, content)
	fn, err := f.Fn, f.Err
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, content)
	}
	return err
}

// Calls returns a copy of the delivered content in call order.
func (f *FakeAdapter) Calls() []platform.Content {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Content(nil), f.calls...)
}

// SetErr changes the scripted error.
func (f *FakeAdapter) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}
