package amplitude

import (
	"context"
	"errors"
	"sync"

	experiment "github.com/amplitude/experiment-go-server/pkg/experiment"
)

// mockClientAdapter is a mock implementation of clientAdapter for testing.
// It is safe for concurrent use: Fetch is called from the coordinator goroutine.
type mockClientAdapter struct {
	// StartFunc is called when Start is called. If nil, Start returns nil.
	StartFunc func() error
	// StopFunc is called when Stop is called. If nil, Stop returns nil.
	StopFunc func() error
	// FetchFunc is called when Fetch is called.
	// If nil, Fetch returns an empty map and nil error.
	FetchFunc func(ctx context.Context, user *experiment.User) (map[string]experiment.Variant, error)
	// ClearFunc is called when Clear is called. If nil, Clear returns nil.
	ClearFunc func(ctx context.Context) error

	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	clearCalled bool
	fetchCalls  []*experiment.User
}

// Start implements clientAdapter.
func (m *mockClientAdapter) Start() error {
	m.mu.Lock()
	m.startCalled = true
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return nil
}

// Stop implements clientAdapter.
func (m *mockClientAdapter) Stop() error {
	m.mu.Lock()
	m.stopCalled = true
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

// Clear implements clientAdapter.
func (m *mockClientAdapter) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.clearCalled = true
	m.mu.Unlock()
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	return nil
}

// Fetch implements clientAdapter.
func (m *mockClientAdapter) Fetch(ctx context.Context, user *experiment.User) (map[string]experiment.Variant, error) {
	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, user)
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, user)
	}
	return map[string]experiment.Variant{}, nil
}

func (m *mockClientAdapter) fetchedUsers() []*experiment.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*experiment.User(nil), m.fetchCalls...)
}

func (m *mockClientAdapter) started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockClientAdapter) stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

func (m *mockClientAdapter) cleared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalled
}

// Verify mockClientAdapter implements clientAdapter.
var _ clientAdapter = (*mockClientAdapter)(nil)

// Common errors for testing.
var (
	errMockFetch = errors.New("mock fetch error")
	errMockStart = errors.New("mock start error")
)

// Helper to create a variant with specific properties.
func makeVariant(key string, value string, payload any) experiment.Variant {
	return experiment.Variant{
		Key:     key,
		Value:   value,
		Payload: payload,
	}
}

// withMockClient injects a mock client adapter.
func withMockClient(mock *mockClientAdapter) Option {
	return func(c *Config) {
		c.testClientAdapter = mock
	}
}

// recordingDispatcher collects deliveries in the order they were dispatched.
type recordingDispatcher struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (d *recordingDispatcher) Dispatch(_ context.Context, delivery Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
	return nil
}

func (d *recordingDispatcher) all() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Delivery(nil), d.deliveries...)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deliveries)
}
