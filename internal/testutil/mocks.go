package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/cassiomorais/paypal-relay/internal/domain/ledger"
	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/shopspring/decimal"
)

// --- Ledger Writer Mock ---

// MockLedgerWriter is a mock implementation of ledger.Writer.
type MockLedgerWriter struct {
	mu      sync.Mutex
	records []*ledger.Record

	RecordFunc func(ctx context.Context, r *ledger.Record) error
}

func NewMockLedgerWriter() *MockLedgerWriter {
	return &MockLedgerWriter{}
}

func (m *MockLedgerWriter) Record(ctx context.Context, r *ledger.Record) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *MockLedgerWriter) Records() []*ledger.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ledger.Record, len(m.records))
	copy(out, m.records)
	return out
}

// --- Order Provider Mock ---

// MockOrderProvider is a mock implementation of providers.OrderProvider that
// returns whatever the Func fields return. Unset funcs fail the call.
type MockOrderProvider struct {
	mu    sync.Mutex
	calls map[string]int

	CreateOrderFunc  func(ctx context.Context, amount decimal.Decimal) (*order.Order, error)
	CaptureOrderFunc func(ctx context.Context, orderID string) (*order.Capture, error)
	PingFunc         func(ctx context.Context) error
}

var errNotConfigured = errors.New("mock not configured")

func NewMockOrderProvider() *MockOrderProvider {
	return &MockOrderProvider{calls: make(map[string]int)}
}

func (m *MockOrderProvider) Name() string { return "mock" }

func (m *MockOrderProvider) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
}

// Calls returns how many times op ("create", "capture", "ping") was invoked.
func (m *MockOrderProvider) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockOrderProvider) CreateOrder(ctx context.Context, amount decimal.Decimal) (*order.Order, error) {
	m.count("create")
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, amount)
	}
	return nil, errNotConfigured
}

func (m *MockOrderProvider) CaptureOrder(ctx context.Context, orderID string) (*order.Capture, error) {
	m.count("capture")
	if m.CaptureOrderFunc != nil {
		return m.CaptureOrderFunc(ctx, orderID)
	}
	return nil, errNotConfigured
}

func (m *MockOrderProvider) Ping(ctx context.Context) error {
	m.count("ping")
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// --- Pinger Mock ---

// MockPinger reports Err from Ping.
type MockPinger struct {
	Err error
}

func (m *MockPinger) Ping(context.Context) error { return m.Err }
