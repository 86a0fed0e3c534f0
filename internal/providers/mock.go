package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockProvider is an in-memory OrderProvider. It approves every order it
// creates unless told otherwise and refuses to capture an order twice, which
// is how the real processor behaves.
type MockProvider struct {
	name     string
	currency string
	latency  time.Duration

	mu         sync.Mutex
	orders     map[string]*order.Order
	captured   map[string]bool
	createErr  error
	captureErr error
	pingErr    error
	calls      map[string]int
}

type MockProviderOption func(*MockProvider)

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithCurrency(code string) MockProviderOption {
	return func(p *MockProvider) { p.currency = code }
}

// WithCreateError makes every CreateOrder call fail with err.
func WithCreateError(err error) MockProviderOption {
	return func(p *MockProvider) { p.createErr = err }
}

// WithCaptureError makes every CaptureOrder call fail with err.
func WithCaptureError(err error) MockProviderOption {
	return func(p *MockProvider) { p.captureErr = err }
}

// WithPingError makes every Ping call fail with err.
func WithPingError(err error) MockProviderOption {
	return func(p *MockProvider) { p.pingErr = err }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:     name,
		currency: "PHP",
		orders:   make(map[string]*order.Order),
		captured: make(map[string]bool),
		calls:    make(map[string]int),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

// Calls returns how many times op ("create", "capture", "ping") was invoked.
func (p *MockProvider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *MockProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MockProvider) CreateOrder(ctx context.Context, amount decimal.Decimal) (*order.Order, error) {
	p.mu.Lock()
	p.calls["create"]++
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, domainErrors.NewValidationError("amount", "must be greater than zero")
	}
	if p.createErr != nil {
		return nil, p.createErr
	}

	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:17])
	money := order.NewMoney(p.currency, amount)
	o := &order.Order{
		ID:     id,
		Status: order.StatusCreated,
		Intent: order.IntentCapture,
		Links: []order.Link{
			{Href: "https://mock.invalid/v2/checkout/orders/" + id, Rel: "self", Method: "GET"},
			{Href: "https://mock.invalid/checkoutnow?token=" + id, Rel: order.RelApprove, Method: "GET"},
		},
		PurchaseUnits: []order.PurchaseUnit{{Amount: &money}},
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrOrderCreation, err)
	}
	o.Raw = raw

	p.mu.Lock()
	p.orders[id] = o
	p.mu.Unlock()
	return o, nil
}

func (p *MockProvider) CaptureOrder(ctx context.Context, orderID string) (*order.Capture, error) {
	p.mu.Lock()
	p.calls["capture"]++
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, domainErrors.NewValidationError("orderId", "is required")
	}
	if p.captureErr != nil {
		return nil, p.captureErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, domainErrors.NewProcessorError(domainErrors.ErrCapture, "capture order", 404, `{"name":"RESOURCE_NOT_FOUND"}`)
	}
	if p.captured[orderID] {
		return nil, domainErrors.NewProcessorError(domainErrors.ErrCapture, "capture order", 422, `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`)
	}
	p.captured[orderID] = true

	c := &order.Capture{
		ID:     o.ID,
		Status: order.StatusCompleted,
		Payer: &order.Payer{
			PayerID:      "MOCKPAYER",
			EmailAddress: "buyer@mock.invalid",
			Name:         order.Name{GivenName: "Mock", Surname: "Buyer"},
		},
		PurchaseUnits: []order.PurchaseUnit{{
			Payments: &order.Payments{Captures: []order.CaptureDetail{{
				ID:     fmt.Sprintf("%s_capture_%s", p.name, uuid.New().String()[:8]),
				Status: order.StatusCompleted,
				Amount: *o.PurchaseUnits[0].Amount,
			}}},
		}},
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrCapture, err)
	}
	c.Raw = raw
	return c, nil
}

func (p *MockProvider) Ping(ctx context.Context) error {
	p.mu.Lock()
	p.calls["ping"]++
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.pingErr
}
