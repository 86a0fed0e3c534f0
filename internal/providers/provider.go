package providers

import (
	"context"

	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/shopspring/decimal"
)

// OrderProvider is the interface that payment processors implement.
type OrderProvider interface {
	// Name returns the provider name.
	Name() string
	// CreateOrder creates a capture-intent order for amount.
	CreateOrder(ctx context.Context, amount decimal.Decimal) (*order.Order, error)
	// CaptureOrder captures a buyer-approved order.
	CaptureOrder(ctx context.Context, orderID string) (*order.Capture, error)
	// Ping checks that the provider accepts the configured credentials.
	Ping(ctx context.Context) error
}
