package providers

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Operations guarded by their own circuit breaker.
const (
	OpCreate  = "create"
	OpCapture = "capture"
	OpPing    = "ping"
)

// Breaker guards an OrderProvider with one circuit breaker per operation, so
// failing health pings cannot block captures. Only outages (no response, or
// 5xx) count as failures; business rejections such as capturing an unapproved
// order do not. Calls are never retried.
type Breaker struct {
	provider OrderProvider
	cbs      map[string]*gobreaker.CircuitBreaker[any]
	metrics  *observability.Metrics
}

var _ OrderProvider = (*Breaker)(nil)

// NewBreaker wraps p. metrics may be nil.
func NewBreaker(p OrderProvider, cfg config.BreakerConfig, metrics *observability.Metrics, logger zerolog.Logger) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	b := &Breaker{provider: p, metrics: metrics, cbs: make(map[string]*gobreaker.CircuitBreaker[any])}
	for _, op := range []string{OpCreate, OpCapture, OpPing} {
		name := breakerName(p.Name(), op)
		b.cbs[op] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return !domainErrors.IsOutage(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
				if metrics != nil {
					metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
		if metrics != nil {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
		}
	}
	return b
}

func breakerName(provider, op string) string {
	return provider + ":" + op
}

func (b *Breaker) Name() string { return b.provider.Name() }

// State returns the current state of the breaker guarding op.
func (b *Breaker) State(op string) gobreaker.State { return b.cbs[op].State() }

func (b *Breaker) CreateOrder(ctx context.Context, amount decimal.Decimal) (*order.Order, error) {
	res, err := b.execute(OpCreate, func() (any, error) {
		return b.provider.CreateOrder(ctx, amount)
	})
	if err != nil {
		return nil, err
	}
	return res.(*order.Order), nil
}

func (b *Breaker) CaptureOrder(ctx context.Context, orderID string) (*order.Capture, error) {
	res, err := b.execute(OpCapture, func() (any, error) {
		return b.provider.CaptureOrder(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*order.Capture), nil
}

func (b *Breaker) Ping(ctx context.Context) error {
	_, err := b.execute(OpPing, func() (any, error) {
		return nil, b.provider.Ping(ctx)
	})
	return err
}

func (b *Breaker) execute(op string, fn func() (any, error)) (any, error) {
	name := breakerName(b.provider.Name(), op)
	res, err := b.cbs[op].Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.record(name, "rejected")
		return nil, fmt.Errorf("%w: %s: %w", domainErrors.ErrProviderUnavailable, name, err)
	}
	if err != nil && domainErrors.IsOutage(err) {
		b.record(name, "failure")
		return nil, err
	}
	b.record(name, "success")
	return res, err
}

func (b *Breaker) record(name, result string) {
	if b.metrics != nil {
		b.metrics.CircuitBreakerRequests.WithLabelValues(name, result).Inc()
	}
}
