package providers

import (
	"context"
	"fmt"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
	}
}

func TestBreaker_PassesThrough(t *testing.T) {
	mock := NewMockProvider("paypal")
	b := NewBreaker(mock, testBreakerConfig(), nil, zerolog.Nop())
	ctx := context.Background()

	o, err := b.CreateOrder(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)

	c, err := b.CaptureOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, c.ID)

	require.NoError(t, b.Ping(ctx))
	assert.Equal(t, "paypal", b.Name())
	for _, op := range []string{OpCreate, OpCapture, OpPing} {
		assert.Equal(t, gobreaker.StateClosed, b.State(op), op)
	}
}

func TestBreaker_OpensOnOutages(t *testing.T) {
	outage := domainErrors.NewProcessorError(domainErrors.ErrOrderCreation, "create order", 503, "")
	mock := NewMockProvider("paypal", WithCreateError(outage))
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	b := NewBreaker(mock, testBreakerConfig(), metrics, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.CreateOrder(ctx, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, domainErrors.ErrOrderCreation)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State(OpCreate))

	_, err := b.CreateOrder(ctx, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	assert.Equal(t, 3, mock.Calls("create"), "open breaker must not reach the provider")

	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("paypal:create")))
	assert.Equal(t, float64(gobreaker.StateClosed), testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("paypal:capture")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("paypal:create", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("paypal:create", "rejected")))
}

func TestBreaker_RejectionsDoNotTrip(t *testing.T) {
	rejected := domainErrors.NewProcessorError(domainErrors.ErrCapture, "capture order", 422, "")
	mock := NewMockProvider("paypal", WithCaptureError(rejected))
	b := NewBreaker(mock, testBreakerConfig(), nil, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := b.CaptureOrder(ctx, "5O190127TN364715T")
		assert.ErrorIs(t, err, domainErrors.ErrCapture)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State(OpCapture))
	assert.Equal(t, 10, mock.Calls("capture"))
}

func TestBreaker_ValidationDoesNotTrip(t *testing.T) {
	mock := NewMockProvider("paypal")
	b := NewBreaker(mock, testBreakerConfig(), nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := b.CreateOrder(context.Background(), decimal.NewFromInt(-1))
		var ve *domainErrors.ValidationError
		assert.ErrorAs(t, err, &ve)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State(OpCreate))
}

func TestBreaker_CallerCancellationDoesNotTrip(t *testing.T) {
	cancelled := domainErrors.WrapProcessorError(domainErrors.ErrCapture, "capture order", fmt.Errorf("Post: %w", context.Canceled))
	mock := NewMockProvider("paypal", WithCaptureError(cancelled))
	b := NewBreaker(mock, testBreakerConfig(), nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := b.CaptureOrder(context.Background(), "5O190127TN364715T")
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State(OpCapture))
	assert.Equal(t, 5, mock.Calls("capture"))
}

func TestBreaker_CancelledContextDoesNotTrip(t *testing.T) {
	mock := NewMockProvider("paypal", WithLatency(time.Second))
	b := NewBreaker(mock, testBreakerConfig(), nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := b.CreateOrder(ctx, decimal.NewFromInt(10))
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State(OpCreate))
}

func TestBreaker_OperationsTripIndependently(t *testing.T) {
	outage := domainErrors.NewProcessorError(domainErrors.ErrAuth, "fetch token", 503, "")
	mock := NewMockProvider("paypal", WithPingError(outage))
	b := NewBreaker(mock, testBreakerConfig(), nil, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Ping(ctx), domainErrors.ErrAuth)
	}
	assert.ErrorIs(t, b.Ping(ctx), domainErrors.ErrProviderUnavailable)
	assert.Equal(t, gobreaker.StateOpen, b.State(OpPing))

	o, err := b.CreateOrder(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = b.CaptureOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, b.State(OpCreate))
	assert.Equal(t, gobreaker.StateClosed, b.State(OpCapture))
}
