package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	"github.com/cassiomorais/paypal-relay/internal/providers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const captureResponse = `{
  "id": "5O190127TN364715T",
  "status": "COMPLETED",
  "payer": {
    "name": {"given_name": "John", "surname": "Doe"},
    "email_address": "customer@example.com",
    "payer_id": "QYR5Z8XDVJNXQ"
  },
  "purchase_units": [{
    "reference_id": "default",
    "payments": {
      "captures": [{
        "id": "3C679366HH908993F",
        "status": "COMPLETED",
        "amount": {"currency_code": "PHP", "value": "100.00"}
      }]
    }
  }]
}`

// fakePayPal records what it receives and answers with scripted responses.
type fakePayPal struct {
	tokenStatus   int
	orderStatus   int
	orderBody     string
	captureStatus int
	captureBody   string
	// tokenHang makes the token endpoint block until the caller goes away.
	tokenHang atomic.Bool

	tokenCalls   atomic.Int32
	orderCalls   atomic.Int32
	captureCalls atomic.Int32

	lastAuth        string
	lastTokenBody   string
	lastOrderBody   []byte
	lastCaptureBody []byte
	lastBearer      string
	lastCapturePath string
}

func newFakePayPal() *fakePayPal {
	return &fakePayPal{
		tokenStatus:   http.StatusOK,
		orderStatus:   http.StatusCreated,
		orderBody:     `{"id":"5O190127TN364715T","status":"CREATED","links":[{"href":"https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve","method":"GET"}]}`,
		captureStatus: http.StatusCreated,
		captureBody:   captureResponse,
	}
}

func (f *fakePayPal) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.tokenHang.Load() {
			<-r.Context().Done()
			return
		}
		f.lastAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		f.lastTokenBody = string(body)
		w.WriteHeader(f.tokenStatus)
		if f.tokenStatus == http.StatusOK {
			_, _ = io.WriteString(w, `{"access_token":"A21AAtest","token_type":"Bearer","expires_in":32400}`)
			return
		}
		_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"Client Authentication failed"}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		f.orderCalls.Add(1)
		f.lastBearer = r.Header.Get("Authorization")
		f.lastOrderBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(f.orderStatus)
		_, _ = io.WriteString(w, f.orderBody)
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		f.captureCalls.Add(1)
		f.lastBearer = r.Header.Get("Authorization")
		f.lastCapturePath = r.PathValue("id")
		f.lastCaptureBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(f.captureStatus)
		_, _ = io.WriteString(w, f.captureBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.PayPalConfig {
	return config.PayPalConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      baseURL,
		Currency:     "PHP",
		ReturnURL:    "http://localhost:8080/success",
		CancelURL:    "http://localhost:8080/cancel",
		BrandName:    "Relay",
		LandingPage:  "LOGIN",
		UserAction:   "PAY_NOW",
		Timeout:      5 * time.Second,
	}
}

func TestClient_CreateOrder(t *testing.T) {
	fake := newFakePayPal()
	srv := fake.server(t)
	client := NewClient(testConfig(srv.URL))

	o, err := client.CreateOrder(context.Background(), decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, "5O190127TN364715T", o.ID)
	href, ok := o.ApprovalURL()
	assert.True(t, ok)
	assert.Contains(t, href, "checkoutnow")
	assert.JSONEq(t, fake.orderBody, string(o.Raw))
	assert.Equal(t, "Bearer A21AAtest", fake.lastBearer)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.lastOrderBody, &sent))
	assert.Equal(t, "CAPTURE", sent["intent"])
	units := sent["purchase_units"].([]any)
	require.Len(t, units, 1)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "PHP", amount["currency_code"])
	assert.Equal(t, "10.00", amount["value"])

	appCtx := sent["application_context"].(map[string]any)
	assert.Equal(t, "http://localhost:8080/success", appCtx["return_url"])
	assert.Equal(t, "http://localhost:8080/cancel", appCtx["cancel_url"])
}

func TestClient_CreateOrder_AmountFormatting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10.00"},
		{"9.5", "9.50"},
		{"9.995", "10.00"},
		{"0.01", "0.01"},
		{"1234.567", "1234.57"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			fake := newFakePayPal()
			client := NewClient(testConfig(fake.server(t).URL))

			_, err := client.CreateOrder(context.Background(), decimal.RequireFromString(tt.in))
			require.NoError(t, err)

			var sent struct {
				PurchaseUnits []struct {
					Amount struct {
						Value string `json:"value"`
					} `json:"amount"`
				} `json:"purchase_units"`
			}
			require.NoError(t, json.Unmarshal(fake.lastOrderBody, &sent))
			assert.Equal(t, tt.want, sent.PurchaseUnits[0].Amount.Value)
		})
	}
}

func TestClient_CreateOrder_InvalidAmount(t *testing.T) {
	fake := newFakePayPal()
	client := NewClient(testConfig(fake.server(t).URL))

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := client.CreateOrder(context.Background(), amount)
		var ve *domainErrors.ValidationError
		assert.ErrorAs(t, err, &ve)
	}
	assert.Zero(t, fake.tokenCalls.Load())
}

func TestClient_TokenRejected(t *testing.T) {
	fake := newFakePayPal()
	fake.tokenStatus = http.StatusUnauthorized
	client := NewClient(testConfig(fake.server(t).URL))

	_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(10))

	assert.ErrorIs(t, err, domainErrors.ErrAuth)
	var perr *domainErrors.ProcessorError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Contains(t, perr.Body, "invalid_client")
	assert.Zero(t, fake.orderCalls.Load(), "order call must not happen without a token")
}

func TestClient_TokenRejected_Capture(t *testing.T) {
	fake := newFakePayPal()
	fake.tokenStatus = http.StatusUnauthorized
	client := NewClient(testConfig(fake.server(t).URL))

	_, err := client.CaptureOrder(context.Background(), "5O190127TN364715T")

	assert.ErrorIs(t, err, domainErrors.ErrAuth)
	assert.False(t, domainErrors.IsOutage(err))
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
	assert.Zero(t, fake.captureCalls.Load(), "capture call must not happen without a token")
}

func TestClient_CallerCancellation(t *testing.T) {
	fake := newFakePayPal()
	fake.tokenHang.Store(true)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	client := NewClient(testConfig(fake.server(t).URL), WithMetrics(metrics))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.CreateOrder(ctx, decimal.NewFromInt(10))

	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrAuth)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, domainErrors.IsOutage(err))
	var perr *domainErrors.ProcessorError
	assert.False(t, errors.As(err, &perr))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProcessorRequestsTotal.WithLabelValues("token", "cancelled")))
	assert.Zero(t, fake.orderCalls.Load())
}

func TestClient_CallerCancellationDoesNotOpenBreaker(t *testing.T) {
	fake := newFakePayPal()
	fake.tokenHang.Store(true)
	breaker := providers.NewBreaker(
		NewClient(testConfig(fake.server(t).URL)),
		config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 3},
		nil,
		zerolog.Nop(),
	)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := breaker.CaptureOrder(ctx, "5O190127TN364715T")
		cancel()
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, breaker.State(providers.OpCapture))

	fake.tokenHang.Store(false)
	c, err := breaker.CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, c.Status)
}

func TestClient_MissingCredentials(t *testing.T) {
	fake := newFakePayPal()
	cfg := testConfig(fake.server(t).URL)
	cfg.ClientSecret = ""
	client := NewClient(cfg)

	_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(10))

	assert.ErrorIs(t, err, domainErrors.ErrAuth)
	assert.False(t, domainErrors.IsOutage(err))
	assert.Zero(t, fake.tokenCalls.Load())
}

func TestClient_TokenRequestShape(t *testing.T) {
	fake := newFakePayPal()
	client := NewClient(testConfig(fake.server(t).URL))

	require.NoError(t, client.Ping(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", fake.lastAuth)
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "client-id", user)
	assert.Equal(t, "client-secret", pass)
	assert.Equal(t, "grant_type=client_credentials", fake.lastTokenBody)
}

func TestClient_FreshTokenPerCall(t *testing.T) {
	fake := newFakePayPal()
	client := NewClient(testConfig(fake.server(t).URL))
	ctx := context.Background()

	_, err := client.CreateOrder(ctx, decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = client.CaptureOrder(ctx, "5O190127TN364715T")
	require.NoError(t, err)

	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestClient_CreateOrder_Rejected(t *testing.T) {
	fake := newFakePayPal()
	fake.orderStatus = http.StatusBadRequest
	fake.orderBody = `{"name":"INVALID_REQUEST","message":"Request is not well-formed"}`
	client := NewClient(testConfig(fake.server(t).URL))

	_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(10))

	assert.ErrorIs(t, err, domainErrors.ErrOrderCreation)
	assert.False(t, domainErrors.IsOutage(err))
	assert.NotContains(t, err.Error(), "INVALID_REQUEST")
}

func TestClient_CreateOrder_ServerError(t *testing.T) {
	fake := newFakePayPal()
	fake.orderStatus = http.StatusInternalServerError
	fake.orderBody = `{"name":"INTERNAL_SERVER_ERROR"}`
	client := NewClient(testConfig(fake.server(t).URL))

	_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(10))

	assert.ErrorIs(t, err, domainErrors.ErrOrderCreation)
	assert.True(t, domainErrors.IsOutage(err))
}

func TestClient_CaptureOrder(t *testing.T) {
	fake := newFakePayPal()
	client := NewClient(testConfig(fake.server(t).URL))

	c, err := client.CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)

	assert.Equal(t, "5O190127TN364715T", fake.lastCapturePath)
	assert.Empty(t, fake.lastCaptureBody)
	assert.JSONEq(t, captureResponse, string(c.Raw))

	detail, ok := c.FirstCapture()
	require.True(t, ok)
	assert.Equal(t, "3C679366HH908993F", detail.ID)
	assert.Equal(t, "PHP 100.00", detail.Amount.Display())
	require.NotNil(t, c.Payer)
	assert.Equal(t, "QYR5Z8XDVJNXQ", c.Payer.PayerID)
	assert.Equal(t, "John Doe", c.Payer.Name.Full())
}

func TestClient_CaptureOrder_Unprocessable(t *testing.T) {
	fake := newFakePayPal()
	fake.captureStatus = http.StatusUnprocessableEntity
	fake.captureBody = `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_NOT_APPROVED"}]}`
	client := NewClient(testConfig(fake.server(t).URL))

	_, err := client.CaptureOrder(context.Background(), "5O190127TN364715T")

	assert.ErrorIs(t, err, domainErrors.ErrCapture)
	var perr *domainErrors.ProcessorError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.Contains(t, perr.Body, "ORDER_NOT_APPROVED")
}

func TestClient_CaptureOrder_BlankID(t *testing.T) {
	fake := newFakePayPal()
	client := NewClient(testConfig(fake.server(t).URL))

	_, err := client.CaptureOrder(context.Background(), "   ")

	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Zero(t, fake.tokenCalls.Load())
}

func TestClient_Unreachable(t *testing.T) {
	fake := newFakePayPal()
	srv := fake.server(t)
	url := srv.URL
	srv.Close()

	client := NewClient(testConfig(url))
	err := client.Ping(context.Background())

	assert.ErrorIs(t, err, domainErrors.ErrAuth)
	assert.True(t, domainErrors.IsOutage(err))
}

func TestClient_Metrics(t *testing.T) {
	fake := newFakePayPal()
	fake.captureStatus = http.StatusUnprocessableEntity
	fake.captureBody = `{}`
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	client := NewClient(testConfig(fake.server(t).URL), WithMetrics(metrics))
	ctx := context.Background()

	_, err := client.CreateOrder(ctx, decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = client.CaptureOrder(ctx, "X")
	require.Error(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ProcessorRequestsTotal.WithLabelValues("token", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProcessorRequestsTotal.WithLabelValues("create_order", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProcessorRequestsTotal.WithLabelValues("capture_order", "rejected")))
}

type staticTokener string

func (s staticTokener) Token(context.Context) (string, error) { return string(s), nil }

func TestClient_WithTokener(t *testing.T) {
	fake := newFakePayPal()
	client := NewClient(testConfig(fake.server(t).URL), WithTokener(staticTokener("injected")))

	_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(3))
	require.NoError(t, err)

	assert.Equal(t, "Bearer injected", fake.lastBearer)
	assert.Zero(t, fake.tokenCalls.Load())
}
