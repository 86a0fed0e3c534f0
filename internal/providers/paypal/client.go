// Package paypal talks to the PayPal Orders v2 REST API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	"github.com/cassiomorais/paypal-relay/internal/providers"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ProviderName = "paypal"

	ordersPath  = "/v2/checkout/orders"
	maxBodySize = 1 << 20

	tracerName = "github.com/cassiomorais/paypal-relay/internal/providers/paypal"
)

// Tokener supplies bearer tokens for API calls.
type Tokener interface {
	Token(ctx context.Context) (string, error)
}

// Client creates and captures orders. It is stateless apart from its
// configuration; every call fetches its own token.
type Client struct {
	baseURL    string
	currency   string
	appCtx     *order.ApplicationContext
	tokens     Tokener
	httpClient *http.Client
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

var _ providers.OrderProvider = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokener(t Tokener) Option {
	return func(c *Client) { c.tokens = t }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client from cfg. Unless overridden, the token source
// shares the client's HTTP client.
func NewClient(cfg config.PayPalConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		currency: cfg.Currency,
		tracer:   otel.Tracer(tracerName),
	}
	if cfg.ReturnURL != "" || cfg.CancelURL != "" || cfg.BrandName != "" {
		c.appCtx = &order.ApplicationContext{
			ReturnURL:   cfg.ReturnURL,
			CancelURL:   cfg.CancelURL,
			BrandName:   cfg.BrandName,
			LandingPage: cfg.LandingPage,
			UserAction:  cfg.UserAction,
		}
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if c.tokens == nil {
		c.tokens = NewTokenSource(c.baseURL, cfg.ClientID, cfg.ClientSecret, c.httpClient)
	}
	return c
}

func (c *Client) Name() string { return ProviderName }

// CreateOrder creates a capture-intent order with a single purchase unit.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal) (o *order.Order, err error) {
	if !amount.IsPositive() {
		return nil, domainErrors.NewValidationError("amount", "must be greater than zero")
	}

	ctx, span := c.tracer.Start(ctx, "paypal.CreateOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("paypal.amount", order.FormatAmount(amount)),
		attribute.String("paypal.currency", c.currency),
	)

	payload, err := json.Marshal(order.NewCreateRequest(c.currency, amount, c.appCtx))
	if err != nil {
		return nil, fmt.Errorf("%w: encode order: %v", domainErrors.ErrOrderCreation, err)
	}

	body, err := c.call(ctx, "create_order", domainErrors.ErrOrderCreation, ordersPath, payload)
	if err != nil {
		return nil, err
	}

	o = &order.Order{}
	if err := json.Unmarshal(body, o); err != nil {
		return nil, fmt.Errorf("%w: decode order response: %v", domainErrors.ErrOrderCreation, err)
	}
	o.Raw = body
	span.SetAttributes(attribute.String("paypal.order_id", o.ID))
	return o, nil
}

// CaptureOrder captures an approved order. The request body is empty.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (cp *order.Capture, err error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domainErrors.NewValidationError("orderId", "is required")
	}

	ctx, span := c.tracer.Start(ctx, "paypal.CaptureOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("paypal.order_id", orderID))

	path := ordersPath + "/" + url.PathEscape(orderID) + "/capture"
	body, err := c.call(ctx, "capture_order", domainErrors.ErrCapture, path, nil)
	if err != nil {
		return nil, err
	}

	cp = &order.Capture{}
	if err := json.Unmarshal(body, cp); err != nil {
		return nil, fmt.Errorf("%w: decode capture response: %v", domainErrors.ErrCapture, err)
	}
	cp.Raw = body
	span.SetAttributes(attribute.String("paypal.capture_status", string(cp.Status)))
	return cp, nil
}

// Ping fetches a token and discards it.
func (c *Client) Ping(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "paypal.Ping", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, err) }()

	_, err = c.token(ctx)
	return err
}

func (c *Client) token(ctx context.Context) (string, error) {
	start := time.Now()
	tok, err := c.tokens.Token(ctx)
	c.observe("token", start, err)
	return tok, err
}

// call fetches a token, then POSTs payload to path. A nil payload sends an
// empty body. Non-2xx responses become ProcessorErrors of the given kind.
func (c *Client) call(ctx context.Context, operation string, kind error, path string, payload []byte) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := c.post(ctx, operation, kind, path, tok, payload)
	c.observe(operation, start, err)
	return body, err
}

func (c *Client) post(ctx context.Context, operation string, kind error, path, token string, payload []byte) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", kind, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, kind, operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(ctx, kind, operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domainErrors.NewProcessorError(kind, operation, resp.StatusCode, string(body))
	}
	return body, nil
}

// transportError classifies a failed round trip. When the caller's context
// is done the caller gave up, so the failure is not reported as a
// ProcessorError and never counts as a processor outage.
func transportError(ctx context.Context, kind error, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", kind, operation, ctxErr)
	}
	return domainErrors.WrapProcessorError(kind, operation, err)
}

func (c *Client) observe(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case domainErrors.IsOutage(err):
		outcome = "error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "rejected"
	}
	c.metrics.ProcessorRequestsTotal.WithLabelValues(operation, outcome).Inc()
	c.metrics.ProcessorRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
