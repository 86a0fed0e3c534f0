package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/providers"
	"github.com/cassiomorais/paypal-relay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const (
	msgCreateFailed  = "failed to create order"
	msgCaptureFailed = "failed to capture order"
)

// PayPalController serves the JSON API used by client applications.
type PayPalController struct {
	checkout *service.CheckoutService
	provider providers.OrderProvider
}

func NewPayPalController(checkout *service.CheckoutService, provider providers.OrderProvider) *PayPalController {
	return &PayPalController{checkout: checkout, provider: provider}
}

// CreateOrder handles POST /api/paypal/create-order.
func (h *PayPalController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err, msgCreateFailed)
		return
	}

	amount := *req.Amount
	if !amount.Round(2).IsPositive() {
		writeError(w, r, domainErrors.WrapValidationError(domainErrors.ErrInvalidAmount, "amount", "must be at least 0.01"), msgCreateFailed)
		return
	}

	o, err := h.checkout.CreateOrder(r.Context(), amount)
	if err != nil {
		writeError(w, r, err, msgCreateFailed)
		return
	}

	writeRaw(w, http.StatusOK, o.Raw, o)
}

// CaptureOrder handles POST /api/paypal/capture-order/{orderId}.
func (h *PayPalController) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	h.capture(w, r, chi.URLParam(r, "orderId"))
}

// CaptureOrderFromBody handles POST /api/paypal/capture-order with {"orderId": "..."}.
func (h *PayPalController) CaptureOrderFromBody(w http.ResponseWriter, r *http.Request) {
	var req CaptureOrderRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err, msgCaptureFailed)
		return
	}
	h.capture(w, r, req.OrderID)
}

func (h *PayPalController) capture(w http.ResponseWriter, r *http.Request, orderID string) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		writeError(w, r, domainErrors.WrapValidationError(domainErrors.ErrMissingOrderID, "orderId", "is required"), msgCaptureFailed)
		return
	}

	c, err := h.checkout.CaptureOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err, msgCaptureFailed)
		return
	}

	writeRaw(w, http.StatusOK, c.Raw, c)
}

// Diagnostic handles GET /api/paypal/test. It only checks that a token can
// be obtained with the configured credentials.
func (h *PayPalController) Diagnostic(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.Ping(r.Context()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("diagnostic token request failed")
		writeJSON(w, http.StatusInternalServerError, DiagnosticResponse{
			Success: false,
			Error:   "failed to obtain access token",
			Details: diagnosticDetails(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticResponse{Success: true, HasToken: true})
}

// diagnosticDetails classifies a token failure without exposing the upstream body.
func diagnosticDetails(err error) string {
	var perr *domainErrors.ProcessorError
	switch {
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "circuit breaker open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled before the processor answered"
	case errors.As(err, &perr) && perr.StatusCode > 0:
		return fmt.Sprintf("processor responded with status %d", perr.StatusCode)
	case errors.As(err, &perr):
		return "processor unreachable"
	case errors.Is(err, domainErrors.ErrAuth):
		return "credentials missing or token response invalid"
	default:
		return "unexpected error"
	}
}
