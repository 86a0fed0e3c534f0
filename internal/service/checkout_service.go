package service

import (
	"context"
	"errors"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/ledger"
	"github.com/cassiomorais/paypal-relay/internal/domain/order"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	"github.com/cassiomorais/paypal-relay/internal/providers"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OutcomeKind says which page the buyer sees after returning from approval.
type OutcomeKind int

const (
	// OutcomeNoOrder means the redirect carried no order id; nothing was captured.
	OutcomeNoOrder OutcomeKind = iota
	OutcomeCaptured
	// OutcomeCaptureFailed means the buyer approved but the capture call failed.
	OutcomeCaptureFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoOrder:
		return "no_order"
	case OutcomeCaptured:
		return "captured"
	case OutcomeCaptureFailed:
		return "capture_failed"
	default:
		return "unknown"
	}
}

// ApprovalOutcome is what the success page renders.
type ApprovalOutcome struct {
	Kind      OutcomeKind
	OrderID   string
	PayerID   string
	PayerName string
	Status    order.Status

	// Set only when the capture response carried capture details.
	CaptureID string
	Amount    *order.Money

	Recorded     bool
	RecordFailed bool
	Err          error
}

// CheckoutService drives orders through the processor and records completed
// captures in the ledger.
type CheckoutService struct {
	provider     providers.OrderProvider
	ledger       ledger.Writer
	ledgerDriver string
	metrics      *observability.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

// NewCheckoutService creates a CheckoutService. A nil writer discards records;
// metrics may be nil.
func NewCheckoutService(
	provider providers.OrderProvider,
	writer ledger.Writer,
	ledgerDriver string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	if writer == nil {
		writer = ledger.Nop{}
	}
	return &CheckoutService{
		provider:     provider,
		ledger:       writer,
		ledgerDriver: ledgerDriver,
		metrics:      metrics,
		logger:       logger.With().Str("component", "checkout").Logger(),
		now:          time.Now,
	}
}

// CreateOrder asks the processor for a new capture-intent order.
func (s *CheckoutService) CreateOrder(ctx context.Context, amount decimal.Decimal) (*order.Order, error) {
	o, err := s.provider.CreateOrder(ctx, amount)
	if err != nil {
		s.countOrder("create", "failed")
		s.logFailure(err, "create order failed", func(e *zerolog.Event) {
			e.Str("amount", order.FormatAmount(amount))
		})
		return nil, err
	}

	s.countOrder("create", "created")
	event := s.logger.Info().Str("order_id", o.ID).Str("status", string(o.Status))
	if href, ok := o.ApprovalURL(); ok {
		event = event.Str("approval_url", href)
	}
	event.Msg("order created")
	return o, nil
}

// CaptureOrder captures an approved order. Nothing is written to the ledger.
func (s *CheckoutService) CaptureOrder(ctx context.Context, orderID string) (*order.Capture, error) {
	c, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		s.countOrder("capture", "failed")
		s.logFailure(err, "capture order failed", func(e *zerolog.Event) {
			e.Str("order_id", orderID)
		})
		return nil, err
	}

	s.countOrder("capture", "captured")
	s.logger.Info().Str("order_id", orderID).Str("status", string(c.Status)).Msg("order captured")
	return c, nil
}

// CompleteApproval handles the buyer's return from the approval page:
// capture the order, then record the capture. It never returns an error;
// every failure is reported through the outcome.
func (s *CheckoutService) CompleteApproval(ctx context.Context, orderID, payerID string) *ApprovalOutcome {
	out := &ApprovalOutcome{
		OrderID: strings.TrimSpace(orderID),
		PayerID: strings.TrimSpace(payerID),
	}
	defer func() { s.countApproval(out.Kind) }()

	if out.OrderID == "" {
		out.Kind = OutcomeNoOrder
		return out
	}

	c, err := s.CaptureOrder(ctx, out.OrderID)
	if err != nil {
		out.Kind = OutcomeCaptureFailed
		out.Err = err
		return out
	}

	out.Kind = OutcomeCaptured
	out.Status = c.Status
	if c.Payer != nil {
		if c.Payer.PayerID != "" {
			out.PayerID = c.Payer.PayerID
		}
		out.PayerName = c.Payer.Name.Full()
	}

	detail, ok := c.FirstCapture()
	if !ok {
		s.logger.Warn().Str("order_id", out.OrderID).Msg("capture response has no capture details, skipping ledger record")
		return out
	}
	out.CaptureID = detail.ID
	amount := detail.Amount
	out.Amount = &amount

	if err := s.record(ctx, out, detail); err != nil {
		out.RecordFailed = true
		s.logger.Error().Err(err).
			Str("order_id", out.OrderID).
			Str("capture_id", detail.ID).
			Msg("captured payment could not be recorded")
		return out
	}
	out.Recorded = true
	return out
}

func (s *CheckoutService) record(ctx context.Context, out *ApprovalOutcome, detail order.CaptureDetail) error {
	value, ok := detail.Amount.Decimal()
	if !ok {
		s.countLedger("failed")
		return domainErrors.NewValidationError("amount", "capture amount is not a number: "+detail.Amount.Value)
	}

	rec, err := ledger.NewRecord(value, detail.Amount.CurrencyCode, out.PayerID, out.PayerName, detail.ID, out.OrderID, s.now())
	if err != nil {
		s.countLedger("failed")
		return err
	}

	start := time.Now()
	err = s.ledger.Record(ctx, rec)
	if s.metrics != nil {
		s.metrics.LedgerWriteLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.countLedger("failed")
		return err
	}

	s.countLedger("ok")
	s.logger.Debug().
		Str("driver", s.ledgerDriver).
		Str("transaction_id", rec.TransactionID).
		Msg("ledger record written")
	return nil
}

// logFailure logs processor failures with the upstream body, which is never
// returned to clients.
func (s *CheckoutService) logFailure(err error, msg string, fields func(*zerolog.Event)) {
	var ve *domainErrors.ValidationError
	event := s.logger.Error().Err(err)
	if errors.Is(err, domainErrors.ErrProviderUnavailable) || errors.As(err, &ve) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		event = s.logger.Warn().Err(err)
	}
	var perr *domainErrors.ProcessorError
	if errors.As(err, &perr) {
		event = event.Int("upstream_status", perr.StatusCode).Str("upstream_body", perr.Body)
	}
	fields(event)
	event.Msg(msg)
}

func (s *CheckoutService) countOrder(operation, status string) {
	if s.metrics != nil {
		s.metrics.OrdersTotal.WithLabelValues(operation, status).Inc()
	}
}

func (s *CheckoutService) countApproval(kind OutcomeKind) {
	if s.metrics != nil {
		s.metrics.ApprovalsTotal.WithLabelValues(kind.String()).Inc()
	}
}

func (s *CheckoutService) countLedger(result string) {
	if s.metrics != nil {
		s.metrics.LedgerWritesTotal.WithLabelValues(s.ledgerDriver, result).Inc()
	}
}
