package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MethodPayPal    = "paypal"
	StatusCompleted = "completed"
)

// Record is one completed transaction. Records are appended once and never
// updated or deleted.
type Record struct {
	ID               uuid.UUID       `json:"-"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	CustomerID       string          `json:"customerId"`
	CustomerName     string          `json:"customerName"`
	Deposit          bool            `json:"deposit"`
	PaymentDate      time.Time       `json:"paymentDate"`
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentStatus    string          `json:"paymentStatus"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	TransactionID    string          `json:"transactionId"`
	OrderID          string          `json:"orderId"`
}

// NewRecord builds a completed PayPal deposit record stamped with now.
func NewRecord(amount decimal.Decimal, currency, customerID, customerName, transactionID, orderID string, now time.Time) (*Record, error) {
	if !amount.IsPositive() {
		return nil, errors.NewValidationError("amount", fmt.Sprintf("must be positive, got %s", amount))
	}
	if transactionID == "" {
		return nil, errors.NewValidationError("transactionId", "is required")
	}
	if currency == "" {
		return nil, errors.NewValidationError("currency", "is required")
	}

	return &Record{
		ID:               uuid.New(),
		Amount:           amount,
		Currency:         currency,
		CustomerID:       customerID,
		CustomerName:     customerName,
		Deposit:          true,
		PaymentDate:      now.UTC(),
		PaymentMethod:    MethodPayPal,
		PaymentStatus:    StatusCompleted,
		RemainingBalance: decimal.Zero,
		TransactionID:    transactionID,
		OrderID:          orderID,
	}, nil
}

// MarshalJSON writes the stored document. Amounts are JSON numbers; the
// amount keeps its two fraction digits.
func (r Record) MarshalJSON() ([]byte, error) {
	type document Record
	return json.Marshal(struct {
		document
		Amount           json.Number `json:"amount"`
		RemainingBalance json.Number `json:"remainingBalance"`
	}{
		document:         document(r),
		Amount:           json.Number(r.Amount.StringFixed(2)),
		RemainingBalance: json.Number(r.RemainingBalance.String()),
	})
}

// Writer appends records to the ledger collection.
type Writer interface {
	Record(ctx context.Context, r *Record) error
}
