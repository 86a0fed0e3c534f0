package order

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Intent is the order intent sent on creation. Only capture is used.
type Intent string

const IntentCapture Intent = "CAPTURE"

// Status is a processor-defined order or capture status. The relay never sets
// it; it only reports what the processor returned.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusCompleted Status = "COMPLETED"
)

// Link rels used by the processor for the buyer approval redirect.
const (
	RelApprove     = "approve"
	RelPayerAction = "payer-action"
)

// Money is a currency code and a decimal string value with exactly two fraction digits.
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// NewMoney formats amount with two fraction digits, rounding half away from zero.
func NewMoney(currency string, amount decimal.Decimal) Money {
	return Money{CurrencyCode: currency, Value: FormatAmount(amount)}
}

// FormatAmount renders amount the way the processor expects it: "10" -> "10.00".
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Decimal parses Value. An unparsable value yields zero and false.
func (m Money) Decimal() (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(m.Value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Display renders the amount as "PHP 100.00".
func (m Money) Display() string {
	return m.CurrencyCode + " " + m.Value
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// Order is the processor's order representation. Raw keeps the response body
// exactly as received so it can be relayed to clients unchanged.
type Order struct {
	ID            string          `json:"id"`
	Status        Status          `json:"status"`
	Intent        Intent          `json:"intent,omitempty"`
	Links         []Link          `json:"links,omitempty"`
	PurchaseUnits []PurchaseUnit  `json:"purchase_units,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// ApprovalURL returns the link the buyer must be redirected to.
func (o *Order) ApprovalURL() (string, bool) {
	for _, l := range o.Links {
		if l.Rel == RelApprove || l.Rel == RelPayerAction {
			return l.Href, true
		}
	}
	return "", false
}

type PurchaseUnit struct {
	ReferenceID string    `json:"reference_id,omitempty"`
	Amount      *Money    `json:"amount,omitempty"`
	Payments    *Payments `json:"payments,omitempty"`
}

type Payments struct {
	Captures []CaptureDetail `json:"captures,omitempty"`
}

// CaptureDetail is one funds capture inside a purchase unit.
type CaptureDetail struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Amount Money  `json:"amount"`
}

type Name struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

// Full joins given name and surname with a single space.
func (n Name) Full() string {
	switch {
	case n.GivenName == "":
		return n.Surname
	case n.Surname == "":
		return n.GivenName
	default:
		return n.GivenName + " " + n.Surname
	}
}

type Payer struct {
	PayerID      string `json:"payer_id,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	Name         Name   `json:"name"`
}

// Capture is the processor's response to an order capture request.
type Capture struct {
	ID            string          `json:"id"`
	Status        Status          `json:"status"`
	Payer         *Payer          `json:"payer,omitempty"`
	PurchaseUnits []PurchaseUnit  `json:"purchase_units,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// FirstCapture returns purchase_units[0].payments.captures[0].
func (c *Capture) FirstCapture() (CaptureDetail, bool) {
	if len(c.PurchaseUnits) == 0 {
		return CaptureDetail{}, false
	}
	p := c.PurchaseUnits[0].Payments
	if p == nil || len(p.Captures) == 0 {
		return CaptureDetail{}, false
	}
	return p.Captures[0], true
}

// ApplicationContext controls the buyer experience on the processor's approval pages.
type ApplicationContext struct {
	ReturnURL   string `json:"return_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
	BrandName   string `json:"brand_name,omitempty"`
	LandingPage string `json:"landing_page,omitempty"`
	UserAction  string `json:"user_action,omitempty"`
}

// CreateRequest is the order creation body.
type CreateRequest struct {
	Intent             Intent              `json:"intent"`
	PurchaseUnits      []CreateUnit        `json:"purchase_units"`
	ApplicationContext *ApplicationContext `json:"application_context,omitempty"`
}

type CreateUnit struct {
	Amount Money `json:"amount"`
}

// NewCreateRequest builds a capture-intent order with a single purchase unit.
func NewCreateRequest(currency string, amount decimal.Decimal, appCtx *ApplicationContext) CreateRequest {
	return CreateRequest{
		Intent:             IntentCapture,
		PurchaseUnits:      []CreateUnit{{Amount: NewMoney(currency, amount)}},
		ApplicationContext: appCtx,
	}
}
