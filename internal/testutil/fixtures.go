package testutil

import (
	"encoding/json"

	"github.com/cassiomorais/paypal-relay/internal/domain/order"
)

const (
	TestOrderID   = "5O190127TN364715T"
	TestCaptureID = "3C679366HH908993F"
	TestPayerID   = "QYR5Z8XDVJNXQ"
)

// NewTestOrder returns a freshly created order with an approve link and its raw body.
func NewTestOrder(id string) *order.Order {
	o := &order.Order{
		ID:     id,
		Status: order.StatusCreated,
		Intent: order.IntentCapture,
		Links: []order.Link{
			{Href: "https://api-m.sandbox.paypal.com/v2/checkout/orders/" + id, Rel: "self", Method: "GET"},
			{Href: "https://www.sandbox.paypal.com/checkoutnow?token=" + id, Rel: order.RelApprove, Method: "GET"},
		},
	}
	o.Raw, _ = json.Marshal(o)
	return o
}

// NewTestCapture returns a completed capture of value in currency, paid by John Doe.
func NewTestCapture(orderID, captureID, value, currency string) *order.Capture {
	c := &order.Capture{
		ID:     orderID,
		Status: order.StatusCompleted,
		Payer: &order.Payer{
			PayerID:      TestPayerID,
			EmailAddress: "customer@example.com",
			Name:         order.Name{GivenName: "John", Surname: "Doe"},
		},
		PurchaseUnits: []order.PurchaseUnit{{
			ReferenceID: "default",
			Payments: &order.Payments{Captures: []order.CaptureDetail{{
				ID:     captureID,
				Status: order.StatusCompleted,
				Amount: order.Money{CurrencyCode: currency, Value: value},
			}}},
		}},
	}
	c.Raw, _ = json.Marshal(c)
	return c
}

// NewBareCapture returns a completed capture without purchase unit details.
func NewBareCapture(orderID string) *order.Capture {
	c := &order.Capture{ID: orderID, Status: order.StatusCompleted}
	c.Raw, _ = json.Marshal(c)
	return c
}
