package controller

import "github.com/shopspring/decimal"

// --- Request DTOs ---

// CreateOrderRequest accepts the amount as a JSON number or a numeric string.
type CreateOrderRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

// CaptureOrderRequest is the body form of the capture route.
type CaptureOrderRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// --- Response DTOs ---

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// DiagnosticResponse reports whether a token could be obtained.
type DiagnosticResponse struct {
	Success  bool   `json:"success"`
	HasToken bool   `json:"hasToken,omitempty"`
	Error    string `json:"error,omitempty"`
	Details  string `json:"details,omitempty"`
}
