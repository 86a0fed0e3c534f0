package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"
)

const maxRequestBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Lets numeric tags such as gt=0 apply to decimal amounts.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

type errorMapping struct {
	err    error
	status int
	code   string
	msg    string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable", "payment provider is temporarily unavailable"},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", "invalid amount"},
	{domainErrors.ErrMissingOrderID, http.StatusBadRequest, "missing_order_id", "order id is required"},
}

// fieldErrors ties request fields to the sentinel reported for them.
var fieldErrors = map[string]error{
	"amount":  domainErrors.ErrInvalidAmount,
	"orderId": domainErrors.ErrMissingOrderID,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRaw relays a processor response body unchanged.
func writeRaw(w http.ResponseWriter, status int, body []byte, fallback any) {
	if len(body) == 0 {
		writeJSON(w, status, fallback)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// writeError maps err to a status and a static message. Processor details
// are logged and never sent to the client; internalMsg is what the client
// sees for anything unmapped. A validation error tied to a mapped sentinel
// keeps the sentinel's code but carries its own field message.
func writeError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	var validationErr *domainErrors.ValidationError
	isValidation := errors.As(err, &validationErr)

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.msg
			if isValidation {
				msg = validationErr.Error()
			}
			writeJSON(w, m.status, ErrorResponse{Error: msg, Code: m.code})
			return
		}
	}

	if isValidation {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationErr.Error(), Code: "validation_error"})
		return
	}

	event := hlog.FromRequest(r).Error().Err(err)
	var perr *domainErrors.ProcessorError
	if errors.As(err, &perr) {
		event = event.Int("upstream_status", perr.StatusCode)
	}
	event.Msg("request failed")

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: internalMsg, Code: "internal_error"})
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			field := ve[0].Field()
			return domainErrors.WrapValidationError(fieldErrors[field], field, ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
