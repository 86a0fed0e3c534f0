package controller

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/cassiomorais/paypal-relay/internal/service"
	"github.com/rs/zerolog/hlog"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pages = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

type successPage struct {
	OrderID      string
	PayerID      string
	PayerName    string
	CaptureID    string
	Amount       string
	Status       string
	RecordFailed bool
}

// PagesController renders the pages the processor redirects buyers to.
type PagesController struct {
	checkout *service.CheckoutService
}

func NewPagesController(checkout *service.CheckoutService) *PagesController {
	return &PagesController{checkout: checkout}
}

// Success handles GET /success?token=<orderId>&PayerID=<payerId>. It captures
// the order and always answers 200; failures are explained on the page.
func (h *PagesController) Success(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out := h.checkout.CompleteApproval(r.Context(), q.Get("token"), q.Get("PayerID"))

	switch out.Kind {
	case service.OutcomeCaptured:
		page := successPage{
			OrderID:      out.OrderID,
			PayerID:      out.PayerID,
			PayerName:    out.PayerName,
			CaptureID:    out.CaptureID,
			Status:       string(out.Status),
			RecordFailed: out.RecordFailed,
		}
		if out.Amount != nil {
			page.Amount = out.Amount.Display()
		}
		renderPage(w, r, "success.html", page)
	case service.OutcomeCaptureFailed:
		renderPage(w, r, "capture_failed.html", successPage{OrderID: out.OrderID, PayerID: out.PayerID})
	default:
		renderPage(w, r, "approved.html", nil)
	}
}

// Cancel handles GET /cancel. It has no side effects.
func (h *PagesController) Cancel(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "cancel.html", nil)
}

func renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
