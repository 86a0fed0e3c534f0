package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/paypal-relay/internal/middleware"
	"github.com/cassiomorais/paypal-relay/internal/providers"
	"github.com/cassiomorais/paypal-relay/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Checkout        *service.CheckoutService
	Provider        providers.OrderProvider
	ReadinessChecks []ReadinessCheck
	// Metrics nil disables request metrics and the /metrics route.
	Metrics *observability.Metrics
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Server   config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	timeout := deps.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.ReadinessChecks...)
	paypalH := NewPayPalController(deps.Checkout, deps.Provider)
	pagesH := NewPagesController(deps.Checkout)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Metrics != nil {
		r.Handle("/metrics", metricsHandler(deps.Gatherer))
	}

	r.Route("/api/paypal", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.Server.RateLimitPerMinute))

		r.Post("/create-order", paypalH.CreateOrder)
		r.Post("/capture-order", paypalH.CaptureOrderFromBody)
		r.Post("/capture-order/{orderId}", paypalH.CaptureOrder)
		if deps.Server.EnableDiagnostics {
			r.Get("/test", paypalH.Diagnostic)
		}
	})

	// Return pages the processor redirects the buyer to.
	r.Get("/success", pagesH.Success)
	r.Get("/cancel", pagesH.Cancel)

	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
