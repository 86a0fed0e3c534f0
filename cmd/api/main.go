package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paypal-relay/internal/bootstrap"
	"github.com/cassiomorais/paypal-relay/internal/controller"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/providers"
	"github.com/cassiomorais/paypal-relay/internal/providers/paypal"
	"github.com/cassiomorais/paypal-relay/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paypal-relay-api", "paypal_relay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, app); err != nil {
		app.Logger.Error().Err(err).Msg("Server stopped with error")
		app.Close(context.Background())
		os.Exit(1)
	}
	app.Close(context.Background())
}

func run(ctx context.Context, app *bootstrap.App) error {
	cfg := app.Config

	// --- Processor ---
	provider := providers.NewBreaker(newProcessor(app), cfg.Breaker, app.Metrics, app.Logger)

	// --- Services ---
	checkout := service.NewCheckoutService(provider, app.Ledger, cfg.Ledger.Driver, app.Metrics, app.Logger)

	// --- Router ---
	router := controller.NewRouter(controller.RouterDeps{
		Checkout:        checkout,
		Provider:        provider,
		ReadinessChecks: app.ReadinessChecks,
		Metrics:         app.Metrics,
		Gatherer:        app.Registry,
		Logger:          app.Logger,
		Server:          cfg.Server,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().
			Str("addr", addr).
			Str("paypal_base_url", cfg.PayPal.BaseURL).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		app.Logger.Info().Msg("Server exited")
		return nil
	})

	return g.Wait()
}

func newProcessor(app *bootstrap.App) providers.OrderProvider {
	cfg := app.Config.PayPal

	if cfg.Mode == config.ModeMock {
		app.Logger.Warn().Msg("Using the in-memory processor; no real payments will be made")
		return providers.NewMockProvider(config.ModeMock, providers.WithCurrency(cfg.Currency))
	}
	if !cfg.HasCredentials() {
		app.Logger.Warn().Msg("PayPal credentials are not set; order requests will fail until they are configured")
	}
	return paypal.NewClient(cfg, paypal.WithMetrics(app.Metrics))
}
