package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/paypal-relay/internal/controller"
	"github.com/cassiomorais/paypal-relay/internal/domain/ledger"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paypal-relay/internal/infrastructure/redis"
	"github.com/cassiomorais/paypal-relay/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies shared by the commands.
// Pool and Redis are nil unless the configured ledger driver needs them.
// Metrics and Registry are nil when metrics are disabled.
type App struct {
	Config          *config.Config
	Logger          zerolog.Logger
	Metrics         *observability.Metrics
	Registry        *prometheus.Registry
	Pool            *pgxpool.Pool
	Redis           *redis.Client
	Ledger          ledger.Writer
	ReadinessChecks []controller.ReadinessCheck
	TracerProvider  *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	logger.Info().
		Str("service", serviceName).
		Str("mode", cfg.PayPal.Mode).
		Str("ledger", cfg.Ledger.Driver).
		Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.TracerProvider = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.initMetrics(metricsNamespace)

	if err := app.openLedger(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}

	return app, nil
}

// initMetrics leaves Metrics and Registry nil when metrics are disabled;
// every consumer treats nil as "do not record".
func (a *App) initMetrics(namespace string) {
	if !a.Config.Observability.EnableMetrics {
		a.Logger.Info().Msg("Metrics disabled")
		return
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = observability.NewMetrics(namespace, a.Registry)
}

func (a *App) openLedger(ctx context.Context) error {
	cfg := a.Config

	switch cfg.Ledger.Driver {
	case config.LedgerPostgres:
		if cfg.Database.AutoMigrate {
			if err := postgres.MigrateUp(cfg.Database.MigrationURL()); err != nil {
				return fmt.Errorf("migrate ledger schema: %w", err)
			}
			a.Logger.Info().Msg("Ledger migrations applied")
		}

		pool, err := postgres.NewPool(ctx, &cfg.Database, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.Pool = pool
		a.Ledger = postgres.NewLedgerRepository(pool)
		a.ReadinessChecks = append(a.ReadinessChecks, controller.ReadinessCheck{Name: "postgres", Pinger: postgres.NewPinger(pool)})
		a.Logger.Info().Msg("Connected to PostgreSQL")

	case config.LedgerRedis:
		client, err := infraRedis.NewClient(ctx, &cfg.Redis, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.Redis = client
		stream := infraRedis.NewLedgerStream(client, cfg.Ledger.Stream, cfg.Ledger.MaxLen)
		a.Ledger = stream
		a.ReadinessChecks = append(a.ReadinessChecks, controller.ReadinessCheck{Name: "redis", Pinger: stream})
		a.Logger.Info().Str("stream", stream.Stream()).Msg("Connected to Redis")

	default:
		a.Ledger = ledger.Nop{}
		a.Logger.Warn().Msg("No ledger configured, captured payments will not be recorded")
	}

	return nil
}

// Close releases connections and flushes pending spans.
func (a *App) Close(ctx context.Context) {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if err := observability.Shutdown(ctx, a.TracerProvider); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to flush traces")
	}
}
