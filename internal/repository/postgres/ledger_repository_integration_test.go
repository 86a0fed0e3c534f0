//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("relay"),
		tcpostgres.WithUsername("relay"),
		tcpostgres.WithPassword("relay"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestLedgerRepository_Integration(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, MigrateUp(dsn))
	require.NoError(t, MigrateUp(dsn), "second run must be a no-op")

	pool, err := NewPool(ctx, &config.DatabaseConfig{URL: dsn, MaxConnections: 4, ConnectRetries: 3}, zerolog.Nop())
	require.NoError(t, err)
	defer pool.Close()

	repo := NewLedgerRepository(pool)
	rec := newRecord(t)
	require.NoError(t, repo.Record(ctx, rec))

	var (
		txID     string
		amount   string
		method   string
		customer string
	)
	err = pool.QueryRow(ctx,
		`SELECT transaction_id, document->>'amount', document->>'paymentMethod', document->>'customerId'
		 FROM ledger_payments WHERE id = $1`, rec.ID,
	).Scan(&txID, &amount, &method, &customer)
	require.NoError(t, err)

	assert.Equal(t, "3C679366HH908993F", txID)
	assert.Equal(t, "100.00", amount)
	assert.Equal(t, "paypal", method)
	assert.Equal(t, "QYR5Z8XDVJNXQ", customer)

	require.NoError(t, NewPinger(pool).Ping(ctx))
}
