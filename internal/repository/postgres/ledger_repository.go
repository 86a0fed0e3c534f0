package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/ledger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface the ledger needs. Both *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LedgerRepository appends payment records to the ledger_payments table. The
// record is stored as a JSONB document using the same field names the ledger
// collection has always used.
type LedgerRepository struct {
	db DBTX
}

var _ ledger.Writer = (*LedgerRepository)(nil)

func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Record inserts r. Records are insert-only; duplicates by transaction id are not rejected.
func (r *LedgerRepository) Record(ctx context.Context, rec *ledger.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", domainErrors.ErrLedgerWrite, err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO ledger_payments (id, transaction_id, order_id, document, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.TransactionID, rec.OrderID, doc, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert ledger payment: %w", domainErrors.ErrLedgerWrite, err)
	}
	return nil
}

// Pinger reports whether the ledger database is reachable.
type Pinger struct {
	pool *pgxpool.Pool
}

func NewPinger(pool *pgxpool.Pool) *Pinger {
	return &Pinger{pool: pool}
}

func (p *Pinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
