package redis

import (
	"context"
	"encoding/json"
	"fmt"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
	"github.com/cassiomorais/paypal-relay/internal/domain/ledger"
	"github.com/redis/go-redis/v9"
)

const DefaultLedgerStream = "ledger:payments"

// LedgerStream appends ledger records to a Redis stream. Each entry carries
// the transaction id, the order id and the JSON record.
type LedgerStream struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

var _ ledger.Writer = (*LedgerStream)(nil)

// NewLedgerStream returns a writer for stream. A positive maxLen trims the
// stream approximately to that many entries.
func NewLedgerStream(client redis.Cmdable, stream string, maxLen int64) *LedgerStream {
	if stream == "" {
		stream = DefaultLedgerStream
	}
	return &LedgerStream{client: client, stream: stream, maxLen: maxLen}
}

func (s *LedgerStream) Record(ctx context.Context, rec *ledger.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", domainErrors.ErrLedgerWrite, err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"record_id":      rec.ID.String(),
			"transaction_id": rec.TransactionID,
			"order_id":       rec.OrderID,
			"document":       string(payload),
			"timestamp":      rec.PaymentDate.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: append to stream %s: %w", domainErrors.ErrLedgerWrite, s.stream, err)
	}
	return nil
}

func (s *LedgerStream) Stream() string { return s.stream }

// Ping reports whether Redis is reachable.
func (s *LedgerStream) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
