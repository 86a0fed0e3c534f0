package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts uint) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []uint
	cfg := fastConfig(5)
	cfg.OnRetry = func(n uint, err error) { retried = append(retried, n) }

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, len(retried), 2)
	assert.Equal(t, uint(0), retried[0])
}

func TestDo_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("down")
	})

	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(5), func() error {
		calls++
		return errors.New("down")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
