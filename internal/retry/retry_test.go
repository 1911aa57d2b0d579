package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRetrier(t *testing.T, attempts int) *Retrier {
	t.Helper()
	return New(Params{
		Log: zaptest.NewLogger(t),
		Config: Config{
			MaxAttempts: attempts,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		},
	})
}

func TestDoRetriesConflictsUntilSuccess(t *testing.T) {
	r := newTestRetrier(t, 3)
	calls := 0
	err := r.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update balance: %w", store.ErrVersionConflict)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsExhaustedAfterMaxAttempts(t *testing.T) {
	r := newTestRetrier(t, 3)
	calls := 0
	err := r.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		return store.ErrVersionConflict
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConcurrencyExhausted)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	r := newTestRetrier(t, 5)
	boom := errors.New("boom")
	calls := 0
	err := r.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrConcurrencyExhausted)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	r := New(Params{
		Log:    zaptest.NewLogger(t),
		Config: Config{MaxAttempts: 10, BaseBackoff: time.Second, MaxBackoff: time.Second},
	})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "test.op", func(context.Context) error {
		calls++
		cancel()
		return store.ErrVersionConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, float64(2), cfg.Multiplier)
}

func TestDoReadsSettingsPerCall(t *testing.T) {
	attempts := 2
	r := New(Params{
		Log: zaptest.NewLogger(t),
		Settings: func() Config {
			return Config{MaxAttempts: attempts, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
		},
	})
	conflicting := func(calls *int) func(context.Context) error {
		return func(context.Context) error {
			*calls++
			return store.ErrVersionConflict
		}
	}

	first := 0
	assert.ErrorIs(t, r.Do(context.Background(), "test.op", conflicting(&first)), ErrConcurrencyExhausted)
	assert.Equal(t, 2, first)

	attempts = 4
	second := 0
	assert.ErrorIs(t, r.Do(context.Background(), "test.op", conflicting(&second)), ErrConcurrencyExhausted)
	assert.Equal(t, 4, second)
}
