// Package retry re-runs units of work that lose an optimistic-concurrency race.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	"github.com/smallbiznis/marketledger/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrConcurrencyExhausted = errors.New("concurrency_exhausted")

// Config controls how conflicting units of work are retried.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
}

// ConfigSource returns the current retry settings. It is read on every Do so
// reloaded settings apply without a restart.
type ConfigSource func() Config

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Multiplier:  2,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaults.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = defaults.MaxBackoff
		if c.MaxBackoff < c.BaseBackoff {
			c.MaxBackoff = c.BaseBackoff
		}
	}
	if c.Multiplier < 1 {
		c.Multiplier = defaults.Multiplier
	}
	return c
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   Config              `optional:"true"`
	Settings ConfigSource        `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Retrier struct {
	cfg      Config
	settings ConfigSource
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
}

func New(p Params) *Retrier {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrier{
		cfg:      p.Config.withDefaults(),
		settings: p.Settings,
		log:      log.Named("retry"),
		metrics:  p.Metrics,
	}
}

func (r *Retrier) config() Config {
	if r.settings != nil {
		return r.settings().withDefaults()
	}
	return r.cfg
}

// Do runs op until it succeeds, fails with anything other than a version
// conflict, or has used MaxAttempts attempts. Exhaustion returns
// ErrConcurrencyExhausted wrapping the last conflict.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	cfg := r.config()
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !store.IsConflict(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.metrics.RecordConcurrencyRetry(ctx, name)
			r.log.Debug("retrying after version conflict",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if store.IsConflict(err) {
		r.metrics.RecordConcurrencyExhausted(ctx, name)
		r.log.Warn("concurrency retries exhausted",
			zap.String("operation", name),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrConcurrencyExhausted, name, err)
	}
	return err
}

func newBackOff(cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseBackoff
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxBackoff
	return b
}
