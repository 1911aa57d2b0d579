// Package ledgertest assembles the ledger services over a store backend with
// a controllable clock for tests.
package ledgertest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/marketledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/marketledger/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	platformservice "github.com/smallbiznis/marketledger/internal/platform/service"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	reconciliationservice "github.com/smallbiznis/marketledger/internal/reconciliation/service"
	"github.com/smallbiznis/marketledger/internal/retry"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	sellerservice "github.com/smallbiznis/marketledger/internal/seller/service"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/internal/store/memory"
	"github.com/smallbiznis/marketledger/internal/store/relational"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

var dbSeq atomic.Int64

type Options struct {
	Tolerance          int64
	PromotionBatchSize int
	MaxAttempts        int
}

// Env is a fully wired set of services sharing one store and clock.
type Env struct {
	Backend        string
	UOW            store.UnitOfWork
	DB             *gorm.DB
	Clock          *clock.FakeClock
	GenID          *snowflake.Node
	Log            *zap.Logger
	Metrics        *obsmetrics.Metrics
	Retrier        *retry.Retrier
	Poster         *ledgerservice.Poster
	Ledger         ledgerdomain.Service
	Platform       *platformservice.Service
	Seller         sellerdomain.Service
	Reconciliation reconciliationdomain.Service
}

// Backends lists the store backends every service test runs against.
func Backends() []string {
	return []string{store.BackendMemory, store.BackendRelational}
}

// ForEachBackend runs fn as a subtest per backend.
func ForEachBackend(t *testing.T, fn func(t *testing.T, env *Env)) {
	t.Helper()
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			fn(t, New(t, backend, Options{}))
		})
	}
}

func New(t *testing.T, backend string, opts Options) *Env {
	t.Helper()

	env := &Env{
		Backend: backend,
		Clock:   clock.NewFakeClock(Epoch),
		Log:     zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)),
		Metrics: obsmetrics.NewNoop(),
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	env.GenID = node

	switch backend {
	case store.BackendMemory:
		env.UOW = memory.New()
	case store.BackendRelational:
		env.DB = OpenSQLite(t)
		env.UOW = relational.New(env.DB)
	default:
		t.Fatalf("unknown backend %q", backend)
	}

	attempts := opts.MaxAttempts
	if attempts == 0 {
		attempts = 50
	}
	env.Retrier = retry.New(retry.Params{
		Log:     env.Log,
		Metrics: env.Metrics,
		Config: retry.Config{
			MaxAttempts: attempts,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  5 * time.Millisecond,
		},
	})
	env.Poster = ledgerservice.NewPoster(env.GenID, env.Clock)

	env.Ledger = ledgerservice.NewService(ledgerservice.Params{
		UOW:        env.UOW,
		Log:        env.Log,
		GenID:      env.GenID,
		Clock:      env.Clock,
		Retrier:    env.Retrier,
		Poster:     env.Poster,
		ObsMetrics: env.Metrics,
	})
	env.Platform = platformservice.NewService(platformservice.Params{
		UOW:        env.UOW,
		Log:        env.Log,
		GenID:      env.GenID,
		Clock:      env.Clock,
		Retrier:    env.Retrier,
		Poster:     env.Poster,
		ObsMetrics: env.Metrics,
	})
	env.Seller = sellerservice.NewService(sellerservice.Params{
		UOW:        env.UOW,
		Log:        env.Log,
		GenID:      env.GenID,
		Clock:      env.Clock,
		Retrier:    env.Retrier,
		Poster:     env.Poster,
		Platform:   env.Platform,
		Config:     sellerservice.Config{PromotionBatchSize: opts.PromotionBatchSize},
		ObsMetrics: env.Metrics,
	})
	env.Reconciliation = reconciliationservice.NewService(reconciliationservice.Params{
		UOW:        env.UOW,
		Log:        env.Log,
		GenID:      env.GenID,
		Clock:      env.Clock,
		Retrier:    env.Retrier,
		Config:     reconciliationservice.Config{Tolerance: opts.Tolerance},
		ObsMetrics: env.Metrics,
	})
	return env
}

// OpenSQLite opens a private in-memory database with the ledger schema.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:ledgertest_%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// One connection serializes relational units of work, so concurrent
	// scenarios here check convergence and uniqueness only. Stale-version
	// writes are covered by the store contract suite and the relational
	// retrier test.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, relational.AutoMigrate(conn))
	return conn
}

// NewID returns a fresh snowflake id from the environment's node.
func (e *Env) NewID() snowflake.ID {
	return e.GenID.Generate()
}
