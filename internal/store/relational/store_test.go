package relational

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/marketledger/internal/retry"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(conn))
	return conn
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.UnitOfWork {
		return New(openTestDB(t))
	})
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(fmt.Errorf("exec: database is locked")), store.ErrVersionConflict)
	assert.ErrorIs(t, classify(fmt.Errorf("UNIQUE constraint failed: seller_transactions.checkout_id")), store.ErrDuplicate)
	assert.ErrorIs(t, classify(store.ErrVersionConflict), store.ErrVersionConflict)

	plain := fmt.Errorf("syntax error")
	assert.Equal(t, plain, classify(plain))
}

func TestUpdateOnlyTouchesMatchingVersion(t *testing.T) {
	conn := openTestDB(t)
	s := New(conn)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		for _, seller := range []snowflake.ID{1, 2} {
			balance := &sellerdomain.SellerBalance{TerritoryID: 9, SellerID: seller, Currency: "USD", Version: 1, UpdatedAt: now}
			if err := repos.SellerBalances().Insert(ctx, balance); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balance, err := repos.SellerBalances().Find(ctx, 9, 1)
		require.NoError(t, err)
		balance.PendingAmount = 700
		return repos.SellerBalances().Update(ctx, balance)
	}))

	var rows []sellerBalanceModel
	require.NoError(t, conn.Order("seller_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(700), rows[0].PendingAmount)
	assert.Equal(t, int64(2), rows[0].Version)
	assert.Equal(t, int64(0), rows[1].PendingAmount)
	assert.Equal(t, int64(1), rows[1].Version)
}

// openTestDB uses one connection, so concurrent callers never interleave
// inside a transaction. The stale write is staged between units of work.
func TestRetrierRecoversFromStaleBalance(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerBalances().Insert(ctx, &sellerdomain.SellerBalance{
			TerritoryID: 3, SellerID: 4, PendingAmount: 9000, Currency: "USD", Version: 1,
		})
	}))

	find := func() sellerdomain.SellerBalance {
		var out sellerdomain.SellerBalance
		require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			current, err := repos.SellerBalances().Find(ctx, 3, 4)
			require.NoError(t, err)
			require.NotNil(t, current)
			out = *current
			return nil
		}))
		return out
	}
	credit := func(balance sellerdomain.SellerBalance, amount int64) error {
		balance.PendingAmount += amount
		return s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			return repos.SellerBalances().Update(ctx, &balance)
		})
	}

	retrier := retry.New(retry.Params{
		Log:    zaptest.NewLogger(t),
		Config: retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	attempts := 0
	err := retrier.Do(ctx, "test.credit", func(context.Context) error {
		attempts++
		snapshot := find()
		if attempts == 1 {
			require.NoError(t, credit(find(), 1000))
		}
		return credit(snapshot, 500)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	final := find()
	assert.Equal(t, int64(10500), final.PendingAmount)
	assert.Equal(t, int64(3), final.Version)
}
