package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.UnitOfWork {
		return New()
	})
}

func TestCommitRejectsInterleavedBalanceWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerBalances().Insert(ctx, &sellerdomain.SellerBalance{
			TerritoryID: 1, SellerID: 2, Currency: "USD", Version: 1, UpdatedAt: now,
		})
	}))

	err := s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balance, err := repos.SellerBalances().Find(ctx, 1, 2)
		require.NoError(t, err)
		require.NoError(t, balance.Credit(100, now))
		require.NoError(t, repos.SellerBalances().Update(ctx, balance))

		// a second unit of work commits first
		require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			other, err := repos.SellerBalances().Find(ctx, 1, 2)
			require.NoError(t, err)
			require.NoError(t, other.Credit(50, now))
			return repos.SellerBalances().Update(ctx, other)
		}))
		return nil
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balance, err := repos.SellerBalances().Find(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(50), balance.PendingAmount)
		assert.Equal(t, int64(2), balance.Version)
		return nil
	}))
}

func TestCommitRejectsInterleavedCheckout(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	txn := func(id snowflake.ID) sellerdomain.SellerTransaction {
		return sellerdomain.SellerTransaction{
			ID: id, CheckoutID: 500, TerritoryID: 1, StoreID: 3, SellerID: 2,
			NetAmount: 10, Currency: "USD", Status: sellerdomain.StatusPending, CreatedAt: now, UpdatedAt: now,
		}
	}

	err := s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		require.NoError(t, repos.SellerTransactions().Insert(ctx, txn(1)))

		require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			return repos.SellerTransactions().Insert(ctx, txn(2))
		}))
		return nil
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestReadsSeeOwnWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balance := &sellerdomain.SellerBalance{TerritoryID: 1, SellerID: 2, Currency: "USD", Version: 1, UpdatedAt: now}
		require.NoError(t, balance.Credit(10, now))
		require.NoError(t, repos.SellerBalances().Insert(ctx, balance))

		again, err := repos.SellerBalances().Find(ctx, 1, 2)
		require.NoError(t, err)
		require.NotNil(t, again)
		require.NoError(t, again.Credit(5, now))
		require.NoError(t, repos.SellerBalances().Update(ctx, again))
		assert.Equal(t, int64(2), again.Version)
		return nil
	}))

	require.NoError(t, s.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balance, err := repos.SellerBalances().Find(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(15), balance.PendingAmount)
		assert.Equal(t, int64(2), balance.Version)
		return nil
	}))
}
