// Package storetest is the behavioural suite every store adapter must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.UnitOfWork

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// Run executes the whole suite against the adapter built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, uow store.UnitOfWork)
	}{
		{"CancelledContextSkipsWork", testCancelledContext},
		{"FailedUnitOfWorkRollsBack", testRollback},
		{"TransactionRoundTrip", testTransactionRoundTrip},
		{"TransactionStatusCompareAndSet", testTransactionStatusCAS},
		{"TransactionLinksAreIdempotent", testLinks},
		{"HistoryIsOrdered", testHistory},
		{"SumHonoursFilter", testSum},
		{"SellerTransactionUniqueCheckout", testSellerTransactionUnique},
		{"SellerTransactionStatusCompareAndSet", testSellerTransactionCAS},
		{"ListPendingBefore", testListPendingBefore},
		{"SellerBalanceVersioning", testSellerBalanceVersioning},
		{"PlatformBalanceVersioning", testPlatformBalanceVersioning},
		{"RevenueAndExpenseUniqueness", testRevenueExpenseUniqueness},
		{"ReconciliationUniqueDay", testReconciliationUniqueDay},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func node(t *testing.T) *snowflake.Node {
	t.Helper()
	n, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return n
}

func do(t *testing.T, uow store.UnitOfWork, fn func(ctx context.Context, repos store.Repositories) error) error {
	t.Helper()
	return uow.Do(context.Background(), fn)
}

func entry(id, territory snowflake.ID, typ ledgerdomain.TransactionType, status ledgerdomain.TransactionStatus, amount int64, at time.Time) ledgerdomain.FinancialTransaction {
	return ledgerdomain.FinancialTransaction{
		ID:          id,
		TerritoryID: territory,
		Type:        typ,
		Status:      status,
		Amount:      amount,
		Currency:    "USD",
		Description: "test entry",
		Metadata:    map[string]string{"source": "storetest"},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func sellerTxn(id, checkout, territory, seller snowflake.ID, net int64, at time.Time) sellerdomain.SellerTransaction {
	return sellerdomain.SellerTransaction{
		ID:          id,
		CheckoutID:  checkout,
		TerritoryID: territory,
		StoreID:     99,
		SellerID:    seller,
		GrossAmount: net,
		NetAmount:   net,
		Currency:    "USD",
		FeeRate:     "0",
		Status:      sellerdomain.StatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func testCancelledContext(t *testing.T, uow store.UnitOfWork) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func testRollback(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	id := ids.Generate()
	boom := errors.New("boom")

	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		require.NoError(t, repos.Transactions().Insert(ctx, entry(id, 1, ledgerdomain.TypeFee, ledgerdomain.StatusCompleted, 100, baseTime)))
		require.NoError(t, repos.SellerBalances().Insert(ctx, &sellerdomain.SellerBalance{
			TerritoryID: 1, SellerID: 2, PendingAmount: 100, Currency: "USD", Version: 1, UpdatedAt: baseTime,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		txn, err := repos.Transactions().FindByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, txn)
		balance, err := repos.SellerBalances().Find(ctx, 1, 2)
		require.NoError(t, err)
		assert.Nil(t, balance)
		return nil
	}))
}

func testTransactionRoundTrip(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	want := entry(ids.Generate(), 5, ledgerdomain.TypeSaleCredit, ledgerdomain.StatusPending, 9000, baseTime)
	want.RelatedEntityID = 42
	want.RelatedEntityType = ledgerdomain.EntityCheckout

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().Insert(ctx, want)
	}))

	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().Insert(ctx, want)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.Transactions().FindByID(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Amount, got.Amount)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.RelatedEntityID, got.RelatedEntityID)
		assert.Equal(t, want.Metadata, got.Metadata)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

		missing, err := repos.Transactions().FindByID(ctx, ids.Generate())
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	}))
}

func testTransactionStatusCAS(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	txn := entry(ids.Generate(), 5, ledgerdomain.TypeSaleCredit, ledgerdomain.StatusPending, 9000, baseTime)
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().Insert(ctx, txn)
	}))

	completed := txn
	completed.Status = ledgerdomain.StatusCompleted
	completed.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().UpdateStatus(ctx, completed, ledgerdomain.StatusPending)
	}))

	failed := txn
	failed.Status = ledgerdomain.StatusFailed
	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().UpdateStatus(ctx, failed, ledgerdomain.StatusPending)
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.Transactions().FindByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.StatusCompleted, got.Status)
		assert.True(t, completed.UpdatedAt.Equal(got.UpdatedAt))
		return nil
	}))
}

func testLinks(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	a := entry(ids.Generate(), 5, ledgerdomain.TypeSaleCredit, ledgerdomain.StatusPending, 9000, baseTime)
	b := entry(ids.Generate(), 5, ledgerdomain.TypePayout, ledgerdomain.StatusCompleted, -9000, baseTime)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		require.NoError(t, repos.Transactions().Insert(ctx, a))
		require.NoError(t, repos.Transactions().Insert(ctx, b))
		require.NoError(t, repos.Transactions().AddLink(ctx, a.ID, b.ID))
		return repos.Transactions().AddLink(ctx, a.ID, b.ID)
	}))
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().AddLink(ctx, a.ID, b.ID)
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.Transactions().FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{b.ID}, got.RelatedTransactionIDs)
		return nil
	}))
}

func testHistory(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	txnID := ids.Generate()
	rows := []ledgerdomain.TransactionStatusHistory{
		{ID: ids.Generate(), TransactionID: txnID, NewStatus: ledgerdomain.StatusPending, Reason: "created", CreatedAt: baseTime},
		{ID: ids.Generate(), TransactionID: txnID, PreviousStatus: ledgerdomain.StatusPending, NewStatus: ledgerdomain.StatusCompleted, Reason: "retention_elapsed", CreatedAt: baseTime.Add(time.Hour)},
	}
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().AppendHistory(ctx, rows[1])
	}))
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Transactions().AppendHistory(ctx, rows[0])
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.Transactions().ListHistory(ctx, txnID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, rows[0].ID, got[0].ID)
		assert.Equal(t, ledgerdomain.TransactionStatus(""), got[0].PreviousStatus)
		assert.Equal(t, rows[1].ID, got[1].ID)
		assert.Equal(t, "retention_elapsed", got[1].Reason)
		return nil
	}))
}

func testSum(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := []ledgerdomain.FinancialTransaction{
		entry(ids.Generate(), 5, ledgerdomain.TypeSaleCredit, ledgerdomain.StatusCompleted, 9000, day),
		entry(ids.Generate(), 5, ledgerdomain.TypeFee, ledgerdomain.StatusCompleted, 1000, day.Add(12*time.Hour)),
		entry(ids.Generate(), 5, ledgerdomain.TypePayout, ledgerdomain.StatusCompleted, -4000, day.Add(23*time.Hour)),
		// excluded: pending, next day, other territory, other type
		entry(ids.Generate(), 5, ledgerdomain.TypeSaleCredit, ledgerdomain.StatusPending, 7000, day.Add(time.Hour)),
		entry(ids.Generate(), 5, ledgerdomain.TypeFee, ledgerdomain.StatusCompleted, 500, day.Add(24*time.Hour)),
		entry(ids.Generate(), 6, ledgerdomain.TypeFee, ledgerdomain.StatusCompleted, 800, day.Add(time.Hour)),
		entry(ids.Generate(), 5, ledgerdomain.TypeAdjustment, ledgerdomain.StatusCompleted, 300, day.Add(time.Hour)),
	}
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		for _, e := range entries {
			if err := repos.Transactions().Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		total, err := repos.Transactions().Sum(ctx, ledgerdomain.SumFilter{
			TerritoryID: 5,
			Currency:    "USD",
			Types:       []ledgerdomain.TransactionType{ledgerdomain.TypeSaleCredit, ledgerdomain.TypeFee, ledgerdomain.TypePayout},
			Status:      ledgerdomain.StatusCompleted,
			From:        day,
			To:          day.Add(24 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(6000), total)

		empty, err := repos.Transactions().Sum(ctx, ledgerdomain.SumFilter{TerritoryID: 77, Status: ledgerdomain.StatusCompleted})
		require.NoError(t, err)
		assert.Zero(t, empty)
		return nil
	}))
}

func testSellerTransactionUnique(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	first := sellerTxn(ids.Generate(), 1001, 5, 8, 9000, baseTime)
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerTransactions().Insert(ctx, first)
	}))

	second := sellerTxn(ids.Generate(), 1001, 5, 8, 9000, baseTime)
	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerTransactions().Insert(ctx, second)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.SellerTransactions().FindByCheckout(ctx, 1001)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)

		missing, err := repos.SellerTransactions().FindByCheckout(ctx, 2002)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	}))
}

func testSellerTransactionCAS(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	txn := sellerTxn(ids.Generate(), 1001, 5, 8, 9000, baseTime)
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerTransactions().Insert(ctx, txn)
	}))

	readyAt := baseTime.Add(7 * 24 * time.Hour)
	ready := txn
	ready.Status = sellerdomain.StatusReadyForPayout
	ready.ReadyForPayoutAt = &readyAt
	ready.UpdatedAt = readyAt
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerTransactions().UpdateStatus(ctx, ready, sellerdomain.StatusPending)
	}))

	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerTransactions().UpdateStatus(ctx, ready, sellerdomain.StatusPending)
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.SellerTransactions().FindByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, sellerdomain.StatusReadyForPayout, got.Status)
		require.NotNil(t, got.ReadyForPayoutAt)
		assert.True(t, readyAt.Equal(*got.ReadyForPayoutAt))
		assert.Nil(t, got.PaidAt)
		return nil
	}))
}

func testListPendingBefore(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	cutoff := baseTime
	old := sellerTxn(ids.Generate(), 1, 5, 8, 100, cutoff.Add(-2*time.Hour))
	atCutoff := sellerTxn(ids.Generate(), 2, 5, 8, 200, cutoff)
	fresh := sellerTxn(ids.Generate(), 3, 5, 8, 300, cutoff.Add(time.Second))
	otherTerritory := sellerTxn(ids.Generate(), 4, 6, 8, 400, cutoff.Add(-time.Hour))
	reversed := sellerTxn(ids.Generate(), 5, 5, 9, 500, cutoff.Add(-time.Hour))
	reversed.Status = sellerdomain.StatusReversed

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		for _, txn := range []sellerdomain.SellerTransaction{fresh, atCutoff, otherTerritory, reversed, old} {
			if err := repos.SellerTransactions().Insert(ctx, txn); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.SellerTransactions().ListPendingBefore(ctx, 5, cutoff, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, old.ID, got[0].ID)
		assert.Equal(t, atCutoff.ID, got[1].ID)

		limited, err := repos.SellerTransactions().ListPendingBefore(ctx, 5, cutoff, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, old.ID, limited[0].ID)

		bySeller, err := repos.SellerTransactions().ListBySeller(ctx, 5, 8)
		require.NoError(t, err)
		assert.Len(t, bySeller, 3)
		return nil
	}))
}

func testSellerBalanceVersioning(t *testing.T, uow store.UnitOfWork) {
	fresh := sellerdomain.SellerBalance{TerritoryID: 5, SellerID: 8, PendingAmount: 9000, Currency: "USD", Version: 1, UpdatedAt: baseTime}
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerBalances().Insert(ctx, &fresh)
	}))

	dup := fresh
	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerBalances().Insert(ctx, &dup)
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	var stale sellerdomain.SellerBalance
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.SellerBalances().Find(ctx, 5, 8)
		require.NoError(t, err)
		require.NotNil(t, current)
		stale = *current
		return nil
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.SellerBalances().Find(ctx, 5, 8)
		require.NoError(t, err)
		current.PendingAmount += 1000
		current.UpdatedAt = baseTime.Add(time.Minute)
		require.NoError(t, repos.SellerBalances().Update(ctx, current))
		assert.Equal(t, int64(2), current.Version)
		return nil
	}))

	stale.PendingAmount += 500
	err = do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.SellerBalances().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.SellerBalances().Find(ctx, 5, 8)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), current.PendingAmount)
		assert.Equal(t, int64(2), current.Version)

		all, err := repos.SellerBalances().ListByTerritory(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	}))
}

func testPlatformBalanceVersioning(t *testing.T, uow store.UnitOfWork) {
	balance := platformdomain.PlatformFinancialBalance{TerritoryID: 5, Currency: "USD", Version: 1, UpdatedAt: baseTime}
	balance.AddRevenue(1000, baseTime)
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		require.NoError(t, repos.PlatformBalances().Insert(ctx, &balance))
		other := platformdomain.PlatformFinancialBalance{TerritoryID: 3, Currency: "USD", Version: 1, UpdatedAt: baseTime}
		return repos.PlatformBalances().Insert(ctx, &other)
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.PlatformBalances().Find(ctx, 5)
		require.NoError(t, err)
		current.AddExpense(400, baseTime.Add(time.Hour))
		return repos.PlatformBalances().Update(ctx, current)
	}))

	stale := balance
	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.PlatformBalances().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.PlatformBalances().Find(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), current.TotalRevenue)
		assert.Equal(t, int64(400), current.TotalExpenses)
		assert.Equal(t, int64(600), current.NetBalance)

		territories, err := repos.PlatformBalances().ListTerritories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{3, 5}, territories)
		return nil
	}))
}

func testRevenueExpenseUniqueness(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	revenue := platformdomain.PlatformRevenueTransaction{ID: ids.Generate(), TerritoryID: 5, CheckoutID: 1001, Amount: 1000, Currency: "USD", CreatedAt: baseTime}
	expense := platformdomain.PlatformExpenseTransaction{ID: ids.Generate(), TerritoryID: 5, SellerTransactionID: 77, Amount: 9000, Currency: "USD", CreatedAt: baseTime}

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		require.NoError(t, repos.PlatformRevenue().Insert(ctx, revenue))
		return repos.PlatformExpenses().Insert(ctx, expense)
	}))

	dupRevenue := revenue
	dupRevenue.ID = ids.Generate()
	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.PlatformRevenue().Insert(ctx, dupRevenue)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	dupExpense := expense
	dupExpense.ID = ids.Generate()
	err = do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.PlatformExpenses().Insert(ctx, dupExpense)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// expenses without a seller transaction are not keyed on it
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		for i := 0; i < 2; i++ {
			manual := platformdomain.PlatformExpenseTransaction{ID: ids.Generate(), TerritoryID: 5, Amount: 50, Currency: "USD", CreatedAt: baseTime.Add(time.Minute)}
			if err := repos.PlatformExpenses().Insert(ctx, manual); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		revenues, err := repos.PlatformRevenue().ListByTerritory(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, revenues, 1)
		expenses, err := repos.PlatformExpenses().ListByTerritory(ctx, 5)
		require.NoError(t, err)
		require.Len(t, expenses, 3)
		assert.Equal(t, expense.ID, expenses[0].ID)
		assert.Equal(t, snowflake.ID(77), expenses[0].SellerTransactionID)
		return nil
	}))
}

func testReconciliationUniqueDay(t *testing.T, uow store.UnitOfWork) {
	ids := node(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	record := reconciliationdomain.ReconciliationRecord{
		ID:                 ids.Generate(),
		TerritoryID:        5,
		ReconciliationDate: day,
		Currency:           "USD",
		Version:            1,
		CreatedAt:          baseTime,
		UpdatedAt:          baseTime,
	}
	record.Compare(50000, 49000, 0)
	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Reconciliations().Insert(ctx, record)
	}))

	dup := record
	dup.ID = ids.Generate()
	err := do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Reconciliations().Insert(ctx, dup)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		got, err := repos.Reconciliations().FindByDate(ctx, 5, day.Add(15*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, record.ID, got.ID)
		assert.Equal(t, int64(-1000), got.Difference)
		assert.Equal(t, reconciliationdomain.StatusDiscrepancy, got.Status)
		assert.True(t, day.Equal(got.ReconciliationDate))

		got.Status = reconciliationdomain.StatusResolved
		got.UpdatedAt = baseTime.Add(time.Hour)
		require.NoError(t, repos.Reconciliations().Update(ctx, got))
		assert.Equal(t, int64(2), got.Version)
		return nil
	}))

	stale := record
	err = do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		return repos.Reconciliations().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, do(t, uow, func(ctx context.Context, repos store.Repositories) error {
		all, err := repos.Reconciliations().ListByTerritory(ctx, 5)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, reconciliationdomain.StatusResolved, all[0].Status)

		missing, err := repos.Reconciliations().FindByID(ctx, ids.Generate())
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	}))
}
