package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/marketledger/internal/apperror"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/smallbiznis/marketledger/internal/ledgertest"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retention = 7 * 24 * time.Hour

type fixture struct {
	env       *ledgertest.Env
	territory snowflake.ID
	seller    snowflake.ID
	store     snowflake.ID
}

func newFixture(env *ledgertest.Env) fixture {
	return fixture{
		env:       env,
		territory: env.NewID(),
		seller:    env.NewID(),
		store:     env.NewID(),
	}
}

func (f fixture) checkout(t *testing.T, gross int64, rate string) sellerdomain.SellerTransaction {
	t.Helper()
	txn, err := f.env.Seller.CreateSellerTransaction(context.Background(), f.request(f.env.NewID(), gross, rate))
	require.NoError(t, err)
	return txn
}

func (f fixture) request(checkoutID snowflake.ID, gross int64, rate string) sellerdomain.CreateSellerTransactionRequest {
	return sellerdomain.CreateSellerTransactionRequest{
		CheckoutID:  checkoutID,
		SellerID:    f.seller,
		TerritoryID: f.territory,
		StoreID:     f.store,
		Gross:       money.Amount{Value: gross, Currency: "USD"},
		FeeRate:     decimal.RequireFromString(rate),
		ActorID:     "checkout",
	}
}

func (f fixture) balance(t *testing.T) sellerdomain.SellerBalance {
	t.Helper()
	balance, err := f.env.Seller.GetBalance(context.Background(), f.territory, f.seller)
	require.NoError(t, err)
	return balance
}

func TestCreateSellerTransactionSplitsFee(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		txn := f.checkout(t, 10000, "0.10")
		assert.Equal(t, int64(10000), txn.GrossAmount)
		assert.Equal(t, int64(1000), txn.FeeAmount)
		assert.Equal(t, int64(9000), txn.NetAmount)
		assert.Equal(t, txn.GrossAmount, txn.FeeAmount+txn.NetAmount)
		assert.Equal(t, sellerdomain.StatusPending, txn.Status)
		assert.Equal(t, "0.1", txn.FeeRate)

		balance := f.balance(t)
		assert.Equal(t, int64(9000), balance.PendingAmount)
		assert.Zero(t, balance.ReadyForPayoutAmount)
		assert.Zero(t, balance.PaidAmount)
		assert.Equal(t, "USD", balance.Currency)

		platform, err := env.Platform.GetBalance(ctx, f.territory)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), platform.TotalRevenue)
		assert.Equal(t, int64(1000), platform.NetBalance)

		sale, err := env.Ledger.Get(ctx, txn.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.TypeSaleCredit, sale.Type)
		assert.Equal(t, ledgerdomain.StatusPending, sale.Status)
		assert.Equal(t, int64(9000), sale.Amount)
		assert.Equal(t, txn.CheckoutID, sale.RelatedEntityID)
		assert.Equal(t, txn.ID.String(), sale.Metadata["seller_transaction_id"])

		revenue, err := env.Platform.ListRevenue(ctx, f.territory)
		require.NoError(t, err)
		require.Len(t, revenue, 1)
		assert.Equal(t, int64(1000), revenue[0].Amount)
		assert.Equal(t, txn.ID, revenue[0].SellerTransactionID)

		fee, err := env.Ledger.Get(ctx, revenue[0].FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.TypeFee, fee.Type)
		assert.Equal(t, ledgerdomain.StatusCompleted, fee.Status)
	})
}

func TestCreateSellerTransactionRoundsHalfUp(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		f := newFixture(env)

		txn := f.checkout(t, 1005, "0.05")
		assert.Equal(t, int64(50), txn.FeeAmount)
		assert.Equal(t, int64(955), txn.NetAmount)

		txn = f.checkout(t, 10, "0.25")
		assert.Equal(t, int64(3), txn.FeeAmount)
		assert.Equal(t, int64(7), txn.NetAmount)

		assert.Equal(t, int64(955+7), f.balance(t).PendingAmount)
	})
}

func TestCreateSellerTransactionFullFeeBooksNoSaleEntry(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		f := newFixture(env)

		txn := f.checkout(t, 500, "1")
		assert.Equal(t, int64(500), txn.FeeAmount)
		assert.Zero(t, txn.NetAmount)
		assert.Zero(t, txn.FinancialTransactionID)
		assert.Zero(t, f.balance(t).PendingAmount)
	})
}

func TestCreateSellerTransactionValidation(t *testing.T) {
	env := ledgertest.New(t, store.BackendMemory, ledgertest.Options{})
	f := newFixture(env)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*sellerdomain.CreateSellerTransactionRequest)
		want   error
	}{
		{"rate above one", func(r *sellerdomain.CreateSellerTransactionRequest) { r.FeeRate = decimal.RequireFromString("1.5") }, sellerdomain.ErrInvalidFeeConfiguration},
		{"negative rate", func(r *sellerdomain.CreateSellerTransactionRequest) { r.FeeRate = decimal.RequireFromString("-0.1") }, sellerdomain.ErrInvalidFeeConfiguration},
		{"zero gross", func(r *sellerdomain.CreateSellerTransactionRequest) { r.Gross.Value = 0 }, sellerdomain.ErrInvalidAmount},
		{"negative gross", func(r *sellerdomain.CreateSellerTransactionRequest) { r.Gross.Value = -10 }, sellerdomain.ErrInvalidAmount},
		{"bad currency", func(r *sellerdomain.CreateSellerTransactionRequest) { r.Gross.Currency = "dollars" }, money.ErrInvalidCurrency},
		{"missing checkout", func(r *sellerdomain.CreateSellerTransactionRequest) { r.CheckoutID = 0 }, sellerdomain.ErrInvalidCheckout},
		{"missing seller", func(r *sellerdomain.CreateSellerTransactionRequest) { r.SellerID = 0 }, sellerdomain.ErrInvalidSeller},
		{"missing territory", func(r *sellerdomain.CreateSellerTransactionRequest) { r.TerritoryID = 0 }, sellerdomain.ErrInvalidTerritory},
		{"missing store", func(r *sellerdomain.CreateSellerTransactionRequest) { r.StoreID = 0 }, sellerdomain.ErrInvalidStore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request(env.NewID(), 1000, "0.10")
			tc.mutate(&req)
			_, err := env.Seller.CreateSellerTransaction(ctx, req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, apperror.KindValidation, apperror.Kind(err))
		})
	}

	_, err := env.Seller.GetBalance(ctx, f.territory, f.seller)
	assert.ErrorIs(t, err, sellerdomain.ErrBalanceNotFound)
}

func TestCreateSellerTransactionRejectsCurrencyChange(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		f := newFixture(env)
		f.checkout(t, 1000, "0.10")

		req := f.request(env.NewID(), 1000, "0.10")
		req.Gross.Currency = "EUR"
		_, err := env.Seller.CreateSellerTransaction(context.Background(), req)
		assert.ErrorIs(t, err, money.ErrCurrencyMismatch)

		_, err = env.Seller.GetTransaction(context.Background(), 0)
		assert.ErrorIs(t, err, sellerdomain.ErrNotFound)
		assert.Equal(t, int64(900), f.balance(t).PendingAmount)
	})
}

func TestCreateSellerTransactionRejectsDuplicateCheckout(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)
		checkoutID := env.NewID()

		_, err := env.Seller.CreateSellerTransaction(ctx, f.request(checkoutID, 2000, "0.10"))
		require.NoError(t, err)

		_, err = env.Seller.CreateSellerTransaction(ctx, f.request(checkoutID, 2000, "0.10"))
		assert.ErrorIs(t, err, sellerdomain.ErrDuplicateCheckout)
		assert.Equal(t, apperror.KindDuplicate, apperror.Kind(err))

		assert.Equal(t, int64(1800), f.balance(t).PendingAmount)
		platform, err := env.Platform.GetBalance(ctx, f.territory)
		require.NoError(t, err)
		assert.Equal(t, int64(200), platform.TotalRevenue)
	})
}

func TestConcurrentDuplicateCheckoutCreatesOneTransaction(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)
		checkoutID := env.NewID()

		const callers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			dupes     int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.Seller.CreateSellerTransaction(ctx, f.request(checkoutID, 3000, "0.10"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case assert.ErrorIs(t, err, sellerdomain.ErrDuplicateCheckout):
					dupes++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, callers-1, dupes)

		statement, err := env.Seller.Statement(ctx, f.territory, f.seller)
		require.NoError(t, err)
		assert.Len(t, statement.Transactions, 1)
		assert.Equal(t, int64(2700), statement.Balance.PendingAmount)

		revenue, err := env.Platform.ListRevenue(ctx, f.territory)
		require.NoError(t, err)
		assert.Len(t, revenue, 1)
	})
}

func TestConcurrentCreditsConverge(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		const (
			callers = 20
			gross   = 2500
			net     = 2250
		)
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.Seller.CreateSellerTransaction(ctx, f.request(env.NewID(), gross, "0.10"))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		balance := f.balance(t)
		assert.Equal(t, int64(callers*net), balance.PendingAmount)

		platform, err := env.Platform.GetBalance(ctx, f.territory)
		require.NoError(t, err)
		assert.Equal(t, int64(callers*(gross-net)), platform.TotalRevenue)

		report, err := env.Seller.AuditBalances(ctx, f.territory)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Checked)
		assert.Empty(t, report.Drifts)
	})
}

func TestPromoteReadyForPayout(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		old := f.checkout(t, 10000, "0.10")
		env.Clock.Advance(retention)
		fresh := f.checkout(t, 4000, "0.10")

		result, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{old.ID}, result.Promoted)
		assert.Empty(t, result.Failed)

		balance := f.balance(t)
		assert.Equal(t, int64(3600), balance.PendingAmount)
		assert.Equal(t, int64(9000), balance.ReadyForPayoutAmount)

		promoted, err := env.Seller.GetTransaction(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, sellerdomain.StatusReadyForPayout, promoted.Status)
		require.NotNil(t, promoted.ReadyForPayoutAt)

		sale, err := env.Ledger.Get(ctx, old.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.StatusCompleted, sale.Status)

		history, err := env.Ledger.History(ctx, old.FinancialTransactionID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, ledgerdomain.StatusPending, history[1].PreviousStatus)
		assert.Equal(t, ledgerdomain.StatusCompleted, history[1].NewStatus)
		assert.Equal(t, "scheduler", history[1].ActorID)
		assert.Equal(t, "retention_elapsed", history[1].Reason)

		untouched, err := env.Seller.GetTransaction(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, sellerdomain.StatusPending, untouched.Status)

		again, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)
		assert.Empty(t, again.Promoted)
	})
}

func TestPromoteReadyForPayoutHonoursBatchSize(t *testing.T) {
	env := ledgertest.New(t, store.BackendMemory, ledgertest.Options{PromotionBatchSize: 2})
	f := newFixture(env)
	for i := 0; i < 5; i++ {
		f.checkout(t, 1000, "0")
	}
	env.Clock.Advance(retention)

	result, err := env.Seller.PromoteReadyForPayout(context.Background(), f.territory, retention)
	require.NoError(t, err)
	assert.Len(t, result.Promoted, 2)
	assert.Equal(t, int64(2000), f.balance(t).ReadyForPayoutAmount)
}

func TestPromoteReadyForPayoutValidation(t *testing.T) {
	env := ledgertest.New(t, store.BackendMemory, ledgertest.Options{})

	_, err := env.Seller.PromoteReadyForPayout(context.Background(), 0, retention)
	assert.ErrorIs(t, err, sellerdomain.ErrInvalidTerritory)

	_, err = env.Seller.PromoteReadyForPayout(context.Background(), env.NewID(), -time.Hour)
	assert.ErrorIs(t, err, sellerdomain.ErrInvalidRetention)
}

func TestPayout(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		txn := f.checkout(t, 10000, "0.10")
		env.Clock.Advance(retention)
		_, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)

		batchID := env.NewID()
		result, err := env.Seller.Payout(ctx, batchID, []snowflake.ID{txn.ID})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		item := result.Items[0]
		assert.Equal(t, sellerdomain.PayoutItemSucceeded, item.Status)
		assert.NotZero(t, item.PayoutTransactionID)
		assert.Equal(t, 1, result.Succeeded())

		balance := f.balance(t)
		assert.Zero(t, balance.PendingAmount)
		assert.Zero(t, balance.ReadyForPayoutAmount)
		assert.Equal(t, int64(9000), balance.PaidAmount)

		paid, err := env.Seller.GetTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, sellerdomain.StatusPaid, paid.Status)
		assert.Equal(t, batchID, paid.PayoutBatchID)
		assert.Equal(t, item.PayoutTransactionID, paid.PayoutTransactionID)
		require.NotNil(t, paid.PaidAt)

		expenses, err := env.Platform.ListExpenses(ctx, f.territory)
		require.NoError(t, err)
		require.Len(t, expenses, 1)
		assert.Equal(t, int64(9000), expenses[0].Amount)
		assert.Equal(t, item.PayoutTransactionID, expenses[0].FinancialTransactionID)

		platform, err := env.Platform.GetBalance(ctx, f.territory)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), platform.TotalRevenue)
		assert.Equal(t, int64(9000), platform.TotalExpenses)
		assert.Equal(t, int64(-8000), platform.NetBalance)

		entry, err := env.Ledger.Get(ctx, item.PayoutTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.TypePayout, entry.Type)
		assert.Equal(t, int64(-9000), entry.Amount)
		assert.True(t, entry.IsRelated(txn.FinancialTransactionID))

		sale, err := env.Ledger.Get(ctx, txn.FinancialTransactionID)
		require.NoError(t, err)
		assert.True(t, sale.IsRelated(entry.ID))

		again, err := env.Seller.Payout(ctx, env.NewID(), []snowflake.ID{txn.ID})
		require.NoError(t, err)
		assert.Equal(t, sellerdomain.PayoutItemFailed, again.Items[0].Status)
		assert.Equal(t, apperror.KindInvalidTransition, again.Items[0].ErrorKind)
	})
}

func TestPayoutReportsPerItemOutcome(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		ready := f.checkout(t, 1000, "0.10")
		env.Clock.Advance(retention)
		_, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)
		pending := f.checkout(t, 2000, "0.10")
		unknown := env.NewID()

		result, err := env.Seller.Payout(ctx, env.NewID(), []snowflake.ID{pending.ID, ready.ID, unknown})
		require.NoError(t, err)
		require.Len(t, result.Items, 3)

		assert.Equal(t, sellerdomain.PayoutItemFailed, result.Items[0].Status)
		assert.Equal(t, apperror.KindInvalidTransition, result.Items[0].ErrorKind)
		assert.Equal(t, sellerdomain.PayoutItemSucceeded, result.Items[1].Status)
		assert.Equal(t, sellerdomain.PayoutItemFailed, result.Items[2].Status)
		assert.Equal(t, apperror.KindNotFound, result.Items[2].ErrorKind)

		balance := f.balance(t)
		assert.Equal(t, int64(1800), balance.PendingAmount)
		assert.Equal(t, int64(900), balance.PaidAmount)
	})
}

func TestPayoutStopsWhenContextCancelled(t *testing.T) {
	env := ledgertest.New(t, store.BackendMemory, ledgertest.Options{})
	f := newFixture(env)
	txn := f.checkout(t, 1000, "0.10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.Seller.Payout(ctx, env.NewID(), []snowflake.ID{txn.ID, env.NewID()})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, sellerdomain.PayoutItemNotAttempted, item.Status)
		assert.Equal(t, apperror.KindCanceled, item.ErrorKind)
	}

	_, err = env.Seller.Payout(context.Background(), 0, nil)
	assert.ErrorIs(t, err, sellerdomain.ErrInvalidBatch)
}

func TestReversePending(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)
		txn := f.checkout(t, 10000, "0.10")

		reversed, err := env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{
			SellerTransactionID: txn.ID,
			Reason:              "chargeback",
			ActorID:             "ops",
		})
		require.NoError(t, err)
		assert.Equal(t, sellerdomain.StatusReversed, reversed.Status)
		assert.Equal(t, "chargeback", reversed.ReversalReason)
		require.NotNil(t, reversed.ReversedAt)
		assert.Zero(t, f.balance(t).Total())

		sale, err := env.Ledger.Get(ctx, txn.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.StatusFailed, sale.Status)
		assert.Zero(t, reversed.ReversalTransactionID)

		history, err := env.Ledger.History(ctx, sale.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "chargeback", history[1].Reason)
		assert.Equal(t, "ops", history[1].ActorID)

		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: txn.ID, Reason: "again"})
		assert.ErrorIs(t, err, sellerdomain.ErrInvalidTransition)
	})
}

func TestReverseReadyForPayout(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)
		txn := f.checkout(t, 5000, "0.10")
		env.Clock.Advance(retention)
		_, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)

		reversed, err := env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: txn.ID, Reason: "refund"})
		require.NoError(t, err)

		balance := f.balance(t)
		assert.Zero(t, balance.ReadyForPayoutAmount)
		assert.Zero(t, balance.Total())

		sale, err := env.Ledger.Get(ctx, txn.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.StatusCompleted, sale.Status)

		reversal, err := env.Ledger.Get(ctx, reversed.ReversalTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.TypeReversal, reversal.Type)
		assert.Equal(t, ledgerdomain.StatusCompleted, reversal.Status)
		assert.Equal(t, int64(-4500), reversal.Amount)
		assert.Equal(t, txn.ID, reversal.RelatedEntityID)
		assert.True(t, reversal.IsRelated(sale.ID))
	})
}

func TestReverseRejectsPaidAndBadInput(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)
		txn := f.checkout(t, 5000, "0.10")
		env.Clock.Advance(retention)
		_, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)
		_, err = env.Seller.Payout(ctx, env.NewID(), []snowflake.ID{txn.ID})
		require.NoError(t, err)

		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: txn.ID, Reason: "late"})
		assert.ErrorIs(t, err, sellerdomain.ErrAlreadyPaid)
		assert.Equal(t, apperror.KindInvalidTransition, apperror.Kind(err))

		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: txn.ID, Reason: "  "})
		assert.ErrorIs(t, err, sellerdomain.ErrInvalidReason)

		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: env.NewID(), Reason: "x"})
		assert.ErrorIs(t, err, sellerdomain.ErrNotFound)

		assert.Equal(t, int64(4500), f.balance(t).PaidAmount)
	})
}

func TestBucketsMatchNonReversedTransactions(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		var early []sellerdomain.SellerTransaction
		for _, gross := range []int64{1000, 2000, 3000, 4000} {
			early = append(early, f.checkout(t, gross, "0.10"))
		}
		env.Clock.Advance(retention)
		late := []sellerdomain.SellerTransaction{f.checkout(t, 5000, "0.10"), f.checkout(t, 6000, "0.10")}

		_, err := env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)

		_, err = env.Seller.Payout(ctx, env.NewID(), []snowflake.ID{early[0].ID, early[1].ID})
		require.NoError(t, err)
		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: early[2].ID, Reason: "fraud"})
		require.NoError(t, err)
		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: late[0].ID, Reason: "cancelled"})
		require.NoError(t, err)

		statement, err := env.Seller.Statement(ctx, f.territory, f.seller)
		require.NoError(t, err)
		require.Len(t, statement.Transactions, 6)

		var live int64
		for _, txn := range statement.Transactions {
			if txn.Status != sellerdomain.StatusReversed {
				live += txn.NetAmount
			}
		}
		assert.Equal(t, live, statement.Balance.Total())
		assert.Equal(t, int64(900+1800), statement.Balance.PaidAmount)
		assert.Equal(t, int64(3600), statement.Balance.ReadyForPayoutAmount)
		assert.Equal(t, int64(5400), statement.Balance.PendingAmount)

		for i := 1; i < len(statement.Transactions); i++ {
			assert.False(t, statement.Transactions[i].CreatedAt.Before(statement.Transactions[i-1].CreatedAt))
		}

		report, err := env.Seller.AuditBalances(ctx, f.territory)
		require.NoError(t, err)
		assert.Empty(t, report.Drifts)
	})
}

func (f fixture) ledgerSum(t *testing.T, status ledgerdomain.TransactionStatus, types ...ledgerdomain.TransactionType) int64 {
	t.Helper()
	var total int64
	err := f.env.UOW.Do(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		var err error
		total, err = repos.Transactions().Sum(ctx, ledgerdomain.SumFilter{
			TerritoryID: f.territory,
			Currency:    "USD",
			Types:       types,
			Status:      status,
		})
		return err
	})
	require.NoError(t, err)
	return total
}

func TestReversalsOffsetLedgerOnce(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)

		pending := f.checkout(t, 10000, "0.10")
		promoted := f.checkout(t, 5000, "0.10")
		paid := f.checkout(t, 2000, "0.10")
		f.checkout(t, 1000, "0.10")

		_, err := env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: pending.ID, Reason: "chargeback"})
		require.NoError(t, err)

		env.Clock.Advance(retention)
		_, err = env.Seller.PromoteReadyForPayout(ctx, f.territory, retention)
		require.NoError(t, err)
		f.checkout(t, 3000, "0.10")

		_, err = env.Seller.Reverse(ctx, sellerdomain.ReverseRequest{SellerTransactionID: promoted.ID, Reason: "refund"})
		require.NoError(t, err)
		result, err := env.Seller.Payout(ctx, env.NewID(), []snowflake.ID{paid.ID})
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded())

		balance := f.balance(t)
		assert.Equal(t, int64(2700), balance.PendingAmount)
		assert.Equal(t, int64(900), balance.ReadyForPayoutAmount)
		assert.Equal(t, int64(1800), balance.PaidAmount)

		settled := f.ledgerSum(t, ledgerdomain.StatusCompleted, ledgerdomain.TypeSaleCredit, ledgerdomain.TypeReversal)
		assert.Equal(t, balance.ReadyForPayoutAmount+balance.PaidAmount, settled)
		assert.Equal(t, balance.PendingAmount, f.ledgerSum(t, ledgerdomain.StatusPending, ledgerdomain.TypeSaleCredit))
	})
}

func TestAuditBalancesReportsDrift(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		f := newFixture(env)
		f.checkout(t, 1000, "0.10")

		err := env.UOW.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			balance, err := repos.SellerBalances().Find(ctx, f.territory, f.seller)
			if err != nil {
				return err
			}
			balance.PendingAmount += 50
			return repos.SellerBalances().Update(ctx, balance)
		})
		require.NoError(t, err)

		report, err := env.Seller.AuditBalances(ctx, f.territory)
		require.NoError(t, err)
		require.Len(t, report.Drifts, 1)
		drift := report.Drifts[0]
		assert.Equal(t, f.seller, drift.SellerID)
		assert.Equal(t, int64(950), drift.Stored.PendingAmount)
		assert.Equal(t, int64(900), drift.Expected.PendingAmount)

		// Audit is read-only.
		assert.Equal(t, int64(950), f.balance(t).PendingAmount)
	})
}
