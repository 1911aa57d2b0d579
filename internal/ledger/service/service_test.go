package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/smallbiznis/marketledger/internal/ledgertest"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, env *ledgertest.Env, typ ledgerdomain.TransactionType, amount int64) ledgerdomain.FinancialTransaction {
	t.Helper()
	txn, err := env.Ledger.Record(context.Background(), ledgerdomain.RecordRequest{
		Type:        typ,
		TerritoryID: 42,
		Amount:      money.Amount{Value: amount, Currency: "usd"},
		Description: "  manual entry  ",
		Metadata:    map[string]string{"source": "test"},
		ActorID:     "ops",
	})
	require.NoError(t, err)
	return txn
}

func TestRecord(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		txn := record(t, env, ledgerdomain.TypeAdjustment, -250)

		assert.Equal(t, ledgerdomain.StatusPending, txn.Status)
		assert.Equal(t, "USD", txn.Currency)
		assert.Equal(t, "manual entry", txn.Description)

		stored, err := env.Ledger.Get(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(-250), stored.Amount)
		assert.Equal(t, "test", stored.Metadata["source"])
		assert.True(t, stored.CreatedAt.Equal(ledgertest.Epoch))

		history, err := env.Ledger.History(ctx, txn.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Empty(t, history[0].PreviousStatus)
		assert.Equal(t, ledgerdomain.StatusPending, history[0].NewStatus)
		assert.Equal(t, "created", history[0].Reason)
		assert.Equal(t, "ops", history[0].ActorID)
	})
}

func TestRecordValidation(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		base := ledgerdomain.RecordRequest{
			Type:        ledgerdomain.TypeFee,
			TerritoryID: 1,
			Amount:      money.Amount{Value: 100, Currency: "USD"},
		}

		cases := []struct {
			name   string
			mutate func(*ledgerdomain.RecordRequest)
			want   error
		}{
			{"unknown type", func(r *ledgerdomain.RecordRequest) { r.Type = "bonus" }, ledgerdomain.ErrInvalidType},
			{"missing territory", func(r *ledgerdomain.RecordRequest) { r.TerritoryID = 0 }, ledgerdomain.ErrInvalidTerritory},
			{"bad currency", func(r *ledgerdomain.RecordRequest) { r.Amount.Currency = "US" }, ledgerdomain.ErrInvalidCurrency},
			{"wrong sign", func(r *ledgerdomain.RecordRequest) { r.Amount.Value = -100 }, ledgerdomain.ErrInvalidAmount},
			{"zero", func(r *ledgerdomain.RecordRequest) { r.Amount.Value = 0 }, ledgerdomain.ErrInvalidAmount},
			{"half related entity", func(r *ledgerdomain.RecordRequest) {
				r.RelatedEntity = &ledgerdomain.RelatedEntity{ID: 9}
			}, ledgerdomain.ErrInvalidID},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := base
				tc.mutate(&req)
				_, err := env.Ledger.Record(ctx, req)
				assert.ErrorIs(t, err, tc.want)
			})
		}
	})
}

func TestTransitionAppendsOneHistoryRowPerChange(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		txn := record(t, env, ledgerdomain.TypeSaleCredit, 900)

		env.Clock.Advance(1)
		completed, err := env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{
			TransactionID: txn.ID,
			NewStatus:     ledgerdomain.StatusCompleted,
			ActorID:       "ops",
			Reason:        "settled",
		})
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.StatusCompleted, completed.Status)

		env.Clock.Advance(1)
		_, err = env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{
			TransactionID: txn.ID,
			NewStatus:     ledgerdomain.StatusReversed,
			ActorID:       "ops",
			Reason:        "chargeback",
		})
		require.NoError(t, err)

		_, err = env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{
			TransactionID: txn.ID,
			NewStatus:     ledgerdomain.StatusCompleted,
		})
		assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTransition)

		history, err := env.Ledger.History(ctx, txn.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		expected := [][2]ledgerdomain.TransactionStatus{
			{"", ledgerdomain.StatusPending},
			{ledgerdomain.StatusPending, ledgerdomain.StatusCompleted},
			{ledgerdomain.StatusCompleted, ledgerdomain.StatusReversed},
		}
		for i, row := range history {
			assert.Equal(t, expected[i][0], row.PreviousStatus)
			assert.Equal(t, expected[i][1], row.NewStatus)
			assert.Equal(t, txn.ID, row.TransactionID)
		}
		assert.Equal(t, "chargeback", history[2].Reason)
	})
}

func TestTransitionErrors(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()

		_, err := env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{TransactionID: env.NewID(), NewStatus: ledgerdomain.StatusCompleted})
		assert.ErrorIs(t, err, ledgerdomain.ErrNotFound)

		txn := record(t, env, ledgerdomain.TypeSaleCredit, 900)
		_, err = env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{TransactionID: txn.ID, NewStatus: "settled"})
		assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatus)

		_, err = env.Ledger.Get(ctx, env.NewID())
		assert.ErrorIs(t, err, ledgerdomain.ErrNotFound)
		_, err = env.Ledger.History(ctx, 0)
		assert.ErrorIs(t, err, ledgerdomain.ErrInvalidID)
	})
}

func TestTransitionRejectsSellerDrivenEntries(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		territory := env.NewID()
		txn, err := env.Seller.CreateSellerTransaction(ctx, sellerdomain.CreateSellerTransactionRequest{
			CheckoutID:  env.NewID(),
			SellerID:    env.NewID(),
			TerritoryID: territory,
			StoreID:     env.NewID(),
			Gross:       money.Amount{Value: 10000, Currency: "USD"},
			FeeRate:     decimal.RequireFromString("0.10"),
		})
		require.NoError(t, err)

		_, err = env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{
			TransactionID: txn.FinancialTransactionID,
			NewStatus:     ledgerdomain.StatusCompleted,
			ActorID:       "ops",
		})
		assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTransition)

		sale, err := env.Ledger.Get(ctx, txn.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.StatusPending, sale.Status)

		env.Clock.Advance(7 * 24 * time.Hour)
		result, err := env.Seller.PromoteReadyForPayout(ctx, territory, 7*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{txn.ID}, result.Promoted)
		assert.Empty(t, result.Failed)
	})
}

func TestConcurrentTransitionsWriteOneHistoryRow(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		txn := record(t, env, ledgerdomain.TypeSaleCredit, 900)

		const callers = 6
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.Ledger.Transition(ctx, ledgerdomain.TransitionRequest{
					TransactionID: txn.ID,
					NewStatus:     ledgerdomain.StatusCompleted,
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTransition)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		history, err := env.Ledger.History(ctx, txn.ID)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})
}

func TestLinkRelated(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		a := record(t, env, ledgerdomain.TypeSaleCredit, 900)
		b := record(t, env, ledgerdomain.TypeReversal, -900)

		require.NoError(t, env.Ledger.LinkRelated(ctx, a.ID, b.ID))
		require.NoError(t, env.Ledger.LinkRelated(ctx, b.ID, a.ID))

		storedA, err := env.Ledger.Get(ctx, a.ID)
		require.NoError(t, err)
		storedB, err := env.Ledger.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{int64(b.ID)}, ids(storedA))
		assert.Equal(t, []int64{int64(a.ID)}, ids(storedB))

		assert.ErrorIs(t, env.Ledger.LinkRelated(ctx, a.ID, a.ID), ledgerdomain.ErrInvalidLink)
		assert.ErrorIs(t, env.Ledger.LinkRelated(ctx, a.ID, env.NewID()), ledgerdomain.ErrNotFound)
		assert.ErrorIs(t, env.Ledger.LinkRelated(ctx, 0, a.ID), ledgerdomain.ErrInvalidID)
	})
}

func ids(txn ledgerdomain.FinancialTransaction) []int64 {
	out := make([]int64, 0, len(txn.RelatedTransactionIDs))
	for _, id := range txn.RelatedTransactionIDs {
		out = append(out, int64(id))
	}
	return out
}
