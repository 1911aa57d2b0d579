package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/apperror"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/smallbiznis/marketledger/internal/ledgertest"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	"github.com/smallbiznis/marketledger/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(v int64) money.Amount {
	return money.Amount{Value: v, Currency: "USD"}
}

func TestRecordRevenue(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		territory := env.NewID()
		checkout := env.NewID()

		revenue, err := env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{
			TerritoryID: territory,
			CheckoutID:  checkout,
			Amount:      usd(700),
		})
		require.NoError(t, err)
		assert.NotZero(t, revenue.FinancialTransactionID)

		entry, err := env.Ledger.Get(ctx, revenue.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.TypeFee, entry.Type)
		assert.Equal(t, int64(700), entry.Amount)
		assert.Equal(t, checkout, entry.RelatedEntityID)

		_, err = env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{
			TerritoryID: territory,
			CheckoutID:  checkout,
			Amount:      usd(700),
		})
		assert.ErrorIs(t, err, platformdomain.ErrDuplicateRevenue)
		assert.Equal(t, apperror.KindDuplicate, apperror.Kind(err))

		balance, err := env.Platform.GetBalance(ctx, territory)
		require.NoError(t, err)
		assert.Equal(t, int64(700), balance.TotalRevenue)
		assert.Equal(t, int64(700), balance.NetBalance)
	})
}

func TestRecordRevenueZeroFeeBooksNoEntry(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		territory := env.NewID()

		revenue, err := env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{
			TerritoryID: territory,
			CheckoutID:  env.NewID(),
			Amount:      usd(0),
		})
		require.NoError(t, err)
		assert.Zero(t, revenue.FinancialTransactionID)

		items, err := env.Platform.ListRevenue(ctx, territory)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}

func TestRecordExpense(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		territory := env.NewID()
		sellerTxn := env.NewID()
		batch := env.NewID()

		_, err := env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{
			TerritoryID: territory,
			CheckoutID:  env.NewID(),
			Amount:      usd(1000),
		})
		require.NoError(t, err)

		expense, err := env.Platform.RecordExpense(ctx, platformdomain.ExpenseRequest{
			TerritoryID:         territory,
			SellerTransactionID: sellerTxn,
			PayoutBatchID:       batch,
			Amount:              usd(400),
		})
		require.NoError(t, err)
		require.NotZero(t, expense.FinancialTransactionID)

		entry, err := env.Ledger.Get(ctx, expense.FinancialTransactionID)
		require.NoError(t, err)
		assert.Equal(t, ledgerdomain.TypePayout, entry.Type)
		assert.Equal(t, int64(-400), entry.Amount)
		assert.Equal(t, batch, entry.RelatedEntityID)

		_, err = env.Platform.RecordExpense(ctx, platformdomain.ExpenseRequest{
			TerritoryID:         territory,
			SellerTransactionID: sellerTxn,
			Amount:              usd(400),
		})
		assert.ErrorIs(t, err, platformdomain.ErrDuplicateExpense)

		balance, err := env.Platform.GetBalance(ctx, territory)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), balance.TotalRevenue)
		assert.Equal(t, int64(400), balance.TotalExpenses)
		assert.Equal(t, int64(600), balance.NetBalance)

		expenses, err := env.Platform.ListExpenses(ctx, territory)
		require.NoError(t, err)
		assert.Len(t, expenses, 1)
	})
}

func TestPlatformValidation(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		territory := env.NewID()

		_, err := env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{CheckoutID: 1, Amount: usd(1)})
		assert.ErrorIs(t, err, platformdomain.ErrInvalidTerritory)
		_, err = env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{TerritoryID: territory, Amount: usd(1)})
		assert.ErrorIs(t, err, platformdomain.ErrInvalidReference)
		_, err = env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{TerritoryID: territory, CheckoutID: 1, Amount: usd(-1)})
		assert.ErrorIs(t, err, platformdomain.ErrInvalidAmount)
		_, err = env.Platform.RecordExpense(ctx, platformdomain.ExpenseRequest{TerritoryID: territory, Amount: usd(1)})
		assert.ErrorIs(t, err, platformdomain.ErrInvalidReference)

		_, err = env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{TerritoryID: territory, CheckoutID: 1, Amount: usd(5)})
		require.NoError(t, err)
		_, err = env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{
			TerritoryID: territory,
			CheckoutID:  2,
			Amount:      money.Amount{Value: 5, Currency: "EUR"},
		})
		assert.ErrorIs(t, err, money.ErrCurrencyMismatch)

		_, err = env.Platform.GetBalance(ctx, env.NewID())
		assert.ErrorIs(t, err, platformdomain.ErrBalanceNotFound)
	})
}

func TestListTerritories(t *testing.T) {
	ledgertest.ForEachBackend(t, func(t *testing.T, env *ledgertest.Env) {
		ctx := context.Background()
		territories := []snowflake.ID{env.NewID(), env.NewID(), env.NewID()}
		for i := len(territories) - 1; i >= 0; i-- {
			_, err := env.Platform.RecordRevenue(ctx, platformdomain.RevenueRequest{
				TerritoryID: territories[i],
				CheckoutID:  env.NewID(),
				Amount:      usd(10),
			})
			require.NoError(t, err)
		}

		got, err := env.Platform.ListTerritories(ctx)
		require.NoError(t, err)
		assert.Equal(t, territories, got)
	})
}
