package memory

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	"github.com/smallbiznis/marketledger/internal/store"
)

type platformBalanceRepo struct{ t *tx }

func (r platformBalanceRepo) Find(ctx context.Context, territoryID snowflake.ID) (*platformdomain.PlatformFinancialBalance, error) {
	var out *platformdomain.PlatformFinancialBalance
	r.t.store.read(func(d *dataset) {
		if balance, ok := r.t.platformBalances.get(d.platformBalances, territoryID); ok {
			out = &balance
		}
	})
	return out, nil
}

func (r platformBalanceRepo) Insert(ctx context.Context, balance *platformdomain.PlatformFinancialBalance) error {
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.platformBalances.get(d.platformBalances, balance.TerritoryID); ok {
			err = store.ErrVersionConflict
			return
		}
		r.t.platformBalances.put(d.platformBalances, balance.TerritoryID, *balance)
	})
	return err
}

func (r platformBalanceRepo) Update(ctx context.Context, balance *platformdomain.PlatformFinancialBalance) error {
	var err error
	r.t.store.read(func(d *dataset) {
		current, ok := r.t.platformBalances.get(d.platformBalances, balance.TerritoryID)
		if !ok || current.Version != balance.Version {
			err = store.ErrVersionConflict
			return
		}
		next := *balance
		next.Version++
		r.t.platformBalances.put(d.platformBalances, balance.TerritoryID, next)
	})
	if err != nil {
		return err
	}
	balance.Version++
	return nil
}

func (r platformBalanceRepo) ListTerritories(ctx context.Context) ([]snowflake.ID, error) {
	var out []snowflake.ID
	r.t.store.read(func(d *dataset) {
		for id := range r.t.platformBalances.merged(d.platformBalances) {
			out = append(out, id)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type revenueRepo struct{ t *tx }

func (r revenueRepo) Insert(ctx context.Context, revenue platformdomain.PlatformRevenueTransaction) error {
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.revenue.get(d.revenue, revenue.CheckoutID); ok {
			err = store.ErrDuplicate
			return
		}
		r.t.revenue.put(d.revenue, revenue.CheckoutID, revenue)
	})
	return err
}

func (r revenueRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]platformdomain.PlatformRevenueTransaction, error) {
	var out []platformdomain.PlatformRevenueTransaction
	r.t.store.read(func(d *dataset) {
		for _, row := range r.t.revenue.merged(d.revenue) {
			if row.TerritoryID == territoryID {
				out = append(out, row)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type expenseRepo struct{ t *tx }

func (r expenseRepo) Insert(ctx context.Context, expense platformdomain.PlatformExpenseTransaction) error {
	key := expense.SellerTransactionID
	if key == 0 {
		key = expense.ID
	}
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.expenses.get(d.expenses, key); ok {
			err = store.ErrDuplicate
			return
		}
		r.t.expenses.put(d.expenses, key, expense)
	})
	return err
}

func (r expenseRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]platformdomain.PlatformExpenseTransaction, error) {
	var out []platformdomain.PlatformExpenseTransaction
	r.t.store.read(func(d *dataset) {
		for _, row := range r.t.expenses.merged(d.expenses) {
			if row.TerritoryID == territoryID {
				out = append(out, row)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
