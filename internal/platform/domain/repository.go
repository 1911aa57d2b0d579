package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// BalanceRepository follows the same version contract as seller balances.
type BalanceRepository interface {
	Find(ctx context.Context, territoryID snowflake.ID) (*PlatformFinancialBalance, error)
	Insert(ctx context.Context, balance *PlatformFinancialBalance) error
	Update(ctx context.Context, balance *PlatformFinancialBalance) error
	ListTerritories(ctx context.Context) ([]snowflake.ID, error)
}

// RevenueRepository is unique on checkout.
type RevenueRepository interface {
	Insert(ctx context.Context, revenue PlatformRevenueTransaction) error
	ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]PlatformRevenueTransaction, error)
}

// ExpenseRepository is unique on seller transaction.
type ExpenseRepository interface {
	Insert(ctx context.Context, expense PlatformExpenseTransaction) error
	ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]PlatformExpenseTransaction, error)
}
