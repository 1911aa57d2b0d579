package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/pkg/money"
)

type RevenueRequest struct {
	TerritoryID         snowflake.ID
	CheckoutID          snowflake.ID
	SellerTransactionID snowflake.ID
	Amount              money.Amount
	ActorID             string
}

// ExpenseRequest books a payout expense. When FinancialTransactionID is
// zero a payout entry is booked for the amount.
type ExpenseRequest struct {
	TerritoryID            snowflake.ID
	SellerTransactionID    snowflake.ID
	PayoutBatchID          snowflake.ID
	Amount                 money.Amount
	FinancialTransactionID snowflake.ID
	ActorID                string
}

type Service interface {
	RecordRevenue(ctx context.Context, req RevenueRequest) (PlatformRevenueTransaction, error)
	RecordExpense(ctx context.Context, req ExpenseRequest) (PlatformExpenseTransaction, error)
	GetBalance(ctx context.Context, territoryID snowflake.ID) (PlatformFinancialBalance, error)
	ListTerritories(ctx context.Context) ([]snowflake.ID, error)
	ListRevenue(ctx context.Context, territoryID snowflake.ID) ([]PlatformRevenueTransaction, error)
	ListExpenses(ctx context.Context, territoryID snowflake.ID) ([]PlatformExpenseTransaction, error)
}

var (
	ErrInvalidTerritory = errors.New("invalid_territory")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrDuplicateRevenue = errors.New("duplicate_revenue")
	ErrDuplicateExpense = errors.New("duplicate_expense")
	ErrBalanceNotFound  = errors.New("platform_balance_not_found")
)
