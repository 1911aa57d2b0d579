package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PlatformFinancialBalance aggregates platform revenue and expenses for a
// territory. NetBalance is always TotalRevenue - TotalExpenses.
type PlatformFinancialBalance struct {
	TerritoryID   snowflake.ID
	TotalRevenue  int64
	TotalExpenses int64
	NetBalance    int64
	Currency      string
	Version       int64
	UpdatedAt     time.Time
}

func (b *PlatformFinancialBalance) AddRevenue(amount int64, now time.Time) {
	b.TotalRevenue += amount
	b.refresh(now)
}

func (b *PlatformFinancialBalance) AddExpense(amount int64, now time.Time) {
	b.TotalExpenses += amount
	b.refresh(now)
}

func (b *PlatformFinancialBalance) refresh(now time.Time) {
	b.NetBalance = b.TotalRevenue - b.TotalExpenses
	b.UpdatedAt = now
}

// PlatformRevenueTransaction records the fee captured from one checkout.
type PlatformRevenueTransaction struct {
	ID                     snowflake.ID
	TerritoryID            snowflake.ID
	CheckoutID             snowflake.ID
	SellerTransactionID    snowflake.ID
	Amount                 int64
	Currency               string
	FinancialTransactionID snowflake.ID
	CreatedAt              time.Time
}

// PlatformExpenseTransaction records one seller earning paid out.
type PlatformExpenseTransaction struct {
	ID                     snowflake.ID
	TerritoryID            snowflake.ID
	SellerTransactionID    snowflake.ID
	Amount                 int64
	Currency               string
	PayoutBatchID          snowflake.ID
	FinancialTransactionID snowflake.ID
	CreatedAt              time.Time
}
