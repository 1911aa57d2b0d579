// Package store defines the persistence contract shared by the in-memory
// and relational adapters.
package store

import (
	"context"
	"errors"

	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
)

var (
	// ErrVersionConflict means a guarded write lost a race. Callers retry.
	ErrVersionConflict = errors.New("version_conflict")
	// ErrDuplicate means a unique key other than a balance key was taken.
	ErrDuplicate = errors.New("duplicate")
)

const (
	BackendMemory     = "memory"
	BackendRelational = "relational"
)

// Repositories is the set of repositories bound to one unit of work.
type Repositories interface {
	Transactions() ledgerdomain.Repository
	SellerTransactions() sellerdomain.TransactionRepository
	SellerBalances() sellerdomain.BalanceRepository
	PlatformBalances() platformdomain.BalanceRepository
	PlatformRevenue() platformdomain.RevenueRepository
	PlatformExpenses() platformdomain.ExpenseRepository
	Reconciliations() reconciliationdomain.Repository
}

// UnitOfWork runs fn atomically. Writes made through repos become visible
// to others only if fn returns nil and every guarded write still holds at
// commit; otherwise nothing is applied.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// IsConflict reports whether err is a retryable version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
