// Package relational is the gorm adapter of the store contract. Balance
// and record writes are guarded by their version column; unique indexes
// guard checkout, expense and reconciliation-day identity.
package relational

import (
	"context"
	"errors"
	"fmt"

	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/pkg/db"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// AutoMigrate creates the relational layout from the persistence models.
// Postgres deployments use the versioned SQL migrations instead.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &repositories{db: tx})
	})
	return classify(err)
}

// classify maps driver failures that escaped a repository onto the store
// contract.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrDuplicate):
		return err
	case db.IsSerializationErr(err):
		return fmt.Errorf("%w: %w", store.ErrVersionConflict, err)
	case db.IsDuplicateKeyErr(err):
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	default:
		return err
	}
}

type repositories struct {
	db *gorm.DB
}

func (r *repositories) Transactions() ledgerdomain.Repository { return ledgerRepo{db: r.db} }
func (r *repositories) SellerTransactions() sellerdomain.TransactionRepository {
	return sellerTxnRepo{db: r.db}
}
func (r *repositories) SellerBalances() sellerdomain.BalanceRepository {
	return sellerBalanceRepo{db: r.db}
}
func (r *repositories) PlatformBalances() platformdomain.BalanceRepository {
	return platformBalanceRepo{db: r.db}
}
func (r *repositories) PlatformRevenue() platformdomain.RevenueRepository {
	return revenueRepo{db: r.db}
}
func (r *repositories) PlatformExpenses() platformdomain.ExpenseRepository {
	return expenseRepo{db: r.db}
}
func (r *repositories) Reconciliations() reconciliationdomain.Repository {
	return reconciliationRepo{db: r.db}
}

// insertErr maps a failed insert onto the store contract.
func insertErr(err error, onDuplicate error) error {
	if err == nil {
		return nil
	}
	if db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %w", onDuplicate, err)
	}
	return classify(err)
}
