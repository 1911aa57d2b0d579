package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionRepository persists seller transactions. Insert reports a
// duplicate when the checkout already has a transaction; UpdateStatus is a
// compare-and-set on the expected previous status.
type TransactionRepository interface {
	Insert(ctx context.Context, txn SellerTransaction) error
	FindByID(ctx context.Context, id snowflake.ID) (*SellerTransaction, error)
	FindByCheckout(ctx context.Context, checkoutID snowflake.ID) (*SellerTransaction, error)
	UpdateStatus(ctx context.Context, txn SellerTransaction, expected SellerTransactionStatus) error
	ListPendingBefore(ctx context.Context, territoryID snowflake.ID, cutoff time.Time, limit int) ([]SellerTransaction, error)
	ListBySeller(ctx context.Context, territoryID, sellerID snowflake.ID) ([]SellerTransaction, error)
}

// BalanceRepository persists seller balances. Update succeeds only when the
// stored version equals balance.Version and bumps it on success.
type BalanceRepository interface {
	Find(ctx context.Context, territoryID, sellerID snowflake.ID) (*SellerBalance, error)
	Insert(ctx context.Context, balance *SellerBalance) error
	Update(ctx context.Context, balance *SellerBalance) error
	ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]SellerBalance, error)
}
