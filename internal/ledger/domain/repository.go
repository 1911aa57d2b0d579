package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SumFilter selects the entries folded into a settlement total. The window
// is half-open: From <= created_at < To.
type SumFilter struct {
	TerritoryID snowflake.ID
	Currency    string
	Types       []TransactionType
	Status      TransactionStatus
	From        time.Time
	To          time.Time
}

// Repository persists financial transactions inside a unit of work.
// UpdateStatus is a compare-and-set on expected and reports a version
// conflict when the stored status has moved on.
type Repository interface {
	Insert(ctx context.Context, txn FinancialTransaction) error
	FindByID(ctx context.Context, id snowflake.ID) (*FinancialTransaction, error)
	UpdateStatus(ctx context.Context, txn FinancialTransaction, expected TransactionStatus) error
	AddLink(ctx context.Context, id, relatedID snowflake.ID) error
	AppendHistory(ctx context.Context, history TransactionStatusHistory) error
	ListHistory(ctx context.Context, transactionID snowflake.ID) ([]TransactionStatusHistory, error)
	Sum(ctx context.Context, filter SumFilter) (int64, error)
}
