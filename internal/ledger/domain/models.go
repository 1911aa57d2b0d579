package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/pkg/money"
)

// TransactionType tags the monetary event a FinancialTransaction records.
type TransactionType string

const (
	// ======================
	// Seller earnings
	// ======================
	TypeSaleCredit TransactionType = "sale_credit" // net earning credited to a seller
	TypePayout     TransactionType = "payout"      // seller earning disbursed

	// ======================
	// Platform
	// ======================
	TypeFee TransactionType = "fee" // platform fee captured from a checkout

	// ======================
	// Corrections
	// ======================
	TypeRefund     TransactionType = "refund"     // money returned to a buyer
	TypeReversal   TransactionType = "reversal"   // compensates a reversed seller earning
	TypeAdjustment TransactionType = "adjustment" // manual correction
)

// TransactionStatus is the lifecycle state of a FinancialTransaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusReversed  TransactionStatus = "reversed"
)

// Related entity types referenced by ledger entries.
const (
	EntityCheckout          = "checkout"
	EntitySellerTransaction = "seller_transaction"
	EntityPayoutBatch       = "payout_batch"
)

// MetaSellerTransactionID is the metadata key naming the seller transaction
// an entry was booked for.
const MetaSellerTransactionID = "seller_transaction_id"

// FinancialTransaction is one immutable monetary event. Only Status,
// RelatedTransactionIDs and UpdatedAt change after creation.
type FinancialTransaction struct {
	ID                    snowflake.ID
	TerritoryID           snowflake.ID
	Type                  TransactionType
	Status                TransactionStatus
	Amount                int64
	Currency              string
	Description           string
	RelatedEntityID       snowflake.ID
	RelatedEntityType     string
	RelatedTransactionIDs []snowflake.ID
	Metadata              map[string]string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Money returns the signed amount of the transaction.
func (t FinancialTransaction) Money() money.Amount {
	return money.Amount{Value: t.Amount, Currency: t.Currency}
}

// IsRelated reports whether id is already linked to the transaction.
func (t FinancialTransaction) IsRelated(id snowflake.ID) bool {
	for _, related := range t.RelatedTransactionIDs {
		if related == id {
			return true
		}
	}
	return false
}

// DrivenBySeller reports whether the entry's status follows a seller
// transaction. Only the seller state machine may transition such entries.
func (t FinancialTransaction) DrivenBySeller() bool {
	return t.Type == TypeSaleCredit && t.Metadata[MetaSellerTransactionID] != ""
}

// Clone returns a deep copy so stored rows never share slices or maps.
func (t FinancialTransaction) Clone() FinancialTransaction {
	out := t
	if t.RelatedTransactionIDs != nil {
		out.RelatedTransactionIDs = append([]snowflake.ID(nil), t.RelatedTransactionIDs...)
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// TransactionStatusHistory is the append-only audit row written for every
// status change. PreviousStatus is empty for the creation row.
type TransactionStatusHistory struct {
	ID             snowflake.ID
	TransactionID  snowflake.ID
	PreviousStatus TransactionStatus
	NewStatus      TransactionStatus
	ActorID        string
	Reason         string
	CreatedAt      time.Time
}
