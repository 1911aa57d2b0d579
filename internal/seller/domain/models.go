package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SellerTransactionStatus string

const (
	StatusPending        SellerTransactionStatus = "pending"
	StatusReadyForPayout SellerTransactionStatus = "ready_for_payout"
	StatusPaid           SellerTransactionStatus = "paid"
	StatusReversed       SellerTransactionStatus = "reversed"
)

// SellerBalance holds the three buckets of one seller's earnings in a
// territory. Version guards every write.
type SellerBalance struct {
	TerritoryID          snowflake.ID
	SellerID             snowflake.ID
	PendingAmount        int64
	ReadyForPayoutAmount int64
	PaidAmount           int64
	Currency             string
	Version              int64
	UpdatedAt            time.Time
}

// Total is the sum of all buckets.
func (b SellerBalance) Total() int64 {
	return b.PendingAmount + b.ReadyForPayoutAmount + b.PaidAmount
}

func (b SellerBalance) valid() bool {
	return b.PendingAmount >= 0 && b.ReadyForPayoutAmount >= 0 && b.PaidAmount >= 0
}

// SellerTransaction is the seller-facing record of one checkout's earning.
type SellerTransaction struct {
	ID                     snowflake.ID
	CheckoutID             snowflake.ID
	TerritoryID            snowflake.ID
	StoreID                snowflake.ID
	SellerID               snowflake.ID
	GrossAmount            int64
	FeeAmount              int64
	NetAmount              int64
	Currency               string
	FeeRate                string
	Status                 SellerTransactionStatus
	PayoutBatchID          snowflake.ID
	ReadyForPayoutAt       *time.Time
	PaidAt                 *time.Time
	ReversedAt             *time.Time
	ReversalReason         string
	FinancialTransactionID snowflake.ID
	PayoutTransactionID    snowflake.ID
	ReversalTransactionID  snowflake.ID
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Clone copies the optional timestamps so callers never share pointers.
func (t SellerTransaction) Clone() SellerTransaction {
	out := t
	out.ReadyForPayoutAt = cloneTime(t.ReadyForPayoutAt)
	out.PaidAt = cloneTime(t.PaidAt)
	out.ReversedAt = cloneTime(t.ReversedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PromotionResult reports the outcome of one promotion sweep.
type PromotionResult struct {
	Promoted []snowflake.ID
	Skipped  []snowflake.ID
	Failed   []ItemError
}

type ItemError struct {
	SellerTransactionID snowflake.ID
	Err                 error
}

type PayoutItemStatus string

const (
	PayoutItemSucceeded    PayoutItemStatus = "succeeded"
	PayoutItemFailed       PayoutItemStatus = "failed"
	PayoutItemNotAttempted PayoutItemStatus = "not_attempted"
)

// PayoutItemResult is the per-transaction outcome of a payout batch.
type PayoutItemResult struct {
	SellerTransactionID snowflake.ID
	Status              PayoutItemStatus
	PayoutTransactionID snowflake.ID
	ErrorKind           string
	Err                 error
}

type PayoutResult struct {
	BatchID snowflake.ID
	Items   []PayoutItemResult
}

// Succeeded counts the items that were paid.
func (r PayoutResult) Succeeded() int {
	count := 0
	for _, item := range r.Items {
		if item.Status == PayoutItemSucceeded {
			count++
		}
	}
	return count
}

type Statement struct {
	Balance      SellerBalance
	Transactions []SellerTransaction
}

// BalanceDrift is a seller balance that disagrees with its transactions.
type BalanceDrift struct {
	SellerID snowflake.ID
	Stored   SellerBalance
	Expected SellerBalance
}

type AuditReport struct {
	TerritoryID snowflake.ID
	Checked     int
	Drifts      []BalanceDrift
}
