package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/marketledger/pkg/money"
)

type CreateSellerTransactionRequest struct {
	CheckoutID  snowflake.ID
	SellerID    snowflake.ID
	TerritoryID snowflake.ID
	StoreID     snowflake.ID
	Gross       money.Amount
	FeeRate     decimal.Decimal
	ActorID     string
}

type ReverseRequest struct {
	SellerTransactionID snowflake.ID
	Reason              string
	ActorID             string
}

type Service interface {
	CreateSellerTransaction(ctx context.Context, req CreateSellerTransactionRequest) (SellerTransaction, error)
	PromoteReadyForPayout(ctx context.Context, territoryID snowflake.ID, retention time.Duration) (PromotionResult, error)
	Payout(ctx context.Context, batchID snowflake.ID, sellerTransactionIDs []snowflake.ID) (PayoutResult, error)
	Reverse(ctx context.Context, req ReverseRequest) (SellerTransaction, error)

	GetBalance(ctx context.Context, territoryID, sellerID snowflake.ID) (SellerBalance, error)
	GetTransaction(ctx context.Context, id snowflake.ID) (SellerTransaction, error)
	Statement(ctx context.Context, territoryID, sellerID snowflake.ID) (Statement, error)
	AuditBalances(ctx context.Context, territoryID snowflake.ID) (AuditReport, error)
}

var (
	ErrDuplicateCheckout       = errors.New("duplicate_checkout")
	ErrInvalidFeeConfiguration = errors.New("invalid_fee_configuration")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidCheckout         = errors.New("invalid_checkout")
	ErrInvalidSeller           = errors.New("invalid_seller")
	ErrInvalidTerritory        = errors.New("invalid_territory")
	ErrInvalidStore            = errors.New("invalid_store")
	ErrInvalidBatch            = errors.New("invalid_payout_batch")
	ErrInvalidRetention        = errors.New("invalid_retention")
	ErrInvalidReason           = errors.New("invalid_reversal_reason")
	ErrInvalidTransition       = errors.New("invalid_transition")
	ErrAlreadyPaid             = errors.New("already_paid")
	ErrNegativeBalance         = errors.New("negative_balance")
	ErrNotFound                = errors.New("seller_transaction_not_found")
	ErrBalanceNotFound         = errors.New("seller_balance_not_found")
)
