package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/pkg/money"
)

type RelatedEntity struct {
	ID   snowflake.ID
	Type string
}

type RecordRequest struct {
	Type          TransactionType
	TerritoryID   snowflake.ID
	Amount        money.Amount
	Description   string
	RelatedEntity *RelatedEntity
	Metadata      map[string]string
	ActorID       string
}

type TransitionRequest struct {
	TransactionID snowflake.ID
	NewStatus     TransactionStatus
	ActorID       string
	Reason        string
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (FinancialTransaction, error)
	Transition(ctx context.Context, req TransitionRequest) (FinancialTransaction, error)
	LinkRelated(ctx context.Context, id, otherID snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (FinancialTransaction, error)
	History(ctx context.Context, id snowflake.ID) ([]TransactionStatusHistory, error)
}

var (
	ErrInvalidType       = errors.New("invalid_transaction_type")
	ErrInvalidStatus     = errors.New("invalid_transaction_status")
	ErrInvalidTerritory  = errors.New("invalid_territory")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidLink       = errors.New("invalid_link")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrNotFound          = errors.New("transaction_not_found")
)
