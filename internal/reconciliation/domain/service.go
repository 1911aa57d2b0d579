package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/pkg/money"
)

type ReconcileRequest struct {
	TerritoryID  snowflake.ID
	Date         time.Time
	Actual       money.Amount
	ReconcilerID string
	Notes        string
}

type RereconcileRequest struct {
	RecordID     snowflake.ID
	Actual       money.Amount
	ReconcilerID string
	Notes        string
}

type ResolveRequest struct {
	RecordID     snowflake.ID
	ReconcilerID string
	Notes        string
}

type Service interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (ReconciliationRecord, error)
	Rereconcile(ctx context.Context, req RereconcileRequest) (ReconciliationRecord, error)
	Resolve(ctx context.Context, req ResolveRequest) (ReconciliationRecord, error)
	Get(ctx context.Context, id snowflake.ID) (ReconciliationRecord, error)
	List(ctx context.Context, territoryID snowflake.ID) ([]ReconciliationRecord, error)
}

var (
	ErrDuplicateReconciliation = errors.New("duplicate_reconciliation")
	ErrInvalidTerritory        = errors.New("invalid_territory")
	ErrInvalidDate             = errors.New("invalid_reconciliation_date")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidTransition       = errors.New("invalid_transition")
	ErrNotFound                = errors.New("reconciliation_not_found")
)
