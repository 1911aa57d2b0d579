package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/smallbiznis/marketledger/pkg/money"
)

const reasonCreated = "created"

// Poster books ledger entries against a repository that belongs to the
// caller's unit of work, so entries commit together with balance changes.
type Poster struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewPoster(genID *snowflake.Node, clk clock.Clock) *Poster {
	return &Poster{genID: genID, clock: clk}
}

// Validate checks a record request without touching storage and returns it
// with the currency normalized.
func Validate(req ledgerdomain.RecordRequest) (ledgerdomain.RecordRequest, ledgerdomain.TypePolicy, error) {
	policy, err := ledgerdomain.PolicyFor(req.Type)
	if err != nil {
		return req, ledgerdomain.TypePolicy{}, err
	}
	if req.TerritoryID == 0 {
		return req, policy, ledgerdomain.ErrInvalidTerritory
	}
	currency, err := money.NormalizeCurrency(req.Amount.Currency)
	if err != nil {
		return req, policy, ledgerdomain.ErrInvalidCurrency
	}
	req.Amount.Currency = currency
	if err := policy.ValidateAmount(req.Amount.Value); err != nil {
		return req, policy, err
	}
	if req.RelatedEntity != nil && (req.RelatedEntity.ID == 0 || strings.TrimSpace(req.RelatedEntity.Type) == "") {
		return req, policy, ledgerdomain.ErrInvalidID
	}
	return req, policy, nil
}

// Post creates the entry in its type's initial status together with the
// creation history row.
func (p *Poster) Post(ctx context.Context, repo ledgerdomain.Repository, req ledgerdomain.RecordRequest) (ledgerdomain.FinancialTransaction, error) {
	req, policy, err := Validate(req)
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}

	now := p.clock.Now()
	txn := ledgerdomain.FinancialTransaction{
		ID:          p.genID.Generate(),
		TerritoryID: req.TerritoryID,
		Type:        req.Type,
		Status:      policy.InitialStatus,
		Amount:      req.Amount.Value,
		Currency:    req.Amount.Currency,
		Description: strings.TrimSpace(req.Description),
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.RelatedEntity != nil {
		txn.RelatedEntityID = req.RelatedEntity.ID
		txn.RelatedEntityType = strings.TrimSpace(req.RelatedEntity.Type)
	}
	for k, v := range req.Metadata {
		txn.Metadata[k] = v
	}

	if err := repo.Insert(ctx, txn); err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	if err := repo.AppendHistory(ctx, ledgerdomain.TransactionStatusHistory{
		ID:            p.genID.Generate(),
		TransactionID: txn.ID,
		NewStatus:     txn.Status,
		ActorID:       strings.TrimSpace(req.ActorID),
		Reason:        reasonCreated,
		CreatedAt:     now,
	}); err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	return txn, nil
}

// Transition moves an entry along the status machine and appends exactly one
// history row.
func (p *Poster) Transition(ctx context.Context, repo ledgerdomain.Repository, req ledgerdomain.TransitionRequest) (ledgerdomain.FinancialTransaction, error) {
	if req.TransactionID == 0 {
		return ledgerdomain.FinancialTransaction{}, ledgerdomain.ErrInvalidID
	}
	if _, err := ledgerdomain.ParseStatus(string(req.NewStatus)); err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}

	txn, err := repo.FindByID(ctx, req.TransactionID)
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	if txn == nil {
		return ledgerdomain.FinancialTransaction{}, ledgerdomain.ErrNotFound
	}

	previous := txn.Status
	history, err := txn.TransitionTo(p.genID.Generate(), req.NewStatus, strings.TrimSpace(req.ActorID), strings.TrimSpace(req.Reason), p.clock.Now())
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	if err := repo.UpdateStatus(ctx, *txn, previous); err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	if err := repo.AppendHistory(ctx, history); err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	return *txn, nil
}

// Link relates two entries in both directions. Linking twice is a no-op.
func (p *Poster) Link(ctx context.Context, repo ledgerdomain.Repository, id, otherID snowflake.ID) error {
	if id == 0 || otherID == 0 {
		return ledgerdomain.ErrInvalidID
	}
	if id == otherID {
		return ledgerdomain.ErrInvalidLink
	}

	a, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	b, err := repo.FindByID(ctx, otherID)
	if err != nil {
		return err
	}
	if a == nil || b == nil {
		return ledgerdomain.ErrNotFound
	}

	if !a.IsRelated(otherID) {
		if err := repo.AddLink(ctx, id, otherID); err != nil {
			return err
		}
	}
	if !b.IsRelated(id) {
		if err := repo.AddLink(ctx, otherID, id); err != nil {
			return err
		}
	}
	return nil
}
