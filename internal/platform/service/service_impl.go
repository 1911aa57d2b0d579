package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/marketledger/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	"github.com/smallbiznis/marketledger/internal/retry"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("marketledger/platform")

type Params struct {
	fx.In

	UOW        store.UnitOfWork
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Retrier    *retry.Retrier
	Poster     *ledgerservice.Poster
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	uow        store.UnitOfWork
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	retrier    *retry.Retrier
	poster     *ledgerservice.Poster
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		uow:        p.UOW,
		log:        p.Log.Named("platform.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		retrier:    p.Retrier,
		poster:     p.Poster,
		obsMetrics: p.ObsMetrics,
	}
}

// Provide exposes the concrete service both as the domain interface and for
// callers that need the tx-scoped variants.
func Provide(s *Service) platformdomain.Service {
	return s
}

func (s *Service) RecordRevenue(ctx context.Context, req platformdomain.RevenueRequest) (platformdomain.PlatformRevenueTransaction, error) {
	ctx, span := tracer.Start(ctx, "platform.RecordRevenue")
	defer span.End()

	req, err := validateRevenue(req)
	if err != nil {
		return platformdomain.PlatformRevenueTransaction{}, err
	}

	var revenue platformdomain.PlatformRevenueTransaction
	err = s.retrier.Do(ctx, "platform.record_revenue", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			var err error
			revenue, err = s.RecordRevenueTx(ctx, repos, req)
			return err
		})
	})
	if err != nil {
		return platformdomain.PlatformRevenueTransaction{}, err
	}
	if revenue.FinancialTransactionID != 0 {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.TypeFee))
	}
	s.log.Info("platform revenue recorded",
		zap.String("territory_id", revenue.TerritoryID.String()),
		zap.String("checkout_id", revenue.CheckoutID.String()),
		zap.Int64("amount", revenue.Amount),
		zap.String("currency", revenue.Currency),
	)
	return revenue, nil
}

// RecordRevenueTx books the fee entry, the revenue row and the balance change
// inside the caller's unit of work. A zero fee writes the row without an entry.
func (s *Service) RecordRevenueTx(ctx context.Context, repos store.Repositories, req platformdomain.RevenueRequest) (platformdomain.PlatformRevenueTransaction, error) {
	req, err := validateRevenue(req)
	if err != nil {
		return platformdomain.PlatformRevenueTransaction{}, err
	}

	now := s.clock.Now()
	revenue := platformdomain.PlatformRevenueTransaction{
		ID:                  s.genID.Generate(),
		TerritoryID:         req.TerritoryID,
		CheckoutID:          req.CheckoutID,
		SellerTransactionID: req.SellerTransactionID,
		Amount:              req.Amount.Value,
		Currency:            req.Amount.Currency,
		CreatedAt:           now,
	}

	if req.Amount.IsPositive() {
		entry, err := s.poster.Post(ctx, repos.Transactions(), ledgerdomain.RecordRequest{
			Type:          ledgerdomain.TypeFee,
			TerritoryID:   req.TerritoryID,
			Amount:        req.Amount,
			Description:   "platform fee",
			RelatedEntity: &ledgerdomain.RelatedEntity{ID: req.CheckoutID, Type: ledgerdomain.EntityCheckout},
			Metadata:      referenceMetadata(req.SellerTransactionID),
			ActorID:       req.ActorID,
		})
		if err != nil {
			return platformdomain.PlatformRevenueTransaction{}, err
		}
		revenue.FinancialTransactionID = entry.ID
	}

	if err := repos.PlatformRevenue().Insert(ctx, revenue); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return platformdomain.PlatformRevenueTransaction{}, fmt.Errorf("%w: %w", platformdomain.ErrDuplicateRevenue, err)
		}
		return platformdomain.PlatformRevenueTransaction{}, err
	}

	if err := s.adjustBalance(ctx, repos, req.TerritoryID, req.Amount, func(b *platformdomain.PlatformFinancialBalance) {
		b.AddRevenue(req.Amount.Value, now)
	}); err != nil {
		return platformdomain.PlatformRevenueTransaction{}, err
	}
	return revenue, nil
}

func (s *Service) RecordExpense(ctx context.Context, req platformdomain.ExpenseRequest) (platformdomain.PlatformExpenseTransaction, error) {
	ctx, span := tracer.Start(ctx, "platform.RecordExpense")
	defer span.End()

	req, err := validateExpense(req)
	if err != nil {
		return platformdomain.PlatformExpenseTransaction{}, err
	}

	var expense platformdomain.PlatformExpenseTransaction
	err = s.retrier.Do(ctx, "platform.record_expense", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			var err error
			expense, err = s.RecordExpenseTx(ctx, repos, req)
			return err
		})
	})
	if err != nil {
		return platformdomain.PlatformExpenseTransaction{}, err
	}
	s.log.Info("platform expense recorded",
		zap.String("territory_id", expense.TerritoryID.String()),
		zap.String("seller_transaction_id", expense.SellerTransactionID.String()),
		zap.Int64("amount", expense.Amount),
		zap.String("currency", expense.Currency),
	)
	return expense, nil
}

// RecordExpenseTx writes the expense row and balance change inside the
// caller's unit of work, booking a payout entry unless one is supplied.
func (s *Service) RecordExpenseTx(ctx context.Context, repos store.Repositories, req platformdomain.ExpenseRequest) (platformdomain.PlatformExpenseTransaction, error) {
	req, err := validateExpense(req)
	if err != nil {
		return platformdomain.PlatformExpenseTransaction{}, err
	}

	now := s.clock.Now()
	expense := platformdomain.PlatformExpenseTransaction{
		ID:                     s.genID.Generate(),
		TerritoryID:            req.TerritoryID,
		SellerTransactionID:    req.SellerTransactionID,
		Amount:                 req.Amount.Value,
		Currency:               req.Amount.Currency,
		PayoutBatchID:          req.PayoutBatchID,
		FinancialTransactionID: req.FinancialTransactionID,
		CreatedAt:              now,
	}

	if expense.FinancialTransactionID == 0 && req.Amount.IsPositive() {
		entry, err := s.poster.Post(ctx, repos.Transactions(), ledgerdomain.RecordRequest{
			Type:          ledgerdomain.TypePayout,
			TerritoryID:   req.TerritoryID,
			Amount:        req.Amount.Neg(),
			Description:   "platform payout expense",
			RelatedEntity: payoutEntity(req.PayoutBatchID),
			Metadata:      referenceMetadata(req.SellerTransactionID),
			ActorID:       req.ActorID,
		})
		if err != nil {
			return platformdomain.PlatformExpenseTransaction{}, err
		}
		expense.FinancialTransactionID = entry.ID
	}

	if err := repos.PlatformExpenses().Insert(ctx, expense); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return platformdomain.PlatformExpenseTransaction{}, fmt.Errorf("%w: %w", platformdomain.ErrDuplicateExpense, err)
		}
		return platformdomain.PlatformExpenseTransaction{}, err
	}

	if err := s.adjustBalance(ctx, repos, req.TerritoryID, req.Amount, func(b *platformdomain.PlatformFinancialBalance) {
		b.AddExpense(req.Amount.Value, now)
	}); err != nil {
		return platformdomain.PlatformExpenseTransaction{}, err
	}
	return expense, nil
}

func (s *Service) adjustBalance(ctx context.Context, repos store.Repositories, territoryID snowflake.ID, amount money.Amount, apply func(*platformdomain.PlatformFinancialBalance)) error {
	balances := repos.PlatformBalances()
	balance, err := balances.Find(ctx, territoryID)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = &platformdomain.PlatformFinancialBalance{
			TerritoryID: territoryID,
			Currency:    amount.Currency,
			Version:     1,
		}
		apply(balance)
		return balances.Insert(ctx, balance)
	}
	if balance.Currency != amount.Currency {
		return fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, balance.Currency, amount.Currency)
	}
	apply(balance)
	return balances.Update(ctx, balance)
}

func (s *Service) GetBalance(ctx context.Context, territoryID snowflake.ID) (platformdomain.PlatformFinancialBalance, error) {
	if territoryID == 0 {
		return platformdomain.PlatformFinancialBalance{}, platformdomain.ErrInvalidTerritory
	}
	var balance *platformdomain.PlatformFinancialBalance
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		balance, err = repos.PlatformBalances().Find(ctx, territoryID)
		return err
	})
	if err != nil {
		return platformdomain.PlatformFinancialBalance{}, err
	}
	if balance == nil {
		return platformdomain.PlatformFinancialBalance{}, platformdomain.ErrBalanceNotFound
	}
	balance.NetBalance = balance.TotalRevenue - balance.TotalExpenses
	return *balance, nil
}

func (s *Service) ListTerritories(ctx context.Context) ([]snowflake.ID, error) {
	var territories []snowflake.ID
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		territories, err = repos.PlatformBalances().ListTerritories(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(territories, func(i, j int) bool { return territories[i] < territories[j] })
	return territories, nil
}

func (s *Service) ListRevenue(ctx context.Context, territoryID snowflake.ID) ([]platformdomain.PlatformRevenueTransaction, error) {
	if territoryID == 0 {
		return nil, platformdomain.ErrInvalidTerritory
	}
	var items []platformdomain.PlatformRevenueTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		items, err = repos.PlatformRevenue().ListByTerritory(ctx, territoryID)
		return err
	})
	return items, err
}

func (s *Service) ListExpenses(ctx context.Context, territoryID snowflake.ID) ([]platformdomain.PlatformExpenseTransaction, error) {
	if territoryID == 0 {
		return nil, platformdomain.ErrInvalidTerritory
	}
	var items []platformdomain.PlatformExpenseTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		items, err = repos.PlatformExpenses().ListByTerritory(ctx, territoryID)
		return err
	})
	return items, err
}

func validateRevenue(req platformdomain.RevenueRequest) (platformdomain.RevenueRequest, error) {
	if req.TerritoryID == 0 {
		return req, platformdomain.ErrInvalidTerritory
	}
	if req.CheckoutID == 0 {
		return req, platformdomain.ErrInvalidReference
	}
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return req, err
	}
	req.Amount = amount
	return req, nil
}

func validateExpense(req platformdomain.ExpenseRequest) (platformdomain.ExpenseRequest, error) {
	if req.TerritoryID == 0 {
		return req, platformdomain.ErrInvalidTerritory
	}
	if req.SellerTransactionID == 0 {
		return req, platformdomain.ErrInvalidReference
	}
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return req, err
	}
	req.Amount = amount
	return req, nil
}

func normalizeAmount(amount money.Amount) (money.Amount, error) {
	if amount.IsNegative() {
		return money.Amount{}, platformdomain.ErrInvalidAmount
	}
	return money.New(amount.Value, amount.Currency)
}

func referenceMetadata(sellerTransactionID snowflake.ID) map[string]string {
	if sellerTransactionID == 0 {
		return nil
	}
	return map[string]string{"seller_transaction_id": sellerTransactionID.String()}
}

func payoutEntity(batchID snowflake.ID) *ledgerdomain.RelatedEntity {
	if batchID == 0 {
		return nil
	}
	return &ledgerdomain.RelatedEntity{ID: batchID, Type: ledgerdomain.EntityPayoutBatch}
}
