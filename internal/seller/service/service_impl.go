package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/apperror"
	"github.com/smallbiznis/marketledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/marketledger/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	platformservice "github.com/smallbiznis/marketledger/internal/platform/service"
	"github.com/smallbiznis/marketledger/internal/retry"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("marketledger/seller")

const (
	reasonRetentionElapsed = "retention_elapsed"
	reasonPaidOut          = "paid_out"
)

// Config bounds how many seller transactions one promotion sweep handles.
// Zero means no bound.
type Config struct {
	PromotionBatchSize int
}

// ConfigSource returns the current seller settings; it is read per sweep.
type ConfigSource func() Config

type Params struct {
	fx.In

	UOW        store.UnitOfWork
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Retrier    *retry.Retrier
	Poster     *ledgerservice.Poster
	Platform   *platformservice.Service
	Config     Config              `optional:"true"`
	Settings   ConfigSource        `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	uow        store.UnitOfWork
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	retrier    *retry.Retrier
	poster     *ledgerservice.Poster
	platform   *platformservice.Service
	cfg        Config
	settings   ConfigSource
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) sellerdomain.Service {
	return &Service{
		uow:        p.UOW,
		log:        p.Log.Named("seller.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		retrier:    p.Retrier,
		poster:     p.Poster,
		platform:   p.Platform,
		cfg:        p.Config,
		settings:   p.Settings,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) config() Config {
	if s.settings != nil {
		return s.settings()
	}
	return s.cfg
}

func (s *Service) CreateSellerTransaction(ctx context.Context, req sellerdomain.CreateSellerTransactionRequest) (sellerdomain.SellerTransaction, error) {
	ctx, span := tracer.Start(ctx, "seller.CreateSellerTransaction")
	defer span.End()

	gross, err := validateCreate(req)
	if err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	fee, net, err := money.SplitFee(gross, req.FeeRate)
	if err != nil {
		if errors.Is(err, money.ErrInvalidRate) {
			return sellerdomain.SellerTransaction{}, sellerdomain.ErrInvalidFeeConfiguration
		}
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrInvalidAmount
	}

	var created sellerdomain.SellerTransaction
	err = s.retrier.Do(ctx, "seller.create_transaction", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			var err error
			created, err = s.createTx(ctx, repos, req, gross, fee, net)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) || errors.Is(err, sellerdomain.ErrDuplicateCheckout) {
			s.log.Info("duplicate checkout rejected", zap.String("checkout_id", req.CheckoutID.String()))
			return sellerdomain.SellerTransaction{}, sellerdomain.ErrDuplicateCheckout
		}
		return sellerdomain.SellerTransaction{}, err
	}

	if created.FinancialTransactionID != 0 {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.TypeSaleCredit))
	}
	if created.FeeAmount > 0 {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.TypeFee))
	}
	span.SetAttributes(attribute.String("seller_transaction_id", created.ID.String()))
	s.log.Info("seller transaction created",
		zap.String("seller_transaction_id", created.ID.String()),
		zap.String("checkout_id", created.CheckoutID.String()),
		zap.String("seller_id", created.SellerID.String()),
		zap.String("territory_id", created.TerritoryID.String()),
		zap.Int64("gross_amount", created.GrossAmount),
		zap.Int64("fee_amount", created.FeeAmount),
		zap.Int64("net_amount", created.NetAmount),
		zap.String("currency", created.Currency),
	)
	return created, nil
}

func (s *Service) createTx(ctx context.Context, repos store.Repositories, req sellerdomain.CreateSellerTransactionRequest, gross, fee, net money.Amount) (sellerdomain.SellerTransaction, error) {
	existing, err := repos.SellerTransactions().FindByCheckout(ctx, req.CheckoutID)
	if err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	if existing != nil {
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrDuplicateCheckout
	}

	now := s.clock.Now()
	txn := sellerdomain.SellerTransaction{
		ID:          s.genID.Generate(),
		CheckoutID:  req.CheckoutID,
		TerritoryID: req.TerritoryID,
		StoreID:     req.StoreID,
		SellerID:    req.SellerID,
		GrossAmount: gross.Value,
		FeeAmount:   fee.Value,
		NetAmount:   net.Value,
		Currency:    gross.Currency,
		FeeRate:     req.FeeRate.String(),
		Status:      sellerdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if net.IsPositive() {
		sale, err := s.poster.Post(ctx, repos.Transactions(), ledgerdomain.RecordRequest{
			Type:          ledgerdomain.TypeSaleCredit,
			TerritoryID:   req.TerritoryID,
			Amount:        net,
			Description:   "seller sale credit",
			RelatedEntity: &ledgerdomain.RelatedEntity{ID: req.CheckoutID, Type: ledgerdomain.EntityCheckout},
			Metadata: map[string]string{
				ledgerdomain.MetaSellerTransactionID: txn.ID.String(),
				"seller_id":                          req.SellerID.String(),
				"store_id":                           req.StoreID.String(),
			},
			ActorID: req.ActorID,
		})
		if err != nil {
			return sellerdomain.SellerTransaction{}, err
		}
		txn.FinancialTransactionID = sale.ID
	}

	if err := repos.SellerTransactions().Insert(ctx, txn); err != nil {
		return sellerdomain.SellerTransaction{}, err
	}

	if _, err := s.platform.RecordRevenueTx(ctx, repos, platformdomain.RevenueRequest{
		TerritoryID:         req.TerritoryID,
		CheckoutID:          req.CheckoutID,
		SellerTransactionID: txn.ID,
		Amount:              fee,
		ActorID:             req.ActorID,
	}); err != nil {
		return sellerdomain.SellerTransaction{}, err
	}

	if err := s.creditBalance(ctx, repos, txn, now); err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	return txn, nil
}

func (s *Service) creditBalance(ctx context.Context, repos store.Repositories, txn sellerdomain.SellerTransaction, now time.Time) error {
	balances := repos.SellerBalances()
	balance, err := balances.Find(ctx, txn.TerritoryID, txn.SellerID)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = &sellerdomain.SellerBalance{
			TerritoryID: txn.TerritoryID,
			SellerID:    txn.SellerID,
			Currency:    txn.Currency,
			Version:     1,
		}
		if err := balance.Credit(txn.NetAmount, now); err != nil {
			return err
		}
		return balances.Insert(ctx, balance)
	}
	if balance.Currency != txn.Currency {
		return fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, balance.Currency, txn.Currency)
	}
	if err := balance.Credit(txn.NetAmount, now); err != nil {
		return err
	}
	return balances.Update(ctx, balance)
}

func (s *Service) loadBalance(ctx context.Context, repos store.Repositories, txn sellerdomain.SellerTransaction) (*sellerdomain.SellerBalance, error) {
	balance, err := repos.SellerBalances().Find(ctx, txn.TerritoryID, txn.SellerID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, sellerdomain.ErrBalanceNotFound
	}
	return balance, nil
}

func (s *Service) PromoteReadyForPayout(ctx context.Context, territoryID snowflake.ID, retention time.Duration) (sellerdomain.PromotionResult, error) {
	ctx, span := tracer.Start(ctx, "seller.PromoteReadyForPayout")
	defer span.End()

	result := sellerdomain.PromotionResult{}
	if territoryID == 0 {
		return result, sellerdomain.ErrInvalidTerritory
	}
	if retention < 0 {
		return result, sellerdomain.ErrInvalidRetention
	}

	cutoff := s.clock.Now().Add(-retention)
	var candidates []sellerdomain.SellerTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		candidates, err = repos.SellerTransactions().ListPendingBefore(ctx, territoryID, cutoff, s.config().PromotionBatchSize)
		return err
	})
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		promoted := false
		err := s.retrier.Do(ctx, "seller.promote", func(ctx context.Context) error {
			return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
				var err error
				promoted, err = s.promoteTx(ctx, repos, candidate.ID)
				return err
			})
		})
		switch {
		case err != nil:
			result.Failed = append(result.Failed, sellerdomain.ItemError{SellerTransactionID: candidate.ID, Err: err})
			s.log.Warn("promotion failed",
				zap.String("seller_transaction_id", candidate.ID.String()),
				zap.String("error_kind", apperror.Kind(err)),
				zap.Error(err),
			)
		case promoted:
			result.Promoted = append(result.Promoted, candidate.ID)
		default:
			result.Skipped = append(result.Skipped, candidate.ID)
		}
	}

	s.log.Info("promotion sweep finished",
		zap.String("territory_id", territoryID.String()),
		zap.Time("cutoff", cutoff),
		zap.Int("promoted", len(result.Promoted)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Service) promoteTx(ctx context.Context, repos store.Repositories, id snowflake.ID) (bool, error) {
	txn, err := repos.SellerTransactions().FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if txn == nil {
		return false, sellerdomain.ErrNotFound
	}
	if txn.Status != sellerdomain.StatusPending {
		return false, nil
	}

	now := s.clock.Now()
	balance, err := s.loadBalance(ctx, repos, *txn)
	if err != nil {
		return false, err
	}
	if err := balance.Promote(txn.NetAmount, now); err != nil {
		return false, err
	}

	txn.Status = sellerdomain.StatusReadyForPayout
	txn.ReadyForPayoutAt = &now
	txn.UpdatedAt = now
	if err := repos.SellerTransactions().UpdateStatus(ctx, *txn, sellerdomain.StatusPending); err != nil {
		return false, err
	}
	if err := repos.SellerBalances().Update(ctx, balance); err != nil {
		return false, err
	}

	if txn.FinancialTransactionID != 0 {
		if _, err := s.poster.Transition(ctx, repos.Transactions(), ledgerdomain.TransitionRequest{
			TransactionID: txn.FinancialTransactionID,
			NewStatus:     ledgerdomain.StatusCompleted,
			ActorID:       "scheduler",
			Reason:        reasonRetentionElapsed,
		}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) Payout(ctx context.Context, batchID snowflake.ID, sellerTransactionIDs []snowflake.ID) (sellerdomain.PayoutResult, error) {
	ctx, span := tracer.Start(ctx, "seller.Payout")
	defer span.End()

	result := sellerdomain.PayoutResult{BatchID: batchID}
	if batchID == 0 {
		return result, sellerdomain.ErrInvalidBatch
	}

	result.Items = make([]sellerdomain.PayoutItemResult, 0, len(sellerTransactionIDs))
	for i, id := range sellerTransactionIDs {
		if err := ctx.Err(); err != nil {
			for _, rest := range sellerTransactionIDs[i:] {
				result.Items = append(result.Items, sellerdomain.PayoutItemResult{
					SellerTransactionID: rest,
					Status:              sellerdomain.PayoutItemNotAttempted,
					ErrorKind:           apperror.Kind(err),
					Err:                 err,
				})
				s.obsMetrics.RecordPayoutItem(ctx, string(sellerdomain.PayoutItemNotAttempted), apperror.Kind(err))
			}
			break
		}

		item := s.payoutOne(ctx, batchID, id)
		s.obsMetrics.RecordPayoutItem(ctx, string(item.Status), item.ErrorKind)
		result.Items = append(result.Items, item)
	}

	span.SetAttributes(
		attribute.Int("payout.items", len(result.Items)),
		attribute.Int("payout.succeeded", result.Succeeded()),
	)
	s.log.Info("payout batch processed",
		zap.String("batch_id", batchID.String()),
		zap.Int("items", len(result.Items)),
		zap.Int("succeeded", result.Succeeded()),
	)
	return result, nil
}

func (s *Service) payoutOne(ctx context.Context, batchID, id snowflake.ID) sellerdomain.PayoutItemResult {
	item := sellerdomain.PayoutItemResult{SellerTransactionID: id}

	var payoutEntryID snowflake.ID
	err := s.retrier.Do(ctx, "seller.payout", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			var err error
			payoutEntryID, err = s.payoutTx(ctx, repos, batchID, id)
			return err
		})
	})
	if err != nil {
		item.Status = sellerdomain.PayoutItemFailed
		item.ErrorKind = apperror.Kind(err)
		item.Err = err
		s.log.Warn("payout item failed",
			zap.String("batch_id", batchID.String()),
			zap.String("seller_transaction_id", id.String()),
			zap.String("error_kind", item.ErrorKind),
			zap.Error(err),
		)
		return item
	}

	item.Status = sellerdomain.PayoutItemSucceeded
	item.PayoutTransactionID = payoutEntryID
	return item
}

func (s *Service) payoutTx(ctx context.Context, repos store.Repositories, batchID, id snowflake.ID) (snowflake.ID, error) {
	if id == 0 {
		return 0, sellerdomain.ErrNotFound
	}
	txn, err := repos.SellerTransactions().FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if txn == nil {
		return 0, sellerdomain.ErrNotFound
	}
	if txn.Status != sellerdomain.StatusReadyForPayout {
		return 0, fmt.Errorf("%w: %s -> %s", sellerdomain.ErrInvalidTransition, txn.Status, sellerdomain.StatusPaid)
	}

	now := s.clock.Now()
	balance, err := s.loadBalance(ctx, repos, *txn)
	if err != nil {
		return 0, err
	}
	if err := balance.Pay(txn.NetAmount, now); err != nil {
		return 0, err
	}

	net := money.Amount{Value: txn.NetAmount, Currency: txn.Currency}
	var payoutEntryID snowflake.ID
	if net.IsPositive() {
		entry, err := s.poster.Post(ctx, repos.Transactions(), ledgerdomain.RecordRequest{
			Type:          ledgerdomain.TypePayout,
			TerritoryID:   txn.TerritoryID,
			Amount:        net.Neg(),
			Description:   "seller payout",
			RelatedEntity: &ledgerdomain.RelatedEntity{ID: batchID, Type: ledgerdomain.EntityPayoutBatch},
			Metadata: map[string]string{
				ledgerdomain.MetaSellerTransactionID: txn.ID.String(),
				"seller_id":                          txn.SellerID.String(),
				"reason":                             reasonPaidOut,
			},
		})
		if err != nil {
			return 0, err
		}
		payoutEntryID = entry.ID
		if txn.FinancialTransactionID != 0 {
			if err := s.poster.Link(ctx, repos.Transactions(), entry.ID, txn.FinancialTransactionID); err != nil {
				return 0, err
			}
		}
	}

	txn.Status = sellerdomain.StatusPaid
	txn.PaidAt = &now
	txn.PayoutBatchID = batchID
	txn.PayoutTransactionID = payoutEntryID
	txn.UpdatedAt = now
	if err := repos.SellerTransactions().UpdateStatus(ctx, *txn, sellerdomain.StatusReadyForPayout); err != nil {
		return 0, err
	}
	if err := repos.SellerBalances().Update(ctx, balance); err != nil {
		return 0, err
	}

	if _, err := s.platform.RecordExpenseTx(ctx, repos, platformdomain.ExpenseRequest{
		TerritoryID:            txn.TerritoryID,
		SellerTransactionID:    txn.ID,
		PayoutBatchID:          batchID,
		Amount:                 net,
		FinancialTransactionID: payoutEntryID,
	}); err != nil {
		return 0, err
	}
	return payoutEntryID, nil
}

func (s *Service) Reverse(ctx context.Context, req sellerdomain.ReverseRequest) (sellerdomain.SellerTransaction, error) {
	ctx, span := tracer.Start(ctx, "seller.Reverse")
	defer span.End()

	if req.SellerTransactionID == 0 {
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrNotFound
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrInvalidReason
	}

	var reversed sellerdomain.SellerTransaction
	err := s.retrier.Do(ctx, "seller.reverse", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			var err error
			reversed, err = s.reverseTx(ctx, repos, req)
			return err
		})
	})
	if err != nil {
		return sellerdomain.SellerTransaction{}, err
	}

	if reversed.ReversalTransactionID != 0 {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.TypeReversal))
	}
	s.log.Info("seller transaction reversed",
		zap.String("seller_transaction_id", reversed.ID.String()),
		zap.String("reason", reversed.ReversalReason),
		zap.Int64("net_amount", reversed.NetAmount),
	)
	return reversed, nil
}

func (s *Service) reverseTx(ctx context.Context, repos store.Repositories, req sellerdomain.ReverseRequest) (sellerdomain.SellerTransaction, error) {
	txn, err := repos.SellerTransactions().FindByID(ctx, req.SellerTransactionID)
	if err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	if txn == nil {
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrNotFound
	}
	switch txn.Status {
	case sellerdomain.StatusPaid:
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrAlreadyPaid
	case sellerdomain.StatusPending, sellerdomain.StatusReadyForPayout:
	default:
		return sellerdomain.SellerTransaction{}, fmt.Errorf("%w: %s -> %s", sellerdomain.ErrInvalidTransition, txn.Status, sellerdomain.StatusReversed)
	}

	now := s.clock.Now()
	previous := txn.Status
	balance, err := s.loadBalance(ctx, repos, *txn)
	if err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	if err := balance.Withdraw(previous, txn.NetAmount, now); err != nil {
		return sellerdomain.SellerTransaction{}, err
	}

	// Offset the earning exactly once: a pending entry fails, a completed one
	// keeps its status and gets a linked reversal entry.
	if txn.FinancialTransactionID != 0 {
		if previous == sellerdomain.StatusPending {
			if _, err := s.poster.Transition(ctx, repos.Transactions(), ledgerdomain.TransitionRequest{
				TransactionID: txn.FinancialTransactionID,
				NewStatus:     ledgerdomain.StatusFailed,
				ActorID:       req.ActorID,
				Reason:        req.Reason,
			}); err != nil {
				return sellerdomain.SellerTransaction{}, err
			}
		} else {
			entry, err := s.poster.Post(ctx, repos.Transactions(), ledgerdomain.RecordRequest{
				Type:          ledgerdomain.TypeReversal,
				TerritoryID:   txn.TerritoryID,
				Amount:        money.Amount{Value: -txn.NetAmount, Currency: txn.Currency},
				Description:   "seller earning reversal",
				RelatedEntity: &ledgerdomain.RelatedEntity{ID: txn.ID, Type: ledgerdomain.EntitySellerTransaction},
				Metadata: map[string]string{
					ledgerdomain.MetaSellerTransactionID: txn.ID.String(),
					"reason":                             req.Reason,
				},
				ActorID: req.ActorID,
			})
			if err != nil {
				return sellerdomain.SellerTransaction{}, err
			}
			if err := s.poster.Link(ctx, repos.Transactions(), entry.ID, txn.FinancialTransactionID); err != nil {
				return sellerdomain.SellerTransaction{}, err
			}
			txn.ReversalTransactionID = entry.ID
		}
	}

	txn.Status = sellerdomain.StatusReversed
	txn.ReversedAt = &now
	txn.ReversalReason = req.Reason
	txn.UpdatedAt = now
	if err := repos.SellerTransactions().UpdateStatus(ctx, *txn, previous); err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	if err := repos.SellerBalances().Update(ctx, balance); err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	return *txn, nil
}

func validateCreate(req sellerdomain.CreateSellerTransactionRequest) (money.Amount, error) {
	if req.CheckoutID == 0 {
		return money.Amount{}, sellerdomain.ErrInvalidCheckout
	}
	if req.SellerID == 0 {
		return money.Amount{}, sellerdomain.ErrInvalidSeller
	}
	if req.TerritoryID == 0 {
		return money.Amount{}, sellerdomain.ErrInvalidTerritory
	}
	if req.StoreID == 0 {
		return money.Amount{}, sellerdomain.ErrInvalidStore
	}
	if !money.ValidRate(req.FeeRate) {
		return money.Amount{}, sellerdomain.ErrInvalidFeeConfiguration
	}
	gross, err := money.New(req.Gross.Value, req.Gross.Currency)
	if err != nil {
		return money.Amount{}, err
	}
	if !gross.IsPositive() {
		return money.Amount{}, sellerdomain.ErrInvalidAmount
	}
	return gross, nil
}
