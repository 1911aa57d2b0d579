package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	"github.com/smallbiznis/marketledger/internal/retry"
	"github.com/smallbiznis/marketledger/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("marketledger/ledger")

type Params struct {
	fx.In

	UOW        store.UnitOfWork
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Retrier    *retry.Retrier
	Poster     *Poster
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	uow        store.UnitOfWork
	log        *zap.Logger
	retrier    *retry.Retrier
	poster     *Poster
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	poster := p.Poster
	if poster == nil {
		poster = NewPoster(p.GenID, p.Clock)
	}
	return &Service{
		uow:        p.UOW,
		log:        p.Log.Named("ledger.service"),
		retrier:    p.Retrier,
		poster:     poster,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, req ledgerdomain.RecordRequest) (ledgerdomain.FinancialTransaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Record")
	defer span.End()

	req, _, err := Validate(req)
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}

	var txn ledgerdomain.FinancialTransaction
	err = s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		txn, err = s.poster.Post(ctx, repos.Transactions(), req)
		return err
	})
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}

	span.SetAttributes(attribute.String("transaction_id", txn.ID.String()))
	s.obsMetrics.RecordLedgerEntry(ctx, string(txn.Type))
	s.log.Info("ledger entry recorded",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("territory_id", txn.TerritoryID.String()),
		zap.String("type", string(txn.Type)),
		zap.String("status", string(txn.Status)),
		zap.Int64("amount", txn.Amount),
		zap.String("currency", txn.Currency),
	)
	return txn, nil
}

func (s *Service) Transition(ctx context.Context, req ledgerdomain.TransitionRequest) (ledgerdomain.FinancialTransaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Transition")
	defer span.End()

	var (
		txn      ledgerdomain.FinancialTransaction
		previous ledgerdomain.TransactionStatus
	)
	err := s.retrier.Do(ctx, "ledger.transition", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			current, err := repos.Transactions().FindByID(ctx, req.TransactionID)
			if err != nil {
				return err
			}
			if current != nil {
				previous = current.Status
				if current.DrivenBySeller() {
					return fmt.Errorf("%w: entry %s follows seller transaction %s",
						ledgerdomain.ErrInvalidTransition, current.ID, current.Metadata[ledgerdomain.MetaSellerTransactionID])
				}
			}
			txn, err = s.poster.Transition(ctx, repos.Transactions(), req)
			return err
		})
	})
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}

	s.obsMetrics.RecordLedgerTransition(ctx, string(previous), string(txn.Status))
	s.log.Info("ledger entry transitioned",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("previous_status", string(previous)),
		zap.String("new_status", string(txn.Status)),
		zap.String("reason", req.Reason),
	)
	return txn, nil
}

func (s *Service) LinkRelated(ctx context.Context, id, otherID snowflake.ID) error {
	ctx, span := tracer.Start(ctx, "ledger.LinkRelated")
	defer span.End()

	return s.retrier.Do(ctx, "ledger.link", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			return s.poster.Link(ctx, repos.Transactions(), id, otherID)
		})
	})
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (ledgerdomain.FinancialTransaction, error) {
	if id == 0 {
		return ledgerdomain.FinancialTransaction{}, ledgerdomain.ErrInvalidID
	}
	var txn *ledgerdomain.FinancialTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		txn, err = repos.Transactions().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return ledgerdomain.FinancialTransaction{}, err
	}
	if txn == nil {
		return ledgerdomain.FinancialTransaction{}, ledgerdomain.ErrNotFound
	}
	return *txn, nil
}

func (s *Service) History(ctx context.Context, id snowflake.ID) ([]ledgerdomain.TransactionStatusHistory, error) {
	if id == 0 {
		return nil, ledgerdomain.ErrInvalidID
	}
	var history []ledgerdomain.TransactionStatusHistory
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		txn, err := repos.Transactions().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return ledgerdomain.ErrNotFound
		}
		history, err = repos.Transactions().ListHistory(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}
