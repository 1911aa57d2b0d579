package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	"github.com/smallbiznis/marketledger/internal/retry"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("marketledger/reconciliation")

// DefaultSettlementTypes are the entry types that move money through the
// external settlement account.
var DefaultSettlementTypes = []ledgerdomain.TransactionType{
	ledgerdomain.TypeSaleCredit,
	ledgerdomain.TypeFee,
	ledgerdomain.TypePayout,
	ledgerdomain.TypeRefund,
}

type Config struct {
	Tolerance       int64
	SettlementTypes []ledgerdomain.TransactionType
}

// ConfigSource returns the current reconciliation settings. Tolerance and
// settlement types are read on every comparison.
type ConfigSource func() Config

func (c Config) withDefaults() Config {
	if c.Tolerance < 0 {
		c.Tolerance = 0
	}
	if len(c.SettlementTypes) == 0 {
		c.SettlementTypes = DefaultSettlementTypes
	}
	return c
}

type Params struct {
	fx.In

	UOW        store.UnitOfWork
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Retrier    *retry.Retrier
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
	cfg        Config
	settings   ConfigSource
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) reconciliationdomain.Service {
	return &Service{
		uow:        p.UOW,
		log:        p.Log.Named("reconciliation.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		retrier:    p.Retrier,
		cfg:        p.Config.withDefaults(),
		settings:   p.Settings,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) config() Config {
	if s.settings != nil {
		return s.settings().withDefaults()
	}
	return s.cfg
}

func (s *Service) Reconcile(ctx context.Context, req reconciliationdomain.ReconcileRequest) (reconciliationdomain.ReconciliationRecord, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.Reconcile")
	defer span.End()

	if req.TerritoryID == 0 {
		return reconciliationdomain.ReconciliationRecord{}, reconciliationdomain.ErrInvalidTerritory
	}
	if req.Date.IsZero() {
		return reconciliationdomain.ReconciliationRecord{}, reconciliationdomain.ErrInvalidDate
	}
	actual, err := money.New(req.Actual.Value, req.Actual.Currency)
	if err != nil {
		return reconciliationdomain.ReconciliationRecord{}, err
	}
	day := reconciliationdomain.Day(req.Date)
	cfg := s.config()

	var record reconciliationdomain.ReconciliationRecord
	err = s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		existing, err := repos.Reconciliations().FindByDate(ctx, req.TerritoryID, day)
		if err != nil {
			return err
		}
		if existing != nil {
			return reconciliationdomain.ErrDuplicateReconciliation
		}

		expected, err := s.expected(ctx, repos, cfg, req.TerritoryID, day, actual.Currency)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		record = reconciliationdomain.ReconciliationRecord{
			ID:                 s.genID.Generate(),
			TerritoryID:        req.TerritoryID,
			ReconciliationDate: day,
			Currency:           actual.Currency,
			Notes:              strings.TrimSpace(req.Notes),
			ReconcilerID:       req.ReconcilerID,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		record.Compare(expected, actual.Value, cfg.Tolerance)
		return repos.Reconciliations().Insert(ctx, record)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = reconciliationdomain.ErrDuplicateReconciliation
		}
		if errors.Is(err, reconciliationdomain.ErrDuplicateReconciliation) {
			s.log.Info("reconciliation already exists",
				zap.String("territory_id", req.TerritoryID.String()),
				zap.String("date", day.Format(reconciliationdomain.DateLayout)),
			)
		}
		return reconciliationdomain.ReconciliationRecord{}, err
	}

	s.observe(ctx, record)
	span.SetAttributes(attribute.String("reconciliation.status", string(record.Status)))
	return record, nil
}

// Rereconcile recomputes the expected total and overwrites the comparison on
// an existing record.
func (s *Service) Rereconcile(ctx context.Context, req reconciliationdomain.RereconcileRequest) (reconciliationdomain.ReconciliationRecord, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.Rereconcile")
	defer span.End()

	if req.RecordID == 0 {
		return reconciliationdomain.ReconciliationRecord{}, reconciliationdomain.ErrNotFound
	}
	actual, err := money.New(req.Actual.Value, req.Actual.Currency)
	if err != nil {
		return reconciliationdomain.ReconciliationRecord{}, err
	}

	cfg := s.config()

	var record reconciliationdomain.ReconciliationRecord
	err = s.retrier.Do(ctx, "reconciliation.rereconcile", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			current, err := s.load(ctx, repos, req.RecordID)
			if err != nil {
				return err
			}
			if current.Currency != actual.Currency {
				return fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, current.Currency, actual.Currency)
			}
			expected, err := s.expected(ctx, repos, cfg, current.TerritoryID, current.ReconciliationDate, current.Currency)
			if err != nil {
				return err
			}
			current.Compare(expected, actual.Value, cfg.Tolerance)
			current.ReconcilerID = req.ReconcilerID
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				current.Notes = notes
			}
			current.UpdatedAt = s.clock.Now()
			if err := repos.Reconciliations().Update(ctx, current); err != nil {
				return err
			}
			record = *current
			return nil
		})
	})
	if err != nil {
		return reconciliationdomain.ReconciliationRecord{}, err
	}

	s.observe(ctx, record)
	return record, nil
}

// Resolve marks a discrepancy as handled by an operator.
func (s *Service) Resolve(ctx context.Context, req reconciliationdomain.ResolveRequest) (reconciliationdomain.ReconciliationRecord, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.Resolve")
	defer span.End()

	if req.RecordID == 0 {
		return reconciliationdomain.ReconciliationRecord{}, reconciliationdomain.ErrNotFound
	}

	var record reconciliationdomain.ReconciliationRecord
	err := s.retrier.Do(ctx, "reconciliation.resolve", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
			current, err := s.load(ctx, repos, req.RecordID)
			if err != nil {
				return err
			}
			if current.Status != reconciliationdomain.StatusDiscrepancy {
				return fmt.Errorf("%w: %s -> %s", reconciliationdomain.ErrInvalidTransition, current.Status, reconciliationdomain.StatusResolved)
			}
			current.Status = reconciliationdomain.StatusResolved
			current.ReconcilerID = req.ReconcilerID
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				current.Notes = notes
			}
			current.UpdatedAt = s.clock.Now()
			if err := repos.Reconciliations().Update(ctx, current); err != nil {
				return err
			}
			record = *current
			return nil
		})
	})
	if err != nil {
		return reconciliationdomain.ReconciliationRecord{}, err
	}

	s.log.Info("reconciliation resolved",
		zap.String("reconciliation_id", record.ID.String()),
		zap.String("reconciler_id", record.ReconcilerID),
	)
	return record, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (reconciliationdomain.ReconciliationRecord, error) {
	if id == 0 {
		return reconciliationdomain.ReconciliationRecord{}, reconciliationdomain.ErrNotFound
	}
	var record *reconciliationdomain.ReconciliationRecord
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		record, err = s.load(ctx, repos, id)
		return err
	})
	if err != nil {
		return reconciliationdomain.ReconciliationRecord{}, err
	}
	return *record, nil
}

func (s *Service) List(ctx context.Context, territoryID snowflake.ID) ([]reconciliationdomain.ReconciliationRecord, error) {
	if territoryID == 0 {
		return nil, reconciliationdomain.ErrInvalidTerritory
	}
	var records []reconciliationdomain.ReconciliationRecord
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		records, err = repos.Reconciliations().ListByTerritory(ctx, territoryID)
		return err
	})
	return records, err
}

func (s *Service) load(ctx context.Context, repos store.Repositories, id snowflake.ID) (*reconciliationdomain.ReconciliationRecord, error) {
	record, err := repos.Reconciliations().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, reconciliationdomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) expected(ctx context.Context, repos store.Repositories, cfg Config, territoryID snowflake.ID, day time.Time, currency string) (int64, error) {
	return repos.Transactions().Sum(ctx, ledgerdomain.SumFilter{
		TerritoryID: territoryID,
		Currency:    currency,
		Types:       cfg.SettlementTypes,
		Status:      ledgerdomain.StatusCompleted,
		From:        day,
		To:          day.Add(24 * time.Hour),
	})
}

func (s *Service) observe(ctx context.Context, record reconciliationdomain.ReconciliationRecord) {
	s.obsMetrics.RecordReconciliation(ctx, record.TerritoryID.String(), string(record.Status), record.Difference)

	fields := []zap.Field{
		zap.String("reconciliation_id", record.ID.String()),
		zap.String("territory_id", record.TerritoryID.String()),
		zap.String("date", record.ReconciliationDate.Format(reconciliationdomain.DateLayout)),
		zap.Int64("expected_amount", record.ExpectedAmount),
		zap.Int64("actual_amount", record.ActualAmount),
		zap.Int64("difference", record.Difference),
		zap.String("currency", record.Currency),
		zap.String("status", string(record.Status)),
	}
	if record.Status == reconciliationdomain.StatusDiscrepancy {
		s.log.Warn("reconciliation discrepancy", fields...)
		return
	}
	s.log.Info("reconciliation matched", fields...)
}
