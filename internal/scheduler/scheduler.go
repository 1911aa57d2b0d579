package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketledger/internal/apperror"
	"github.com/smallbiznis/marketledger/internal/clock"
	"github.com/smallbiznis/marketledger/internal/config"
	obsmetrics "github.com/smallbiznis/marketledger/internal/observability/metrics"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	SellerSvc sellerdomain.Service
	Platform  platformdomain.Service
	Settings  *config.LedgerConfigHolder
	Locker    JobLocker `optional:"true"`
	Config    Config    `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	sellerSvc sellerdomain.Service
	platform  platformdomain.Service
	settings  *config.LedgerConfigHolder
	locker    JobLocker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.SellerSvc == nil || p.Platform == nil || p.Settings == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		sellerSvc: p.SellerSvc,
		platform:  p.Platform,
		settings:  p.Settings,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	schedMetrics := obsmetrics.Scheduler()

	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(parent, name, s.cfg.LockTTL)
		if err != nil {
			schedMetrics.IncJobError(name, err)
			return fmt.Errorf("%s: acquire lock: %w", name, err)
		}
		if !acquired {
			schedMetrics.IncBatchSkipped(name, obsmetrics.SchedulerBatchSkippedReasonLockHeld)
			s.log.Debug("job skipped, lock held by another instance", zap.String("job", name))
			return nil
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, name, token); err != nil {
				s.log.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errors == 0 {
			run.fail()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// a timed out job resumes on the next tick
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobPromoteReadyForPayout, s.PromoteReadyForPayoutJob},
		{JobBalanceAudit, s.BalanceAuditJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = s.clock.Now().Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// PromoteReadyForPayoutJob moves every pending seller transaction past the
// retention window to ReadyForPayout, territory by territory.
func (s *Scheduler) PromoteReadyForPayoutJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPromoteReadyForPayout)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	territories, err := s.platform.ListTerritories(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.territories.list.failed", 0, err)
		return err
	}

	retention := s.settings.Get().RetentionPeriod
	var jobErr error
	for _, territoryID := range territories {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		if err := s.promoteTerritory(ctx, run, territoryID, retention); err != nil {
			jobErr = errors.Join(jobErr, err)
		}
		run.territoryDone()
	}
	return jobErr
}

func (s *Scheduler) promoteTerritory(ctx context.Context, run *jobRun, territoryID snowflake.ID, retention time.Duration) error {
	ctx = s.withLogContext(ctx, territoryID)
	schedMetrics := obsmetrics.Scheduler()

	var jobErr error
	for {
		result, err := s.sellerSvc.PromoteReadyForPayout(ctx, territoryID, retention)
		run.addProcessed(len(result.Promoted))
		schedMetrics.AddBatchProcessed(JobPromoteReadyForPayout, "seller_transaction", len(result.Promoted))
		for _, failed := range result.Failed {
			jobErr = errors.Join(jobErr, fmt.Errorf("seller transaction %s: %w", failed.SellerTransactionID, failed.Err))
			s.logSchedulerError(ctx, run, "scheduler.promotion.failed", territoryID, failed.Err,
				zap.String("seller_transaction_id", idString(failed.SellerTransactionID)),
				zap.String("error_kind", apperror.Kind(failed.Err)),
			)
		}
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.promotion.sweep.failed", territoryID, err)
			return errors.Join(jobErr, err)
		}
		// failed items stay pending, so another sweep would pick them up again
		if len(result.Promoted) == 0 || len(result.Failed) > 0 {
			return jobErr
		}
	}
}

// BalanceAuditJob recomputes seller balances from their transactions and
// reports drift. It never corrects a balance.
func (s *Scheduler) BalanceAuditJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobBalanceAudit)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	territories, err := s.platform.ListTerritories(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.territories.list.failed", 0, err)
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	var jobErr error
	for _, territoryID := range territories {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		report, err := s.sellerSvc.AuditBalances(ctx, territoryID)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.audit.failed", territoryID, err)
			continue
		}
		run.territoryDone()
		run.addProcessed(report.Checked)
		schedMetrics.AddBatchProcessed(JobBalanceAudit, "seller_balance", report.Checked)
		if len(report.Drifts) > 0 {
			s.logger(s.withLogContext(ctx, territoryID)).Warn("scheduler.audit.drift",
				zap.String("job", JobBalanceAudit),
				zap.Int("checked", report.Checked),
				zap.Int("drifted", len(report.Drifts)),
			)
		}
	}
	return jobErr
}
