package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"go.uber.org/zap"
)

func (s *Service) GetBalance(ctx context.Context, territoryID, sellerID snowflake.ID) (sellerdomain.SellerBalance, error) {
	if territoryID == 0 {
		return sellerdomain.SellerBalance{}, sellerdomain.ErrInvalidTerritory
	}
	if sellerID == 0 {
		return sellerdomain.SellerBalance{}, sellerdomain.ErrInvalidSeller
	}
	var balance *sellerdomain.SellerBalance
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		balance, err = repos.SellerBalances().Find(ctx, territoryID, sellerID)
		return err
	})
	if err != nil {
		return sellerdomain.SellerBalance{}, err
	}
	if balance == nil {
		return sellerdomain.SellerBalance{}, sellerdomain.ErrBalanceNotFound
	}
	return *balance, nil
}

func (s *Service) GetTransaction(ctx context.Context, id snowflake.ID) (sellerdomain.SellerTransaction, error) {
	if id == 0 {
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrNotFound
	}
	var txn *sellerdomain.SellerTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		txn, err = repos.SellerTransactions().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return sellerdomain.SellerTransaction{}, err
	}
	if txn == nil {
		return sellerdomain.SellerTransaction{}, sellerdomain.ErrNotFound
	}
	return *txn, nil
}

// Statement returns the seller's balance with every transaction behind it,
// oldest first.
func (s *Service) Statement(ctx context.Context, territoryID, sellerID snowflake.ID) (sellerdomain.Statement, error) {
	if territoryID == 0 {
		return sellerdomain.Statement{}, sellerdomain.ErrInvalidTerritory
	}
	if sellerID == 0 {
		return sellerdomain.Statement{}, sellerdomain.ErrInvalidSeller
	}

	var statement sellerdomain.Statement
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balance, err := repos.SellerBalances().Find(ctx, territoryID, sellerID)
		if err != nil {
			return err
		}
		if balance == nil {
			return sellerdomain.ErrBalanceNotFound
		}
		txns, err := repos.SellerTransactions().ListBySeller(ctx, territoryID, sellerID)
		if err != nil {
			return err
		}
		statement = sellerdomain.Statement{Balance: *balance, Transactions: txns}
		return nil
	})
	if err != nil {
		return sellerdomain.Statement{}, err
	}
	sortByCreated(statement.Transactions)
	return statement, nil
}

// AuditBalances recomputes every seller balance in the territory from its
// transactions and reports the ones that disagree. It never corrects them.
func (s *Service) AuditBalances(ctx context.Context, territoryID snowflake.ID) (sellerdomain.AuditReport, error) {
	report := sellerdomain.AuditReport{TerritoryID: territoryID}
	if territoryID == 0 {
		return report, sellerdomain.ErrInvalidTerritory
	}

	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		balances, err := repos.SellerBalances().ListByTerritory(ctx, territoryID)
		if err != nil {
			return err
		}
		for _, balance := range balances {
			txns, err := repos.SellerTransactions().ListBySeller(ctx, territoryID, balance.SellerID)
			if err != nil {
				return err
			}
			report.Checked++
			expected := sellerdomain.ExpectedBalance(balance, txns)
			if expected.PendingAmount != balance.PendingAmount ||
				expected.ReadyForPayoutAmount != balance.ReadyForPayoutAmount ||
				expected.PaidAmount != balance.PaidAmount {
				report.Drifts = append(report.Drifts, sellerdomain.BalanceDrift{
					SellerID: balance.SellerID,
					Stored:   balance,
					Expected: expected,
				})
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, drift := range report.Drifts {
		s.log.Warn("seller balance drift detected",
			zap.String("territory_id", territoryID.String()),
			zap.String("seller_id", drift.SellerID.String()),
			zap.Int64("stored_pending", drift.Stored.PendingAmount),
			zap.Int64("expected_pending", drift.Expected.PendingAmount),
			zap.Int64("stored_ready", drift.Stored.ReadyForPayoutAmount),
			zap.Int64("expected_ready", drift.Expected.ReadyForPayoutAmount),
			zap.Int64("stored_paid", drift.Stored.PaidAmount),
			zap.Int64("expected_paid", drift.Expected.PaidAmount),
		)
	}
	s.obsMetrics.RecordBalanceDrift(ctx, territoryID.String(), len(report.Drifts))
	return report, nil
}

func sortByCreated(txns []sellerdomain.SellerTransaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].ID < txns[j].ID
		}
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})
}
