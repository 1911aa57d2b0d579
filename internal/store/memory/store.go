// Package memory is the in-process adapter of the store contract. A unit of
// work stages its writes and commits them only if every row it overwrote is
// still what it saw.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
)

type balanceKey struct {
	territoryID snowflake.ID
	sellerID    snowflake.ID
}

type dateKey struct {
	territoryID snowflake.ID
	date        string
}

type dataset struct {
	transactions     map[snowflake.ID]ledgerdomain.FinancialTransaction
	history          map[snowflake.ID][]ledgerdomain.TransactionStatusHistory
	sellerTxns       map[snowflake.ID]sellerdomain.SellerTransaction
	checkouts        map[snowflake.ID]snowflake.ID
	sellerBalances   map[balanceKey]sellerdomain.SellerBalance
	platformBalances map[snowflake.ID]platformdomain.PlatformFinancialBalance
	revenue          map[snowflake.ID]platformdomain.PlatformRevenueTransaction
	expenses         map[snowflake.ID]platformdomain.PlatformExpenseTransaction
	reconciliations  map[snowflake.ID]reconciliationdomain.ReconciliationRecord
	reconDates       map[dateKey]snowflake.ID
}

func newDataset() *dataset {
	return &dataset{
		transactions:     map[snowflake.ID]ledgerdomain.FinancialTransaction{},
		history:          map[snowflake.ID][]ledgerdomain.TransactionStatusHistory{},
		sellerTxns:       map[snowflake.ID]sellerdomain.SellerTransaction{},
		checkouts:        map[snowflake.ID]snowflake.ID{},
		sellerBalances:   map[balanceKey]sellerdomain.SellerBalance{},
		platformBalances: map[snowflake.ID]platformdomain.PlatformFinancialBalance{},
		revenue:          map[snowflake.ID]platformdomain.PlatformRevenueTransaction{},
		expenses:         map[snowflake.ID]platformdomain.PlatformExpenseTransaction{},
		reconciliations:  map[snowflake.ID]reconciliationdomain.ReconciliationRecord{},
		reconDates:       map[dateKey]snowflake.ID{},
	}
}

// Store holds the committed dataset.
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

func New() *Store {
	return &Store{data: newDataset()}
}

// Do runs fn against a fresh overlay and commits it atomically.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.data
	checks := []func() error{
		func() error { return t.transactions.verify(d.transactions) },
		func() error { return t.sellerTxns.verify(d.sellerTxns) },
		func() error { return t.checkouts.verify(d.checkouts) },
		func() error { return t.sellerBalances.verify(d.sellerBalances) },
		func() error { return t.platformBalances.verify(d.platformBalances) },
		func() error { return t.revenue.verify(d.revenue) },
		func() error { return t.expenses.verify(d.expenses) },
		func() error { return t.reconciliations.verify(d.reconciliations) },
		func() error { return t.reconDates.verify(d.reconDates) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	for id, staged := range t.transactions.rows {
		if current, ok := d.transactions[id]; ok {
			staged.RelatedTransactionIDs = union(current.RelatedTransactionIDs, staged.RelatedTransactionIDs)
		}
		d.transactions[id] = staged
	}
	for _, row := range t.history {
		d.history[row.TransactionID] = append(d.history[row.TransactionID], row)
	}
	t.sellerTxns.apply(d.sellerTxns)
	t.checkouts.apply(d.checkouts)
	t.sellerBalances.apply(d.sellerBalances)
	t.platformBalances.apply(d.platformBalances)
	t.revenue.apply(d.revenue)
	t.expenses.apply(d.expenses)
	t.reconciliations.apply(d.reconciliations)
	t.reconDates.apply(d.reconDates)
	return nil
}

// read runs fn with the committed dataset held for reading.
func (s *Store) read(fn func(d *dataset)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

type tx struct {
	store *Store

	transactions     *stage[snowflake.ID, ledgerdomain.FinancialTransaction]
	history          []ledgerdomain.TransactionStatusHistory
	sellerTxns       *stage[snowflake.ID, sellerdomain.SellerTransaction]
	checkouts        *stage[snowflake.ID, snowflake.ID]
	sellerBalances   *stage[balanceKey, sellerdomain.SellerBalance]
	platformBalances *stage[snowflake.ID, platformdomain.PlatformFinancialBalance]
	revenue          *stage[snowflake.ID, platformdomain.PlatformRevenueTransaction]
	expenses         *stage[snowflake.ID, platformdomain.PlatformExpenseTransaction]
	reconciliations  *stage[snowflake.ID, reconciliationdomain.ReconciliationRecord]
	reconDates       *stage[dateKey, snowflake.ID]
}

func newTx(s *Store) *tx {
	return &tx{
		store: s,
		transactions: newStage[snowflake.ID](func(t ledgerdomain.FinancialTransaction) string {
			return string(t.Status)
		}, store.ErrVersionConflict),
		sellerTxns: newStage[snowflake.ID](func(t sellerdomain.SellerTransaction) string {
			return string(t.Status)
		}, store.ErrVersionConflict),
		checkouts: newStage[snowflake.ID](noMark[snowflake.ID], store.ErrDuplicate),
		sellerBalances: newStage[balanceKey](func(b sellerdomain.SellerBalance) string {
			return strconv.FormatInt(b.Version, 10)
		}, store.ErrVersionConflict),
		platformBalances: newStage[snowflake.ID](func(b platformdomain.PlatformFinancialBalance) string {
			return strconv.FormatInt(b.Version, 10)
		}, store.ErrVersionConflict),
		revenue:  newStage[snowflake.ID](noMark[platformdomain.PlatformRevenueTransaction], store.ErrDuplicate),
		expenses: newStage[snowflake.ID](noMark[platformdomain.PlatformExpenseTransaction], store.ErrDuplicate),
		reconciliations: newStage[snowflake.ID](func(r reconciliationdomain.ReconciliationRecord) string {
			return strconv.FormatInt(r.Version, 10)
		}, store.ErrVersionConflict),
		reconDates: newStage[dateKey](noMark[snowflake.ID], store.ErrDuplicate),
	}
}

func (t *tx) Transactions() ledgerdomain.Repository                  { return ledgerRepo{t} }
func (t *tx) SellerTransactions() sellerdomain.TransactionRepository { return sellerTxnRepo{t} }
func (t *tx) SellerBalances() sellerdomain.BalanceRepository         { return sellerBalanceRepo{t} }
func (t *tx) PlatformBalances() platformdomain.BalanceRepository     { return platformBalanceRepo{t} }
func (t *tx) PlatformRevenue() platformdomain.RevenueRepository      { return revenueRepo{t} }
func (t *tx) PlatformExpenses() platformdomain.ExpenseRepository     { return expenseRepo{t} }
func (t *tx) Reconciliations() reconciliationdomain.Repository       { return reconciliationRepo{t} }

func union(a, b []snowflake.ID) []snowflake.ID {
	if len(a) == 0 {
		return append([]snowflake.ID(nil), b...)
	}
	out := append([]snowflake.ID(nil), a...)
	for _, id := range b {
		found := false
		for _, existing := range out {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
