package memory

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/smallbiznis/marketledger/internal/store"
)

type ledgerRepo struct{ t *tx }

func (r ledgerRepo) Insert(ctx context.Context, txn ledgerdomain.FinancialTransaction) error {
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.transactions.get(d.transactions, txn.ID); ok {
			err = store.ErrDuplicate
			return
		}
		r.t.transactions.put(d.transactions, txn.ID, txn.Clone())
	})
	return err
}

func (r ledgerRepo) FindByID(ctx context.Context, id snowflake.ID) (*ledgerdomain.FinancialTransaction, error) {
	var out *ledgerdomain.FinancialTransaction
	r.t.store.read(func(d *dataset) {
		if txn, ok := r.t.transactions.get(d.transactions, id); ok {
			clone := txn.Clone()
			out = &clone
		}
	})
	return out, nil
}

func (r ledgerRepo) UpdateStatus(ctx context.Context, txn ledgerdomain.FinancialTransaction, expected ledgerdomain.TransactionStatus) error {
	var err error
	r.t.store.read(func(d *dataset) {
		current, ok := r.t.transactions.get(d.transactions, txn.ID)
		if !ok || current.Status != expected {
			err = store.ErrVersionConflict
			return
		}
		next := current.Clone()
		next.Status = txn.Status
		next.UpdatedAt = txn.UpdatedAt
		r.t.transactions.put(d.transactions, txn.ID, next)
	})
	return err
}

func (r ledgerRepo) AddLink(ctx context.Context, id, relatedID snowflake.ID) error {
	var err error
	r.t.store.read(func(d *dataset) {
		current, ok := r.t.transactions.get(d.transactions, id)
		if !ok {
			err = ledgerdomain.ErrNotFound
			return
		}
		if current.IsRelated(relatedID) {
			return
		}
		next := current.Clone()
		next.RelatedTransactionIDs = append(next.RelatedTransactionIDs, relatedID)
		r.t.transactions.put(d.transactions, id, next)
	})
	return err
}

func (r ledgerRepo) AppendHistory(ctx context.Context, history ledgerdomain.TransactionStatusHistory) error {
	r.t.history = append(r.t.history, history)
	return nil
}

func (r ledgerRepo) ListHistory(ctx context.Context, transactionID snowflake.ID) ([]ledgerdomain.TransactionStatusHistory, error) {
	var out []ledgerdomain.TransactionStatusHistory
	r.t.store.read(func(d *dataset) {
		out = append(out, d.history[transactionID]...)
	})
	for _, row := range r.t.history {
		if row.TransactionID == transactionID {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r ledgerRepo) Sum(ctx context.Context, filter ledgerdomain.SumFilter) (int64, error) {
	types := make(map[ledgerdomain.TransactionType]bool, len(filter.Types))
	for _, t := range filter.Types {
		types[t] = true
	}

	var total int64
	r.t.store.read(func(d *dataset) {
		for _, txn := range r.t.transactions.merged(d.transactions) {
			if txn.TerritoryID != filter.TerritoryID {
				continue
			}
			if filter.Currency != "" && txn.Currency != filter.Currency {
				continue
			}
			if len(types) > 0 && !types[txn.Type] {
				continue
			}
			if filter.Status != "" && txn.Status != filter.Status {
				continue
			}
			if !inWindow(txn.CreatedAt, filter.From, filter.To) {
				continue
			}
			total += txn.Amount
		}
	})
	return total, nil
}
