package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
)

type sellerTxnRepo struct{ t *tx }

func (r sellerTxnRepo) Insert(ctx context.Context, txn sellerdomain.SellerTransaction) error {
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.checkouts.get(d.checkouts, txn.CheckoutID); ok {
			err = store.ErrDuplicate
			return
		}
		if _, ok := r.t.sellerTxns.get(d.sellerTxns, txn.ID); ok {
			err = store.ErrDuplicate
			return
		}
		r.t.checkouts.put(d.checkouts, txn.CheckoutID, txn.ID)
		r.t.sellerTxns.put(d.sellerTxns, txn.ID, txn.Clone())
	})
	return err
}

func (r sellerTxnRepo) FindByID(ctx context.Context, id snowflake.ID) (*sellerdomain.SellerTransaction, error) {
	var out *sellerdomain.SellerTransaction
	r.t.store.read(func(d *dataset) {
		if txn, ok := r.t.sellerTxns.get(d.sellerTxns, id); ok {
			clone := txn.Clone()
			out = &clone
		}
	})
	return out, nil
}

func (r sellerTxnRepo) FindByCheckout(ctx context.Context, checkoutID snowflake.ID) (*sellerdomain.SellerTransaction, error) {
	var out *sellerdomain.SellerTransaction
	r.t.store.read(func(d *dataset) {
		id, ok := r.t.checkouts.get(d.checkouts, checkoutID)
		if !ok {
			return
		}
		if txn, ok := r.t.sellerTxns.get(d.sellerTxns, id); ok {
			clone := txn.Clone()
			out = &clone
		}
	})
	return out, nil
}

func (r sellerTxnRepo) UpdateStatus(ctx context.Context, txn sellerdomain.SellerTransaction, expected sellerdomain.SellerTransactionStatus) error {
	var err error
	r.t.store.read(func(d *dataset) {
		current, ok := r.t.sellerTxns.get(d.sellerTxns, txn.ID)
		if !ok || current.Status != expected {
			err = store.ErrVersionConflict
			return
		}
		next := txn.Clone()
		next.CheckoutID = current.CheckoutID
		next.CreatedAt = current.CreatedAt
		r.t.sellerTxns.put(d.sellerTxns, txn.ID, next)
	})
	return err
}

func (r sellerTxnRepo) ListPendingBefore(ctx context.Context, territoryID snowflake.ID, cutoff time.Time, limit int) ([]sellerdomain.SellerTransaction, error) {
	var out []sellerdomain.SellerTransaction
	r.t.store.read(func(d *dataset) {
		for _, txn := range r.t.sellerTxns.merged(d.sellerTxns) {
			if txn.TerritoryID != territoryID || txn.Status != sellerdomain.StatusPending {
				continue
			}
			if txn.CreatedAt.After(cutoff) {
				continue
			}
			out = append(out, txn.Clone())
		}
	})
	sortSellerTxns(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r sellerTxnRepo) ListBySeller(ctx context.Context, territoryID, sellerID snowflake.ID) ([]sellerdomain.SellerTransaction, error) {
	var out []sellerdomain.SellerTransaction
	r.t.store.read(func(d *dataset) {
		for _, txn := range r.t.sellerTxns.merged(d.sellerTxns) {
			if txn.TerritoryID == territoryID && txn.SellerID == sellerID {
				out = append(out, txn.Clone())
			}
		}
	})
	sortSellerTxns(out)
	return out, nil
}

func sortSellerTxns(txns []sellerdomain.SellerTransaction) {
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].ID < txns[j].ID
		}
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})
}

type sellerBalanceRepo struct{ t *tx }

func (r sellerBalanceRepo) Find(ctx context.Context, territoryID, sellerID snowflake.ID) (*sellerdomain.SellerBalance, error) {
	var out *sellerdomain.SellerBalance
	r.t.store.read(func(d *dataset) {
		if balance, ok := r.t.sellerBalances.get(d.sellerBalances, balanceKey{territoryID, sellerID}); ok {
			out = &balance
		}
	})
	return out, nil
}

func (r sellerBalanceRepo) Insert(ctx context.Context, balance *sellerdomain.SellerBalance) error {
	key := balanceKey{balance.TerritoryID, balance.SellerID}
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.sellerBalances.get(d.sellerBalances, key); ok {
			err = store.ErrVersionConflict
			return
		}
		r.t.sellerBalances.put(d.sellerBalances, key, *balance)
	})
	return err
}

func (r sellerBalanceRepo) Update(ctx context.Context, balance *sellerdomain.SellerBalance) error {
	key := balanceKey{balance.TerritoryID, balance.SellerID}
	var err error
	r.t.store.read(func(d *dataset) {
		current, ok := r.t.sellerBalances.get(d.sellerBalances, key)
		if !ok || current.Version != balance.Version {
			err = store.ErrVersionConflict
			return
		}
		next := *balance
		next.Version++
		r.t.sellerBalances.put(d.sellerBalances, key, next)
	})
	if err != nil {
		return err
	}
	balance.Version++
	return nil
}

func (r sellerBalanceRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]sellerdomain.SellerBalance, error) {
	var out []sellerdomain.SellerBalance
	r.t.store.read(func(d *dataset) {
		for key, balance := range r.t.sellerBalances.merged(d.sellerBalances) {
			if key.territoryID == territoryID {
				out = append(out, balance)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out, nil
}
