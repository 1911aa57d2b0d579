package relational

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"gorm.io/gorm"
)

type sellerTxnRepo struct {
	db *gorm.DB
}

func (r sellerTxnRepo) Insert(ctx context.Context, txn sellerdomain.SellerTransaction) error {
	model := newSellerTransactionModel(txn)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrDuplicate)
	}
	return nil
}

func (r sellerTxnRepo) FindByID(ctx context.Context, id snowflake.ID) (*sellerdomain.SellerTransaction, error) {
	return r.findOne(ctx, "id = ?", int64(id))
}

func (r sellerTxnRepo) FindByCheckout(ctx context.Context, checkoutID snowflake.ID) (*sellerdomain.SellerTransaction, error) {
	return r.findOne(ctx, "checkout_id = ?", int64(checkoutID))
}

func (r sellerTxnRepo) findOne(ctx context.Context, where string, arg any) (*sellerdomain.SellerTransaction, error) {
	var rows []sellerTransactionModel
	if err := r.db.WithContext(ctx).Where(where, arg).Limit(1).Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	txn := rows[0].toDomain()
	return &txn, nil
}

func (r sellerTxnRepo) UpdateStatus(ctx context.Context, txn sellerdomain.SellerTransaction, expected sellerdomain.SellerTransactionStatus) error {
	model := newSellerTransactionModel(txn)
	res := r.db.WithContext(ctx).
		Model(&sellerTransactionModel{}).
		Where("id = ? AND status = ?", model.ID, string(expected)).
		UpdateColumns(map[string]any{
			"status":                   model.Status,
			"payout_batch_id":          model.PayoutBatchID,
			"ready_for_payout_at":      model.ReadyForPayoutAt,
			"paid_at":                  model.PaidAt,
			"reversed_at":              model.ReversedAt,
			"reversal_reason":          model.ReversalReason,
			"payout_transaction_id":    model.PayoutTransactionID,
			"reversal_transaction_id":  model.ReversalTransactionID,
			"financial_transaction_id": model.FinancialTransactionID,
			"updated_at":               model.UpdatedAt,
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

func (r sellerTxnRepo) ListPendingBefore(ctx context.Context, territoryID snowflake.ID, cutoff time.Time, limit int) ([]sellerdomain.SellerTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("territory_id = ? AND status = ? AND created_at <= ?", int64(territoryID), string(sellerdomain.StatusPending), cutoff.UTC()).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []sellerTransactionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	return sellerTxnsToDomain(rows), nil
}

func (r sellerTxnRepo) ListBySeller(ctx context.Context, territoryID, sellerID snowflake.ID) ([]sellerdomain.SellerTransaction, error) {
	var rows []sellerTransactionModel
	if err := r.db.WithContext(ctx).
		Where("territory_id = ? AND seller_id = ?", int64(territoryID), int64(sellerID)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	return sellerTxnsToDomain(rows), nil
}

func sellerTxnsToDomain(rows []sellerTransactionModel) []sellerdomain.SellerTransaction {
	out := make([]sellerdomain.SellerTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

type sellerBalanceRepo struct {
	db *gorm.DB
}

func (r sellerBalanceRepo) Find(ctx context.Context, territoryID, sellerID snowflake.ID) (*sellerdomain.SellerBalance, error) {
	var rows []sellerBalanceModel
	if err := r.db.WithContext(ctx).
		Where("territory_id = ? AND seller_id = ?", int64(territoryID), int64(sellerID)).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	balance := rows[0].toDomain()
	return &balance, nil
}

// Insert creates the first row of a balance. Losing the race against a
// concurrent first insert is a version conflict so the caller re-reads.
func (r sellerBalanceRepo) Insert(ctx context.Context, balance *sellerdomain.SellerBalance) error {
	model := newSellerBalanceModel(*balance)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrVersionConflict)
	}
	return nil
}

func (r sellerBalanceRepo) Update(ctx context.Context, balance *sellerdomain.SellerBalance) error {
	res := r.db.WithContext(ctx).
		Model(&sellerBalanceModel{}).
		Where("territory_id = ? AND seller_id = ? AND version = ?", int64(balance.TerritoryID), int64(balance.SellerID), balance.Version).
		UpdateColumns(map[string]any{
			"pending_amount":          balance.PendingAmount,
			"ready_for_payout_amount": balance.ReadyForPayoutAmount,
			"paid_amount":             balance.PaidAmount,
			"version":                 gorm.Expr("version + 1"),
			"updated_at":              balance.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	balance.Version++
	return nil
}

func (r sellerBalanceRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]sellerdomain.SellerBalance, error) {
	var rows []sellerBalanceModel
	if err := r.db.WithContext(ctx).
		Where("territory_id = ?", int64(territoryID)).
		Order("seller_id ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]sellerdomain.SellerBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
