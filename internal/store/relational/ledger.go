package relational

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepo struct {
	db *gorm.DB
}

func (r ledgerRepo) Insert(ctx context.Context, txn ledgerdomain.FinancialTransaction) error {
	model := newFinancialTransactionModel(txn)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrDuplicate)
	}
	for _, related := range txn.RelatedTransactionIDs {
		if err := r.AddLink(ctx, txn.ID, related); err != nil {
			return err
		}
	}
	return nil
}

func (r ledgerRepo) FindByID(ctx context.Context, id snowflake.ID) (*ledgerdomain.FinancialTransaction, error) {
	var rows []financialTransactionModel
	if err := r.db.WithContext(ctx).Where("id = ?", int64(id)).Limit(1).Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var related []int64
	if err := r.db.WithContext(ctx).
		Model(&transactionLinkModel{}).
		Where("transaction_id = ?", int64(id)).
		Order("related_id").
		Pluck("related_id", &related).Error; err != nil {
		return nil, classify(err)
	}

	txn := rows[0].toDomain(related)
	return &txn, nil
}

func (r ledgerRepo) UpdateStatus(ctx context.Context, txn ledgerdomain.FinancialTransaction, expected ledgerdomain.TransactionStatus) error {
	res := r.db.WithContext(ctx).
		Model(&financialTransactionModel{}).
		Where("id = ? AND status = ?", int64(txn.ID), string(expected)).
		UpdateColumns(map[string]any{
			"status":     string(txn.Status),
			"updated_at": txn.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

func (r ledgerRepo) AddLink(ctx context.Context, id, relatedID snowflake.ID) error {
	link := transactionLinkModel{TransactionID: int64(id), RelatedID: int64(relatedID)}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error
	return classify(err)
}

func (r ledgerRepo) AppendHistory(ctx context.Context, history ledgerdomain.TransactionStatusHistory) error {
	model := statusHistoryModel{
		ID:             int64(history.ID),
		TransactionID:  int64(history.TransactionID),
		PreviousStatus: string(history.PreviousStatus),
		NewStatus:      string(history.NewStatus),
		ActorID:        history.ActorID,
		Reason:         history.Reason,
		CreatedAt:      history.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrDuplicate)
	}
	return nil
}

func (r ledgerRepo) ListHistory(ctx context.Context, transactionID snowflake.ID) ([]ledgerdomain.TransactionStatusHistory, error) {
	var rows []statusHistoryModel
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", int64(transactionID)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]ledgerdomain.TransactionStatusHistory, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r ledgerRepo) Sum(ctx context.Context, filter ledgerdomain.SumFilter) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&financialTransactionModel{}).
		Where("territory_id = ?", int64(filter.TerritoryID))
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		query = query.Where("type IN ?", types)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at < ?", filter.To.UTC())
	}

	var total int64
	if err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return 0, classify(err)
	}
	return total, nil
}
