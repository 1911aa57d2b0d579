package relational

import (
	"context"

	"github.com/bwmarrin/snowflake"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"gorm.io/gorm"
)

type platformBalanceRepo struct {
	db *gorm.DB
}

func (r platformBalanceRepo) Find(ctx context.Context, territoryID snowflake.ID) (*platformdomain.PlatformFinancialBalance, error) {
	var rows []platformBalanceModel
	if err := r.db.WithContext(ctx).Where("territory_id = ?", int64(territoryID)).Limit(1).Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	balance := rows[0].toDomain()
	return &balance, nil
}

func (r platformBalanceRepo) Insert(ctx context.Context, balance *platformdomain.PlatformFinancialBalance) error {
	model := newPlatformBalanceModel(*balance)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrVersionConflict)
	}
	return nil
}

func (r platformBalanceRepo) Update(ctx context.Context, balance *platformdomain.PlatformFinancialBalance) error {
	res := r.db.WithContext(ctx).
		Model(&platformBalanceModel{}).
		Where("territory_id = ? AND version = ?", int64(balance.TerritoryID), balance.Version).
		UpdateColumns(map[string]any{
			"total_revenue":  balance.TotalRevenue,
			"total_expenses": balance.TotalExpenses,
			"net_balance":    balance.NetBalance,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     balance.UpdatedAt.UTC(),
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

func (r platformBalanceRepo) ListTerritories(ctx context.Context) ([]snowflake.ID, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&platformBalanceModel{}).
		Order("territory_id ASC").
		Pluck("territory_id", &ids).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, snowflake.ID(id))
	}
	return out, nil
}

type revenueRepo struct {
	db *gorm.DB
}

func (r revenueRepo) Insert(ctx context.Context, revenue platformdomain.PlatformRevenueTransaction) error {
	model := revenueModel{
		ID:                     int64(revenue.ID),
		TerritoryID:            int64(revenue.TerritoryID),
		CheckoutID:             int64(revenue.CheckoutID),
		SellerTransactionID:    int64(revenue.SellerTransactionID),
		Amount:                 revenue.Amount,
		Currency:               revenue.Currency,
		FinancialTransactionID: int64(revenue.FinancialTransactionID),
		CreatedAt:              revenue.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrDuplicate)
	}
	return nil
}

func (r revenueRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]platformdomain.PlatformRevenueTransaction, error) {
	var rows []revenueModel
	if err := r.db.WithContext(ctx).
		Where("territory_id = ?", int64(territoryID)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]platformdomain.PlatformRevenueTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type expenseRepo struct {
	db *gorm.DB
}

func (r expenseRepo) Insert(ctx context.Context, expense platformdomain.PlatformExpenseTransaction) error {
	model := expenseModel{
		ID:                     int64(expense.ID),
		TerritoryID:            int64(expense.TerritoryID),
		Amount:                 expense.Amount,
		Currency:               expense.Currency,
		PayoutBatchID:          int64(expense.PayoutBatchID),
		FinancialTransactionID: int64(expense.FinancialTransactionID),
		CreatedAt:              expense.CreatedAt.UTC(),
	}
	if expense.SellerTransactionID != 0 {
		id := int64(expense.SellerTransactionID)
		model.SellerTransactionID = &id
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrDuplicate)
	}
	return nil
}

func (r expenseRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]platformdomain.PlatformExpenseTransaction, error) {
	var rows []expenseModel
	if err := r.db.WithContext(ctx).
		Where("territory_id = ?", int64(territoryID)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]platformdomain.PlatformExpenseTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
