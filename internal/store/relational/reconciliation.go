package relational

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"gorm.io/gorm"
)

type reconciliationRepo struct {
	db *gorm.DB
}

func (r reconciliationRepo) Insert(ctx context.Context, record reconciliationdomain.ReconciliationRecord) error {
	model := newReconciliationModel(record)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return insertErr(err, store.ErrDuplicate)
	}
	return nil
}

func (r reconciliationRepo) FindByID(ctx context.Context, id snowflake.ID) (*reconciliationdomain.ReconciliationRecord, error) {
	return r.findOne(ctx, "id = ?", int64(id))
}

func (r reconciliationRepo) FindByDate(ctx context.Context, territoryID snowflake.ID, date time.Time) (*reconciliationdomain.ReconciliationRecord, error) {
	day := reconciliationdomain.Day(date).Format(reconciliationdomain.DateLayout)
	return r.findOne(ctx, "territory_id = ? AND reconciliation_date = ?", int64(territoryID), day)
}

func (r reconciliationRepo) findOne(ctx context.Context, where string, args ...any) (*reconciliationdomain.ReconciliationRecord, error) {
	var rows []reconciliationModel
	if err := r.db.WithContext(ctx).Where(where, args...).Limit(1).Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	record, err := rows[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r reconciliationRepo) Update(ctx context.Context, record *reconciliationdomain.ReconciliationRecord) error {
	res := r.db.WithContext(ctx).
		Model(&reconciliationModel{}).
		Where("id = ? AND version = ?", int64(record.ID), record.Version).
		UpdateColumns(map[string]any{
			"expected_amount": record.ExpectedAmount,
			"actual_amount":   record.ActualAmount,
			"difference":      record.Difference,
			"status":          string(record.Status),
			"notes":           record.Notes,
			"reconciler_id":   record.ReconcilerID,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      record.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	record.Version++
	return nil
}

func (r reconciliationRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]reconciliationdomain.ReconciliationRecord, error) {
	var rows []reconciliationModel
	if err := r.db.WithContext(ctx).
		Where("territory_id = ?", int64(territoryID)).
		Order("reconciliation_date ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]reconciliationdomain.ReconciliationRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}
