package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Repository is unique on (territory, date). Update is guarded by Version.
type Repository interface {
	Insert(ctx context.Context, record ReconciliationRecord) error
	FindByID(ctx context.Context, id snowflake.ID) (*ReconciliationRecord, error)
	FindByDate(ctx context.Context, territoryID snowflake.ID, date time.Time) (*ReconciliationRecord, error)
	Update(ctx context.Context, record *ReconciliationRecord) error
	ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]ReconciliationRecord, error)
}
