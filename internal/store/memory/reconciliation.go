package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	"github.com/smallbiznis/marketledger/internal/store"
)

type reconciliationRepo struct{ t *tx }

func keyFor(territoryID snowflake.ID, date time.Time) dateKey {
	return dateKey{territoryID: territoryID, date: reconciliationdomain.Day(date).Format(reconciliationdomain.DateLayout)}
}

func (r reconciliationRepo) Insert(ctx context.Context, record reconciliationdomain.ReconciliationRecord) error {
	key := keyFor(record.TerritoryID, record.ReconciliationDate)
	var err error
	r.t.store.read(func(d *dataset) {
		if _, ok := r.t.reconDates.get(d.reconDates, key); ok {
			err = store.ErrDuplicate
			return
		}
		if _, ok := r.t.reconciliations.get(d.reconciliations, record.ID); ok {
			err = store.ErrDuplicate
			return
		}
		r.t.reconDates.put(d.reconDates, key, record.ID)
		r.t.reconciliations.put(d.reconciliations, record.ID, record)
	})
	return err
}

func (r reconciliationRepo) FindByID(ctx context.Context, id snowflake.ID) (*reconciliationdomain.ReconciliationRecord, error) {
	var out *reconciliationdomain.ReconciliationRecord
	r.t.store.read(func(d *dataset) {
		if record, ok := r.t.reconciliations.get(d.reconciliations, id); ok {
			out = &record
		}
	})
	return out, nil
}

func (r reconciliationRepo) FindByDate(ctx context.Context, territoryID snowflake.ID, date time.Time) (*reconciliationdomain.ReconciliationRecord, error) {
	var out *reconciliationdomain.ReconciliationRecord
	r.t.store.read(func(d *dataset) {
		id, ok := r.t.reconDates.get(d.reconDates, keyFor(territoryID, date))
		if !ok {
			return
		}
		if record, ok := r.t.reconciliations.get(d.reconciliations, id); ok {
			out = &record
		}
	})
	return out, nil
}

func (r reconciliationRepo) Update(ctx context.Context, record *reconciliationdomain.ReconciliationRecord) error {
	var err error
	r.t.store.read(func(d *dataset) {
		current, ok := r.t.reconciliations.get(d.reconciliations, record.ID)
		if !ok || current.Version != record.Version {
			err = store.ErrVersionConflict
			return
		}
		next := *record
		next.Version++
		next.TerritoryID = current.TerritoryID
		next.ReconciliationDate = current.ReconciliationDate
		r.t.reconciliations.put(d.reconciliations, record.ID, next)
	})
	if err != nil {
		return err
	}
	record.Version++
	return nil
}

func (r reconciliationRepo) ListByTerritory(ctx context.Context, territoryID snowflake.ID) ([]reconciliationdomain.ReconciliationRecord, error) {
	var out []reconciliationdomain.ReconciliationRecord
	r.t.store.read(func(d *dataset) {
		for _, record := range r.t.reconciliations.merged(d.reconciliations) {
			if record.TerritoryID == territoryID {
				out = append(out, record)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReconciliationDate.Before(out[j].ReconciliationDate)
	})
	return out, nil
}
