package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusMatched     Status = "matched"
	StatusDiscrepancy Status = "discrepancy"
	StatusResolved    Status = "resolved"
)

// DateLayout is the storage form of a reconciliation date.
const DateLayout = "2006-01-02"

// ReconciliationRecord compares the ledger's settled total for one
// territory-day against the external settlement figure.
type ReconciliationRecord struct {
	ID                 snowflake.ID
	TerritoryID        snowflake.ID
	ReconciliationDate time.Time
	ExpectedAmount     int64
	ActualAmount       int64
	Difference         int64
	Currency           string
	Status             Status
	Notes              string
	ReconcilerID       string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Day truncates t to the start of its UTC day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Compare fills the comparison fields. Difference is actual - expected and
// the record matches when its magnitude is within tolerance.
func (r *ReconciliationRecord) Compare(expected, actual, tolerance int64) {
	r.ExpectedAmount = expected
	r.ActualAmount = actual
	r.Difference = actual - expected
	diff := r.Difference
	if diff < 0 {
		diff = -diff
	}
	if diff <= tolerance {
		r.Status = StatusMatched
		return
	}
	r.Status = StatusDiscrepancy
}
