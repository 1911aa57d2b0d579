package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AmountSign constrains the sign a transaction type may carry.
type AmountSign int

const (
	SignPositive AmountSign = iota
	SignNegative
	SignNonZero
)

// TypePolicy governs how a transaction type is booked.
type TypePolicy struct {
	Sign          AmountSign
	InitialStatus TransactionStatus
}

var typePolicies = map[TransactionType]TypePolicy{
	TypeSaleCredit: {Sign: SignPositive, InitialStatus: StatusPending},
	TypeFee:        {Sign: SignPositive, InitialStatus: StatusCompleted},
	TypePayout:     {Sign: SignNegative, InitialStatus: StatusCompleted},
	TypeRefund:     {Sign: SignNegative, InitialStatus: StatusPending},
	TypeReversal:   {Sign: SignNegative, InitialStatus: StatusCompleted},
	TypeAdjustment: {Sign: SignNonZero, InitialStatus: StatusPending},
}

// PolicyFor returns the booking policy of a transaction type.
func PolicyFor(t TransactionType) (TypePolicy, error) {
	policy, ok := typePolicies[t]
	if !ok {
		return TypePolicy{}, ErrInvalidType
	}
	return policy, nil
}

// ValidateAmount checks amount against the sign rule of the type.
func (p TypePolicy) ValidateAmount(amount int64) error {
	switch p.Sign {
	case SignPositive:
		if amount <= 0 {
			return ErrInvalidAmount
		}
	case SignNegative:
		if amount >= 0 {
			return ErrInvalidAmount
		}
	default:
		if amount == 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusReversed},
}

// CanTransition reports whether from -> to is an edge of the state machine.
// Failed and Reversed are terminal.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (TransactionStatus, error) {
	switch status := TransactionStatus(raw); status {
	case StatusPending, StatusCompleted, StatusFailed, StatusReversed:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// TransitionTo moves the transaction to next and returns the history row the
// caller must persist in the same unit of work.
func (t *FinancialTransaction) TransitionTo(historyID snowflake.ID, next TransactionStatus, actorID, reason string, now time.Time) (TransactionStatusHistory, error) {
	if !CanTransition(t.Status, next) {
		return TransactionStatusHistory{}, ErrInvalidTransition
	}
	history := TransactionStatusHistory{
		ID:             historyID,
		TransactionID:  t.ID,
		PreviousStatus: t.Status,
		NewStatus:      next,
		ActorID:        actorID,
		Reason:         reason,
		CreatedAt:      now,
	}
	t.Status = next
	t.UpdatedAt = now
	return history, nil
}
