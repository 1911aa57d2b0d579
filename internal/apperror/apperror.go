// Package apperror groups the domain sentinels into the error kinds
// surfaced to callers.
package apperror

import (
	"context"
	"errors"

	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	"github.com/smallbiznis/marketledger/internal/retry"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"github.com/smallbiznis/marketledger/internal/store"
	"github.com/smallbiznis/marketledger/pkg/money"
)

const (
	KindValidation           = "validation"
	KindNotFound             = "not_found"
	KindInvalidTransition    = "invalid_transition"
	KindDuplicate            = "duplicate"
	KindConcurrencyExhausted = "concurrency_exhausted"
	KindCanceled             = "canceled"
	KindInternal             = "internal"
)

// Kind classifies err. Unknown errors are internal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, retry.ErrConcurrencyExhausted):
		return KindConcurrencyExhausted
	case isDuplicate(err):
		return KindDuplicate
	case isNotFound(err):
		return KindNotFound
	case isInvalidTransition(err):
		return KindInvalidTransition
	case isValidation(err):
		return KindValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, sellerdomain.ErrDuplicateCheckout) ||
		errors.Is(err, reconciliationdomain.ErrDuplicateReconciliation) ||
		errors.Is(err, platformdomain.ErrDuplicateRevenue) ||
		errors.Is(err, platformdomain.ErrDuplicateExpense) ||
		errors.Is(err, store.ErrDuplicate)
}

func isNotFound(err error) bool {
	return errors.Is(err, ledgerdomain.ErrNotFound) ||
		errors.Is(err, sellerdomain.ErrNotFound) ||
		errors.Is(err, sellerdomain.ErrBalanceNotFound) ||
		errors.Is(err, platformdomain.ErrBalanceNotFound) ||
		errors.Is(err, reconciliationdomain.ErrNotFound)
}

func isInvalidTransition(err error) bool {
	return errors.Is(err, ledgerdomain.ErrInvalidTransition) ||
		errors.Is(err, sellerdomain.ErrInvalidTransition) ||
		errors.Is(err, sellerdomain.ErrAlreadyPaid) ||
		errors.Is(err, reconciliationdomain.ErrInvalidTransition)
}

func isValidation(err error) bool {
	switch {
	case errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrInvalidCurrency),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidRate):
		return true
	case errors.Is(err, ledgerdomain.ErrInvalidType),
		errors.Is(err, ledgerdomain.ErrInvalidStatus),
		errors.Is(err, ledgerdomain.ErrInvalidTerritory),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidCurrency),
		errors.Is(err, ledgerdomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrInvalidLink):
		return true
	case errors.Is(err, sellerdomain.ErrInvalidFeeConfiguration),
		errors.Is(err, sellerdomain.ErrInvalidAmount),
		errors.Is(err, sellerdomain.ErrInvalidCheckout),
		errors.Is(err, sellerdomain.ErrInvalidSeller),
		errors.Is(err, sellerdomain.ErrInvalidTerritory),
		errors.Is(err, sellerdomain.ErrInvalidStore),
		errors.Is(err, sellerdomain.ErrInvalidBatch),
		errors.Is(err, sellerdomain.ErrInvalidRetention),
		errors.Is(err, sellerdomain.ErrInvalidReason),
		errors.Is(err, sellerdomain.ErrNegativeBalance):
		return true
	case errors.Is(err, platformdomain.ErrInvalidTerritory),
		errors.Is(err, platformdomain.ErrInvalidAmount),
		errors.Is(err, platformdomain.ErrInvalidReference):
		return true
	case errors.Is(err, reconciliationdomain.ErrInvalidTerritory),
		errors.Is(err, reconciliationdomain.ErrInvalidDate),
		errors.Is(err, reconciliationdomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}
