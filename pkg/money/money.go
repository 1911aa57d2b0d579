// Package money holds integer minor-unit amounts tagged with a currency.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidRate      = errors.New("invalid_rate")
)

// Amount is a quantity of minor units (cents) in a single currency.
type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

// New returns an amount with a normalized currency code.
func New(value int64, currency string) (Amount, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: value, Currency: code}, nil
}

// MustNew is New for constants and tests.
func MustNew(value int64, currency string) Amount {
	amount, err := New(value, currency)
	if err != nil {
		panic(err)
	}
	return amount
}

// Zero returns the zero amount for a currency.
func Zero(currency string) Amount {
	return Amount{Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// NormalizeCurrency upper-cases and validates a three letter currency code.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

func (a Amount) IsZero() bool     { return a.Value == 0 }
func (a Amount) IsPositive() bool { return a.Value > 0 }
func (a Amount) IsNegative() bool { return a.Value < 0 }

func (a Amount) Neg() Amount {
	return Amount{Value: -a.Value, Currency: a.Currency}
}

func (a Amount) Abs() Amount {
	if a.Value < 0 {
		return a.Neg()
	}
	return a
}

func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.sameCurrency(b); err != nil {
		return Amount{}, err
	}
	return Amount{Value: a.Value + b.Value, Currency: a.Currency}, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.sameCurrency(b); err != nil {
		return Amount{}, err
	}
	return Amount{Value: a.Value - b.Value, Currency: a.Currency}, nil
}

// Cmp returns -1, 0 or 1. Amounts in different currencies are not comparable.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.sameCurrency(b); err != nil {
		return 0, err
	}
	switch {
	case a.Value < b.Value:
		return -1, nil
	case a.Value > b.Value:
		return 1, nil
	default:
		return 0, nil
	}
}

func (a Amount) String() string {
	sign := ""
	value := a.Value
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, value/100, value%100, a.Currency)
}

func (a Amount) sameCurrency(b Amount) error {
	if a.Currency != b.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return nil
}

// Sum adds amounts that all share the given currency.
func Sum(currency string, amounts ...Amount) (Amount, error) {
	total := Zero(currency)
	for _, amount := range amounts {
		next, err := total.Add(amount)
		if err != nil {
			return Amount{}, err
		}
		total = next
	}
	return total, nil
}

// SplitFee computes fee = round_half_up(gross * rate) and net = gross - fee.
// The rate must lie in [0, 1] and gross must be positive.
func SplitFee(gross Amount, rate decimal.Decimal) (fee Amount, net Amount, err error) {
	if !gross.IsPositive() {
		return Amount{}, Amount{}, ErrInvalidAmount
	}
	if !ValidRate(rate) {
		return Amount{}, Amount{}, ErrInvalidRate
	}

	// Round uses half away from zero, which is half-up for a positive product.
	feeValue := decimal.NewFromInt(gross.Value).Mul(rate).Round(0).IntPart()
	fee = Amount{Value: feeValue, Currency: gross.Currency}
	net = Amount{Value: gross.Value - feeValue, Currency: gross.Currency}
	return fee, net, nil
}

// ValidRate reports whether rate lies in the closed interval [0, 1].
func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1))
}
