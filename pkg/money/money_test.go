package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFee(t *testing.T) {
	cases := []struct {
		name    string
		gross   int64
		rate    string
		wantFee int64
		wantNet int64
	}{
		{"ten percent", 10000, "0.10", 1000, 9000},
		{"half cent rounds up", 5, "0.10", 1, 4},
		{"below half rounds down", 14, "0.10", 1, 13},
		{"exact half", 25, "0.5", 13, 12},
		{"zero rate", 999, "0", 0, 999},
		{"full rate", 999, "1", 999, 0},
		{"fractional rate", 123457, "0.0725", 8951, 114506},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gross := MustNew(tc.gross, "usd")
			fee, net, err := SplitFee(gross, decimal.RequireFromString(tc.rate))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFee, fee.Value)
			assert.Equal(t, tc.wantNet, net.Value)
			assert.Equal(t, tc.gross, fee.Value+net.Value)
			assert.Equal(t, "USD", fee.Currency)
			assert.Equal(t, "USD", net.Currency)
		})
	}
}

func TestSplitFeeRejectsInvalidInput(t *testing.T) {
	_, _, err := SplitFee(MustNew(100, "USD"), decimal.RequireFromString("1.01"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = SplitFee(MustNew(100, "USD"), decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = SplitFee(MustNew(0, "USD"), decimal.RequireFromString("0.1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestArithmeticRejectsCurrencyMismatch(t *testing.T) {
	usd := MustNew(100, "USD")
	eur := MustNew(100, "EUR")

	_, err := usd.Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = usd.Sub(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = usd.Cmp(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = Sum("USD", usd, eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestArithmetic(t *testing.T) {
	a := MustNew(1050, "USD")
	b := MustNew(-50, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sum.Value)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), diff.Value)

	cmp, err := b.Cmp(a)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	assert.Equal(t, int64(50), b.Abs().Value)
	assert.Equal(t, "10.50 USD", a.String())
	assert.Equal(t, "-0.50 USD", b.String())
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" idr ")
	require.NoError(t, err)
	assert.Equal(t, "IDR", code)

	for _, bad := range []string{"", "US", "USDT", "U1D"} {
		_, err := NormalizeCurrency(bad)
		assert.ErrorIs(t, err, ErrInvalidCurrency, bad)
	}
}
