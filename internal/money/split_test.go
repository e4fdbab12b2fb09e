package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenbay/storefront/internal/apperr"
)

func TestNewSplit_FivePercent(t *testing.T) {
	total := Money{AmountMinor: 10000, Currency: "BRL"}

	sp, err := NewSplit(total, 0.05)
	require.NoError(t, err)
	assert.Equal(t, int64(9500), sp.MerchantAmount.AmountMinor)
	assert.Equal(t, int64(500), sp.PlatformAmount.AmountMinor)
	assert.Equal(t, "BRL", sp.PlatformAmount.Currency)
	assert.InDelta(t, 0.95, sp.MerchantPercentage, 1e-9)
}

func TestNewSplit_SumInvariant(t *testing.T) {
	totals := []int64{0, 1, 3, 99, 10000, 25001, 999999999}
	pcts := []float64{0, 0.05, 0.5, 1}
	for _, amt := range totals {
		for _, pct := range pcts {
			sp, err := NewSplit(Money{AmountMinor: amt, Currency: "BRL"}, pct)
			require.NoError(t, err)
			assert.Equal(t, amt, sp.MerchantAmount.AmountMinor+sp.PlatformAmount.AmountMinor,
				"total=%d pct=%v", amt, pct)
		}
	}
}

func TestNewSplit_RemainderGoesToMerchant(t *testing.T) {
	// 5% of 10001 is 500.05; the platform gets the floor.
	sp, err := NewSplit(Money{AmountMinor: 10001, Currency: "BRL"}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, int64(500), sp.PlatformAmount.AmountMinor)
	assert.Equal(t, int64(9501), sp.MerchantAmount.AmountMinor)
}

func TestNewSplit_RejectsOutOfRange(t *testing.T) {
	for _, pct := range []float64{-0.01, 1.01, 2} {
		_, err := NewSplit(Money{AmountMinor: 100, Currency: "BRL"}, pct)
		assert.True(t, apperr.IsKind(err, apperr.Validation), "pct=%v", pct)
	}
}
