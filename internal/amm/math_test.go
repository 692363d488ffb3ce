package amm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbase/exchange-core/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func poolWith(base, quote, shares string) *types.LiquidityPool {
	return &types.LiquidityPool{
		Base:         "BTC",
		Quote:        "USD",
		BaseReserve:  dec(base),
		QuoteReserve: dec(quote),
		TotalShares:  dec(shares),
		Active:       true,
	}
}

// TestSharesForEmptyPool mints the geometric mean of the first deposit
func TestSharesForEmptyPool(t *testing.T) {
	pool := poolWith("0", "0", "0")

	shares, err := SharesForAddition(pool, dec("100"), dec("400"))
	require.NoError(t, err)
	assert.True(t, shares.Equal(dec("200")), "sqrt(100*400)=200, got %s", shares)
}

// TestSharesProportional mints pro rata against existing reserves
func TestSharesProportional(t *testing.T) {
	pool := poolWith("1000", "4000", "2000")

	shares, err := SharesForAddition(pool, dec("100"), dec("400"))
	require.NoError(t, err)
	assert.True(t, shares.Equal(dec("200")), "2000*100/1000=200, got %s", shares)
}

// TestSharesMinRatio mints on the smaller ratio when one side is
// over-supplied.
func TestSharesMinRatio(t *testing.T) {
	pool := poolWith("1000", "4000", "2000")

	// Quote is over-supplied; only the base ratio counts
	shares, err := SharesForAddition(pool, dec("100"), dec("800"))
	require.NoError(t, err)
	assert.True(t, shares.Equal(dec("200")), "expected min-ratio mint 200, got %s", shares)
}

// TestSharesRejectNonPositive rejects zero and negative deposit amounts
func TestSharesRejectNonPositive(t *testing.T) {
	pool := poolWith("1000", "4000", "2000")

	_, err := SharesForAddition(pool, dec("0"), dec("400"))
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = SharesForAddition(pool, dec("100"), dec("-1"))
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

// TestAmountsForRemoval redeems a proportional cut of both reserves
func TestAmountsForRemoval(t *testing.T) {
	pool := poolWith("1000", "4000", "2000")

	base, quote, err := AmountsForRemoval(pool, dec("500"))
	require.NoError(t, err)
	assert.True(t, base.Equal(dec("250")), "expected base 250, got %s", base)
	assert.True(t, quote.Equal(dec("1000")), "expected quote 1000, got %s", quote)
}

// TestRemovalRejectsExcessShares rejects burning more than the pool issued
func TestRemovalRejectsExcessShares(t *testing.T) {
	pool := poolWith("1000", "4000", "2000")

	_, _, err := AmountsForRemoval(pool, dec("2001"))
	assert.ErrorIs(t, err, ErrSharesExceedTotal)

	_, _, err = AmountsForRemoval(pool, dec("0"))
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

// TestValidateRatio accepts deposits near the reserve ratio and rejects the
// rest. Pool ratio here is 1:4.
func TestValidateRatio(t *testing.T) {
	pool := poolWith("1000", "4000", "2000")
	tolerance := dec("0.01")

	assert.NoError(t, ValidateRatio(pool, dec("100"), dec("400"), tolerance))
	// 100/402 deviates ~0.5%, inside the 1% band
	assert.NoError(t, ValidateRatio(pool, dec("100"), dec("402"), tolerance))
	// 100/1000 is 2.5x off the pool ratio
	assert.ErrorIs(t, ValidateRatio(pool, dec("100"), dec("1000"), tolerance), ErrRatioDeviation)
}

// TestValidateRatioEmptyPool lets the first deposit set any ratio
func TestValidateRatioEmptyPool(t *testing.T) {
	pool := poolWith("0", "0", "0")
	assert.NoError(t, ValidateRatio(pool, dec("1"), dec("1000000"), dec("0.01")))
}

// TestSqrtPrecision checks the share mint for a non-perfect square
func TestSqrtPrecision(t *testing.T) {
	pool := poolWith("0", "0", "0")

	shares, err := SharesForAddition(pool, dec("2"), dec("1"))
	require.NoError(t, err)

	// sqrt(2) to 18 truncated digits
	want := dec("1.414213562373095048")
	assert.True(t, shares.Equal(want), "expected %s, got %s", want, shares)
}
