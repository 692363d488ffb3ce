// Package amm implements constant-ratio liquidity pool share math and the
// deposit/withdrawal flows built on it.
package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/types"
)

var (
	// ErrSharesExceedTotal rejects a removal of more shares than the pool
	// has issued
	ErrSharesExceedTotal = errors.New("shares exceed pool total")

	// ErrRatioDeviation rejects a deposit whose base/quote ratio strays too
	// far from the pool's current reserve ratio
	ErrRatioDeviation = errors.New("deposit ratio deviates from pool ratio")

	// ErrNonPositiveAmount rejects zero or negative amounts
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// SharesForAddition returns the shares minted for depositing the given
// amounts. The first deposit into an empty pool mints the geometric mean
// sqrt(base*quote) so the depositor cannot set an arbitrary price; later
// deposits mint total_shares times the smaller of the two reserve ratios,
// so over-supplying one side mints no extra shares.
func SharesForAddition(pool *types.LiquidityPool, baseAmount, quoteAmount decimal.Decimal) (decimal.Decimal, error) {
	if !baseAmount.IsPositive() || !quoteAmount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: base=%s quote=%s", ErrNonPositiveAmount, baseAmount, quoteAmount)
	}
	if pool.Empty() {
		return sqrtDecimal(baseAmount.Mul(quoteAmount)), nil
	}

	baseRatio := baseAmount.Div(pool.BaseReserve)
	quoteRatio := quoteAmount.Div(pool.QuoteReserve)
	return pool.TotalShares.Mul(decimal.Min(baseRatio, quoteRatio)), nil
}

// AmountsForRemoval returns the base and quote amounts redeemed for the
// given shares, proportional to the pool's reserves.
func AmountsForRemoval(pool *types.LiquidityPool, shares decimal.Decimal) (base, quote decimal.Decimal, err error) {
	if !shares.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: shares=%s", ErrNonPositiveAmount, shares)
	}
	if shares.GreaterThan(pool.TotalShares) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s > %s", ErrSharesExceedTotal, shares, pool.TotalShares)
	}

	fraction := shares.Div(pool.TotalShares)
	return pool.BaseReserve.Mul(fraction), pool.QuoteReserve.Mul(fraction), nil
}

// ValidateRatio checks that a deposit's base/quote ratio is within
// tolerance of the pool's current reserve ratio. Empty pools accept any
// ratio since the first deposit defines it.
func ValidateRatio(pool *types.LiquidityPool, baseAmount, quoteAmount decimal.Decimal, tolerance decimal.Decimal) error {
	if pool.Empty() {
		return nil
	}

	poolRatio := pool.BaseReserve.Div(pool.QuoteReserve)
	depositRatio := baseAmount.Div(quoteAmount)
	deviation := depositRatio.Sub(poolRatio).Abs().Div(poolRatio)
	if deviation.GreaterThan(tolerance) {
		return fmt.Errorf("%w: deposit ratio %s vs pool ratio %s (deviation %s, tolerance %s)",
			ErrRatioDeviation, depositRatio, poolRatio, deviation, tolerance)
	}
	return nil
}

// sqrtDecimal computes the square root at 256 bits of float precision,
// well past the 18 fractional digits the share math needs.
func sqrtDecimal(d decimal.Decimal) decimal.Decimal {
	f := new(big.Float).SetPrec(256)
	if _, ok := f.SetString(d.String()); !ok {
		return decimal.Zero
	}
	root := new(big.Float).SetPrec(256).Sqrt(f)
	out, err := decimal.NewFromString(root.Text('f', 24))
	if err != nil {
		return decimal.Zero
	}
	// 200.000000000000000000000000 and 200 compare equal; trim the
	// representation anyway so stored values stay compact.
	return out.Truncate(18)
}
