package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrPoolNotFound is returned when a pool id is unknown
var ErrPoolNotFound = errors.New("pool not found")

// LiquidityPool is a constant-ratio pool holding reserves of a trading pair.
// Invariant: TotalShares is zero exactly when both reserves are zero, and
// reserves change only through validated addition/removal operations that
// also update TotalShares.
type LiquidityPool struct {
	ID                  uuid.UUID       `json:"id"`
	Base                string          `json:"base"`
	Quote               string          `json:"quote"`
	BaseReserve         decimal.Decimal `json:"base_reserve"`
	QuoteReserve        decimal.Decimal `json:"quote_reserve"`
	TotalShares         decimal.Decimal `json:"total_shares"`
	FeeRate             decimal.Decimal `json:"fee_rate"`
	Active              bool            `json:"active"`
	SettlementAccountID uuid.UUID       `json:"settlement_account_id"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Empty reports whether the pool holds no liquidity
func (p *LiquidityPool) Empty() bool {
	return p.TotalShares.IsZero()
}

// ImpliedPrice returns the price implied by the reserve ratio
// (quote per base). Returns zero for an empty pool.
func (p *LiquidityPool) ImpliedPrice() decimal.Decimal {
	if p.BaseReserve.IsZero() {
		return decimal.Zero
	}
	return p.QuoteReserve.Div(p.BaseReserve)
}

// Pair returns the pool's trading pair
func (p *LiquidityPool) Pair() Pair {
	return Pair{Base: p.Base, Quote: p.Quote}
}

// LiquidityProvider tracks one account's share of a pool. Summed over all
// providers of a pool the shares equal the pool's TotalShares.
type LiquidityProvider struct {
	PoolID    uuid.UUID       `json:"pool_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Shares    decimal.Decimal `json:"shares"`
}
