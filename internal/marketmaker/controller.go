// Package marketmaker runs the periodic quoting loop that keeps liquidity
// pools represented on the order book.
package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/marketdata"
	"github.com/finbase/exchange-core/internal/metrics"
	"github.com/finbase/exchange-core/internal/settlement"
	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/types"
)

// ErrNoMarketPrice is returned when neither the book, trade history nor the
// pool's reserves yield a usable mid price.
var ErrNoMarketPrice = errors.New("no market price available")

// Quote is one computed order of a quoting cycle
type Quote struct {
	Side   types.Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Config tunes the quoting loop
type Config struct {
	// Interval between quoting cycles
	Interval time.Duration

	// BaseSpreadBps is the quoted spread in basis points before inventory
	// and volatility adjustments
	BaseSpreadBps int64

	// Levels per side, each 20% smaller and offset by half the half-spread
	Levels int

	// OrderSizeFraction of the pool's base reserve quoted at the first level
	OrderSizeFraction decimal.Decimal

	// TargetBaseRatio is the desired base-asset share of inventory value
	TargetBaseRatio decimal.Decimal

	// InventoryTolerance is the ratio deviation that triggers a rebalance
	InventoryTolerance decimal.Decimal

	// VolatilityWindow is the number of mid-price samples kept
	VolatilityWindow int
}

// DefaultConfig returns the quoting defaults
func DefaultConfig() Config {
	return Config{
		Interval:           10 * time.Second,
		BaseSpreadBps:      30,
		Levels:             3,
		OrderSizeFraction:  decimal.NewFromFloat(0.01),
		TargetBaseRatio:    decimal.NewFromFloat(0.5),
		InventoryTolerance: decimal.NewFromFloat(0.05),
		VolatilityWindow:   32,
	}
}

const (
	// caps on the two spread adjustment terms, as fractions of mid
	maxSkewShift   = 0.005
	maxVolWidening = 0.02

	sizeDecay       = 0.8
	levelOffsetStep = 0.5
	rebalanceShare  = 0.5
)

// Controller quotes one pool. Each cycle reads market conditions, cancels
// the previous cycle's orders, rebalances inventory when it drifts past
// tolerance, and places fresh quotes through the regular settlement path.
// A failing step aborts the cycle only; the next tick starts clean.
type Controller struct {
	poolID uuid.UUID
	pools  storage.PoolStore
	feed   marketdata.Feed
	saga   *settlement.Saga
	cfg    Config
	vol    *VolatilityWindow
	logger *zap.Logger

	placed []uuid.UUID
}

// NewController creates a controller for one pool
func NewController(poolID uuid.UUID, pools storage.PoolStore, feed marketdata.Feed, saga *settlement.Saga, cfg Config, logger *zap.Logger) *Controller {
	if cfg.Levels <= 0 {
		cfg.Levels = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Controller{
		poolID: poolID,
		pools:  pools,
		feed:   feed,
		saga:   saga,
		cfg:    cfg,
		vol:    NewVolatilityWindow(cfg.VolatilityWindow),
		logger: logger,
	}
}

// Run executes quoting cycles until the context is cancelled. The loop
// holds no authoritative state between ticks, so skipped or delayed cycles
// are harmless.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.cancelPlaced(context.Background())
			return
		case <-ticker.C:
			if err := c.Cycle(ctx); err != nil {
				metrics.QuoteCycles.WithLabelValues(c.poolID.String(), "failed").Inc()
				c.logger.Warn("quote cycle aborted",
					zap.String("pool_id", c.poolID.String()),
					zap.Error(err))
				continue
			}
			metrics.QuoteCycles.WithLabelValues(c.poolID.String(), "completed").Inc()
		}
	}
}

// Cycle runs one monitor, rebalance and quote pass
func (c *Controller) Cycle(ctx context.Context) error {
	pool, err := c.pools.Get(c.poolID)
	if err != nil {
		return err
	}
	if !pool.Active {
		return fmt.Errorf("pool %s is inactive", pool.ID)
	}

	mid, err := c.midPrice(pool)
	if err != nil {
		return err
	}
	midF, _ := mid.Float64()
	c.vol.Observe(midF)

	c.cancelPlaced(ctx)

	if err := c.adjustInventory(ctx, pool, mid); err != nil {
		return fmt.Errorf("inventory rebalance: %w", err)
	}

	// Reserves may have moved; quote from the refreshed pool
	pool, err = c.pools.Get(c.poolID)
	if err != nil {
		return err
	}

	quotes := c.computeQuotes(pool, mid)
	return c.placeOrders(ctx, pool, quotes)
}

// midPrice reads the market mid: top of book, then last trade, then the
// pool's reserve-implied price.
func (c *Controller) midPrice(pool *types.LiquidityPool) (decimal.Decimal, error) {
	pair := pool.Pair()

	bid, hasBid := c.feed.BestBid(pair)
	ask, hasAsk := c.feed.BestAsk(pair)
	if hasBid && hasAsk {
		return bid.Add(ask).Div(decimal.NewFromInt(2)), nil
	}
	if last, ok := c.feed.LastPrice(pair); ok {
		return last, nil
	}
	if !pool.Empty() {
		return pool.ImpliedPrice(), nil
	}
	return decimal.Zero, fmt.Errorf("%w: pair %s", ErrNoMarketPrice, pair)
}

// computeQuotes builds the ladder: the mid is shifted against inventory
// imbalance (capped at 0.5%), the half-spread is widened by recent
// volatility (capped at 2%), and each deeper level shrinks by 20% while
// moving out by half the half-spread.
func (c *Controller) computeQuotes(pool *types.LiquidityPool, mid decimal.Decimal) []Quote {
	imbalance := c.inventoryImbalance(pool, mid)

	skew := clamp(imbalance, -1, 1) * maxSkewShift
	quoteMid := mid.Mul(decimal.NewFromFloat(1 - skew))

	halfSpread := float64(c.cfg.BaseSpreadBps) / 10000 / 2
	halfSpread += clamp(c.vol.StdDev(), 0, maxVolWidening)

	baseSize := pool.BaseReserve.Mul(c.cfg.OrderSizeFraction)
	if !baseSize.IsPositive() {
		return nil
	}

	quotes := make([]Quote, 0, c.cfg.Levels*2)
	size := baseSize
	for level := 0; level < c.cfg.Levels; level++ {
		offset := halfSpread * (1 + levelOffsetStep*float64(level))
		spread := decimal.NewFromFloat(offset)

		quotes = append(quotes,
			Quote{
				Side:   types.Buy,
				Price:  quoteMid.Mul(decimal.NewFromInt(1).Sub(spread)),
				Amount: size,
			},
			Quote{
				Side:   types.Sell,
				Price:  quoteMid.Mul(decimal.NewFromInt(1).Add(spread)),
				Amount: size,
			})

		size = size.Mul(decimal.NewFromFloat(sizeDecay))
	}
	return quotes
}

// inventoryImbalance returns how far the base-asset value share sits from
// the target, normalized so +1 means fully overweight base.
func (c *Controller) inventoryImbalance(pool *types.LiquidityPool, mid decimal.Decimal) float64 {
	baseValue := pool.BaseReserve.Mul(mid)
	totalValue := baseValue.Add(pool.QuoteReserve)
	if !totalValue.IsPositive() {
		return 0
	}
	ratio, _ := baseValue.Div(totalValue).Float64()
	target, _ := c.cfg.TargetBaseRatio.Float64()
	return (ratio - target) / 0.5
}

// adjustInventory issues one rebalancing market order when the base value
// share drifts past the tolerance, sized at half the deviation value.
func (c *Controller) adjustInventory(ctx context.Context, pool *types.LiquidityPool, mid decimal.Decimal) error {
	baseValue := pool.BaseReserve.Mul(mid)
	totalValue := baseValue.Add(pool.QuoteReserve)
	if !totalValue.IsPositive() {
		return nil
	}

	ratio := baseValue.Div(totalValue)
	deviation := ratio.Sub(c.cfg.TargetBaseRatio)
	if deviation.Abs().LessThanOrEqual(c.cfg.InventoryTolerance) {
		return nil
	}

	orderValue := deviation.Abs().Mul(totalValue).Mul(decimal.NewFromFloat(rebalanceShare))
	amount := orderValue.Div(mid)
	if !amount.IsPositive() {
		return nil
	}

	side := types.Buy
	if deviation.IsPositive() {
		side = types.Sell
	}

	order := types.NewMarketOrder(pool.SettlementAccountID, pool.Pair(), side, amount)
	if _, err := c.saga.Submit(ctx, order); err != nil {
		return err
	}
	c.logger.Info("inventory rebalanced",
		zap.String("pool_id", pool.ID.String()),
		zap.String("side", string(side)),
		zap.String("amount", amount.String()))
	return nil
}

// placeOrders submits the quotes as limit orders through the standard
// settlement path and remembers their ids for next cycle's cancellation.
func (c *Controller) placeOrders(ctx context.Context, pool *types.LiquidityPool, quotes []Quote) error {
	placed := make([]uuid.UUID, 0, len(quotes))
	for _, quote := range quotes {
		order := types.NewLimitOrder(pool.SettlementAccountID, pool.Pair(), quote.Side, quote.Price, quote.Amount)
		if _, err := c.saga.Submit(ctx, order); err != nil {
			c.placed = placed
			return fmt.Errorf("place %s quote at %s: %w", quote.Side, quote.Price, err)
		}
		placed = append(placed, order.ID)
	}
	c.placed = placed
	return nil
}

// cancelPlaced withdraws the previous cycle's resting quotes. Orders that
// already filled are simply skipped.
func (c *Controller) cancelPlaced(ctx context.Context) {
	for _, id := range c.placed {
		if _, err := c.saga.Cancel(ctx, id); err != nil {
			if errors.Is(err, types.ErrNotCancelable) || errors.Is(err, types.ErrOrderNotFound) {
				continue
			}
			c.logger.Warn("quote cancellation failed",
				zap.String("order_id", id.String()),
				zap.Error(err))
		}
	}
	c.placed = nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
