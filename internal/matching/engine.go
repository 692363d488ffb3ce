package matching

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/metrics"
	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/types"
)

// DefaultMaxIterations bounds the matching loop when the caller does not
// supply its own cap.
const DefaultMaxIterations = 100

var (
	// ErrOrderNotMatchable is returned when the taker order is not open or
	// partially filled
	ErrOrderNotMatchable = errors.New("order is not matchable")

	// ErrNoReferencePrice is returned when two market orders meet, no trade
	// has ever priced the pair, and no fallback price is configured
	ErrNoReferencePrice = errors.New("no reference price for market-to-market match")
)

// FeeCalculator computes maker and taker fees for one execution as a pure
// function of the fill and the two accounts.
type FeeCalculator interface {
	Fees(amount, price decimal.Decimal, makerAccount, takerAccount uuid.UUID) (makerFee, takerFee decimal.Decimal)
}

// Result is the outcome of one matching pass. MakerFills holds the amount
// consumed from each maker order; the fills are not applied to the store by
// the engine itself, the settlement path persists them.
type Result struct {
	Matches    []*types.Trade
	Remaining  decimal.Decimal
	MakerFills map[uuid.UUID]decimal.Decimal
}

// Engine finds counter-orders for a taker at price-time priority and
// computes the executable price and amount of each match. It never mutates
// order state: Match is a pure computation over the store's snapshot.
type Engine struct {
	orders        storage.OrderStore
	books         *Books
	fees          FeeCalculator
	fallbackPrice decimal.Decimal
	logger        *zap.Logger
}

// NewEngine creates a matching engine. fallbackPrice prices market-to-market
// matches on pairs with no trade history; pass zero to reject such matches
// instead.
func NewEngine(orders storage.OrderStore, books *Books, fees FeeCalculator, fallbackPrice decimal.Decimal, logger *zap.Logger) *Engine {
	return &Engine{
		orders:        orders,
		books:         books,
		fees:          fees,
		fallbackPrice: fallbackPrice,
		logger:        logger,
	}
}

// Match runs up to maxIterations matching iterations for the order and
// returns the matches found together with the taker's remaining amount.
// Running out of counter-orders or hitting the iteration cap is not an
// error; the caller decides whether the order rests or is cancelled.
func (e *Engine) Match(orderID uuid.UUID, maxIterations int) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.MatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	taker, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if !taker.Matchable() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotMatchable, taker.ID, taker.Status)
	}

	counters, err := e.orders.OpenByPairSide(taker.Pair, taker.Side.Opposite())
	if err != nil {
		return nil, fmt.Errorf("load counter-orders: %w", err)
	}

	candidates := make([]*types.Order, 0, len(counters))
	for _, counter := range counters {
		if counter.ID == taker.ID {
			continue
		}
		if !counter.Remaining.IsPositive() {
			continue
		}
		if qualifies(taker, counter) {
			candidates = append(candidates, counter)
		}
	}
	sortCandidates(candidates, taker.Side)

	result := &Result{
		Remaining:  taker.Remaining,
		MakerFills: make(map[uuid.UUID]decimal.Decimal),
	}

	for i := 0; i < maxIterations && i < len(candidates) && result.Remaining.IsPositive(); i++ {
		maker := candidates[i]

		price, err := e.executionPrice(taker, maker)
		if err != nil {
			return nil, err
		}

		fill := decimal.Min(result.Remaining, maker.Remaining)
		makerFee, takerFee := e.fees.Fees(fill, price, maker.AccountID, taker.AccountID)

		trade := &types.Trade{
			ID:            uuid.New(),
			Pair:          taker.Pair,
			Price:         price,
			Amount:        fill,
			MakerFee:      makerFee,
			TakerFee:      takerFee,
			CorrelationID: uuid.New(),
			CreatedAt:     time.Now().UTC(),
		}
		if taker.IsBuy() {
			trade.BuyOrderID = taker.ID
			trade.SellOrderID = maker.ID
		} else {
			trade.BuyOrderID = maker.ID
			trade.SellOrderID = taker.ID
		}

		result.Matches = append(result.Matches, trade)
		result.Remaining = result.Remaining.Sub(fill)
		result.MakerFills[maker.ID] = result.MakerFills[maker.ID].Add(fill)
	}

	if len(result.Matches) > 0 {
		metrics.TradesMatched.WithLabelValues(taker.Pair.String()).Add(float64(len(result.Matches)))
	}
	e.logger.Debug("matching pass finished",
		zap.String("order_id", taker.ID.String()),
		zap.String("pair", taker.Pair.String()),
		zap.Int("matches", len(result.Matches)),
		zap.String("remaining", result.Remaining.String()))

	return result, nil
}

// qualifies reports whether a resting counter-order can execute against the
// taker. Market orders on either side always qualify; limit counter-orders
// qualify only when their price crosses the taker's limit.
func qualifies(taker, counter *types.Order) bool {
	if taker.Kind == types.Market || counter.Kind == types.Market {
		return true
	}
	if taker.IsBuy() {
		return taker.Price.GreaterThanOrEqual(counter.Price)
	}
	return taker.Price.LessThanOrEqual(counter.Price)
}

// sortCandidates orders counter-orders at price-time priority: market
// orders first, then best price, ties broken by earliest creation time.
func sortCandidates(candidates []*types.Order, takerSide types.Side) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aMarket := a.Kind == types.Market
		bMarket := b.Kind == types.Market
		if aMarket != bMarket {
			return aMarket
		}
		if !aMarket && !a.Price.Equal(b.Price) {
			if takerSide == types.Buy {
				return a.Price.LessThan(b.Price)
			}
			return a.Price.GreaterThan(b.Price)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// executionPrice picks the price of one match: the maker's limit price when
// it has one, else the taker's, else the pair's last traded price or the
// configured fallback.
func (e *Engine) executionPrice(taker, maker *types.Order) (decimal.Decimal, error) {
	if maker.Kind == types.Limit {
		return maker.Price, nil
	}
	if taker.Kind == types.Limit {
		return taker.Price, nil
	}
	if last, ok := e.books.Get(taker.Pair).LastPrice(); ok {
		return last, nil
	}
	if e.fallbackPrice.IsPositive() {
		return e.fallbackPrice, nil
	}
	return decimal.Zero, fmt.Errorf("%w: pair %s", ErrNoReferencePrice, taker.Pair)
}
