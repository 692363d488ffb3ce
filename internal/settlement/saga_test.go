package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/storage/memory"
	"github.com/finbase/exchange-core/internal/types"
)

var btcusd = types.Pair{Base: "BTC", Quote: "USD"}

type zeroFees struct{}

func (zeroFees) Fees(amount, price decimal.Decimal, maker, taker uuid.UUID) (decimal.Decimal, decimal.Decimal) {
	return decimal.Zero, decimal.Zero
}

// flakyLedger fails the nth Transfer call, forward or compensating, and
// delegates everything else to the embedded in-memory ledger.
type flakyLedger struct {
	*ledger.MemoryLedger
	failOn int
	calls  int
}

func (f *flakyLedger) Transfer(ctx context.Context, from, to uuid.UUID, asset string, amount decimal.Decimal, txID uuid.UUID, metadata map[string]string) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("ledger unavailable")
	}
	return f.MemoryLedger.Transfer(ctx, from, to, asset, amount, txID, metadata)
}

type harness struct {
	saga   *Saga
	orders *memory.OrderStore
	books  *matching.Books
	mem    *ledger.MemoryLedger
}

func newHarness(t *testing.T, ldg ledger.Ledger, mem *ledger.MemoryLedger, cfg Config) *harness {
	t.Helper()
	orders := memory.NewOrderStore()
	trades := memory.NewTradeStore(100)
	sagaLog := memory.NewSagaStore()
	books := matching.NewBooks()
	log := zap.NewNop()

	engine := matching.NewEngine(orders, books, zeroFees{}, cfg.FallbackPrice, log)
	maintainer := matching.NewMaintainer(books, orders, log)
	saga := NewSaga(orders, trades, sagaLog, ldg, engine, maintainer, books, cfg, log)

	return &harness{saga: saga, orders: orders, books: books, mem: mem}
}

func newMemoryHarness(t *testing.T) *harness {
	mem := ledger.NewMemoryLedger()
	return newHarness(t, mem, mem, Config{SlippageBuffer: decimal.NewFromFloat(0.10)})
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func available(t *testing.T, h *harness, account uuid.UUID, asset string) decimal.Decimal {
	t.Helper()
	avail, err := h.mem.Available(context.Background(), account, asset)
	require.NoError(t, err)
	return avail
}

// TestFullMatchConservation settles a crossing buy against a resting sell
// and checks that every unit of both assets ends up on exactly one side.
func TestFullMatchConservation(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	seller, buyer := uuid.New(), uuid.New()
	h.mem.Credit(seller, "BTC", dec("1"))
	h.mem.Credit(buyer, "USD", dec("100"))

	sellRes, err := h.saga.Submit(ctx, types.NewLimitOrder(seller, btcusd, types.Sell, dec("100"), dec("1")))
	require.NoError(t, err)
	assert.Empty(t, sellRes.Trades)
	// Resting sell holds a base-asset lock
	assert.True(t, available(t, h, seller, "BTC").IsZero())

	buyRes, err := h.saga.Submit(ctx, types.NewLimitOrder(buyer, btcusd, types.Buy, dec("100"), dec("1")))
	require.NoError(t, err)
	require.Len(t, buyRes.Trades, 1)
	assert.True(t, buyRes.Trades[0].Price.Equal(dec("100")))
	assert.Equal(t, types.StatusFilled, buyRes.Order.Status)

	assert.True(t, available(t, h, buyer, "BTC").Equal(dec("1")))
	assert.True(t, available(t, h, seller, "USD").Equal(dec("100")))
	assert.True(t, available(t, h, buyer, "USD").IsZero())
	assert.True(t, available(t, h, seller, "BTC").IsZero())

	// Both fills are terminal, so no locks survive the cycle
	assert.True(t, h.mem.Balance(seller, "BTC").IsZero())
	assert.True(t, h.mem.Balance(buyer, "USD").IsZero())

	last, ok := h.books.Get(btcusd).LastPrice()
	require.True(t, ok)
	assert.True(t, last.Equal(dec("100")))
}

// TestQuoteLegFailureCompensates forces the quote-currency transfer to fail
// and checks that the completed base leg is reversed and all balances are
// exactly as before the submission.
func TestQuoteLegFailureCompensates(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	flaky := &flakyLedger{MemoryLedger: mem, failOn: 2}
	h := newHarness(t, flaky, mem, Config{SlippageBuffer: decimal.NewFromFloat(0.10)})
	ctx := context.Background()

	seller, buyer := uuid.New(), uuid.New()
	mem.Credit(seller, "BTC", dec("1"))
	mem.Credit(buyer, "USD", dec("100"))

	_, err := h.saga.Submit(ctx, types.NewLimitOrder(seller, btcusd, types.Sell, dec("100"), dec("1")))
	require.NoError(t, err)

	buy := types.NewLimitOrder(buyer, btcusd, types.Buy, dec("100"), dec("1"))
	_, err = h.saga.Submit(ctx, buy)
	require.Error(t, err)

	// Base leg reversed: the seller holds the coin again
	assert.True(t, mem.Balance(seller, "BTC").Equal(dec("1")))
	assert.True(t, mem.Balance(buyer, "BTC").IsZero())
	assert.True(t, mem.Balance(buyer, "USD").Equal(dec("100")))
	assert.True(t, mem.Balance(seller, "USD").IsZero())

	// The taker's lock was compensated away; the maker keeps its lock
	assert.True(t, available(t, h, buyer, "USD").Equal(dec("100")))
	assert.True(t, available(t, h, seller, "BTC").IsZero())

	// With its lock gone the taker is voided, not left resting as an
	// unreserved maker; the still-funded sell keeps its place
	stored, err := h.orders.Get(buy.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, stored.Status)
	_, ok := h.books.Get(btcusd).BestBid()
	assert.False(t, ok, "compensated order must not rest on the book")
	ask, ok := h.books.Get(btcusd).BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(dec("100")))
}

// TestInsufficientBalanceRejected submits an unfunded buy and checks that
// the order is voided rather than left resting.
func TestInsufficientBalanceRejected(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	order := types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("1"))
	_, err := h.saga.Submit(ctx, order)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var shortfall *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &shortfall)
	assert.True(t, shortfall.Required.Equal(dec("100")))

	stored, err := h.orders.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, stored.Status)

	_, ok := h.books.Get(btcusd).BestBid()
	assert.False(t, ok, "unfunded order must not rest on the book")
}

// TestPartialFillReducesLock settles a 1 BTC buy against a 2 BTC sell and
// checks that the maker's lock shrinks to its unmatched remainder.
func TestPartialFillReducesLock(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	seller, buyer := uuid.New(), uuid.New()
	h.mem.Credit(seller, "BTC", dec("2"))
	h.mem.Credit(buyer, "USD", dec("100"))

	sellRes, err := h.saga.Submit(ctx, types.NewLimitOrder(seller, btcusd, types.Sell, dec("100"), dec("2")))
	require.NoError(t, err)

	_, err = h.saga.Submit(ctx, types.NewLimitOrder(buyer, btcusd, types.Buy, dec("100"), dec("1")))
	require.NoError(t, err)

	maker, err := h.orders.Get(sellRes.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyFilled, maker.Status)
	assert.True(t, maker.Remaining.Equal(dec("1")))

	// 2 BTC held, 1 sold, 1 still locked for the open remainder
	assert.True(t, h.mem.Balance(seller, "BTC").Equal(dec("1")))
	assert.True(t, available(t, h, seller, "BTC").IsZero())
	assert.True(t, available(t, h, seller, "USD").Equal(dec("100")))

	// The remainder is still live on the book
	ask, ok := h.books.Get(btcusd).BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(dec("100")))
}

// TestCancelReleasesLock cancels a resting order and checks the reserved
// funds become available again.
func TestCancelReleasesLock(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	buyer := uuid.New()
	h.mem.Credit(buyer, "USD", dec("100"))

	order := types.NewLimitOrder(buyer, btcusd, types.Buy, dec("100"), dec("1"))
	_, err := h.saga.Submit(ctx, order)
	require.NoError(t, err)
	assert.True(t, available(t, h, buyer, "USD").IsZero())

	cancelled, err := h.saga.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	assert.True(t, available(t, h, buyer, "USD").Equal(dec("100")))

	_, ok := h.books.Get(btcusd).BestBid()
	assert.False(t, ok)

	_, err = h.saga.Cancel(ctx, order.ID)
	assert.ErrorIs(t, err, types.ErrNotCancelable)
}

// TestMarketBuyLockSizing checks that a market buy reserves the reference
// value plus the slippage buffer, in the quote currency.
func TestMarketBuyLockSizing(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	seller, buyer := uuid.New(), uuid.New()
	h.mem.Credit(seller, "BTC", dec("1"))
	h.mem.Credit(buyer, "USD", dec("105"))

	_, err := h.saga.Submit(ctx, types.NewLimitOrder(seller, btcusd, types.Sell, dec("100"), dec("1")))
	require.NoError(t, err)

	// Best ask 100 with a 10% buffer needs a 110 USD reservation
	_, err = h.saga.Submit(ctx, types.NewMarketOrder(buyer, btcusd, types.Buy, dec("1")))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	h.mem.Credit(buyer, "USD", dec("5"))
	res, err := h.saga.Submit(ctx, types.NewMarketOrder(buyer, btcusd, types.Buy, dec("1")))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Price.Equal(dec("100")), "execution at the maker's limit price")

	// Only the executed notional is spent; the buffer comes back
	assert.True(t, available(t, h, buyer, "USD").Equal(dec("10")))
	assert.True(t, available(t, h, buyer, "BTC").Equal(dec("1")))
}

// TestMarketBuyNoReference rejects a market buy when no trade history, no
// asks and no fallback price can value the lock.
func TestMarketBuyNoReference(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	buyer := uuid.New()
	h.mem.Credit(buyer, "USD", dec("1000"))

	_, err := h.saga.Submit(ctx, types.NewMarketOrder(buyer, btcusd, types.Buy, dec("1")))
	require.ErrorIs(t, err, ErrNoReferencePrice)
}

// TestSubmitRejectsInvalid covers the pre-lock validation gate
func TestSubmitRejectsInvalid(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		order *types.Order
	}{
		{"nil order", nil},
		{"bad pair", types.NewLimitOrder(uuid.New(), types.Pair{Base: "BTC", Quote: "BTC"}, types.Buy, dec("1"), dec("1"))},
		{"zero amount", types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("1"), dec("0"))},
		{"zero price limit", types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("0"), dec("1"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.order == nil {
				// A nil order has no id to guard; validate directly
				assert.ErrorIs(t, validate(nil), ErrInvalidOrder)
				return
			}
			_, err := h.saga.Submit(ctx, tc.order)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

// TestResettleRequiresLock rejects resettling an order whose funds are no
// longer reserved.
func TestResettleRequiresLock(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	order := types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("1"))
	require.NoError(t, h.orders.Save(order))

	_, err := h.saga.Resettle(ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

// TestInFlightGuard rejects concurrent settlement of the same order
func TestInFlightGuard(t *testing.T) {
	h := newMemoryHarness(t)

	id := uuid.New()
	require.NoError(t, h.saga.begin(id))
	defer h.saga.end(id)

	_, err := h.saga.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, ErrOrderInFlight)
}

// TestDeterministicTransactionIDs checks that leg and reversal ids are
// stable across retries.
func TestDeterministicTransactionIDs(t *testing.T) {
	tradeID := uuid.New()

	assert.Equal(t, txID("base", tradeID), txID("base", tradeID))
	assert.NotEqual(t, txID("base", tradeID), txID("quote", tradeID))

	orig := txID("base", tradeID)
	assert.Equal(t, reversalTxID(orig), reversalTxID(orig))
	assert.NotEqual(t, orig, reversalTxID(orig))
}

// TestRestingOrderWaitsForLiquidity submits into an empty book and later
// resettles when the other side arrives.
func TestRestingOrderWaitsForLiquidity(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	seller, buyer := uuid.New(), uuid.New()
	h.mem.Credit(buyer, "USD", dec("100"))
	h.mem.Credit(seller, "BTC", dec("1"))

	buy := types.NewLimitOrder(buyer, btcusd, types.Buy, dec("100"), dec("1"))
	res, err := h.saga.Submit(ctx, buy)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)

	// The sell submission matches immediately against the resting buy
	sellRes, err := h.saga.Submit(ctx, types.NewLimitOrder(seller, btcusd, types.Sell, dec("100"), dec("1")))
	require.NoError(t, err)
	require.Len(t, sellRes.Trades, 1)

	// Resettling the now-filled buy is rejected, its lifecycle is over
	_, err = h.saga.Resettle(ctx, buy.ID)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	assert.True(t, available(t, h, buyer, "BTC").Equal(dec("1")))
	assert.True(t, available(t, h, seller, "USD").Equal(dec("100")))
}
