// Package settlement orchestrates the order settlement cycle:
// validate, lock, match, transfer, book update, release, with idempotent
// compensation in strict reverse order when a step fails.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/metrics"
	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/types"
)

// Saga log outcomes
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeCompensated = "compensated"
)

const lockReason = "order_settlement"

// txNamespace seeds deterministic transaction ids so retried transfers and
// their reversals are idempotent at the ledger.
var txNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

var (
	// ErrOrderInFlight is returned when a settlement cycle for the order is
	// already running
	ErrOrderInFlight = errors.New("order settlement already in flight")

	// ErrInvalidOrder rejects orders that fail pre-lock validation
	ErrInvalidOrder = errors.New("invalid order")

	// ErrNoReferencePrice is returned when a market buy cannot be sized
	// because no market price exists to value the lock
	ErrNoReferencePrice = errors.New("no reference price to size market order lock")
)

// Config tunes the settlement cycle
type Config struct {
	// MaxIterations bounds each matching pass
	MaxIterations int

	// SlippageBuffer is the extra fraction reserved when locking funds for
	// a market buy, e.g. 0.10 reserves 110% of the reference value
	SlippageBuffer decimal.Decimal

	// FallbackPrice values market buys on pairs with no trade history;
	// zero means such orders are rejected at the lock step
	FallbackPrice decimal.Decimal
}

// Result is the outcome of one settlement cycle
type Result struct {
	Order  *types.Order
	Trades []*types.Trade
}

type lockRecord struct {
	LockID    uuid.UUID
	Asset     string
	Amount    decimal.Decimal
	UnitPrice decimal.Decimal // zero for sell-side locks
}

type undoAction struct {
	name string
	run  func() error
}

// Saga drives order settlement. Each forward step records enough undo data
// to be reversed; on failure at step N the recorded actions are compensated
// newest first. Undo actions are keyed by the original operation ids, so
// retrying them is safe.
type Saga struct {
	orders     storage.OrderStore
	trades     storage.TradeStore
	sagaLog    storage.SagaStore
	ledger     ledger.Ledger
	engine     *matching.Engine
	maintainer *matching.Maintainer
	books      *matching.Books
	cfg        Config
	logger     *zap.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	locks    map[uuid.UUID]*lockRecord // active lock per order id
}

// NewSaga creates a settlement saga over the given collaborators
func NewSaga(
	orders storage.OrderStore,
	trades storage.TradeStore,
	sagaLog storage.SagaStore,
	ldg ledger.Ledger,
	engine *matching.Engine,
	maintainer *matching.Maintainer,
	books *matching.Books,
	cfg Config,
	logger *zap.Logger,
) *Saga {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = matching.DefaultMaxIterations
	}
	return &Saga{
		orders:     orders,
		trades:     trades,
		sagaLog:    sagaLog,
		ledger:     ldg,
		engine:     engine,
		maintainer: maintainer,
		books:      books,
		cfg:        cfg,
		logger:     logger,
		inflight:   make(map[uuid.UUID]struct{}),
		locks:      make(map[uuid.UUID]*lockRecord),
	}
}

// Submit validates, persists and settles a new order. The returned result
// carries the refreshed order and any trades executed this cycle.
func (s *Saga) Submit(ctx context.Context, order *types.Order) (*Result, error) {
	if err := s.begin(order.ID); err != nil {
		return nil, err
	}
	defer s.end(order.ID)

	if err := validate(order); err != nil {
		s.appendLog(order.ID, types.StepValidated, OutcomeFailed, err.Error())
		return nil, err
	}
	if err := s.orders.Save(order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	s.appendLog(order.ID, types.StepValidated, OutcomeCompleted, "")
	s.maintainer.Apply(order.ID, matching.ActionAdd, nil)

	metrics.OrdersPlaced.WithLabelValues(order.Pair.String(), string(order.Side), string(order.Kind)).Inc()

	return s.settle(ctx, order)
}

// Resettle runs another settlement cycle for an order that is already
// resting, reusing its existing lock. The API exposes it so a resting order
// can be retried against the book after new liquidity arrives.
func (s *Saga) Resettle(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	if err := s.begin(orderID); err != nil {
		return nil, err
	}
	defer s.end(orderID)

	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if err := validate(order); err != nil {
		return nil, err
	}
	if s.lockOf(order.ID) == nil {
		return nil, fmt.Errorf("%w: order %s has no active lock", ErrInvalidOrder, order.ID)
	}
	return s.settle(ctx, order)
}

// Cancel terminates a resting order, removes it from the book and releases
// its remaining lock.
func (s *Saga) Cancel(ctx context.Context, orderID uuid.UUID) (*types.Order, error) {
	if err := s.begin(orderID); err != nil {
		return nil, err
	}
	defer s.end(orderID)

	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Cancel(); err != nil {
		return nil, err
	}
	if err := s.orders.Update(order); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}
	s.maintainer.Apply(order.ID, matching.ActionRemove, nil)

	if rec := s.lockOf(order.ID); rec != nil {
		if err := s.ledger.Release(ctx, rec.LockID); err != nil {
			s.logger.Error("lock release failed on cancel",
				zap.String("order_id", order.ID.String()),
				zap.String("lock_id", rec.LockID.String()),
				zap.Error(err))
		}
		s.dropLock(order.ID)
	}
	s.appendLog(order.ID, types.StepReleased, OutcomeCompleted, "cancelled")
	return order, nil
}

// settle runs lock, match, transfer, book update and release for one order.
func (s *Saga) settle(ctx context.Context, order *types.Order) (*Result, error) {
	var undo []undoAction

	fail := func(step types.SagaStep, cause error) error {
		s.appendLog(order.ID, step, OutcomeFailed, cause.Error())
		s.compensate(order.ID, step, undo)
		// Compensation may have released the order's lock. Without a
		// reservation the order must not keep resting as a maker.
		if s.lockOf(order.ID) == nil && order.Matchable() {
			s.void(order)
		}
		return cause
	}

	// Lock. A resting order resettled after new liquidity keeps the lock
	// acquired on submission.
	if s.lockOf(order.ID) == nil {
		rec, err := s.acquireLock(ctx, order)
		if err != nil {
			s.appendLog(order.ID, types.StepLocked, OutcomeFailed, err.Error())
			// Nothing is reserved for this order; it must not rest on the book.
			s.void(order)
			return nil, err
		}
		s.setLock(order.ID, rec)
		undo = append(undo, undoAction{
			name: "release_lock",
			run: func() error {
				s.dropLock(order.ID)
				return s.ledger.Release(ctx, rec.LockID)
			},
		})
		s.appendLog(order.ID, types.StepLocked, OutcomeCompleted,
			fmt.Sprintf("asset=%s amount=%s", rec.Asset, rec.Amount))
	}

	// Match
	res, err := s.engine.Match(order.ID, s.cfg.MaxIterations)
	if err != nil {
		return nil, fail(types.StepMatched, err)
	}
	s.appendLog(order.ID, types.StepMatched, OutcomeCompleted,
		fmt.Sprintf("matches=%d remaining=%s", len(res.Matches), res.Remaining))

	if len(res.Matches) == 0 {
		// Nothing executed; the order rests with its lock intact.
		return &Result{Order: order, Trades: nil}, nil
	}

	// Transfer both legs of every trade. Each completed leg records its
	// reversal before the next leg runs.
	for _, trade := range res.Matches {
		buyAccount, sellAccount, err := s.tradeParties(order, trade)
		if err != nil {
			return nil, fail(types.StepTransferred, err)
		}
		meta := map[string]string{
			"correlation_id": trade.CorrelationID.String(),
			"trade_id":       trade.ID.String(),
		}

		baseTx := txID("base", trade.ID)
		if err := s.ledger.Transfer(ctx, sellAccount, buyAccount, order.Pair.Base, trade.Amount, baseTx, meta); err != nil {
			return nil, fail(types.StepTransferred, fmt.Errorf("base leg of trade %s: %w", trade.ID, err))
		}
		undo = append(undo, s.reversal(ctx, buyAccount, sellAccount, order.Pair.Base, trade.Amount, baseTx, meta))

		quoteTx := txID("quote", trade.ID)
		if err := s.ledger.Transfer(ctx, buyAccount, sellAccount, order.Pair.Quote, trade.Notional(), quoteTx, meta); err != nil {
			return nil, fail(types.StepTransferred, fmt.Errorf("quote leg of trade %s: %w", trade.ID, err))
		}
		undo = append(undo, s.reversal(ctx, sellAccount, buyAccount, order.Pair.Quote, trade.Notional(), quoteTx, meta))
	}

	if err := s.persistFills(order, res); err != nil {
		return nil, fail(types.StepTransferred, err)
	}
	s.appendLog(order.ID, types.StepTransferred, OutcomeCompleted, "")

	// Book update failures are logged but never compensated: the book is a
	// rebuildable projection and the ledger already holds the truth.
	if applied := s.maintainer.Apply(order.ID, matching.ActionUpdateAfterMatch, res.Matches); !applied.OK {
		s.appendLog(order.ID, types.StepBookUpdated, OutcomeFailed, applied.Reason)
	} else {
		s.appendLog(order.ID, types.StepBookUpdated, OutcomeCompleted, "")
	}

	// Release locks down to what the unmatched remainder still needs
	s.settleLocks(ctx, order, res)
	s.appendLog(order.ID, types.StepReleased, OutcomeCompleted, "")

	return &Result{Order: order, Trades: res.Matches}, nil
}

// void cancels an order that has no balance lock backing it and removes it
// from the book, so it can never match as an unreserved maker.
func (s *Saga) void(order *types.Order) {
	if err := order.Cancel(); err != nil {
		return
	}
	if err := s.orders.Update(order); err != nil {
		s.logger.Error("failed to void unfunded order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
	s.maintainer.Apply(order.ID, matching.ActionRemove, nil)
}

// acquireLock reserves the funds an order may consume: quote currency for
// buys (market buys sized at a buffered reference price), base currency at
// face amount for sells.
func (s *Saga) acquireLock(ctx context.Context, order *types.Order) (*lockRecord, error) {
	var asset string
	var amount, unitPrice decimal.Decimal

	if order.IsBuy() {
		asset = order.Pair.Quote
		unitPrice = order.Price
		if order.Kind == types.Market {
			ref, err := s.referencePrice(order.Pair)
			if err != nil {
				return nil, err
			}
			unitPrice = ref.Mul(decimal.NewFromInt(1).Add(s.cfg.SlippageBuffer))
		}
		amount = order.Remaining.Mul(unitPrice)
	} else {
		asset = order.Pair.Base
		amount = order.Remaining
	}

	lockID, err := s.ledger.Lock(ctx, order.AccountID, asset, amount, lockReason, order.ID)
	if err != nil {
		return nil, err
	}
	return &lockRecord{LockID: lockID, Asset: asset, Amount: amount, UnitPrice: unitPrice}, nil
}

// referencePrice values a market buy: last traded price, then best ask,
// then the configured fallback.
func (s *Saga) referencePrice(pair types.Pair) (decimal.Decimal, error) {
	book := s.books.Get(pair)
	if last, ok := book.LastPrice(); ok {
		return last, nil
	}
	if ask, ok := book.BestAsk(); ok {
		return ask, nil
	}
	if s.cfg.FallbackPrice.IsPositive() {
		return s.cfg.FallbackPrice, nil
	}
	return decimal.Zero, fmt.Errorf("%w: pair %s", ErrNoReferencePrice, pair)
}

// persistFills applies the cycle's fills to the taker and every maker and
// stores the trade records.
func (s *Saga) persistFills(order *types.Order, res *matching.Result) error {
	for _, trade := range res.Matches {
		if err := order.Fill(trade.Amount); err != nil {
			return fmt.Errorf("apply taker fill: %w", err)
		}
	}
	if err := s.orders.Update(order); err != nil {
		return fmt.Errorf("persist taker fills: %w", err)
	}

	for makerID, filled := range res.MakerFills {
		maker, err := s.orders.Get(makerID)
		if err != nil {
			return fmt.Errorf("load maker %s: %w", makerID, err)
		}
		if err := maker.Fill(filled); err != nil {
			return fmt.Errorf("apply maker fill: %w", err)
		}
		if err := s.orders.Update(maker); err != nil {
			return fmt.Errorf("persist maker fills: %w", err)
		}
	}

	if err := s.trades.SaveBatch(res.Matches); err != nil {
		return fmt.Errorf("persist trades: %w", err)
	}
	return nil
}

// settleLocks releases each touched party's lock and re-locks the reduced
// amount a still-open remainder needs. Relock failures after a successful
// release are logged for reconciliation; funds were already freed.
func (s *Saga) settleLocks(ctx context.Context, order *types.Order, res *matching.Result) {
	s.adjustLock(ctx, order)
	for makerID := range res.MakerFills {
		maker, err := s.orders.Get(makerID)
		if err != nil {
			s.logger.Error("maker lookup failed during release",
				zap.String("maker_id", makerID.String()), zap.Error(err))
			continue
		}
		s.adjustLock(ctx, maker)
	}
}

func (s *Saga) adjustLock(ctx context.Context, order *types.Order) {
	rec := s.lockOf(order.ID)
	if rec == nil {
		return
	}

	if err := s.ledger.Release(ctx, rec.LockID); err != nil {
		s.logger.Error("lock release failed",
			zap.String("order_id", order.ID.String()),
			zap.String("lock_id", rec.LockID.String()),
			zap.Error(err))
		return
	}
	s.dropLock(order.ID)

	if !order.Matchable() || !order.Remaining.IsPositive() {
		return
	}

	amount := order.Remaining
	if order.IsBuy() {
		amount = order.Remaining.Mul(rec.UnitPrice)
	}
	lockID, err := s.ledger.Lock(ctx, order.AccountID, rec.Asset, amount, lockReason, order.ID)
	if err != nil {
		s.logger.Error("relock failed after partial fill, order left unreserved",
			zap.String("order_id", order.ID.String()),
			zap.String("asset", rec.Asset),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return
	}
	s.setLock(order.ID, &lockRecord{
		LockID:    lockID,
		Asset:     rec.Asset,
		Amount:    amount,
		UnitPrice: rec.UnitPrice,
	})
}

// compensate reverses the recorded forward actions newest first. A failing
// reversal is fatal-but-recorded: it is logged with full context and the
// remaining actions still run.
func (s *Saga) compensate(orderID uuid.UUID, failedStep types.SagaStep, undo []undoAction) {
	metrics.SagaCompensations.WithLabelValues(string(failedStep)).Inc()
	for i := len(undo) - 1; i >= 0; i-- {
		action := undo[i]
		if err := action.run(); err != nil {
			s.logger.Error("compensation action failed, manual reconciliation required",
				zap.String("order_id", orderID.String()),
				zap.String("action", action.name),
				zap.String("failed_step", string(failedStep)),
				zap.Error(err))
			continue
		}
		s.appendLog(orderID, failedStep, OutcomeCompensated, action.name)
	}
}

// reversal records the undo of one completed transfer leg. The reversal
// tx id is derived from the original, so retries cannot double-apply.
func (s *Saga) reversal(ctx context.Context, from, to uuid.UUID, asset string, amount decimal.Decimal, origTx uuid.UUID, meta map[string]string) undoAction {
	reversalMeta := map[string]string{"reverses": origTx.String()}
	for k, v := range meta {
		reversalMeta[k] = v
	}
	return undoAction{
		name: "reverse_transfer_" + asset,
		run: func() error {
			return s.ledger.Transfer(ctx, from, to, asset, amount, reversalTxID(origTx), reversalMeta)
		},
	}
}

// tradeParties resolves the buyer and seller accounts of one trade
func (s *Saga) tradeParties(taker *types.Order, trade *types.Trade) (buy, sell uuid.UUID, err error) {
	resolve := func(orderID uuid.UUID) (uuid.UUID, error) {
		if orderID == taker.ID {
			return taker.AccountID, nil
		}
		o, err := s.orders.Get(orderID)
		if err != nil {
			return uuid.Nil, err
		}
		return o.AccountID, nil
	}
	if buy, err = resolve(trade.BuyOrderID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if sell, err = resolve(trade.SellOrderID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return buy, sell, nil
}

func validate(order *types.Order) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if !order.Pair.Valid() {
		return fmt.Errorf("%w: pair %q is not tradeable", ErrInvalidOrder, order.Pair)
	}
	if !order.Matchable() {
		return fmt.Errorf("%w: status %s", ErrInvalidOrder, order.Status)
	}
	if !order.Remaining.IsPositive() {
		return fmt.Errorf("%w: non-positive remaining amount %s", ErrInvalidOrder, order.Remaining)
	}
	if order.Kind == types.Limit && !order.Price.IsPositive() {
		return fmt.Errorf("%w: limit order needs a positive price", ErrInvalidOrder)
	}
	return nil
}

func (s *Saga) begin(orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[orderID]; busy {
		return fmt.Errorf("%w: %s", ErrOrderInFlight, orderID)
	}
	s.inflight[orderID] = struct{}{}
	return nil
}

func (s *Saga) end(orderID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, orderID)
}

func (s *Saga) lockOf(orderID uuid.UUID) *lockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[orderID]
}

func (s *Saga) setLock(orderID uuid.UUID, rec *lockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[orderID] = rec
}

func (s *Saga) dropLock(orderID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, orderID)
}

func (s *Saga) appendLog(orderID uuid.UUID, step types.SagaStep, outcome, detail string) {
	entry := &types.SagaLogEntry{
		ID:        uuid.New(),
		OrderID:   orderID,
		Step:      step,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sagaLog.Append(entry); err != nil {
		s.logger.Error("saga log append failed",
			zap.String("order_id", orderID.String()),
			zap.String("step", string(step)),
			zap.Error(err))
	}
}

func txID(leg string, tradeID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(txNamespace, []byte(leg+":"+tradeID.String()))
}

func reversalTxID(origTx uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(txNamespace, []byte("reversal:"+origTx.String()))
}
