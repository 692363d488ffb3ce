package matching

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/types"
)

// Entry is one resting order inside the book projection. Entries are
// immutable once inserted; amount changes go through remove-and-reinsert.
type Entry struct {
	OrderID   uuid.UUID
	AccountID uuid.UUID
	Kind      types.Kind
	Price     decimal.Decimal
	Remaining decimal.Decimal
	CreatedAt int64
}

// DepthLevel aggregates resting amount at one price
type DepthLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Orders int             `json:"orders"`
}

type priceLevel struct {
	price   decimal.Decimal
	entries []*Entry
}

func (l *priceLevel) insert(e *Entry) {
	idx := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].CreatedAt > e.CreatedAt
	})
	l.entries = append(l.entries, nil)
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = e
}

func (l *priceLevel) remove(orderID uuid.UUID) bool {
	for i, e := range l.entries {
		if e.OrderID == orderID {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *priceLevel) total() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range l.entries {
		sum = sum.Add(e.Remaining)
	}
	return sum
}

// Book is the per-pair order book projection: price-keyed FIFO buckets for
// limit orders, separate queues for resting market orders, and the last
// traded price. It is derived from order state and rebuildable, so callers
// treat apply failures as non-fatal.
type Book struct {
	mu   sync.RWMutex
	pair types.Pair

	bids map[string]*priceLevel
	asks map[string]*priceLevel

	marketBids []*Entry
	marketAsks []*Entry

	lastPrice    decimal.Decimal
	hasLastPrice bool
}

// NewBook creates an empty book for the pair
func NewBook(pair types.Pair) *Book {
	return &Book{
		pair: pair,
		bids: make(map[string]*priceLevel),
		asks: make(map[string]*priceLevel),
	}
}

// Pair returns the pair this book projects
func (b *Book) Pair() types.Pair {
	return b.pair
}

// Add inserts an order into the projection at its price level. Market
// orders go into the side's market queue instead.
func (b *Book) Add(order *types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := &Entry{
		OrderID:   order.ID,
		AccountID: order.AccountID,
		Kind:      order.Kind,
		Price:     order.Price,
		Remaining: order.Remaining,
		CreatedAt: order.CreatedAt.UnixNano(),
	}

	if order.Kind == types.Market {
		if order.Side == types.Buy {
			b.marketBids = insertByTime(b.marketBids, entry)
		} else {
			b.marketAsks = insertByTime(b.marketAsks, entry)
		}
		return
	}

	levels := b.bids
	if order.Side == types.Sell {
		levels = b.asks
	}
	key := order.Price.String()
	level, ok := levels[key]
	if !ok {
		level = &priceLevel{price: order.Price}
		levels[key] = level
	}
	level.insert(entry)
}

// Remove deletes an order from the projection. Returns false when the
// order was not resting in this book.
func (b *Book) Remove(orderID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(orderID)
}

func (b *Book) removeLocked(orderID uuid.UUID) bool {
	for key, level := range b.bids {
		if level.remove(orderID) {
			if len(level.entries) == 0 {
				delete(b.bids, key)
			}
			return true
		}
	}
	for key, level := range b.asks {
		if level.remove(orderID) {
			if len(level.entries) == 0 {
				delete(b.asks, key)
			}
			return true
		}
	}
	if filtered, ok := removeByID(b.marketBids, orderID); ok {
		b.marketBids = filtered
		return true
	}
	if filtered, ok := removeByID(b.marketAsks, orderID); ok {
		b.marketAsks = filtered
		return true
	}
	return false
}

// BestBid returns the highest bid price with resting limit liquidity
func (b *Book) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestPrice(b.bids, func(candidate, best decimal.Decimal) bool {
		return candidate.GreaterThan(best)
	})
}

// BestAsk returns the lowest ask price with resting limit liquidity
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestPrice(b.asks, func(candidate, best decimal.Decimal) bool {
		return candidate.LessThan(best)
	})
}

// LastPrice returns the last traded price, if any trade has executed
func (b *Book) LastPrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice, b.hasLastPrice
}

// SetLastPrice records the most recent execution price
func (b *Book) SetLastPrice(price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrice = price
	b.hasLastPrice = true
}

// Depth returns up to maxLevels aggregated price levels for the side,
// best price first.
func (b *Book) Depth(side types.Side, maxLevels int) []DepthLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.bids
	if side == types.Sell {
		levels = b.asks
	}

	out := make([]DepthLevel, 0, len(levels))
	for _, level := range levels {
		out = append(out, DepthLevel{
			Price:  level.price,
			Amount: level.total(),
			Orders: len(level.entries),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if side == types.Buy {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if maxLevels > 0 && len(out) > maxLevels {
		out = out[:maxLevels]
	}
	return out
}

func bestPrice(levels map[string]*priceLevel, better func(candidate, best decimal.Decimal) bool) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, level := range levels {
		if len(level.entries) == 0 {
			continue
		}
		if !found || better(level.price, best) {
			best = level.price
			found = true
		}
	}
	return best, found
}

func insertByTime(entries []*Entry, e *Entry) []*Entry {
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].CreatedAt > e.CreatedAt
	})
	entries = append(entries, nil)
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

func removeByID(entries []*Entry, orderID uuid.UUID) ([]*Entry, bool) {
	for i, e := range entries {
		if e.OrderID == orderID {
			return append(entries[:i], entries[i+1:]...), true
		}
	}
	return entries, false
}

// Books is a registry of per-pair book projections
type Books struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewBooks creates an empty registry
func NewBooks() *Books {
	return &Books{books: make(map[string]*Book)}
}

// Get returns the book for the pair, creating it on first use
func (r *Books) Get(pair types.Pair) *Book {
	key := pair.String()

	r.mu.RLock()
	book, ok := r.books[key]
	r.mu.RUnlock()
	if ok {
		return book
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if book, ok := r.books[key]; ok {
		return book
	}
	book = NewBook(pair)
	r.books[key] = book
	return book
}
