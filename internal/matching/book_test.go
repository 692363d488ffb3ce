package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/finbase/exchange-core/internal/types"
)

// TestBookBestPrices verifies best bid and ask across multiple price levels
func TestBookBestPrices(t *testing.T) {
	book := NewBook(btcusd)

	if _, ok := book.BestBid(); ok {
		t.Error("Empty book should have no best bid")
	}
	if _, ok := book.BestAsk(); ok {
		t.Error("Empty book should have no best ask")
	}

	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("99"), dec("1")))
	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("1")))
	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Sell, dec("102"), dec("1")))
	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Sell, dec("101"), dec("1")))

	bid, ok := book.BestBid()
	if !ok || !bid.Equal(dec("100")) {
		t.Errorf("Expected best bid 100, got %s (ok=%v)", bid, ok)
	}
	ask, ok := book.BestAsk()
	if !ok || !ask.Equal(dec("101")) {
		t.Errorf("Expected best ask 101, got %s (ok=%v)", ask, ok)
	}
}

// TestBookDepth verifies aggregation and ordering of depth levels
func TestBookDepth(t *testing.T) {
	book := NewBook(btcusd)

	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("1")))
	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("2")))
	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("99"), dec("5")))
	book.Add(types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("98"), dec("4")))

	depth := book.Depth(types.Buy, 2)
	if len(depth) != 2 {
		t.Fatalf("Expected 2 levels, got %d", len(depth))
	}
	if !depth[0].Price.Equal(dec("100")) || !depth[0].Amount.Equal(dec("3")) || depth[0].Orders != 2 {
		t.Errorf("Unexpected top level: %+v", depth[0])
	}
	if !depth[1].Price.Equal(dec("99")) || !depth[1].Amount.Equal(dec("5")) {
		t.Errorf("Unexpected second level: %+v", depth[1])
	}
}

// TestBookRemoveClearsLevel verifies that removing the only order at a price
// removes the level from the depth view.
func TestBookRemoveClearsLevel(t *testing.T) {
	book := NewBook(btcusd)

	order := types.NewLimitOrder(uuid.New(), btcusd, types.Sell, dec("101"), dec("1"))
	book.Add(order)

	if !book.Remove(order.ID) {
		t.Fatal("Remove() returned false for a resting order")
	}
	if book.Remove(order.ID) {
		t.Error("Remove() should return false for an absent order")
	}
	if _, ok := book.BestAsk(); ok {
		t.Error("Expected no ask after removal")
	}
	if len(book.Depth(types.Sell, 0)) != 0 {
		t.Error("Expected empty depth after removal")
	}
}

// TestBookReinsertKeepsQueuePosition verifies that remove-and-reinsert with
// the original creation time preserves FIFO position at the price level.
func TestBookReinsertKeepsQueuePosition(t *testing.T) {
	book := NewBook(btcusd)

	t0 := time.Now().UTC()
	first := types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("2"))
	first.CreatedAt = t0
	second := types.NewLimitOrder(uuid.New(), btcusd, types.Buy, dec("100"), dec("2"))
	second.CreatedAt = t0.Add(time.Second)

	book.Add(first)
	book.Add(second)

	// Partial fill path: the first order re-enters with less remaining
	first.Remaining = dec("1")
	book.Remove(first.ID)
	book.Add(first)

	level := book.bids[dec("100").String()]
	if level == nil || len(level.entries) != 2 {
		t.Fatalf("Expected 2 entries at price 100")
	}
	if level.entries[0].OrderID != first.ID {
		t.Error("Reinserted order lost its queue position")
	}
	if !level.entries[0].Remaining.Equal(dec("1")) {
		t.Errorf("Expected refreshed remaining 1, got %s", level.entries[0].Remaining)
	}
}

// TestBookMarketQueue verifies that market orders rest in the side queue,
// not at a price level.
func TestBookMarketQueue(t *testing.T) {
	book := NewBook(btcusd)

	order := types.NewMarketOrder(uuid.New(), btcusd, types.Sell, dec("1"))
	book.Add(order)

	if _, ok := book.BestAsk(); ok {
		t.Error("Market orders must not set the best ask")
	}
	if len(book.marketAsks) != 1 {
		t.Fatalf("Expected 1 queued market ask, got %d", len(book.marketAsks))
	}
	if !book.Remove(order.ID) {
		t.Error("Remove() should find the queued market order")
	}
}

// TestBookLastPrice verifies the last traded price marker
func TestBookLastPrice(t *testing.T) {
	book := NewBook(btcusd)

	if _, ok := book.LastPrice(); ok {
		t.Error("New book should have no last price")
	}
	book.SetLastPrice(dec("42"))
	last, ok := book.LastPrice()
	if !ok || !last.Equal(dec("42")) {
		t.Errorf("Expected last price 42, got %s (ok=%v)", last, ok)
	}
}

// TestBooksRegistry verifies that the registry hands out one book per pair
func TestBooksRegistry(t *testing.T) {
	books := NewBooks()

	a := books.Get(btcusd)
	b := books.Get(btcusd)
	if a != b {
		t.Error("Registry returned different books for the same pair")
	}
	other := books.Get(types.Pair{Base: "ETH", Quote: "USD"})
	if other == a {
		t.Error("Registry returned the same book for different pairs")
	}
}
