// Package marketdata exposes the read-only market view consumed by the
// market-making loop and the public API.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/types"
)

// Feed is the read-only market data contract: top of book, last trade and
// trailing volume per pair.
type Feed interface {
	BestBid(pair types.Pair) (decimal.Decimal, bool)
	BestAsk(pair types.Pair) (decimal.Decimal, bool)
	LastPrice(pair types.Pair) (decimal.Decimal, bool)

	// TrailingVolume sums the executed base amount of recent trades no
	// older than the window
	TrailingVolume(pair types.Pair, window time.Duration) (decimal.Decimal, error)

	// RecentPrices returns up to limit recent execution prices, newest
	// first, for volatility estimation
	RecentPrices(pair types.Pair, limit int) ([]decimal.Decimal, error)
}

// BookFeed serves the Feed contract from the in-process book projections
// and the trade store.
type BookFeed struct {
	books  *matching.Books
	trades storage.TradeStore
}

// NewBookFeed creates a feed over the book registry and trade store
func NewBookFeed(books *matching.Books, trades storage.TradeStore) *BookFeed {
	return &BookFeed{books: books, trades: trades}
}

func (f *BookFeed) BestBid(pair types.Pair) (decimal.Decimal, bool) {
	return f.books.Get(pair).BestBid()
}

func (f *BookFeed) BestAsk(pair types.Pair) (decimal.Decimal, bool) {
	return f.books.Get(pair).BestAsk()
}

func (f *BookFeed) LastPrice(pair types.Pair) (decimal.Decimal, bool) {
	return f.books.Get(pair).LastPrice()
}

func (f *BookFeed) TrailingVolume(pair types.Pair, window time.Duration) (decimal.Decimal, error) {
	trades, err := f.trades.RecentByPair(pair, 1000)
	if err != nil {
		return decimal.Zero, err
	}

	cutoff := time.Now().Add(-window)
	volume := decimal.Zero
	for _, trade := range trades {
		if trade.CreatedAt.Before(cutoff) {
			// newest first, everything after is older
			break
		}
		volume = volume.Add(trade.Amount)
	}
	return volume, nil
}

func (f *BookFeed) RecentPrices(pair types.Pair, limit int) ([]decimal.Decimal, error) {
	trades, err := f.trades.RecentByPair(pair, limit)
	if err != nil {
		return nil, err
	}
	prices := make([]decimal.Decimal, 0, len(trades))
	for _, trade := range trades {
		prices = append(prices, trade.Price)
	}
	return prices, nil
}
