package memory

import (
	"sync"

	"github.com/finbase/exchange-core/internal/types"
)

// TradeStore implements storage.TradeStore as a bounded in-memory buffer.
// When maxTrades is reached the oldest trades are evicted.
type TradeStore struct {
	trades    []*types.Trade
	maxTrades int
	mutex     sync.RWMutex
}

// NewTradeStore creates a new in-memory trade store with a size limit
func NewTradeStore(maxTrades int) *TradeStore {
	if maxTrades <= 0 {
		maxTrades = 1000
	}
	return &TradeStore{
		trades:    make([]*types.Trade, 0, maxTrades),
		maxTrades: maxTrades,
	}
}

func (s *TradeStore) Save(trade *types.Trade) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.appendLocked(trade)
	return nil
}

func (s *TradeStore) SaveBatch(trades []*types.Trade) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, trade := range trades {
		s.appendLocked(trade)
	}
	return nil
}

func (s *TradeStore) appendLocked(trade *types.Trade) {
	cp := *trade
	s.trades = append(s.trades, &cp)
	if len(s.trades) > s.maxTrades {
		s.trades = s.trades[len(s.trades)-s.maxTrades:]
	}
}

func (s *TradeStore) RecentByPair(pair types.Pair, limit int) ([]*types.Trade, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var recent []*types.Trade
	for i := len(s.trades) - 1; i >= 0 && len(recent) < limit; i-- {
		if s.trades[i].Pair == pair {
			cp := *s.trades[i]
			recent = append(recent, &cp)
		}
	}
	return recent, nil
}

func (s *TradeStore) Close() error {
	return nil
}
