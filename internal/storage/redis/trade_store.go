package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finbase/exchange-core/internal/types"
)

// TradeStore keeps recent trades per pair in Redis sorted sets, scored by
// execution time. Each pair's set is trimmed to maxPerPair entries.
type TradeStore struct {
	client     *redis.Client
	maxPerPair int64
	ttl        time.Duration
}

// NewTradeStore creates a Redis-backed recent-trade cache
func NewTradeStore(client *redis.Client, maxPerPair int64, ttl time.Duration) *TradeStore {
	if maxPerPair <= 0 {
		maxPerPair = 1000
	}
	return &TradeStore{client: client, maxPerPair: maxPerPair, ttl: ttl}
}

func tradeKey(pair types.Pair) string {
	return fmt.Sprintf("trades:recent:%s:%s", pair.Base, pair.Quote)
}

func (s *TradeStore) Save(trade *types.Trade) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.save(ctx, trade)
}

func (s *TradeStore) SaveBatch(trades []*types.Trade) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, trade := range trades {
		if err := s.save(ctx, trade); err != nil {
			return err
		}
	}
	return nil
}

func (s *TradeStore) save(ctx context.Context, trade *types.Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", trade.ID, err)
	}

	key := tradeKey(trade.Pair)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(trade.CreatedAt.UnixNano()),
		Member: payload,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -(s.maxPerPair + 1))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store trade %s: %w", trade.ID, err)
	}
	return nil
}

// RecentByPair returns up to limit trades for the pair, newest first.
func (s *TradeStore) RecentByPair(pair types.Pair, limit int) ([]*types.Trade, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	raw, err := s.client.ZRevRange(ctx, tradeKey(pair), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch recent trades: %w", err)
	}

	trades := make([]*types.Trade, 0, len(raw))
	for _, member := range raw {
		var trade types.Trade
		if err := json.Unmarshal([]byte(member), &trade); err != nil {
			return nil, fmt.Errorf("unmarshal trade: %w", err)
		}
		trades = append(trades, &trade)
	}
	return trades, nil
}

func (s *TradeStore) Close() error {
	return s.client.Close()
}
