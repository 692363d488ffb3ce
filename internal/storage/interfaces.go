package storage

import (
	"github.com/google/uuid"

	"github.com/finbase/exchange-core/internal/types"
)

// OrderStore abstracts order persistence.
// Implementations can be in-memory (map) or PostgreSQL.
type OrderStore interface {
	// Save stores a new order
	Save(order *types.Order) error

	// Get retrieves an order by ID
	Get(orderID uuid.UUID) (*types.Order, error)

	// Update modifies an existing order (partial fills, status changes)
	Update(order *types.Order) error

	// OpenByPairSide returns open and partially filled orders for one side
	// of a pair, ordered by creation time ascending (FIFO)
	OpenByPairSide(pair types.Pair, side types.Side) ([]*types.Order, error)

	// ByAccount returns all orders for an account
	ByAccount(accountID uuid.UUID) ([]*types.Order, error)

	// Close releases any resources held by the store
	Close() error
}

// TradeStore abstracts trade persistence.
// Implementations can be in-memory buffer, Redis, or PostgreSQL.
type TradeStore interface {
	// Save persists a single trade
	Save(trade *types.Trade) error

	// SaveBatch persists multiple trades
	SaveBatch(trades []*types.Trade) error

	// RecentByPair retrieves the N most recent trades of a pair,
	// newest first
	RecentByPair(pair types.Pair, limit int) ([]*types.Trade, error)

	// Close releases any resources held by the store
	Close() error
}

// PoolStore abstracts liquidity pool and provider persistence
type PoolStore interface {
	// Save stores a new pool
	Save(pool *types.LiquidityPool) error

	// Get retrieves a pool by ID
	Get(poolID uuid.UUID) (*types.LiquidityPool, error)

	// Update persists reserve/share changes of an existing pool
	Update(pool *types.LiquidityPool) error

	// Active returns all active pools
	Active() ([]*types.LiquidityPool, error)

	// Provider returns the share position of an account in a pool;
	// a zero-share position is returned when none exists yet
	Provider(poolID, accountID uuid.UUID) (*types.LiquidityProvider, error)

	// UpdateProvider persists a provider's share position
	UpdateProvider(provider *types.LiquidityProvider) error

	// Close releases any resources held by the store
	Close() error
}

// SagaStore persists settlement saga log entries for crash reconciliation
type SagaStore interface {
	// Append writes one saga log row
	Append(entry *types.SagaLogEntry) error

	// ByOrder returns the log rows of one order's settlement cycles,
	// oldest first
	ByOrder(orderID uuid.UUID) ([]*types.SagaLogEntry, error)

	// Close releases any resources held by the store
	Close() error
}
