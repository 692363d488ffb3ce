package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/finbase/exchange-core/internal/types"
)

// OrderStore implements storage.OrderStore using in-memory maps.
// Thread-safe for concurrent access via RWMutex. Orders are copied on
// write and read so callers never share mutable state with the store.
type OrderStore struct {
	orders map[uuid.UUID]*types.Order
	mutex  sync.RWMutex
}

// NewOrderStore creates a new in-memory order store
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[uuid.UUID]*types.Order),
	}
}

func (s *OrderStore) Save(order *types.Order) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *OrderStore) Get(orderID uuid.UUID) (*types.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrOrderNotFound, orderID)
	}
	cp := *order
	return &cp, nil
}

func (s *OrderStore) Update(order *types.Order) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.ID]; !exists {
		return fmt.Errorf("%w: %s", types.ErrOrderNotFound, order.ID)
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *OrderStore) OpenByPairSide(pair types.Pair, side types.Side) ([]*types.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var open []*types.Order
	for _, order := range s.orders {
		if order.Pair == pair && order.Side == side && order.Matchable() {
			cp := *order
			open = append(open, &cp)
		}
	}

	// FIFO within the result; price priority is the engine's concern
	sort.Slice(open, func(i, j int) bool {
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return open, nil
}

func (s *OrderStore) ByAccount(accountID uuid.UUID) ([]*types.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var orders []*types.Order
	for _, order := range s.orders {
		if order.AccountID == accountID {
			cp := *order
			orders = append(orders, &cp)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *OrderStore) Close() error {
	return nil
}
