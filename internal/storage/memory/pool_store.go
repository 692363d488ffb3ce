package memory

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/types"
)

type providerKey struct {
	pool    uuid.UUID
	account uuid.UUID
}

// PoolStore implements storage.PoolStore using in-memory maps
type PoolStore struct {
	pools     map[uuid.UUID]*types.LiquidityPool
	providers map[providerKey]*types.LiquidityProvider
	mutex     sync.RWMutex
}

// NewPoolStore creates a new in-memory pool store
func NewPoolStore() *PoolStore {
	return &PoolStore{
		pools:     make(map[uuid.UUID]*types.LiquidityPool),
		providers: make(map[providerKey]*types.LiquidityProvider),
	}
}

func (s *PoolStore) Save(pool *types.LiquidityPool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.pools[pool.ID]; exists {
		return fmt.Errorf("pool %s already exists", pool.ID)
	}
	cp := *pool
	s.pools[pool.ID] = &cp
	return nil
}

func (s *PoolStore) Get(poolID uuid.UUID) (*types.LiquidityPool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	pool, exists := s.pools[poolID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	cp := *pool
	return &cp, nil
}

func (s *PoolStore) Update(pool *types.LiquidityPool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.pools[pool.ID]; !exists {
		return fmt.Errorf("%w: %s", types.ErrPoolNotFound, pool.ID)
	}
	cp := *pool
	s.pools[pool.ID] = &cp
	return nil
}

func (s *PoolStore) Active() ([]*types.LiquidityPool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var active []*types.LiquidityPool
	for _, pool := range s.pools {
		if pool.Active {
			cp := *pool
			active = append(active, &cp)
		}
	}
	return active, nil
}

func (s *PoolStore) Provider(poolID, accountID uuid.UUID) (*types.LiquidityProvider, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	provider, exists := s.providers[providerKey{poolID, accountID}]
	if !exists {
		return &types.LiquidityProvider{
			PoolID:    poolID,
			AccountID: accountID,
			Shares:    decimal.Zero,
		}, nil
	}
	cp := *provider
	return &cp, nil
}

func (s *PoolStore) UpdateProvider(provider *types.LiquidityProvider) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := providerKey{provider.PoolID, provider.AccountID}
	if provider.Shares.IsZero() {
		delete(s.providers, key)
		return nil
	}
	cp := *provider
	s.providers[key] = &cp
	return nil
}

func (s *PoolStore) Close() error {
	return nil
}
