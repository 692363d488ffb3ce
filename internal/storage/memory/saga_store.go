package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/finbase/exchange-core/internal/types"
)

// SagaStore implements storage.SagaStore as an append-only in-memory log
type SagaStore struct {
	entries []*types.SagaLogEntry
	mutex   sync.RWMutex
}

// NewSagaStore creates a new in-memory saga log
func NewSagaStore() *SagaStore {
	return &SagaStore{}
}

func (s *SagaStore) Append(entry *types.SagaLogEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *SagaStore) ByOrder(orderID uuid.UUID) ([]*types.SagaLogEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var entries []*types.SagaLogEntry
	for _, entry := range s.entries {
		if entry.OrderID == orderID {
			cp := *entry
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}

func (s *SagaStore) Close() error {
	return nil
}
