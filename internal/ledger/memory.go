package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/types"
)

// MemoryLedger is an in-process Ledger used for tests and single-node
// deployments. All operations take the ledger mutex, which serializes
// balance reservation the same way the row locks do in the postgres
// implementation.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[balanceKey]decimal.Decimal
	locks    map[uuid.UUID]*types.BalanceLock
	applied  map[uuid.UUID]struct{} // transfer tx ids already applied
}

type balanceKey struct {
	account uuid.UUID
	asset   string
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[balanceKey]decimal.Decimal),
		locks:    make(map[uuid.UUID]*types.BalanceLock),
		applied:  make(map[uuid.UUID]struct{}),
	}
}

// Credit adds funds to an account. Used for funding accounts in tests and
// for seeding pool settlement accounts.
func (l *MemoryLedger) Credit(accountID uuid.UUID, asset string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{accountID, asset}
	l.balances[k] = l.balances[k].Add(amount)
}

// Balance returns the total (locked + available) balance
func (l *MemoryLedger) Balance(accountID uuid.UUID, asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{accountID, asset}]
}

func (l *MemoryLedger) lockedLocked(accountID uuid.UUID, asset string) decimal.Decimal {
	total := decimal.Zero
	for _, lk := range l.locks {
		if lk.AccountID == accountID && lk.Asset == asset {
			total = total.Add(lk.Amount)
		}
	}
	return total
}

func (l *MemoryLedger) Lock(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal, reason string, refID uuid.UUID) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, fmt.Errorf("lock amount must be positive, got %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.balances[balanceKey{accountID, asset}].Sub(l.lockedLocked(accountID, asset))
	if available.LessThan(amount) {
		return uuid.Nil, &InsufficientBalanceError{
			AccountID: accountID,
			Asset:     asset,
			Required:  amount,
			Available: available,
		}
	}

	lock := &types.BalanceLock{
		ID:          uuid.New(),
		AccountID:   accountID,
		Asset:       asset,
		Amount:      amount,
		Reason:      reason,
		ReferenceID: refID,
		CreatedAt:   time.Now().UTC(),
	}
	l.locks[lock.ID] = lock
	return lock.ID, nil
}

func (l *MemoryLedger) Release(ctx context.Context, lockID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// No-op when the lock does not exist: release is idempotent.
	delete(l.locks, lockID)
	return nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to uuid.UUID, asset string, amount decimal.Decimal, txID uuid.UUID, metadata map[string]string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive, got %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.applied[txID]; done {
		return nil
	}

	fromKey := balanceKey{from, asset}
	if l.balances[fromKey].LessThan(amount) {
		return &InsufficientBalanceError{
			AccountID: from,
			Asset:     asset,
			Required:  amount,
			Available: l.balances[fromKey],
		}
	}

	toKey := balanceKey{to, asset}
	l.balances[fromKey] = l.balances[fromKey].Sub(amount)
	l.balances[toKey] = l.balances[toKey].Add(amount)
	l.applied[txID] = struct{}{}
	return nil
}

func (l *MemoryLedger) Available(ctx context.Context, accountID uuid.UUID, asset string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{accountID, asset}].Sub(l.lockedLocked(accountID, asset)), nil
}
