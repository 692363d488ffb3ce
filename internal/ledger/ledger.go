// Package ledger defines the balance ledger collaborator contract consumed
// by the settlement saga and the pool flows, plus the reference
// implementations used for wiring and tests.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned by Lock when the available balance
// (balance minus existing locks) does not cover the requested amount.
// Use InsufficientBalanceError to read the shortfall.
var ErrInsufficientBalance = errors.New("insufficient balance")

// InsufficientBalanceError carries the required vs available amounts so
// callers can report an actionable shortfall.
type InsufficientBalanceError struct {
	AccountID uuid.UUID
	Asset     string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: account %s needs %s %s, has %s available",
		e.AccountID, e.Required, e.Asset, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Ledger owns account balances. Lock reserves funds exclusively per
// (account, asset); Release and Transfer are idempotent on their
// caller-supplied identifiers so compensation is safe to retry.
type Ledger interface {
	// Lock reserves amount of asset for the account and returns the lock id.
	// Fails with InsufficientBalanceError when available funds are short.
	Lock(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal, reason string, refID uuid.UUID) (uuid.UUID, error)

	// Release frees a previously acquired lock. Releasing an unknown or
	// already-released lock is a no-op.
	Release(ctx context.Context, lockID uuid.UUID) error

	// Transfer moves amount of asset between accounts. Repeated calls with
	// the same txID apply the transfer exactly once.
	Transfer(ctx context.Context, from, to uuid.UUID, asset string, amount decimal.Decimal, txID uuid.UUID, metadata map[string]string) error

	// Available returns balance minus the sum of active locks.
	Available(ctx context.Context, accountID uuid.UUID, asset string) (decimal.Decimal, error)
}
