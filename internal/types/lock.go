package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceLock is a reservation of funds held by the ledger on behalf of an
// order or pool operation. It exists from the ledger's lock call until the
// corresponding release.
type BalanceLock struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	ReferenceID uuid.UUID       `json:"reference_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SagaStep identifies a forward step of the settlement saga
type SagaStep string

const (
	StepValidated   SagaStep = "validated"
	StepLocked      SagaStep = "locked"
	StepMatched     SagaStep = "matched"
	StepTransferred SagaStep = "transferred"
	StepBookUpdated SagaStep = "book_updated"
	StepReleased    SagaStep = "released"
)

// SagaLogEntry is one persisted row of the settlement saga log. A cycle
// writes one entry per step outcome so it can be reconciled after a crash.
type SagaLogEntry struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Step      SagaStep  `json:"step"`
	Outcome   string    `json:"outcome"` // completed, failed, compensated
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
