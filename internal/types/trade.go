package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one matching iteration between a buy and
// a sell order. CorrelationID ties the two settlement transfer legs of the
// trade together so they are auditable as one unit.
type Trade struct {
	ID            uuid.UUID       `json:"id"`
	Pair          Pair            `json:"pair"`
	BuyOrderID    uuid.UUID       `json:"buy_order_id"`
	SellOrderID   uuid.UUID       `json:"sell_order_id"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	MakerFee      decimal.Decimal `json:"maker_fee"`
	TakerFee      decimal.Decimal `json:"taker_fee"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Notional returns the quote-asset value of the trade (amount × price)
func (t *Trade) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}
