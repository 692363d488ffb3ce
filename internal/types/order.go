package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Share and ratio arithmetic needs at least 18 fractional digits so that
	// intermediate quotients are not rounded early.
	if decimal.DivisionPrecision < 28 {
		decimal.DivisionPrecision = 28
	}
}

// Side is the direction of an order
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side of the book
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Kind distinguishes limit orders from market orders
type Kind string

const (
	Limit  Kind = "limit"
	Market Kind = "market"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusOpen            Status = "open"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
)

// Pair identifies a trading pair by its base and quote asset codes
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Valid reports whether both asset codes are set and distinct
func (p Pair) Valid() bool {
	return p.Base != "" && p.Quote != "" && p.Base != p.Quote
}

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOverfill      = errors.New("fill exceeds remaining amount")
	ErrNotCancelable = errors.New("order is not in a cancelable state")
)

// Order is a request to trade a fixed amount of the base asset of a pair.
// Remaining is monotonically non-increasing and only changes through Fill.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Pair      Pair            `json:"pair"`
	Side      Side            `json:"side"`
	Kind      Kind            `json:"kind"`
	Price     decimal.Decimal `json:"price"` // zero for market orders
	Amount    decimal.Decimal `json:"amount"`
	Remaining decimal.Decimal `json:"remaining"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewLimitOrder creates an open limit order for the given price and amount
func NewLimitOrder(accountID uuid.UUID, pair Pair, side Side, price, amount decimal.Decimal) *Order {
	return &Order{
		ID:        uuid.New(),
		AccountID: accountID,
		Pair:      pair,
		Side:      side,
		Kind:      Limit,
		Price:     price,
		Amount:    amount,
		Remaining: amount,
		Status:    StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
}

// NewMarketOrder creates an open market order for the given amount
func NewMarketOrder(accountID uuid.UUID, pair Pair, side Side, amount decimal.Decimal) *Order {
	return &Order{
		ID:        uuid.New(),
		AccountID: accountID,
		Pair:      pair,
		Side:      side,
		Kind:      Market,
		Amount:    amount,
		Remaining: amount,
		Status:    StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
}

// Matchable reports whether the order may participate in matching
func (o *Order) Matchable() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// IsBuy reports whether the order is on the buy side
func (o *Order) IsBuy() bool {
	return o.Side == Buy
}

// Fill decrements the remaining amount by the executed amount and advances
// the status. The executed amount must be positive and must not exceed the
// remaining amount.
func (o *Order) Fill(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("fill amount must be positive, got %s", amount)
	}
	if amount.GreaterThan(o.Remaining) {
		return fmt.Errorf("%w: fill %s > remaining %s on order %s",
			ErrOverfill, amount, o.Remaining, o.ID)
	}
	o.Remaining = o.Remaining.Sub(amount)
	if o.Remaining.IsZero() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// Cancel terminates an open or partially filled order
func (o *Order) Cancel() error {
	if !o.Matchable() {
		return fmt.Errorf("%w: order %s is %s", ErrNotCancelable, o.ID, o.Status)
	}
	o.Status = StatusCancelled
	return nil
}
