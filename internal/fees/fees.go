// Package fees provides the maker/taker fee schedule consumed by the
// matching engine.
package fees

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var bpsDivisor = decimal.NewFromInt(10000)

// Schedule charges flat maker and taker rates in basis points of the
// notional (amount times price). It is a pure function of the fill; account
// ids are accepted so tiered schedules can replace it behind the same
// interface.
type Schedule struct {
	makerBps decimal.Decimal
	takerBps decimal.Decimal
}

// NewSchedule creates a flat fee schedule from basis-point rates
func NewSchedule(makerBps, takerBps int64) *Schedule {
	return &Schedule{
		makerBps: decimal.NewFromInt(makerBps),
		takerBps: decimal.NewFromInt(takerBps),
	}
}

// Fees returns the maker and taker fees for one execution
func (s *Schedule) Fees(amount, price decimal.Decimal, makerAccount, takerAccount uuid.UUID) (decimal.Decimal, decimal.Decimal) {
	notional := amount.Mul(price)
	maker := notional.Mul(s.makerBps).Div(bpsDivisor)
	taker := notional.Mul(s.takerBps).Div(bpsDivisor)
	return maker, taker
}
