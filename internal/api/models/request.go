package models

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/types"
)

// SubmitOrderRequest represents a single order submission. Monetary fields
// are decimal strings; floats are never accepted for money.
type SubmitOrderRequest struct {
	AccountID string `json:"account_id"`
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Side      string `json:"side"` // "buy" | "sell"
	Kind      string `json:"kind"` // "limit" | "market"
	Price     string `json:"price,omitempty"`
	Amount    string `json:"amount"`
}

// ToOrder validates the request and builds the domain order
func (r *SubmitOrderRequest) ToOrder() (*types.Order, *HTTPError) {
	accountID, err := uuid.Parse(strings.TrimSpace(r.AccountID))
	if err != nil {
		return nil, ErrBadRequest("account_id must be a UUID", map[string]interface{}{"field": "account_id"})
	}

	pair := types.Pair{
		Base:  strings.ToUpper(strings.TrimSpace(r.Base)),
		Quote: strings.ToUpper(strings.TrimSpace(r.Quote)),
	}
	if !pair.Valid() {
		return nil, ErrBadRequest("base and quote must be distinct asset codes",
			map[string]interface{}{"base": r.Base, "quote": r.Quote})
	}

	side := types.Side(strings.ToLower(strings.TrimSpace(r.Side)))
	if side != types.Buy && side != types.Sell {
		return nil, NewHTTPError(400, ErrInvalidSide,
			"side must be 'buy' or 'sell'",
			map[string]interface{}{"provided_value": r.Side})
	}

	kind := types.Kind(strings.ToLower(strings.TrimSpace(r.Kind)))
	if kind != types.Limit && kind != types.Market {
		return nil, NewHTTPError(400, ErrInvalidOrderKind,
			"kind must be 'limit' or 'market'",
			map[string]interface{}{"provided_value": r.Kind})
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, NewHTTPError(400, ErrInvalidAmount,
			"amount must be a positive decimal string",
			map[string]interface{}{"field": "amount", "provided_value": r.Amount})
	}

	if kind == types.Market {
		return types.NewMarketOrder(accountID, pair, side, amount), nil
	}

	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil || !price.IsPositive() {
		return nil, NewHTTPError(400, ErrInvalidPrice,
			"price must be a positive decimal string for limit orders",
			map[string]interface{}{"field": "price", "provided_value": r.Price})
	}
	return types.NewLimitOrder(accountID, pair, side, price, amount), nil
}

// CreatePoolRequest registers a new liquidity pool
type CreatePoolRequest struct {
	Base                string `json:"base"`
	Quote               string `json:"quote"`
	FeeRate             string `json:"fee_rate"`
	SettlementAccountID string `json:"settlement_account_id"`
}

// Validate parses and checks the pool creation fields
func (r *CreatePoolRequest) Validate() (base, quote string, feeRate decimal.Decimal, settlementAccount uuid.UUID, httpErr *HTTPError) {
	base = strings.ToUpper(strings.TrimSpace(r.Base))
	quote = strings.ToUpper(strings.TrimSpace(r.Quote))
	if !(types.Pair{Base: base, Quote: quote}).Valid() {
		return "", "", decimal.Zero, uuid.Nil,
			ErrBadRequest("base and quote must be distinct asset codes",
				map[string]interface{}{"base": r.Base, "quote": r.Quote})
	}

	feeRate = decimal.Zero
	if strings.TrimSpace(r.FeeRate) != "" {
		var err error
		feeRate, err = decimal.NewFromString(strings.TrimSpace(r.FeeRate))
		if err != nil || feeRate.IsNegative() {
			return "", "", decimal.Zero, uuid.Nil,
				ErrBadRequest("fee_rate must be a non-negative decimal string",
					map[string]interface{}{"field": "fee_rate", "provided_value": r.FeeRate})
		}
	}

	settlementAccount, err := uuid.Parse(strings.TrimSpace(r.SettlementAccountID))
	if err != nil {
		return "", "", decimal.Zero, uuid.Nil,
			ErrBadRequest("settlement_account_id must be a UUID",
				map[string]interface{}{"field": "settlement_account_id"})
	}
	return base, quote, feeRate, settlementAccount, nil
}

// DepositRequest adds liquidity to a pool
type DepositRequest struct {
	AccountID   string `json:"account_id"`
	BaseAsset   string `json:"base_asset"`
	QuoteAsset  string `json:"quote_asset"`
	BaseAmount  string `json:"base_amount"`
	QuoteAmount string `json:"quote_amount"`
}

// Validate parses and checks the deposit fields
func (r *DepositRequest) Validate() (accountID uuid.UUID, baseAsset, quoteAsset string, baseAmount, quoteAmount decimal.Decimal, httpErr *HTTPError) {
	accountID, err := uuid.Parse(strings.TrimSpace(r.AccountID))
	if err != nil {
		return uuid.Nil, "", "", decimal.Zero, decimal.Zero,
			ErrBadRequest("account_id must be a UUID", map[string]interface{}{"field": "account_id"})
	}

	baseAsset = strings.ToUpper(strings.TrimSpace(r.BaseAsset))
	quoteAsset = strings.ToUpper(strings.TrimSpace(r.QuoteAsset))

	baseAmount, err = decimal.NewFromString(strings.TrimSpace(r.BaseAmount))
	if err != nil || !baseAmount.IsPositive() {
		return uuid.Nil, "", "", decimal.Zero, decimal.Zero,
			NewHTTPError(400, ErrInvalidAmount, "base_amount must be a positive decimal string",
				map[string]interface{}{"field": "base_amount", "provided_value": r.BaseAmount})
	}
	quoteAmount, err = decimal.NewFromString(strings.TrimSpace(r.QuoteAmount))
	if err != nil || !quoteAmount.IsPositive() {
		return uuid.Nil, "", "", decimal.Zero, decimal.Zero,
			NewHTTPError(400, ErrInvalidAmount, "quote_amount must be a positive decimal string",
				map[string]interface{}{"field": "quote_amount", "provided_value": r.QuoteAmount})
	}
	return accountID, baseAsset, quoteAsset, baseAmount, quoteAmount, nil
}

// WithdrawRequest redeems pool shares
type WithdrawRequest struct {
	AccountID string `json:"account_id"`
	Shares    string `json:"shares"`
}

// Validate parses and checks the withdrawal fields
func (r *WithdrawRequest) Validate() (accountID uuid.UUID, shares decimal.Decimal, httpErr *HTTPError) {
	accountID, err := uuid.Parse(strings.TrimSpace(r.AccountID))
	if err != nil {
		return uuid.Nil, decimal.Zero,
			ErrBadRequest("account_id must be a UUID", map[string]interface{}{"field": "account_id"})
	}
	shares, err = decimal.NewFromString(strings.TrimSpace(r.Shares))
	if err != nil || !shares.IsPositive() {
		return uuid.Nil, decimal.Zero,
			NewHTTPError(400, ErrInvalidAmount, "shares must be a positive decimal string",
				map[string]interface{}{"field": "shares", "provided_value": r.Shares})
	}
	return accountID, shares, nil
}
