package models

import (
	"time"

	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/types"
)

// BaseResponse is the base structure for all API responses
type BaseResponse struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// OK returns a successful base response stamped now
func OK() BaseResponse {
	return BaseResponse{Success: true, Timestamp: time.Now().UTC()}
}

// SubmitOrderResponse represents the response for order submission
type SubmitOrderResponse struct {
	BaseResponse
	Order  *types.Order   `json:"order,omitempty"`
	Trades []*types.Trade `json:"trades,omitempty"`
}

// GetOrderResponse represents the response for getting a single order
type GetOrderResponse struct {
	BaseResponse
	Order *types.Order `json:"order,omitempty"`
}

// GetOrdersResponse represents the response for getting multiple orders
type GetOrdersResponse struct {
	BaseResponse
	Orders []*types.Order `json:"orders"`
	Count  int            `json:"count"`
}

// CancelOrderResponse represents the response for order cancellation
type CancelOrderResponse struct {
	BaseResponse
	Order *types.Order `json:"order,omitempty"`
}

// OrderBookResponse represents aggregated book depth for one pair
type OrderBookResponse struct {
	BaseResponse
	Pair      string                `json:"pair"`
	Bids      []matching.DepthLevel `json:"bids"`
	Asks      []matching.DepthLevel `json:"asks"`
	LastPrice string                `json:"last_price,omitempty"`
}

// TopOfBookResponse represents the best bid and ask of one pair
type TopOfBookResponse struct {
	BaseResponse
	Pair    string `json:"pair"`
	BestBid string `json:"best_bid,omitempty"`
	BestAsk string `json:"best_ask,omitempty"`
	Spread  string `json:"spread,omitempty"`
}

// GetTradesResponse represents the response for getting trades
type GetTradesResponse struct {
	BaseResponse
	Trades []*types.Trade `json:"trades"`
	Count  int            `json:"count"`
}

// PoolResponse wraps a single pool
type PoolResponse struct {
	BaseResponse
	Pool *types.LiquidityPool `json:"pool,omitempty"`
}

// PoolListResponse lists active pools
type PoolListResponse struct {
	BaseResponse
	Pools []*types.LiquidityPool `json:"pools"`
	Count int                    `json:"count"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Version       string    `json:"version"`
}
