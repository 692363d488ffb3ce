// Package handlers implements the HTTP endpoints of the trading core.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/amm"
	"github.com/finbase/exchange-core/internal/api/models"
	"github.com/finbase/exchange-core/internal/marketdata"
	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/settlement"
	"github.com/finbase/exchange-core/internal/storage"
)

// Handler bundles the collaborators the HTTP endpoints drive
type Handler struct {
	saga       *settlement.Saga
	pools      *amm.Service
	poolStore  storage.PoolStore
	orders     storage.OrderStore
	trades     storage.TradeStore
	books      *matching.Books
	feed       marketdata.Feed
	depth      int
	tradeLimit int
	maxTrades  int
	logger     *zap.Logger
}

// Config holds the handler's request limits
type Config struct {
	OrderBookDepth    int
	DefaultTradeLimit int
	MaxTradeLimit     int
}

// New creates the endpoint handler
func New(
	saga *settlement.Saga,
	pools *amm.Service,
	poolStore storage.PoolStore,
	orders storage.OrderStore,
	trades storage.TradeStore,
	books *matching.Books,
	feed marketdata.Feed,
	cfg Config,
	logger *zap.Logger,
) *Handler {
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 10
	}
	if cfg.DefaultTradeLimit <= 0 {
		cfg.DefaultTradeLimit = 100
	}
	if cfg.MaxTradeLimit < cfg.DefaultTradeLimit {
		cfg.MaxTradeLimit = cfg.DefaultTradeLimit
	}
	return &Handler{
		saga:       saga,
		pools:      pools,
		poolStore:  poolStore,
		orders:     orders,
		trades:     trades,
		books:      books,
		feed:       feed,
		depth:      cfg.OrderBookDepth,
		tradeLimit: cfg.DefaultTradeLimit,
		maxTrades:  cfg.MaxTradeLimit,
		logger:     logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, httpErr *models.HTTPError) {
	writeJSON(w, httpErr.StatusCode, models.BaseResponse{
		Success:   false,
		Timestamp: time.Now().UTC(),
		Error:     &httpErr.Error,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON body", map[string]interface{}{"error": err.Error()}))
		return false
	}
	return true
}
