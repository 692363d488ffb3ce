package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/api/handlers"
	"github.com/finbase/exchange-core/internal/api/middleware"
)

// Setup configures all API routes with middleware
func Setup(h *handlers.Handler, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	api.HandleFunc("/orders", h.SubmitOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/settlements", h.ResettleOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.CancelOrder).Methods(http.MethodDelete)

	api.HandleFunc("/orderbook", h.GetOrderBook).Methods(http.MethodGet)
	api.HandleFunc("/orderbook/top", h.GetTopOfBook).Methods(http.MethodGet)

	api.HandleFunc("/trades", h.GetTrades).Methods(http.MethodGet)

	api.HandleFunc("/pools", h.CreatePool).Methods(http.MethodPost)
	api.HandleFunc("/pools", h.ListPools).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}", h.GetPoolState).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}/deposits", h.Deposit).Methods(http.MethodPost)
	api.HandleFunc("/pools/{id}/withdrawals", h.Withdraw).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Order matters: Recovery -> CORS -> Logging -> Handler
	var handler http.Handler = r
	handler = middleware.Logging(logger)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}
