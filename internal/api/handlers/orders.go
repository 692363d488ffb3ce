package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/api/models"
)

// SubmitOrder places a new order and runs its settlement cycle
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, httpErr := req.ToOrder()
	if httpErr != nil {
		writeError(w, httpErr)
		return
	}

	result, err := h.saga.Submit(r.Context(), order)
	if err != nil {
		h.logger.Warn("order submission failed",
			zap.String("account_id", req.AccountID),
			zap.Error(err))
		writeError(w, models.FromDomain(err))
		return
	}

	writeJSON(w, http.StatusCreated, models.SubmitOrderResponse{
		BaseResponse: models.OK(),
		Order:        result.Order,
		Trades:       result.Trades,
	})
}

// GetOrder returns one order by id
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.Get(orderID)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, models.GetOrderResponse{BaseResponse: models.OK(), Order: order})
}

// ListOrders returns the orders of one account
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.URL.Query().Get("account_id"))
	if err != nil {
		writeError(w, models.ErrBadRequest("account_id query parameter must be a UUID", nil))
		return
	}

	orders, err := h.orders.ByAccount(accountID)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, models.GetOrdersResponse{
		BaseResponse: models.OK(),
		Orders:       orders,
		Count:        len(orders),
	})
}

// ResettleOrder retries settlement for a resting order against the current
// book, reusing the order's existing lock
func (h *Handler) ResettleOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.saga.Resettle(r.Context(), orderID)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, models.SubmitOrderResponse{
		BaseResponse: models.OK(),
		Order:        result.Order,
		Trades:       result.Trades,
	})
}

// CancelOrder terminates a resting order and releases its lock
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.saga.Cancel(r.Context(), orderID)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, models.CancelOrderResponse{BaseResponse: models.OK(), Order: order})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, models.ErrBadRequest(name+" must be a UUID", nil))
		return uuid.Nil, false
	}
	return id, true
}
