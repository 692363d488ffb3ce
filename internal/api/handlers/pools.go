package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/api/models"
)

// CreatePool registers a new liquidity pool
func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePoolRequest
	if !decodeBody(w, r, &req) {
		return
	}

	base, quote, feeRate, settlementAccount, httpErr := req.Validate()
	if httpErr != nil {
		writeError(w, httpErr)
		return
	}

	pool, err := h.pools.CreatePool(r.Context(), base, quote, feeRate, settlementAccount)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusCreated, models.PoolResponse{BaseResponse: models.OK(), Pool: pool})
}

// ListPools returns all active pools
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.poolStore.Active()
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, models.PoolListResponse{
		BaseResponse: models.OK(),
		Pools:        pools,
		Count:        len(pools),
	})
}

// GetPoolState returns one pool with its reserve-implied price
func (h *Handler) GetPoolState(w http.ResponseWriter, r *http.Request) {
	poolID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	state, err := h.pools.State(r.Context(), poolID)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		models.BaseResponse
		State interface{} `json:"state"`
	}{models.OK(), state})
}

// Deposit adds liquidity to a pool and mints shares
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	poolID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	accountID, baseAsset, quoteAsset, baseAmount, quoteAmount, httpErr := req.Validate()
	if httpErr != nil {
		writeError(w, httpErr)
		return
	}

	result, err := h.pools.Deposit(r.Context(), poolID, accountID, baseAsset, quoteAsset, baseAmount, quoteAmount)
	if err != nil {
		h.logger.Warn("pool deposit failed",
			zap.String("pool_id", poolID.String()),
			zap.String("account_id", req.AccountID),
			zap.Error(err))
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		models.BaseResponse
		Result interface{} `json:"result"`
	}{models.OK(), result})
}

// Withdraw redeems pool shares for reserves
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	poolID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	accountID, shares, httpErr := req.Validate()
	if httpErr != nil {
		writeError(w, httpErr)
		return
	}

	result, err := h.pools.Withdraw(r.Context(), poolID, accountID, shares)
	if err != nil {
		h.logger.Warn("pool withdrawal failed",
			zap.String("pool_id", poolID.String()),
			zap.String("account_id", req.AccountID),
			zap.Error(err))
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		models.BaseResponse
		Result interface{} `json:"result"`
	}{models.OK(), result})
}
