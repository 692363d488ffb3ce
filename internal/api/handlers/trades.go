package handlers

import (
	"net/http"
	"strconv"

	"github.com/finbase/exchange-core/internal/api/models"
)

// GetTrades returns the most recent trades of one pair, newest first
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	pair, ok := queryPair(w, r)
	if !ok {
		return
	}

	limit := h.tradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, models.ErrBadRequest("limit must be a positive integer",
				map[string]interface{}{"provided_value": raw}))
			return
		}
		limit = parsed
	}
	if limit > h.maxTrades {
		limit = h.maxTrades
	}

	trades, err := h.trades.RecentByPair(pair, limit)
	if err != nil {
		writeError(w, models.FromDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, models.GetTradesResponse{
		BaseResponse: models.OK(),
		Trades:       trades,
		Count:        len(trades),
	})
}
