package handlers

import (
	"net/http"
	"strings"

	"github.com/finbase/exchange-core/internal/api/models"
	"github.com/finbase/exchange-core/internal/types"
)

// GetOrderBook returns aggregated depth for one pair
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := queryPair(w, r)
	if !ok {
		return
	}

	book := h.books.Get(pair)
	resp := models.OrderBookResponse{
		BaseResponse: models.OK(),
		Pair:         pair.String(),
		Bids:         book.Depth(types.Buy, h.depth),
		Asks:         book.Depth(types.Sell, h.depth),
	}
	if last, has := book.LastPrice(); has {
		resp.LastPrice = last.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTopOfBook returns the best bid and ask for one pair
func (h *Handler) GetTopOfBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := queryPair(w, r)
	if !ok {
		return
	}

	resp := models.TopOfBookResponse{BaseResponse: models.OK(), Pair: pair.String()}
	bid, hasBid := h.feed.BestBid(pair)
	ask, hasAsk := h.feed.BestAsk(pair)
	if hasBid {
		resp.BestBid = bid.String()
	}
	if hasAsk {
		resp.BestAsk = ask.String()
	}
	if hasBid && hasAsk {
		resp.Spread = ask.Sub(bid).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryPair(w http.ResponseWriter, r *http.Request) (types.Pair, bool) {
	pair := types.Pair{
		Base:  strings.ToUpper(r.URL.Query().Get("base")),
		Quote: strings.ToUpper(r.URL.Query().Get("quote")),
	}
	if !pair.Valid() {
		writeError(w, models.ErrBadRequest("base and quote query parameters are required",
			map[string]interface{}{"base": pair.Base, "quote": pair.Quote}))
		return types.Pair{}, false
	}
	return pair, true
}
