package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/amm"
	"github.com/finbase/exchange-core/internal/api/handlers"
	"github.com/finbase/exchange-core/internal/api/routes"
	"github.com/finbase/exchange-core/internal/fees"
	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/marketdata"
	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/settlement"
	"github.com/finbase/exchange-core/internal/storage/memory"
)

type testStack struct {
	router http.Handler
	ledger *ledger.MemoryLedger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	orders := memory.NewOrderStore()
	trades := memory.NewTradeStore(100)
	sagaLog := memory.NewSagaStore()
	pools := memory.NewPoolStore()
	ldg := ledger.NewMemoryLedger()
	books := matching.NewBooks()
	log := zap.NewNop()

	engine := matching.NewEngine(orders, books, fees.NewSchedule(0, 0), decimal.Zero, log)
	maintainer := matching.NewMaintainer(books, orders, log)
	saga := settlement.NewSaga(orders, trades, sagaLog, ldg, engine, maintainer, books,
		settlement.Config{SlippageBuffer: decimal.NewFromFloat(0.10)}, log)
	poolService := amm.NewService(pools, ldg, amm.AllowAll{}, decimal.NewFromFloat(0.01), log)
	feed := marketdata.NewBookFeed(books, trades)

	handler := handlers.New(saga, poolService, pools, orders, trades, books, feed,
		handlers.Config{OrderBookDepth: 10, DefaultTradeLimit: 50, MaxTradeLimit: 200}, log)

	return &testStack{router: routes.Setup(handler, log), ledger: ldg}
}

func (s *testStack) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	payload := decodeResponse(t, rec)
	errObj, ok := payload["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no error object: %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// TestSubmitAndGetOrder places a funded limit order and reads it back
func TestSubmitAndGetOrder(t *testing.T) {
	stack := newTestStack(t)
	account := uuid.New()
	stack.ledger.Credit(account, "USD", decimal.NewFromInt(1000))

	rec := stack.do(t, http.MethodPost, "/api/v1/orders", map[string]string{
		"account_id": account.String(),
		"base":       "BTC",
		"quote":      "USD",
		"side":       "buy",
		"kind":       "limit",
		"price":      "100",
		"amount":     "1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	payload := decodeResponse(t, rec)
	order, ok := payload["order"].(map[string]interface{})
	if !ok {
		t.Fatalf("Response carries no order: %s", rec.Body.String())
	}
	orderID, _ := order["id"].(string)
	if orderID == "" {
		t.Fatal("Expected an order id")
	}
	if order["status"] != "open" {
		t.Errorf("Expected open order, got %v", order["status"])
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/orders/"+orderID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/orders?account_id="+account.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if count := decodeResponse(t, rec)["count"]; count != float64(1) {
		t.Errorf("Expected count 1, got %v", count)
	}
}

// TestSubmitOrderValidation rejects malformed submissions with stable codes
func TestSubmitOrderValidation(t *testing.T) {
	stack := newTestStack(t)

	cases := []struct {
		name     string
		mutate   func(m map[string]string)
		wantCode string
	}{
		{"bad side", func(m map[string]string) { m["side"] = "hold" }, "INVALID_SIDE"},
		{"bad kind", func(m map[string]string) { m["kind"] = "stop" }, "INVALID_ORDER_KIND"},
		{"bad amount", func(m map[string]string) { m["amount"] = "-1" }, "INVALID_AMOUNT"},
		{"missing price", func(m map[string]string) { delete(m, "price") }, "INVALID_PRICE"},
		{"same assets", func(m map[string]string) { m["quote"] = "BTC" }, "INVALID_REQUEST"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := map[string]string{
				"account_id": uuid.NewString(),
				"base":       "BTC",
				"quote":      "USD",
				"side":       "buy",
				"kind":       "limit",
				"price":      "100",
				"amount":     "1",
			}
			tc.mutate(body)

			rec := stack.do(t, http.MethodPost, "/api/v1/orders", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tc.wantCode {
				t.Errorf("Expected code %s, got %s", tc.wantCode, code)
			}
		})
	}
}

// TestSubmitOrderInsufficientBalance maps the shortfall to 422
func TestSubmitOrderInsufficientBalance(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodPost, "/api/v1/orders", map[string]string{
		"account_id": uuid.NewString(),
		"base":       "BTC",
		"quote":      "USD",
		"side":       "buy",
		"kind":       "limit",
		"price":      "100",
		"amount":     "1",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "INSUFFICIENT_BALANCE" {
		t.Errorf("Expected INSUFFICIENT_BALANCE, got %s", code)
	}
}

// TestCancelOrder cancels a resting order and rejects a second attempt
func TestCancelOrder(t *testing.T) {
	stack := newTestStack(t)
	account := uuid.New()
	stack.ledger.Credit(account, "USD", decimal.NewFromInt(1000))

	rec := stack.do(t, http.MethodPost, "/api/v1/orders", map[string]string{
		"account_id": account.String(),
		"base":       "BTC",
		"quote":      "USD",
		"side":       "buy",
		"kind":       "limit",
		"price":      "100",
		"amount":     "1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	order := decodeResponse(t, rec)["order"].(map[string]interface{})
	orderID := order["id"].(string)

	rec = stack.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = stack.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for double cancel, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_CANCELABLE" {
		t.Errorf("Expected NOT_CANCELABLE, got %s", code)
	}

	rec = stack.do(t, http.MethodDelete, "/api/v1/orders/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown order, got %d", rec.Code)
	}
}

// TestResettleOrder retries settlement for a resting order
func TestResettleOrder(t *testing.T) {
	stack := newTestStack(t)
	account := uuid.New()
	stack.ledger.Credit(account, "USD", decimal.NewFromInt(1000))

	rec := stack.do(t, http.MethodPost, "/api/v1/orders", map[string]string{
		"account_id": account.String(),
		"base":       "BTC",
		"quote":      "USD",
		"side":       "buy",
		"kind":       "limit",
		"price":      "100",
		"amount":     "1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	order := decodeResponse(t, rec)["order"].(map[string]interface{})
	orderID := order["id"].(string)

	// No liquidity on the other side: the order keeps resting
	rec = stack.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/settlements", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	order = decodeResponse(t, rec)["order"].(map[string]interface{})
	if order["status"] != "open" {
		t.Errorf("Expected open order, got %v", order["status"])
	}

	rec = stack.do(t, http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/settlements", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown order, got %d", rec.Code)
	}
}

// TestOrderBookEndpoints reads depth and top of book after two submissions
func TestOrderBookEndpoints(t *testing.T) {
	stack := newTestStack(t)
	buyer, seller := uuid.New(), uuid.New()
	stack.ledger.Credit(buyer, "USD", decimal.NewFromInt(1000))
	stack.ledger.Credit(seller, "BTC", decimal.NewFromInt(10))

	for _, body := range []map[string]string{
		{"account_id": buyer.String(), "base": "BTC", "quote": "USD", "side": "buy", "kind": "limit", "price": "99", "amount": "1"},
		{"account_id": seller.String(), "base": "BTC", "quote": "USD", "side": "sell", "kind": "limit", "price": "101", "amount": "1"},
	} {
		if rec := stack.do(t, http.MethodPost, "/api/v1/orders", body); rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := stack.do(t, http.MethodGet, "/api/v1/orderbook?base=btc&quote=usd", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if pair := payload["pair"]; pair != "BTC/USD" {
		t.Errorf("Expected pair BTC/USD, got %v", pair)
	}
	if bids := payload["bids"].([]interface{}); len(bids) != 1 {
		t.Errorf("Expected 1 bid level, got %d", len(bids))
	}
	if asks := payload["asks"].([]interface{}); len(asks) != 1 {
		t.Errorf("Expected 1 ask level, got %d", len(asks))
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/orderbook/top?base=BTC&quote=USD", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	top := decodeResponse(t, rec)
	if top["best_bid"] != "99" || top["best_ask"] != "101" {
		t.Errorf("Unexpected top of book: %s", rec.Body.String())
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/orderbook", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without pair params, got %d", rec.Code)
	}
}

// TestPoolLifecycle creates a pool, deposits, reads state and withdraws
func TestPoolLifecycle(t *testing.T) {
	stack := newTestStack(t)
	provider := uuid.New()
	settlementAccount := uuid.New()
	stack.ledger.Credit(provider, "BTC", decimal.NewFromInt(100))
	stack.ledger.Credit(provider, "USD", decimal.NewFromInt(400))

	rec := stack.do(t, http.MethodPost, "/api/v1/pools", map[string]string{
		"base":                  "BTC",
		"quote":                 "USD",
		"fee_rate":              "0.003",
		"settlement_account_id": settlementAccount.String(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	pool := decodeResponse(t, rec)["pool"].(map[string]interface{})
	poolID := pool["id"].(string)

	rec = stack.do(t, http.MethodPost, fmt.Sprintf("/api/v1/pools/%s/deposits", poolID), map[string]string{
		"account_id":   provider.String(),
		"base_asset":   "BTC",
		"quote_asset":  "USD",
		"base_amount":  "100",
		"quote_amount": "400",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/pools/"+poolID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/pools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if count := decodeResponse(t, rec)["count"]; count != float64(1) {
		t.Errorf("Expected 1 pool, got %v", count)
	}

	rec = stack.do(t, http.MethodPost, fmt.Sprintf("/api/v1/pools/%s/withdrawals", poolID), map[string]string{
		"account_id": provider.String(),
		"shares":     "1000",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 for excess shares, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "INSUFFICIENT_SHARES" {
		t.Errorf("Expected INSUFFICIENT_SHARES, got %s", code)
	}

	rec = stack.do(t, http.MethodPost, fmt.Sprintf("/api/v1/pools/%s/withdrawals", poolID), map[string]string{
		"account_id": provider.String(),
		"shares":     "200",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestPoolNotFound maps unknown pool ids to 404
func TestPoolNotFound(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodGet, "/api/v1/pools/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "POOL_NOT_FOUND" {
		t.Errorf("Expected POOL_NOT_FOUND, got %s", code)
	}
}

// TestHealthEndpoint returns a healthy status
func TestHealthEndpoint(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if status := decodeResponse(t, rec)["status"]; status != "healthy" {
		t.Errorf("Expected healthy, got %v", status)
	}
}
