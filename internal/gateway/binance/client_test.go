package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/futures-exec/internal/types"
)

const testSecret = "secret"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "key"
	cfg.APISecret = testSecret
	cfg.MaxRequestsPerSecond = 1000
	cfg.ConnectRetries = 1

	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

// checkSignature verifies the request was signed with testSecret.
func checkSignature(t *testing.T, r *http.Request) {
	t.Helper()
	raw := r.URL.RawQuery
	i := strings.LastIndex(raw, "&signature=")
	if i < 0 {
		t.Errorf("request %s is not signed", r.URL.Path)
		return
	}
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(raw[:i]))
	want := hex.EncodeToString(mac.Sum(nil))
	if got := raw[i+len("&signature="):]; got != want {
		t.Errorf("signature = %s, want %s", got, want)
	}
	if r.Header.Get("X-MBX-APIKEY") != "key" {
		t.Errorf("X-MBX-APIKEY = %q, want key", r.Header.Get("X-MBX-APIKEY"))
	}
	if r.URL.Query().Get("timestamp") != "1700000000000" {
		t.Errorf("timestamp = %q", r.URL.Query().Get("timestamp"))
	}
}

func TestNewClient_RequiresKeys(t *testing.T) {
	if _, err := NewClient(DefaultConfig(), nil); !errors.Is(err, types.ErrMissingAPIKeys) {
		t.Errorf("err = %v, want ErrMissingAPIKeys", err)
	}
}

func TestClient_GetInstrumentRules(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathExchangeInfo {
			t.Errorf("path = %s, want %s", r.URL.Path, pathExchangeInfo)
		}
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[
			{"filterType":"PRICE_FILTER","minPrice":"556.80","maxPrice":"4529764","tickSize":"0.10"},
			{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"},
			{"filterType":"MIN_NOTIONAL","notional":"100"}]}]}`))
	})

	rules, err := c.GetInstrumentRules(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("GetInstrumentRules() error = %v", err)
	}
	if !rules.PriceTick.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("PriceTick = %s, want 0.1", rules.PriceTick)
	}
	if !rules.PriceMin.Equal(decimal.RequireFromString("556.8")) {
		t.Errorf("PriceMin = %s, want 556.8", rules.PriceMin)
	}
	if !rules.QuantityStep.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("QuantityStep = %s, want 0.001", rules.QuantityStep)
	}
	if !rules.QuantityMax.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("QuantityMax = %s, want 1000", rules.QuantityMax)
	}

	if _, err := c.GetInstrumentRules(context.Background(), "ETHUSDT"); !errors.Is(err, types.ErrUnknownInstrument) {
		t.Errorf("missing symbol err = %v, want ErrUnknownInstrument", err)
	}
}

func TestClient_SubmitOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != pathOrder {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		checkSignature(t, r)

		q := r.URL.Query()
		want := map[string]string{
			"symbol":      "BTCUSDT",
			"side":        "SELL",
			"type":        "STOP",
			"quantity":    "0.01",
			"price":       "24900",
			"stopPrice":   "25000",
			"timeInForce": "GTC",
			"workingType": "MARK_PRICE",
			"recvWindow":  "5000",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("param %s = %q, want %q", k, q.Get(k), v)
			}
		}
		if q.Has("reduceOnly") {
			t.Error("reduceOnly should be omitted when false")
		}

		_, _ = w.Write([]byte(`{"orderId":42,"clientOrderId":"abc","symbol":"BTCUSDT","side":"SELL","type":"STOP",
			"origQty":"0.010","price":"24900","stopPrice":"25000","timeInForce":"GTC","status":"NEW","updateTime":1700000000000}`))
	})

	order, err := c.SubmitOrder(context.Background(), types.OrderRequest{
		ClientOrderID: "abc",
		Symbol:        "BTCUSDT",
		Side:          types.SideSell,
		Type:          types.OrderTypeStop,
		Quantity:      decimal.RequireFromString("0.01"),
		Price:         decimal.RequireFromString("24900"),
		StopPrice:     decimal.RequireFromString("25000"),
		TimeInForce:   types.TIFGoodTillCancel,
		WorkingType:   types.WorkingTypeMarkPrice,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if order.OrderID != "42" {
		t.Errorf("OrderID = %s, want 42", order.OrderID)
	}
	if order.Status != types.OrderStatusNew {
		t.Errorf("Status = %s, want NEW", order.Status)
	}
	if !order.Quantity.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Quantity = %s, want 0.01", order.Quantity)
	}
}

func TestClient_ExchangeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	})

	_, err := c.GetOrderStatus(context.Background(), "BTCUSDT", "1")
	var gerr *types.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want GatewayError", err)
	}
	if gerr.Code != -2015 || !gerr.IsAuthFailure() {
		t.Errorf("Code = %d, want -2015 auth failure", gerr.Code)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.CancelOrder(context.Background(), "BTCUSDT", "1")
	var gerr *types.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want GatewayError", err)
	}
	if !strings.Contains(gerr.Message, "502") {
		t.Errorf("Message = %q, want http status", gerr.Message)
	}
}

func TestClient_CancelAndBalances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		checkSignature(t, r)
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == pathOrder:
			if r.URL.Query().Get("orderId") != "7" {
				t.Errorf("orderId = %q, want 7", r.URL.Query().Get("orderId"))
			}
			_, _ = w.Write([]byte(`{"orderId":7,"symbol":"BTCUSDT","side":"BUY","type":"LIMIT","origQty":"1","price":"100","status":"CANCELED"}`))
		case r.URL.Path == pathBalance:
			_, _ = w.Write([]byte(`[{"asset":"USDT","balance":"1000.50","availableBalance":"900"},{"asset":"BNB","balance":"0","availableBalance":"0"}]`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	order, err := c.CancelOrder(context.Background(), "BTCUSDT", "7")
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if order.Status != types.OrderStatusCanceled {
		t.Errorf("Status = %s, want CANCELED", order.Status)
	}

	balances, err := c.GetAccountBalances(context.Background())
	if err != nil {
		t.Fatalf("GetAccountBalances() error = %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("len(balances) = %d, want 2", len(balances))
	}
	if !balances[0].Balance.Equal(decimal.RequireFromString("1000.5")) {
		t.Errorf("USDT balance = %s, want 1000.5", balances[0].Balance)
	}
}

func TestClient_ConnectAuthFailureNotRetried(t *testing.T) {
	var balanceCalls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPing:
			_, _ = w.Write([]byte(`{}`))
		case pathBalance:
			balanceCalls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
		}
	})

	err := c.Connect(context.Background())
	var gerr *types.GatewayError
	if !errors.As(err, &gerr) || gerr.Code != -2015 {
		t.Fatalf("Connect() err = %v, want -2015 GatewayError", err)
	}
	if n := balanceCalls.Load(); n != 1 {
		t.Errorf("balance calls = %d, want 1", n)
	}
}

func TestClient_ConnectOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPing:
			if r.URL.RawQuery != "" {
				t.Errorf("ping should be unsigned, query = %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{}`))
		case pathBalance:
			_, _ = w.Write([]byte(`[]`))
		}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("Connect() error = %v", err)
	}
}
