package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tathienbao/futures-exec/internal/gateway"
	"github.com/tathienbao/futures-exec/internal/types"
)

const (
	pathPing         = "/fapi/v1/ping"
	pathExchangeInfo = "/fapi/v1/exchangeInfo"
	pathOrder        = "/fapi/v1/order"
	pathBalance      = "/fapi/v2/balance"
)

// Client implements gateway.Gateway over the futures REST API.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient creates a new REST client. It does not touch the network.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, types.ErrMissingAPIKeys
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = TestnetBaseURL
	}
	if cfg.MaxRequestsPerSecond <= 0 {
		cfg.MaxRequestsPerSecond = DefaultConfig().MaxRequestsPerSecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	return &Client{
		cfg:     cfg,
		logger:  logger.Named("binance"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond),
		now:     time.Now,
	}, nil
}

// Connect checks connectivity and credentials, retrying transient
// failures with exponential backoff. Credential rejections are not retried.
func (c *Client) Connect(ctx context.Context) error {
	op := func() error {
		if err := c.do(ctx, http.MethodGet, pathPing, nil, false, nil); err != nil {
			c.logger.Warn("ping failed", zap.Error(err))
			return err
		}
		if _, err := c.GetAccountBalances(ctx); err != nil {
			var gerr *types.GatewayError
			if errors.As(err, &gerr) && gerr.Code != 0 {
				return backoff.Permanent(err)
			}
			c.logger.Warn("balance check failed", zap.Error(err))
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.ConnectRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			err = perr.Err
		}
		return fmt.Errorf("connect %s: %w", c.cfg.BaseURL, err)
	}

	c.logger.Info("connected", zap.String("base_url", c.cfg.BaseURL))
	return nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string          `json:"filterType"`
			MinPrice   decimal.Decimal `json:"minPrice"`
			MaxPrice   decimal.Decimal `json:"maxPrice"`
			TickSize   decimal.Decimal `json:"tickSize"`
			MinQty     decimal.Decimal `json:"minQty"`
			MaxQty     decimal.Decimal `json:"maxQty"`
			StepSize   decimal.Decimal `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// GetInstrumentRules reads PRICE_FILTER and LOT_SIZE for symbol.
func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (types.InstrumentRules, error) {
	symbol = strings.ToUpper(symbol)
	params := url.Values{}
	params.Set("symbol", symbol)

	var info exchangeInfo
	if err := c.do(ctx, http.MethodGet, pathExchangeInfo, params, false, &info); err != nil {
		return types.InstrumentRules{}, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := types.InstrumentRules{Symbol: s.Symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				rules.PriceTick = f.TickSize
				rules.PriceMin = f.MinPrice
				rules.PriceMax = f.MaxPrice
			case "LOT_SIZE":
				rules.QuantityStep = f.StepSize
				rules.QuantityMin = f.MinQty
				rules.QuantityMax = f.MaxQty
			}
		}
		return rules, nil
	}

	return types.InstrumentRules{}, fmt.Errorf("%s: %w", symbol, types.ErrUnknownInstrument)
}

type orderResponse struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	OrigQty       decimal.Decimal `json:"origQty"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stopPrice"`
	TimeInForce   string          `json:"timeInForce"`
	Status        string          `json:"status"`
	ReduceOnly    bool            `json:"reduceOnly"`
	UpdateTime    int64           `json:"updateTime"`
}

func (r orderResponse) toPlaced() *types.PlacedOrder {
	return &types.PlacedOrder{
		OrderID:       strconv.FormatInt(r.OrderID, 10),
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          types.Side(r.Side),
		Type:          types.OrderType(r.Type),
		Quantity:      r.OrigQty,
		Price:         r.Price,
		StopPrice:     r.StopPrice,
		TimeInForce:   types.TimeInForce(r.TimeInForce),
		Status:        types.OrderStatus(r.Status),
		ReduceOnly:    r.ReduceOnly,
		UpdatedAt:     time.UnixMilli(r.UpdateTime),
	}
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side.String())
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.HasPrice() {
		params.Set("price", req.Price.String())
	}
	if req.HasStopPrice() {
		params.Set("stopPrice", req.StopPrice.String())
	}
	if req.TimeInForce != "" {
		params.Set("timeInForce", string(req.TimeInForce))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if req.WorkingType != "" {
		params.Set("workingType", string(req.WorkingType))
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, pathOrder, params, true, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("order submitted",
		zap.Int64("order_id", resp.OrderID),
		zap.String("symbol", resp.Symbol),
		zap.String("side", resp.Side),
		zap.String("type", resp.Type),
		zap.String("status", resp.Status),
	)
	return resp.toPlaced(), nil
}

// GetOrderStatus queries an order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, pathOrder, params, true, &resp); err != nil {
		return nil, err
	}
	return resp.toPlaced(), nil
}

// CancelOrder cancels an order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodDelete, pathOrder, params, true, &resp); err != nil {
		return nil, err
	}
	return resp.toPlaced(), nil
}

type balanceResponse struct {
	Asset            string          `json:"asset"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

// GetAccountBalances returns futures wallet balances.
func (c *Client) GetAccountBalances(ctx context.Context) ([]types.Balance, error) {
	var resp []balanceResponse
	if err := c.do(ctx, http.MethodGet, pathBalance, url.Values{}, true, &resp); err != nil {
		return nil, err
	}

	out := make([]types.Balance, 0, len(resp))
	for _, b := range resp {
		out = append(out, types.Balance{Asset: b.Asset, Balance: b.Balance, Available: b.AvailableBalance})
	}
	return out, nil
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// do performs a request. Signed requests carry timestamp, recvWindow and
// an HMAC-SHA256 signature over the encoded query.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	op := method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return &types.GatewayError{Op: op, Err: err}
	}

	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.cfg.RecvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
		}
		query = params.Encode()
		query += "&signature=" + c.sign(query)
	}

	endpoint := c.cfg.BaseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return &types.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.GatewayError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.GatewayError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Code != 0 {
			return &types.GatewayError{Op: op, Code: apiErr.Code, Message: apiErr.Msg}
		}
		return &types.GatewayError{Op: op, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &types.GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ gateway.Gateway = (*Client)(nil)
