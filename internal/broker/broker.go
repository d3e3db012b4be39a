// Package broker implements the Broker Adapter (spec.md §4.12): order
// submission for options (never equities — spec.md §9 "the core opens
// only option positions"), account/positions queries, and stale-order
// cancellation, against a REST broker API. Grounded in
// internal/marketdata.HTTPSource's retryablehttp.Client usage, generalized
// from a read-only vendor feed to an order-submitting one with the
// domain-level ErrBrokerTransient/ErrBrokerPermanent split spec.md §7
// requires.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

// Config configures the Broker Adapter's REST client. The options and
// equity endpoints are distinct base paths: the adapter must never send
// an option symbol to the equity path or vice versa (spec.md §4.12).
type Config struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	OrderPollInterval time.Duration
	OrderTimeout      time.Duration
}

// DefaultConfig matches spec.md §4.12/§6: base 1s, 3 attempts, jittered
// backoff; 15s end-to-end order deadline including retries.
func DefaultConfig() Config {
	return Config{
		RetryAttempts:     3,
		RetryBaseDelay:    1 * time.Second,
		OrderPollInterval: 500 * time.Millisecond,
		OrderTimeout:      15 * time.Second,
	}
}

// Adapter is the Broker Adapter implementation.
type Adapter struct {
	cfg    Config
	client *retryablehttp.Client
	logger *zap.Logger
}

// New constructs a Broker Adapter. CheckRetry distinguishes
// ErrBrokerTransient (5xx/timeout, retried by retryablehttp itself) from
// ErrBrokerPermanent (401/403/422, surfaced immediately, not retried).
func New(logger *zap.Logger, cfg Config) *Adapter {
	client := retryablehttp.NewClient()
	// RetryAttempts counts every try; retryablehttp's RetryMax counts only
	// the retries after the first one.
	client.RetryMax = cfg.RetryAttempts - 1
	if client.RetryMax < 0 {
		client.RetryMax = 0
	}
	client.RetryWaitMin = cfg.RetryBaseDelay
	client.RetryWaitMax = cfg.RetryBaseDelay * 4
	client.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		d := retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
		if d <= 0 {
			return d
		}
		return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	client.Logger = nil
	client.CheckRetry = checkRetry
	return &Adapter{cfg: cfg, client: client, logger: logger.Named("broker")}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnprocessableEntity {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// ExecuteMarketOrder submits a market order for an option contract and
// waits (bounded by cfg.OrderTimeout) for a terminal status.
func (a *Adapter) ExecuteMarketOrder(ctx context.Context, optionSymbol string, qty int64, side types.OrderSide) (types.Order, error) {
	return a.submitAndConfirm(ctx, orderRequest{
		ClientID:     uuid.New().String(),
		OptionSymbol: optionSymbol,
		Qty:          qty,
		Side:         side,
		Kind:         types.OrderMarket,
	})
}

// ExecuteLimitOrder submits a limit order at price.
func (a *Adapter) ExecuteLimitOrder(ctx context.Context, optionSymbol string, qty int64, side types.OrderSide, price decimal.Decimal) (types.Order, error) {
	return a.submitAndConfirm(ctx, orderRequest{
		ClientID:     uuid.New().String(),
		OptionSymbol: optionSymbol,
		Qty:          qty,
		Side:         side,
		Kind:         types.OrderLimit,
		LimitPrice:   price,
	})
}

// ExecuteBracketOrder submits an entry order plus attached take-profit and
// stop-loss legs in a single broker request.
func (a *Adapter) ExecuteBracketOrder(ctx context.Context, optionSymbol string, qty int64, side types.OrderSide, entryPrice, takeProfit, stopLoss decimal.Decimal) (types.Order, error) {
	return a.submitAndConfirm(ctx, orderRequest{
		ClientID:     uuid.New().String(),
		OptionSymbol: optionSymbol,
		Qty:          qty,
		Side:         side,
		Kind:         types.OrderBracket,
		LimitPrice:   entryPrice,
		TakeProfit:   takeProfit,
		StopLoss:     stopLoss,
	})
}

// CancelStaleOrders cancels every working order older than the given
// duration.
func (a *Adapter) CancelStaleOrders(ctx context.Context, olderThan time.Duration) error {
	u := fmt.Sprintf("%s/v2/options/orders/cancel_stale?older_than_s=%d", a.cfg.BaseURL, int(olderThan.Seconds()))
	req, err := a.newRequest(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := a.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// GetAccount fetches the broker's reported account state.
func (a *Adapter) GetAccount(ctx context.Context) (types.Account, error) {
	var body struct {
		Equity      float64 `json:"equity"`
		BuyingPower float64 `json:"buying_power"`
		MarketOpen  bool    `json:"market_open"`
	}
	u := a.cfg.BaseURL + "/v2/account"
	if err := a.getJSON(ctx, u, &body); err != nil {
		return types.Account{}, err
	}
	return types.Account{
		Equity:      decimal.NewFromFloat(body.Equity),
		BuyingPower: decimal.NewFromFloat(body.BuyingPower),
		MarketOpen:  body.MarketOpen,
	}, nil
}

// ListPositions fetches the broker's reported open option positions, used
// to reconcile the Portfolio Manager's table after an ErrOrderUncertain.
func (a *Adapter) ListPositions(ctx context.Context) ([]types.Position, error) {
	var body []struct {
		Symbol       string  `json:"symbol"`
		Underlying   string  `json:"underlying"`
		Qty          int64   `json:"qty"`
		EntryPrice   float64 `json:"entry_price"`
		EntryTimeRFC string  `json:"entry_time"`
		Strike       float64 `json:"strike"`
		Expiration   string  `json:"expiration"`
		OptionType   string  `json:"option_type"`
		CurrentPrice float64 `json:"current_price"`
	}
	u := a.cfg.BaseURL + "/v2/options/positions"
	if err := a.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}

	out := make([]types.Position, 0, len(body))
	for _, p := range body {
		entryTime, _ := time.Parse(time.RFC3339, p.EntryTimeRFC)
		exp, _ := time.Parse("2006-01-02", p.Expiration)
		optType := types.OptionCall
		if p.OptionType == "put" || p.OptionType == "P" {
			optType = types.OptionPut
		}
		out = append(out, types.Position{
			OptionSymbol:   p.Symbol,
			Underlying:     p.Underlying,
			Qty:            p.Qty,
			EntryPrice:     decimal.NewFromFloat(p.EntryPrice),
			EntryTime:      entryTime,
			Side:           types.PositionLong,
			Strike:         decimal.NewFromFloat(p.Strike),
			Expiration:     exp,
			OptionType:     optType,
			CurrentPrice:   decimal.NewFromFloat(p.CurrentPrice),
			InstrumentType: types.InstrumentOption,
		})
	}
	return out, nil
}

type orderRequest struct {
	ClientID     string
	OptionSymbol string
	Qty          int64
	Side         types.OrderSide
	Kind         types.OrderKind
	LimitPrice   decimal.Decimal
	TakeProfit   decimal.Decimal
	StopLoss     decimal.Decimal
}

// submitAndConfirm places an order against the options endpoint (never the
// equity endpoint — spec.md §9) and polls until a terminal status is
// reached or cfg.OrderTimeout elapses. On ctx cancellation it attempts to
// cancel the placed order with bounded retries; if cancellation cannot be
// confirmed either, it returns ErrOrderUncertain.
func (a *Adapter) submitAndConfirm(ctx context.Context, req orderRequest) (types.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.OrderTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{
		"client_order_id": req.ClientID,
		"symbol":          req.OptionSymbol,
		"qty":             req.Qty,
		"side":            req.Side,
		"type":            req.Kind,
		"limit_price":     decimalOrNil(req.LimitPrice),
		"take_profit":     decimalOrNil(req.TakeProfit),
		"stop_loss":       decimalOrNil(req.StopLoss),
	})
	if err != nil {
		return types.Order{}, fmt.Errorf("broker: encode order: %w", err)
	}

	httpReq, err := a.newRequest(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/options/orders", payload)
	if err != nil {
		return types.Order{}, err
	}

	order := types.Order{ClientID: req.ClientID, Symbol: req.OptionSymbol, IsOption: true, Side: req.Side, Kind: req.Kind, Qty: req.Qty, LimitPrice: req.LimitPrice, SubmittedAt: time.Now()}

	resp, err := a.do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return a.reconcileUncertain(context.Background(), order)
		}
		return types.Order{}, err
	}
	defer resp.Body.Close()

	var placed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		return types.Order{}, fmt.Errorf("broker: decode order response: %w", err)
	}
	order.ID = placed.ID
	order.Status = statusFromString(placed.Status)

	for !isTerminal(order.Status) {
		select {
		case <-ctx.Done():
			return a.reconcileUncertain(context.Background(), order)
		case <-time.After(a.cfg.OrderPollInterval):
		}
		status, filledQty, filledAvg, err := a.pollStatus(ctx, order.ID)
		if err != nil {
			if ctx.Err() != nil {
				return a.reconcileUncertain(context.Background(), order)
			}
			return types.Order{}, err
		}
		order.Status = status
		order.FilledQty = filledQty
		order.FilledAvg = filledAvg
	}
	order.ResolvedAt = time.Now()
	return order, nil
}

// reconcileUncertain attempts a bounded-retry cancellation of an order
// whose outcome was interrupted by cancellation; if cancellation cannot be
// confirmed, ErrOrderUncertain is returned per spec.md §5/§7.
func (a *Adapter) reconcileUncertain(ctx context.Context, order types.Order) (types.Order, error) {
	cancelCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u := fmt.Sprintf("%s/v2/options/orders/%s/cancel", a.cfg.BaseURL, url.PathEscape(order.ID))
	req, err := a.newRequest(cancelCtx, http.MethodDelete, u, nil)
	if err == nil {
		if resp, doErr := a.do(req); doErr == nil {
			resp.Body.Close()
			order.Status = types.OrderCanceled
			order.ResolvedAt = time.Now()
			return order, nil
		}
	}
	return order, fmt.Errorf("%w: order %s", tradeerr.ErrOrderUncertain, order.ClientID)
}

func (a *Adapter) pollStatus(ctx context.Context, orderID string) (types.OrderStatus, int64, decimal.Decimal, error) {
	var body struct {
		Status    string  `json:"status"`
		FilledQty int64   `json:"filled_qty"`
		FilledAvg float64 `json:"filled_avg_price"`
	}
	u := fmt.Sprintf("%s/v2/options/orders/%s", a.cfg.BaseURL, url.PathEscape(orderID))
	if err := a.getJSON(ctx, u, &body); err != nil {
		return "", 0, decimal.Zero, err
	}
	return statusFromString(body.Status), body.FilledQty, decimal.NewFromFloat(body.FilledAvg), nil
}

func statusFromString(s string) types.OrderStatus {
	switch s {
	case "filled":
		return types.OrderFilled
	case "rejected":
		return types.OrderRejected
	case "canceled", "cancelled":
		return types.OrderCanceled
	default:
		return types.OrderPending
	}
}

func isTerminal(s types.OrderStatus) bool {
	return s == types.OrderFilled || s == types.OrderRejected || s == types.OrderCanceled
}

func (a *Adapter) newRequest(ctx context.Context, method, rawURL string, body []byte) (*retryablehttp.Request, error) {
	var bodyReader interface{}
	if body != nil {
		bodyReader = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("broker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APCA-API-KEY-ID", a.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.cfg.APISecret)
	return req, nil
}

func (a *Adapter) do(req *retryablehttp.Request) (*http.Response, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tradeerr.ErrBrokerTransient, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %s", tradeerr.ErrBrokerPermanent, strconv.Itoa(resp.StatusCode))
	case resp.StatusCode == http.StatusUnprocessableEntity:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: invalid order: status %s", tradeerr.ErrBrokerPermanent, strconv.Itoa(resp.StatusCode))
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %s", tradeerr.ErrBrokerTransient, strconv.Itoa(resp.StatusCode))
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %s", tradeerr.ErrBrokerPermanent, strconv.Itoa(resp.StatusCode))
	}
	return resp, nil
}

func (a *Adapter) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := a.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func decimalOrNil(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	f, _ := d.Float64()
	return f
}
