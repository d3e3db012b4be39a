package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/pkg/types"
)

// HTTPSourceConfig configures an HTTPSource against a single vendor
// endpoint, grounded on the same retryablehttp.Client shape the rest of
// the pack uses for an options/market-data REST vendor.
type HTTPSourceConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	RetryMax   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultHTTPSourceConfig returns retry settings matching the Data
// Adapter's stated fetch deadline (10s) with headroom for exponential
// backoff.
func DefaultHTTPSourceConfig(name, baseURL, apiKey string) HTTPSourceConfig {
	return HTTPSourceConfig{
		Name:         name,
		BaseURL:      baseURL,
		APIKey:       apiKey,
		RetryMax:     3,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// HTTPSource is a vendor-backed Source implementation over a REST market
// data/options API, using retryablehttp's default exponential backoff
// (no jitter) on 5xx/timeout responses.
type HTTPSource struct {
	cfg    HTTPSourceConfig
	client *retryablehttp.Client
	logger *zap.Logger
}

// NewHTTPSource constructs an HTTPSource. The underlying retryablehttp
// client logs through a silent adapter; callers observe failures via the
// returned errors instead.
func NewHTTPSource(logger *zap.Logger, cfg HTTPSourceConfig) *HTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.Logger = nil
	client.CheckRetry = retryablehttp.DefaultRetryPolicy
	return &HTTPSource{cfg: cfg, client: client, logger: logger.Named("marketdata.http").With(zap.String("vendor", cfg.Name))}
}

// Name returns the vendor name for logging/diagnostics.
func (s *HTTPSource) Name() string { return s.cfg.Name }

type barsResponse struct {
	Results []struct {
		Timestamp int64   `json:"t"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		VWAP      float64 `json:"vw"`
	} `json:"results"`
}

// GetBars fetches OHLCV bars over [start, end] at the requested timeframe.
func (s *HTTPSource) GetBars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	u := fmt.Sprintf("%s/v1/bars/%s?timeframe=%s&start=%s&end=%s&apiKey=%s",
		s.cfg.BaseURL, url.PathEscape(symbol), url.QueryEscape(string(tf)),
		url.QueryEscape(start.Format(time.RFC3339)), url.QueryEscape(end.Format(time.RFC3339)), s.cfg.APIKey)

	var body barsResponse
	if err := s.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}

	bars := make([]types.Bar, 0, len(body.Results))
	for _, r := range body.Results {
		bars = append(bars, types.Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			Volume:    decimal.NewFromFloat(r.Volume),
			VWAP:      decimal.NewFromFloat(r.VWAP),
		})
	}
	return bars, nil
}

type chainResponse struct {
	Results []struct {
		Ticker       string  `json:"ticker"`
		Strike       float64 `json:"strike"`
		Expiration   string  `json:"expiration"`
		OptionType   string  `json:"option_type"`
		Bid          float64 `json:"bid"`
		Ask          float64 `json:"ask"`
		Last         float64 `json:"last"`
		Volume       int64   `json:"volume"`
		OpenInterest int64   `json:"open_interest"`
		IV           float64 `json:"implied_volatility"`
		BidSize      int64   `json:"bid_size"`
		QuoteAgeMS   int64   `json:"quote_age_ms"`
		Greeks       struct {
			Delta float64 `json:"delta"`
			Gamma float64 `json:"gamma"`
			Theta float64 `json:"theta"`
			Vega  float64 `json:"vega"`
		} `json:"greeks"`
	} `json:"results"`
}

// GetChain fetches the options chain for an underlying, optionally
// constrained to a single expiration.
func (s *HTTPSource) GetChain(ctx context.Context, symbol string, expiration *time.Time) ([]types.OptionContract, error) {
	u := fmt.Sprintf("%s/v1/chain/%s?apiKey=%s", s.cfg.BaseURL, url.PathEscape(symbol), s.cfg.APIKey)
	if expiration != nil {
		u += "&expiration=" + url.QueryEscape(expiration.Format("2006-01-02"))
	}

	var body chainResponse
	if err := s.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}

	out := make([]types.OptionContract, 0, len(body.Results))
	for _, r := range body.Results {
		exp, err := time.Parse("2006-01-02", r.Expiration)
		if err != nil {
			continue
		}
		optType := types.OptionCall
		if r.OptionType == "put" || r.OptionType == "P" {
			optType = types.OptionPut
		}
		out = append(out, types.OptionContract{
			OptionSymbol: r.Ticker,
			Underlying:   symbol,
			Strike:       decimal.NewFromFloat(r.Strike),
			Expiration:   exp,
			OptionType:   optType,
			Bid:          decimal.NewFromFloat(r.Bid),
			Ask:          decimal.NewFromFloat(r.Ask),
			Last:         decimal.NewFromFloat(r.Last),
			Volume:       r.Volume,
			OpenInterest: r.OpenInterest,
			ImpliedVol:   decimal.NewFromFloat(r.IV),
			BidSize:      r.BidSize,
			QuoteAge:     time.Duration(r.QuoteAgeMS) * time.Millisecond,
			Greeks: types.Greeks{
				Delta: decimal.NewFromFloat(r.Greeks.Delta),
				Gamma: decimal.NewFromFloat(r.Greeks.Gamma),
				Theta: decimal.NewFromFloat(r.Greeks.Theta),
				Vega:  decimal.NewFromFloat(r.Greeks.Vega),
			},
		})
	}
	return out, nil
}

// GetQuote fetches a single fresh quote by option symbol.
func (s *HTTPSource) GetQuote(ctx context.Context, optionSymbol string) (types.OptionContract, error) {
	underlying, _, _, _, err := types.DecodeOptionSymbol(optionSymbol)
	if err != nil {
		underlying = optionSymbol
	}
	chain, err := s.GetChain(ctx, underlying, nil)
	if err != nil {
		return types.OptionContract{}, err
	}
	for _, c := range chain {
		if c.OptionSymbol == optionSymbol {
			return c, nil
		}
	}
	return types.OptionContract{}, fmt.Errorf("marketdata: quote not found for %s", optionSymbol)
}

func (s *HTTPSource) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("marketdata: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("marketdata: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("marketdata: unexpected status %s", strconv.Itoa(resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
