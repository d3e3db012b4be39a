// Package types defines the shared domain model for the TradeNova control
// loop: bars, features, regimes, signals, option contracts, positions and
// portfolio Greeks. All monetary and strike-level quantities use
// decimal.Decimal; derived statistical scores remain float64.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is the bar granularity requested from the Data Adapter.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe15Min Timeframe = "15m"
	Timeframe1Hour Timeframe = "1h"
	Timeframe1Day  Timeframe = "1d"
)

// Bar is one OHLCV sample. Sequences are immutable within a cycle and
// ordered by Timestamp ascending.
type Bar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	VWAP      decimal.Decimal `json:"vwap"`
}

// FeatureVector is the fixed-arity output of the Feature Engine. All fields
// must be finite; the engine returns ErrInsufficientFeatures rather than
// produce a vector with a NaN or Inf field.
type FeatureVector struct {
	Symbol      string    `json:"symbol"`
	AsOf        time.Time `json:"as_of"`
	EMA9        float64   `json:"ema9"`
	EMA21       float64   `json:"ema21"`
	SMA20       float64   `json:"sma20"`
	RSI14       float64   `json:"rsi14"`
	ATR14       float64   `json:"atr14"`
	ADX14       float64   `json:"adx14"`
	VWAP        float64   `json:"vwap"`
	Hurst       float64   `json:"hurst"`
	Slope       float64   `json:"slope"`
	RSquared    float64   `json:"r_squared"`
	RealizedVol float64   `json:"realized_vol"`
	FVGBullish  bool      `json:"fvg_bullish"`
	FVGBearish  bool      `json:"fvg_bearish"`
	FVGUnfilled bool      `json:"fvg_unfilled"`
	LastPrice   float64   `json:"last_price"`
}

// RegimeKind is the qualitative market-state classification.
type RegimeKind string

const (
	RegimeTrend         RegimeKind = "TREND"
	RegimeMeanReversion RegimeKind = "MEAN_REVERSION"
	RegimeExpansion     RegimeKind = "EXPANSION"
	RegimeCompression   RegimeKind = "COMPRESSION"
)

// Direction is a qualitative price direction.
type Direction string

const (
	DirectionUp       Direction = "UP"
	DirectionDown     Direction = "DOWN"
	DirectionSideways Direction = "SIDEWAYS"
)

// Bias is a qualitative directional lean.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// VolatilityLevel buckets realized/implied volatility.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "LOW"
	VolatilityMedium VolatilityLevel = "MEDIUM"
	VolatilityHigh   VolatilityLevel = "HIGH"
)

// Regime is the Regime Classifier's output for one symbol in one cycle.
type Regime struct {
	Symbol     string          `json:"symbol"`
	Kind       RegimeKind      `json:"kind"`
	Direction  Direction       `json:"direction"`
	Volatility VolatilityLevel `json:"volatility"`
	Bias       Bias            `json:"bias"`
	Confidence float64         `json:"confidence"`
}

// SignalDirection is the trade direction an agent or the ensemble proposes.
type SignalDirection string

const (
	SignalLong  SignalDirection = "LONG"
	SignalShort SignalDirection = "SHORT"
	SignalFlat  SignalDirection = "FLAT"
)

// Intent is a single agent's candidate trade before ensemble arbitration.
// A FLAT intent's Confidence carries no meaning and must be ignored by
// callers.
type Intent struct {
	Symbol     string          `json:"symbol"`
	Direction  SignalDirection `json:"direction"`
	Confidence float64         `json:"confidence"`
	AgentID    string          `json:"agent_id"`
	Reasoning  string          `json:"reasoning"`
}

// Signal is the ensemble's single candidate action for a symbol in a cycle.
type Signal struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  SignalDirection `json:"direction"`
	Confidence float64         `json:"confidence"`
	AgentID    string          `json:"agent_id"`
	Reasoning  string          `json:"reasoning"`
	Timestamp  time.Time       `json:"timestamp"`
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Greeks are the per-contract sensitivities, unscaled by the 100x option
// multiplier.
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
}

// OptionContract is one entry from a vendor options chain, already
// normalized: any vendor "O:" ticker prefix has been stripped by the Data
// Adapter before this struct is constructed.
type OptionContract struct {
	OptionSymbol string          `json:"option_symbol"`
	Underlying   string          `json:"underlying"`
	Strike       decimal.Decimal `json:"strike"`
	Expiration   time.Time       `json:"expiration"`
	OptionType   OptionType      `json:"option_type"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	ImpliedVol   decimal.Decimal `json:"implied_volatility"`
	Greeks       Greeks          `json:"greeks"`
	QuoteAge     time.Duration   `json:"quote_age"`
	BidSize      int64           `json:"bid_size"`
}

// Mid returns the midpoint of bid/ask.
func (c OptionContract) Mid() decimal.Decimal {
	return c.Bid.Add(c.Ask).Div(decimal.NewFromInt(2))
}

// DTE returns days-to-expiration relative to asOf, floored at zero.
func (c OptionContract) DTE(asOf time.Time) int {
	d := int(c.Expiration.Sub(asOf).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// LiquidityStamp records which of the four liquidity predicates a contract
// passed. A contract is tradable iff all four are true.
type LiquidityStamp struct {
	PassesBid       bool `json:"passes_bid"`
	PassesSpreadPct bool `json:"passes_spread_pct"`
	PassesSize      bool `json:"passes_size"`
	PassesAge       bool `json:"passes_age"`
}

// Tradable reports whether every liquidity predicate passed.
func (l LiquidityStamp) Tradable() bool {
	return l.PassesBid && l.PassesSpreadPct && l.PassesSize && l.PassesAge
}

// PositionSide is always LONG: the core opens only long option positions.
type PositionSide string

const (
	PositionLong PositionSide = "LONG"
)

// InstrumentType distinguishes the (legacy, unused) equity path from the
// option path the core actually trades.
type InstrumentType string

const (
	InstrumentOption InstrumentType = "OPTION"
)

// Position is one open option position tracked by the Portfolio/Position
// Manager. At most one Position may exist per Underlying at any time.
type Position struct {
	OptionSymbol     string          `json:"option_symbol"`
	Underlying       string          `json:"underlying"`
	Qty              int64           `json:"qty"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	EntryTime        time.Time       `json:"entry_time"`
	Side             PositionSide    `json:"side"`
	Strike           decimal.Decimal `json:"strike"`
	Expiration       time.Time       `json:"expiration"`
	OptionType       OptionType      `json:"option_type"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	HighestProfitPct decimal.Decimal `json:"highest_profit_pct"`
	TPLevelReached   int             `json:"tp_level_reached"`
	TrailingArmed    bool            `json:"trailing_armed"`
	StopPrice        decimal.Decimal `json:"stop_price"`
	InstrumentType   InstrumentType  `json:"instrument_type"`
	Greeks           Greeks          `json:"greeks"` // per-contract, unscaled; see PortfolioGreeks for the aggregated, scaled view
}

// PnLPct returns (current - entry) / entry.
func (p Position) PnLPct() decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
}

// DTE returns days-to-expiration relative to asOf.
func (p Position) DTE(asOf time.Time) int {
	d := int(p.Expiration.Sub(asOf).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// PortfolioGreeks aggregates Greeks across all open positions, scaled by the
// per-contract 100x multiplier and position quantity.
type PortfolioGreeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
}

// RiskLevel is the severity of a Risk Stack decision.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "SAFE"
	RiskWarning RiskLevel = "WARNING"
	RiskDanger  RiskLevel = "DANGER"
	RiskBlocked RiskLevel = "BLOCKED"
)

// RiskDecision is one layer's (or the stack's final) verdict.
type RiskDecision struct {
	Allowed         bool             `json:"allowed"`
	Reason          string           `json:"reason"`
	Level           RiskLevel        `json:"level"`
	Layer           string           `json:"layer,omitempty"`
	ProjectedGreeks *PortfolioGreeks `json:"projected_greeks,omitempty"`
	CurrentGreeks   *PortfolioGreeks `json:"current_greeks,omitempty"`
	SizeMultiplier  decimal.Decimal  `json:"size_multiplier"`
}

// Account is the Broker Adapter's reported account state.
type Account struct {
	Equity      decimal.Decimal `json:"equity"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	MarketOpen  bool            `json:"market_open"`
}

// OrderSide is the submitted trade direction for a broker order.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// OrderKind is the order type the Broker Adapter can submit.
type OrderKind string

const (
	OrderMarket  OrderKind = "MARKET"
	OrderLimit   OrderKind = "LIMIT"
	OrderBracket OrderKind = "BRACKET"
)

// OrderStatus is the terminal or in-flight state of a submitted order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
	OrderCanceled OrderStatus = "CANCELED"
)

// Order is the result of a broker order submission.
type Order struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	Symbol      string          `json:"symbol"`
	IsOption    bool            `json:"is_option"`
	Side        OrderSide       `json:"side"`
	Kind        OrderKind       `json:"kind"`
	Qty         int64           `json:"qty"`
	LimitPrice  decimal.Decimal `json:"limit_price,omitempty"`
	Status      OrderStatus     `json:"status"`
	FilledQty   int64           `json:"filled_qty"`
	FilledAvg   decimal.Decimal `json:"filled_avg_price,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	ResolvedAt  time.Time       `json:"resolved_at,omitempty"`
}

// EndOfDaySnapshot is the external-collaborator-facing daily report shape
// (§6 "End-of-day snapshot"). TradeNova constructs this value; persisting
// or rendering it is explicitly out of scope.
type EndOfDaySnapshot struct {
	Date           time.Time                  `json:"date"`
	Equity         decimal.Decimal            `json:"equity"`
	RealizedPnL    decimal.Decimal            `json:"realized_pnl"`
	TradesOpened   int                        `json:"trades_opened"`
	TradesClosed   int                        `json:"trades_closed"`
	WinRate        decimal.Decimal            `json:"win_rate"`
	MaxDrawdown    decimal.Decimal            `json:"max_drawdown"`
	PerAgentAttrib map[string]decimal.Decimal `json:"per_agent_attribution"`
}

// SessionState is the persisted-between-sessions shape (§6 "Persisted
// state between sessions"). TradeNova produces and consumes this value;
// the storage medium is an external collaborator.
type SessionState struct {
	OpenPositions []Position      `json:"open_positions"`
	PeakBalance   decimal.Decimal `json:"peak_balance"`
	LossStreak    int             `json:"loss_streak"`
	DailyTrades   int             `json:"daily_trades"`
	DailyResetAt  time.Time       `json:"daily_reset_at"`
}
