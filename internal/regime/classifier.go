// Package regime implements the Regime Classifier (spec.md §4.4): a
// deterministic mapping from a symbol's FeatureVector to one of
// {TREND, MEAN_REVERSION, EXPANSION, COMPRESSION}, with confidence and
// directional bias.
package regime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/achavala/tradenova/pkg/types"
)

// Config holds the thresholds the deterministic rules test against.
type Config struct {
	ADXTrendThreshold     float64
	SlopeTrendThreshold   float64
	ATRExpansionPct       float64
	ATRCompressionPct     float64
	ConfidenceNormalizer  float64
	RegimeHistoryCapacity int
}

// DefaultConfig matches spec.md §4.4's stated thresholds: ADX >= 25 for
// TREND, ATR/price > 0.02 for EXPANSION, ATR/price < 0.005 for COMPRESSION.
func DefaultConfig() Config {
	return Config{
		ADXTrendThreshold:     25,
		SlopeTrendThreshold:   0.05,
		ATRExpansionPct:       0.02,
		ATRCompressionPct:     0.005,
		ConfidenceNormalizer:  50,
		RegimeHistoryCapacity: 256,
	}
}

// Classifier is the Regime Classifier. It holds no cross-symbol state
// beyond a bounded per-symbol history kept for IsTransition, and is safe
// for concurrent use.
type Classifier struct {
	logger *zap.Logger
	cfg    Config

	mu      sync.RWMutex
	history map[string][]types.Regime
}

// New constructs a Classifier.
func New(logger *zap.Logger, cfg Config) *Classifier {
	return &Classifier{logger: logger.Named("regime"), cfg: cfg, history: make(map[string][]types.Regime)}
}

// Classify maps fv to a Regime using the deterministic rules in spec.md
// §4.4: TREND if ADX>=threshold and |slope| exceeds threshold; EXPANSION
// if ATR/price exceeds the expansion ratio; COMPRESSION if ATR/price is
// below the compression ratio; otherwise MEAN_REVERSION.
func (c *Classifier) Classify(fv types.FeatureVector) types.Regime {
	atrRatio := 0.0
	if fv.LastPrice != 0 {
		atrRatio = fv.ATR14 / fv.LastPrice
	}

	var kind types.RegimeKind
	switch {
	case fv.ADX14 >= c.cfg.ADXTrendThreshold && absf(fv.Slope) >= c.cfg.SlopeTrendThreshold:
		kind = types.RegimeTrend
	case atrRatio > c.cfg.ATRExpansionPct:
		kind = types.RegimeExpansion
	case atrRatio < c.cfg.ATRCompressionPct:
		kind = types.RegimeCompression
	default:
		kind = types.RegimeMeanReversion
	}

	direction := directionFromSlope(fv.Slope)
	bias := biasFrom(fv)
	volatility := volatilityFrom(atrRatio, c.cfg)
	confidence := c.confidenceFor(kind, fv, atrRatio)

	r := types.Regime{
		Symbol:     fv.Symbol,
		Kind:       kind,
		Direction:  direction,
		Volatility: volatility,
		Bias:       bias,
		Confidence: confidence,
	}

	c.record(fv.Symbol, r)
	return r
}

func (c *Classifier) confidenceFor(kind types.RegimeKind, fv types.FeatureVector, atrRatio float64) float64 {
	var strength float64
	switch kind {
	case types.RegimeTrend:
		strength = fv.ADX14
	case types.RegimeExpansion:
		strength = atrRatio * 1000
	case types.RegimeCompression:
		strength = (c.cfg.ATRCompressionPct - atrRatio) * 1000
	default:
		strength = absf(50 - fv.RSI14)
	}
	conf := strength / c.cfg.ConfidenceNormalizer
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func directionFromSlope(slope float64) types.Direction {
	switch {
	case slope > 0:
		return types.DirectionUp
	case slope < 0:
		return types.DirectionDown
	default:
		return types.DirectionSideways
	}
}

func biasFrom(fv types.FeatureVector) types.Bias {
	switch {
	case fv.Slope > 0 && fv.EMA9 > fv.EMA21:
		return types.BiasBullish
	case fv.Slope < 0 && fv.EMA9 < fv.EMA21:
		return types.BiasBearish
	default:
		return types.BiasNeutral
	}
}

func volatilityFrom(atrRatio float64, cfg Config) types.VolatilityLevel {
	switch {
	case atrRatio > cfg.ATRExpansionPct:
		return types.VolatilityHigh
	case atrRatio < cfg.ATRCompressionPct:
		return types.VolatilityLow
	default:
		return types.VolatilityMedium
	}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (c *Classifier) record(symbol string, r types.Regime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.history[symbol], r)
	if len(h) > c.cfg.RegimeHistoryCapacity {
		h = h[len(h)-c.cfg.RegimeHistoryCapacity:]
	}
	c.history[symbol] = h
}

// IsTransition reports whether the most recent two recorded regimes for
// symbol differ in Kind.
func (c *Classifier) IsTransition(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.history[symbol]
	if len(h) < 2 {
		return false
	}
	return h[len(h)-1].Kind != h[len(h)-2].Kind
}

// LastN returns a copy of the most recent n recorded regimes for symbol,
// oldest first.
func (c *Classifier) LastN(symbol string, n int) []types.Regime {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.history[symbol]
	if len(h) <= n {
		out := make([]types.Regime, len(h))
		copy(out, h)
		return out
	}
	out := make([]types.Regime, n)
	copy(out, h[len(h)-n:])
	return out
}
