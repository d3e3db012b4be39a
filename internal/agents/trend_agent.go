package agents

import (
	"math"

	"github.com/achavala/tradenova/pkg/types"
)

// TrendAgent only speaks in the TREND regime: a golden/death cross of
// EMA9/EMA21 confirmed by ADX>25 and the bar's position relative to VWAP.
type TrendAgent struct {
	weight *WeightTracker
}

// NewTrendAgent constructs the trend-following agent.
func NewTrendAgent() *TrendAgent {
	return &TrendAgent{weight: NewWeightTracker(1.0, 0.2, 2.0, 0.05)}
}

func (a *TrendAgent) ID() string { return "trend" }

func (a *TrendAgent) Evaluate(fv types.FeatureVector, regime types.Regime, bars []types.Bar) (types.Intent, bool) {
	if regime.Kind != types.RegimeTrend {
		return types.Intent{}, false
	}
	if fv.ADX14 <= 25 {
		return types.Intent{}, false
	}

	goldenCross := fv.EMA9 > fv.EMA21 && fv.LastPrice > fv.VWAP
	deathCross := fv.EMA9 < fv.EMA21 && fv.LastPrice < fv.VWAP

	var dir types.SignalDirection
	switch {
	case goldenCross:
		dir = types.SignalLong
	case deathCross:
		dir = types.SignalShort
	default:
		return types.Intent{}, false
	}

	// Confidence scales with ADX strength above threshold and the EMA
	// separation, clamped to the spec's 0.6-1.0 band.
	adxStrength := math.Min((fv.ADX14-25)/25, 1)
	emaGap := 0.0
	if fv.EMA21 != 0 {
		emaGap = math.Abs(fv.EMA9-fv.EMA21) / fv.EMA21
	}
	confidence := 0.6 + math.Min(adxStrength*0.6+emaGap*10, 0.4)

	return types.Intent{
		Symbol:     fv.Symbol,
		Direction:  dir,
		Confidence: confidence,
		AgentID:    a.ID(),
		Reasoning:  "EMA9/EMA21 cross confirmed by ADX and VWAP position",
	}, true
}

func (a *TrendAgent) Weight() float64  { return a.weight.Weight() }
func (a *TrendAgent) Observe(win bool) { a.weight.Observe(win) }
