package agents

import (
	"math"

	"github.com/achavala/tradenova/pkg/types"
)

// VolatilityAgent only speaks in the EXPANSION regime: the direction of an
// ATR-spike-confirmed move, with a spec-mandated confidence floor of 0.7.
type VolatilityAgent struct {
	weight *WeightTracker
}

// NewVolatilityAgent constructs the volatility-breakout agent.
func NewVolatilityAgent() *VolatilityAgent {
	return &VolatilityAgent{weight: NewWeightTracker(1.0, 0.2, 2.0, 0.05)}
}

func (a *VolatilityAgent) ID() string { return "volatility" }

func (a *VolatilityAgent) Evaluate(fv types.FeatureVector, regime types.Regime, bars []types.Bar) (types.Intent, bool) {
	if regime.Kind != types.RegimeExpansion {
		return types.Intent{}, false
	}
	if len(bars) < 2 {
		return types.Intent{}, false
	}

	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	move := last.Close.Sub(prev.Close).InexactFloat64()
	if move == 0 {
		return types.Intent{}, false
	}

	var dir types.SignalDirection
	if move > 0 {
		dir = types.SignalLong
	} else {
		dir = types.SignalShort
	}

	atrRatio := 0.0
	if fv.LastPrice != 0 {
		atrRatio = fv.ATR14 / fv.LastPrice
	}
	// atrRatio > 0.02 is the EXPANSION threshold itself; scale the excess
	// above that floor into the confidence band, never below the spec's
	// 0.7 minimum.
	excess := math.Max(atrRatio-0.02, 0)
	confidence := math.Max(0.7, math.Min(0.7+excess*10, 1.0))

	return types.Intent{
		Symbol:     fv.Symbol,
		Direction:  dir,
		Confidence: confidence,
		AgentID:    a.ID(),
		Reasoning:  "ATR-spike-confirmed directional move",
	}, true
}

func (a *VolatilityAgent) Weight() float64  { return a.weight.Weight() }
func (a *VolatilityAgent) Observe(win bool) { a.weight.Observe(win) }
