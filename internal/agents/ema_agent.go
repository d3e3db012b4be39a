package agents

import (
	"math"

	"github.com/achavala/tradenova/pkg/types"
)

// EMAAgent is always active: LONG if price > EMA9, SHORT if price < EMA9,
// confidence 0.6-0.8 scaled by the gap.
type EMAAgent struct {
	weight *WeightTracker
}

// NewEMAAgent constructs the EMA agent with a neutral starting weight.
func NewEMAAgent() *EMAAgent {
	return &EMAAgent{weight: NewWeightTracker(1.0, 0.2, 2.0, 0.05)}
}

func (a *EMAAgent) ID() string { return "ema" }

func (a *EMAAgent) Evaluate(fv types.FeatureVector, regime types.Regime, bars []types.Bar) (types.Intent, bool) {
	if fv.EMA9 == 0 {
		return types.Intent{}, false
	}
	gapPct := math.Abs(fv.LastPrice-fv.EMA9) / fv.EMA9
	confidence := 0.6 + math.Min(gapPct*10, 1)*0.2

	var dir types.SignalDirection
	switch {
	case fv.LastPrice > fv.EMA9:
		dir = types.SignalLong
	case fv.LastPrice < fv.EMA9:
		dir = types.SignalShort
	default:
		return types.Intent{}, false
	}

	return types.Intent{
		Symbol:     fv.Symbol,
		Direction:  dir,
		Confidence: confidence,
		AgentID:    a.ID(),
		Reasoning:  "price vs EMA9 crossover",
	}, true
}

func (a *EMAAgent) Weight() float64        { return a.weight.Weight() }
func (a *EMAAgent) Observe(win bool)       { a.weight.Observe(win) }
