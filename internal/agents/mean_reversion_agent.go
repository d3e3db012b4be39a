package agents

import (
	"math"

	"github.com/achavala/tradenova/pkg/types"
)

// MeanReversionAgent only speaks in the MEAN_REVERSION regime: RSI extremes
// combined with a VWAP deviation and an unfilled fair value gap.
type MeanReversionAgent struct {
	weight *WeightTracker
}

// NewMeanReversionAgent constructs the mean-reversion agent.
func NewMeanReversionAgent() *MeanReversionAgent {
	return &MeanReversionAgent{weight: NewWeightTracker(1.0, 0.2, 2.0, 0.05)}
}

func (a *MeanReversionAgent) ID() string { return "mean_reversion" }

func (a *MeanReversionAgent) Evaluate(fv types.FeatureVector, regime types.Regime, bars []types.Bar) (types.Intent, bool) {
	if regime.Kind != types.RegimeMeanReversion {
		return types.Intent{}, false
	}

	vwapDeviation := 0.0
	if fv.VWAP != 0 {
		vwapDeviation = (fv.LastPrice - fv.VWAP) / fv.VWAP
	}

	var dir types.SignalDirection
	switch {
	case fv.RSI14 <= 30 && vwapDeviation < 0 && fv.FVGUnfilled && fv.FVGBullish:
		dir = types.SignalLong
	case fv.RSI14 >= 70 && vwapDeviation > 0 && fv.FVGUnfilled && fv.FVGBearish:
		dir = types.SignalShort
	default:
		return types.Intent{}, false
	}

	rsiExtreme := math.Min(math.Abs(fv.RSI14-50)/20, 1)
	confidence := 0.6 + math.Min(rsiExtreme*0.3+math.Min(math.Abs(vwapDeviation)*10, 0.1), 0.4)

	return types.Intent{
		Symbol:     fv.Symbol,
		Direction:  dir,
		Confidence: confidence,
		AgentID:    a.ID(),
		Reasoning:  "RSI extreme with VWAP deviation and unfilled FVG",
	}, true
}

func (a *MeanReversionAgent) Weight() float64  { return a.weight.Weight() }
func (a *MeanReversionAgent) Observe(win bool) { a.weight.Observe(win) }
