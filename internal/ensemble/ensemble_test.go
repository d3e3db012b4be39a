package ensemble

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/achavala/tradenova/internal/rl"
	"github.com/achavala/tradenova/pkg/types"
)

func TestArbitrateIgnoresFlatIntents(t *testing.T) {
	intents := []types.Intent{{AgentID: "ema", Direction: types.SignalFlat, Confidence: 0.9}}
	_, ok := Arbitrate(intents, nil, types.Regime{Confidence: 1})
	require.False(t, ok)
}

func TestArbitratePicksHighestScoringIntent(t *testing.T) {
	intents := []types.Intent{
		{AgentID: "ema", Direction: types.SignalLong, Confidence: 0.5},
		{AgentID: "trend", Direction: types.SignalShort, Confidence: 0.9},
	}
	weights := map[string]float64{"ema": 1.0, "trend": 1.0}
	result, ok := Arbitrate(intents, weights, types.Regime{Confidence: 1})
	require.True(t, ok)
	require.Equal(t, "trend", result.Winner.AgentID)
}

func TestArbitrateBlendsWhenTopTwoAreClose(t *testing.T) {
	intents := []types.Intent{
		{AgentID: "ema", Direction: types.SignalLong, Confidence: 0.80},
		{AgentID: "trend", Direction: types.SignalLong, Confidence: 0.79},
	}
	weights := map[string]float64{"ema": 1.0, "trend": 1.0}
	result, ok := Arbitrate(intents, weights, types.Regime{Confidence: 1})
	require.True(t, ok)
	require.True(t, result.WasBlended)
}

func TestArbitrateAppliesVolatilityBonus(t *testing.T) {
	intents := []types.Intent{{AgentID: "ema", Direction: types.SignalLong, Confidence: 0.5}}
	weights := map[string]float64{"ema": 1.0}
	resultHigh, _ := Arbitrate(intents, weights, types.Regime{Confidence: 1, Volatility: types.VolatilityHigh})
	resultNone, _ := Arbitrate(intents, weights, types.Regime{Confidence: 1, Volatility: types.VolatilityLow})
	require.Greater(t, resultHigh.TopScore, resultNone.TopScore)
}

func TestBlendPassesThroughWhenRLHasNothingToSay(t *testing.T) {
	winner := types.Intent{AgentID: "ema", Direction: types.SignalLong, Confidence: 0.7}
	blended := Blend(winner, rl.Prediction{}, false)
	require.Equal(t, winner, blended)
}

func TestBlendAmplifiesOnAgreement(t *testing.T) {
	winner := types.Intent{AgentID: "trend", Direction: types.SignalLong, Confidence: 0.7}
	pred := rl.Prediction{Direction: types.SignalLong, Confidence: 0.8}
	blended := Blend(winner, pred, true)
	require.Equal(t, types.SignalLong, blended.Direction)
	require.InDelta(t, 0.88, blended.Confidence, 1e-9) // max(0.7, 0.8) * 1.10
}

func TestBlendCanFlipDirectionOnStrongDisagreement(t *testing.T) {
	winner := types.Intent{AgentID: "trend", Direction: types.SignalLong, Confidence: 0.1}
	pred := rl.Prediction{Direction: types.SignalShort, Confidence: 0.95}
	blended := Blend(winner, pred, true)
	require.Equal(t, types.SignalShort, blended.Direction)
}
