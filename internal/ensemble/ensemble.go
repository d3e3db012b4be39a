// Package ensemble implements the Meta-Policy/Ensemble (spec.md §4.7): a
// two-stage fusion of the Agent Set's intents with the optional RL
// Predictor's output into a single candidate Signal per symbol per cycle.
package ensemble

import (
	"math"

	"github.com/achavala/tradenova/internal/agents"
	"github.com/achavala/tradenova/internal/rl"
	"github.com/achavala/tradenova/pkg/types"
)

// rlBlendWeights are the fixed weights spec.md §4.7 names for stage 2. Any
// winning agent not named here (EMAAgent, OptionsAgent) is treated as the
// MeanReversionAgent's weight: its own arbitration weight already shaped
// which intent won stage 1, so the blend stage only needs a reasonable
// default rather than a sixth named bucket.
var rlBlendWeights = map[string]float64{
	"rl":             0.40,
	"trend":          0.25,
	"volatility":     0.15,
	"mean_reversion": 0.20,
}

const defaultAgentBlendWeight = 0.20

// Arbitrated is stage 1's output: the winning (possibly blended) intent
// plus the top and runner-up scores, kept for observability.
type Arbitrated struct {
	Winner     types.Intent
	TopScore   float64
	RunnerUp   float64
	WasBlended bool
}

// volatilityBonus maps a Regime's qualitative volatility into the
// multiplicative bonus spec.md §4.7 applies during arbitration scoring.
func volatilityBonus(v types.VolatilityLevel) float64 {
	switch v {
	case types.VolatilityHigh:
		return 0.10
	case types.VolatilityMedium:
		return 0.05
	default:
		return 0
	}
}

// Arbitrate scores every non-FLAT intent as
// weight_agent * regime_confidence * (1+volatility_bonus) * intent_confidence
// and picks the highest. If the top two scores are within 10% of each
// other, it emits a blended intent: mean confidence, top agent's direction.
func Arbitrate(intents []types.Intent, weights map[string]float64, regime types.Regime) (Arbitrated, bool) {
	type scored struct {
		intent types.Intent
		score  float64
	}
	var candidates []scored
	bonus := 1 + volatilityBonus(regime.Volatility)

	for _, in := range intents {
		if in.Direction == types.SignalFlat {
			continue
		}
		w := weights[in.AgentID]
		if w == 0 {
			w = 1.0
		}
		score := w * regime.Confidence * bonus * in.Confidence
		candidates = append(candidates, scored{intent: in, score: score})
	}
	if len(candidates) == 0 {
		return Arbitrated{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}

	runnerUp := 0.0
	for _, c := range candidates {
		if c.intent.AgentID == best.intent.AgentID {
			continue
		}
		if c.score > runnerUp {
			runnerUp = c.score
		}
	}

	result := Arbitrated{Winner: best.intent, TopScore: best.score, RunnerUp: runnerUp}
	if best.score > 0 && runnerUp > 0 && (best.score-runnerUp)/best.score <= 0.10 {
		var sumConf float64
		var count int
		for _, c := range candidates {
			sumConf += c.intent.Confidence
			count++
		}
		blended := best.intent
		blended.Confidence = sumConf / float64(count)
		blended.Reasoning = "blended: top-two agents within 10%"
		result.Winner = blended
		result.WasBlended = true
	}
	return result, true
}

// Blend fuses stage 1's winning intent with the RL Predictor's smoothed
// output using the fixed weights above. If rlOK is false (the model had
// nothing to say), the stage 1 winner passes through unchanged.
func Blend(winner types.Intent, rlPred rl.Prediction, rlOK bool) types.Intent {
	if !rlOK || rlPred.Direction == types.SignalFlat {
		return winner
	}

	agentWeight := rlBlendWeights[winner.AgentID]
	if agentWeight == 0 {
		agentWeight = defaultAgentBlendWeight
	}
	rlWeight := rlBlendWeights["rl"]

	agentTerm := agentWeight * winner.Confidence
	rlTerm := rlWeight * rlPred.Confidence
	totalWeight := agentWeight + rlWeight

	blendedConf := (agentTerm + rlTerm) / totalWeight

	direction := winner.Direction
	if winner.Direction == rlPred.Direction {
		// Agreement boost is anchored to the stronger of the two inputs,
		// not the weighted mean, so the blended confidence never falls
		// below max(inputs) * 1.10.
		blendedConf = math.Max(winner.Confidence, rlPred.Confidence) * 1.10
	} else {
		blendedConf *= 0.80
		if rlTerm > agentTerm {
			direction = rlPred.Direction
		}
	}
	blendedConf = math.Max(0, math.Min(1, blendedConf))

	return types.Intent{
		Symbol:     winner.Symbol,
		Direction:  direction,
		Confidence: blendedConf,
		AgentID:    winner.AgentID,
		Reasoning:  winner.Reasoning + "; blended with RL predictor",
	}
}

// WeightsFromProducers snapshots the current arbitration weight of every
// SignalProducer in the Agent Set, keyed by agent ID, for Arbitrate.
func WeightsFromProducers(producers []agents.SignalProducer) map[string]float64 {
	w := make(map[string]float64, len(producers))
	for _, p := range producers {
		w[p.ID()] = p.Weight()
	}
	return w
}
