package agents

import (
	"math"
	"sync"

	"github.com/achavala/tradenova/pkg/types"
)

// OptionsAgent speaks in any regime with a non-NEUTRAL bias. Spec.md §4.5
// gates it on IV_rank<80 and |delta|>=0.30, both properties of the options
// chain rather than of bars/features. Since the SignalProducer contract
// (spec.md §9) only hands agents features/regime/bars, this agent
// approximates both from realized-volatility history: a rolling IV-rank
// proxy from RealizedVol, and a delta proxy from normalized distance to
// EMA9 (closer to ATM ~ larger delta magnitude for the preferred strike).
// The Option Selector and Risk Stack's IV Regime Filter apply the
// authoritative chain-based checks downstream; this agent only decides
// whether to speak at all.
type OptionsAgent struct {
	weight *WeightTracker

	mu      sync.Mutex
	history map[string][]float64
}

// NewOptionsAgent constructs the options-context agent.
func NewOptionsAgent() *OptionsAgent {
	return &OptionsAgent{
		weight:  NewWeightTracker(1.0, 0.2, 2.0, 0.05),
		history: make(map[string][]float64),
	}
}

func (a *OptionsAgent) ID() string { return "options" }

const ivRankHistoryCap = 120

func (a *OptionsAgent) Evaluate(fv types.FeatureVector, regime types.Regime, bars []types.Bar) (types.Intent, bool) {
	if regime.Bias == types.BiasNeutral {
		return types.Intent{}, false
	}

	ivRank := a.ivRankProxy(fv.Symbol, fv.RealizedVol)
	if ivRank >= 80 {
		return types.Intent{}, false
	}

	deltaProxy := 0.0
	if fv.EMA9 != 0 {
		deltaProxy = math.Min(math.Abs(fv.LastPrice-fv.EMA9)/fv.EMA9*20, 1)
	}
	if deltaProxy < 0.30 {
		return types.Intent{}, false
	}

	var dir types.SignalDirection
	if regime.Bias == types.BiasBullish {
		dir = types.SignalLong
	} else {
		dir = types.SignalShort
	}

	confidence := 0.65 + math.Min((1-ivRank/100)*0.2+deltaProxy*0.15, 0.35)

	return types.Intent{
		Symbol:     fv.Symbol,
		Direction:  dir,
		Confidence: confidence,
		AgentID:    a.ID(),
		Reasoning:  "directional bias with acceptable IV rank and delta proxy",
	}, true
}

// ivRankProxy folds realizedVol into a bounded rolling history per symbol
// and returns its percentile rank in [0,100].
func (a *OptionsAgent) ivRankProxy(symbol string, realizedVol float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := append(a.history[symbol], realizedVol)
	if len(h) > ivRankHistoryCap {
		h = h[len(h)-ivRankHistoryCap:]
	}
	a.history[symbol] = h

	if len(h) < 2 {
		return 50
	}
	below := 0
	for _, v := range h {
		if v <= realizedVol {
			below++
		}
	}
	return float64(below) / float64(len(h)) * 100
}

func (a *OptionsAgent) Weight() float64  { return a.weight.Weight() }
func (a *OptionsAgent) Observe(win bool) { a.weight.Observe(win) }
