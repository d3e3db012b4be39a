// Package rl implements the RL Predictor (spec.md §4.6): an optional
// learned model that contributes only a direction and confidence to the
// ensemble. Strike and expiry selection are rule-based and never exposed
// to the model. Raw model output is smoothed with an exponential moving
// average (alpha=0.3) per symbol across cycles to avoid oscillation.
package rl

import (
	"sync"

	"github.com/achavala/tradenova/pkg/types"
)

// ActionSource is the learned model backend: given a feature vector, it
// returns a raw scalar action in [-1, 1] (negative = bearish, positive =
// bullish). Model training and loading are out of scope (spec.md §1); this
// interface is the seam where a trained model is plugged in.
type ActionSource interface {
	Predict(fv types.FeatureVector) (action float64, ok bool)
}

// NoOpSource is an ActionSource that never fires, used when no model is
// configured. The ensemble then runs purely on the Agent Set.
type NoOpSource struct{}

func (NoOpSource) Predict(types.FeatureVector) (float64, bool) { return 0, false }

// Prediction is the RL Predictor's output for one symbol in one cycle.
type Prediction struct {
	Direction  types.SignalDirection
	Confidence float64
}

const smoothingAlpha = 0.3

// Predictor wraps an ActionSource with the per-symbol EMA smoothing and
// the spec's action->direction thresholding (a<-0.2 SHORT, a>0.2 LONG,
// else FLAT; confidence=|a|).
type Predictor struct {
	source ActionSource

	mu      sync.Mutex
	smoothed map[string]float64
}

// New constructs a Predictor over the given ActionSource. Pass NoOpSource{}
// to disable the RL contribution entirely.
func New(source ActionSource) *Predictor {
	return &Predictor{source: source, smoothed: make(map[string]float64)}
}

// Predict returns the smoothed direction/confidence for symbol, or ok=false
// if the underlying model had nothing to say this cycle.
func (p *Predictor) Predict(fv types.FeatureVector) (Prediction, bool) {
	raw, ok := p.source.Predict(fv)
	if !ok {
		return Prediction{}, false
	}

	p.mu.Lock()
	prev, seen := p.smoothed[fv.Symbol]
	var a float64
	if !seen {
		a = raw
	} else {
		a = smoothingAlpha*raw + (1-smoothingAlpha)*prev
	}
	p.smoothed[fv.Symbol] = a
	p.mu.Unlock()

	var dir types.SignalDirection
	switch {
	case a < -0.2:
		dir = types.SignalShort
	case a > 0.2:
		dir = types.SignalLong
	default:
		dir = types.SignalFlat
	}

	return Prediction{Direction: dir, Confidence: absf(a)}, true
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
