// Package agents implements the Agent Set (spec.md §4.5): a closed
// enumeration of five rule-based SignalProducers, replacing the
// duck-typed runtime-discovered agent plugins spec.md §9 flags for
// redesign. New producers are added at build time by extending Default()
// below; nothing in this package performs runtime discovery.
package agents

import (
	"math"
	"sync"

	"github.com/achavala/tradenova/pkg/types"
)

// SignalProducer is the closed capability set every built-in agent
// implements (spec.md §9 redesign guidance).
type SignalProducer interface {
	ID() string
	// Evaluate returns an Intent and true, or the zero Intent and false
	// when the agent has nothing to say for this regime/feature set.
	Evaluate(features types.FeatureVector, regime types.Regime, bars []types.Bar) (types.Intent, bool)
	// Weight returns this agent's current arbitration weight, adapted by
	// WeightTracker from realized trade outcomes.
	Weight() float64
	// Observe folds a realized trade outcome (positive P&L = win) back
	// into the agent's weight for future cycles.
	Observe(pnlPositive bool)
}

// WeightTracker adapts a single agent's arbitration weight from realized
// trade outcomes: a simple bounded random-walk, nudging toward agents that
// have recently been right. Grounded in the teacher's per-source weight
// map in internal/signals/aggregator.go, generalized to the closed
// SignalProducer enumeration.
type WeightTracker struct {
	mu         sync.RWMutex
	weight     float64
	minWeight  float64
	maxWeight  float64
	step       float64
}

// NewWeightTracker constructs a tracker starting at initialWeight, bounded
// to [min, max].
func NewWeightTracker(initialWeight, min, max, step float64) *WeightTracker {
	return &WeightTracker{weight: initialWeight, minWeight: min, maxWeight: max, step: step}
}

// Weight returns the current weight.
func (w *WeightTracker) Weight() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.weight
}

// Observe nudges the weight up on a win, down on a loss, clamped to
// [minWeight, maxWeight].
func (w *WeightTracker) Observe(pnlPositive bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pnlPositive {
		w.weight += w.step
	} else {
		w.weight -= w.step
	}
	w.weight = math.Max(w.minWeight, math.Min(w.maxWeight, w.weight))
}

// Default constructs the closed set of built-in agents with their default
// weights, in spec.md §4.5 order.
func Default() []SignalProducer {
	return []SignalProducer{
		NewEMAAgent(),
		NewTrendAgent(),
		NewMeanReversionAgent(),
		NewVolatilityAgent(),
		NewOptionsAgent(),
	}
}
