// Package portfolio implements the Portfolio/Position Manager (spec.md
// §4.11): mark-to-market, stop-loss, tiered take-profit, trailing stop,
// DTE-based exits, gap-risk forced exits, and end-of-day flatten, for all
// open option positions keyed by underlying. Grounded in the teacher's
// internal/execution package's mutex-guarded state-owner style
// (internal/execution/risk_manager.go, executor.go), generalized from
// crypto spot positions to option positions with a TP ladder.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/config"
	"github.com/achavala/tradenova/pkg/types"
)

// ExitReason names why a position mutation/close was issued.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitDTE        ExitReason = "dte_exit"
	ExitGapRisk    ExitReason = "gap_risk_force_exit"
	ExitFlatten    ExitReason = "eod_flatten"
)

// Action is one instruction the Manager emits for the Broker Adapter to
// execute against an open position: close a fraction of the remaining
// quantity (CloseFraction==1 means close fully).
type Action struct {
	Position       types.Position
	Reason         ExitReason
	CloseQty       int64
	CloseFraction  decimal.Decimal
	ArmTrailing    bool
	TrailingLockPct decimal.Decimal
}

// QuoteSource supplies the mark-to-market fallback chain spec.md §4.11
// names: live quote → chain close → last known last price. ok=false means
// this source has nothing; the Manager tries the next one.
type QuoteSource interface {
	LiveQuote(optionSymbol string) (decimal.Decimal, bool)
	ChainClose(optionSymbol string) (decimal.Decimal, bool)
}

// Manager owns the open-position table. Mutated only after a confirmed
// fill (spec.md §5); callers serialize access behind the Scheduler's risk
// mutex.
type Manager struct {
	cfg    config.Config
	logger *zap.Logger

	mu        sync.Mutex
	positions map[string]types.Position // keyed by Underlying
}

// New constructs an empty Position Manager.
func New(cfg config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("portfolio"),
		positions: make(map[string]types.Position),
	}
}

// Restore seeds the position table from a prior session's persisted state
// or the broker's reported open positions (PRE_MARKET_WARMUP).
func (m *Manager) Restore(positions []types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		m.positions[p.Underlying] = p
	}
}

// HasOpenPosition enforces the one-position-per-underlying invariant.
func (m *Manager) HasOpenPosition(underlying string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[underlying]
	return ok
}

// Open records a newly confirmed fill. Callers must have already verified
// HasOpenPosition(underlying) is false and the fill is terminal.
func (m *Manager) Open(p types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Underlying] = p
}

// Get returns the open position for underlying, if any.
func (m *Manager) Get(underlying string) (types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[underlying]
	return p, ok
}

// All returns a snapshot of every open position.
func (m *Manager) All() []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// ApplyClose mutates or removes a position following a confirmed partial
// or full close.
func (m *Manager) ApplyClose(underlying string, closedQty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[underlying]
	if !ok {
		return
	}
	remaining := p.Qty - closedQty
	if remaining <= 0 {
		delete(m.positions, underlying)
		return
	}
	p.Qty = remaining
	m.positions[underlying] = p
}

// UpdateAfterAction applies the bookkeeping side effects of an Action that
// has been confirmed filled: TP level, trailing-arm state, and quantity.
func (m *Manager) UpdateAfterAction(a Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[a.Position.Underlying]
	if !ok {
		return
	}
	remaining := p.Qty - a.CloseQty
	if remaining <= 0 {
		delete(m.positions, a.Position.Underlying)
		return
	}
	p.Qty = remaining
	if a.Reason == ExitTakeProfit {
		p.TPLevelReached++
	}
	if a.ArmTrailing {
		p.TrailingArmed = true
	}
	m.positions[a.Position.Underlying] = p
}

// MarkToMarket resolves the current price for an open position using the
// fallback chain live quote → chain close → last known last price, and
// updates CurrentPrice/HighestProfitPct in place.
func (m *Manager) MarkToMarket(underlying string, src QuoteSource) (types.Position, bool) {
	m.mu.Lock()
	p, ok := m.positions[underlying]
	m.mu.Unlock()
	if !ok {
		return types.Position{}, false
	}

	price, resolved := src.LiveQuote(p.OptionSymbol)
	if !resolved {
		price, resolved = src.ChainClose(p.OptionSymbol)
	}
	if !resolved {
		price = p.CurrentPrice
		if price.IsZero() {
			price = p.EntryPrice
		}
	}
	p.CurrentPrice = price

	pnlPct := p.PnLPct()
	if pnlPct.GreaterThan(p.HighestProfitPct) {
		p.HighestProfitPct = pnlPct
	}

	m.mu.Lock()
	m.positions[underlying] = p
	m.mu.Unlock()
	return p, true
}

// Evaluate runs every exit rule spec.md §4.11 names, in priority order, for
// a single position already marked-to-market, and returns at most one
// Action (the highest-priority rule that fires this cycle). forceExit is
// the Gap Risk Monitor's per-underlying flag; flattenNow is true once the
// Scheduler enters FLATTENING.
func (m *Manager) Evaluate(p types.Position, asOf time.Time, forceExit, flattenNow bool) (Action, bool) {
	if flattenNow {
		return Action{Position: p, Reason: ExitFlatten, CloseQty: p.Qty, CloseFraction: decimal.NewFromInt(1)}, true
	}
	if forceExit {
		return Action{Position: p, Reason: ExitGapRisk, CloseQty: p.Qty, CloseFraction: decimal.NewFromInt(1)}, true
	}

	pnlPct := p.PnLPct()

	if pnlPct.LessThanOrEqual(m.cfg.StopLossPct.Neg()) {
		return Action{Position: p, Reason: ExitStopLoss, CloseQty: p.Qty, CloseFraction: decimal.NewFromInt(1)}, true
	}

	if p.TrailingArmed {
		if action, ok := m.trailingStopAction(p, pnlPct); ok {
			return action, true
		}
	}

	if action, ok := m.tieredTakeProfitAction(p, pnlPct); ok {
		return action, true
	}

	dte := p.DTE(asOf)
	if dte <= 1 && pnlPct.LessThan(decimal.NewFromFloat(0.50)) {
		return Action{Position: p, Reason: ExitDTE, CloseQty: p.Qty, CloseFraction: decimal.NewFromInt(1)}, true
	}
	if dte <= 3 && pnlPct.LessThan(decimal.NewFromFloat(0.20)) {
		return Action{Position: p, Reason: ExitDTE, CloseQty: p.Qty, CloseFraction: decimal.NewFromInt(1)}, true
	}

	return Action{}, false
}

// tieredTakeProfitAction fires the next unreached TP rung whose threshold
// pnlPct has met or exceeded. TP4 additionally arms the trailing stop.
func (m *Manager) tieredTakeProfitAction(p types.Position, pnlPct decimal.Decimal) (Action, bool) {
	nextLevel := p.TPLevelReached + 1
	if nextLevel > len(m.cfg.TPLadder) {
		return Action{}, false
	}
	rung := m.cfg.TPLadder[nextLevel-1]
	if pnlPct.LessThan(rung.ThresholdPct) {
		return Action{}, false
	}

	closeQty := closeFractionQty(p.Qty, rung.CloseFraction)
	action := Action{Position: p, Reason: ExitTakeProfit, CloseQty: closeQty, CloseFraction: rung.CloseFraction}
	if nextLevel == m.cfg.TrailingArmTP {
		action.ArmTrailing = true
		action.TrailingLockPct = decimal.NewFromFloat(1.00)
	}
	return action, true
}

// trailingStopAction closes the remaining position if pnlPct has pulled
// back from highest_profit_pct by more than the tiered pullback band
// spec.md §4.11 names (10%-18%, scaled by how far above the arming level
// the position ran).
func (m *Manager) trailingStopAction(p types.Position, pnlPct decimal.Decimal) (Action, bool) {
	pullback := trailingPullback(p.HighestProfitPct)
	threshold := p.HighestProfitPct.Sub(pullback)
	if pnlPct.LessThan(threshold) {
		return Action{Position: p, Reason: ExitTrailing, CloseQty: p.Qty, CloseFraction: decimal.NewFromInt(1)}, true
	}
	return Action{}, false
}

// trailingPullback scales the pullback band from 10% (just past arming,
// highest_profit_pct near +150%) to 18% (highest_profit_pct at or above
// +300%), per spec.md §9's "tiers by highest_profit_pct band" resolution
// of the open question.
func trailingPullback(highestProfitPct decimal.Decimal) decimal.Decimal {
	const armLevel = 1.50
	const capLevel = 3.00
	const minPullback = 0.10
	const maxPullback = 0.18

	h, _ := highestProfitPct.Float64()
	if h <= armLevel {
		return decimal.NewFromFloat(minPullback)
	}
	if h >= capLevel {
		return decimal.NewFromFloat(maxPullback)
	}
	frac := (h - armLevel) / (capLevel - armLevel)
	return decimal.NewFromFloat(minPullback + frac*(maxPullback-minPullback))
}

func closeFractionQty(remaining int64, fraction decimal.Decimal) int64 {
	qty := decimal.NewFromInt(remaining).Mul(fraction).Floor().IntPart()
	if qty < 1 {
		qty = 1
	}
	if qty > remaining {
		qty = remaining
	}
	return qty
}
