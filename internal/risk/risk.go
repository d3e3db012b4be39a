// Package risk implements the Risk Stack (spec.md §4.10): an ordered chain
// of layers evaluated before any new option position is opened. The first
// layer that does not pass short-circuits the chain with its Risk Decision
// (testable property: "no layer runs after a non-pass layer").
//
// Grounded in the teacher's internal/execution/risk_manager.go: a single
// mutex-guarded manager owning all mutable risk state, replacing the
// teacher's crypto-exposure/correlation-group rules with the spec's
// gap-risk, IV-rank, Greeks-cap, UVaR and trade-budget rules.
package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/options"
	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

// GapRiskLevel classifies how close a known calendar event (earnings,
// macro release) is to a symbol's underlying.
type GapRiskLevel string

const (
	GapNone     GapRiskLevel = "NONE"
	GapLow      GapRiskLevel = "LOW"
	GapMedium   GapRiskLevel = "MEDIUM"
	GapHigh     GapRiskLevel = "HIGH"
	GapCritical GapRiskLevel = "CRITICAL"
)

// EventCalendar is the external collaborator providing days-until-next-
// known-event for an underlying. hasEvent=false means no event is known
// within the lookahead window the calendar tracks.
type EventCalendar interface {
	DaysUntilEvent(ctx context.Context, underlying string, asOf time.Time) (days int, hasEvent bool, err error)
}

// NoCalendar is an EventCalendar that never reports an event, used when no
// calendar feed is configured.
type NoCalendar struct{}

func (NoCalendar) DaysUntilEvent(context.Context, string, time.Time) (int, bool, error) {
	return 0, false, nil
}

// ClassifyGapRisk maps a days-until-event reading to a level and the size
// multiplier spec.md §4.10 assigns it.
func ClassifyGapRisk(days int, hasEvent bool) (GapRiskLevel, decimal.Decimal) {
	if !hasEvent {
		return GapNone, decimal.NewFromInt(1)
	}
	switch {
	case days <= 0:
		return GapCritical, decimal.Zero
	case days == 1:
		return GapHigh, decimal.Zero
	case days <= 3:
		return GapMedium, decimal.NewFromFloat(0.5)
	case days <= 7:
		return GapLow, decimal.NewFromFloat(0.8)
	default:
		return GapNone, decimal.NewFromInt(1)
	}
}

// ReturnSource supplies the trailing daily return series for an underlying,
// used by the UVaR layer's historical simulation. Single-writer, many-
// reader per spec.md §5's shared-resource model.
type ReturnSource interface {
	DailyReturns(ctx context.Context, underlying string, asOf time.Time, lookbackDays int) ([]float64, error)
}

// NoReturnSource is a ReturnSource with no history; the UVaR layer treats
// this as unknown-but-safe and passes with a warning rather than blocking
// new trades on missing data.
type NoReturnSource struct{}

func (NoReturnSource) DailyReturns(context.Context, string, time.Time, int) ([]float64, error) {
	return nil, nil
}

// Config mirrors the subset of internal/config.Config the Risk Stack
// consumes.
type Config struct {
	MaxDelta       decimal.Decimal
	MaxGamma       decimal.Decimal
	MaxThetaPerDay decimal.Decimal
	MaxVega        decimal.Decimal
	MaxUVaRPct     decimal.Decimal
	DailyTradeLimit int
	UVaRLookbackDays int
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		MaxDelta:         decimal.NewFromInt(500),
		MaxGamma:         decimal.NewFromInt(25),
		MaxThetaPerDay:   decimal.NewFromInt(-300),
		MaxVega:          decimal.NewFromInt(300),
		MaxUVaRPct:       decimal.NewFromFloat(0.05),
		DailyTradeLimit:  5,
		UVaRLookbackDays: 60,
	}
}

const ivHistoryCap = 252 // spec.md §9 open question: 252-day upper bound

// Manager owns every mutable risk counter behind a single mutex (spec.md §9
// "module-level mutable state" redesign guidance): peak balance, loss
// streak, daily trade counter, per-symbol IV history, and portfolio
// notional exposure used by the UVaR layer. The Scheduler holds the only
// reference and serializes all risk/position mutation behind this same
// mutex (spec.md §5).
type Manager struct {
	cfg      Config
	calendar EventCalendar
	returns  ReturnSource
	logger   *zap.Logger

	mu sync.Mutex

	equity           decimal.Decimal
	peakBalance      decimal.Decimal
	lossStreak       int
	dailyTrades      int
	dailyResetAt     time.Time
	ivHistory        map[string][]decimal.Decimal
	portfolioNotional decimal.Decimal
	forceExit        map[string]bool
}

// NewManager constructs a Risk Stack manager. Pass NoCalendar{} /
// NoReturnSource{} when no live feed is configured for those collaborators.
func NewManager(cfg Config, calendar EventCalendar, returns ReturnSource, logger *zap.Logger) *Manager {
	if calendar == nil {
		calendar = NoCalendar{}
	}
	if returns == nil {
		returns = NoReturnSource{}
	}
	return &Manager{
		cfg:       cfg,
		calendar:  calendar,
		returns:   returns,
		logger:    logger.Named("risk"),
		ivHistory: make(map[string][]decimal.Decimal),
		forceExit: make(map[string]bool),
	}
}

// Seed initializes the risk manager from the broker's reported equity
// during PRE_MARKET_WARMUP (spec.md §4.13).
func (m *Manager) Seed(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = equity
	if equity.GreaterThan(m.peakBalance) {
		m.peakBalance = equity
	}
}

// UpdateEquity records the latest account equity, tracking the running
// peak for drawdown-aware consumers.
func (m *Manager) UpdateEquity(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = equity
	if equity.GreaterThan(m.peakBalance) {
		m.peakBalance = equity
	}
}

// ResetDaily clears the daily trade counter; called on the
// WAITING_FOR_OPEN → RUNNING transition.
func (m *Manager) ResetDaily(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyTrades = 0
	m.dailyResetAt = at
}

// RecordTradeOpened increments the daily trade counter. Called only after
// a confirmed fill (spec.md §5 "position table mutated only after a
// confirmed fill").
func (m *Manager) RecordTradeOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyTrades++
}

// RecordOutcome folds a closed position's realized P&L sign into the loss
// streak counter, feeding WeightTracker-style adaptation elsewhere.
func (m *Manager) RecordOutcome(pnlPositive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pnlPositive {
		m.lossStreak = 0
	} else {
		m.lossStreak++
	}
}

// RecordIV folds a symbol's current implied volatility into its rolling
// history, used by the IV Regime Filter's rank computation.
func (m *Manager) RecordIV(symbol string, iv decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.ivHistory[symbol], iv)
	if len(h) > ivHistoryCap {
		h = h[len(h)-ivHistoryCap:]
	}
	m.ivHistory[symbol] = h
}

// IVRank returns the current IV's percentile rank in [0,100] against the
// rolling window, or 50 (neutral) if history is too thin to rank.
func (m *Manager) IVRank(symbol string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.ivHistory[symbol]
	if len(h) < 2 {
		return decimal.NewFromInt(50)
	}
	current := h[len(h)-1]
	below := 0
	for _, v := range h {
		if v.LessThanOrEqual(current) {
			below++
		}
	}
	return decimal.NewFromInt(int64(below)).Div(decimal.NewFromInt(int64(len(h)))).Mul(decimal.NewFromInt(100))
}

// UpdatePortfolioNotional records the current open-position notional
// exposure, the baseline the UVaR layer computes incremental risk against.
func (m *Manager) UpdatePortfolioNotional(notional decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolioNotional = notional
}

// SetForceExit records the Gap Risk Monitor's force-exit flag for an
// underlying; the Position Manager polls this each cycle (spec.md §4.11
// "gap-risk force exit").
func (m *Manager) SetForceExit(underlying string, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if force {
		m.forceExit[underlying] = true
	} else {
		delete(m.forceExit, underlying)
	}
}

// ForceExit reports whether underlying is currently flagged for a gap-risk
// forced exit.
func (m *Manager) ForceExit(underlying string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forceExit[underlying]
}

// DailyTrades returns the number of trades opened so far this session.
func (m *Manager) DailyTrades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyTrades
}

// EvaluateRequest bundles everything the Risk Stack needs to evaluate one
// candidate trade.
type EvaluateRequest struct {
	Underlying      string
	Contract        types.OptionContract
	CurrentGreeks   types.PortfolioGreeks
	ProposedGreeks  types.PortfolioGreeks // projected Greeks contribution of the candidate position at base size
	ProposedNotional decimal.Decimal
	AsOf            time.Time
	FilterCfg       options.FilterConfig
}

// StackResult is the Risk Stack's full verdict: the per-layer decisions in
// evaluation order (stops at the first non-pass) plus the combined size
// multiplier a pass carries forward to the sizing stage.
type StackResult struct {
	Layers         []types.RiskDecision
	GapLevel       GapRiskLevel
	GapMultiplier  decimal.Decimal
	IVRank         decimal.Decimal
	IVMultiplier   decimal.Decimal
	Final          types.RiskDecision
}

// Evaluate runs the ordered Risk Stack layers against req, short-circuiting
// at the first non-pass layer (testable property: "Risk Stack short-
// circuits: no layer runs after a non-pass layer").
func (m *Manager) Evaluate(ctx context.Context, req EvaluateRequest) (StackResult, error) {
	result := StackResult{GapMultiplier: decimal.NewFromInt(1), IVMultiplier: decimal.NewFromInt(1)}

	// Layer 1: Gap Risk Monitor.
	days, hasEvent, err := m.calendar.DaysUntilEvent(ctx, req.Underlying, req.AsOf)
	if err != nil {
		return result, fmt.Errorf("risk: gap risk monitor: %w", err)
	}
	level, mult := ClassifyGapRisk(days, hasEvent)
	result.GapLevel = level
	result.GapMultiplier = mult
	m.SetForceExit(req.Underlying, level == GapCritical)

	gapDecision := gapRiskDecision(level, mult)
	result.Layers = append(result.Layers, gapDecision)
	if !gapDecision.Allowed {
		result.Final = gapDecision
		return result, nil
	}

	// Layer 2: Liquidity Gatekeeper, redundant check against the same
	// predicate as the Option Universe Filter in case the quote aged
	// between selection and this evaluation.
	stamp := options.Stamp(req.Contract, req.FilterCfg)
	liqDecision := liquidityDecision(stamp)
	result.Layers = append(result.Layers, liqDecision)
	if !liqDecision.Allowed {
		result.Final = liqDecision
		return result, nil
	}

	// Layer 3: IV Regime Filter.
	ivRank := m.IVRank(req.Underlying)
	result.IVRank = ivRank
	ivDecision, ivMult := ivRegimeDecision(ivRank)
	result.IVMultiplier = ivMult
	result.Layers = append(result.Layers, ivDecision)
	if !ivDecision.Allowed {
		result.Final = ivDecision
		return result, nil
	}

	// Layer 4: Portfolio Greeks Caps, projected at base size.
	projected := addGreeks(req.CurrentGreeks, req.ProposedGreeks)
	greeksDecision := m.CheckGreeksCaps(req.CurrentGreeks, projected)
	result.Layers = append(result.Layers, greeksDecision)
	if !greeksDecision.Allowed {
		result.Final = greeksDecision
		return result, nil
	}

	// Layer 5: UVaR, historical simulation over the trailing window.
	uvarDecision, err := m.uvarDecision(ctx, req)
	if err != nil {
		return result, fmt.Errorf("risk: uvar layer: %w", err)
	}
	result.Layers = append(result.Layers, uvarDecision)
	if !uvarDecision.Allowed {
		result.Final = uvarDecision
		return result, nil
	}

	// Layer 6: Daily Trade Budget.
	budgetDecision := m.dailyBudgetDecision()
	result.Layers = append(result.Layers, budgetDecision)
	if !budgetDecision.Allowed {
		result.Final = budgetDecision
		return result, nil
	}

	result.Final = types.RiskDecision{
		Allowed:        true,
		Reason:         "all risk layers passed",
		Level:          types.RiskSafe,
		SizeMultiplier: result.GapMultiplier.Mul(result.IVMultiplier),
	}
	return result, nil
}

func gapRiskDecision(level GapRiskLevel, mult decimal.Decimal) types.RiskDecision {
	switch level {
	case GapCritical:
		return types.RiskDecision{Allowed: false, Reason: "gap_risk=CRITICAL: event today", Level: types.RiskBlocked, Layer: "gap_risk", SizeMultiplier: decimal.Zero}
	case GapHigh:
		return types.RiskDecision{Allowed: false, Reason: "gap_risk=HIGH: event tomorrow", Level: types.RiskBlocked, Layer: "gap_risk", SizeMultiplier: decimal.Zero}
	case GapMedium:
		return types.RiskDecision{Allowed: true, Reason: "gap_risk=MEDIUM: event in 2-3 days", Level: types.RiskWarning, Layer: "gap_risk", SizeMultiplier: mult}
	case GapLow:
		return types.RiskDecision{Allowed: true, Reason: "gap_risk=LOW: event in 4-7 days", Level: types.RiskWarning, Layer: "gap_risk", SizeMultiplier: mult}
	default:
		return types.RiskDecision{Allowed: true, Reason: "no known event nearby", Level: types.RiskSafe, Layer: "gap_risk", SizeMultiplier: decimal.NewFromInt(1)}
	}
}

func liquidityDecision(stamp types.LiquidityStamp) types.RiskDecision {
	if stamp.Tradable() {
		return types.RiskDecision{Allowed: true, Reason: "liquidity unchanged since selection", Level: types.RiskSafe, Layer: "liquidity_gatekeeper", SizeMultiplier: decimal.NewFromInt(1)}
	}
	return types.RiskDecision{Allowed: false, Reason: "quote aged past liquidity thresholds since selection", Level: types.RiskBlocked, Layer: "liquidity_gatekeeper", SizeMultiplier: decimal.Zero}
}

func ivRegimeDecision(rank decimal.Decimal) (types.RiskDecision, decimal.Decimal) {
	switch {
	case rank.GreaterThan(decimal.NewFromInt(80)):
		return types.RiskDecision{Allowed: false, Reason: "iv_rank>80: block buying long premium", Level: types.RiskBlocked, Layer: "iv_regime", SizeMultiplier: decimal.NewFromFloat(0.6)}, decimal.NewFromFloat(0.6)
	case rank.GreaterThan(decimal.NewFromInt(50)):
		return types.RiskDecision{Allowed: true, Reason: "iv_rank 50-80: recommend fast exits", Level: types.RiskWarning, Layer: "iv_regime", SizeMultiplier: decimal.NewFromInt(1)}, decimal.NewFromInt(1)
	case rank.GreaterThanOrEqual(decimal.NewFromInt(20)):
		return types.RiskDecision{Allowed: true, Reason: "iv_rank 20-50: pass", Level: types.RiskSafe, Layer: "iv_regime", SizeMultiplier: decimal.NewFromInt(1)}, decimal.NewFromInt(1)
	default:
		return types.RiskDecision{Allowed: true, Reason: "iv_rank<20: warn on long options", Level: types.RiskWarning, Layer: "iv_regime", SizeMultiplier: decimal.NewFromInt(1)}, decimal.NewFromInt(1)
	}
}

// CheckGreeksCaps evaluates the projected post-trade portfolio Greeks
// against the configured caps. Exported so the sizing stage can re-check
// after flooring the final quantity to one contract (spec.md §4.10 "if the
// floor fails the Greeks cap projection, the trade is rejected").
func (m *Manager) CheckGreeksCaps(current, projected types.PortfolioGreeks) types.RiskDecision {
	ratios := []struct {
		name  string
		ratio decimal.Decimal
	}{
		{"delta", safeRatio(projected.Delta.Abs(), m.cfg.MaxDelta)},
		{"gamma", safeRatio(projected.Gamma.Abs(), m.cfg.MaxGamma)},
		{"vega", safeRatio(projected.Vega.Abs(), m.cfg.MaxVega)},
	}
	// Theta's limit is negative (a floor, not a ceiling): breach is
	// projected.Theta < MaxThetaPerDay.
	if projected.Theta.LessThan(m.cfg.MaxThetaPerDay) && !m.cfg.MaxThetaPerDay.IsZero() {
		ratios = append(ratios, struct {
			name  string
			ratio decimal.Decimal
		}{"theta", safeRatio(m.cfg.MaxThetaPerDay.Sub(projected.Theta).Abs(), m.cfg.MaxThetaPerDay.Abs()).Add(decimal.NewFromInt(1))})
	}

	worst := decimal.Zero
	var worstName string
	var breached []string
	for _, r := range ratios {
		if r.ratio.GreaterThan(decimal.NewFromInt(1)) {
			breached = append(breached, r.name)
		}
		if r.ratio.GreaterThan(worst) {
			worst = r.ratio
			worstName = r.name
		}
	}

	pg := projected
	cg := current

	if len(breached) == 0 {
		return types.RiskDecision{
			Allowed: true, Reason: "projected Greeks within caps", Level: types.RiskSafe,
			Layer: "greeks_caps", ProjectedGreeks: &pg, CurrentGreeks: &cg, SizeMultiplier: decimal.NewFromInt(1),
		}
	}

	if worst.GreaterThan(decimal.NewFromFloat(1.5)) {
		return types.RiskDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("hard Greeks cap violation (%s at %sx): forced reduction required", worstName, worst.StringFixed(2)),
			Level:   types.RiskBlocked, Layer: "greeks_caps",
			ProjectedGreeks: &pg, CurrentGreeks: &cg, SizeMultiplier: decimal.Zero,
		}
	}
	return types.RiskDecision{
		Allowed: false,
		Reason:  fmt.Sprintf("soft Greeks cap violation (%s at %sx): new trades blocked", worstName, worst.StringFixed(2)),
		Level:   types.RiskDanger, Layer: "greeks_caps",
		ProjectedGreeks: &pg, CurrentGreeks: &cg, SizeMultiplier: decimal.Zero,
	}
}

func safeRatio(value, limit decimal.Decimal) decimal.Decimal {
	if limit.IsZero() {
		return decimal.Zero
	}
	return value.Div(limit.Abs())
}

func addGreeks(a, b types.PortfolioGreeks) types.PortfolioGreeks {
	return types.PortfolioGreeks{
		Delta: a.Delta.Add(b.Delta),
		Gamma: a.Gamma.Add(b.Gamma),
		Theta: a.Theta.Add(b.Theta),
		Vega:  a.Vega.Add(b.Vega),
	}
}

// uvarDecision computes the incremental 1-day 99th-percentile historical-
// simulation loss from adding req's proposed notional to the current
// portfolio, and blocks if the resulting UVaR exceeds MaxUVaRPct of equity
// (warns at 80% of the limit).
func (m *Manager) uvarDecision(ctx context.Context, req EvaluateRequest) (types.RiskDecision, error) {
	returns, err := m.returns.DailyReturns(ctx, req.Underlying, req.AsOf, m.cfg.UVaRLookbackDays)
	if err != nil {
		return types.RiskDecision{}, err
	}
	if len(returns) < 2 {
		return types.RiskDecision{Allowed: true, Reason: "uvar: insufficient return history, passing with warning", Level: types.RiskWarning, Layer: "uvar", SizeMultiplier: decimal.NewFromInt(1)}, nil
	}

	worstReturn := percentile(returns, 0.01) // worst 1% daily return (most negative)

	m.mu.Lock()
	equity := m.equity
	existingNotional := m.portfolioNotional
	m.mu.Unlock()

	if equity.IsZero() {
		return types.RiskDecision{Allowed: true, Reason: "uvar: equity not yet seeded, passing with warning", Level: types.RiskWarning, Layer: "uvar", SizeMultiplier: decimal.NewFromInt(1)}, nil
	}

	lossFactor := decimal.NewFromFloat(worstReturn).Abs()
	existingLoss := existingNotional.Mul(lossFactor)
	incrementalLoss := req.ProposedNotional.Mul(lossFactor)
	combinedLoss := existingLoss.Add(incrementalLoss)
	uvarPct := combinedLoss.Div(equity)

	warnThreshold := m.cfg.MaxUVaRPct.Mul(decimal.NewFromFloat(0.8))

	switch {
	case uvarPct.GreaterThan(m.cfg.MaxUVaRPct):
		return types.RiskDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("incremental UVaR %s%% exceeds limit %s%%", uvarPct.Mul(decimal.NewFromInt(100)).StringFixed(2), m.cfg.MaxUVaRPct.Mul(decimal.NewFromInt(100)).StringFixed(2)),
			Level:   types.RiskBlocked, Layer: "uvar", SizeMultiplier: decimal.Zero,
		}, nil
	case uvarPct.GreaterThan(warnThreshold):
		return types.RiskDecision{
			Allowed: true,
			Reason:  fmt.Sprintf("incremental UVaR %s%% within 80%% of limit", uvarPct.Mul(decimal.NewFromInt(100)).StringFixed(2)),
			Level:   types.RiskWarning, Layer: "uvar", SizeMultiplier: decimal.NewFromInt(1),
		}, nil
	default:
		return types.RiskDecision{Allowed: true, Reason: "incremental UVaR within limit", Level: types.RiskSafe, Layer: "uvar", SizeMultiplier: decimal.NewFromInt(1)}, nil
	}
}

// percentile returns the linearly-interpolated p-th percentile (p in
// [0,1]) of values, sorted ascending first so p=0.01 is "worst 1%" for a
// series of returns.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func (m *Manager) dailyBudgetDecision() types.RiskDecision {
	m.mu.Lock()
	trades := m.dailyTrades
	m.mu.Unlock()

	if trades >= m.cfg.DailyTradeLimit {
		return types.RiskDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily_budget_exceeded: %d/%d trades today", trades, m.cfg.DailyTradeLimit),
			Level:   types.RiskBlocked, Layer: "daily_trade_budget", SizeMultiplier: decimal.Zero,
		}
	}
	return types.RiskDecision{Allowed: true, Reason: "within daily trade budget", Level: types.RiskSafe, Layer: "daily_trade_budget", SizeMultiplier: decimal.NewFromInt(1)}
}

// AsRiskBlockedError wraps a non-pass final decision as an
// ErrRiskBlocked-compatible error for callers that want the tradeerr
// taxonomy instead of the raw StackResult.
func AsRiskBlockedError(result StackResult) error {
	if result.Final.Allowed {
		return nil
	}
	return fmt.Errorf("%w: layer=%s reason=%s", tradeerr.ErrRiskBlocked, result.Final.Layer, result.Final.Reason)
}
