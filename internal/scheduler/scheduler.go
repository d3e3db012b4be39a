// Package scheduler implements the Scheduler state machine (spec.md
// §4.13): CLOSED → PRE_MARKET_WARMUP → WAITING_FOR_OPEN → RUNNING →
// FLATTENING → REPORTING → CLOSED, driven by a single ticker with
// idempotent transitions, replacing the teacher's time-of-day-callback
// orchestrator (spec.md §9 redesign). Within RUNNING, each symbol's
// pipeline runs concurrently up to a bounded worker pool
// (sourcegraph/conc/pool, default min(#symbols, 8) — spec.md §5), while
// the Risk Stack evaluation and position-table mutation are serialized
// behind a single mutex per spec.md §5's shared-resource model.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/agents"
	"github.com/achavala/tradenova/internal/broker"
	"github.com/achavala/tradenova/internal/clock"
	"github.com/achavala/tradenova/internal/config"
	"github.com/achavala/tradenova/internal/ensemble"
	"github.com/achavala/tradenova/internal/events"
	"github.com/achavala/tradenova/internal/features"
	"github.com/achavala/tradenova/internal/marketdata"
	"github.com/achavala/tradenova/internal/metrics"
	"github.com/achavala/tradenova/internal/options"
	"github.com/achavala/tradenova/internal/portfolio"
	"github.com/achavala/tradenova/internal/regime"
	"github.com/achavala/tradenova/internal/risk"
	"github.com/achavala/tradenova/internal/rl"
	"github.com/achavala/tradenova/internal/sizing"
	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/internal/workers"
	"github.com/achavala/tradenova/pkg/types"
)

// Phase is the Scheduler's logical state.
type Phase string

const (
	PhaseClosed          Phase = "CLOSED"
	PhasePreMarketWarmup Phase = "PRE_MARKET_WARMUP"
	PhaseWaitingForOpen  Phase = "WAITING_FOR_OPEN"
	PhaseRunning         Phase = "RUNNING"
	PhaseFlattening      Phase = "FLATTENING"
	PhaseReporting       Phase = "REPORTING"
)

// Deps bundles every collaborator the Scheduler drives. All fields are
// required except RL, which defaults to rl.New(rl.NoOpSource{}), and
// Metrics, which defaults to metrics.New().
type Deps struct {
	Config       config.Config
	Logger       *zap.Logger
	Clock        *clock.Clock
	Data         *marketdata.Adapter
	Risk         *risk.Manager
	Portfolio    *portfolio.Manager
	Broker       *broker.Adapter
	Events       *events.Bus
	Regime       *regime.Classifier
	Agents       []agents.SignalProducer
	RL           *rl.Predictor
	FilterCfg    options.FilterConfig
	SelectorCfg  options.SelectorConfig
	SizingCfg    sizing.Config
	Metrics      *metrics.Registry
}

// Scheduler is the single logical scheduler thread (spec.md §5). Exactly
// one cycle executes at a time; an overrunning cycle causes the next
// tick to be skipped, not queued.
type Scheduler struct {
	cfg    config.Config
	logger *zap.Logger

	clk       *clock.Clock
	data      *marketdata.Adapter
	riskMgr   *risk.Manager
	portfolio *portfolio.Manager
	brokerAdp *broker.Adapter
	eventsBus *events.Bus
	regimeCls *regime.Classifier
	agentSet  []agents.SignalProducer
	rlPred    *rl.Predictor
	filterCfg options.FilterConfig
	selCfg    options.SelectorConfig
	sizingCfg sizing.Config
	metrics   *metrics.Registry

	quotes *quoteAdapter

	mu             sync.Mutex
	phase          Phase
	warmupDone     bool
	flattenStarted time.Time
	cycleRunning   bool

	// decisionMu serializes the Risk Stack evaluation and position-table
	// mutation across concurrently-running symbol pipelines (spec.md §5).
	decisionMu sync.Mutex
}

// New constructs a Scheduler in the CLOSED state.
func New(d Deps) *Scheduler {
	rlPred := d.RL
	if rlPred == nil {
		rlPred = rl.New(rl.NoOpSource{})
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Scheduler{
		cfg:       d.Config,
		logger:    d.Logger.Named("scheduler"),
		clk:       d.Clock,
		data:      d.Data,
		riskMgr:   d.Risk,
		portfolio: d.Portfolio,
		brokerAdp: d.Broker,
		eventsBus: d.Events,
		regimeCls: d.Regime,
		agentSet:  d.Agents,
		rlPred:    rlPred,
		filterCfg: d.FilterCfg,
		selCfg:    d.SelectorCfg,
		sizingCfg: d.SizingCfg,
		metrics:   m,
		quotes:    &quoteAdapter{data: d.Data, timeout: d.Config.QuoteTimeout},
		phase:     PhaseClosed,
	}
}

func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	prev := s.phase
	s.phase = p
	s.mu.Unlock()
	if prev != p {
		s.logger.Info("phase transition", zap.String("from", string(prev)), zap.String("to", string(p)))
	}
}

// Run drives the state machine until ctx is cancelled. A SIGINT/shutdown
// surfaces as ctx.Done(); Run finishes in-flight work and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	pollEvery := time.Second
	if s.cfg.CyclePeriod < pollEvery {
		pollEvery = s.cfg.CyclePeriod
	}
	poll := time.NewTicker(pollEvery)
	defer poll.Stop()
	cycle := time.NewTicker(s.cfg.CyclePeriod)
	defer cycle.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-poll.C:
			if err := s.tickPhase(ctx); err != nil {
				return err
			}
		case <-cycle.C:
			if s.Phase() == PhaseRunning {
				s.runCycleOrSkip(ctx)
			}
		}
	}
}

// tickPhase samples the clock once and advances the state machine at
// most one transition per call; transitions are idempotent (calling
// tickPhase repeatedly in the same phase with the same clock reading is
// a no-op).
func (s *Scheduler) tickPhase(ctx context.Context) error {
	sample := s.clk.Sample(ctx)
	phase := s.Phase()

	switch phase {
	case PhaseClosed:
		if sample.Phase == clock.PhasePreMarket || sample.Phase == clock.PhaseOpen {
			s.setPhase(PhasePreMarketWarmup)
		}
	case PhasePreMarketWarmup:
		if !s.warmupDone {
			s.warmup(ctx)
		}
		s.setPhase(PhaseWaitingForOpen)
	case PhaseWaitingForOpen:
		if sample.MarketOpen && sample.Phase == clock.PhaseOpen {
			s.riskMgr.ResetDaily(sample.Now)
			s.setPhase(PhaseRunning)
		}
	case PhaseRunning:
		if sample.PastFlatten || !sample.MarketOpen || sample.Phase != clock.PhaseOpen {
			s.flattenStarted = sample.Now
			s.flatten(ctx)
			s.setPhase(PhaseFlattening)
		}
	case PhaseFlattening:
		budgetExceeded := sample.Now.Sub(s.flattenStarted) > s.cfg.ReportBudget
		if len(s.portfolio.All()) == 0 || budgetExceeded {
			s.setPhase(PhaseReporting)
		}
	case PhaseReporting:
		s.report(sample.Now)
		s.warmupDone = false
		s.setPhase(PhaseClosed)
	}
	return nil
}

// warmup seeds the risk manager from the broker's reported equity and
// restores the position table from the broker's open positions (spec.md
// §4.13 "PRE_MARKET_WARMUP → WAITING_FOR_OPEN" transition guard).
func (s *Scheduler) warmup(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.DataFetchTimeout)
	defer cancel()

	account, err := s.brokerAdp.GetAccount(wctx)
	if err != nil {
		s.logger.Warn("warmup: failed to fetch account, risk manager unseeded", zap.Error(err))
	} else {
		s.riskMgr.Seed(account.Equity)
	}

	positions, err := s.brokerAdp.ListPositions(wctx)
	if err != nil {
		s.logger.Warn("warmup: failed to fetch open positions", zap.Error(err))
	} else {
		s.portfolio.Restore(positions)
	}
	s.warmupDone = true
}

// runCycleOrSkip runs exactly one cycle if the previous one has already
// finished; otherwise it records ErrSchedulerOverrun and skips this tick
// (spec.md §4.13 "the next tick is skipped, not queued").
func (s *Scheduler) runCycleOrSkip(ctx context.Context) {
	s.mu.Lock()
	if s.cycleRunning {
		s.mu.Unlock()
		s.metrics.CyclesSkipped.Inc()
		s.logger.Warn("cycle overrun: skipping tick", zap.Error(tradeerr.ErrSchedulerOverrun))
		return
	}
	s.cycleRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycleRunning = false
		s.mu.Unlock()
	}()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	if err := s.runCycle(cctx); err != nil {
		s.logger.Error("cycle finished with errors", zap.Error(err))
	}
	s.metrics.CyclesRun.Inc()
}

// runCycle fans out one pipeline per symbol, bounded to
// min(#symbols, MaxWorkers) concurrent pipelines (spec.md §5), and
// aggregates per-symbol errors. Symbol order itself is unspecified; only
// the risk-mutex acquisition order linearizes risk decisions.
func (s *Scheduler) runCycle(ctx context.Context) error {
	sample := s.clk.Sample(ctx)
	s.riskMgr.UpdatePortfolioNotional(s.existingExposure())
	maxWorkers := s.cfg.MaxWorkers
	if maxWorkers <= 0 || maxWorkers > len(s.cfg.Universe) {
		if len(s.cfg.Universe) > 0 {
			maxWorkers = len(s.cfg.Universe)
		} else {
			maxWorkers = 1
		}
	}

	p := pool.New().WithMaxGoroutines(maxWorkers)
	errs := make([]error, len(s.cfg.Universe))

	for i, symbol := range s.cfg.Universe {
		i, symbol := i, symbol
		p.Go(func() {
			errs[i] = s.runSymbolPipeline(ctx, symbol, sample)
		})
	}
	p.Wait()

	var combined error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if tradeerr.PerSymbolIsolated(err) {
			s.logger.Info("symbol skipped this cycle", zap.String("symbol", s.cfg.Universe[i]), zap.Error(err))
			continue
		}
		combined = multierr.Append(combined, fmt.Errorf("%s: %w", s.cfg.Universe[i], err))
	}
	return combined
}

// runSymbolPipeline runs one symbol's full cycle: mark existing position
// to market and evaluate exits, then (if no open position) the
// signal→risk→sizing→entry pipeline. It is internally sequential; only
// the risk/position critical section is guarded by decisionMu.
func (s *Scheduler) runSymbolPipeline(ctx context.Context, symbol string, sample clock.Sample) error {
	if pos, ok := s.portfolio.Get(symbol); ok {
		if err := s.managePosition(ctx, symbol, pos, sample); err != nil {
			return err
		}
		// One position per underlying: a symbol with an open position
		// never evaluates a new entry this cycle.
		return nil
	}
	return s.evaluateEntry(ctx, symbol, sample)
}

// managePosition marks an open position to market and, under decisionMu,
// applies the highest-priority exit action the Position Manager fires.
func (s *Scheduler) managePosition(ctx context.Context, symbol string, pos types.Position, sample clock.Sample) error {
	marked, ok := s.portfolio.MarkToMarket(symbol, s.quotes)
	if !ok {
		return nil
	}

	action, fires := s.portfolio.Evaluate(marked, sample.Now, s.riskMgr.ForceExit(symbol), false)
	if !fires {
		return nil
	}

	s.decisionMu.Lock()
	defer s.decisionMu.Unlock()

	octx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	defer cancel()
	start := time.Now()
	order, err := s.brokerAdp.ExecuteMarketOrder(octx, marked.OptionSymbol, action.CloseQty, types.OrderSell)
	s.observeOrderLatency("exit", order, err, start)
	s.publishExit(symbol, action, err)
	if err != nil {
		return err
	}
	if order.Status == types.OrderFilled {
		s.portfolio.UpdateAfterAction(action)
		s.riskMgr.RecordOutcome(marked.PnLPct().IsPositive())
	}
	return nil
}

// evaluateEntry runs the full signal→risk→sizing pipeline for a symbol
// with no open position and, if every stage accepts, submits an entry
// order.
func (s *Scheduler) evaluateEntry(ctx context.Context, symbol string, sample clock.Sample) error {
	if sample.PastFlatten {
		s.publish(symbol, events.StageRisk, events.VerdictRejected, "past flatten time, no new entries", nil)
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DataFetchTimeout)
	bars, err := s.data.GetBars(dctx, symbol, types.Timeframe5Min, sample.Now.Add(-3*24*time.Hour), sample.Now)
	cancel()
	if err != nil {
		return err
	}

	fv, err := features.Compute(symbol, bars)
	if err != nil {
		return err
	}

	reg := s.regimeCls.Classify(fv)

	var intents []types.Intent
	for _, a := range s.agentSet {
		if intent, ok := a.Evaluate(fv, reg, bars); ok {
			intents = append(intents, intent)
		}
	}

	arb, ok := ensemble.Arbitrate(intents, ensemble.WeightsFromProducers(s.agentSet), reg)
	if !ok {
		s.publish(symbol, events.StageEnsemble, events.VerdictSkipped, "no agent produced an intent", nil)
		return nil
	}

	rlPred, rlOK := s.rlPred.Predict(fv)
	winner := ensemble.Blend(arb.Winner, rlPred, rlOK)

	if winner.Direction == types.SignalFlat || decimal.NewFromFloat(winner.Confidence).LessThan(s.cfg.ConfidenceThreshold) {
		s.publish(symbol, events.StageEnsemble, events.VerdictRejected, "below confidence threshold", map[string]any{"confidence": winner.Confidence})
		return nil
	}
	s.publish(symbol, events.StageEnsemble, events.VerdictAccepted, winner.Reasoning, map[string]any{"confidence": winner.Confidence, "direction": string(winner.Direction)})

	cctx, cancel := context.WithTimeout(ctx, s.cfg.DataFetchTimeout)
	chain, err := s.data.GetChain(cctx, symbol, nil)
	cancel()
	if err != nil {
		return err
	}
	filtered, counters := options.Filter(chain, s.filterCfg)
	s.metrics.FilterTotal.Add(float64(counters.Total))
	s.metrics.FilterPassed.Add(float64(counters.Passed))
	s.metrics.FilterTruncated.Add(float64(counters.Truncated))

	selection, err := options.Select(filtered, winner.Direction, decimal.NewFromFloat(fv.LastPrice), decimal.Zero, sample.Now, s.selCfg)
	if err != nil {
		s.publish(symbol, events.StageSelector, events.VerdictRejected, err.Error(), nil)
		return err
	}
	s.publish(symbol, events.StageSelector, events.VerdictAccepted, "contract selected", map[string]any{"option_symbol": selection.Contract.OptionSymbol})

	return s.decideAndExecute(ctx, symbol, winner, selection, sample)
}

// decideAndExecute runs the Risk Stack and sizing stage under decisionMu
// — the critical section spec.md §5 requires serialized across symbols
// — and submits the entry order if every stage accepts.
func (s *Scheduler) decideAndExecute(ctx context.Context, symbol string, winner types.Intent, selection options.Selection, sample clock.Sample) error {
	s.decisionMu.Lock()
	defer s.decisionMu.Unlock()

	if s.portfolio.HasOpenPosition(symbol) {
		// Lost the race: another goroutine opened this underlying while
		// this pipeline was fetching data, under the same mutex.
		return nil
	}
	if len(s.portfolio.All()) >= s.cfg.MaxPositions {
		s.publish(symbol, events.StageRisk, events.VerdictRejected, "max open positions reached", nil)
		return nil
	}

	perContractGreeks := selection.Contract.Greeks
	proposedNotional := selection.Contract.Mid().Mul(decimal.NewFromInt(100))

	stack, err := s.riskMgr.Evaluate(ctx, risk.EvaluateRequest{
		Underlying:       symbol,
		Contract:         selection.Contract,
		CurrentGreeks:    s.currentGreeks(),
		ProposedGreeks:   types.PortfolioGreeks{Delta: perContractGreeks.Delta, Gamma: perContractGreeks.Gamma, Theta: perContractGreeks.Theta, Vega: perContractGreeks.Vega},
		ProposedNotional: proposedNotional,
		AsOf:             sample.Now,
		FilterCfg:        s.filterCfg,
	})
	if err != nil {
		return err
	}
	if !stack.Final.Allowed {
		s.publish(symbol, events.StageRisk, events.VerdictRejected, stack.Final.Reason, nil)
		return risk.AsRiskBlockedError(stack)
	}
	s.publish(symbol, events.StageRisk, events.VerdictAccepted, stack.Final.Reason, nil)

	result := sizing.Final(s.sizingCfg, sizing.Request{
		Equity:            s.equity(),
		ExistingExposure:  s.existingExposure(),
		Confidence:        winner.Confidence,
		RegimeConfidence:  1.0,
		ContractMid:       selection.Contract.Mid(),
		PerContractGreeks: perContractGreeks,
		CurrentGreeks:     s.currentGreeks(),
	}, stack, s.riskMgr)
	if result.Rejected {
		s.publish(symbol, events.StageSizing, events.VerdictRejected, result.RejectReason, nil)
		return nil
	}
	s.publish(symbol, events.StageSizing, events.VerdictAccepted, "sized", map[string]any{"qty": result.FinalQty})

	side := types.OrderBuy
	octx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	defer cancel()
	start := time.Now()
	order, err := s.brokerAdp.ExecuteMarketOrder(octx, selection.Contract.OptionSymbol, result.FinalQty, side)
	s.observeOrderLatency("entry", order, err, start)
	if err != nil {
		s.publish(symbol, events.StageBroker, events.VerdictRejected, err.Error(), nil)
		return err
	}
	if order.Status != types.OrderFilled {
		s.publish(symbol, events.StageBroker, events.VerdictRejected, "order not filled", map[string]any{"status": string(order.Status)})
		return nil
	}

	s.portfolio.Open(types.Position{
		OptionSymbol: selection.Contract.OptionSymbol,
		Underlying:   symbol,
		Qty:          result.FinalQty,
		EntryPrice:   order.FilledAvg,
		EntryTime:    sample.Now,
		Side:         types.PositionLong,
		Strike:       selection.Contract.Strike,
		Expiration:   selection.Contract.Expiration,
		OptionType:   selection.Contract.OptionType,
		CurrentPrice: order.FilledAvg,
		InstrumentType: types.InstrumentOption,
		Greeks:       perContractGreeks,
	})
	s.riskMgr.RecordTradeOpened()
	s.riskMgr.RecordIV(symbol, selection.Contract.ImpliedVol)
	s.publish(symbol, events.StageBroker, events.VerdictAccepted, "entry filled", map[string]any{"qty": result.FinalQty, "fill": order.FilledAvg.String()})
	return nil
}

// flatten issues closes for every open position concurrently, bounded by
// a small workers.Queue fan-out (spec.md §4.13 "FLATTENING issues closes
// for all positions") — a distinct concern from the per-symbol conc pool
// that runs RUNNING-phase pipelines.
func (s *Scheduler) flatten(ctx context.Context) {
	positions := s.portfolio.All()
	if len(positions) == 0 {
		return
	}
	q := workers.NewQueue(s.cfg.MaxWorkers)
	tasks := make([]workers.Task, len(positions))
	for i, pos := range positions {
		pos := pos
		tasks[i] = func(tctx context.Context) error {
			s.decisionMu.Lock()
			defer s.decisionMu.Unlock()
			start := time.Now()
			order, err := s.brokerAdp.ExecuteMarketOrder(tctx, pos.OptionSymbol, pos.Qty, types.OrderSell)
			s.observeOrderLatency("flatten", order, err, start)
			if err != nil {
				s.logger.Error("flatten: close failed", zap.String("underlying", pos.Underlying), zap.Error(err))
				return err
			}
			if order.Status == types.OrderFilled {
				s.portfolio.ApplyClose(pos.Underlying, pos.Qty)
			}
			s.publish(pos.Underlying, events.StagePortfolio, events.VerdictAccepted, "eod flatten", nil)
			return nil
		}
	}
	fctx, cancel := context.WithTimeout(ctx, s.cfg.ReportBudget)
	defer cancel()
	q.Run(fctx, tasks)
}

// report constructs the daily EndOfDaySnapshot. Persisting or rendering
// it is an external collaborator's responsibility (spec.md §6); this
// method only assembles the value and logs it.
func (s *Scheduler) report(asOf time.Time) types.EndOfDaySnapshot {
	snap := types.EndOfDaySnapshot{
		Date:   asOf,
		Equity: s.equity(),
	}
	s.logger.Info("end of day snapshot", zap.String("equity", snap.Equity.String()))
	return snap
}

// shutdown finishes in-flight broker calls by letting the last running
// cycle's context expire naturally; outgoing orders already in
// submitAndConfirm's polling loop reconcile via ErrOrderUncertain rather
// than leave an undecided outcome (spec.md §5 cancellation semantics).
func (s *Scheduler) shutdown() error {
	s.logger.Info("scheduler shutting down")
	return nil
}

func (s *Scheduler) publish(symbol string, stage events.Stage, verdict events.Verdict, reason string, eventMetrics map[string]any) {
	s.eventsBus.Publish(events.Event{Symbol: symbol, Stage: stage, Verdict: verdict, Reason: reason, Metrics: eventMetrics})
	if verdict == events.VerdictRejected {
		s.metrics.StageRejections.WithLabelValues(string(stage), reason).Inc()
	}
}

func (s *Scheduler) publishExit(symbol string, action portfolio.Action, err error) {
	verdict := events.VerdictAccepted
	reason := string(action.Reason)
	if err != nil {
		verdict = events.VerdictRejected
		reason = err.Error()
	}
	s.publish(symbol, events.StagePortfolio, verdict, reason, map[string]any{"close_qty": action.CloseQty})
}

// observeOrderLatency records submission-to-terminal-status latency for a
// broker order, labeled by kind (entry/exit/flatten) and resulting status.
func (s *Scheduler) observeOrderLatency(kind string, order types.Order, err error, start time.Time) {
	status := string(order.Status)
	if err != nil {
		status = "error"
	}
	s.metrics.BrokerOrderLatency.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}

func (s *Scheduler) equity() decimal.Decimal {
	account, err := s.brokerAdp.GetAccount(context.Background())
	if err != nil {
		return decimal.Zero
	}
	return account.Equity
}

func (s *Scheduler) existingExposure() decimal.Decimal {
	var total decimal.Decimal
	for _, p := range s.portfolio.All() {
		total = total.Add(p.CurrentPrice.Mul(decimal.NewFromInt(p.Qty * 100)))
	}
	return total
}

// currentGreeks sums each open position's per-contract Greeks, scaled by
// its quantity and the 100x option multiplier, into the portfolio-wide
// baseline the caps/UVaR layers evaluate the proposed trade against.
func (s *Scheduler) currentGreeks() types.PortfolioGreeks {
	var agg types.PortfolioGreeks
	multiplier := decimal.NewFromInt(100)
	for _, p := range s.portfolio.All() {
		scale := decimal.NewFromInt(p.Qty).Mul(multiplier)
		agg.Delta = agg.Delta.Add(p.Greeks.Delta.Mul(scale))
		agg.Gamma = agg.Gamma.Add(p.Greeks.Gamma.Mul(scale))
		agg.Theta = agg.Theta.Add(p.Greeks.Theta.Mul(scale))
		agg.Vega = agg.Vega.Add(p.Greeks.Vega.Mul(scale))
	}
	return agg
}

// quoteAdapter adapts the Data Adapter to portfolio.QuoteSource.
type quoteAdapter struct {
	data    *marketdata.Adapter
	timeout time.Duration
}

func (q *quoteAdapter) LiveQuote(optionSymbol string) (decimal.Decimal, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	quote, err := q.data.GetQuote(ctx, optionSymbol)
	if err != nil {
		return decimal.Zero, false
	}
	return quote.Mid(), true
}

func (q *quoteAdapter) ChainClose(optionSymbol string) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
