package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/agents"
	"github.com/achavala/tradenova/internal/broker"
	"github.com/achavala/tradenova/internal/clock"
	"github.com/achavala/tradenova/internal/config"
	"github.com/achavala/tradenova/internal/events"
	"github.com/achavala/tradenova/internal/marketdata"
	"github.com/achavala/tradenova/internal/metrics"
	"github.com/achavala/tradenova/internal/options"
	"github.com/achavala/tradenova/internal/portfolio"
	"github.com/achavala/tradenova/internal/regime"
	"github.com/achavala/tradenova/internal/risk"
	"github.com/achavala/tradenova/internal/rl"
	"github.com/achavala/tradenova/internal/sizing"
	"github.com/achavala/tradenova/pkg/types"
)

// fakeMarketSource is an uptrending bar series plus a single liquid call
// contract, enough to drive the EMA agent to a LONG intent and the
// selector to a concrete contract.
type fakeMarketSource struct {
	asOf time.Time
}

func (f *fakeMarketSource) Name() string { return "fake" }

func (f *fakeMarketSource) GetBars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	bars := make([]types.Bar, 40)
	base := f.asOf.Add(-40 * time.Minute)
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 0.5
		bars[i] = types.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromFloat(price),
			High:      decimal.NewFromFloat(price + 0.2),
			Low:       decimal.NewFromFloat(price - 0.2),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars, nil
}

func (f *fakeMarketSource) GetChain(ctx context.Context, symbol string, expiration *time.Time) ([]types.OptionContract, error) {
	return []types.OptionContract{
		{
			OptionSymbol: symbol + "240119C00120000",
			Underlying:   symbol,
			Strike:       decimal.NewFromInt(120),
			Expiration:   f.asOf.Add(5 * 24 * time.Hour),
			OptionType:   types.OptionCall,
			Bid:          decimal.NewFromFloat(1.00),
			Ask:          decimal.NewFromFloat(1.05),
			Last:         decimal.NewFromFloat(1.00),
			Volume:       500,
			OpenInterest: 1000,
			BidSize:      10,
			QuoteAge:     time.Second,
		},
	}, nil
}

func (f *fakeMarketSource) GetQuote(ctx context.Context, optionSymbol string) (types.OptionContract, error) {
	return types.OptionContract{Bid: decimal.NewFromFloat(1.00), Ask: decimal.NewFromFloat(1.05)}, nil
}

type fixedBrokerClock struct {
	now time.Time
}

func (f fixedBrokerClock) Now(ctx context.Context) (time.Time, bool, error) {
	return f.now, true, nil
}

func testSchedulerConfig() config.Config {
	return config.Config{
		Universe:            []string{"AAPL"},
		MaxPositions:        5,
		PositionSizePct:     decimal.NewFromFloat(0.10),
		PortfolioHeatCap:    decimal.NewFromFloat(0.50),
		StopLossPct:         decimal.NewFromFloat(0.20),
		TrailingArmTP:       4,
		TPLadder: []config.TPLevel{
			{ThresholdPct: decimal.NewFromFloat(0.40), CloseFraction: decimal.NewFromFloat(0.50)},
			{ThresholdPct: decimal.NewFromFloat(2.00), CloseFraction: decimal.NewFromFloat(1.00)},
		},
		ConfidenceThreshold: decimal.NewFromFloat(0.1),
		DailyTradeLimit:     100,
		MaxDelta:            decimal.NewFromInt(100000),
		MaxGamma:            decimal.NewFromInt(100000),
		MaxThetaPerDay:      decimal.NewFromInt(-100000),
		MaxVega:             decimal.NewFromInt(100000),
		MaxUVaRPct:          decimal.NewFromFloat(0.99),
		CyclePeriod:         time.Minute,
		DataFetchTimeout:    5 * time.Second,
		QuoteTimeout:        5 * time.Second,
		OrderTimeout:        5 * time.Second,
		CycleTimeout:        10 * time.Second,
		ReportBudget:        5 * time.Second,
		MaxWorkers:          2,
	}
}

func newTestScheduler(t *testing.T, brokerHandler http.HandlerFunc) (*Scheduler, *events.Bus) {
	t.Helper()
	return newTestSchedulerAt(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), brokerHandler)
}

func newTestSchedulerAt(t *testing.T, asOf time.Time, brokerHandler http.HandlerFunc) (*Scheduler, *events.Bus) {
	t.Helper()
	srv := httptest.NewServer(brokerHandler)
	t.Cleanup(srv.Close)

	clk, err := clock.New(clock.Config{
		Timezone:     "UTC",
		WarmupTime:   "08:00",
		SessionOpen:  "09:30",
		FlattenTime:  "15:50",
		SessionClose: "16:00",
	}, fixedBrokerClock{now: asOf})
	require.NoError(t, err)

	data := marketdata.New(zap.NewNop(), marketdata.DefaultConfig(), &fakeMarketSource{asOf: asOf}, nil)
	brokerAdp := broker.New(zap.NewNop(), broker.Config{BaseURL: srv.URL, OrderTimeout: 5 * time.Second, OrderPollInterval: 10 * time.Millisecond})
	riskMgr := risk.NewManager(risk.DefaultConfig(), risk.NoCalendar{}, risk.NoReturnSource{}, zap.NewNop())
	riskMgr.Seed(decimal.NewFromInt(1000000))
	portfolioMgr := portfolio.New(testSchedulerConfig(), zap.NewNop())
	eventsBus := events.New(zap.NewNop())
	regimeCls := regime.New(zap.NewNop(), regime.DefaultConfig())

	sched := New(Deps{
		Config:      testSchedulerConfig(),
		Logger:      zap.NewNop(),
		Clock:       clk,
		Data:        data,
		Risk:        riskMgr,
		Portfolio:   portfolioMgr,
		Broker:      brokerAdp,
		Events:      eventsBus,
		Regime:      regimeCls,
		Agents:      agents.Default(),
		RL:          rl.New(rl.NoOpSource{}),
		FilterCfg:   options.DefaultFilterConfig(),
		SelectorCfg: options.DefaultSelectorConfig(),
		SizingCfg:   sizing.Config{PositionSizePct: decimal.NewFromFloat(0.10), PortfolioHeatCap: decimal.NewFromFloat(0.50)},
		Metrics:     metrics.New(),
	})
	return sched, eventsBus
}

func TestRunCycleOpensAPositionOnAFilledEntry(t *testing.T) {
	sched, _ := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/account":
			json.NewEncoder(w).Encode(map[string]interface{}{"equity": 1000000.0, "buying_power": 500000.0, "market_open": true})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/options/orders":
			json.NewEncoder(w).Encode(map[string]string{"id": "o1", "status": "filled"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	err := sched.runCycle(context.Background())
	require.NoError(t, err)

	require.True(t, sched.portfolio.HasOpenPosition("AAPL"))
}

func TestFlattenClosesOpenPositionsAndClearsPortfolio(t *testing.T) {
	var closeOrders int
	sched, bus := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/options/orders":
			closeOrders++
			json.NewEncoder(w).Encode(map[string]string{"id": "o2", "status": "filled"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	sub, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	sched.portfolio.Open(types.Position{
		OptionSymbol: "AAPL240119C00120000",
		Underlying:   "AAPL",
		Qty:          2,
		EntryPrice:   decimal.NewFromFloat(1.00),
		CurrentPrice: decimal.NewFromFloat(1.00),
		Side:         types.PositionLong,
		OptionType:   types.OptionCall,
		Expiration:   time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
	})
	require.True(t, sched.portfolio.HasOpenPosition("AAPL"))

	sched.flatten(context.Background())

	require.Equal(t, 1, closeOrders)
	require.False(t, sched.portfolio.HasOpenPosition("AAPL"))

	select {
	case evt := <-sub:
		require.Equal(t, "AAPL", evt.Symbol)
	default:
		t.Fatal("expected a flatten decision event to be published")
	}
}

func TestFlattenIsANoOpWithNoOpenPositions(t *testing.T) {
	var closeOrders int
	sched, _ := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		closeOrders++
		w.WriteHeader(http.StatusNotFound)
	})

	sched.flatten(context.Background())

	require.Equal(t, 0, closeOrders)
}

func TestTickPhaseTransitionsToFlatteningAtFlattenTimeNotSessionClose(t *testing.T) {
	// 15:55 UTC: past FlattenTime (15:50) but before SessionClose (16:00)
	// and the broker still reports the market open. The RUNNING ->
	// FLATTENING transition must fire anyway.
	asOf := time.Date(2026, 3, 2, 15, 55, 0, 0, time.UTC)
	sched, _ := newTestSchedulerAt(t, asOf, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	sched.setPhase(PhaseRunning)

	require.NoError(t, sched.tickPhase(context.Background()))

	require.Equal(t, PhaseFlattening, sched.Phase())
}

func TestEvaluateEntryRejectsNewEntriesAfterFlattenTime(t *testing.T) {
	var orderAttempts int
	asOf := time.Date(2026, 3, 2, 15, 55, 0, 0, time.UTC)
	sched, bus := newTestSchedulerAt(t, asOf, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/account":
			json.NewEncoder(w).Encode(map[string]interface{}{"equity": 1000000.0, "buying_power": 500000.0, "market_open": true})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/options/orders":
			orderAttempts++
			json.NewEncoder(w).Encode(map[string]string{"id": "o1", "status": "filled"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sub, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	err := sched.runCycle(context.Background())
	require.NoError(t, err)

	require.False(t, sched.portfolio.HasOpenPosition("AAPL"))
	require.Equal(t, 0, orderAttempts)

	select {
	case evt := <-sub:
		require.Equal(t, events.VerdictRejected, evt.Verdict)
		require.Equal(t, "AAPL", evt.Symbol)
	default:
		t.Fatal("expected a rejection decision event to be published")
	}
}

func TestRunCycleOrSkipSkipsWhenAlreadyRunning(t *testing.T) {
	sched, _ := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	sched.mu.Lock()
	sched.cycleRunning = true
	sched.mu.Unlock()

	sched.runCycleOrSkip(context.Background())

	require.Equal(t, float64(0), testutil.ToFloat64(sched.metrics.CyclesRun))
	require.Equal(t, float64(1), testutil.ToFloat64(sched.metrics.CyclesSkipped))
}
