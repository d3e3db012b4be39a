package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/options"
	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

func liquidContract() types.OptionContract {
	return types.OptionContract{
		Bid:      decimal.NewFromFloat(1.00),
		Ask:      decimal.NewFromFloat(1.05),
		BidSize:  10,
		QuoteAge: time.Second,
	}
}

func baseRequest(underlying string) EvaluateRequest {
	return EvaluateRequest{
		Underlying:       underlying,
		Contract:         liquidContract(),
		ProposedNotional: decimal.NewFromInt(1000),
		AsOf:             time.Now(),
		FilterCfg:        options.DefaultFilterConfig(),
	}
}

type fixedCalendar struct {
	days     int
	hasEvent bool
}

func (f fixedCalendar) DaysUntilEvent(context.Context, string, time.Time) (int, bool, error) {
	return f.days, f.hasEvent, nil
}

func TestEvaluateBlocksOnCriticalGapRisk(t *testing.T) {
	m := NewManager(DefaultConfig(), fixedCalendar{days: 0, hasEvent: true}, NoReturnSource{}, zap.NewNop())
	m.Seed(decimal.NewFromInt(100000))

	result, err := m.Evaluate(context.Background(), baseRequest("AAPL"))
	require.NoError(t, err)
	require.False(t, result.Final.Allowed)
	require.Equal(t, "gap_risk", result.Final.Layer)
	require.Len(t, result.Layers, 1, "no layer should run after gap risk blocks")

	err = AsRiskBlockedError(result)
	require.True(t, errors.Is(err, tradeerr.ErrRiskBlocked))
}

func TestEvaluateBlocksOnIlliquidContract(t *testing.T) {
	m := NewManager(DefaultConfig(), NoCalendar{}, NoReturnSource{}, zap.NewNop())
	m.Seed(decimal.NewFromInt(100000))

	req := baseRequest("AAPL")
	req.Contract.BidSize = 0 // fails PassesSize
	result, err := m.Evaluate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Final.Allowed)
	require.Equal(t, "liquidity_gatekeeper", result.Final.Layer)
	require.Len(t, result.Layers, 2)
}

func TestEvaluateBlocksOnHighIVRank(t *testing.T) {
	m := NewManager(DefaultConfig(), NoCalendar{}, NoReturnSource{}, zap.NewNop())
	m.Seed(decimal.NewFromInt(100000))
	for i := 0; i < 10; i++ {
		m.RecordIV("AAPL", decimal.NewFromFloat(float64(i)))
	}
	m.RecordIV("AAPL", decimal.NewFromFloat(100)) // current reading ranks at the top

	result, err := m.Evaluate(context.Background(), baseRequest("AAPL"))
	require.NoError(t, err)
	require.False(t, result.Final.Allowed)
	require.Equal(t, "iv_regime", result.Final.Layer)
}

func TestEvaluateBlocksOnDailyTradeBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyTradeLimit = 2
	m := NewManager(cfg, NoCalendar{}, NoReturnSource{}, zap.NewNop())
	m.Seed(decimal.NewFromInt(100000))
	m.RecordTradeOpened()
	m.RecordTradeOpened()

	result, err := m.Evaluate(context.Background(), baseRequest("AAPL"))
	require.NoError(t, err)
	require.False(t, result.Final.Allowed)
	require.Equal(t, "daily_trade_budget", result.Final.Layer)
}

func TestEvaluatePassesAllLayersWhenWithinLimits(t *testing.T) {
	m := NewManager(DefaultConfig(), NoCalendar{}, NoReturnSource{}, zap.NewNop())
	m.Seed(decimal.NewFromInt(100000))
	m.RecordIV("AAPL", decimal.NewFromFloat(0.35))
	m.RecordIV("AAPL", decimal.NewFromFloat(0.3)) // current IV ranks 50, inside the pass band

	req := baseRequest("AAPL")
	req.ProposedGreeks = types.PortfolioGreeks{Delta: decimal.NewFromInt(10)}
	result, err := m.Evaluate(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Final.Allowed)
	require.Len(t, result.Layers, 6, "all six layers should have run")
}

func TestCheckGreeksCapsHardViolation(t *testing.T) {
	m := NewManager(DefaultConfig(), NoCalendar{}, NoReturnSource{}, zap.NewNop())
	projected := types.PortfolioGreeks{Delta: decimal.NewFromInt(1000)} // 2x MaxDelta=500
	decision := m.CheckGreeksCaps(types.PortfolioGreeks{}, projected)
	require.False(t, decision.Allowed)
	require.Equal(t, types.RiskBlocked, decision.Level)
}

func TestCheckGreeksCapsSoftViolation(t *testing.T) {
	m := NewManager(DefaultConfig(), NoCalendar{}, NoReturnSource{}, zap.NewNop())
	projected := types.PortfolioGreeks{Delta: decimal.NewFromInt(600)} // 1.2x MaxDelta=500
	decision := m.CheckGreeksCaps(types.PortfolioGreeks{}, projected)
	require.False(t, decision.Allowed)
	require.Equal(t, types.RiskDanger, decision.Level)
}

func TestIVRankNeutralWithThinHistory(t *testing.T) {
	m := NewManager(DefaultConfig(), NoCalendar{}, NoReturnSource{}, zap.NewNop())
	require.True(t, m.IVRank("AAPL").Equal(decimal.NewFromInt(50)))
}

func TestClassifyGapRiskLevels(t *testing.T) {
	level, mult := ClassifyGapRisk(0, true)
	require.Equal(t, GapCritical, level)
	require.True(t, mult.IsZero())

	level, mult = ClassifyGapRisk(5, true)
	require.Equal(t, GapLow, level)
	require.True(t, mult.Equal(decimal.NewFromFloat(0.8)))

	level, _ = ClassifyGapRisk(30, true)
	require.Equal(t, GapNone, level)

	level, _ = ClassifyGapRisk(0, false)
	require.Equal(t, GapNone, level)
}
