package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/config"
	"github.com/achavala/tradenova/pkg/types"
)

func testConfig() config.Config {
	return config.Config{
		StopLossPct: decimal.NewFromFloat(0.20),
		TPLadder: []config.TPLevel{
			{ThresholdPct: decimal.NewFromFloat(0.40), CloseFraction: decimal.NewFromFloat(0.50)},
			{ThresholdPct: decimal.NewFromFloat(0.60), CloseFraction: decimal.NewFromFloat(0.20)},
			{ThresholdPct: decimal.NewFromFloat(1.00), CloseFraction: decimal.NewFromFloat(0.10)},
			{ThresholdPct: decimal.NewFromFloat(1.50), CloseFraction: decimal.NewFromFloat(0.10)},
			{ThresholdPct: decimal.NewFromFloat(2.00), CloseFraction: decimal.NewFromFloat(1.00)},
		},
		TrailingArmTP: 4,
	}
}

func fixturePosition(underlying string, qty int64, entry, current decimal.Decimal) types.Position {
	return types.Position{
		OptionSymbol: underlying + "_OPT",
		Underlying:   underlying,
		Qty:          qty,
		EntryPrice:   entry,
		CurrentPrice: current,
		Expiration:   time.Now().Add(20 * 24 * time.Hour),
	}
}

func TestFlattenOutranksEverythingElse(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(1), decimal.NewFromFloat(5.00)) // deep in profit
	action, fires := m.Evaluate(pos, time.Now(), true /* forceExit */, true /* flattenNow */)
	require.True(t, fires)
	require.Equal(t, ExitFlatten, action.Reason)
}

func TestForceExitOutranksStopLossAndTakeProfit(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(1), decimal.NewFromFloat(5.00))
	action, fires := m.Evaluate(pos, time.Now(), true, false)
	require.True(t, fires)
	require.Equal(t, ExitGapRisk, action.Reason)
}

func TestStopLossFires(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(7.00)) // -30%
	action, fires := m.Evaluate(pos, time.Now(), false, false)
	require.True(t, fires)
	require.Equal(t, ExitStopLoss, action.Reason)
	require.Equal(t, int64(10), action.CloseQty)
}

func TestTieredTakeProfitFiresNextUnreachedRung(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(15.00)) // +50%
	action, fires := m.Evaluate(pos, time.Now(), false, false)
	require.True(t, fires)
	require.Equal(t, ExitTakeProfit, action.Reason)
	require.Equal(t, int64(5), action.CloseQty) // 50% of 10
}

func TestTakeProfitArmsTrailingAtConfiguredRung(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(25.00)) // +150%, meets TPLadder[3]
	pos.TPLevelReached = 3                                                                 // next rung is level 4 == TrailingArmTP
	action, fires := m.Evaluate(pos, time.Now(), false, false)
	require.True(t, fires)
	require.True(t, action.ArmTrailing)
}

func TestTrailingStopFiresOnPullback(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(27.00)) // +170%
	pos.TrailingArmed = true
	pos.HighestProfitPct = decimal.NewFromFloat(2.00) // ran up to +200%; pullback band is ~12.7% here
	action, fires := m.Evaluate(pos, time.Now(), false, false)
	require.True(t, fires)
	require.Equal(t, ExitTrailing, action.Reason)
}

func TestTrailingStopHoldsWithinBand(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(29.50)) // +195%, within the pullback band of +200% high
	pos.TPLevelReached = 4                                                                 // trailing arms at TP4; next rung (+200%) not yet met
	pos.TrailingArmed = true
	pos.HighestProfitPct = decimal.NewFromFloat(2.00)
	_, fires := m.Evaluate(pos, time.Now(), false, false)
	require.False(t, fires)
}

func TestDTEExitFiresNearExpirationWhenUnprofitable(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(10.50)) // +5%, below the 50% DTE gate
	pos.Expiration = time.Now().Add(12 * time.Hour)                                        // DTE <= 1
	action, fires := m.Evaluate(pos, time.Now(), false, false)
	require.True(t, fires)
	require.Equal(t, ExitDTE, action.Reason)
}

func TestNoActionWhenNothingFires(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(10.10))
	_, fires := m.Evaluate(pos, time.Now(), false, false)
	require.False(t, fires)
}

func TestHasOpenPositionAndGetAndAll(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	require.False(t, m.HasOpenPosition("AAPL"))
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10)))
	require.True(t, m.HasOpenPosition("AAPL"))
	p, ok := m.Get("AAPL")
	require.True(t, ok)
	require.Equal(t, "AAPL", p.Underlying)
	require.Len(t, m.All(), 1)
}

func TestRestoreSeedsPositionTable(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Restore([]types.Position{
		fixturePosition("AAPL", 5, decimal.NewFromInt(10), decimal.NewFromInt(10)),
		fixturePosition("MSFT", 3, decimal.NewFromInt(20), decimal.NewFromInt(20)),
	})
	require.True(t, m.HasOpenPosition("AAPL"))
	require.True(t, m.HasOpenPosition("MSFT"))
}

func TestApplyCloseRemovesPositionWhenFullyClosed(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10)))
	m.ApplyClose("AAPL", 10)
	require.False(t, m.HasOpenPosition("AAPL"))
}

func TestApplyClosePartialLeavesRemainder(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10)))
	m.ApplyClose("AAPL", 4)
	p, ok := m.Get("AAPL")
	require.True(t, ok)
	require.Equal(t, int64(6), p.Qty)
}

func TestUpdateAfterActionAdvancesTPLevelAndArmsTrailing(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(25.00)) // +150%
	pos.TPLevelReached = 3                                                                 // next rung is TP4, which arms trailing
	m.Open(pos)
	action, fires := m.Evaluate(pos, time.Now(), false, false)
	require.True(t, fires)
	m.UpdateAfterAction(action)

	p, ok := m.Get("AAPL")
	require.True(t, ok)
	require.Equal(t, 4, p.TPLevelReached)
	require.True(t, p.TrailingArmed)
	require.Less(t, p.Qty, int64(10))
}

func TestUpdateAfterActionClearsPositionWhenFullyClosed(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	pos := fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10))
	m.Open(pos)
	m.UpdateAfterAction(Action{Position: pos, Reason: ExitStopLoss, CloseQty: 10})
	require.False(t, m.HasOpenPosition("AAPL"))
}

type fakeQuoteSource struct {
	livePrice  decimal.Decimal
	liveOK     bool
	chainPrice decimal.Decimal
	chainOK    bool
}

func (s fakeQuoteSource) LiveQuote(string) (decimal.Decimal, bool)  { return s.livePrice, s.liveOK }
func (s fakeQuoteSource) ChainClose(string) (decimal.Decimal, bool) { return s.chainPrice, s.chainOK }

func TestMarkToMarketPrefersLiveQuote(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10)))
	marked, ok := m.MarkToMarket("AAPL", fakeQuoteSource{livePrice: decimal.NewFromFloat(12.50), liveOK: true})
	require.True(t, ok)
	require.True(t, marked.CurrentPrice.Equal(decimal.NewFromFloat(12.50)))
}

func TestMarkToMarketFallsBackToChainClose(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10)))
	marked, ok := m.MarkToMarket("AAPL", fakeQuoteSource{chainPrice: decimal.NewFromFloat(11.25), chainOK: true})
	require.True(t, ok)
	require.True(t, marked.CurrentPrice.Equal(decimal.NewFromFloat(11.25)))
}

func TestMarkToMarketFallsBackToLastKnownPrice(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromFloat(11.00)))
	marked, ok := m.MarkToMarket("AAPL", fakeQuoteSource{})
	require.True(t, ok)
	require.True(t, marked.CurrentPrice.Equal(decimal.NewFromFloat(11.00)))
}

func TestMarkToMarketTracksHighestProfitPct(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	m.Open(fixturePosition("AAPL", 10, decimal.NewFromInt(10), decimal.NewFromInt(10)))
	_, _ = m.MarkToMarket("AAPL", fakeQuoteSource{livePrice: decimal.NewFromFloat(20.00), liveOK: true})
	marked, _ := m.MarkToMarket("AAPL", fakeQuoteSource{livePrice: decimal.NewFromFloat(15.00), liveOK: true})
	require.True(t, marked.HighestProfitPct.Equal(decimal.NewFromFloat(1.00)), marked.HighestProfitPct.String())
}

func TestMarkToMarketReturnsFalseWhenNoPosition(t *testing.T) {
	m := New(testConfig(), zap.NewNop())
	_, ok := m.MarkToMarket("AAPL", fakeQuoteSource{})
	require.False(t, ok)
}
