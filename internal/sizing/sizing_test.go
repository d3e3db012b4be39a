package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/risk"
	"github.com/achavala/tradenova/pkg/types"
)

func defaultConfig() Config {
	return Config{
		PositionSizePct:  decimal.NewFromFloat(0.10),
		PortfolioHeatCap: decimal.NewFromFloat(0.35),
	}
}

func TestBaseSizeScalesByConfidence(t *testing.T) {
	req := Request{Equity: decimal.NewFromInt(100000), Confidence: 0.5, RegimeConfidence: 1.0}
	size := BaseSize(defaultConfig(), req)
	// equity * 0.10 * (0.5*1.0) = 5000
	require.True(t, size.Equal(decimal.NewFromInt(5000)), size.String())
}

func TestBaseSizeCappedByPortfolioHeat(t *testing.T) {
	req := Request{
		Equity:           decimal.NewFromInt(100000),
		ExistingExposure: decimal.NewFromInt(34000), // heat cap is 35000, only 1000 headroom
		Confidence:       1.0,
		RegimeConfidence: 1.0,
	}
	size := BaseSize(defaultConfig(), req)
	require.True(t, size.Equal(decimal.NewFromInt(1000)), size.String())
}

func TestBaseSizeZeroWhenHeatCapExceeded(t *testing.T) {
	req := Request{
		Equity:           decimal.NewFromInt(100000),
		ExistingExposure: decimal.NewFromInt(40000), // already over the 35000 heat cap
		Confidence:       1.0,
		RegimeConfidence: 1.0,
	}
	size := BaseSize(defaultConfig(), req)
	require.True(t, size.IsZero())
}

func TestFinalFloorsAtOneContract(t *testing.T) {
	riskMgr := risk.NewManager(risk.DefaultConfig(), risk.NoCalendar{}, risk.NoReturnSource{}, zap.NewNop())
	stack := risk.StackResult{GapMultiplier: decimal.NewFromInt(1), IVMultiplier: decimal.NewFromInt(1)}
	req := Request{
		Equity:           decimal.NewFromInt(100000),
		Confidence:       0.01, // tiny base_size
		RegimeConfidence: 1.0,
		ContractMid:      decimal.NewFromFloat(5.00),
	}
	result := Final(defaultConfig(), req, stack, riskMgr)
	require.False(t, result.Rejected)
	require.Equal(t, int64(1), result.FinalQty)
}

func TestFinalRejectsWhenFlooredQtyBreachesGreeksCaps(t *testing.T) {
	riskMgr := risk.NewManager(risk.DefaultConfig(), risk.NoCalendar{}, risk.NoReturnSource{}, zap.NewNop())
	stack := risk.StackResult{GapMultiplier: decimal.NewFromInt(1), IVMultiplier: decimal.NewFromInt(1)}
	req := Request{
		Equity:            decimal.NewFromInt(100000),
		Confidence:        1.0,
		RegimeConfidence:  1.0,
		ContractMid:       decimal.NewFromFloat(1.00),
		PerContractGreeks: types.Greeks{Delta: decimal.NewFromInt(10000)}, // absurdly high per-contract delta
	}
	result := Final(defaultConfig(), req, stack, riskMgr)
	require.True(t, result.Rejected)
	require.NotEmpty(t, result.RejectReason)
}

func TestFinalAppliesGapAndIVMultipliers(t *testing.T) {
	riskMgr := risk.NewManager(risk.DefaultConfig(), risk.NoCalendar{}, risk.NoReturnSource{}, zap.NewNop())
	stack := risk.StackResult{GapMultiplier: decimal.NewFromFloat(0.5), IVMultiplier: decimal.NewFromFloat(0.8)}
	req := Request{
		Equity:           decimal.NewFromInt(1000000),
		Confidence:       1.0,
		RegimeConfidence: 1.0,
		ContractMid:      decimal.NewFromFloat(1.00),
	}
	result := Final(defaultConfig(), req, stack, riskMgr)
	require.False(t, result.Rejected)
	// base_size = 1000000*0.10 = 100000; base_qty = 100000/100 = 1000
	// final = floor(1000 * 0.5 * 0.8) = 400
	require.Equal(t, int64(400), result.FinalQty)
}
