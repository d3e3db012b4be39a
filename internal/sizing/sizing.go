// Package sizing derives the final contract quantity for a candidate
// option trade (spec.md §4.10 "Final size = base_size × gap_multiplier ×
// iv_multiplier, floored at one contract"). base_size itself is grounded
// in the teacher's internal/sizing/position_sizer.go: a confidence- and
// regime-scaled fraction of equity (POSITION_SIZE_PCT), rather than the
// teacher's full Kelly-criterion machinery, since spec.md §6 already names
// POSITION_SIZE_PCT and PORTFOLIO_HEAT_CAP as the governing constants
// without wiring them to a formula (see DESIGN.md).
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/achavala/tradenova/internal/risk"
	"github.com/achavala/tradenova/pkg/types"
)

// Config mirrors the sizing-relevant subset of internal/config.Config.
type Config struct {
	PositionSizePct  decimal.Decimal
	PortfolioHeatCap decimal.Decimal
}

// Request bundles everything BaseSize and Final need.
type Request struct {
	Equity           decimal.Decimal
	ExistingExposure decimal.Decimal // current notional across all open positions
	Confidence       float64         // ensemble signal confidence, [0,1]
	RegimeConfidence float64         // regime classifier confidence, [0,1]
	ContractMid      decimal.Decimal
	PerContractGreeks types.Greeks
	CurrentGreeks     types.PortfolioGreeks
}

// Result is the final sizing decision.
type Result struct {
	BaseQty          int64
	FinalQty         int64
	GapMultiplier    decimal.Decimal
	IVMultiplier     decimal.Decimal
	ProjectedGreeks  types.PortfolioGreeks
	Rejected         bool
	RejectReason     string
}

const contractMultiplier = 100

// BaseSize computes base_size in dollars: equity × POSITION_SIZE_PCT,
// scaled by ensemble and regime confidence, capped so that adding it to
// existing exposure never exceeds PORTFOLIO_HEAT_CAP of equity.
func BaseSize(cfg Config, req Request) decimal.Decimal {
	confidenceScale := decimal.NewFromFloat(clamp01(req.Confidence) * clamp01(req.RegimeConfidence))
	raw := req.Equity.Mul(cfg.PositionSizePct).Mul(confidenceScale)

	heatCap := req.Equity.Mul(cfg.PortfolioHeatCap)
	headroom := heatCap.Sub(req.ExistingExposure)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}
	if raw.GreaterThan(headroom) {
		raw = headroom
	}
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	return raw
}

// Final applies the Risk Stack's gap/iv multipliers to base_size, floors
// at one contract, and re-checks the Portfolio Greeks Caps at the floored
// quantity — rejecting the trade if even one contract breaches the caps
// (spec.md §4.10's floor/reject rule).
func Final(cfg Config, req Request, stack risk.StackResult, riskMgr *risk.Manager) Result {
	baseDollars := BaseSize(cfg, req)
	perContractCost := req.ContractMid.Mul(decimal.NewFromInt(contractMultiplier))

	var baseQty int64
	if perContractCost.IsPositive() {
		baseQty = baseDollars.Div(perContractCost).IntPart()
	}

	multiplier := stack.GapMultiplier.Mul(stack.IVMultiplier)
	finalQty := decimal.NewFromInt(baseQty).Mul(multiplier).Floor().IntPart()
	if finalQty < 1 {
		finalQty = 1
	}

	projected := scaledGreeks(req.CurrentGreeks, req.PerContractGreeks, finalQty)
	decision := riskMgr.CheckGreeksCaps(req.CurrentGreeks, projected)

	result := Result{
		BaseQty:         baseQty,
		FinalQty:        finalQty,
		GapMultiplier:   stack.GapMultiplier,
		IVMultiplier:    stack.IVMultiplier,
		ProjectedGreeks: projected,
	}
	if !decision.Allowed {
		result.Rejected = true
		result.RejectReason = decision.Reason
	}
	return result
}

func scaledGreeks(current types.PortfolioGreeks, perContract types.Greeks, qty int64) types.PortfolioGreeks {
	n := decimal.NewFromInt(qty * contractMultiplier)
	return types.PortfolioGreeks{
		Delta: current.Delta.Add(perContract.Delta.Mul(n)),
		Gamma: current.Gamma.Add(perContract.Gamma.Mul(n)),
		Theta: current.Theta.Add(perContract.Theta.Mul(n)),
		Vega:  current.Vega.Add(perContract.Vega.Mul(n)),
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
