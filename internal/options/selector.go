package options

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

// SelectorConfig bounds the Option Selector's DTE/price search space.
type SelectorConfig struct {
	MinDTE       int
	MaxDTE       int
	PreferredDTE [2]int
	FallbackDTE  [2]int
	PriceFloor   decimal.Decimal
}

// DefaultSelectorConfig matches spec.md §6's recognized defaults.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MinDTE:       0,
		MaxDTE:       30,
		PreferredDTE: [2]int{0, 7},
		FallbackDTE:  [2]int{0, 30},
		PriceFloor:   decimal.NewFromFloat(0.10),
	}
}

// Selection is the Option Selector's output: the chosen contract plus an
// audit trail of the reasoning (spec.md §4.9 "reason_trail").
type Selection struct {
	Contract    types.OptionContract
	ReasonTrail []string
}

// Select picks the single best contract from an already liquidity-filtered
// chain for the given signal direction, underlying price, and per-contract
// price cap (derived from the caller's allocation budget). asOf is the
// scheduler's single per-cycle clock sample, never time.Now(). Returns
// ErrNoLiquidContract with a reason if no candidate survives the DTE/price
// window.
func Select(chain []types.OptionContract, direction types.SignalDirection, underlyingPrice, priceCap decimal.Decimal, asOf time.Time, cfg SelectorConfig) (Selection, error) {
	wantType := types.OptionCall
	if direction == types.SignalShort {
		wantType = types.OptionPut
	}

	dteLow, dteHigh := cfg.PreferredDTE[0], cfg.PreferredDTE[1]
	candidates := filterByTypeAndDTE(chain, wantType, dteLow, dteHigh, asOf, cfg)
	trail := []string{fmt.Sprintf("preferred DTE window [%d,%d]: %d candidates", dteLow, dteHigh, len(candidates))}

	if len(candidates) == 0 {
		dteLow, dteHigh = cfg.FallbackDTE[0], cfg.FallbackDTE[1]
		candidates = filterByTypeAndDTE(chain, wantType, dteLow, dteHigh, asOf, cfg)
		trail = append(trail, fmt.Sprintf("fallback DTE window [%d,%d]: %d candidates", dteLow, dteHigh, len(candidates)))
	}

	priced := candidates[:0:0]
	for _, c := range candidates {
		if c.Mid().LessThan(cfg.PriceFloor) {
			continue
		}
		if priceCap.IsPositive() && c.Mid().GreaterThan(priceCap) {
			continue
		}
		priced = append(priced, c)
	}
	trail = append(trail, fmt.Sprintf("price floor/cap applied: %d candidates", len(priced)))

	if len(priced) == 0 {
		return Selection{}, fmt.Errorf("%w: no candidate within DTE/price window for %s", tradeerr.ErrNoLiquidContract, direction)
	}

	best := priced[0]
	for _, c := range priced[1:] {
		if better(c, best, underlyingPrice, asOf) {
			best = c
		}
	}
	trail = append(trail, fmt.Sprintf("selected %s strike=%s exp=%s", best.OptionSymbol, best.Strike, best.Expiration.Format("2006-01-02")))

	return Selection{Contract: best, ReasonTrail: trail}, nil
}

func filterByTypeAndDTE(chain []types.OptionContract, wantType types.OptionType, dteLow, dteHigh int, asOf time.Time, cfg SelectorConfig) []types.OptionContract {
	out := make([]types.OptionContract, 0, len(chain))
	for _, c := range chain {
		if c.OptionType != wantType {
			continue
		}
		dte := c.DTE(asOf)
		if dte < cfg.MinDTE || dte > cfg.MaxDTE {
			continue
		}
		if dte < dteLow || dte > dteHigh {
			continue
		}
		out = append(out, c)
	}
	return out
}

// better reports whether candidate beats current under the spec's
// lexicographic tiebreak tuple: (1) closest DTE, (2) smallest |strike-
// price|, (3) tightest spread pct, (4) higher volume, (5) higher open
// interest, (6) lower price.
func better(candidate, current types.OptionContract, underlyingPrice decimal.Decimal, asOf time.Time) bool {
	cDTE, curDTE := candidate.DTE(asOf), current.DTE(asOf)
	if cDTE != curDTE {
		return cDTE < curDTE
	}

	cDist := candidate.Strike.Sub(underlyingPrice).Abs()
	curDist := current.Strike.Sub(underlyingPrice).Abs()
	if !cDist.Equal(curDist) {
		return cDist.LessThan(curDist)
	}

	cSpread := spreadPct(candidate)
	curSpread := spreadPct(current)
	if !cSpread.Equal(curSpread) {
		return cSpread.LessThan(curSpread)
	}

	if candidate.Volume != current.Volume {
		return candidate.Volume > current.Volume
	}

	if candidate.OpenInterest != current.OpenInterest {
		return candidate.OpenInterest > current.OpenInterest
	}

	return candidate.Mid().LessThan(current.Mid())
}

func spreadPct(c types.OptionContract) decimal.Decimal {
	mid := c.Mid()
	if !mid.IsPositive() {
		return decimal.NewFromInt(1 << 20)
	}
	return c.Ask.Sub(c.Bid).Div(mid)
}
