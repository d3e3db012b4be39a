// Package options implements the Option Universe Filter (spec.md §4.8) and
// the Option Selector (spec.md §4.9).
package options

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/achavala/tradenova/pkg/types"
)

// MaxChainSize is the deterministic truncation limit spec.md §4.8 names.
const MaxChainSize = 2000

// FilterConfig holds the liquidity gatekeeper's thresholds.
type FilterConfig struct {
	MinBid       decimal.Decimal
	MaxSpreadPct decimal.Decimal
	MinBidSize   int64
	MaxQuoteAge  time.Duration
	MaxChainSize int
}

// DefaultFilterConfig matches spec.md §4.8's stated predicates.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinBid:       decimal.NewFromFloat(0.01),
		MaxSpreadPct: decimal.NewFromFloat(0.20),
		MinBidSize:   1,
		MaxQuoteAge:  5 * time.Second,
		MaxChainSize: MaxChainSize,
	}
}

// FilterCounters are the observability counters spec.md §4.8 requires the
// filter to emit.
type FilterCounters struct {
	Total           int
	Truncated       int
	BidRejected     int
	SpreadRejected  int
	SizeRejected    int
	AgeRejected     int
	Passed          int
}

// Stamp computes the LiquidityStamp for a single contract against cfg.
func Stamp(c types.OptionContract, cfg FilterConfig) types.LiquidityStamp {
	mid := c.Mid()
	passesSpread := false
	if mid.IsPositive() {
		spreadPct := c.Ask.Sub(c.Bid).Div(mid)
		passesSpread = spreadPct.LessThanOrEqual(cfg.MaxSpreadPct)
	}
	return types.LiquidityStamp{
		PassesBid:       c.Bid.GreaterThan(cfg.MinBid),
		PassesSpreadPct: passesSpread,
		PassesSize:      c.BidSize >= cfg.MinBidSize,
		PassesAge:       c.QuoteAge < cfg.MaxQuoteAge,
	}
}

// Filter applies the liquidity gatekeeper to a freshly fetched chain,
// truncating oversized chains deterministically (strike ascending, then
// expiration) before stamping, and returns only tradable contracts plus
// counters for observability. Filtering twice over the same chain yields
// the same set (idempotent): Filter performs no chain-state mutation.
func Filter(chain []types.OptionContract, cfg FilterConfig) ([]types.OptionContract, FilterCounters) {
	counters := FilterCounters{Total: len(chain)}

	working := chain
	if len(working) > cfg.MaxChainSize {
		working = make([]types.OptionContract, len(chain))
		copy(working, chain)
		sort.Slice(working, func(i, j int) bool {
			if !working[i].Strike.Equal(working[j].Strike) {
				return working[i].Strike.LessThan(working[j].Strike)
			}
			return working[i].Expiration.Before(working[j].Expiration)
		})
		counters.Truncated = len(working) - cfg.MaxChainSize
		working = working[:cfg.MaxChainSize]
	}

	out := make([]types.OptionContract, 0, len(working))
	for _, c := range working {
		stamp := Stamp(c, cfg)
		if !stamp.PassesBid {
			counters.BidRejected++
		}
		if !stamp.PassesSpreadPct {
			counters.SpreadRejected++
		}
		if !stamp.PassesSize {
			counters.SizeRejected++
		}
		if !stamp.PassesAge {
			counters.AgeRejected++
		}
		if stamp.Tradable() {
			out = append(out, c)
			counters.Passed++
		}
	}
	return out, counters
}
