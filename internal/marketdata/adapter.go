// Package marketdata implements the Data Adapter (spec.md §4.2): bars and
// options chains from an external vendor, normalized before the rest of the
// pipeline ever sees them. A primary source is tried first; a fallback
// source is tried on empty result or error, within a short budget.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/achavala/tradenova/internal/tradeerr"
	"github.com/achavala/tradenova/pkg/types"
)

// MinBars is the minimum bar count the Data Adapter must produce for a
// requested window before the rest of the pipeline is allowed to run.
const MinBars = 30

// Source is one vendor backing the Data Adapter. Both the primary and
// fallback sources implement this same contract.
type Source interface {
	Name() string
	GetBars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error)
	GetChain(ctx context.Context, symbol string, expiration *time.Time) ([]types.OptionContract, error)
	GetQuote(ctx context.Context, optionSymbol string) (types.OptionContract, error)
}

// Config configures the Adapter's fallback behavior.
type Config struct {
	MinBars        int
	FallbackBudget time.Duration
}

// DefaultConfig mirrors spec.md's stated MIN_BARS=30 default and a fallback
// budget bounded well under the Data Adapter's own 10s fetch deadline.
func DefaultConfig() Config {
	return Config{MinBars: MinBars, FallbackBudget: 4 * time.Second}
}

// Adapter is the Data Adapter. It holds no per-cycle cache: spec.md §4.2
// states no caching is assumed across cycles.
type Adapter struct {
	logger   *zap.Logger
	cfg      Config
	primary  Source
	fallback Source
}

// New constructs an Adapter. fallback may be nil, in which case only the
// primary source is consulted.
func New(logger *zap.Logger, cfg Config, primary, fallback Source) *Adapter {
	return &Adapter{logger: logger.Named("marketdata"), cfg: cfg, primary: primary, fallback: fallback}
}

// GetBars fetches bars for symbol/timeframe/window, trying the primary
// source then the fallback. Returns ErrDataUnavailable if neither source
// returns at least cfg.MinBars bars.
func (a *Adapter) GetBars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	bars, err := a.primary.GetBars(ctx, symbol, tf, start, end)
	if err == nil && len(bars) >= a.cfg.MinBars {
		return sortedByTimestamp(bars), nil
	}
	if err != nil {
		a.logger.Warn("primary bar source failed", zap.String("symbol", symbol), zap.String("source", a.primary.Name()), zap.Error(err))
	}

	if a.fallback == nil {
		return nil, fmt.Errorf("%w: %s returned %d bars (need %d)", tradeerr.ErrDataUnavailable, a.primary.Name(), len(bars), a.cfg.MinBars)
	}

	fctx, cancel := context.WithTimeout(ctx, a.cfg.FallbackBudget)
	defer cancel()
	fbars, ferr := a.fallback.GetBars(fctx, symbol, tf, start, end)
	if ferr != nil || len(fbars) < a.cfg.MinBars {
		return nil, fmt.Errorf("%w: both sources insufficient for %s", tradeerr.ErrDataUnavailable, symbol)
	}
	return sortedByTimestamp(fbars), nil
}

// GetChain fetches the options chain for symbol, stripping any vendor
// ticker prefix from every contract before returning. Returns
// ErrDataUnavailable if the chain is empty from both sources.
func (a *Adapter) GetChain(ctx context.Context, symbol string, expiration *time.Time) ([]types.OptionContract, error) {
	chain, err := a.primary.GetChain(ctx, symbol, expiration)
	if err == nil && len(chain) > 0 {
		return normalizeChain(chain), nil
	}
	if err != nil {
		a.logger.Warn("primary chain source failed", zap.String("symbol", symbol), zap.Error(err))
	}

	if a.fallback == nil {
		return nil, fmt.Errorf("%w: empty chain for %s", tradeerr.ErrDataUnavailable, symbol)
	}

	fctx, cancel := context.WithTimeout(ctx, a.cfg.FallbackBudget)
	defer cancel()
	fchain, ferr := a.fallback.GetChain(fctx, symbol, expiration)
	if ferr != nil || len(fchain) == 0 {
		return nil, fmt.Errorf("%w: empty chain for %s from both sources", tradeerr.ErrDataUnavailable, symbol)
	}
	return normalizeChain(fchain), nil
}

// GetQuote fetches a fresh quote for a single option symbol, used by the
// Risk Stack's redundant liquidity re-check (§4.10 layer 2) and Position
// Manager mark-to-market.
func (a *Adapter) GetQuote(ctx context.Context, optionSymbol string) (types.OptionContract, error) {
	optionSymbol = types.StripVendorPrefix(optionSymbol)
	q, err := a.primary.GetQuote(ctx, optionSymbol)
	if err == nil {
		q.OptionSymbol = types.StripVendorPrefix(q.OptionSymbol)
		return q, nil
	}
	if a.fallback == nil {
		return types.OptionContract{}, fmt.Errorf("%w: quote for %s: %v", tradeerr.ErrDataUnavailable, optionSymbol, err)
	}
	fctx, cancel := context.WithTimeout(ctx, a.cfg.FallbackBudget)
	defer cancel()
	fq, ferr := a.fallback.GetQuote(fctx, optionSymbol)
	if ferr != nil {
		return types.OptionContract{}, fmt.Errorf("%w: quote for %s from both sources", tradeerr.ErrDataUnavailable, optionSymbol)
	}
	fq.OptionSymbol = types.StripVendorPrefix(fq.OptionSymbol)
	return fq, nil
}

func normalizeChain(chain []types.OptionContract) []types.OptionContract {
	out := make([]types.OptionContract, len(chain))
	for i, c := range chain {
		c.OptionSymbol = types.StripVendorPrefix(c.OptionSymbol)
		c.Underlying = types.StripVendorPrefix(c.Underlying)
		out[i] = c
	}
	return out
}

func sortedByTimestamp(bars []types.Bar) []types.Bar {
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Timestamp.Before(out[j-1].Timestamp); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
