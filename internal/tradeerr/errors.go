// Package tradeerr defines the closed error taxonomy every TradeNova
// component returns into, so the scheduler can decide per-symbol isolation
// versus cycle-wide degradation purely by errors.Is.
package tradeerr

import "errors"

var (
	// ErrDataUnavailable: neither the primary nor fallback market-data
	// source returned enough bars/chain data. Per-symbol, transient: skip
	// the symbol this cycle, do not penalize risk state.
	ErrDataUnavailable = errors.New("tradenova: data unavailable")

	// ErrInsufficientFeatures: fewer than MIN_BARS bars, or an indicator
	// window not fully populated, or a non-finite computed value.
	ErrInsufficientFeatures = errors.New("tradenova: insufficient features")

	// ErrNoLiquidContract: the option selector found no contract passing
	// liquidity and DTE/price constraints.
	ErrNoLiquidContract = errors.New("tradenova: no liquid contract")

	// ErrRiskBlocked: a Risk Stack layer returned a non-pass verdict.
	// Never retried within the cycle.
	ErrRiskBlocked = errors.New("tradenova: risk blocked")

	// ErrBrokerTransient: a 5xx or timeout from the broker. Retried with
	// backoff inside the Broker Adapter; surfaces only after retries are
	// exhausted.
	ErrBrokerTransient = errors.New("tradenova: broker transient error")

	// ErrBrokerPermanent: auth failure or invalid symbol. Surfaces
	// immediately without retry; the scheduler skips the symbol for the
	// current cycle only and keeps no session-wide skip list.
	ErrBrokerPermanent = errors.New("tradenova: broker permanent error")

	// ErrOrderUncertain: a broker call was cancelled before a terminal
	// status was confirmed. PerSymbolIsolated reports false for it, so the
	// scheduler reports it as a cycle error; nothing gates the symbol's
	// next entry on a reconciliation against the broker's positions list.
	ErrOrderUncertain = errors.New("tradenova: order outcome uncertain")

	// ErrSchedulerOverrun: a cycle exceeded CYCLE_PERIOD; the next tick
	// is skipped, not queued.
	ErrSchedulerOverrun = errors.New("tradenova: scheduler cycle overrun")
)

// PerSymbolIsolated reports whether err is one of the error kinds the
// scheduler isolates to a single symbol without aborting the rest of the
// cycle or penalizing global risk state.
func PerSymbolIsolated(err error) bool {
	switch {
	case errors.Is(err, ErrDataUnavailable),
		errors.Is(err, ErrInsufficientFeatures),
		errors.Is(err, ErrNoLiquidContract),
		errors.Is(err, ErrRiskBlocked),
		errors.Is(err, ErrBrokerPermanent):
		return true
	default:
		return false
	}
}
