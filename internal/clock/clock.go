// Package clock implements the Market Clock (spec.md §4.1): the canonical
// open/pre/after/closed phase and the single now() sample threaded through
// a trading cycle. The broker's reported clock is authoritative when
// available; wall-clock in the configured exchange time zone is the
// fallback.
package clock

import (
	"context"
	"fmt"
	"time"
)

// Phase is the session phase the Market Clock reports.
type Phase string

const (
	PhasePreMarket  Phase = "PRE_MARKET"
	PhaseOpen       Phase = "OPEN"
	PhaseAfterHours Phase = "AFTER_HOURS"
	PhaseClosed     Phase = "CLOSED"
)

// BrokerClock is the external collaborator a Market Clock prefers, when
// reachable, over wall-clock inference (spec.md §6 "clock endpoint").
type BrokerClock interface {
	// Now returns the broker's authoritative market time and whether the
	// market is open, per its own session calendar (accounts for
	// holidays and early closes that wall-clock inference cannot see).
	Now(ctx context.Context) (now time.Time, isOpen bool, err error)
}

// Config holds the session-window times (parsed "HH:MM" in Timezone) the
// Market Clock uses when falling back to wall-clock inference.
type Config struct {
	Timezone     string
	WarmupTime   string // e.g. "08:00"
	SessionOpen  string // e.g. "09:30"
	FlattenTime  string // e.g. "15:50"
	SessionClose string // e.g. "16:00"
}

// Clock is the Market Clock. It is safe for concurrent use; Sample is
// intended to be called exactly once per cycle and its result threaded
// through every component that needs "now".
type Clock struct {
	cfg      Config
	loc      *time.Location
	broker   BrokerClock
	fallbackGrace time.Duration
}

// New constructs a Clock. broker may be nil, in which case the clock always
// falls back to wall-clock inference.
func New(cfg Config, broker BrokerClock) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clock: load timezone %q: %w", cfg.Timezone, err)
	}
	return &Clock{cfg: cfg, loc: loc, broker: broker, fallbackGrace: 5 * time.Second}, nil
}

// Sample is a single (now, phase, marketOpen) observation. Every component
// in a cycle receives the same Sample rather than calling time.Now()
// independently.
type Sample struct {
	Now         time.Time
	Phase       Phase
	MarketOpen  bool
	FromBroker  bool
	PastFlatten bool // sample.Now is at or after the configured FlattenTime
}

// Sample takes one authoritative reading: the broker clock if reachable
// within fallbackGrace, else wall-clock inference in the configured
// timezone.
func (c *Clock) Sample(ctx context.Context) Sample {
	if c.broker != nil {
		ctx, cancel := context.WithTimeout(ctx, c.fallbackGrace)
		defer cancel()
		now, open, err := c.broker.Now(ctx)
		if err == nil {
			return Sample{Now: now, Phase: c.phaseFor(now, open), MarketOpen: open, FromBroker: true, PastFlatten: c.pastFlatten(now)}
		}
	}
	now := time.Now().In(c.loc)
	return Sample{Now: now, Phase: c.phaseFor(now, c.inferOpen(now)), MarketOpen: c.inferOpen(now), FromBroker: false, PastFlatten: c.pastFlatten(now)}
}

// pastFlatten reports whether now has reached the configured FlattenTime
// (spec.md §4.11 "End-of-day flatten at 15:50"), independent of the
// OPEN→CLOSE session window phaseFor derives from SessionClose.
func (c *Clock) pastFlatten(now time.Time) bool {
	local := now.In(c.loc)
	return !local.Before(parseClockTime(local, c.cfg.FlattenTime))
}

func (c *Clock) phaseFor(now time.Time, marketOpen bool) Phase {
	local := now.In(c.loc)
	warmup := parseClockTime(local, c.cfg.WarmupTime)
	open := parseClockTime(local, c.cfg.SessionOpen)
	close_ := parseClockTime(local, c.cfg.SessionClose)

	switch {
	case local.Before(warmup):
		return PhaseClosed
	case local.Before(open):
		return PhasePreMarket
	case marketOpen && local.Before(close_):
		return PhaseOpen
	case local.Before(close_):
		// wall-clock says regular session hours but the venue itself
		// reports closed (e.g. a market holiday).
		return PhaseClosed
	default:
		return PhaseAfterHours
	}
}

func (c *Clock) inferOpen(now time.Time) bool {
	local := now.In(c.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	open := parseClockTime(local, c.cfg.SessionOpen)
	close_ := parseClockTime(local, c.cfg.SessionClose)
	return !local.Before(open) && local.Before(close_)
}

// parseClockTime anchors an "HH:MM" string to the date component of ref.
func parseClockTime(ref time.Time, hhmm string) time.Time {
	var hour, minute int
	fmt.Sscanf(hhmm, "%d:%d", &hour, &minute)
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
}
