// Package events implements the structured decision-event channel spec.md
// §6 "Emitted to collaborators" describes: one Event per stage rejection
// or acceptance, subscribed to by observability collaborators. Adapted
// down from the teacher's internal/events/event_bus.go, which modeled a
// generic high-throughput market-tick bus unrelated to this spec's single
// decision-observability concern — no component here imports another for
// side effects (spec.md §9 "cross-component callbacks" redesign).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage names the pipeline stage an Event was emitted from.
type Stage string

const (
	StageData      Stage = "data"
	StageFeatures  Stage = "features"
	StageRegime    Stage = "regime"
	StageEnsemble  Stage = "ensemble"
	StageSelector  Stage = "option_selector"
	StageRisk      Stage = "risk"
	StageSizing    Stage = "sizing"
	StageBroker    Stage = "broker"
	StagePortfolio Stage = "portfolio"
)

// Verdict is the stage's outcome.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
	VerdictSkipped  Verdict = "skipped"
)

// Event is the wire shape spec.md §6 names:
// {ts, symbol, stage, verdict, reason, metrics}.
type Event struct {
	ID        string
	Timestamp time.Time
	Symbol    string
	Stage     Stage
	Verdict   Verdict
	Reason    string
	Metrics   map[string]any
}

// Subscriber receives every published Event. Implementations must not
// block; Bus.Publish drops the event for a subscriber whose channel is
// full rather than stall the pipeline.
type Subscriber chan Event

// Bus fans a single stream of decision events out to any number of
// subscribers (dashboards, loggers, metrics exporters). The pipeline
// stages are the only publishers; nothing here calls back into the
// pipeline.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]Subscriber
}

// New constructs an empty Bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{logger: logger.Named("events"), subscribers: make(map[string]Subscriber)}
}

// Subscribe registers a new subscriber with a bounded buffer and returns
// an unsubscribe function.
func (b *Bus) Subscribe(buffer int) (Subscriber, func()) {
	id := uuid.New().String()
	ch := make(Subscriber, buffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		close(ch)
	}
}

// Publish emits an event to every subscriber and logs it at Info (§6
// "every stage rejection or acceptance" is also a structured log line).
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.logger.Info("decision event",
		zap.String("symbol", e.Symbol),
		zap.String("stage", string(e.Stage)),
		zap.String("verdict", string(e.Verdict)),
		zap.String("reason", e.Reason),
	)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- e:
		default:
			b.logger.Warn("subscriber channel full, dropping event", zap.String("symbol", e.Symbol), zap.String("stage", string(e.Stage)))
		}
	}
}
