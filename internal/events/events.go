// Package events carries the observable signals every riskmesh operation
// emits: risk assessments, threshold breaches, AI results, reward movements.
//
// Services hold an Emitter. The production Emitter is a Bus that stamps each
// signal with an ID and time and fans it out to sinks (the websocket hub, the
// signal log, metrics). Emission is fire-and-forget: a failing sink is logged
// and counted, never surfaced to the operation that produced the signal.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/riskmesh/internal/idgen"
	"github.com/mbd888/riskmesh/internal/metrics"
)

// Type names a signal.
type Type string

const (
	ModelRegistered         Type = "model.registered"
	ResultSubmitted         Type = "result.submitted"
	ResultVerified          Type = "result.verified"
	RiskAssessed            Type = "risk.assessed"
	RiskThresholdBreached   Type = "risk.threshold_breached"
	RiskThresholdSet        Type = "risk.threshold_set"
	OracleSourceAdded       Type = "oracle.source_added"
	OracleSourceDeactivated Type = "oracle.source_deactivated"
	OracleSourceUpdated     Type = "oracle.source_updated"
	RewardFunded            Type = "reward.funded"
	RewardDistributed       Type = "reward.distributed"
	RewardClaimed           Type = "reward.claimed"
	RoleGranted             Type = "role.granted"
	RoleRevoked             Type = "role.revoked"
)

// Signal is one emitted notification. Seq is assigned by the signal log and
// is zero until the signal has been persisted.
type Signal struct {
	Seq       int64                  `json:"seq,omitempty"`
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, t Type, data map[string]interface{})
}

// Sink receives every signal a Bus emits.
type Sink interface {
	Deliver(ctx context.Context, sig *Signal) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, sig *Signal) error

func (f SinkFunc) Deliver(ctx context.Context, sig *Signal) error { return f(ctx, sig) }

type namedSink struct {
	name string
	sink Sink
}

// Bus is the production Emitter.
type Bus struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a bus with no sinks.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger, now: time.Now}
}

// WithSink registers a sink under name (used as the metrics label).
func (b *Bus) WithSink(name string, s Sink) *Bus {
	b.mu.Lock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: s})
	b.mu.Unlock()
	return b
}

// WithClock overrides the timestamp source.
func (b *Bus) WithClock(now func() time.Time) *Bus {
	b.now = now
	return b
}

// Emit stamps and delivers a signal to every sink in registration order.
func (b *Bus) Emit(ctx context.Context, t Type, data map[string]interface{}) {
	if b == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	sig := &Signal{
		ID:        idgen.Signal(),
		Type:      t,
		Timestamp: b.now().UTC(),
		Data:      data,
	}
	metrics.SignalsEmittedTotal.WithLabelValues(string(t)).Inc()

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	// Sinks must not observe the caller's cancellation; the operation that
	// produced the signal has already committed.
	dctx := context.WithoutCancel(ctx)
	for _, ns := range sinks {
		if err := ns.sink.Deliver(dctx, sig); err != nil {
			metrics.SignalSinkErrors.WithLabelValues(ns.name).Inc()
			b.logger.Warn("signal delivery failed", "sink", ns.name, "type", t, "error", err)
		}
	}
}

// Nop discards every signal.
type Nop struct{}

func (Nop) Emit(context.Context, Type, map[string]interface{}) {}

// Recorder keeps emitted signals in memory. It is used by tests and by the
// in-process CLI demo mode.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(_ context.Context, t Type, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, Signal{
		ID:        idgen.Signal(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// Signals returns a copy of everything recorded so far.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// OfType returns recorded signals of type t, in emission order.
func (r *Recorder) OfType(t Type) []Signal {
	var out []Signal
	for _, s := range r.Signals() {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.signals = nil
	r.mu.Unlock()
}
