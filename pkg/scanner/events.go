package scanner

import (
	"log/slog"
	"time"
)

// Stage names the part of a probe an event belongs to
type Stage string

const (
	StageDispatch Stage = "dispatch"
	StageDNS      Stage = "dns"
	StageTLS      Stage = "tls"
)

// Event reports one state transition of one target
type Event struct {
	Index    int
	Hostname string
	Stage    Stage
	State    State
	Kind     string // error kind on failed states
	Message  string
	Time     time.Time
}

// EventSink receives state transitions. Emit is called from worker
// goroutines concurrently and must not block for long.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc is a function adapter for EventSink
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) {
	f(e)
}

// Tee fans events out to several sinks in order
type Tee []EventSink

func (t Tee) Emit(e Event) {
	for _, sink := range t {
		sink.Emit(e)
	}
}

// LogAttrs renders e as slog attributes
func (e Event) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int("index", e.Index),
		slog.String("hostname", e.Hostname),
		slog.String("stage", string(e.Stage)),
		slog.String("state", string(e.State)),
	}
	if e.Kind != "" {
		attrs = append(attrs, slog.String("kind", e.Kind))
	}
	if e.Message != "" {
		attrs = append(attrs, slog.String("message", e.Message))
	}
	return attrs
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
