package access

import (
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/sysfs"
)

// Hook receives events emitted by the tracker.
type Hook interface {
	OnEvent(event Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(event Event)

func (f HookFunc) OnEvent(event Event) { f(event) }

// Sink receives every attempt after it has been applied, e.g. a journal.
type Sink interface {
	Record(attempt sysfs.ReadAttempt)
}

// Tracker implements sysfs.Recorder on top of a Store.
type Tracker struct {
	store  Store
	hooks  []Hook
	sinks  []Sink
	logger logger.Logger
}

func NewTracker(store Store, log logger.Logger, hooks ...Hook) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Tracker{store: store, hooks: hooks, logger: log}
}

// AddSink registers s. Not safe to call concurrently with Record.
func (t *Tracker) AddSink(s Sink) {
	t.sinks = append(t.sinks, s)
}

func (t *Tracker) Record(attempt sysfs.ReadAttempt) {
	stats, events := t.store.Apply(attempt)

	for _, s := range t.sinks {
		s.Record(attempt)
	}

	for _, ev := range events {
		t.eventLog(ev.Attempt.Outcome).
			Str("path", ev.Path).
			Str("outcome", ev.Attempt.Outcome.String()).
			Int("failures", stats.FailureCount).
			Msg("First failure on path, diagnostics requested")

		for _, h := range t.hooks {
			h.OnEvent(ev)
		}
	}
}

// eventLog picks the level for a first failure. Missing and empty nodes
// are routine on most devices; denials and I/O errors are not.
func (t *Tracker) eventLog(outcome sysfs.Outcome) *logger.LogEvent {
	switch outcome {
	case sysfs.NotFound, sysfs.Empty:
		return t.logger.Debug()
	default:
		return t.logger.Info()
	}
}

func (t *Tracker) Store() Store {
	return t.store
}
