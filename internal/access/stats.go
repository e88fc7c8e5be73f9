package access

import (
	"time"

	"codeberg.org/mutker/battmon/internal/sysfs"
)

// Stats aggregates every attempt made against one path.
type Stats struct {
	Path         string
	SuccessCount int
	FailureCount int
	TotalLatency time.Duration
	LastOutcome  sysfs.Outcome
	LastDetail   string
	LastAt       time.Time
}

// Attempts returns the total number of recorded attempts.
func (s Stats) Attempts() int {
	return s.SuccessCount + s.FailureCount
}

// MeanLatency returns zero when nothing has been recorded.
func (s Stats) MeanLatency() time.Duration {
	n := s.Attempts()
	if n == 0 {
		return 0
	}

	return s.TotalLatency / time.Duration(n)
}

type EventKind int

const (
	// EventDiagnosticRequested fires once per path, on its first failure.
	EventDiagnosticRequested EventKind = iota
)

func (k EventKind) String() string {
	switch k {
	case EventDiagnosticRequested:
		return "DiagnosticRequested"
	default:
		return "Unknown"
	}
}

type Event struct {
	Kind    EventKind
	Path    string
	Attempt sysfs.ReadAttempt
}

// Transition applies attempt to s and returns the new stats together with
// any events the change produced. It does not mutate s.
func Transition(s Stats, attempt sysfs.ReadAttempt) (Stats, []Event) {
	next := s
	next.Path = attempt.Path
	next.TotalLatency += attempt.Latency
	next.LastOutcome = attempt.Outcome
	next.LastDetail = attempt.Detail
	next.LastAt = attempt.At

	if !attempt.Outcome.Failed() {
		next.SuccessCount++
		return next, nil
	}

	next.FailureCount++
	if s.FailureCount == 0 {
		return next, []Event{{
			Kind:    EventDiagnosticRequested,
			Path:    attempt.Path,
			Attempt: attempt,
		}}
	}

	return next, nil
}
