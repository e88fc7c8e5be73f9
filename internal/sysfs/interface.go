package sysfs

import "time"

// Reader performs single bounded attempts against one sysfs path.
type Reader interface {
	Read(path string) ReadAttempt
	Write(path, value string) ReadAttempt
}

// Recorder receives every attempt made by an Acquirer.
type Recorder interface {
	Record(attempt ReadAttempt)
}

// NormalizationRule selects the magnitude heuristic applied to a raw value.
type NormalizationRule int

const (
	RuleNone NormalizationRule = iota
	RuleMicroToMilli
	RuleMilliToDeci
)

func (r NormalizationRule) String() string {
	switch r {
	case RuleMicroToMilli:
		return "microToMilli"
	case RuleMilliToDeci:
		return "milliToDeci"
	default:
		return "none"
	}
}

// MetricSpec is the ordered candidate list for one metric. Order encodes
// priority: vendor-specific nodes come before generic ones.
type MetricSpec struct {
	Name           string
	CandidatePaths []string
	Rule           NormalizationRule
	// Privileged metrics are only attempted with elevated access.
	Privileged bool
}

type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

type Outcome int

const (
	Success Outcome = iota
	NotFound
	PermissionDenied
	Empty
	IOError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case NotFound:
		return "NotFound"
	case PermissionDenied:
		return "PermissionDenied"
	case Empty:
		return "Empty"
	case IOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Failed reports whether the outcome counts against a path.
func (o Outcome) Failed() bool {
	return o != Success
}

// ReadAttempt is the immutable record of one access.
type ReadAttempt struct {
	Path      string
	Operation Operation
	Outcome   Outcome
	RawValue  string
	HasValue  bool
	Latency   time.Duration
	Detail    string
	At        time.Time
}

// NotAvailable is returned by Acquire when no candidate produced a value.
// Callers must treat it as "metric unavailable", never as a real zero.
const NotAvailable = "0"

// Result is the outcome of one Acquire call.
type Result struct {
	Metric     string
	Value      string
	Path       string
	Attempts   []ReadAttempt
	OK         bool
	Normalized bool
}
