package sysfs

import (
	"codeberg.org/mutker/battmon/internal/logger"
)

type nopRecorder struct{}

func (nopRecorder) Record(ReadAttempt) {}

// Acquirer walks a MetricSpec's candidates in declared order and returns
// the first usable value.
type Acquirer struct {
	reader     Reader
	normalizer Normalizer
	recorder   Recorder
	logger     logger.Logger
}

func NewAcquirer(reader Reader, normalizer Normalizer, recorder Recorder, log logger.Logger) *Acquirer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Acquirer{
		reader:     reader,
		normalizer: normalizer,
		recorder:   recorder,
		logger:     log,
	}
}

// Acquire never fails: when every candidate fails it returns NotAvailable
// with OK=false and one attempt per candidate.
func (a *Acquirer) Acquire(spec MetricSpec) Result {
	res := Result{
		Metric:   spec.Name,
		Value:    NotAvailable,
		Attempts: make([]ReadAttempt, 0, len(spec.CandidatePaths)),
	}

	for _, path := range spec.CandidatePaths {
		attempt := a.reader.Read(path)
		res.Attempts = append(res.Attempts, attempt)
		a.recorder.Record(attempt)
		a.logAttempt(spec.Name, attempt)

		if attempt.Outcome != Success || attempt.RawValue == "" {
			continue
		}

		value, normalized, err := a.normalizer.Apply(spec.Rule, attempt.RawValue)
		if err != nil {
			a.logger.Debug().
				Str("metric", spec.Name).
				Str("path", path).
				Str("raw", attempt.RawValue).
				Err(err).
				Msg("Value left unnormalized")
		}

		res.Value = value
		res.Path = path
		res.OK = true
		res.Normalized = normalized

		return res
	}

	a.logger.Debug().
		Str("metric", spec.Name).
		Int("candidates", len(spec.CandidatePaths)).
		Msg("No candidate path produced a value")

	return res
}

// Write stores value at path and reports the attempt to the recorder.
func (a *Acquirer) Write(path, value string) ReadAttempt {
	attempt := a.reader.Write(path, value)
	a.recorder.Record(attempt)
	a.logAttempt("", attempt)

	return attempt
}

func (a *Acquirer) logAttempt(metric string, attempt ReadAttempt) {
	var event *logger.LogEvent
	switch attempt.Outcome {
	case Success, NotFound, Empty:
		event = a.logger.Debug()
	default:
		event = a.logger.Warn()
	}

	if metric != "" {
		event = &logger.LogEvent{Event: event.Str("metric", metric)}
	}

	event.
		Str("op", string(attempt.Operation)).
		Str("path", attempt.Path).
		Str("outcome", attempt.Outcome.String()).
		Str("detail", attempt.Detail).
		Dur("latency", attempt.Latency).
		Msg("Sysfs access")
}
