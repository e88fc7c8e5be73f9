// Package capability determines once per process whether elevated
// (root or privileged-domain) access is available.
package capability

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
)

const DefaultTimeout = 5 * time.Second

type State int

const (
	Unknown State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "Granted"
	case Denied:
		return "Denied"
	default:
		return "Unknown"
	}
}

// ParseState accepts the names produced by String, or their lower case.
func ParseState(s string) (State, bool) {
	switch s {
	case "Granted", "granted":
		return Granted, true
	case "Denied", "denied":
		return Denied, true
	case "Unknown", "unknown":
		return Unknown, true
	default:
		return Unknown, false
	}
}

// Probe runs its Checker at most once, off the caller's goroutine. The
// state moves Unknown -> Granted|Denied and never changes afterwards.
type Probe struct {
	checker Checker
	timeout time.Duration
	logger  logger.Logger

	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	state State
	cause error
}

func NewProbe(checker Checker, timeout time.Duration, log logger.Logger) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Probe{
		checker: checker,
		timeout: timeout,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// Resolved returns a Probe already settled to state, for hosts that
// learn the capability flag from elsewhere.
func Resolved(state State) *Probe {
	p := &Probe{done: make(chan struct{}), logger: logger.Nop(), state: state}
	p.once.Do(func() { close(p.done) })

	return p
}

// Start launches the check. Only the first call has any effect; callback
// (optional) receives the final state from the probe goroutine.
func (p *Probe) Start(ctx context.Context, callback func(State)) {
	p.once.Do(func() {
		go p.run(ctx, callback)
	})
}

func (p *Probe) run(ctx context.Context, callback func(State)) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	state, cause := p.check(ctx)

	p.mu.Lock()
	p.state = state
	p.cause = cause
	p.mu.Unlock()
	close(p.done)

	var event *logger.LogEvent
	if cause != nil {
		event = &logger.LogEvent{Event: p.logger.Debug().Err(cause)}
	} else {
		event = p.logger.Info()
	}
	event.
		Str("state", state.String()).
		Dur("elapsed", time.Since(start)).
		Msg("Capability probe finished")

	if callback != nil {
		callback(state)
	}
}

// check settles to Denied when ctx ends first, even if the checker ignores
// ctx. A late result from the checker is dropped.
func (p *Probe) check(ctx context.Context) (State, error) {
	errFactory := errors.New()

	if p.checker == nil {
		return Denied, errFactory.New(ErrNotPrivileged)
	}

	result := make(chan error, 1)
	go func() {
		result <- p.checker.Check(ctx)
	}()

	select {
	case err := <-result:
		if err == nil {
			return Granted, nil
		}
		if ctx.Err() != nil {
			return Denied, errFactory.Wrap(errors.ErrTimeout, err)
		}
		return Denied, err
	case <-ctx.Done():
		return Denied, errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	}
}

// State returns Unknown until the probe has finished.
func (p *Probe) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.state
}

// Elevated is true only once the probe has Granted access.
func (p *Probe) Elevated() bool {
	return p.State() == Granted
}

// Cause explains a Denied state, nil otherwise.
func (p *Probe) Cause() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.cause
}

// Wait blocks until the probe settles or ctx ends. Waiting on a probe that
// was never started blocks until ctx ends.
func (p *Probe) Wait(ctx context.Context) (State, error) {
	select {
	case <-p.done:
		return p.State(), nil
	case <-ctx.Done():
		return Unknown, errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}
