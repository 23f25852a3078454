package circuit

import (
	"errors"
	"sync"
	"time"

	"bastion/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// Settings tune one breaker. Zero fields fall back to sane defaults.
type Settings struct {
	FailureThreshold int           // consecutive failures before CLOSED -> OPEN
	RecoveryTimeout  time.Duration // OPEN -> HALF-OPEN after this much silence
	SuccessThreshold int           // consecutive half-open successes before CLOSED
	HalfOpenMaxCalls int           // concurrent probes allowed while HALF-OPEN

	// Exclude reports errors that must not count as failures (e.g. the
	// terminal rejecting an order on a healthy session).
	Exclude func(error) bool
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = 60 * time.Second
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = 1
	}
	return s
}

// CircuitBreaker guards one named external resource. CLOSED counts
// consecutive failures; OPEN rejects until the recovery timeout has passed;
// HALF-OPEN admits a bounded number of probes and closes again only after
// enough consecutive successes.
type CircuitBreaker struct {
	mu            sync.Mutex
	name          string
	settings      Settings
	state         State
	failures      int
	successes     int
	halfOpenCalls int
	lastFailure   time.Time
	nowFn         func() time.Time
	onStateChange func(name string, from, to State)
}

func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings.withDefaults(),
		state:    StateClosed,
		nowFn:    time.Now,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// SetStateChangeHandler installs the observability sink for transitions.
func (cb *CircuitBreaker) SetStateChangeHandler(handler func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = handler
}

// Allow reports whether a call may proceed, reserving a half-open probe slot
// when the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.nowFn().Sub(cb.lastFailure) > cb.settings.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			cb.successes = 0
			cb.halfOpenCalls = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.settings.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.halfOpenCalls > 0 {
			cb.halfOpenCalls--
		}
		if cb.successes >= cb.settings.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failures = 0
			cb.successes = 0
			cb.halfOpenCalls = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure registers err against the breaker. Excluded errors are
// ignored entirely.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		return
	}
	if cb.settings.Exclude != nil && cb.settings.Exclude(err) {
		return
	}

	cb.failures++
	cb.lastFailure = cb.nowFn()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.settings.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.successes = 0
		cb.halfOpenCalls = 0
		cb.transition(StateOpen)
	}
}

// Execute runs fn when the breaker allows it and records the outcome on
// every exit path, including panics.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	var err error
	defer func() {
		if r := recover(); r != nil {
			cb.RecordFailure(errors.New("panic during guarded call"))
			panic(r)
		}
		if err != nil {
			cb.RecordFailure(err)
		} else {
			cb.RecordSuccess()
		}
	}()
	err = fn()
	return err
}

// Status is a point-in-time snapshot for operator reporting.
type Status struct {
	Name              string        `json:"name"`
	State             string        `json:"state"`
	Failures          int           `json:"failures"`
	RecoveryRemaining time.Duration `json:"recovery_remaining"`
}

func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := Status{Name: cb.name, State: cb.state.String(), Failures: cb.failures}
	if cb.state == StateOpen {
		remaining := cb.settings.RecoveryTimeout - cb.nowFn().Sub(cb.lastFailure)
		if remaining > 0 {
			st.RecoveryRemaining = remaining
		}
	}
	return st
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, from, to)
	} else {
		logger.Warnf("CircuitBreaker %s state change: %s -> %s (failures=%d/%d, timeout=%s)",
			cb.name, from, to, cb.failures, cb.settings.FailureThreshold, cb.settings.RecoveryTimeout)
	}
}
