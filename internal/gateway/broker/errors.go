package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies terminal failures for retry and circuit decisions.
type ErrorKind int

const (
	// KindTransient covers momentary blips: timeouts, requotes, busy
	// terminal. Safe to retry within one operation.
	KindTransient ErrorKind = iota
	// KindSustained covers lost sessions and auth failures. Retrying inside
	// one operation is pointless; the circuit absorbs these.
	KindSustained
	// KindRejected covers requests the terminal refused: bad volume, bad
	// stops, trading disabled for the symbol. Never retried and never
	// counted as a circuit failure.
	KindRejected
	// KindNotFound covers lookups for tickets the terminal no longer knows.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindSustained:
		return "sustained"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the typed failure every Connector implementation returns.
type Error struct {
	Kind ErrorKind
	Op   string // Connector operation, e.g. "place_order"
	Code int    // Backend return code if any
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker %s: %s (%s): %v", e.Op, e.Msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("broker %s: %s (%s)", e.Op, e.Msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed broker error.
func NewError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the classification from err. Raw network and context
// errors from lower layers are folded into the taxonomy so callers never
// need to inspect them directly.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindSustained
}

// IsTransient reports whether err is worth retrying within one operation.
func IsTransient(err error) bool { return err != nil && KindOf(err) == KindTransient }

// IsRejected reports whether the terminal refused the request outright.
func IsRejected(err error) bool { return err != nil && KindOf(err) == KindRejected }

// IsNotFound reports whether the referenced ticket is gone.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// CountsAsCircuitFailure reports whether err should trip a breaker.
// Rejections and missing tickets are valid answers from a healthy terminal.
func CountsAsCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindRejected, KindNotFound:
		return false
	default:
		return true
	}
}
