package store

import (
	"context"
	"errors"
	"net"
)

// malformedError marks a payload the adapter fetched but could not decode.
// It classifies differently from transport faults: the store answered, the
// data is the problem.
type malformedError struct{ err error }

func (e malformedError) Error() string { return e.err.Error() }
func (e malformedError) Unwrap() error { return e.err }

func errMalformed(err error) error { return malformedError{err: err} }

// classify maps an adapter error onto the fault taxonomy.
func classify(err error) Fault {
	var m malformedError
	switch {
	case errors.As(err, &m):
		return Fault{Reason: FaultMalformed, Detail: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Fault{Reason: FaultTimeout, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Fault{Reason: FaultTimeout, Detail: err.Error()}
	}
	return Fault{Reason: FaultUnavailable, Detail: err.Error()}
}
