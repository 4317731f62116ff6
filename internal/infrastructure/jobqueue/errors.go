package jobqueue

import (
	"context"

	crerr "github.com/cockroachdb/errors"
)

var (
	// ErrTransient marks failures that may succeed on a later run and count
	// against the circuit breaker.
	ErrTransient   = crerr.New("queue transient failure")
	ErrCircuitOpen = crerr.New("queue circuit breaker is open")
)

func markTransient(err error) error {
	if err == nil {
		return nil
	}
	return crerr.Mark(err, ErrTransient)
}

func IsTransient(err error) bool {
	return crerr.Is(err, ErrTransient)
}

// contextError reports a publish cut short by the caller's deadline as transient.
func contextError(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return markTransient(crerr.Wrap(err, op))
	}
	return nil
}
