package anchor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the normal outcome of getting a key which is not there.
	ErrNotFound = errors.New("anchor: key not found")

	ErrNoRange        = errors.New("anchor: no range is open")
	ErrRangeActive    = errors.New("anchor: a range is open")
	ErrRangeCommand   = errors.New("anchor: only next, take, and done are valid in a range")
	ErrBadCount       = errors.New("anchor: take count must be positive")
	ErrReadOnly       = errors.New("anchor: transaction is read only")
	ErrUnknownCommand = errors.New("anchor: unknown command")

	ErrTxnClosed    = errors.New("anchor: transaction closed")
	ErrCursorClosed = errors.New("anchor: cursor closed")
	ErrIdleTimeout  = errors.New("anchor: idle timeout")
	ErrEnvClosed    = errors.New("anchor: environment closed")
)

// StoreError is a failure of the underlying store. It is fatal to the transaction.
type StoreError struct {
	Op  string
	Err error
}

func (se *StoreError) Error() string {
	return fmt.Sprintf("anchor: %s: %s", se.Op, se.Err)
}

func (se *StoreError) Unwrap() error {
	return se.Err
}

// ClosedError is returned by calls on a transaction or cursor whose actor has stopped
// listening. Reason, if not nil, is why the actor stopped early.
type ClosedError struct {
	Err    error
	Reason error
}

func (ce *ClosedError) Error() string {
	if ce.Reason == nil {
		return ce.Err.Error()
	}
	return fmt.Sprintf("%s: %s", ce.Err, ce.Reason)
}

func (ce *ClosedError) Is(target error) bool {
	return target == ce.Err
}

func (ce *ClosedError) Unwrap() error {
	return ce.Reason
}

func rejected(cmd Command, err error) Reply {
	if cmd == nil {
		return Reply{Kind: ReplyRejected, Err: err}
	}
	return Reply{
		Kind: ReplyRejected,
		Err:  fmt.Errorf("%w: %s", err, cmd),
	}
}
