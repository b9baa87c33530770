package loop

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrZeroDuration     = errors.New("looptask: interval must be greater than zero")
	ErrNegativeInterval = errors.New("looptask: interval components must not be negative")
	ErrIntervalOverflow = errors.New("looptask: interval overflows time.Duration")
	ErrNotAsyncCallable = errors.New("looptask: callable must be an asynchronous work func")
	ErrAlreadyRunning   = errors.New("looptask: task already running")
	ErrReceiverGone     = errors.New("looptask: bound receiver no longer exists")
)

// FailureKind identifies a class of failure. A task tolerates the kinds it
// was configured with; every other failure ends the run.
type FailureKind string

const (
	// KindPanic is assigned to panics recovered from work or hooks.
	KindPanic FailureKind = "panic"
	// KindTimeout is assigned to context.DeadlineExceeded.
	KindTimeout FailureKind = "timeout"
)

// Failure tags an error with a FailureKind.
//
// Example:
//
//	return loop.Fail("http_status", fmt.Errorf("GET %s: %d", url, code))
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string            { return fmt.Sprintf("%s: %v", f.Kind, f.Err) }
func (f *Failure) Unwrap() error            { return f.Err }
func (f *Failure) FailureKind() FailureKind { return f.Kind }

// Fail wraps err with kind. A nil err returns nil.
func Fail(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Kind: kind, Err: err}
}

// Kinded is implemented by errors that carry their own FailureKind.
type Kinded interface {
	error
	FailureKind() FailureKind
}

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (FailureKind, bool) {
	if err == nil {
		return "", false
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.FailureKind(), true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	return "", false
}
