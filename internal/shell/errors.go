package shell

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnhealthy indicates the session cannot accept commands because a
// previous failure may have corrupted its stream. Callers should fall
// back to a one-shot process.
var ErrUnhealthy = errors.New("shell session unhealthy")

// ErrTerminated indicates the backing process has exited. A terminated
// session is never reused; request a fresh one.
var ErrTerminated = errors.New("shell session terminated")

// TimeoutError indicates a command did not complete before its deadline.
// The session is marked unhealthy and its process torn down when this is
// returned.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// ExitError indicates the backing process exited while a command was in
// flight. Diagnostic carries recent stderr output.
type ExitError struct {
	Diagnostic string
}

func (e *ExitError) Error() string {
	if e.Diagnostic == "" {
		return "shell process exited unexpectedly"
	}
	return fmt.Sprintf("shell process exited unexpectedly: %s", e.Diagnostic)
}

func (e *ExitError) Unwrap() error { return ErrTerminated }
