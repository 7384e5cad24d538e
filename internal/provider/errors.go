package provider

import (
	"errors"
	"fmt"
)

// ErrProviderNotFound indicates the provider's executable could not be
// located through any resolution step. Not retriable.
var ErrProviderNotFound = errors.New("provider executable not found")

// ErrAuthenticationRequired indicates the provider CLI rejected the
// request for lack of credentials. Not retriable; the user must log in.
var ErrAuthenticationRequired = errors.New("provider authentication required")

// ErrEmptyResponse indicates the provider produced no usable text.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// LaunchError indicates the provider process could not be spawned at
// all (as opposed to running and failing).
type LaunchError struct {
	Reason string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("provider failed to launch: %s", e.Reason)
}

// ProcessError indicates the provider process ran and exited non-zero
// without a more specific classification.
type ProcessError struct {
	ExitCode   int
	Diagnostic string
}

func (e *ProcessError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("provider process failed with exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("provider process failed with exit code %d: %s", e.ExitCode, e.Diagnostic)
}

// MalformedResponseError indicates a streaming response line was not
// valid protocol output. Carries a truncated sample for diagnostics.
// The session itself stays healthy unless the process actually exited.
type MalformedResponseError struct {
	Sample string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed provider response: %q", e.Sample)
}

// ErrModelRejected signals that the requested model alias was refused
// and a retry with the provider default model is warranted.
var ErrModelRejected = errors.New("provider rejected model alias")
