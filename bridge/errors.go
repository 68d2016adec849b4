package bridge

import (
	"errors"
	"fmt"
)

// ErrorKind classifies bridge call failures.
type ErrorKind int

const (
	// KindTimeout means the subprocess did not finish within the
	// call's time budget.
	KindTimeout ErrorKind = iota
	// KindExecution means the subprocess exited non-zero or could not
	// be started.
	KindExecution
	// KindProtocol means the subprocess exited successfully but its
	// output did not match the response contract.
	KindProtocol
)

// String returns the kind name for logs and error messages.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "bridge_timeout"
	case KindExecution:
		return "bridge_execution_error"
	case KindProtocol:
		return "bridge_protocol_error"
	default:
		return "unknown"
	}
}

// Error is a classified bridge call failure. Detail carries captured
// diagnostic output for execution errors and the parser message for
// protocol errors.
type Error struct {
	Kind    ErrorKind
	Command Command
	Detail  string
	Err     error

	// stdout captured from a failed invocation; some commands report
	// structured failures on stdout despite a non-zero exit.
	stdout []byte
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s during %q: %s", e.Kind, e.Command, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s during %q: %v", e.Kind, e.Command, e.Err)
	}
	return fmt.Sprintf("%s during %q", e.Kind, e.Command)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a bridge timeout.
func IsTimeout(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindTimeout
}
