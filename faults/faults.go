package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a Fault
type Kind int

const (
	// IO the environment or proxy file could not be read or written
	IO Kind = 20
	// Validation the request was rejected before anything was executed
	Validation Kind = 3
	// Command a privileged command exited non-zero, timed out or failed to spawn
	Command Kind = 50
	// StateConflict the requested transition is not allowed from the current state
	StateConflict Kind = 60
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case IO:
		return "IO_ERROR"
	case Validation:
		return "VALIDATION_ERROR"
	case Command:
		return "COMMAND_FAILURE"
	case StateConflict:
		return "STATE_CONFLICT"
	default:
		return "FAILED"
	}
}

// sentinels usable with errors.Is
var (
	ErrIO            = &Fault{Kind: IO}
	ErrValidation    = &Fault{Kind: Validation}
	ErrCommand       = &Fault{Kind: Command}
	ErrStateConflict = &Fault{Kind: StateConflict}
)

// Fault is the structured error returned to the external caller
type Fault struct {
	Kind    Kind
	Message string
	// Detail carries the captured stderr of a failed command
	Detail string
	Cause  error
}

// Error implements error
func (f *Fault) Error() string {
	msg := f.Message
	if msg == "" {
		msg = f.Kind.String()
	}
	if f.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	if f.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, f.Detail)
	}
	return msg
}

// Unwrap returns the wrapped cause
func (f *Fault) Unwrap() error {
	return f.Cause
}

// Is matches any Fault of the same kind
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

// NewFault creates a fault of the given kind
func NewFault(kind Kind, format string, args ...interface{}) error {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IOError wraps a file system failure
func IOError(cause error, format string, args ...interface{}) error {
	return &Fault{Kind: IO, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ValidationError rejects a request before any command runs
func ValidationError(format string, args ...interface{}) error {
	return &Fault{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// CommandFailure reports a failed privileged command with its stderr
func CommandFailure(stderr string, format string, args ...interface{}) error {
	return &Fault{Kind: Command, Message: fmt.Sprintf(format, args...), Detail: stderr}
}

// Conflict reports a disallowed state transition
func Conflict(format string, args ...interface{}) error {
	return &Fault{Kind: StateConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first Fault in err's chain
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// Is reports whether err carries a fault of the given kind
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
